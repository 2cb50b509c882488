// Package ingest is the HTTP entry point for messages that an upstream
// collector has already read from a source chat. It hands them to the relay
// service; it never talks to the source endpoint itself.
package ingest

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"

	"tgrelay/internal/relay"
	"tgrelay/internal/service"
	logx "tgrelay/pkg/logx"
)

const maxBody = 1 << 20

var validate = validator.New()

// Relayer is the part of *service.Service the API drives.
type Relayer interface {
	Send(ctx context.Context, j service.Job) (relay.Delivered, error)
	Enqueue(ctx context.Context, j service.Job) (string, error)
	Relay(ctx context.Context, msg relay.Message, actor string) ([]string, error)
}

type Peer struct {
	ChatID   int64 `json:"chat_id" validate:"required"`
	ThreadID int   `json:"thread_id,omitempty" validate:"gte=0"`
}

type Entity struct {
	Type          string `json:"type" validate:"required"`
	Offset        int    `json:"offset" validate:"gte=0"`
	Length        int    `json:"length" validate:"gt=0"`
	URL           string `json:"url,omitempty"`
	Language      string `json:"language,omitempty"`
	UserID        int64  `json:"user_id,omitempty"`
	CustomEmojiID string `json:"custom_emoji_id,omitempty"`
}

type Media struct {
	FileID   string `json:"file_id" validate:"required"`
	Kind     string `json:"kind" validate:"required,oneof=document photo video audio voice animation sticker"`
	FileName string `json:"file_name,omitempty"`
	MIME     string `json:"mime,omitempty"`
	Size     int64  `json:"size,omitempty" validate:"gte=0"`
}

// Request is one message to relay. Without To it is fanned out along the
// configured routes of Source.ChatID. Sync waits for the delivery and is
// only allowed with an explicit To.
type Request struct {
	To       *Peer    `json:"to,omitempty"`
	Source   Peer     `json:"source"`
	SourceID int      `json:"source_message_id,omitempty" validate:"gte=0"`
	Text     string   `json:"text,omitempty"`
	Entities []Entity `json:"entities,omitempty" validate:"dive"`
	File     *Media   `json:"file,omitempty"`
	ReplyTo  int      `json:"reply_to,omitempty" validate:"gte=0"`
	Actor    string   `json:"actor,omitempty"`
	Sync     bool     `json:"sync,omitempty"`
}

// Response reports what happened to a Request.
type Response struct {
	Status    string   `json:"status"`
	IDs       []string `json:"ids,omitempty"`
	ChatID    int64    `json:"chat_id,omitempty"`
	MessageID int      `json:"message_id,omitempty"`
	Fallback  bool     `json:"fallback,omitempty"`
	Error     string   `json:"error,omitempty"`
}

func (r Request) message() relay.Message {
	msg := relay.Message{
		Source:  relay.MessageRef{ChatID: r.Source.ChatID, ThreadID: r.Source.ThreadID, MessageID: r.SourceID},
		Text:    r.Text,
		ReplyTo: r.ReplyTo,
		Entities: lo.Map(r.Entities, func(e Entity, _ int) relay.Entity {
			return relay.Entity(e)
		}),
	}
	if len(msg.Entities) == 0 {
		msg.Entities = nil
	}
	if r.File != nil {
		msg.File = &relay.Media{
			FileID:   r.File.FileID,
			Kind:     relay.MediaKind(r.File.Kind),
			FileName: r.File.FileName,
			MIME:     r.File.MIME,
			Size:     r.File.Size,
		}
	}
	return msg
}

func (r Request) check() error {
	if err := validate.Struct(r); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			parts := lo.Map(verrs, func(fe validator.FieldError, _ int) string {
				return fmt.Sprintf("%s: failed %q", fe.Namespace(), fe.Tag())
			})
			return errors.New(strings.Join(parts, "; "))
		}
		return err
	}
	if r.File == nil && strings.TrimSpace(r.Text) == "" {
		return errors.New("text or file is required")
	}
	if r.Sync && r.To == nil {
		return errors.New("sync requires an explicit destination")
	}
	return nil
}

// Handler serves POST /messages. A non-empty token is required as a
// Bearer credential.
func Handler(rel Relayer, token string, log logx.Logger) http.Handler {
	if log.IsZero() {
		log = logx.Nop()
	}
	log = log.Component("ingest")
	r := chi.NewRouter()
	r.Use(requireToken(token))
	r.Post("/messages", func(w http.ResponseWriter, req *http.Request) {
		var in Request
		dec := json.NewDecoder(http.MaxBytesReader(w, req.Body, maxBody))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&in); err != nil {
			writeJSON(w, http.StatusBadRequest, Response{Status: "invalid", Error: err.Error()})
			return
		}
		if err := in.check(); err != nil {
			writeJSON(w, http.StatusBadRequest, Response{Status: "invalid", Error: err.Error()})
			return
		}
		code, resp := handle(req.Context(), rel, in)
		if code >= http.StatusInternalServerError {
			log.Warn("ingest failed", logx.Int64("source", in.Source.ChatID), logx.String("error", resp.Error))
		}
		writeJSON(w, code, resp)
	})
	return r
}

func handle(ctx context.Context, rel Relayer, in Request) (int, Response) {
	msg := in.message()
	if in.To == nil {
		ids, err := rel.Relay(ctx, msg, in.Actor)
		if len(ids) == 0 && err == nil {
			return http.StatusOK, Response{Status: "skipped"}
		}
		if err != nil {
			code, resp := failure(err)
			resp.IDs = ids
			return code, resp
		}
		return http.StatusAccepted, Response{Status: "queued", IDs: ids}
	}

	job := service.Job{To: relay.Peer{ChatID: in.To.ChatID, ThreadID: in.To.ThreadID}, Msg: msg, Actor: in.Actor}
	if !in.Sync {
		id, err := rel.Enqueue(ctx, job)
		if err != nil {
			return failure(err)
		}
		return http.StatusAccepted, Response{Status: "queued", IDs: []string{id}}
	}
	res, err := rel.Send(ctx, job)
	if err != nil {
		return failure(err)
	}
	return http.StatusOK, Response{
		Status:    "delivered",
		ChatID:    res.Ref.ChatID,
		MessageID: res.Ref.MessageID,
		Fallback:  res.Fallback,
	}
}

// failure maps relay errors onto status codes.
func failure(err error) (int, Response) {
	resp := Response{Status: "failed", Error: err.Error()}
	var de *relay.DeliveryError
	switch {
	case errors.Is(err, service.ErrFiltered):
		resp.Status = "filtered"
		return http.StatusOK, resp
	case errors.Is(err, service.ErrDuplicate):
		resp.Status = "duplicate"
		return http.StatusOK, resp
	case errors.Is(err, service.ErrQueueFull), errors.Is(err, service.ErrStopped), errors.Is(err, service.ErrCircuitOpen):
		resp.Status = "unavailable"
		return http.StatusServiceUnavailable, resp
	case errors.As(err, &de) && de.Class.Terminal():
		return http.StatusForbidden, resp
	default:
		return http.StatusBadGateway, resp
	}
}

func requireToken(token string) func(http.Handler) http.Handler {
	want := []byte("Bearer " + token)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := []byte(r.Header.Get("Authorization"))
			if token == "" || subtle.ConstantTimeCompare(got, want) != 1 {
				writeJSON(w, http.StatusUnauthorized, Response{Status: "unauthorized"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
