package telegram

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	tele "gopkg.in/telebot.v4"

	"tgrelay/internal/relay"
	logx "tgrelay/pkg/logx"
)

// MaxDownloadBytes is the Bot API limit for getFile downloads.
const MaxDownloadBytes = 20 << 20

type Config struct {
	Token       string
	APIURL      string        // empty means api.telegram.org
	HTTPTimeout time.Duration // per request; 0 means 30s
	MaxDownload int64         // 0 means MaxDownloadBytes
	// Offline skips the getMe call at construction (tests, dry runs).
	Offline bool
}

// Client implements relay.Client on top of telebot.
type Client struct {
	cfg Config
	log logx.Logger
	bot *tele.Bot
}

var _ relay.Client = (*Client)(nil)

func New(cfg Config, log logx.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 30 * time.Second
	}
	if cfg.MaxDownload <= 0 {
		cfg.MaxDownload = MaxDownloadBytes
	}
	b, err := tele.NewBot(tele.Settings{
		Token:   cfg.Token,
		URL:     cfg.APIURL,
		Client:  &http.Client{Timeout: cfg.HTTPTimeout},
		Offline: cfg.Offline,
	})
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Client{cfg: cfg, log: log.Component("telegram.client"), bot: b}, nil
}

func (c *Client) SendMessage(ctx context.Context, to relay.Peer, out relay.Outgoing) (relay.MessageRef, error) {
	if err := ctx.Err(); err != nil {
		return relay.MessageRef{}, err
	}
	opt := sendOptions(to, out)
	// Text has no document mode; forcing one means dropping the link
	// preview, the smart feature most likely to have failed.
	opt.DisableWebPagePreview = out.ForceDocument

	m, err := c.bot.Send(&tele.Chat{ID: to.ChatID}, out.Text, opt)
	if err != nil {
		return relay.MessageRef{}, classify(err)
	}
	return refOf(to, m), nil
}

func (c *Client) SendFile(ctx context.Context, to relay.Peer, file relay.Upload, out relay.Outgoing) (relay.MessageRef, error) {
	if err := ctx.Err(); err != nil {
		return relay.MessageRef{}, err
	}
	what, err := sendable(file, out)
	if err != nil {
		return relay.MessageRef{}, err
	}
	m, err := c.bot.Send(&tele.Chat{ID: to.ChatID}, what, sendOptions(to, out))
	if err != nil {
		return relay.MessageRef{}, classify(err)
	}
	return refOf(to, m), nil
}

func (c *Client) DownloadMedia(ctx context.Context, msg relay.Message) ([]byte, error) {
	if msg.File == nil || msg.File.FileID == "" {
		return nil, errors.New("telegram: message has no file")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rc, err := c.bot.File(&tele.File{FileID: msg.File.FileID})
	if err != nil {
		return nil, classify(err)
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, c.cfg.MaxDownload+1))
	if err != nil {
		return nil, fmt.Errorf("telegram: read file %s: %w", msg.File.FileID, err)
	}
	if int64(len(data)) > c.cfg.MaxDownload {
		return nil, fmt.Errorf("telegram: file %s exceeds %d bytes", msg.File.FileID, c.cfg.MaxDownload)
	}
	c.log.Debug("media downloaded", logx.String("file_id", msg.File.FileID), logx.Int("bytes", len(data)))
	return data, nil
}

func sendOptions(to relay.Peer, out relay.Outgoing) *tele.SendOptions {
	opt := &tele.SendOptions{
		Entities:  toEntities(out.Entities),
		ParseMode: parseMode(out.ParseMode),
		ThreadID:  to.ThreadID,
	}
	if out.ReplyTo != 0 {
		opt.ReplyTo = &tele.Message{ID: out.ReplyTo, Chat: &tele.Chat{ID: to.ChatID}}
	}
	return opt
}

func parseMode(m relay.ParseMode) tele.ParseMode {
	if m == relay.ParseHTML {
		return tele.ModeHTML
	}
	return tele.ModeDefault
}

// sendable builds the telebot payload for an upload. Raw bytes and forced
// sends always go out as documents.
func sendable(file relay.Upload, out relay.Outgoing) (any, error) {
	if file.Data != nil {
		return &tele.Document{
			File:     tele.FromReader(bytes.NewReader(file.Data)),
			FileName: uploadName(file.FileName, file.Data),
			Caption:  out.Text,
		}, nil
	}
	if file.Media == nil || file.Media.FileID == "" {
		return nil, errors.New("telegram: upload has neither data nor file id")
	}

	ref := tele.File{FileID: file.Media.FileID}
	if out.ForceDocument {
		return &tele.Document{File: ref, FileName: file.Media.FileName, Caption: out.Text}, nil
	}
	switch file.Media.Kind {
	case relay.MediaPhoto:
		return &tele.Photo{File: ref, Caption: out.Text}, nil
	case relay.MediaVideo:
		return &tele.Video{File: ref, Caption: out.Text}, nil
	case relay.MediaAudio:
		return &tele.Audio{File: ref, Caption: out.Text}, nil
	case relay.MediaVoice:
		return &tele.Voice{File: ref, Caption: out.Text}, nil
	case relay.MediaAnimation:
		return &tele.Animation{File: ref, Caption: out.Text}, nil
	case relay.MediaSticker:
		return &tele.Sticker{File: ref}, nil
	default:
		return &tele.Document{File: ref, FileName: file.Media.FileName, Caption: out.Text}, nil
	}
}

// uploadName keeps a known name, otherwise derives an extension from content.
func uploadName(name string, data []byte) string {
	if strings.TrimSpace(name) != "" {
		return name
	}
	return "file" + mimetype.Detect(data).Extension()
}

func refOf(to relay.Peer, m *tele.Message) relay.MessageRef {
	ref := relay.MessageRef{ChatID: to.ChatID, ThreadID: to.ThreadID}
	if m != nil {
		ref.MessageID = m.ID
		if m.Chat != nil {
			ref.ChatID = m.Chat.ID
		}
	}
	return ref
}
