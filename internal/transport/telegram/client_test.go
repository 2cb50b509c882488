package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"

	"tgrelay/internal/relay"
	logx "tgrelay/pkg/logx"
)

func TestClassify(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		err  error
		want relay.Class
	}{
		{"kicked", &tele.Error{Code: 403, Description: "Forbidden: bot was kicked from the supergroup chat"}, relay.ClassBanned},
		{"banned in channel", errors.New("rpc error: USER_BANNED_IN_CHANNEL"), relay.ClassBanned},
		{"write forbidden", &tele.Error{Code: 400, Description: "Bad Request: CHAT_WRITE_FORBIDDEN"}, relay.ClassPermissionDenied},
		{"no rights", &tele.Error{Code: 400, Description: "Bad Request: not enough rights to send text messages to the chat"}, relay.ClassPermissionDenied},
		{"plain 403", &tele.Error{Code: 403, Description: "Forbidden: something new"}, relay.ClassPermissionDenied},
		{"empty text", errors.New("telegram: Bad Request: message text is empty (400)"), relay.ClassTransient},
		{"network", context.DeadlineExceeded, relay.ClassTransient},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			err := classify(tt.err)
			require.Equal(t, tt.want, relay.Classify(err))
			require.ErrorIs(t, err, tt.err)
		})
	}
	require.NoError(t, classify(nil))
}

func TestSendableByKind(t *testing.T) {
	t.Parallel()
	out := relay.Outgoing{Text: "cap"}
	media := &relay.Media{FileID: "F1", Kind: relay.MediaPhoto, FileName: "p.jpg"}

	what, err := sendable(relay.Upload{Media: media}, out)
	require.NoError(t, err)
	photo, ok := what.(*tele.Photo)
	require.True(t, ok)
	require.Equal(t, "F1", photo.FileID)
	require.Equal(t, "cap", photo.Caption)

	out.ForceDocument = true
	what, err = sendable(relay.Upload{Media: media}, out)
	require.NoError(t, err)
	doc, ok := what.(*tele.Document)
	require.True(t, ok)
	require.Equal(t, "p.jpg", doc.FileName)

	what, err = sendable(relay.Upload{Data: []byte("hello"), FileName: "notes.txt"}, out)
	require.NoError(t, err)
	doc, ok = what.(*tele.Document)
	require.True(t, ok)
	require.Equal(t, "notes.txt", doc.FileName)
	require.Equal(t, "cap", doc.Caption)

	_, err = sendable(relay.Upload{}, out)
	require.Error(t, err)
}

func TestUploadNameFromContent(t *testing.T) {
	t.Parallel()
	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00")
	require.Equal(t, "file.png", uploadName("", png))
	require.Equal(t, "keep.bin", uploadName("keep.bin", png))
}

func TestEntitiesRoundTrip(t *testing.T) {
	t.Parallel()
	in := []relay.Entity{
		{Type: "bold", Offset: 0, Length: 4},
		{Type: "text_link", Offset: 5, Length: 3, URL: "https://example.org"},
		{Type: "text_mention", Offset: 9, Length: 2, UserID: 77},
		{Type: "pre", Offset: 12, Length: 5, Language: "go"},
		{Type: "custom_emoji", Offset: 18, Length: 2, CustomEmojiID: "5368324170671202286"},
	}
	out := toEntities(in)
	require.Equal(t, "5368324170671202286", out[4].CustomEmojiID)
	require.Equal(t, int64(77), out[2].User.ID)
	require.Equal(t, in, fromEntities(out))
	require.Nil(t, toEntities(nil))
}

func TestFromTelebot(t *testing.T) {
	t.Parallel()
	m := &tele.Message{
		ID:              5,
		Chat:            &tele.Chat{ID: -1001},
		Caption:         "look",
		CaptionEntities: tele.Entities{{Type: tele.EntityBold, Offset: 0, Length: 4}},
		Document:        &tele.Document{File: tele.File{FileID: "D1"}, FileName: "a.pdf", MIME: "application/pdf"},
	}
	got := FromTelebot(m)
	require.Equal(t, relay.HasFile, got.FileType())
	require.Equal(t, "look", got.Text)
	require.Equal(t, relay.MessageRef{ChatID: -1001, MessageID: 5}, got.Source)
	require.Equal(t, "D1", got.File.FileID)
	require.Equal(t, relay.MediaDocument, got.File.Kind)
	require.Len(t, got.Entities, 1)

	plain := FromTelebot(&tele.Message{ID: 6, Chat: &tele.Chat{ID: 1}, Text: "hi"})
	require.Equal(t, relay.NoFile, plain.FileType())
	require.Equal(t, "hi", plain.Text)
}

func TestNewRequiresToken(t *testing.T) {
	t.Parallel()
	_, err := New(Config{Token: " "}, logx.Nop())
	require.Error(t, err)

	c, err := New(Config{Token: "123:abc", Offline: true}, logx.Nop())
	require.NoError(t, err)
	_, err = c.DownloadMedia(context.Background(), relay.Message{})
	require.Error(t, err)
}

// fakeAPI answers Bot API send calls and records their parameters.
func fakeAPI(t *testing.T) (*Client, <-chan map[string]string) {
	t.Helper()
	calls := make(chan map[string]string, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var params map[string]string
		_ = json.NewDecoder(r.Body).Decode(&params)
		params["method"] = r.URL.Path[strings.LastIndexByte(r.URL.Path, '/')+1:]
		calls <- params
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":5,"chat":{"id":-100}}}`))
	}))
	t.Cleanup(srv.Close)

	c, err := New(Config{Token: "123:abc", APIURL: srv.URL, Offline: true}, logx.Nop())
	require.NoError(t, err)
	return c, calls
}

func TestSendMessageParseMode(t *testing.T) {
	c, calls := fakeAPI(t)
	to := relay.Peer{ChatID: -100, ThreadID: 3}

	ref, err := c.SendMessage(context.Background(), to, relay.Outgoing{Text: "this is <b>urgent</b>", ParseMode: relay.ParseHTML})
	require.NoError(t, err)
	require.Equal(t, 5, ref.MessageID)
	got := <-calls
	require.Equal(t, "sendMessage", got["method"])
	require.Equal(t, "this is <b>urgent</b>", got["text"])
	require.Equal(t, "HTML", got["parse_mode"])
	require.Equal(t, "3", got["message_thread_id"])

	_, err = c.SendMessage(context.Background(), to, relay.Outgoing{Text: "**plain**"})
	require.NoError(t, err)
	got = <-calls
	require.NotContains(t, got, "parse_mode")
}
