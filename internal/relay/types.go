//go:generate go run go.uber.org/mock/mockgen -source=types.go -destination=relaymock/client.go -package=relaymock

package relay

import "context"

// FileType tells the dispatcher which delivery path a message takes.
type FileType int

const (
	NoFile FileType = iota
	HasFile
)

func (t FileType) String() string {
	if t == HasFile {
		return "file"
	}
	return "nofile"
}

// MediaKind is the endpoint-native kind of an attachment.
type MediaKind string

const (
	MediaDocument  MediaKind = "document"
	MediaPhoto     MediaKind = "photo"
	MediaVideo     MediaKind = "video"
	MediaAudio     MediaKind = "audio"
	MediaVoice     MediaKind = "voice"
	MediaAnimation MediaKind = "animation"
	MediaSticker   MediaKind = "sticker"
)

// Peer identifies a destination (or source) chat.
type Peer struct {
	ChatID   int64
	ThreadID int // forum topic thread id (0 if none)
}

// MessageRef points at a message that exists on an endpoint.
type MessageRef struct {
	ChatID    int64
	ThreadID  int
	MessageID int
}

// Entity is a formatting span over Message.Text.
// Offset and Length are in UTF-16 code units.
type Entity struct {
	Type          string
	Offset        int
	Length        int
	URL           string
	Language      string
	UserID        int64
	CustomEmojiID string
}

// Media is an opaque handle to an attachment already stored on the source endpoint.
type Media struct {
	FileID   string
	Kind     MediaKind
	FileName string
	MIME     string
	Size     int64
}

// ParseMode asks the endpoint to interpret markup in the text. The zero
// value sends the text as-is.
type ParseMode string

const ParseHTML ParseMode = "HTML"

// Message is the caller-owned input of one Deliver call. It is never mutated.
type Message struct {
	Source   MessageRef
	Text     string
	Entities []Entity
	File     *Media
	ReplyTo  int // message id in the destination chat; 0 means no reply
	// ParseMode is set when Text carries markup instead of Entities.
	ParseMode ParseMode
}

// FileType reports HasFile iff an attachment is present.
func (m Message) FileType() FileType {
	if m.File != nil {
		return HasFile
	}
	return NoFile
}

// Outgoing carries everything but the payload of one send call.
type Outgoing struct {
	Text          string // message text, or caption for file sends
	Entities      []Entity
	ParseMode     ParseMode
	ReplyTo       int
	ForceDocument bool
}

// Upload is either a reference to an existing remote file or raw bytes.
type Upload struct {
	Media    *Media
	Data     []byte
	FileName string
}

// Client is the endpoint capability the dispatcher consumes.
//
// Implementations wrap authorization failures with ErrWriteForbidden and
// ErrBanned so Classify can tell them apart from transient failures.
type Client interface {
	SendMessage(ctx context.Context, to Peer, out Outgoing) (MessageRef, error)
	SendFile(ctx context.Context, to Peer, file Upload, out Outgoing) (MessageRef, error)
	DownloadMedia(ctx context.Context, msg Message) ([]byte, error)
}

// Delivered describes a successful Deliver call.
type Delivered struct {
	Ref      MessageRef
	Attempts int
	Fallback bool // true when the fallback attempt produced Ref
	// Data holds the attachment bytes the fallback downloaded, if any.
	Data []byte
}
