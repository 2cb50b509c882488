package telegram

import (
	"github.com/samber/lo"
	tele "gopkg.in/telebot.v4"

	"tgrelay/internal/relay"
)

func toEntities(in []relay.Entity) tele.Entities {
	if len(in) == 0 {
		return nil
	}
	return lo.Map(in, func(e relay.Entity, _ int) tele.MessageEntity {
		out := tele.MessageEntity{
			Type:          tele.EntityType(e.Type),
			Offset:        e.Offset,
			Length:        e.Length,
			URL:           e.URL,
			Language:      e.Language,
			CustomEmojiID: e.CustomEmojiID,
		}
		if e.UserID != 0 {
			out.User = &tele.User{ID: e.UserID}
		}
		return out
	})
}

func fromEntities(in tele.Entities) []relay.Entity {
	if len(in) == 0 {
		return nil
	}
	return lo.Map(in, func(e tele.MessageEntity, _ int) relay.Entity {
		out := relay.Entity{
			Type:          string(e.Type),
			Offset:        e.Offset,
			Length:        e.Length,
			URL:           e.URL,
			Language:      e.Language,
			CustomEmojiID: e.CustomEmojiID,
		}
		if e.User != nil {
			out.UserID = e.User.ID
		}
		return out
	})
}

// FromTelebot converts a received telebot message into a relay.Message.
// ReplyTo is left unset: it refers to the destination chat, which only the
// caller can map.
func FromTelebot(m *tele.Message) relay.Message {
	if m == nil {
		return relay.Message{}
	}
	out := relay.Message{
		Text:     m.Text,
		Entities: fromEntities(m.Entities),
	}
	if m.Chat != nil {
		out.Source = relay.MessageRef{ChatID: m.Chat.ID, ThreadID: m.ThreadID, MessageID: m.ID}
	}
	if media := mediaOf(m); media != nil {
		out.File = media
		out.Text = m.Caption
		out.Entities = fromEntities(m.CaptionEntities)
	}
	return out
}

func mediaOf(m *tele.Message) *relay.Media {
	switch {
	case m.Photo != nil:
		return &relay.Media{FileID: m.Photo.FileID, Kind: relay.MediaPhoto, Size: m.Photo.FileSize}
	case m.Video != nil:
		return &relay.Media{FileID: m.Video.FileID, Kind: relay.MediaVideo, FileName: m.Video.FileName, MIME: m.Video.MIME, Size: m.Video.FileSize}
	case m.Animation != nil:
		return &relay.Media{FileID: m.Animation.FileID, Kind: relay.MediaAnimation, FileName: m.Animation.FileName, MIME: m.Animation.MIME, Size: m.Animation.FileSize}
	case m.Audio != nil:
		return &relay.Media{FileID: m.Audio.FileID, Kind: relay.MediaAudio, FileName: m.Audio.FileName, MIME: m.Audio.MIME, Size: m.Audio.FileSize}
	case m.Voice != nil:
		return &relay.Media{FileID: m.Voice.FileID, Kind: relay.MediaVoice, MIME: m.Voice.MIME, Size: m.Voice.FileSize}
	case m.Sticker != nil:
		return &relay.Media{FileID: m.Sticker.FileID, Kind: relay.MediaSticker, Size: m.Sticker.FileSize}
	case m.Document != nil:
		return &relay.Media{FileID: m.Document.FileID, Kind: relay.MediaDocument, FileName: m.Document.FileName, MIME: m.Document.MIME, Size: m.Document.FileSize}
	default:
		return nil
	}
}
