package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"tgrelay/internal/relay"
	"tgrelay/internal/service"
	"tgrelay/internal/storage"
	"tgrelay/internal/transport/telegram"
)

type sendOptions struct {
	chatID   int64
	threadID int
	replyTo  int
	text     string
	fileID   string
	kind     string
	fileName string
	archive  string
	actor    string
}

func sendCmd() *cobra.Command {
	var o sendOptions
	cmd := &cobra.Command{
		Use:   "send",
		Short: "Deliver one message through the relay pipeline",
		Long: `Sends a single message with the configured rewrite rules, filters and
fallback. An attachment is referenced by its Telegram file id; --archive
names a local copy to stamp after delivery.`,
		Example: `  tgrelay send --chat -1001234 --text "hello"
  tgrelay send --chat -1001234 --thread 7 --file-id BQAC... --kind document --text "report"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSend(cmd, o)
		},
	}
	f := cmd.Flags()
	f.Int64Var(&o.chatID, "chat", 0, "destination chat id")
	f.IntVar(&o.threadID, "thread", 0, "forum topic thread id")
	f.IntVar(&o.replyTo, "reply-to", 0, "message id to reply to in the destination chat")
	f.StringVar(&o.text, "text", "", "message text or caption")
	f.StringVar(&o.fileID, "file-id", "", "existing Telegram file id to attach")
	f.StringVar(&o.kind, "kind", string(relay.MediaDocument), "attachment kind (document, photo, video, audio, voice, animation, sticker)")
	f.StringVar(&o.fileName, "file-name", "", "attachment file name")
	f.StringVar(&o.archive, "archive", "", "local copy of the attachment to stamp after delivery")
	f.StringVar(&o.actor, "actor", "", "sender name used in the stamped file name")
	_ = cmd.MarkFlagRequired("chat")
	return cmd
}

func (o sendOptions) message() (relay.Message, error) {
	msg := relay.Message{Text: o.text, ReplyTo: o.replyTo}
	if o.fileID != "" {
		kind := relay.MediaKind(strings.ToLower(strings.TrimSpace(o.kind)))
		switch kind {
		case relay.MediaDocument, relay.MediaPhoto, relay.MediaVideo, relay.MediaAudio,
			relay.MediaVoice, relay.MediaAnimation, relay.MediaSticker:
		default:
			return relay.Message{}, fmt.Errorf("unknown attachment kind %q", o.kind)
		}
		msg.File = &relay.Media{FileID: o.fileID, Kind: kind, FileName: o.fileName}
	}
	if msg.File == nil && strings.TrimSpace(msg.Text) == "" {
		return relay.Message{}, errors.New("nothing to send: set --text or --file-id")
	}
	return msg, nil
}

func runSend(cmd *cobra.Command, o sendOptions) error {
	msg, err := o.message()
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := cliLogger()
	cfg, err := loadConfig(log, true)
	if err != nil {
		return err
	}
	tcfg, err := cfg.Telegram.Client()
	if err != nil {
		return err
	}
	client, err := telegram.New(tcfg, log)
	if err != nil {
		return err
	}
	stcfg, err := cfg.StorageOptions()
	if err != nil {
		return err
	}
	store, err := storage.Open(stcfg, log)
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
	}
	scfg, err := cfg.ServiceOptions()
	if err != nil {
		return err
	}
	scfg.Stamp = scfg.Stamp || o.archive != ""
	svc := service.New(scfg, service.Deps{Client: client, Log: log, Store: store})
	chain, filter, err := cfg.Transform.Compile()
	if err != nil {
		return fmt.Errorf("transform: %w", err)
	}
	svc.SetRules(chain, filter)

	res, err := svc.Send(ctx, service.Job{
		To:        relay.Peer{ChatID: o.chatID, ThreadID: o.threadID},
		Msg:       msg,
		LocalPath: o.archive,
		Actor:     o.actor,
	})
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "delivered message %d to chat %d", res.Ref.MessageID, res.Ref.ChatID)
	if res.Fallback {
		fmt.Fprint(out, " (fallback)")
	}
	fmt.Fprintln(out)
	return nil
}

