package relay

import (
	"context"
	"errors"

	logx "tgrelay/pkg/logx"
)

// Dispatcher delivers a single message with one primary attempt and at most
// one fallback attempt. It keeps no state between calls.
type Dispatcher struct {
	client Client
	log    logx.Logger
}

func NewDispatcher(client Client, log logx.Logger) *Dispatcher {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Dispatcher{client: client, log: log.Component("relay.dispatcher")}
}

// Deliver sends msg to the destination. The returned error, if any, is a *DeliveryError.
//
// Permission and ban failures of the primary attempt are returned as-is.
// Any other primary failure triggers exactly one fallback that forces
// document treatment; the fallback's failure replaces the primary one.
func (d *Dispatcher) Deliver(ctx context.Context, to Peer, msg Message) (Delivered, error) {
	if d == nil || d.client == nil {
		return Delivered{}, &DeliveryError{Class: ClassTransient, Stage: StagePrimary, Peer: to, Err: errors.New("relay: no client")}
	}
	if ctx == nil {
		ctx = context.Background()
	}

	log := d.log.With(logx.Chat(to.ChatID, to.ThreadID), logx.String("file_type", msg.FileType().String()))
	out := Outgoing{Text: msg.Text, Entities: msg.Entities, ParseMode: msg.ParseMode, ReplyTo: msg.ReplyTo}

	ref, err := d.primary(ctx, to, msg, out)
	class := Classify(err)
	switch {
	case class == ClassNone:
		return Delivered{Ref: ref, Attempts: 1}, nil
	case class == ClassPermissionDenied:
		log.Error("no permission to write in chat", logx.Err(err))
		return Delivered{}, &DeliveryError{Class: class, Stage: StagePrimary, Peer: to, Err: err}
	case class == ClassBanned:
		log.Error("banned from writing in chat", logx.Err(err))
		return Delivered{}, &DeliveryError{Class: class, Stage: StagePrimary, Peer: to, Err: err}
	}

	log.Warn("primary send failed; falling back to document send", logx.Err(err))
	out.ForceDocument = true
	ref, data, stage, err := d.fallback(ctx, to, msg, out)
	if err != nil {
		log.Error("failed to send message", logx.String("stage", string(stage)), logx.Err(err))
		return Delivered{}, &DeliveryError{Class: ClassFallback, Stage: stage, Peer: to, Err: err}
	}
	return Delivered{Ref: ref, Attempts: 2, Fallback: true, Data: data}, nil
}

func (d *Dispatcher) primary(ctx context.Context, to Peer, msg Message, out Outgoing) (MessageRef, error) {
	if msg.FileType() == NoFile {
		return d.client.SendMessage(ctx, to, out)
	}
	return d.client.SendFile(ctx, to, Upload{Media: msg.File}, out)
}

func (d *Dispatcher) fallback(ctx context.Context, to Peer, msg Message, out Outgoing) (MessageRef, []byte, Stage, error) {
	if msg.FileType() == NoFile {
		ref, err := d.client.SendMessage(ctx, to, out)
		return ref, nil, StageFallback, err
	}

	data, err := d.client.DownloadMedia(ctx, msg)
	if err != nil {
		return MessageRef{}, nil, StageDownload, err
	}
	ref, err := d.client.SendFile(ctx, to, Upload{Data: data, FileName: msg.File.FileName}, out)
	return ref, data, StageFallback, err
}
