package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// If Driver is empty or "none", storage is disabled and Open returns nil.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// DeliveryRecord is one row of the delivery log.
type DeliveryRecord struct {
	ID          string    `json:"id"`
	At          time.Time `json:"at"`
	SourceChat  int64     `json:"source_chat,omitempty"`
	SourceMsg   int       `json:"source_msg,omitempty"`
	ChatID      int64     `json:"chat_id"`
	ThreadID    int       `json:"thread_id,omitempty"`
	MessageID   int       `json:"message_id,omitempty"`
	FileType    string    `json:"file_type"`
	Class       string    `json:"class"`
	Stage       string    `json:"stage,omitempty"`
	Attempts    int       `json:"attempts"`
	Fallback    bool      `json:"fallback,omitempty"`
	Error       string    `json:"error,omitempty"`
	TookMS      int64     `json:"took_ms"`
	Transformed bool      `json:"transformed,omitempty"`
}

// OK reports whether the record describes a delivered message.
func (r DeliveryRecord) OK() bool { return r.Error == "" }
