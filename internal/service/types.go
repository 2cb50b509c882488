package service

import (
	"errors"
	"time"

	"tgrelay/internal/relay"
)

var (
	ErrQueueFull = errors.New("relay queue full")
	ErrStopped   = errors.New("relay service stopped")
	ErrFiltered  = errors.New("message rejected by filter")
	ErrDuplicate = errors.New("message already relayed")
	// ErrCircuitOpen refuses jobs for a destination that keeps failing.
	ErrCircuitOpen = errors.New("destination circuit open")
)

// Config controls the delivery pipeline. Zero fields take defaults.
type Config struct {
	Workers     int           // default 2
	QueueSize   int           // default 256
	RatePerSec  int           // default 20
	SendTimeout time.Duration // per Deliver call; default 60s
	// SeenWindow suppresses relaying the same source message to the same
	// destination twice within the window. 0 disables it.
	SeenWindow time.Duration
	// Stamp renames Job.LocalPath after a successful delivery. With
	// ArchiveDir set, attachments of jobs without a LocalPath are first
	// saved there.
	Stamp      bool
	ArchiveDir string
	// CircuitTrip is the number of consecutive failures after which a
	// destination is paused. 0 means 5; negative disables the breaker.
	CircuitTrip int
	// CircuitCooldown is the first pause; it doubles per further failure
	// up to 2m. 0 means 5s.
	CircuitCooldown time.Duration
	// Routes drive Relay; Send and Enqueue ignore them.
	Routes []Route
}

// Route forwards messages seen in chat From to every peer in To.
type Route struct {
	From int64
	To   []relay.Peer
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 2
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
	if c.RatePerSec <= 0 {
		c.RatePerSec = 20
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = 60 * time.Second
	}
	if c.SeenWindow < 0 {
		c.SeenWindow = 0
	}
	if c.CircuitTrip == 0 {
		c.CircuitTrip = defaultCircuitTrip
	}
	if c.CircuitCooldown <= 0 {
		c.CircuitCooldown = defaultCircuitCooldown
	}
	return c
}

// Job is one message to relay.
type Job struct {
	ID  string // assigned at enqueue when empty
	To  relay.Peer
	Msg relay.Message
	// LocalPath is an optional on-disk copy of the attachment to archive.
	LocalPath string
	// Actor names the sender in stamped file names.
	Actor string
}

// DeliveryEvent is the Data of relay.* bus events.
type DeliveryEvent struct {
	JobID     string `json:"job_id"`
	ChatID    int64  `json:"chat_id"`
	ThreadID  int    `json:"thread_id,omitempty"`
	MessageID int    `json:"message_id,omitempty"`
	Class     string `json:"class,omitempty"`
	Stage     string `json:"stage,omitempty"`
	Path      string `json:"path,omitempty"`
	Error     string `json:"error,omitempty"`
}
