package config

import "tgrelay/internal/transform"

type Config struct {
	Telegram  TelegramConfig  `json:"telegram"`
	Logging   LoggingConfig   `json:"logging"`
	Relay     RelayConfig     `json:"relay"`
	Transform TransformConfig `json:"transform"`
	Files     FilesConfig     `json:"files"`
	Storage   *StorageConfig  `json:"storage,omitempty"`
	Metrics   MetricsConfig   `json:"metrics"`
	Ingest    IngestConfig    `json:"ingest"`
}

type TelegramConfig struct {
	Token  string `json:"token"`
	APIURL string `json:"api_url,omitempty" validate:"omitempty,url"`
	// HTTPTimeout is a Go duration string (e.g. "30s").
	HTTPTimeout string `json:"http_timeout,omitempty"`
	// MaxDownloadMB caps fallback downloads. 0 means the Bot API limit (20).
	MaxDownloadMB int `json:"max_download_mb,omitempty" validate:"gte=0,lte=2000"`
}

type LoggingConfig struct {
	Level   string      `json:"level" validate:"omitempty,oneof=trace debug info warn warning error TRACE DEBUG INFO WARN WARNING ERROR"`
	Console bool        `json:"console"`
	JSON    bool        `json:"json,omitempty"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled   bool   `json:"enabled"`
	Path      string `json:"path"`
	MaxSizeMB int    `json:"max_size_mb,omitempty" validate:"gte=0"`
	Backups   int    `json:"backups,omitempty" validate:"gte=0"`
}

// RelayConfig controls the async delivery service.
//
// Defaults (when fields are omitted/zero):
//   - workers: 2
//   - queue_size: 256
//   - rate_per_sec: 20 (Telegram's global bot limit is ~30 msg/s)
//   - send_timeout: "60s"
//   - seen_window: "" (duplicate suppression off)
//   - circuit_trip: 5, circuit_cooldown: "5s"
type RelayConfig struct {
	Workers     int    `json:"workers,omitempty" validate:"gte=0,lte=64"`
	QueueSize   int    `json:"queue_size,omitempty" validate:"gte=0"`
	RatePerSec  int    `json:"rate_per_sec,omitempty" validate:"gte=0"`
	SendTimeout string `json:"send_timeout,omitempty"`
	SeenWindow  string `json:"seen_window,omitempty"`
	// Stamp renames stored attachments after delivery (see files.archive_dir).
	Stamp bool `json:"stamp,omitempty"`
	// CircuitTrip pauses a destination after this many consecutive
	// failures; -1 disables the breaker. Default 5.
	CircuitTrip     int    `json:"circuit_trip,omitempty" validate:"gte=-1"`
	CircuitCooldown string `json:"circuit_cooldown,omitempty"`
	// Routes maps source chats to destinations for messages submitted to
	// the ingest endpoint without an explicit destination.
	Routes []RouteConfig `json:"routes,omitempty" validate:"dive"`
}

// RouteConfig forwards every message seen in From to each chat in To.
//
//	routes:
//	  - { from: -1001111, to: [-1002222], thread: 7 }
type RouteConfig struct {
	From   int64   `json:"from" validate:"required"`
	To     []int64 `json:"to" validate:"required,min=1,dive,required"`
	Thread int     `json:"thread,omitempty" validate:"gte=0"`
}

// TransformConfig holds already-resolved rewrite rules and text filters.
//
// Styles maps a style name to one or two markup codes, e.g.
//
//	styles: { bold: ["<b>", "</b>"], mark: ["<u>", "</u>"] }
//
// If styles is omitted the built-in Telegram HTML table is used. StyleMode
// "html" (the default) sends styled text with HTML parsing and escapes the
// rest of it; "none" sends the markup as plain text.
type TransformConfig struct {
	Rules     []transform.Rule    `json:"rules,omitempty" validate:"dive"`
	Whitelist []transform.Rule    `json:"whitelist,omitempty"`
	Blacklist []transform.Rule    `json:"blacklist,omitempty"`
	Styles    map[string][]string `json:"styles,omitempty"`
	StyleMode string              `json:"style_mode,omitempty" validate:"omitempty,oneof=html none"`
}

// FilesConfig controls local attachment handling.
type FilesConfig struct {
	ArchiveDir string `json:"archive_dir,omitempty"`
	SessionDir string `json:"session_dir,omitempty"`
	// CleanupSchedule is a cron spec (5 or 6 fields, or a descriptor like "@hourly").
	CleanupSchedule string `json:"cleanup_schedule,omitempty"`
	// MaxAge is a Go duration string; archived files older than this are pruned.
	MaxAge string `json:"max_age,omitempty"`
}

// StorageConfig controls the optional delivery audit log.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./data/tgrelay.db" }
type StorageConfig struct {
	Driver      string `json:"driver" validate:"omitempty,oneof=none file sqlite sqlite3"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// IngestConfig enables POST /v1/messages on the metrics listener, where an
// upstream collector submits messages to relay.
type IngestConfig struct {
	Enabled bool   `json:"enabled"`
	Token   string `json:"token,omitempty" validate:"required_if=Enabled true"`
}

// MetricsConfig controls the HTTP listener. /metrics and /healthz are served
// when Enabled; the listener also starts for ingest alone.
type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty" validate:"omitempty,hostname_port"` // default: "127.0.0.1:9464"
	// Pprof mounts the Go profiler under /debug on the same listener.
	Pprof bool `json:"pprof,omitempty"`
}
