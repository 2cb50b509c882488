package config

import (
	"strings"
	"time"

	"tgrelay/internal/janitor"
	"tgrelay/internal/observability"
	"tgrelay/internal/relay"
	"tgrelay/internal/service"
	"tgrelay/internal/storage"
	"tgrelay/internal/transform"
	"tgrelay/internal/transport/telegram"
	logx "tgrelay/pkg/logx"
)

// The helpers below turn validated config sections into the option structs
// of the packages that consume them.

func (c LoggingConfig) Logx() logx.Config {
	return logx.Config{
		Level:   c.Level,
		Console: c.Console,
		JSON:    c.JSON,
		File:    logx.FileConfig(c.File),
	}
}

func (c TelegramConfig) Client() (telegram.Config, error) {
	timeout, err := ParseDurationOrDefault("telegram.http_timeout", c.HTTPTimeout, 30*time.Second)
	if err != nil {
		return telegram.Config{}, err
	}
	return telegram.Config{
		Token:       strings.TrimSpace(c.Token),
		APIURL:      strings.TrimSpace(c.APIURL),
		HTTPTimeout: timeout,
		MaxDownload: int64(c.MaxDownloadMB) << 20,
	}, nil
}

func (c RelayConfig) Service() (service.Config, error) {
	timeout, err := ParseDurationOrDefault("relay.send_timeout", c.SendTimeout, 60*time.Second)
	if err != nil {
		return service.Config{}, err
	}
	window, err := ParseDurationField("relay.seen_window", c.SeenWindow)
	if err != nil {
		return service.Config{}, err
	}
	cooldown, err := ParseDurationField("relay.circuit_cooldown", c.CircuitCooldown)
	if err != nil {
		return service.Config{}, err
	}
	return service.Config{
		Workers:     c.Workers,
		QueueSize:   c.QueueSize,
		RatePerSec:  c.RatePerSec,
		SendTimeout: timeout,
		SeenWindow:  window,
		Stamp:       c.Stamp,
		Routes:      c.routes(),

		CircuitTrip:     c.CircuitTrip,
		CircuitCooldown: cooldown,
	}, nil
}

// ServiceOptions is the relay section plus the archive directory that
// stamping saves attachments into.
func (c *Config) ServiceOptions() (service.Config, error) {
	sc, err := c.Relay.Service()
	if err != nil {
		return service.Config{}, err
	}
	sc.ArchiveDir = strings.TrimSpace(c.Files.ArchiveDir)
	return sc, nil
}

func (c RelayConfig) routes() []service.Route {
	if len(c.Routes) == 0 {
		return nil
	}
	out := make([]service.Route, 0, len(c.Routes))
	for _, r := range c.Routes {
		to := make([]relay.Peer, 0, len(r.To))
		for _, id := range r.To {
			to = append(to, relay.Peer{ChatID: id, ThreadID: r.Thread})
		}
		out = append(out, service.Route{From: r.From, To: to})
	}
	return out
}

// StyleTable returns the configured style table, or the HTML defaults.
func (c TransformConfig) StyleTable() (transform.StyleTable, error) {
	html := c.StyleMode != "none"
	if len(c.Styles) == 0 {
		return transform.DefaultStyleTable().WithHTML(html), nil
	}
	st, err := transform.StyleTableFromPairs(c.Styles)
	if err != nil {
		return transform.StyleTable{}, err
	}
	return st.WithHTML(html), nil
}

// Compile builds the rewrite chain and the text filter.
func (c TransformConfig) Compile() (*transform.Chain, *transform.Filter, error) {
	styles, err := c.StyleTable()
	if err != nil {
		return nil, nil, err
	}
	chain, err := transform.NewChain(c.Rules, styles)
	if err != nil {
		return nil, nil, err
	}
	filter, err := transform.NewFilter(c.Whitelist, c.Blacklist)
	if err != nil {
		return nil, nil, err
	}
	return chain, filter, nil
}

func (c FilesConfig) Janitor() (janitor.Config, error) {
	maxAge, err := ParseDurationField("files.max_age", c.MaxAge)
	if err != nil {
		return janitor.Config{}, err
	}
	return janitor.Config{
		Schedule:   c.CleanupSchedule,
		ArchiveDir: c.ArchiveDir,
		MaxAge:     maxAge,
		SessionDir: c.SessionDir,
	}, nil
}

// StorageOptions returns the storage config; a nil section disables storage.
func (c *Config) StorageOptions() (storage.Config, error) {
	if c.Storage == nil {
		return storage.Config{}, nil
	}
	busy, err := ParseDurationField("storage.busy_timeout", c.Storage.BusyTimeout)
	if err != nil {
		return storage.Config{}, err
	}
	return storage.Config{Driver: c.Storage.Driver, Path: c.Storage.Path, BusyTimeout: busy}, nil
}

func (c MetricsConfig) Server() observability.ServerConfig {
	return observability.ServerConfig{Addr: c.Addr, Profiling: c.Pprof}
}

// HTTPServer is the metrics listener config with a write timeout that
// outlasts a synchronous ingest call: one send_timeout for delivery, one
// for archiving the attachment, plus a margin.
func (c *Config) HTTPServer() (observability.ServerConfig, error) {
	sc, err := c.ServiceOptions()
	if err != nil {
		return observability.ServerConfig{}, err
	}
	srv := c.Metrics.Server()
	srv.WriteTimeout = 2*sc.SendTimeout + 30*time.Second
	return srv, nil
}
