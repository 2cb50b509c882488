// Package janitor periodically prunes archived attachments and removes
// stale session files on a cron schedule.
package janitor

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"tgrelay/internal/files"
	"tgrelay/internal/observability"
	logx "tgrelay/pkg/logx"
)

// DefaultSchedule runs the sweep once an hour.
const DefaultSchedule = "@hourly"

var parser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ParseSchedule accepts 5 or 6 field cron specs and descriptors like "@daily".
func ParseSchedule(spec string) (cron.Schedule, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		spec = DefaultSchedule
	}
	s, err := parser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("cron %q: %w", spec, err)
	}
	return s, nil
}

type Config struct {
	Schedule   string
	ArchiveDir string        // pruned by MaxAge; empty skips pruning
	MaxAge     time.Duration // 0 disables pruning
	SessionDir string        // session files removed; empty skips
	Location   *time.Location
}

// Result summarizes one sweep.
type Result struct {
	Pruned   int
	Sessions int
}

type Janitor struct {
	mu      sync.Mutex
	cfg     Config
	log     logx.Logger
	metrics *observability.Metrics
	now     func() time.Time

	c *cron.Cron
}

func New(cfg Config, log logx.Logger, m *observability.Metrics) (*Janitor, error) {
	if _, err := ParseSchedule(cfg.Schedule); err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Janitor{cfg: cfg, log: log.Component("janitor"), metrics: m, now: time.Now}, nil
}

// Sweep runs one cleanup pass immediately. Missing directories are skipped.
func (j *Janitor) Sweep(ctx context.Context) (Result, error) {
	j.mu.Lock()
	cfg := j.cfg
	j.mu.Unlock()

	var (
		res  Result
		errs []error
	)
	if err := ctx.Err(); err != nil {
		return res, err
	}
	if cfg.ArchiveDir != "" && cfg.MaxAge > 0 {
		n, err := files.Prune(j.log, cfg.ArchiveDir, cfg.MaxAge, j.now())
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, fmt.Errorf("prune %s: %w", cfg.ArchiveDir, err))
		}
		res.Pruned = n
		j.metrics.AddPruned(n)
	}
	if cfg.SessionDir != "" {
		n, err := files.CleanSessionFiles(j.log, cfg.SessionDir)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, fmt.Errorf("sessions %s: %w", cfg.SessionDir, err))
		}
		res.Sessions = n
	}
	if res.Pruned > 0 || res.Sessions > 0 {
		j.log.Info("cleanup sweep", logx.Int("pruned", res.Pruned), logx.Int("sessions", res.Sessions))
	}
	return res, errors.Join(errs...)
}

// Start schedules Sweep. It is idempotent; Stop undoes it.
func (j *Janitor) Start(ctx context.Context) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.c != nil {
		return nil
	}
	loc := j.cfg.Location
	if loc == nil {
		loc = time.Local
	}
	c := cron.New(cron.WithParser(parser), cron.WithLocation(loc))
	spec := strings.TrimSpace(j.cfg.Schedule)
	if spec == "" {
		spec = DefaultSchedule
	}
	if _, err := c.AddFunc(spec, func() {
		if _, err := j.Sweep(ctx); err != nil {
			j.log.Warn("cleanup sweep failed", logx.Err(err))
		}
	}); err != nil {
		return err
	}
	c.Start()
	j.c = c
	j.log.Debug("janitor scheduled", logx.String("schedule", spec))
	return nil
}

// Apply replaces the config; a running schedule is restarted with it.
func (j *Janitor) Apply(ctx context.Context, cfg Config) error {
	if _, err := ParseSchedule(cfg.Schedule); err != nil {
		return err
	}
	j.mu.Lock()
	running := j.c != nil
	j.cfg = cfg
	j.mu.Unlock()
	if !running {
		return nil
	}
	j.Stop(ctx)
	return j.Start(ctx)
}

// Stop cancels the schedule and waits for a running sweep or ctx.
func (j *Janitor) Stop(ctx context.Context) {
	j.mu.Lock()
	c := j.c
	j.c = nil
	j.mu.Unlock()
	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
}
