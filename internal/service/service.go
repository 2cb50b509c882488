// Package service runs relay deliveries asynchronously: a bounded queue
// drained by a rate-limited worker pool, with rewrite rules and filters
// applied on the way to the dispatcher.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"tgrelay/internal/eventbus"
	"tgrelay/internal/files"
	"tgrelay/internal/observability"
	"tgrelay/internal/relay"
	rtsup "tgrelay/internal/runtime/supervisor"
	"tgrelay/internal/storage"
	"tgrelay/internal/transform"
	logx "tgrelay/pkg/logx"
)

// Deps are the collaborators of a Service. Only Client is required.
type Deps struct {
	Client  relay.Client
	Log     logx.Logger
	Bus     eventbus.Bus
	Store   storage.Store
	Metrics *observability.Metrics
	Stamper *files.Stamper
}

// Service is safe for concurrent use.
type Service struct {
	mu sync.Mutex

	log        logx.Logger
	client     relay.Client
	dispatcher *relay.Dispatcher
	bus        eventbus.Bus
	store      storage.Store
	metrics    *observability.Metrics
	stamper    *files.Stamper

	cfg     Config
	limiter *rate.Limiter
	chain   *transform.Chain
	filter  *transform.Filter
	routes  map[int64][]relay.Peer

	accepting bool
	sendWG    sync.WaitGroup
	queue     chan Job
	sup       *rtsup.Supervisor
	stopDone  chan struct{} // non-nil while stopping

	seenMu sync.Mutex
	seen   map[string]time.Time

	circuits *breaker
}

func New(cfg Config, deps Deps) *Service {
	log := deps.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	stamper := deps.Stamper
	if stamper == nil {
		stamper = files.NewStamper(log)
	}
	s := &Service{
		log:        log.Component("relay.service"),
		client:     deps.Client,
		dispatcher: relay.NewDispatcher(deps.Client, log),
		bus:        deps.Bus,
		store:      deps.Store,
		metrics:    deps.Metrics,
		stamper:    stamper,
		seen:       map[string]time.Time{},
		circuits:   newBreaker(),
	}
	s.applyLocked(cfg)
	return s
}

// Apply swaps pipeline settings. Queue size and worker count take effect on
// the next Start.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.applyLocked(cfg)
	s.mu.Unlock()
}

func (s *Service) applyLocked(cfg Config) {
	cfg = cfg.withDefaults()
	s.cfg = cfg
	s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
	s.routes = indexRoutes(cfg.Routes)
}

// SetRules installs a rewrite chain and filter; nil values disable them.
func (s *Service) SetRules(chain *transform.Chain, filter *transform.Filter) {
	s.mu.Lock()
	s.chain = chain
	s.filter = filter
	s.mu.Unlock()
}

// Start launches the workers. It is idempotent.
func (s *Service) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	if s.stopDone != nil {
		done := s.stopDone
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
			return
		}
		s.mu.Lock()
	}
	if s.queue != nil {
		s.mu.Unlock()
		return
	}
	s.queue = make(chan Job, s.cfg.QueueSize)
	s.accepting = true
	s.sup = rtsup.New(ctx, rtsup.WithLogger(s.log))
	sup, q, workers := s.sup, s.queue, s.cfg.Workers
	s.mu.Unlock()

	for i := 0; i < workers; i++ {
		sup.GoRestart(fmt.Sprintf("worker.%d", i), func(c context.Context) error {
			s.workerLoop(c, q)
			if s.stopping() || c.Err() != nil {
				return nil
			}
			return errors.New("relay worker exited unexpectedly")
		})
	}
	s.log.Info("relay service started", logx.Int("workers", workers), logx.Int("queue_size", cap(q)))
}

func (s *Service) stopping() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopDone != nil
}

// Stop closes intake and drains queued jobs until ctx ends, after which
// in-flight deliveries are canceled.
func (s *Service) Stop(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	q, sup := s.queue, s.sup
	if q == nil {
		s.mu.Unlock()
		return
	}
	if s.stopDone != nil {
		done := s.stopDone
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
		}
		return
	}
	done := make(chan struct{})
	s.stopDone = done
	s.accepting = false
	s.mu.Unlock()

	go func() {
		defer close(done)
		s.sendWG.Wait()
		close(q)
		_ = sup.Wait(context.Background())

		s.mu.Lock()
		s.queue = nil
		s.sup = nil
		s.stopDone = nil
		s.mu.Unlock()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		sup.Cancel()
		<-done
	}
	s.log.Info("relay service stopped")
}

// Enqueue validates j against the filter and the seen window and queues
// it. It returns the job ID.
func (s *Service) Enqueue(ctx context.Context, j Job) (string, error) {
	if ctx != nil {
		if err := ctx.Err(); err != nil {
			return "", err
		}
	}
	s.mu.Lock()
	if !s.accepting || s.queue == nil {
		s.mu.Unlock()
		return "", ErrStopped
	}
	q, filter, cfg := s.queue, s.filter, s.cfg
	s.sendWG.Add(1)
	s.mu.Unlock()
	defer s.sendWG.Done()

	if j.ID == "" {
		j.ID = uuid.NewString()
	}
	if err := s.admit(ctx, j, filter, cfg); err != nil {
		return j.ID, err
	}

	select {
	case q <- j:
		s.metrics.SetQueueDepth(len(q))
		s.publish(eventbus.TypeQueued, j, nil, relay.Delivered{})
		return j.ID, nil
	default:
		s.release(seenKey(j))
		s.metrics.IncDropped("queue_full")
		s.publish(eventbus.TypeDropped, j, ErrQueueFull, relay.Delivered{})
		return j.ID, ErrQueueFull
	}
}

// Send runs j through the pipeline synchronously, bypassing the queue.
func (s *Service) Send(ctx context.Context, j Job) (relay.Delivered, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if j.ID == "" {
		j.ID = uuid.NewString()
	}
	s.mu.Lock()
	filter, cfg := s.filter, s.cfg
	s.mu.Unlock()
	if err := s.admit(ctx, j, filter, cfg); err != nil {
		return relay.Delivered{}, err
	}
	return s.process(ctx, j)
}

func (s *Service) admit(ctx context.Context, j Job, filter *transform.Filter, cfg Config) error {
	if filter != nil {
		ok, err := filter.Allow(j.Msg.Text)
		if err != nil {
			return fmt.Errorf("filter: %w", err)
		}
		if !ok {
			s.metrics.IncFiltered()
			s.publish(eventbus.TypeFiltered, j, ErrFiltered, relay.Delivered{})
			return ErrFiltered
		}
	}
	if open, until := s.circuits.open(time.Now(), j.To.ChatID, cfg.CircuitTrip); open {
		s.metrics.IncDropped("circuit_open")
		s.publish(eventbus.TypeDropped, j, ErrCircuitOpen, relay.Delivered{})
		return fmt.Errorf("%w until %s", ErrCircuitOpen, until.Format(time.RFC3339))
	}
	// Last check: an admitted job holds its seen key until process
	// marks or releases it.
	if cfg.SeenWindow > 0 && !s.reserve(ctx, seenKey(j), cfg.SeenWindow) {
		s.metrics.IncDropped("duplicate")
		return ErrDuplicate
	}
	return nil
}

func (s *Service) workerLoop(ctx context.Context, q <-chan Job) {
	for {
		select {
		case <-ctx.Done():
			return
		case j, ok := <-q:
			if !ok {
				return
			}
			s.metrics.SetQueueDepth(len(q))
			// Failures are logged, audited and published by process.
			_, _ = s.process(ctx, j)
		}
	}
}

// process rewrites, delivers and records a single job.
func (s *Service) process(ctx context.Context, j Job) (relay.Delivered, error) {
	s.mu.Lock()
	cfg, lim, chain := s.cfg, s.limiter, s.chain
	s.mu.Unlock()

	key := seenKey(j)
	if err := lim.Wait(ctx); err != nil {
		s.release(key)
		return relay.Delivered{}, err
	}

	log := s.log.With(logx.String("job_id", j.ID), logx.Chat(j.To.ChatID, j.To.ThreadID))
	msg, transformed := s.rewrite(log, chain, j.Msg)

	callCtx, cancel := context.WithTimeout(ctx, cfg.SendTimeout)
	t0 := time.Now()
	res, err := s.dispatcher.Deliver(callCtx, j.To, msg)
	cancel()
	took := time.Since(t0)

	class := relay.ClassOf(err)
	var de *relay.DeliveryError
	fellBack := res.Fallback || (errors.As(err, &de) && de.Stage != relay.StagePrimary)
	s.metrics.ObserveDelivery(class.String(), msg.FileType().String(), fellBack, took)

	rec := storage.DeliveryRecord{
		ID:          j.ID,
		At:          t0,
		SourceChat:  j.Msg.Source.ChatID,
		SourceMsg:   j.Msg.Source.MessageID,
		ChatID:      j.To.ChatID,
		ThreadID:    j.To.ThreadID,
		MessageID:   res.Ref.MessageID,
		FileType:    msg.FileType().String(),
		Class:       class.String(),
		Attempts:    res.Attempts,
		Fallback:    res.Fallback,
		TookMS:      took.Milliseconds(),
		Transformed: transformed,
	}

	if err != nil {
		s.release(key)
		if de != nil {
			rec.Stage = string(de.Stage)
			rec.Attempts = 1
			if fellBack {
				rec.Attempts = 2
			}
		}
		rec.Fallback = fellBack
		rec.Error = err.Error()
		if ctx.Err() == nil && s.circuits.record(time.Now(), j.To.ChatID, cfg.CircuitTrip, cfg.CircuitCooldown, err) {
			log.Warn("destination paused after repeated failures", logx.String("class", class.String()))
		}
		s.audit(ctx, log, rec)
		s.publish(eventbus.TypeFailed, j, err, res)
		return res, err
	}

	s.circuits.record(time.Now(), j.To.ChatID, cfg.CircuitTrip, cfg.CircuitCooldown, nil)
	if cfg.SeenWindow > 0 {
		s.markSeen(ctx, key, time.Now().Add(cfg.SeenWindow))
	} else {
		s.release(key)
	}
	path := j.LocalPath
	if cfg.Stamp && path == "" && cfg.ArchiveDir != "" && msg.File != nil {
		path = s.archive(ctx, log, cfg, msg, res.Data)
	}
	if cfg.Stamp && path != "" {
		actor := strings.TrimSpace(j.Actor)
		if actor == "" {
			actor = "tgrelay"
		}
		// A failed stamp keeps the original path and is already logged.
		path, _ = s.stamper.Stamp(path, actor)
	}
	s.audit(ctx, log, rec)

	typ := eventbus.TypeDelivered
	if res.Fallback {
		typ = eventbus.TypeFallback
	}
	j.LocalPath = path
	s.publish(typ, j, nil, res)
	log.Debug("message relayed", logx.Int("attempts", res.Attempts), logx.Bool("fallback", res.Fallback), logx.Duration("took", took))
	return res, nil
}

// archive saves the attachment under cfg.ArchiveDir, reusing the bytes the
// fallback already downloaded. It returns "" when nothing was written.
func (s *Service) archive(ctx context.Context, log logx.Logger, cfg Config, msg relay.Message, data []byte) string {
	if data == nil {
		dctx, cancel := context.WithTimeout(ctx, cfg.SendTimeout)
		var err error
		data, err = s.client.DownloadMedia(dctx, msg)
		cancel()
		if err != nil {
			log.Warn("attachment not archived", logx.Err(err))
			return ""
		}
	}
	name := msg.File.FileName
	if strings.TrimSpace(name) == "" {
		name = msg.File.FileID
	}
	path, err := files.Save(cfg.ArchiveDir, name, data)
	if err != nil {
		log.Warn("attachment not archived", logx.Err(err))
		return ""
	}
	return path
}

// rewrite applies the chain to the message text. Entities are dropped when
// the text changes since their offsets no longer line up; styled output is
// sent as HTML. A failing rule leaves the message untouched.
func (s *Service) rewrite(log logx.Logger, chain *transform.Chain, msg relay.Message) (relay.Message, bool) {
	if chain.Len() == 0 || msg.Text == "" {
		return msg, false
	}
	text, markup, err := chain.Render(msg.Text)
	if err != nil {
		s.metrics.IncTransformError()
		log.Warn("rewrite failed; sending original text", logx.Err(err))
		return msg, false
	}
	if text == msg.Text {
		return msg, false
	}
	msg.Text = text
	msg.Entities = nil
	if markup {
		msg.ParseMode = relay.ParseHTML
	}
	return msg, true
}

func (s *Service) audit(ctx context.Context, log logx.Logger, rec storage.DeliveryRecord) {
	if s.store == nil {
		return
	}
	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := s.store.AppendDelivery(actx, rec); err != nil {
		log.Warn("delivery audit failed", logx.Err(err))
	}
}

func (s *Service) publish(typ string, j Job, err error, res relay.Delivered) {
	if s.bus == nil {
		return
	}
	ev := DeliveryEvent{
		JobID:     j.ID,
		ChatID:    j.To.ChatID,
		ThreadID:  j.To.ThreadID,
		MessageID: res.Ref.MessageID,
		Path:      j.LocalPath,
	}
	if err != nil {
		ev.Error = err.Error()
		var de *relay.DeliveryError
		if errors.As(err, &de) {
			ev.Class = de.Class.String()
			ev.Stage = string(de.Stage)
		}
	}
	s.bus.Publish(eventbus.Event{Type: typ, Data: ev})
}

// seenKey identifies a source message headed to a destination. Messages
// without a source ID are never deduplicated.
func seenKey(j Job) string {
	src := j.Msg.Source
	if src.MessageID == 0 {
		return ""
	}
	return fmt.Sprintf("%d:%d>%d:%d", src.ChatID, src.MessageID, j.To.ChatID, j.To.ThreadID)
}

// reserve claims key for window and reports whether the caller got it. A
// live mark in memory or in the store means the message was already
// relayed or is in flight.
func (s *Service) reserve(ctx context.Context, key string, window time.Duration) bool {
	if key == "" {
		return true
	}
	now := time.Now()
	s.seenMu.Lock()
	if until, ok := s.seen[key]; ok && now.Before(until) {
		s.seenMu.Unlock()
		return false
	}
	s.seen[key] = now.Add(window)
	s.seenMu.Unlock()

	if s.store == nil {
		return true
	}
	qctx := context.Background()
	if ctx != nil {
		qctx = ctx
	}
	qctx, cancel := context.WithTimeout(qctx, 100*time.Millisecond)
	defer cancel()
	until, ok, err := s.store.GetSeen(qctx, key)
	if err != nil || !ok || !now.Before(until) {
		return true
	}
	s.seenMu.Lock()
	s.seen[key] = until
	s.seenMu.Unlock()
	return false
}

// release drops a reservation that did not end in a delivery.
func (s *Service) release(key string) {
	if key == "" {
		return
	}
	s.seenMu.Lock()
	delete(s.seen, key)
	s.seenMu.Unlock()
}

const maxSeenEntries = 4096

func (s *Service) markSeen(ctx context.Context, key string, until time.Time) {
	if key == "" {
		return
	}
	now := time.Now()
	s.seenMu.Lock()
	s.seen[key] = until
	if len(s.seen) > maxSeenEntries {
		for k, u := range s.seen {
			if !now.Before(u) {
				delete(s.seen, k)
			}
		}
	}
	s.seenMu.Unlock()

	if s.store != nil {
		pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 250*time.Millisecond)
		defer cancel()
		if err := s.store.PutSeen(pctx, key, until); err != nil {
			s.log.Debug("seen mark not persisted", logx.String("key", key), logx.Err(err))
		}
	}
}

// Health reports whether the service is accepting work.
func (s *Service) Health() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.accepting || s.queue == nil {
		return ErrStopped
	}
	if s.sup != nil {
		return s.sup.Err()
	}
	return nil
}

// Circuits reports how many destinations the breaker tracks and how many
// are paused right now.
func (s *Service) Circuits() (tracked, open int) {
	return s.circuits.snapshot(time.Now())
}

// RecentDeliveries reads the delivery log, newest first.
func (s *Service) RecentDeliveries(ctx context.Context, limit int) ([]storage.DeliveryRecord, error) {
	if s.store == nil {
		return nil, storage.ErrDisabled
	}
	return s.store.RecentDeliveries(ctx, limit)
}

var _ observability.Reporter = (*Service)(nil)
