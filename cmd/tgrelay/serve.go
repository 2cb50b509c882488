package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"tgrelay/internal/config"
	"tgrelay/internal/eventbus"
	"tgrelay/internal/ingest"
	"tgrelay/internal/janitor"
	"tgrelay/internal/observability"
	rtsup "tgrelay/internal/runtime/supervisor"
	"tgrelay/internal/service"
	"tgrelay/internal/storage"
	"tgrelay/internal/transport/telegram"
	logx "tgrelay/pkg/logx"
	"tgrelay/pkg/systemd"
)

const shutdownTimeout = 10 * time.Second

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the relay daemon",
		Long: `Runs the relay service. Messages arrive on the ingest endpoint
(POST /v1/messages) and are delivered to an explicit destination or
along the routes of their source chat. The config file is watched and
relay settings, rewrite rules, filters, logging and cleanup settings
are applied without a restart.`,
		Args: cobra.NoArgs,
		RunE: runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logSvc, log := logx.New(logx.Config{Console: true, Level: logLevel})
	defer logSvc.Close()

	mgr := config.NewManager(configPath, log)
	cfg, err := mgr.Load()
	if err != nil {
		return err
	}
	logSvc.Apply(cfg.Logging.Logx())

	metrics := observability.NewMetrics()
	bus := eventbus.New()

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

	tcfg, err := cfg.Telegram.Client()
	if err != nil {
		return err
	}
	client, err := telegram.New(tcfg, log)
	if err != nil {
		return err
	}

	scfg, err := cfg.ServiceOptions()
	if err != nil {
		return err
	}
	svc := service.New(scfg, service.Deps{Client: client, Log: log, Bus: bus, Store: store, Metrics: metrics})
	chain, filter, err := cfg.Transform.Compile()
	if err != nil {
		return fmt.Errorf("transform: %w", err)
	}
	svc.SetRules(chain, filter)

	jcfg, err := cfg.Files.Janitor()
	if err != nil {
		return err
	}
	jan, err := janitor.New(jcfg, log, metrics)
	if err != nil {
		return err
	}

	sup := rtsup.New(ctx, rtsup.WithLogger(log))
	svc.Start(sup.Context())
	if err := jan.Start(sup.Context()); err != nil {
		return err
	}

	if cfg.Metrics.Enabled || cfg.Ingest.Enabled {
		srv, err := httpServer(cfg, metrics, svc, log)
		if err != nil {
			return err
		}
		sup.Go("http", srv.Run)
	}

	r := &reloader{log: log, logs: logSvc, svc: svc, jan: jan, bus: bus, current: cfg}
	reloads := mgr.Subscribe(4)
	defer mgr.Unsubscribe(reloads)
	sup.GoRestart("config.watch", mgr.Watch)
	sup.Go("config.apply", func(ctx context.Context) error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case next := <-reloads:
				r.apply(ctx, next)
			}
		}
	})

	sup.Go("systemd.status", func(ctx context.Context) error {
		reportStatus(ctx, bus, 30*time.Second)
		return nil
	})
	sup.Go("systemd.watchdog", func(ctx context.Context) error {
		return systemd.Watchdog(ctx, log, svc.Health)
	})

	if !cfg.Ingest.Enabled {
		log.Warn("ingest endpoint disabled; nothing will submit messages")
	}
	_, _ = systemd.Ready()
	log.Info("tgrelay started",
		logx.String("version", version),
		logx.Int("routes", len(cfg.Relay.Routes)),
		logx.Bool("metrics", cfg.Metrics.Enabled),
		logx.Bool("ingest", cfg.Ingest.Enabled))

	<-ctx.Done()
	_, _ = systemd.Stopping()
	log.Info("shutting down")

	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	svc.Stop(sctx)
	jan.Stop(sctx)
	if err := sup.Stop(sctx); err != nil {
		log.Warn("shutdown incomplete", logx.Err(err))
	}
	return nil
}

// httpServer builds the listener for metrics and ingest. Each half is
// mounted only when its section is enabled.
func httpServer(cfg *config.Config, m *observability.Metrics, svc *service.Service, log logx.Logger) (*observability.Server, error) {
	var mounts []observability.Mount
	if cfg.Ingest.Enabled {
		mounts = append(mounts, observability.Mount{Pattern: "/v1", Handler: ingest.Handler(svc, cfg.Ingest.Token, log)})
	}
	if !cfg.Metrics.Enabled {
		m = nil
	}
	scfg, err := cfg.HTTPServer()
	if err != nil {
		return nil, err
	}
	return observability.NewServer(scfg, m, svc, log, mounts...), nil
}

// reloader applies hot-reloaded config to the running components.
type reloader struct {
	log  logx.Logger
	logs *logx.Service
	svc  *service.Service
	jan  *janitor.Janitor
	bus  eventbus.Bus

	current *config.Config
}

func (r *reloader) apply(ctx context.Context, next *config.Config) []string {
	if next == nil {
		return nil
	}
	changed := config.ChangedSections(r.current, next)
	if len(changed) == 0 {
		return nil
	}
	_, _ = systemd.Reloading()
	defer func() { _, _ = systemd.Ready() }()

	if restart := config.RestartRequired(changed); len(restart) > 0 {
		r.log.Warn("config change needs a restart to take effect", logx.Strs("sections", restart))
	}
	if r.logs != nil {
		r.logs.Apply(next.Logging.Logx())
	}
	if scfg, err := next.ServiceOptions(); err != nil {
		r.log.Warn("relay config not applied", logx.Err(err))
	} else {
		r.svc.Apply(scfg)
	}
	if chain, filter, err := next.Transform.Compile(); err != nil {
		r.log.Warn("transform rules not applied", logx.Err(err))
	} else {
		r.svc.SetRules(chain, filter)
	}
	if jcfg, err := next.Files.Janitor(); err != nil {
		r.log.Warn("cleanup config not applied", logx.Err(err))
	} else if err := r.jan.Apply(ctx, jcfg); err != nil {
		r.log.Warn("cleanup config not applied", logx.Err(err))
	}

	r.current = next
	if r.bus != nil {
		r.bus.Publish(eventbus.Event{Type: eventbus.TypeConfig, Time: time.Now(), Data: changed})
	}
	return changed
}

// reportStatus keeps the systemd STATUS line current with delivery counts.
func reportStatus(ctx context.Context, bus eventbus.Bus, every time.Duration) {
	events, unsubscribe := bus.Subscribe(64, "relay.")
	defer unsubscribe()
	t := time.NewTicker(every)
	defer t.Stop()

	var delivered, fallbacks, failed, filtered uint64
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			switch e.Type {
			case eventbus.TypeDelivered:
				delivered++
			case eventbus.TypeFallback:
				delivered++
				fallbacks++
			case eventbus.TypeFailed:
				failed++
			case eventbus.TypeFiltered:
				filtered++
			}
		case <-t.C:
			_, _ = systemd.Status("relayed %d (fallback %d), failed %d, filtered %d", delivered, fallbacks, failed, filtered)
		}
	}
}
