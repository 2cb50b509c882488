package observability

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tgrelay/internal/storage"
	logx "tgrelay/pkg/logx"
)

// Reporter is what the HTTP endpoints read from the relay.
type Reporter interface {
	Health() error
	RecentDeliveries(ctx context.Context, limit int) ([]storage.DeliveryRecord, error)
}

type ServerConfig struct {
	Addr      string // default 127.0.0.1:9464
	Profiling bool   // mount net/http/pprof under /debug
	// WriteTimeout bounds a whole request, handler included; default 30s.
	// Mounts that deliver synchronously need it above their send timeout.
	WriteTimeout time.Duration
}

// Mount attaches an extra handler under Pattern, e.g. the ingest API.
type Mount struct {
	Pattern string
	Handler http.Handler
}

// NewHandler builds the router:
//
//	GET /metrics     Prometheus exposition
//	GET /healthz     200 or 503 with {"status": ...}
//	GET /deliveries  recent delivery log, ?limit=N (default 50, max 500)
//
// plus every mount.
func NewHandler(m *Metrics, rep Reporter, log logx.Logger, profiling bool, mounts ...Mount) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(requestLogger(log))
	r.Use(middleware.Recoverer)

	if m != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(m.Registry(), promhttp.HandlerOpts{}))
	}
	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		if rep != nil {
			if err := rep.Health(); err != nil {
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy", "error": err.Error()})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/deliveries", func(w http.ResponseWriter, req *http.Request) {
		if rep == nil {
			writeJSON(w, http.StatusOK, []storage.DeliveryRecord{})
			return
		}
		limit := 50
		if v := req.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a positive integer"})
				return
			}
			limit = min(n, 500)
		}
		recs, err := rep.RecentDeliveries(req.Context(), limit)
		switch {
		case errors.Is(err, storage.ErrDisabled):
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "storage disabled"})
		case err != nil:
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		default:
			if recs == nil {
				recs = []storage.DeliveryRecord{}
			}
			writeJSON(w, http.StatusOK, recs)
		}
	})
	if profiling {
		r.Mount("/debug", middleware.Profiler())
	}
	for _, mt := range mounts {
		if mt.Handler != nil {
			r.Mount(mt.Pattern, mt.Handler)
		}
	}
	return r
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func requestLogger(log logx.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			t0 := time.Now()
			next.ServeHTTP(ww, r)
			route := ""
			if rc := chi.RouteContext(r.Context()); rc != nil {
				route = rc.RoutePattern()
			}
			log.Debug("http",
				logx.String("method", r.Method),
				logx.String("route", route),
				logx.Int("status", ww.Status()),
				logx.Duration("took", time.Since(t0)),
			)
		})
	}
}

// Server serves the handler until its context ends.
type Server struct {
	cfg     ServerConfig
	handler http.Handler
	log     logx.Logger
}

func NewServer(cfg ServerConfig, m *Metrics, rep Reporter, log logx.Logger, mounts ...Mount) *Server {
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:9464"
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 30 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	log = log.Component("http")
	return &Server{cfg: cfg, handler: NewHandler(m, rep, log, cfg.Profiling, mounts...), log: log}
}

// Run listens on cfg.Addr and shuts down gracefully when ctx is canceled.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      s.cfg.WriteTimeout,
		IdleTimeout:       60 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	s.log.Info("http server listening", logx.String("addr", ln.Addr().String()))

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
