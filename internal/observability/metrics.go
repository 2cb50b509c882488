// Package observability exposes relay metrics over HTTP.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "tgrelay"

// Metrics holds the relay collectors on a private registry, so tests and
// multiple instances never collide on the global one.
type Metrics struct {
	reg *prometheus.Registry

	deliveries  *prometheus.CounterVec
	fallbacks   prometheus.Counter
	filtered    prometheus.Counter
	dropped     *prometheus.CounterVec
	transformEr prometheus.Counter
	duration    *prometheus.HistogramVec
	queueDepth  prometheus.Gauge
	pruned      prometheus.Counter
}

func NewMetrics() *Metrics {
	m := &Metrics{reg: prometheus.NewRegistry()}

	m.deliveries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "deliveries_total",
		Help:      "Deliveries by outcome class and file type.",
	}, []string{"class", "file_type"})
	m.fallbacks = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "fallbacks_total",
		Help:      "Deliveries that needed the force-document retry.",
	})
	m.filtered = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "filtered_total",
		Help:      "Messages rejected by the whitelist or blacklist.",
	})
	m.dropped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "dropped_total",
		Help:      "Messages not queued, by reason.",
	}, []string{"reason"})
	m.transformEr = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "transform_errors_total",
		Help:      "Rewrite rule failures (the original text is sent instead).",
	})
	m.duration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "delivery_duration_seconds",
		Help:      "Time spent in Deliver, including the fallback.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"class"})
	m.queueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "queue_depth",
		Help:      "Jobs waiting for a worker.",
	})
	m.pruned = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "files_pruned_total",
		Help:      "Files removed by the cleanup job.",
	})

	m.reg.MustRegister(
		m.deliveries, m.fallbacks, m.filtered, m.dropped, m.transformEr,
		m.duration, m.queueDepth, m.pruned,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the registry backing the /metrics endpoint.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Nil receivers are no-ops so callers can run without metrics.

func (m *Metrics) ObserveDelivery(class, fileType string, fallback bool, took time.Duration) {
	if m == nil {
		return
	}
	m.deliveries.WithLabelValues(class, fileType).Inc()
	m.duration.WithLabelValues(class).Observe(took.Seconds())
	if fallback {
		m.fallbacks.Inc()
	}
}

func (m *Metrics) IncFiltered() {
	if m != nil {
		m.filtered.Inc()
	}
}

func (m *Metrics) IncDropped(reason string) {
	if m != nil {
		m.dropped.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) IncTransformError() {
	if m != nil {
		m.transformEr.Inc()
	}
}

func (m *Metrics) SetQueueDepth(n int) {
	if m != nil {
		m.queueDepth.Set(float64(n))
	}
}

func (m *Metrics) AddPruned(n int) {
	if m != nil && n > 0 {
		m.pruned.Add(float64(n))
	}
}
