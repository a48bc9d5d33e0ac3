package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "signalhub"

// Collector holds every signalhub Prometheus series.
//
// Thread Safety: All methods are safe for concurrent use.
type Collector struct {
	registry *prometheus.Registry

	signalsPublished     *prometheus.CounterVec
	notificationsDropped prometheus.Counter
	subscribers          prometheus.Gauge
	adapterPhase         *prometheus.GaugeVec
	adapterRetries       *prometheus.CounterVec
	adapterRetryDelay    *prometheus.GaugeVec
	sinkWrites           *prometheus.CounterVec

	// phases remembers each adapter's current phase so the previous
	// phase gauge can be cleared on transition.
	phases   map[string]string
	phasesMu sync.Mutex
}

// New creates a Collector registered on a fresh registry that also carries
// the Go runtime and process collectors.
func New() *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return NewWithRegistry(reg)
}

// NewWithRegistry creates a Collector registered on reg.
// Tests pass a bare registry to inspect values in isolation.
func NewWithRegistry(reg *prometheus.Registry) *Collector {
	f := promauto.With(reg)
	return &Collector{
		registry: reg,
		signalsPublished: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "signals_published_total",
				Help:      "Signal changes accepted by the store, by owning adapter.",
			},
			[]string{"source"},
		),
		notificationsDropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_dropped_total",
			Help:      "Notifications discarded because a subscriber buffer was full.",
		}),
		subscribers: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "subscribers",
			Help:      "Open store subscriptions.",
		}),
		adapterPhase: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "adapter_phase",
				Help:      "1 for the adapter's current lifecycle phase, 0 otherwise.",
			},
			[]string{"adapter", "phase"},
		),
		adapterRetries: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "adapter_retries_total",
				Help:      "Failed adapter attempts that entered retry wait.",
			},
			[]string{"adapter"},
		),
		adapterRetryDelay: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "adapter_retry_delay_seconds",
				Help:      "Most recent backoff delay per adapter.",
			},
			[]string{"adapter"},
		),
		sinkWrites: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sink_writes_total",
				Help:      "Signals handed to downstream sinks, by result.",
			},
			[]string{"sink", "result"},
		),
		phases: make(map[string]string),
	}
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Handler returns the /metrics HTTP handler.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// SignalPublished implements store.Observer.
func (c *Collector) SignalPublished(source string) {
	c.signalsPublished.WithLabelValues(source).Inc()
}

// NotificationDropped implements store.Observer.
func (c *Collector) NotificationDropped() {
	c.notificationsDropped.Inc()
}

// SubscribersChanged implements store.Observer.
func (c *Collector) SubscribersChanged(count int) {
	c.subscribers.Set(float64(count))
}

// AdapterPhase implements lifecycle.Observer.
func (c *Collector) AdapterPhase(adapter, phase string) {
	c.phasesMu.Lock()
	defer c.phasesMu.Unlock()

	if prev, ok := c.phases[adapter]; ok && prev != phase {
		c.adapterPhase.WithLabelValues(adapter, prev).Set(0)
	}
	c.adapterPhase.WithLabelValues(adapter, phase).Set(1)
	c.phases[adapter] = phase
}

// AdapterRetry implements lifecycle.Observer.
func (c *Collector) AdapterRetry(adapter string, delay time.Duration) {
	c.adapterRetries.WithLabelValues(adapter).Inc()
	c.adapterRetryDelay.WithLabelValues(adapter).Set(delay.Seconds())
}

// SinkWrite implements sink.Observer and history.Observer.
func (c *Collector) SinkWrite(sink string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.sinkWrites.WithLabelValues(sink, result).Inc()
}
