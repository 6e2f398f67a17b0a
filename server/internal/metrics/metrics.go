package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "livefeed"

// NewRegistry creates a registry with the Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return reg
}

// Handler serves the metrics gathered by reg.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

// GeneratorMetrics tracks the workload generator.
type GeneratorMetrics struct {
	Ticks        prometheus.Counter
	TickDuration prometheus.Histogram
	Operations   *prometheus.CounterVec // label: op
	EmptySkips   *prometheus.CounterVec // label: op
	Records      prometheus.Gauge
}

// NewGeneratorMetrics creates and registers generator metrics on reg.
func NewGeneratorMetrics(reg prometheus.Registerer) *GeneratorMetrics {
	m := &GeneratorMetrics{
		Ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "generator",
			Name:      "ticks_total",
			Help:      "Total number of mutation batches run.",
		}),
		TickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "generator",
			Name:      "tick_duration_seconds",
			Help:      "Time spent applying one mutation batch.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		}),
		Operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "generator",
			Name:      "operations_total",
			Help:      "Store mutations applied, by operation.",
		}, []string{"op"}),
		EmptySkips: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "generator",
			Name:      "empty_store_skips_total",
			Help:      "Delete or mutate operations skipped because the store was empty.",
		}, []string{"op"}),
		Records: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "records",
			Help:      "Number of records in the store after the last batch.",
		}),
	}

	reg.MustRegister(m.Ticks, m.TickDuration, m.Operations, m.EmptySkips, m.Records)
	return m
}

// HubMetrics tracks subscriber connections and event fan-out.
type HubMetrics struct {
	Subscribers      prometheus.Gauge
	EventsBroadcast  *prometheus.CounterVec // label: type
	MessagesReceived prometheus.Counter
	SlowDisconnects  prometheus.Counter
	RejectedUpgrades prometheus.Counter
}

// NewHubMetrics creates and registers hub metrics on reg.
func NewHubMetrics(reg prometheus.Registerer) *HubMetrics {
	m := &HubMetrics{
		Subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "subscribers",
			Help:      "Number of connected subscribers.",
		}),
		EventsBroadcast: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "events_broadcast_total",
			Help:      "Events fanned out to subscribers, by event type.",
		}, []string{"type"}),
		MessagesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "messages_received_total",
			Help:      "Inbound messages received from subscribers and ignored.",
		}),
		SlowDisconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "slow_disconnects_total",
			Help:      "Subscribers dropped because their send buffer was full.",
		}),
		RejectedUpgrades: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "rejected_upgrades_total",
			Help:      "WebSocket upgrade requests refused for targeting an unknown path.",
		}),
	}

	reg.MustRegister(m.Subscribers, m.EventsBroadcast, m.MessagesReceived, m.SlowDisconnects, m.RejectedUpgrades)
	return m
}

// HTTPMetrics tracks query API requests.
type HTTPMetrics struct {
	Requests *prometheus.CounterVec // labels: code, method
}

// NewHTTPMetrics creates and registers HTTP metrics on reg.
func NewHTTPMetrics(reg prometheus.Registerer) *HTTPMetrics {
	m := &HTTPMetrics{
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests served by the query API, by status code and method.",
		}, []string{"code", "method"}),
	}

	reg.MustRegister(m.Requests)
	return m
}

// Instrument wraps next so every response is counted.
func (m *HTTPMetrics) Instrument(next http.Handler) http.Handler {
	return promhttp.InstrumentHandlerCounter(m.Requests, next)
}
