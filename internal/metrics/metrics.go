// Package metrics exposes monitor session telemetry as Prometheus metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/3leaps/spoolwatch/pkg/detect"
	"github.com/3leaps/spoolwatch/pkg/monitor"
)

const namespace = "spoolwatch"

// Collector records session telemetry. It implements monitor.Observer.
type Collector struct {
	registry *prometheus.Registry

	ticks          *prometheus.CounterVec
	events         *prometheus.CounterVec
	readErrors     *prometheus.CounterVec
	sinkErrors     *prometheus.CounterVec
	activeSessions prometheus.Gauge
	tickDuration   *prometheus.HistogramVec
}

var _ monitor.Observer = (*Collector)(nil)

// NewCollector creates a collector on its own registry, which also carries
// the Go and process collectors.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		ticks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_total",
			Help:      "Polling ticks completed per device.",
		}, []string{"device"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Lifecycle events delivered per device and kind.",
		}, []string{"device", "kind"}),
		readErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "read_errors_total",
			Help:      "Failed queue snapshot reads per device.",
		}, []string{"device"}),
		sinkErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sink_errors_total",
			Help:      "Event deliveries rejected by a sink per device.",
		}, []string{"device"}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Monitor sessions currently running.",
		}),
		tickDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tick_duration_seconds",
			Help:      "Time spent reading and diffing one tick.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"device"}),
	}

	c.registry.MustRegister(
		c.ticks,
		c.events,
		c.readErrors,
		c.sinkErrors,
		c.activeSessions,
		c.tickDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// Registry returns the registry metrics are registered on.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collector) SessionStarted(string) { c.activeSessions.Inc() }
func (c *Collector) SessionStopped(string) { c.activeSessions.Dec() }

func (c *Collector) TickCompleted(device string, took time.Duration) {
	c.ticks.WithLabelValues(device).Inc()
	c.tickDuration.WithLabelValues(device).Observe(took.Seconds())
}

func (c *Collector) EventDelivered(device string, kind detect.Kind) {
	c.events.WithLabelValues(device, string(kind)).Inc()
}

func (c *Collector) ReadFailed(device string) { c.readErrors.WithLabelValues(device).Inc() }
func (c *Collector) SinkFailed(device string) { c.sinkErrors.WithLabelValues(device).Inc() }
