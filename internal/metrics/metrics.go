// Package metrics narrows bitechdev-ResolveSpec's Prometheus metrics
// provider down to the event-path counters a Bus needs: publish/process
// throughput, processing latency, in-flight queue depth, and handler
// panics. HTTP/DB/cache metrics from that provider have no analogue here
// and were not carried over.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector receives event-path measurements from a Bus. All methods must
// be safe for concurrent use and must never block the caller meaningfully.
type Collector interface {
	RecordEventPublished(topic string)
	RecordEventProcessed(topic, status string, d time.Duration)
	UpdateEventQueueSize(n int64)
	RecordPanic(seam string)
}

// NoopCollector discards every measurement. It is the Bus's default.
type NoopCollector struct{}

func (NoopCollector) RecordEventPublished(string)                       {}
func (NoopCollector) RecordEventProcessed(string, string, time.Duration) {}
func (NoopCollector) UpdateEventQueueSize(int64)                         {}
func (NoopCollector) RecordPanic(string)                                 {}

// PrometheusCollector implements Collector with a dedicated Prometheus
// registry (not the global default one, so multiple Buses in the same
// process don't collide on metric registration).
type PrometheusCollector struct {
	registry *prometheus.Registry

	eventsPublished *prometheus.CounterVec
	eventsProcessed *prometheus.CounterVec
	eventDuration   *prometheus.HistogramVec
	queueSize       prometheus.Gauge
	panicsTotal     *prometheus.CounterVec
}

// NewPrometheusCollector builds a PrometheusCollector whose metric names
// are prefixed with namespace (e.g. "neurobus").
func NewPrometheusCollector(namespace string) *PrometheusCollector {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &PrometheusCollector{
		registry: reg,
		eventsPublished: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Total number of events published.",
		}, []string{"topic"}),
		eventsProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_processed_total",
			Help:      "Total number of events that reached a terminal dispatch state.",
		}, []string{"topic", "status"}),
		eventDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "event_processing_duration_seconds",
			Help:      "Time from publish to terminal dispatch state.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"topic"}),
		queueSize: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "event_queue_size",
			Help:      "Number of publishes currently awaiting a terminal dispatch state.",
		}),
		panicsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handler_panics_total",
			Help:      "Total number of handler invocations that recovered from a panic.",
		}, []string{"seam"}),
	}
}

func (p *PrometheusCollector) RecordEventPublished(topic string) {
	p.eventsPublished.WithLabelValues(topic).Inc()
}

func (p *PrometheusCollector) RecordEventProcessed(topic, status string, d time.Duration) {
	p.eventsProcessed.WithLabelValues(topic, status).Inc()
	p.eventDuration.WithLabelValues(topic).Observe(d.Seconds())
}

func (p *PrometheusCollector) UpdateEventQueueSize(n int64) {
	p.queueSize.Set(float64(n))
}

func (p *PrometheusCollector) RecordPanic(seam string) {
	p.panicsTotal.WithLabelValues(seam).Inc()
}

// Handler exposes the collector's own registry for scraping.
func (p *PrometheusCollector) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}
