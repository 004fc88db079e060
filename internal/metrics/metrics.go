// Package metrics exposes Prometheus telemetry for dispatch, the document
// store and periodic sweeps.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector owns a private registry so tests and multiple bots in one
// process never collide on the global one.
type Collector struct {
	registry *prometheus.Registry

	invocations       *prometheus.CounterVec
	invocationLatency *prometheus.HistogramVec
	unhandled         *prometheus.CounterVec
	storeOps          *prometheus.CounterVec
	sweepRuns         *prometheus.CounterVec
	sweepLatency      *prometheus.HistogramVec
	queueDepth        prometheus.Gauge
}

// NewCollector creates a collector. An empty namespace defaults to "guildbot".
func NewCollector(namespace string) *Collector {
	if namespace == "" {
		namespace = "guildbot"
	}

	c := &Collector{registry: prometheus.NewRegistry()}

	c.invocations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "invocations_total",
			Help:      "Action invocations by action and result",
		},
		[]string{"action", "result"},
	)

	c.invocationLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "invocation_duration_seconds",
			Help:      "Time spent inside action callbacks",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to ~8s
		},
		[]string{"action"},
	)

	c.unhandled = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "unhandled_total",
			Help:      "Events dropped because no action matched",
		},
		[]string{"kind"},
	)

	c.storeOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "operations_total",
			Help:      "Store facade operations by op and result",
		},
		[]string{"op", "result"},
	)

	c.sweepRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sweep",
			Name:      "runs_total",
			Help:      "Periodic job runs by job and result",
		},
		[]string{"job", "result"},
	)

	c.sweepLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "sweep",
			Name:      "duration_seconds",
			Help:      "Time taken by periodic jobs",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
		},
		[]string{"job"},
	)

	c.queueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "dispatch",
		Name:      "queue_depth",
		Help:      "Events waiting for the dispatch loop",
	})

	c.registry.MustRegister(
		c.invocations,
		c.invocationLatency,
		c.unhandled,
		c.storeOps,
		c.sweepRuns,
		c.sweepLatency,
		c.queueDepth,
	)

	return c
}

// Registry returns the underlying Prometheus registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collector) ObserveInvocation(action string, success bool, elapsed time.Duration) {
	c.invocations.WithLabelValues(action, result(success)).Inc()
	c.invocationLatency.WithLabelValues(action).Observe(elapsed.Seconds())
}

func (c *Collector) ObserveUnhandled(kind string) {
	c.unhandled.WithLabelValues(kind).Inc()
}

func (c *Collector) ObserveStoreOp(op string, ok bool) {
	c.storeOps.WithLabelValues(op, result(ok)).Inc()
}

func (c *Collector) ObserveSweep(job string, elapsed time.Duration, err error) {
	c.sweepRuns.WithLabelValues(job, result(err == nil)).Inc()
	c.sweepLatency.WithLabelValues(job).Observe(elapsed.Seconds())
}

func (c *Collector) SetQueueDepth(n int) {
	c.queueDepth.Set(float64(n))
}

func result(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}
