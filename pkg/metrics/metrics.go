package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "fireplace"

// Worker kinds used as label values.
const (
	WorkerSync  = "sync"
	WorkerAsync = "async"
)

// Request outcomes used as label values.
const (
	OutcomeOK        = "ok"
	OutcomeError     = "error"
	OutcomeMalformed = "malformed"
)

// Metrics holds the middleware metrics and their registry.
type Metrics struct {
	registry *prometheus.Registry

	requests         *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	itemsQueued      prometheus.Counter
	itemsForwarded   prometheus.Counter
	itemsDropped     *prometheus.CounterVec
	batchSize        prometheus.Histogram
	forcedFlushes    prometheus.Counter
	reconfigurations prometheus.Counter
	workersRunning   *prometheus.GaugeVec
	unitLoaded       *prometheus.GaugeVec
	productionErrors *prometheus.CounterVec
}

// New creates metrics registered on a fresh registry together with the Go
// runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "requests_total",
			Help:      "Requests handled by the sync worker",
		}, []string{"action", "outcome"}),

		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "request_duration_seconds",
			Help:      "Time from request receipt to response send",
			Buckets:   prometheus.DefBuckets,
		}, []string{"action"}),

		itemsQueued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "items_pushed_total",
			Help:      "Items pushed into the batching queue by drivers",
		}),

		itemsForwarded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "async",
			Name:      "items_forwarded_total",
			Help:      "Queue items sent on the outbound endpoint",
		}),

		itemsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "async",
			Name:      "items_dropped_total",
			Help:      "Messages that could not be sent",
		}, []string{"worker", "reason"}),

		batchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "async",
			Name:      "batch_size",
			Help:      "Items drained per queue release",
			Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		}),

		forcedFlushes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "async",
			Name:      "forced_flushes_total",
			Help:      "Releases forced after consecutive threshold timeouts",
		}),

		reconfigurations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "server",
			Name:      "reconfigurations_total",
			Help:      "Worker set reconfigurations triggered by unit loads",
		}),

		workersRunning: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "server",
			Name:      "workers_running",
			Help:      "Running workers by kind",
		}, []string{"worker"}),

		unitLoaded: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "module",
			Name:      "unit_loaded",
			Help:      "Processing unit load state (0=unloaded, 1=loaded)",
		}, []string{"module", "unit"}),

		productionErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "module",
			Name:      "production_errors_total",
			Help:      "Errors returned by a unit's async production loop",
		}, []string{"module", "unit"}),
	}

	m.registry.MustRegister(
		m.requests,
		m.requestDuration,
		m.itemsQueued,
		m.itemsForwarded,
		m.itemsDropped,
		m.batchSize,
		m.forcedFlushes,
		m.reconfigurations,
		m.workersRunning,
		m.unitLoaded,
		m.productionErrors,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the underlying Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// RequestHandled records one sync request with its outcome and duration.
func (m *Metrics) RequestHandled(action, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(action, outcome).Inc()
	m.requestDuration.WithLabelValues(action).Observe(seconds)
}

// ItemQueued records an item pushed by a driver.
func (m *Metrics) ItemQueued() {
	if m == nil {
		return
	}
	m.itemsQueued.Inc()
}

// BatchForwarded records a drained batch of n items, of which sent made it
// onto the wire.
func (m *Metrics) BatchForwarded(n, sent int) {
	if m == nil {
		return
	}
	m.batchSize.Observe(float64(n))
	m.itemsForwarded.Add(float64(sent))
}

// MessageDropped records a message the worker could not send.
func (m *Metrics) MessageDropped(worker, reason string) {
	if m == nil {
		return
	}
	m.itemsDropped.WithLabelValues(worker, reason).Inc()
}

// ForcedFlush records a release forced by consecutive timeouts.
func (m *Metrics) ForcedFlush() {
	if m == nil {
		return
	}
	m.forcedFlushes.Inc()
}

// Reconfigured records a worker set reconfiguration.
func (m *Metrics) Reconfigured() {
	if m == nil {
		return
	}
	m.reconfigurations.Inc()
}

// WorkerStarted marks a worker of the given kind running.
func (m *Metrics) WorkerStarted(worker string) {
	if m == nil {
		return
	}
	m.workersRunning.WithLabelValues(worker).Inc()
}

// WorkerStopped marks a worker of the given kind stopped.
func (m *Metrics) WorkerStopped(worker string) {
	if m == nil {
		return
	}
	m.workersRunning.WithLabelValues(worker).Dec()
}

// UnitLoaded sets the load state of a module's unit.
func (m *Metrics) UnitLoaded(module, unit string, loaded bool) {
	if m == nil {
		return
	}
	v := 0.0
	if loaded {
		v = 1
	}
	m.unitLoaded.WithLabelValues(module, unit).Set(v)
}

// ProductionError records an error from a unit's production loop.
func (m *Metrics) ProductionError(module, unit string) {
	if m == nil {
		return
	}
	m.productionErrors.WithLabelValues(module, unit).Inc()
}
