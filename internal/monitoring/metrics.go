// Package monitoring - metrics.go exposes Prometheus collectors.
//
// DESIGN: One Metrics value per process, registered on its own registry so
// tests can build as many as they like:
//   - requests:      HTTP requests by route and status
//   - backend calls: outbound prediction calls by adapter and outcome
//   - tasks:         async submissions and completions by queue
//   - queues:        depth per queue and priority, busy workers per queue
//
// All methods are nil-safe so components can run without metrics.
package monitoring

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "prediction_gateway"

// Metrics holds the gateway's Prometheus collectors.
type Metrics struct {
	registry        *prometheus.Registry
	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	backendDuration *prometheus.HistogramVec
	tasksSubmitted  *prometheus.CounterVec
	tasksFinished   *prometheus.CounterVec
	queueDepth      *prometheus.GaugeVec
	workersBusy     *prometheus.GaugeVec
}

// NewMetrics registers the gateway collectors on reg. A nil reg gets a fresh
// registry that also carries the Go runtime and process collectors.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	m := &Metrics{
		registry: reg,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests handled by the gateway.",
		}, []string{"route", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Latency of HTTP requests handled by the gateway.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		backendDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "backend",
			Name:      "call_duration_seconds",
			Help:      "Duration of outbound prediction backend calls.",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}, []string{"adapter", "outcome"}),
		tasksSubmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "tasks",
			Name:      "submitted_total",
			Help:      "Async tasks accepted by the broker.",
		}, []string{"queue", "priority"}),
		tasksFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "tasks",
			Name:      "finished_total",
			Help:      "Async tasks that reached a terminal state.",
		}, []string{"queue", "state"}),
		queueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "queue",
			Name:      "depth",
			Help:      "Items waiting in each priority channel.",
		}, []string{"queue", "priority"}),
		workersBusy: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "workers",
			Name:      "busy",
			Help:      "Workers currently executing a task.",
		}, []string{"queue"}),
	}

	reg.MustRegister(
		m.requests,
		m.requestDuration,
		m.backendDuration,
		m.tasksSubmitted,
		m.tasksFinished,
		m.queueDepth,
		m.workersBusy,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// RecordRequest records a handled HTTP request.
func (m *Metrics) RecordRequest(route string, status int, latency time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(route, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(route).Observe(latency.Seconds())
}

// ObserveBackendCall records one outbound prediction call.
func (m *Metrics) ObserveBackendCall(adapter string, outcome Outcome, d time.Duration) {
	if m == nil {
		return
	}
	m.backendDuration.WithLabelValues(adapter, string(outcome)).Observe(d.Seconds())
}

// IncTaskSubmitted counts an accepted async submission.
func (m *Metrics) IncTaskSubmitted(queue string, priority int) {
	if m == nil {
		return
	}
	m.tasksSubmitted.WithLabelValues(queue, strconv.Itoa(priority)).Inc()
}

// IncTaskFinished counts a task reaching a terminal state.
func (m *Metrics) IncTaskFinished(queue, state string) {
	if m == nil {
		return
	}
	m.tasksFinished.WithLabelValues(queue, state).Inc()
}

// SetQueueDepth reports the depth of one priority channel.
func (m *Metrics) SetQueueDepth(queue string, priority, depth int) {
	if m == nil {
		return
	}
	m.queueDepth.WithLabelValues(queue, strconv.Itoa(priority)).Set(float64(depth))
}

// WorkerBusy marks a worker on queue as busy (true) or idle (false).
func (m *Metrics) WorkerBusy(queue string, busy bool) {
	if m == nil {
		return
	}
	if busy {
		m.workersBusy.WithLabelValues(queue).Inc()
		return
	}
	m.workersBusy.WithLabelValues(queue).Dec()
}
