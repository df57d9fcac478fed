package telemetry

import (
	"net/http"
	"time"

	"github.com/NotCoffee418/panel_bridge/pkg/port_link"
	"github.com/NotCoffee418/panel_bridge/pkg/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "panel_bridge"

// Metrics holds the bridge collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	jobsEnqueued *prometheus.CounterVec
	jobsRejected *prometheus.CounterVec
	jobsFinished *prometheus.CounterVec
	jobDuration  *prometheus.HistogramVec
	queueDepth   prometheus.Gauge
	jobRunning   prometheus.Gauge
	wsClients    prometheus.Gauge
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		jobsEnqueued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_enqueued_total",
			Help:      "Jobs accepted into the queue",
		}, []string{"kind"}),
		jobsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_rejected_total",
			Help:      "Jobs rejected because the queue was full",
		}, []string{"kind"}),
		jobsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_finished_total",
			Help:      "Jobs that reached a terminal status",
		}, []string{"kind", "status"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Time from claim to terminal status",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"kind"}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Jobs waiting for the worker",
		}),
		jobRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "job_running",
			Help:      "1 while the worker holds a job",
		}),
		wsClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "websocket_clients",
			Help:      "Connected job event subscribers",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.jobsEnqueued,
		m.jobsRejected,
		m.jobsFinished,
		m.jobDuration,
		m.queueDepth,
		m.jobRunning,
		m.wsClients,
	)
	return m
}

// RegisterLink exposes the serial link counters.
func (m *Metrics) RegisterLink(link *port_link.LinkMetrics) {
	counter := func(name, help string, load func() uint64) prometheus.Collector {
		return prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "serial",
			Name:      name,
			Help:      help,
		}, func() float64 { return float64(load()) })
	}

	m.registry.MustRegister(
		counter("opens_total", "Successful port opens", link.OpenCount.Load),
		counter("reconnects_total", "Reconnects after a transport failure", link.ReconnectCount.Load),
		counter("transport_errors_total", "Transport failures on open, read or write", link.TransportErrs.Load),
		counter("bytes_sent_total", "Bytes written to the panel", link.BytesSent.Load),
		counter("bytes_received_total", "Bytes read from the panel", link.BytesReceived.Load),
	)
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) JobEnqueued(kind types.JobKind) {
	m.jobsEnqueued.WithLabelValues(kindLabel(kind)).Inc()
}

func (m *Metrics) JobRejected(kind types.JobKind) {
	m.jobsRejected.WithLabelValues(kindLabel(kind)).Inc()
}

func (m *Metrics) JobStarted(types.JobKind) {
	m.jobRunning.Set(1)
}

func (m *Metrics) JobFinished(kind types.JobKind, status types.JobStatus, elapsed time.Duration) {
	m.jobRunning.Set(0)
	m.jobsFinished.WithLabelValues(kindLabel(kind), string(status)).Inc()
	m.jobDuration.WithLabelValues(kindLabel(kind)).Observe(elapsed.Seconds())
}

func (m *Metrics) QueueDepth(depth int) {
	m.queueDepth.Set(float64(depth))
}

func (m *Metrics) ClientConnected() {
	m.wsClients.Inc()
}

func (m *Metrics) ClientDisconnected() {
	m.wsClients.Dec()
}

// Enqueue by id does not know the kind.
func kindLabel(kind types.JobKind) string {
	if kind == "" {
		return "unknown"
	}
	return string(kind)
}
