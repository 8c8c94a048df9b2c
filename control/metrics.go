// control/metrics.go
// Author: momentics <momentics@gmail.com>
//
// Prometheus telemetry for the event loop and the server runtime.
// All collectors register on the injected registry so tests and embedders
// never touch the global default.

package control

import (
	"time"

	"github.com/momentics/hioload-bridge/core/concurrency"
	"github.com/momentics/hioload-bridge/server"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "hioload_bridge"

// Metrics implements concurrency.Observer and the runtime's observer hooks.
type Metrics struct {
	registry *prometheus.Registry

	commandsEnqueued *prometheus.CounterVec
	commandsExecuted *prometheus.CounterVec
	commandPanics    *prometheus.CounterVec
	commandDuration  *prometheus.HistogramVec
	queueDepth       prometheus.Gauge
	loopRunning      prometheus.Gauge

	serversLive        prometheus.Gauge
	bindFailures       prometheus.Counter
	connectionsOpen    prometheus.Gauge
	connectionsTotal   prometheus.Counter
	messagesSent       *prometheus.CounterVec
	bytesSent          prometheus.Counter
	sendDropped        prometheus.Counter
	payloadOutstanding prometheus.Gauge
}

// NewMetrics registers all collectors on reg. A nil reg gets a private
// registry.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		commandsEnqueued: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "loop",
			Name:      "commands_enqueued_total",
			Help:      "Commands pushed onto the loop queue.",
		}, []string{"kind"}),
		commandsExecuted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "loop",
			Name:      "commands_executed_total",
			Help:      "Commands executed by the loop.",
		}, []string{"kind"}),
		commandPanics: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "loop",
			Name:      "command_panics_total",
			Help:      "Commands that panicked during execution.",
		}, []string{"kind"}),
		commandDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "loop",
			Name:      "command_duration_seconds",
			Help:      "Execution time of a single command.",
			Buckets:   []float64{.00001, .00005, .0001, .0005, .001, .005, .01, .05, .1},
		}, []string{"kind"}),
		queueDepth: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "loop",
			Name:      "queue_depth",
			Help:      "Commands waiting after the last drain.",
		}),
		loopRunning: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "loop",
			Name:      "running",
			Help:      "1 while the event loop goroutine is alive.",
		}),
		serversLive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "server",
			Name:      "live",
			Help:      "Servers currently bound.",
		}),
		bindFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "server",
			Name:      "bind_failures_total",
			Help:      "CreateServer calls that failed to bind.",
		}),
		connectionsOpen: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "conn",
			Name:      "open",
			Help:      "Connections currently open.",
		}),
		connectionsTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "conn",
			Name:      "accepted_total",
			Help:      "Connections accepted.",
		}),
		messagesSent: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ws",
			Name:      "messages_sent_total",
			Help:      "Outbound WebSocket messages written.",
		}, []string{"type"}),
		bytesSent: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ws",
			Name:      "bytes_sent_total",
			Help:      "Outbound WebSocket payload bytes written.",
		}),
		sendDropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ws",
			Name:      "sends_dropped_total",
			Help:      "Sends discarded because the connection was gone.",
		}),
		payloadOutstanding: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ws",
			Name:      "payload_outstanding_bytes",
			Help:      "Bytes of outbound payload copies not yet released.",
		}),
	}
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) CommandEnqueued(k concurrency.Kind) {
	m.commandsEnqueued.WithLabelValues(k.String()).Inc()
}

func (m *Metrics) CommandExecuted(k concurrency.Kind, d time.Duration) {
	m.commandsExecuted.WithLabelValues(k.String()).Inc()
	m.commandDuration.WithLabelValues(k.String()).Observe(d.Seconds())
}

func (m *Metrics) CommandPanicked(k concurrency.Kind) {
	m.commandPanics.WithLabelValues(k.String()).Inc()
}

func (m *Metrics) QueueDepth(n int) { m.queueDepth.Set(float64(n)) }
func (m *Metrics) LoopStarted()     { m.loopRunning.Set(1) }
func (m *Metrics) LoopStopped()     { m.loopRunning.Set(0) }

func (m *Metrics) ServerBound()  { m.serversLive.Inc() }
func (m *Metrics) ServerClosed() { m.serversLive.Dec() }
func (m *Metrics) BindFailed()   { m.bindFailures.Inc() }

func (m *Metrics) ConnectionOpened() {
	m.connectionsOpen.Inc()
	m.connectionsTotal.Inc()
}

func (m *Metrics) ConnectionClosed() { m.connectionsOpen.Dec() }

func (m *Metrics) MessageSent(binary bool, n int) {
	typ := "text"
	if binary {
		typ = "binary"
	}
	m.messagesSent.WithLabelValues(typ).Inc()
	m.bytesSent.Add(float64(n))
}

func (m *Metrics) SendDropped() { m.sendDropped.Inc() }

// PayloadOutstanding matches pool.NewBytePool's change callback.
func (m *Metrics) PayloadOutstanding(n int64) { m.payloadOutstanding.Set(float64(n)) }

var (
	_ concurrency.Observer = (*Metrics)(nil)
	_ server.Observer      = (*Metrics)(nil)
)
