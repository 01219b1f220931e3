package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	ToolCalls        *prometheus.CounterVec
	TaskOps          *prometheus.CounterVec
	CommandRuns      *prometheus.CounterVec
	CommandLatency   prometheus.Histogram
	ProcessLaunches  *prometheus.CounterVec
	EventSubscribers prometheus.Gauge
	WSMessages       *prometheus.CounterVec
}

func NewMetrics(namespace string) *Metrics {
	return NewMetricsWith(namespace, prometheus.DefaultRegisterer)
}

// NewMetricsWith registers the instruments on reg; tests pass a fresh registry.
func NewMetricsWith(namespace string, reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ToolCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "MCP tool invocations by tool and outcome.",
		}, []string{"tool", "outcome"}),
		TaskOps: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "task_operations_total",
			Help:      "Task queue operations by operation and outcome.",
		}, []string{"op", "outcome"}),
		CommandRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "command_runs_total",
			Help:      "Shell command executions by failure kind (ok on success).",
		}, []string{"result"}),
		CommandLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "command_duration_ms",
			Help:      "Wall-clock duration of executed commands in milliseconds.",
			Buckets:   []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000},
		}),
		ProcessLaunches: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "process_launches_total",
			Help:      "Detached process launches by outcome.",
		}, []string{"outcome"}),
		EventSubscribers: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "task_event_subscribers",
			Help:      "Open task event subscriptions.",
		}),
		WSMessages: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_messages_total",
			Help:      "Task event websocket messages by direction, type and status.",
		}, []string{"direction", "type", "status"}),
	}
}

func (m *Metrics) ObserveToolCall(tool, outcome string) {
	if m == nil {
		return
	}
	m.ToolCalls.WithLabelValues(tool, outcome).Inc()
}

func (m *Metrics) ObserveTaskOp(op, outcome string) {
	if m == nil {
		return
	}
	m.TaskOps.WithLabelValues(op, outcome).Inc()
}

func (m *Metrics) ObserveCommand(result string, d time.Duration) {
	if m == nil {
		return
	}
	m.CommandRuns.WithLabelValues(result).Inc()
	m.CommandLatency.Observe(float64(d.Milliseconds()))
}

func (m *Metrics) ObserveLaunch(outcome string) {
	if m == nil {
		return
	}
	m.ProcessLaunches.WithLabelValues(outcome).Inc()
}

func (m *Metrics) AddEventSubscribers(delta int) {
	if m == nil {
		return
	}
	m.EventSubscribers.Add(float64(delta))
}

func (m *Metrics) ObserveWSMessage(direction, msgType, status string) {
	if m == nil {
		return
	}
	m.WSMessages.WithLabelValues(direction, msgType, status).Inc()
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
