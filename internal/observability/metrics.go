package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides a centralized interface for collecting application metrics.
//
// The metrics system is built on Prometheus and tracks:
//   - Tool execution patterns and latencies
//   - Worker poll outcomes and task terminal states
//   - Callback delivery, split by path taken (inline, s3, summary-only)
//
// Usage:
//
//	metrics := observability.NewMetrics()
//	metrics.RecordPoll("task")
//	defer metrics.RecordToolExecution("private_search", "success", time.Since(start).Seconds())
type Metrics struct {
	// ToolExecutionCounter counts tool invocations.
	// Labels: tool_name, status (success|error|timeout)
	ToolExecutionCounter *prometheus.CounterVec

	// ToolExecutionDuration measures tool execution time in seconds.
	// Labels: tool_name
	ToolExecutionDuration *prometheus.HistogramVec

	// PollCounter counts worker poll outcomes.
	// Labels: outcome (task|idle|error)
	PollCounter *prometheus.CounterVec

	// TaskCounter counts tasks reaching a terminal state.
	// Labels: function, status (succeeded|failed|cancelled)
	TaskCounter *prometheus.CounterVec

	// TaskDuration measures dispatch-to-terminal task time in seconds.
	// Labels: function
	TaskDuration *prometheus.HistogramVec

	// CallbackCounter counts callback deliveries by path and outcome.
	// Labels: path (inline|s3|summary_only), status (success|error)
	CallbackCounter *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics with the default
// registry. Call once at startup; the /metrics endpoint serves them.
func NewMetrics() *Metrics {
	return &Metrics{
		ToolExecutionCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wizardd_tool_executions_total",
				Help: "Total number of tool executions by tool name and status",
			},
			[]string{"tool_name", "status"},
		),

		ToolExecutionDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "wizardd_tool_execution_duration_seconds",
				Help:    "Duration of tool executions in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
			},
			[]string{"tool_name"},
		),

		PollCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wizardd_worker_polls_total",
				Help: "Total number of worker polls by outcome",
			},
			[]string{"outcome"},
		),

		TaskCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wizardd_tasks_total",
				Help: "Total number of tasks reaching a terminal state",
			},
			[]string{"function", "status"},
		),

		TaskDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "wizardd_task_duration_seconds",
				Help:    "Dispatch-to-terminal task duration in seconds",
				Buckets: []float64{0.1, 1, 5, 30, 60, 300, 600, 1800, 3600},
			},
			[]string{"function"},
		),

		CallbackCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wizardd_callbacks_total",
				Help: "Total number of callback deliveries by path and status",
			},
			[]string{"path", "status"},
		),
	}
}

// RecordToolExecution records one tool invocation's outcome and duration.
func (m *Metrics) RecordToolExecution(toolName, status string, durationSeconds float64) {
	m.ToolExecutionCounter.WithLabelValues(toolName, status).Inc()
	m.ToolExecutionDuration.WithLabelValues(toolName).Observe(durationSeconds)
}

// RecordPoll records one worker poll outcome: "task" when work was handed
// out, "idle" on 204, "error" on a transient poll failure.
func (m *Metrics) RecordPoll(outcome string) {
	m.PollCounter.WithLabelValues(outcome).Inc()
}

// RecordTask records one task reaching its terminal state.
func (m *Metrics) RecordTask(function, status string, durationSeconds float64) {
	m.TaskCounter.WithLabelValues(function, status).Inc()
	m.TaskDuration.WithLabelValues(function).Observe(durationSeconds)
}

// RecordCallback records one callback delivery attempt by the path taken.
func (m *Metrics) RecordCallback(path, status string) {
	m.CallbackCounter.WithLabelValues(path, status).Inc()
}
