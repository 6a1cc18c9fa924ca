package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides a centralized interface for collecting engine metrics.
//
// The metrics system is built on Prometheus and tracks:
//   - Scripts registered and sessions started
//   - Step-interpreter execution outcomes and latency
//   - Chat collaborator request performance
//   - Tool invocation patterns and latencies
//   - Error rates categorized by type and component
//
// Usage:
//
//	metrics := observability.NewMetrics()
//	metrics.ScriptRegistered()
//	metrics.RecordExecute("succeeded", time.Since(start).Seconds())
type Metrics struct {
	// ScriptsRegisteredTotal counts scripts registered for execution.
	ScriptsRegisteredTotal prometheus.Counter

	// SessionsStartedTotal counts sessions started from a registered script.
	SessionsStartedTotal prometheus.Counter

	// ExecuteCounter counts ExecuteNext/ExecuteMessage calls by outcome
	// (succeeded|failed|blocked).
	ExecuteCounter *prometheus.CounterVec

	// ExecuteDuration measures one execute call's wall time in seconds,
	// labeled by outcome.
	ExecuteDuration *prometheus.HistogramVec

	// ChatRequestDuration measures chat collaborator latency in seconds.
	// Labels: provider, model
	ChatRequestDuration *prometheus.HistogramVec

	// ChatRequestCounter counts chat collaborator calls.
	// Labels: provider, model, status (success|error)
	ChatRequestCounter *prometheus.CounterVec

	// ToolExecutionCounter counts tool invocations.
	// Labels: recipient, status (success|error)
	ToolExecutionCounter *prometheus.CounterVec

	// ToolExecutionDuration measures tool execution time in seconds.
	// Labels: recipient
	ToolExecutionDuration *prometheus.HistogramVec

	// PreflightBlockedTotal counts sessions blocked at start because a
	// script required a tool recipient with no registered collaborator.
	PreflightBlockedTotal prometheus.Counter

	// ErrorCounter tracks errors by component and error type.
	// Labels: component (service|exec|canon|wire|chat|tool), error_type
	ErrorCounter *prometheus.CounterVec

	// ActiveSessions is a gauge of sessions currently in a non-terminal
	// status, sampled by the caller.
	ActiveSessions prometheus.Gauge
}

// NewMetrics creates and registers all Prometheus metrics.
// This should be called once at application startup.
func NewMetrics() *Metrics {
	return &Metrics{
		ScriptsRegisteredTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "harmonix_scripts_registered_total",
			Help: "Total number of scripts registered",
		}),

		SessionsStartedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "harmonix_sessions_started_total",
			Help: "Total number of sessions started",
		}),

		ExecuteCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harmonix_execute_total",
				Help: "Total number of execute calls by outcome",
			},
			[]string{"outcome"},
		),

		ExecuteDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "harmonix_execute_duration_seconds",
				Help:    "Duration of one execute call in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
			},
			[]string{"outcome"},
		),

		ChatRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "harmonix_chat_request_duration_seconds",
				Help:    "Duration of chat collaborator requests in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"provider", "model"},
		),

		ChatRequestCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harmonix_chat_requests_total",
				Help: "Total number of chat collaborator requests by provider, model, and status",
			},
			[]string{"provider", "model", "status"},
		),

		ToolExecutionCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harmonix_tool_executions_total",
				Help: "Total number of tool executions by recipient and status",
			},
			[]string{"recipient", "status"},
		),

		ToolExecutionDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "harmonix_tool_execution_duration_seconds",
				Help:    "Duration of tool executions in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
			},
			[]string{"recipient"},
		),

		PreflightBlockedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "harmonix_preflight_blocked_total",
			Help: "Total number of session starts blocked by a missing tool recipient",
		}),

		ErrorCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harmonix_errors_total",
				Help: "Total number of errors by component and error type",
			},
			[]string{"component", "error_type"},
		),

		ActiveSessions: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "harmonix_active_sessions",
			Help: "Current number of sessions in a non-terminal status",
		}),
	}
}

// ScriptRegistered increments the scripts-registered counter.
func (m *Metrics) ScriptRegistered() {
	m.ScriptsRegisteredTotal.Inc()
}

// SessionStarted increments the sessions-started counter.
//
// Example:
//
//	metrics.SessionStarted()
func (m *Metrics) SessionStarted() {
	m.SessionsStartedTotal.Inc()
}

// RecordExecute records one execute call's outcome and duration.
//
// Example:
//
//	start := time.Now()
//	// ... run ExecuteNext ...
//	metrics.RecordExecute("succeeded", time.Since(start).Seconds())
func (m *Metrics) RecordExecute(outcome string, durationSeconds float64) {
	m.ExecuteCounter.WithLabelValues(outcome).Inc()
	m.ExecuteDuration.WithLabelValues(outcome).Observe(durationSeconds)
}

// RecordChatRequest records metrics for a chat collaborator request.
//
// Example:
//
//	start := time.Now()
//	// ... call GetAssistantReply ...
//	metrics.RecordChatRequest("anthropic", "claude-sonnet-4-20250514", "success", time.Since(start).Seconds())
func (m *Metrics) RecordChatRequest(provider, model, status string, durationSeconds float64) {
	m.ChatRequestCounter.WithLabelValues(provider, model, status).Inc()
	m.ChatRequestDuration.WithLabelValues(provider, model).Observe(durationSeconds)
}

// RecordToolExecution records metrics for a tool execution.
//
// Example:
//
//	start := time.Now()
//	// ... invoke the tool ...
//	metrics.RecordToolExecution("search", "success", time.Since(start).Seconds())
func (m *Metrics) RecordToolExecution(recipient, status string, durationSeconds float64) {
	m.ToolExecutionCounter.WithLabelValues(recipient, status).Inc()
	m.ToolExecutionDuration.WithLabelValues(recipient).Observe(durationSeconds)
}

// RecordPreflightBlocked increments the preflight-blocked counter.
func (m *Metrics) RecordPreflightBlocked() {
	m.PreflightBlockedTotal.Inc()
}

// RecordError increments the error counter for a given component and error type.
//
// Example:
//
//	metrics.RecordError("exec", "tool_timeout")
//	metrics.RecordError("chat", "auth_failed")
func (m *Metrics) RecordError(component, errorType string) {
	m.ErrorCounter.WithLabelValues(component, errorType).Inc()
}

// SetActiveSessions sets the current active-sessions gauge.
func (m *Metrics) SetActiveSessions(count int) {
	m.ActiveSessions.Set(float64(count))
}
