// Package metrics exposes Prometheus instrumentation for model invocations,
// tool execution, and turn processing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// LLMRequests counts model invocations by operation and outcome.
	LLMRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sidekick_llm_requests_total",
			Help: "Total LLM invocations by operation, status, and error type.",
		},
		[]string{"operation", "status", "error_type"},
	)

	// LLMRequestDuration observes wall-clock model invocation latency,
	// including retries.
	LLMRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sidekick_llm_request_duration_seconds",
			Help:    "LLM invocation latency in seconds, including retries.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"operation"},
	)

	// LLMRetries counts individual retry attempts by operation and error type.
	LLMRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sidekick_llm_retries_total",
			Help: "Total LLM retry attempts by operation and error type.",
		},
		[]string{"operation", "error_type"},
	)

	// ToolExecutions counts tool dispatches by tool and outcome.
	ToolExecutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sidekick_tool_executions_total",
			Help: "Total tool executions by tool, status, and error kind.",
		},
		[]string{"tool", "status", "error_kind"},
	)

	// ToolExecutionDuration observes per-tool execution latency.
	ToolExecutionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sidekick_tool_execution_duration_seconds",
			Help:    "Tool execution latency in seconds.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60},
		},
		[]string{"tool"},
	)

	// TurnCycles observes worker/evaluator cycles consumed per turn.
	TurnCycles = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sidekick_turn_cycles",
			Help:    "Worker/evaluator cycles consumed per turn.",
			Buckets: []float64{1, 2, 3, 4, 5, 8, 13, 21},
		},
	)

	// TurnsTotal counts processed turns by final outcome.
	TurnsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sidekick_turns_total",
			Help: "Total processed turns by outcome.",
		},
		[]string{"outcome"},
	)

	// ActiveSessions tracks the number of live sessions in the registry.
	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sidekick_active_sessions",
			Help: "Number of live sessions in the session registry.",
		},
	)
)

// Status label values.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)
