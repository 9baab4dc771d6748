package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	agentAnswersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "salesdesk_agent_answers_total",
			Help: "Total number of agent answers by outcome (final, degraded, failed).",
		},
		[]string{"outcome"},
	)
	agentIterations = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "salesdesk_agent_iterations",
			Help:    "Model round trips needed per agent answer.",
			Buckets: []float64{1, 2, 3, 4, 5, 6, 8, 10},
		},
	)
	toolCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "salesdesk_tool_calls_total",
			Help: "Total number of tool calls requested by the model, by tool and outcome.",
		},
		[]string{"tool", "outcome"},
	)
	toolCallDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "salesdesk_tool_call_duration_seconds",
			Help:    "Tool handler latency.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"tool"},
	)
	sqlAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "salesdesk_sql_attempts_total",
			Help: "Total number of generated SQL attempts by status (ok, rejected, failed).",
		},
		[]string{"status"},
	)
	sqlRepairExhaustedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "salesdesk_sql_repair_exhausted_total",
			Help: "Total number of questions that failed after every repair attempt.",
		},
	)
	suggestionFallbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "salesdesk_suggestion_fallbacks_total",
			Help: "Total number of fallback suggestions substituted, by reason.",
		},
		[]string{"reason"},
	)
	completionLatencyMs = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "salesdesk_completion_latency_ms",
			Help:    "Completion service latency in milliseconds, by purpose.",
			Buckets: []float64{100, 250, 500, 1000, 2000, 4000, 8000, 16000, 32000},
		},
		[]string{"purpose"},
	)
	snapshotSectionFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "salesdesk_snapshot_section_failures_total",
			Help: "Total number of snapshot sections rendered empty because their query failed.",
		},
		[]string{"section"},
	)
)

func init() {
	prometheus.MustRegister(
		agentAnswersTotal,
		agentIterations,
		toolCallsTotal,
		toolCallDurationSeconds,
		sqlAttemptsTotal,
		sqlRepairExhaustedTotal,
		suggestionFallbacksTotal,
		completionLatencyMs,
		snapshotSectionFailuresTotal,
	)
}

func ObserveAgentAnswer(outcome string, iterations int) {
	agentAnswersTotal.WithLabelValues(outcome).Inc()
	if iterations > 0 {
		agentIterations.Observe(float64(iterations))
	}
}

func ObserveToolCall(tool, outcome string, elapsed time.Duration) {
	toolCallsTotal.WithLabelValues(tool, outcome).Inc()
	if elapsed > 0 {
		toolCallDurationSeconds.WithLabelValues(tool).Observe(elapsed.Seconds())
	}
}

func ObserveSQLAttempt(status string) {
	sqlAttemptsTotal.WithLabelValues(status).Inc()
}

func IncrementRepairExhausted() {
	sqlRepairExhaustedTotal.Inc()
}

func AddSuggestionFallbacks(reason string, count int) {
	if count <= 0 {
		return
	}
	suggestionFallbacksTotal.WithLabelValues(reason).Add(float64(count))
}

func ObserveCompletion(purpose string, elapsed time.Duration) {
	completionLatencyMs.WithLabelValues(purpose).Observe(float64(elapsed.Milliseconds()))
}

func IncrementSnapshotSectionFailure(section string) {
	snapshotSectionFailuresTotal.WithLabelValues(section).Inc()
}
