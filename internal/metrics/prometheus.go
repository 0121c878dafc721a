package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Model gateway metrics
	ModelCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aegis_model_calls_total",
			Help: "Total number of model backend invocations",
		},
		[]string{"role", "status"}, // status: success|error|timeout
	)

	ModelLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "aegis_model_latency_seconds",
			Help:    "Model invocation latency in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 20, 30},
		},
		[]string{"role"},
	)

	// Guardrail pipeline metrics
	GuardrailEvaluations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aegis_guardrail_stage_evaluations_total",
			Help: "Total number of guardrail stage evaluations",
		},
		[]string{"stage", "outcome"}, // outcome: allow|deny|failure
	)

	GuardrailVerdicts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aegis_guardrail_verdicts_total",
			Help: "Total pipeline verdicts by tool and result",
		},
		[]string{"tool", "result"}, // result: allowed|denied
	)

	// Tool metrics
	ToolExecutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aegis_tool_executions_total",
			Help: "Total number of tool executions",
		},
		[]string{"tool", "status"}, // status: success|error
	)

	// Conversation metrics
	TurnRoundTrips = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "aegis_turn_round_trips",
			Help:    "Planning/tool round-trips consumed per user turn",
			Buckets: []float64{1, 2, 3, 4, 6, 8, 12},
		},
		[]string{"outcome"}, // outcome: answered|budget_exceeded|failed
	)
)

// Register registers all metrics with the default registry
func Register() {
	prometheus.MustRegister(
		ModelCalls,
		ModelLatency,
		GuardrailEvaluations,
		GuardrailVerdicts,
		ToolExecutions,
		TurnRoundTrips,
	)
}

// Handler returns the HTTP handler for the metrics endpoint
func Handler() http.Handler {
	return promhttp.Handler()
}
