// Package observability exposes the runtime's Prometheus metrics: workflow
// executions, step and tool activity, LLM token spend and safety decisions.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles every instrument the runtime records into.
type Metrics struct {
	registry *prometheus.Registry

	ExecutionsTotal   *prometheus.CounterVec
	ExecutionDuration *prometheus.HistogramVec
	StepsTotal        *prometheus.CounterVec
	ToolCallsTotal    *prometheus.CounterVec
	LLMCallsTotal     *prometheus.CounterVec
	LLMTokensTotal    *prometheus.CounterVec
	SafetyBlocksTotal *prometheus.CounterVec
	ActiveSessions    prometheus.Gauge
}

// NewMetrics registers all instruments against a private registry so tests
// can build isolated instances.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,

		ExecutionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "nova_workflow_executions_total",
			Help: "Workflow executions by agent and terminal status.",
		}, []string{"agent_id", "status"}),

		ExecutionDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "nova_workflow_execution_duration_seconds",
			Help:    "Workflow execution wall time in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"agent_id"}),

		StepsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "nova_workflow_steps_total",
			Help: "Executed workflow steps by type and status.",
		}, []string{"type", "status"}),

		ToolCallsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "nova_tool_calls_total",
			Help: "Tool peer calls by tool id and outcome.",
		}, []string{"tool_id", "outcome"}),

		LLMCallsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "nova_llm_calls_total",
			Help: "LLM calls by provider and outcome.",
		}, []string{"provider", "outcome"}),

		LLMTokensTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "nova_llm_tokens_total",
			Help: "Token spend by provider and kind (prompt or completion).",
		}, []string{"provider", "kind"}),

		SafetyBlocksTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "nova_safety_blocks_total",
			Help: "Turns blocked by the safety gate, by stage.",
		}, []string{"stage"}),

		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "nova_active_sessions",
			Help: "Sessions currently held by the session manager.",
		}),
	}
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
