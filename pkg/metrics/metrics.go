package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Queue metrics
	QueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "cairn_queue_depth",
			Help: "Number of tasks waiting in the priority queue",
		},
	)

	// Agent metrics
	ActiveAgents = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "cairn_active_agents",
			Help: "Number of agents with in-memory contexts",
		},
	)

	AgentsByState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cairn_agents_by_state",
			Help: "Number of persisted agents by lifecycle state",
		},
		[]string{"state"},
	)

	AgentsSpawnedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cairn_agents_spawned_total",
			Help: "Total number of agents created by queue commands",
		},
	)

	StateTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cairn_state_transitions_total",
			Help: "Total lifecycle state transitions by target state",
		},
		[]string{"state"},
	)

	AgentsCleanedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cairn_agents_cleaned_total",
			Help: "Total terminal agent records removed by cleanup",
		},
	)

	// Sandbox metrics
	SandboxExecutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cairn_sandbox_executions_total",
			Help: "Total sandbox runs by outcome (ok, syntax, runtime, timeout, memory, recursion, unknown)",
		},
		[]string{"outcome"},
	)

	SandboxExecutionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cairn_sandbox_execution_seconds",
			Help:    "Sandbox execution duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// LLM metrics
	LLMRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cairn_llm_requests_total",
			Help: "Total LLM requests by status (ok, error)",
		},
		[]string{"status"},
	)

	LLMRequestDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cairn_llm_request_seconds",
			Help:    "LLM request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Merge metrics
	MergesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cairn_merges_total",
			Help: "Total accepted-agent merges into stable",
		},
	)

	MergedFilesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cairn_merged_files_total",
			Help: "Total files copied into stable by merges",
		},
	)

	// Signal metrics
	SignalsProcessedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cairn_signals_processed_total",
			Help: "Total signal files processed by result (ok, invalid, skipped, error)",
		},
		[]string{"result"},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(QueueDepth)
	prometheus.MustRegister(ActiveAgents)
	prometheus.MustRegister(AgentsByState)
	prometheus.MustRegister(AgentsSpawnedTotal)
	prometheus.MustRegister(StateTransitionsTotal)
	prometheus.MustRegister(AgentsCleanedTotal)
	prometheus.MustRegister(SandboxExecutionsTotal)
	prometheus.MustRegister(SandboxExecutionDuration)
	prometheus.MustRegister(LLMRequestsTotal)
	prometheus.MustRegister(LLMRequestDuration)
	prometheus.MustRegister(MergesTotal)
	prometheus.MustRegister(MergedFilesTotal)
	prometheus.MustRegister(SignalsProcessedTotal)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
