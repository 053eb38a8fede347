/*
Package metrics provides Prometheus metrics collection and exposition for
Cairn.

The metrics package defines and registers all Cairn metrics using the
Prometheus client library, providing observability into queue depth, agent
lifecycle progress, sandbox outcomes, LLM latency, merges, and signal
processing. Metrics are exposed via an HTTP endpoint for scraping, alongside
a component-health registry serving /healthz.

Call sites update metrics directly through package variables. There is no
metrics handle threaded through constructors; a subsystem that counts
something imports this package and increments. That keeps the hot paths
free of plumbing and makes the full metric surface visible in one file.

# Architecture

	┌──────────────────── METRICS SYSTEM ─────────────────────┐
	│                                                          │
	│  ┌────────────────────────────────────────────┐         │
	│  │          Prometheus Registry                │         │
	│  │  - Global DefaultRegistry                   │         │
	│  │  - MustRegister at package init             │         │
	│  │  - Automatic Go runtime metrics             │         │
	│  └──────────────────┬─────────────────────────┘         │
	│                     │                                    │
	│  ┌──────────────────▼─────────────────────────┐         │
	│  │           Metric Categories                 │         │
	│  │                                             │         │
	│  │  Queue: depth gauge                         │         │
	│  │  Agents: active gauge, by-state gauge,      │         │
	│  │          spawned/transition/cleanup totals  │         │
	│  │  Sandbox: executions by outcome, duration   │         │
	│  │  LLM: requests by status, duration          │         │
	│  │  Merge: merges, merged files                │         │
	│  │  Signals: processed by result               │         │
	│  └──────────────────┬─────────────────────────┘         │
	│                     │                                    │
	│  ┌──────────────────▼─────────────────────────┐         │
	│  │      HTTP endpoints (cairn up)              │         │
	│  │  - /metrics: promhttp.Handler()             │         │
	│  │  - /healthz: component health JSON          │         │
	│  └────────────────────────────────────────────┘         │
	└──────────────────────────────────────────────────────────┘

# Metric Reference

Gauges:
  - cairn_queue_depth: tasks waiting for dispatch
  - cairn_active_agents: agents with in-memory contexts
  - cairn_agents_by_state{state}: persisted records per lifecycle state

Counters:
  - cairn_agents_spawned_total
  - cairn_state_transitions_total{state}
  - cairn_agents_cleaned_total
  - cairn_sandbox_executions_total{outcome}: ok, syntax, runtime, timeout,
    memory, recursion, unknown
  - cairn_llm_requests_total{status}: ok, error
  - cairn_merges_total, cairn_merged_files_total
  - cairn_signals_processed_total{result}: ok, invalid, skipped, error

Histograms:
  - cairn_sandbox_execution_seconds
  - cairn_llm_request_seconds

# Usage

Recording a counter:

	metrics.StateTransitionsTotal.WithLabelValues(string(state)).Inc()

Timing an operation:

	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.SandboxExecutionDuration)

Exposing endpoints (done by cairn up):

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/healthz", metrics.HealthHandler())

# Component Health

Components report via SetHealthy/SetUnhealthy:

	metrics.SetHealthy("storage")
	metrics.SetUnhealthy("llm", "endpoint unreachable")

/healthz answers 503 while any reported component is failing; the response
body carries the per-component reasons alongside the build version and
process uptime. The orchestrator reports its stores and loops as they
start, the LLM client on every request.

Health state lives in a process-wide registry guarded by a mutex. A
component that never reports simply does not appear in the response;
absence is not failure.

# Failure Scenarios

LLM endpoint flapping:
  - Every request outcome updates the "llm" component, so /healthz
    tracks the most recent attempt
  - cairn_llm_requests_total{status="error"} accumulates the history
    the boolean health bit cannot carry

Scrape arrives while agents churn:
  - Counters are monotonic and safe under concurrent increments
  - Population gauges may lag up to one collector tick behind the live
    map; rate() and increase() over the counters stay exact

Watcher fails to start:
  - Start marks the "watcher" component unhealthy before returning the
    error, so a half-started service is visible to probes even though
    the process exits shortly after

# Performance Characteristics

  - Counter and gauge updates are lock-free atomics in the Prometheus
    client; label lookups hash the label value per call.
  - Histogram observations update a fixed bucket array; both histograms
    use the default Prometheus buckets, which span the 5ms to 10s range
    sandbox runs and LLM round trips land in.
  - /healthz serializes a small map under a read lock; it is safe for
    aggressive probe intervals.

# Integration Points

This package integrates with:

  - pkg/queue, pkg/worker: queue depth at enqueue and dispatch
  - pkg/orchestrator: spawn, transition, cleanup counters and the
    collector that refreshes population gauges
  - pkg/sandbox: execution outcomes and durations
  - pkg/codegen: LLM request counts and latencies
  - pkg/merge: merge and merged-file counters
  - pkg/signals: signal-processing results
  - cmd/cairn: mounts /metrics and /healthz in service mode

# Design Patterns

Package Variables + init Registration:
  - Metrics are package vars, registered once via MustRegister in init()
  - Call sites touch metrics directly; no handles passed around

Mutation-site Updates + Orchestrator Refresh:
  - Hot counters increment where the event happens
  - The orchestrator's collector loop re-derives the population gauges
    from its live state on a 15s tick

# See Also

  - pkg/log for the textual side of observability
  - pkg/events for in-process notification of the same transitions
  - Prometheus client: https://github.com/prometheus/client_golang
*/
package metrics
