/*
Package orchestrator composes every cairn subsystem into one process:
commands come in from the CLI or the signal directory, agents run
through the worker pool, and reviewed work merges into the shared
stable overlay.

The orchestrator owns the wiring; each subsystem stays ignorant of its
siblings. The queue does not know about overlays, the runner does not
know about signals, the merge engine does not know about the pool. The
orchestrator is the only package that sees all of them, and it is the
only writer of live agent contexts: every context is created here at
queue time, handed to the runner for the lifecycle, and dropped here at
trash time.

Two lifecycles matter. Initialize opens stores and runs crash recovery
but starts nothing, which is exactly what one-shot CLI commands need:
they submit against a passive orchestrator and exit. Start launches the
service loops on top. Stop tears down in reverse: intake stops first,
in-flight agents finish, then the loops and stores close.

# Architecture

	            ┌─────────────┐   ┌──────────────┐
	  CLI ────▶ │             │◀──│ signal files │ (<home>/signals)
	            │SubmitCommand│   └──────────────┘
	            │             │
	            └──────┬──────┘
	                   │ queue / accept / reject / status / list
	                   ▼
	     ┌──────────────────────────┐
	     │ priority queue ──▶ pool  │──▶ runner.Run (lifecycle)
	     └──────────────────────────┘         │
	                   │                      ▼
	                   │            ┌───────────────────┐
	                   │            │ per-agent overlay │
	                   │            └─────────┬─────────┘
	                   │        accept: merge │
	                   ▼                      ▼
	     ┌──────────────────────────────────────────┐
	     │ stable overlay  (lifecycle records, KV)  │◀── watcher (project tree)
	     └──────────────────────────────────────────┘

SubmitCommand is the single entry point shared by the CLI and the
signal adapter, so both surfaces get identical semantics. The stable
overlay is doubly loaded: it is the read-through base for every agent
layer, and its key/value buckets hold the lifecycle records.

# Core Components

Orchestrator:
  - The command entry point and owner of all live agent contexts
  - Implements the signal adapter's Submitter interface, so signal
    files and CLI flags converge on the same code path
  - Serializes review verdicts under a dedicated mutex so two
    concurrent accepts or an accept racing a reject cannot both pass
  - Mints agent IDs as "agent-" plus eight hex characters of a UUID

Collector:
  - Samples queue depth, live-context count, and per-state populations
    into Prometheus gauges every fifteen seconds
  - Collects once immediately on start so gauges are never blank

Snapshot:
  - A display-only JSON summary under <home>/state, rewritten through
    a temp-file rename after every command and lifecycle event
  - CLI invocations that cannot take the store lock read it instead;
    the lifecycle store stays authoritative

recover:
  - Rebuilds live contexts from the lifecycle store on Initialize
  - The only path by which persisted state becomes live again

CleanupOnce:
  - Sweeps terminal records older than the retention window together
    with their trashed overlay files and bin index entries

# Command Flow

A queue command:

 1. Validate the priority, defaulting to normal.
 2. Open a fresh overlay for the new agent ID. Opening at queue time
    means a crash between queue and dispatch leaves a recoverable
    backing file.
 3. Persist the initial lifecycle record in StateQueued.
 4. Register the live context and enqueue the agent ID.
 5. Publish EventAgentQueued and return the agent ID to the caller.

An accept or reject command:

 1. Under the review mutex: load the record, require StateReviewing,
    persist the verdict.
 2. Publish the accepted or rejected event.
 3. On accept only: reopen the agent overlay and merge its local
    writes into stable. A merge failure leaves the overlay out of the
    trash so the changes survive for manual salvage.
 4. Trash the agent: close the overlay, rename the backing behind the
    bin- prefix, update the record's overlay location, write the bin
    index entry, remove the review workspace, drop the live context.

Status reads the live context when one exists, since mid-transition
values are fresher than the last save, and falls back to the persisted
record. List returns the union of both, de-duplicated with the live
copy winning, ordered by creation time.

# Startup and Recovery

Start is layered on an initialized orchestrator:

 1. The worker pool begins dispatching.
 2. The signal poller starts, if enabled.
 3. The project watcher starts; a watcher failure rolls back the
    poller and pool and fails Start.
 4. The metrics collector starts.
 5. An initial stable sync walks the project tree in the background.
    The watcher is already running, so edits made during the walk are
    not lost.
 6. The snapshot and cleanup loops start.

Recovery during Initialize walks every non-terminal record. Agents
whose overlay backing still exists are reopened as live contexts, and
those in StateQueued re-enter the dispatch queue. Agents whose backing
vanished are marked errored with the reason on the record. Agents that
were mid-lifecycle stay parked in their recorded state for the operator
to inspect.

# Usage

	cfg := config.Default()
	orch := orchestrator.New(cfg)
	if err := orch.Initialize(); err != nil {
		return err
	}
	defer orch.Stop()

	// Service mode:
	if err := orch.Start(); err != nil {
		return err
	}

	// Or one-shot:
	res, err := orch.SubmitCommand(ctx, &command.Command{
		Kind: command.KindQueue,
		Task: "add input validation to the parser",
	})

# Failure Scenarios

Crash between queue and dispatch:
  - The record says queued and the overlay backing exists
  - Recovery reopens the overlay and re-enqueues the agent; the task
    runs as if the restart never happened

Crash mid-lifecycle:
  - The record holds the last persisted state, spawning through
    submitting
  - Recovery reopens the context but does not resume execution; the
    operator sees the parked state in listings and decides

Overlay backing missing after restart:
  - Recovery marks the agent errored with the reason and publishes
    EventAgentErrored
  - A failed save of that mark is logged and left for the next
    recovery pass to retry

Merge fails on accept:
  - The verdict is already persisted, so the review gate will not
    accept a second verdict
  - The overlay stays out of the trash for manual salvage and the
    error propagates to the caller

Verdict races verdict:
  - Both contenders serialize on the review mutex; the loser reloads
    a record that is no longer reviewing and gets ErrInvalidState

Trash on a half-cleaned agent:
  - TrashAgent is idempotent: a missing backing, a missing record, or
    a missing workspace each degrade to a no-op for that artifact
  - The live context is dropped unconditionally so stale state never
    keeps serving

# Performance Characteristics

  - Command latency is one or two bbolt transactions plus, for accept,
    a merge proportional to the agent's local writes.
  - Lifecycle throughput is bounded by max_concurrent_agents; the
    dominant cost per agent is LLM generation, not orchestration.
  - The snapshot writer serializes on one mutex and rewrites the whole
    file; with hundreds of live agents this is a few tens of kilobytes
    per event, negligible next to sandbox execution.
  - The collector recomputes population gauges from the live map on a
    fixed tick rather than maintaining them incrementally at every
    transition site.

# Integration Points

This package integrates with:

  - pkg/command: the parsed command shapes SubmitCommand dispatches on
  - pkg/queue and pkg/worker: admission order and the concurrency cap
  - pkg/runner: the per-agent lifecycle state machine
  - pkg/overlay: per-agent layers, the stable base, and the trash
  - pkg/lifecycle: persisted records in the stable overlay's KV
  - pkg/merge: accept-time propagation into stable
  - pkg/watcher: keeps stable tracking the real project tree
  - pkg/signals: file-based command intake for tools like Claude Code
  - pkg/workspace: review checkouts removed at trash time
  - pkg/events, pkg/metrics, pkg/log: the ambient observability stack

# Design Patterns

Persist-then-act:
  - Every mutating command writes the lifecycle record before its side
    effects become observable
  - Queue returns only after the record is saved and the agent
    enqueued; accept returns only after the merge completed

Review gate:
  - Load, check reviewing, persist the verdict, all under one mutex
  - The state machine's single review transition is enforced at the
    command layer, not inside the runner

Trash, don't delete:
  - Retiring an agent renames its overlay backing behind a bin- prefix
    and records it in the bin index
  - The cleanup sweep removes both only after the retention window

Recovery over sessions:
  - Nothing in memory survives a restart; whatever the lifecycle store
    says is rebuilt into live contexts

# See Also

  - pkg/runner for the lifecycle state machine
  - pkg/worker for the dispatch loop and concurrency cap
  - pkg/merge for accept-time propagation into stable
  - pkg/signals for the file-based command adapter
  - cmd/cairn for the CLI that drives all of this
*/
package orchestrator
