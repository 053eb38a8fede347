/*
Package runner drives a single agent through its lifecycle: from queued,
through code generation and sandboxed execution, to reviewing or errored.

The runner is the sequencer. It owns no policy about which agent runs
when (the worker pool's job) or what happens after review (the
orchestrator's job); it owns the order of phases and the guarantee that
every phase entered is on disk before its work begins.

# Architecture

The runner advances an agent through a strict sequence. Every arrow
persists the lifecycle record before the next phase's work begins, so a
crash at any point leaves a durable record of exactly how far the agent
got:

	queued ──▶ spawning ──▶ generating ──▶ executing ──▶ submitting ──▶ reviewing
	              │             │              │             │
	              │       LLM + validate   sandbox.Execute   │
	              │             │              │          KV "submission"
	              ▼             ▼              ▼             ▼
	           ┌──────────────────────────────────────────────┐
	           │                  errored                     │
	           │   (message captured on the lifecycle record) │
	           └──────────────────────────────────────────────┘

# Core Components

Agent:
  - The in-memory context: a guarded copy of the lifecycle record plus
    the open overlay handle
  - The orchestrator creates one per live agent and reads its Record
    for status queries
  - The runner mutates it through Update, so readers never see a torn
    record

Runner:
  - Run executes the full phase sequence for one agent
  - transition persists each state before the phase's work, bumps the
    transition counter, and publishes agent.state_changed
  - fail persists errored with the cause's message (best-effort) and
    publishes agent.errored

# Phase Detail

Spawning:

 1. Persist spawning
 2. Confirm the workspace overlay handle is open

Generating:

 1. Persist generating
 2. Ask the generator for a script from the task text
 3. Statically validate it; a script that fails validation never
    executes

Executing:

 1. Persist executing
 2. Run the script in the sandbox with the configured limits
 3. Any outcome but ok is fatal, with the outcome and interpreter
    message on the record

Submitting:

 1. Persist submitting
 2. Read the "submission" key from the agent overlay's KV namespace
 3. Both the tagged form the sandbox writes and a bare
    {summary, changed_files} object are accepted
 4. A missing or malformed submission is not fatal: the agent still
    reaches reviewing, with a nil submission for the reviewer to judge

Reviewing:

 1. Store the submission on the record
 2. Materialize the overlay into a review directory (best-effort)
 3. Persist reviewing; the agent now waits for a human accept or
    reject, which are the orchestrator's business

# Usage

	r := runner.New(records, generator, llmClient, workspaces, broker, limits)

	agent := runner.NewAgent(rec, agentOverlay)
	if err := r.Run(ctx, agent); err != nil {
		// agent is errored; release its resources
	}

workspaces and broker may be nil (no review directories, no events);
llm may be nil, in which case scripts calling ask_llm fail at runtime.

# Failure Scenarios

Generation or validation failure:

  - The agent goes to errored with the taxonomy-wrapped cause
    (ErrGeneration, ErrValidation, ErrLLMUnavailable inside it)
  - Run returns the cause; the orchestrator trashes the overlay

Sandbox failure:

  - The outcome (syntax, runtime, timeout, memory, recursion) and the
    interpreter message land on the record as an ErrSandbox

Persistence failure mid-run:

  - The transition that could not be saved fails the run
  - If even the errored write fails, the stale persisted record is left
    for the next recovery pass; the in-memory state is already errored

Crash between phases:

  - The persisted record names the last phase entered
  - Recovery parks such agents for the operator instead of silently
    re-running generation or execution

# Performance Characteristics

  - Five record writes per successful run, one per phase
  - The dominant cost is LLM generation, then sandbox execution;
    bookkeeping is a few bbolt transactions
  - No lock is held across storage or network I/O: record mutation
    happens under the Agent's lock, persistence uses the snapshot
    Update returns

# Integration Points

This package integrates with:

  - pkg/codegen: produces and validates the scripts
  - pkg/sandbox: executes them against the agent's overlay
  - pkg/lifecycle: persists every transition
  - pkg/workspace: renders the review directory
  - pkg/worker: schedules Run calls under the concurrency limit
  - pkg/events: state_changed and errored notifications

# Design Patterns

Persist-Then-Work:
  - transition writes the record before the phase runs
  - Status queries and restart recovery always see the most recent
    phase entered, never a phase that finished without being recorded

Failure as Data:
  - Generation, validation, sandbox, and storage failures all reach the
    record as their taxonomy-wrapped message
  - A reviewer can tell a model outage from a script bug from a lost
    overlay by reading the error field

# See Also

  - pkg/codegen for script production and validation
  - pkg/sandbox for execution semantics and limits
  - pkg/lifecycle for the record store written here
  - pkg/orchestrator for what happens after reviewing
*/
package runner
