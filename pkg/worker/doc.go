/*
Package worker dispatches queued agents into lifecycle runs under a
global concurrency limit.

The pool is deliberately small: it knows how to take the next task from
the priority queue, wait for a permit, and hand the task to a RunFunc on
its own goroutine. What a run does, how failures are handled, and when
resources are released all belong to the orchestrator's RunFunc.

# Architecture

A single dispatch goroutine couples the priority queue to a weighted
semaphore:

	┌──────────┐  DequeueWait   ┌────────────┐  Acquire(1)  ┌─────────────┐
	│  queue   │ ─────────────▶ │  dispatch  │ ───────────▶ │  semaphore  │
	└──────────┘                │    loop    │              │ capacity =  │
	                            └─────┬──────┘              │ max agents  │
	                                  │ go run(task)        └─────────────┘
	                                  ▼
	                      ┌───────────────────────┐
	                      │ lifecycle run (1..N)  │ ── Release(1) on finish
	                      └───────────────────────┘

The dispatch loop blocks twice: once waiting for work, once waiting for
a permit. Because it claims the next task before acquiring a permit,
exactly one task can be held in hand while all permits are busy;
everything else keeps its queue position.

# Core Components

Pool:
  - Owns the dispatch loop, the semaphore, and the in-flight wait group
  - NewPool clamps capacity to a minimum of 1
  - Start launches the loop; Stop cancels it and waits for it to exit
  - Wait blocks until every in-flight run has finished

RunFunc:
  - The pluggable lifecycle entry point, one call per dispatched task
  - Runs on its own goroutine and must not panic
  - The orchestrator wires it to the runner plus its own resource
    release

# Dispatch Flow

 1. DequeueWait blocks until a task arrives or the pool is stopped
 2. The queue-depth gauge is refreshed
 3. Acquire(1) blocks until a permit frees or the pool is stopped
 4. The task runs on a fresh goroutine under context.Background
 5. The goroutine releases its permit with defer when the run returns

# Usage

	pool := worker.NewPool(q, cfg.Orchestrator.MaxConcurrentAgents,
		func(ctx context.Context, task types.QueuedTask) {
			runAgent(ctx, task)
		})
	pool.Start()
	defer pool.Stop()

Draining on shutdown:

	pool.Stop() // no new dispatches
	pool.Wait() // in-flight lifecycles finish

# Failure Scenarios

Shutdown while waiting for a permit:

  - The claimed task is dropped from memory
  - Its lifecycle record still says queued, so the next startup's
    recovery pass re-enqueues it

Run failure:

  - Each run releases its permit with defer, so a failed lifecycle
    frees capacity exactly like a successful one
  - One agent's failure never stalls the loop

Stop during active runs:

  - Stop cancels only the dispatch loop's context
  - Runs execute under context.Background, so shutting the pool down
    never interrupts a lifecycle that is already generating or
    executing; callers that need a full drain call Wait after Stop

# Performance Characteristics

  - Dispatch overhead per task is one heap pop, one semaphore acquire,
    and one goroutine spawn
  - The semaphore is the only throttle; queue depth is unbounded
  - With N permits and a saturated queue, exactly N runs execute and
    one task waits in hand

# Integration Points

This package integrates with:

  - pkg/queue: the priority queue this loop drains
  - pkg/runner: what the dispatched goroutines ultimately execute
  - pkg/orchestrator: constructs the pool and supplies the RunFunc
  - pkg/metrics: refreshes cairn_queue_depth on every dispatch

# Design Patterns

Claim-Then-Admit:
  - Ordering is decided by the queue at dequeue time
  - Admission is decided by the semaphore afterwards
  - Keeping the two separate means priorities never jump the permit
    line and permits never reorder priorities

Detached Runs:
  - The pool tracks runs only through the wait group
  - Cancellation policy for a run belongs to the RunFunc, not the pool

# See Also

  - pkg/queue for ordering semantics
  - pkg/runner for what a lifecycle run does
  - pkg/orchestrator for pool construction and recovery
*/
package worker
