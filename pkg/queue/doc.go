/*
Package queue provides the blocking priority queue that feeds Cairn's
worker pool.

Queued tasks carry an agent ID, a priority level, and their enqueue
time. The queue dispenses the highest-priority task first and preserves
arrival order within a priority level, so an urgent task submitted
after ten normal ones still dequeues ahead of all of them.

# Architecture

	┌──────────────────── PRIORITY QUEUE ──────────────────────┐
	│                                                          │
	│  Enqueue(agentID, priority)                              │
	│       │                                                  │
	│       ▼                                                  │
	│  ┌────────────────────────────────────────────┐          │
	│  │            Binary Heap                     │          │
	│  │                                            │          │
	│  │  Order: priority descending,               │          │
	│  │         then arrival sequence ascending    │          │
	│  │                                            │          │
	│  │    urgent(4) ─ high(3) ─ normal(2) ─ low(1)│          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                    │
	│       ┌─────────────┴──────────────┐                     │
	│       ▼                            ▼                     │
	│  TryDequeue()               DequeueWait(ctx)             │
	│  returns immediately        blocks until a task          │
	│  (task, false on empty)     arrives or ctx cancels       │
	└──────────────────────────────────────────────────────────┘

# Core Components

Queue:
  - Single mutex guards the heap
  - sync.Cond wakes blocked consumers
  - One Signal per Enqueue wakes exactly one waiter
  - Monotonic sequence number breaks priority ties

Ordering:
  - Strict: a dequeued task's priority is >= every task left behind
  - FIFO within one priority level
  - Tie-break is stable for the life of the process

# Dequeue Flow

TryDequeue:

 1. Lock, pop the heap root if any, unlock
 2. Returns (task, true) or (zero, false); never blocks

DequeueWait:

 1. Lock and check the heap; pop and return if non-empty
 2. Otherwise wait on the condition variable
 3. A context cancellation broadcasts, and every woken waiter re-checks
    both the heap and its own context
 4. Return the popped task, or ctx.Err() on cancellation

# Usage

Producing:

	q := queue.New()
	q.Enqueue("a1b2c3d4", types.PriorityHigh)

Consuming without blocking:

	if task, ok := q.TryDequeue(); ok {
		dispatch(task)
	}

Consuming with blocking (worker pool loop):

	for {
		task, err := q.DequeueWait(ctx)
		if err != nil {
			return // shutdown
		}
		dispatch(task)
	}

# Failure Scenarios

Process crash:

  - The queue is memory-only; pending entries vanish
  - Lifecycle records still say queued, so the next startup's recovery
    re-enqueues them; durability lives in pkg/lifecycle, not here

Cancellation racing an enqueue:

  - Both the new task and the cancellation may be observable; the woken
    waiter checks its context first, so cancellation wins and the task
    stays queued for the next consumer

# Performance Characteristics

  - Enqueue: O(log n)
  - TryDequeue / DequeueWait pop: O(log n)
  - Size: O(1)
  - Memory: ~100 bytes per queued task

# Integration Points

This package integrates with:

  - pkg/worker: the dispatch loop blocks on DequeueWait
  - pkg/orchestrator: enqueues on queue commands and during recovery
  - pkg/types: QueuedTask and TaskPriority define the entries

# Design Patterns

Condition Variable Wait:
  - DequeueWait loops on the standard cond.Wait pattern
  - Context cancellation broadcasts to unblock waiters
  - Woken waiters re-check both the heap and their context

Separation of Concerns:
  - The queue orders and hands out tasks
  - Concurrency limits live in the worker pool's semaphore
  - The queue never tracks completion or in-flight counts

# See Also

  - pkg/worker for the dispatch loop that consumes this queue
  - pkg/orchestrator for the producing side
  - pkg/lifecycle for the durability the queue deliberately lacks
*/
package queue
