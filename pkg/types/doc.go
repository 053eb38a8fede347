/*
Package types defines the core data structures shared across all Cairn
components.

This package contains the domain vocabulary of the orchestrator: task
priorities, agent lifecycle states, the persisted lifecycle record, queue
entries, submissions, and the shared error taxonomy. It has no dependencies
on other Cairn packages and may be imported by any of them.

# Type Categories

Scheduling Types:
  - TaskPriority: Four-level ordering (low=1, normal=2, high=3, urgent=4)
  - QueuedTask: One priority-queue entry (agent_id, priority, enqueued_at)

Lifecycle Types:
  - AgentState: The nine lifecycle states
  - LifecycleRecord: Persisted, authoritative per-agent state
  - Submission: Script-reported result shown to the reviewer
  - TrashRecord: Bin-store note for a trashed overlay

Command Types:
  - CommandResult: A submitted command's answer (AgentID for queue,
    Record for status, Records for list_agents)

Storage Types:
  - FileInfo: Merged stat view of an overlay path

Error Taxonomy:
  - ErrInvalidCommand, ErrInvalidState, ErrNotFound
  - ErrGeneration, ErrValidation, ErrSandbox, ErrStorage
  - ErrInvalidPath, ErrTooLarge, ErrLLMUnavailable

# Agent Lifecycle

States and transitions driven by the lifecycle runner:

	queued → spawning → generating → executing → submitting → reviewing
	                                                              │
	                                            accept ───────────┼──→ accepted
	                                            reject ───────────┼──→ rejected
	   (any failure) ─────────────────────────────────────────────┴──→ errored

Terminal states: accepted, rejected, errored. An agent in a terminal state
cannot progress; its record remains for audit until cleanup removes it.

The state predicates encode the three questions components actually ask:

	state.Terminal()  // can the lifecycle progress? (accepted|rejected|errored)
	state.Reviewed()  // has a human decided? (accepted|rejected; errored stays listed)
	state.Running()   // does it occupy a worker slot? (spawning..submitting)

# Priority Ordering

Higher numeric priority dispatches first; within a level, FIFO by enqueue
time:

	urgent (4) > high (3) > normal (2) > low (1)

Priorities parse from names case-insensitively (ParsePriority) and
stringify to their lowercase names, which is the form used in payloads,
logs, and metrics labels.

# Lifecycle Record

One record per agent_id, rewritten whole on every transition:

	rec := types.LifecycleRecord{
		AgentID:        "agent-3fa2b1c0",
		Task:           "add error handling to parser",
		Priority:       types.PriorityHigh,
		State:          types.StateQueued,
		CreatedAt:      now,
		StateChangedAt: now,
	}

Optional fields filled as the lifecycle progresses:

  - OverlayLocation: the backing file's path once known, updated to the
    bin- path when trashed, so cleanup can find the artifact
  - Submission: the script's self-reported result, nil when the script
    never submitted
  - Error: the failure message for errored agents

Invariants enforced by Validate:
  - agent_id and task are non-empty
  - priority is one of the four defined levels
  - state_changed_at >= created_at

JSON field names are snake_case (agent_id, state_changed_at, ...) because
records travel through signal files, the overlay KV, and the state snapshot,
all of which are hand-editable JSON.

# Error Handling

Components wrap backend errors into taxonomy members:

	if err != nil {
		return fmt.Errorf("%w: open overlay: %v", types.ErrStorage, err)
	}

Callers branch with errors.Is:

	if errors.Is(err, types.ErrNotFound) {
		os.Exit(1)
	}

The orchestrator never exposes bbolt, net/http, or Lua error types to its
callers; everything crossing a component boundary is a taxonomy member.
The taxonomy is deliberately small: each member answers "whose fault and
what now" (bad input, bad state, missing thing, model down, script bad,
storage sick) rather than cataloguing causes.

# Integration Points

This package is imported by every other Cairn package. The notable
consumers:

  - pkg/lifecycle: persists LifecycleRecord and enforces Validate
  - pkg/queue: orders QueuedTask by TaskPriority
  - pkg/command: builds on TaskPriority and ErrInvalidCommand
  - pkg/overlay: returns FileInfo and the storage taxonomy members
  - cmd/cairn: renders records and branches on taxonomy members for
    exit codes

# See Also

  - pkg/lifecycle for record persistence
  - pkg/queue for QueuedTask ordering
  - pkg/command for the command model built on these types
*/
package types
