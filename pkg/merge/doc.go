/*
Package merge folds an accepted agent's overlay into the shared stable
overlay.

Merging is the promotion step of the review workflow: until a human
accepts, an agent's work exists only in its private layer; after the
merge, every other agent sees it through fall-through reads. The engine
copies exactly what the agent wrote and nothing else.

# Architecture

	agent overlay                          stable overlay
	┌──────────────────┐                  ┌──────────────────┐
	│ local layer      │   LocalPaths()   │                  │
	│  src/main.go  ───┼──────────────────┼──▶ src/main.go   │
	│  docs/api.md  ───┼──────────────────┼──▶ docs/api.md   │
	├──────────────────┤                  │                  │
	│ inherited (base) │   never copied   │ (already here)   │
	└──────────────────┘                  └──────────────────┘

Only files physically present in the source's own layer move. Files the
agent merely read through to stable are already there; copying them back
would turn every accept into a full-tree rewrite and would resurrect
stale copies of files another accept has since updated.

# Core Components

Engine:
  - One mutex serializes merges, keeping stable single-writer while
    fall-through reads continue concurrently
  - Merge returns the number of files copied
  - A file that cannot be read or written is logged and skipped, so one
    bad path never blocks the rest of an accept
  - Completion is announced on the event broker (broker may be nil)

# Merge Flow

 1. Lock the engine; at most one merge mutates stable at a time
 2. Enumerate the source's local layer with LocalPaths
 3. For each path, ReadLocal from the source (never the base)
 4. WriteFile into the target at the same path, overwriting
 5. Count successes; log and skip per-file failures
 6. Record merge metrics and publish merge.completed
 7. Return the copied-file count

# Usage

Merging an accepted agent into stable:

	engine := merge.NewEngine(broker)

	merged, err := engine.Merge(agentOverlay, stableOverlay)
	if err != nil {
		return err
	}
	log.Info().Int("files", merged).Msg("accept merged")

The only hard error is failing to enumerate the source layer; per-file
read and write failures degrade the count instead of failing the call.

# Failure Scenarios

Crash mid-merge:

  - Stable holds a prefix of the agent's files
  - Re-running the merge completes the copy; every file write is
    idempotent and the source layer is untouched until trashing
  - The orchestrator trashes the agent only after Merge returns, so an
    interrupted accept leaves the full source intact

Unwritable target:

  - Every write fails, every failure is logged, Merge returns 0 and no
    error
  - The orchestrator's accept path treats a merge error (enumeration
    failure) as grounds to keep the agent's overlay for retry

Concurrent accepts:

  - The engine mutex serializes them; last writer wins per path
  - Review ordering is the operator's decision, not the engine's

# Performance Characteristics

  - Cost is linear in the agent's local writes, not in the size of
    stable
  - Each file is one read transaction plus one write transaction
  - Typical agents change a handful of files; merges complete in
    milliseconds

# Integration Points

This package integrates with:

  - pkg/overlay: LocalPaths and ReadLocal supply the copy set
  - pkg/orchestrator: calls Merge during accept, before trashing the
    agent
  - pkg/events: merge.completed carries the copied-file count
  - pkg/metrics: cairn_merges_total and cairn_merged_files_total

# Design Patterns

Promotion by Copy:
  - The agent layer is never spliced or relinked into stable
  - Copying keeps the layers independent, so trashing the source after
    an accept cannot disturb what was merged

Skip, Don't Abort:
  - Per-file failures are logged with path and agent id
  - A partially merged accept is visible in the returned count and the
    merge.completed message

# See Also

  - pkg/overlay for LocalPaths, the local-only enumeration this relies on
  - pkg/orchestrator for the accept flow that invokes Merge
  - pkg/events for the completion notification
*/
package merge
