/*
Package lifecycle provides the durable agent state store, the single
authority for what every agent is doing.

Each agent has exactly one LifecycleRecord, keyed "agent:<agent_id>" in
the stable overlay's KV namespace. Every state transition rewrites the
whole record and persists before the lifecycle proceeds, so a crash at
any point leaves a record that recovery can reason about.

# Architecture

	┌────────────────── LIFECYCLE STORE ──────────────────┐
	│                                                     │
	│  Save / Load / Delete / ListAll / ListActive        │
	│                      │                              │
	│                      ▼                              │
	│  ┌───────────────────────────────────────┐          │
	│  │   stable overlay KV namespace         │          │
	│  │                                       │          │
	│  │   agent:a1b2c3d4 → {record JSON}      │          │
	│  │   agent:e5f6a7b8 → {record JSON}      │          │
	│  │   ...                                 │          │
	│  └───────────────────────────────────────┘          │
	│                                                     │
	│  State machine recorded per agent:                  │
	│                                                     │
	│  queued → spawning → generating → executing         │
	│         → submitting → reviewing ─┬─► accepted      │
	│                                   ├─► rejected      │
	│         (any failure) ────────────┴─► errored       │
	└─────────────────────────────────────────────────────┘

The store sits on a four-method KV interface rather than the concrete
overlay type, so tests exercise it against recording fakes and the
orchestrator wires it to stable.

# Core Components

Store:
  - Save: validated whole-record upsert
  - Load: single record or ErrNotFound
  - Delete: no-op for missing records
  - ListAll: every record, ordered by agent_id
  - ListActive: everything not yet reviewed (errored included)
  - CleanupOld: garbage-collects aged terminal records and their
    trashed overlay files

Listing semantics:
  - "Active" means a human has not accepted or rejected the agent.
    Errored agents stay listed so failures are visible; cleanup is
    what finally removes them.
  - "Terminal" for cleanup means accepted, rejected, or errored.

# Cleanup Flow

 1. ListAll the records
 2. Keep everything non-terminal, whatever its age
 3. Keep terminal records younger than the retention window
 4. For the rest: remove the trashed overlay artifact if the record
    points inside the scratch directory, then delete the record
 5. Return the removed agent ids

A record whose overlay_location points outside the scratch directory
loses the record but keeps the file; the store never deletes what it
cannot prove it owns.

# Usage

	store := lifecycle.NewStore(stableOverlay)

	rec := &types.LifecycleRecord{
		AgentID:        agentID,
		Task:           task,
		Priority:       types.PriorityNormal,
		State:          types.StateQueued,
		CreatedAt:      now,
		StateChangedAt: now,
	}
	if err := store.Save(rec); err != nil {
		return err
	}

	active, err := store.ListActive()

	removed, err := store.CleanupOld(7*24*time.Hour, agentfsDir)

# Failure Scenarios

Invalid record handed to Save:

  - Rejected as ErrStorage before touching the KV; the previous
    version survives

Undecodable record found while listing:

  - Logged with its key and skipped; one corrupt entry never hides the
    healthy ones

Record deleted between list and get:

  - Skipped silently; listings are a snapshot, not a transaction

# Performance Characteristics

  - Save/Load/Delete: one KV operation plus JSON codec
  - ListAll: one prefix scan plus one get per record
  - Records are small (a task string, a submission summary); hundreds
    of agents list in milliseconds

# Integration Points

This package integrates with:

  - pkg/types: LifecycleRecord and the state enum
  - pkg/overlay: stable's KV namespace is the production backing
  - pkg/runner: persists every transition through Save
  - pkg/orchestrator: recovery reads ListActive; the cleanup loop calls
    CleanupOld

# Design Patterns

Single Source of Truth:
  - No parallel in-memory registry survives a restart
  - The state snapshot file is derived, never authoritative
  - Recovery rebuilds all live state from these records

Persist-Before-Proceed:
  - The runner saves each transition before starting the next phase
  - Status and list calls always observe the latest persisted state

Guarded Cleanup:
  - Overlay artifacts are deleted only inside the scratch directory
  - A record pointing elsewhere loses the record, keeps the file

# See Also

  - pkg/types for LifecycleRecord and the state enum
  - pkg/overlay for the backing KV namespace
  - pkg/orchestrator for recovery over these records
*/
package lifecycle
