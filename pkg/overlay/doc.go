/*
Package overlay provides BoltDB-backed layered file storage for Cairn's
agent workspaces.

Each agent works against its own overlay: a private storage layer that
inherits the shared stable workspace through read-through fall-through.
Writes land in the agent's layer only, so concurrent agents never see
each other's changes and rejecting an agent is as cheap as discarding
its layer.

The backing is one bbolt file per layer rather than a directory tree.
That buys atomic transactions, crash-safe writes, and trash-by-rename
for the whole layer at once, at the cost of funneling every file
operation through the overlay API. Nothing else in the system touches
the .db files directly.

# Architecture

	┌───────────────────── AGENTFS LAYOUT ─────────────────────┐
	│                                                          │
	│  <project_root>/.agentfs/                                │
	│  ├── stable.db          shared base workspace            │
	│  ├── <agent_id>.db      per-agent layer (base = stable)  │
	│  ├── bin-<agent_id>.db  trashed layer awaiting cleanup   │
	│  └── bin.db             trash index                      │
	│                                                          │
	│  ┌──────────────── READ PATH ────────────────┐           │
	│  │                                           │           │
	│  │  ReadFile("src/main.go")                  │           │
	│  │       │                                   │           │
	│  │       ▼                                   │           │
	│  │  agent layer ──hit──► return bytes        │           │
	│  │       │ miss                              │           │
	│  │       ▼                                   │           │
	│  │  stable layer ──hit──► return bytes       │           │
	│  │       │ miss                              │           │
	│  │       ▼                                   │           │
	│  │  ErrNotFound                              │           │
	│  └───────────────────────────────────────────┘           │
	│                                                          │
	│  ┌──────────────── WRITE PATH ───────────────┐           │
	│  │                                           │           │
	│  │  WriteFile / DeleteFile touch the local   │           │
	│  │  layer only. Deleting a local entry       │           │
	│  │  reveals the base entry again (no         │           │
	│  │  tombstones).                             │           │
	│  └───────────────────────────────────────────┘           │
	└──────────────────────────────────────────────────────────┘

Each .db file holds three buckets:

	files     path → raw bytes
	fileinfo  path → JSON {size, mtime, is_file, is_dir}
	kv        arbitrary key → value (layer-local, no fall-through)

The kv bucket deliberately does not fall through: lifecycle records
live in stable's kv, submissions live in the agent's kv, and neither
should shadow the other.

# Core Components

Overlay:
  - One BoltDB file, one optional base layer
  - ReadFile / WriteFile / DeleteFile / ReadDir / Stat / Exists
  - ReadLocal reads the local bucket only, no fall-through; the merge
    engine uses it to copy exactly what the agent wrote
  - LocalPaths enumerates only physically-local files (merge input)
  - Paths enumerates the merged recursive view; Walk visits every
    local file with its contents
  - KV namespace for structured metadata (submissions, lifecycle
    records, the trash index)

Store:
  - Owns the .agentfs directory and the handle registry
  - Opens stable once, hands out per-agent overlays based on it
  - OpenAgent returns the cached handle when the agent is already
    open, so queue-time and accept-time opens converge
  - CloseAgent closes and forgets a handle; closing an agent that is
    not open is a no-op
  - TrashAgent renames <id>.db to bin-<id>.db (rename, never delete)
  - Trash index in bin.db records what was trashed and why, under
    "trash:<agent_id>" keys
  - BackingExists tells recovery whether a recorded agent still has
    its file

Path model:
  - Paths are slash-separated and relative to the layer root
  - "", "/" and "." all name the root
  - Directories are implicit: they exist exactly while a file path
    lies beneath them
  - Paths escaping the root ("../x") are rejected

# Usage

Opening the store and an agent overlay:

	store, err := overlay.NewStore("/project/.agentfs")
	if err != nil {
		return err
	}
	defer store.Close()

	agent, err := store.OpenAgent("a1b2c3d4")
	if err != nil {
		return err
	}

Working with files:

	// Reads through to stable when the agent layer misses
	data, err := agent.ReadFile("README.md")

	// Writes stay local to the agent
	err = agent.WriteFile("README.md", []byte("updated"))

	// Stable keeps the original until a merge promotes the change
	orig, err := store.Stable().ReadFile("README.md")

Working with the KV namespace:

	err := agent.KVSet("submission", payload)
	data, err := agent.KVGet("submission")
	keys, err := store.Stable().KVList("agent:")

Trashing after review:

	location, err := store.TrashAgent("a1b2c3d4")
	if err != nil {
		return err
	}
	err = store.RecordTrash(&types.TrashRecord{
		AgentID:    "a1b2c3d4",
		Task:       "edit readme",
		FinalState: types.StateAccepted,
		TrashedAt:  time.Now().UTC(),
	})

# Failure Scenarios

Second process opens the same layer:
  - bolt.Open waits up to one second for the file lock, then fails
  - The error maps to ErrStorage and names the path, which is how a
    second cairn service against the same project announces itself

Crash between trash rename and record update:
  - The backing sits at bin-<id>.db while the lifecycle record still
    points at the active path
  - TrashAgent is idempotent: re-trashing finds the renamed file and
    returns the existing trash path, and the caller re-points the
    record

Trash of an agent with no backing at all:
  - Neither the active nor the trashed file exists; TrashAgent returns
    ErrNotFound and the caller treats the agent as already cleaned

Read races a merge into stable:
  - Each ReadFile is one transaction per layer consulted; a reader
    sees stable as of its own transaction, never a torn file
  - Agents hold their base handle for their whole lifecycle, so a
    merge never swaps a file out from under an open read

# Integration Points

This package integrates with:

  - pkg/lifecycle: persists agent records in stable's KV namespace
  - pkg/merge: promotes LocalPaths of an accepted overlay into stable
  - pkg/sandbox: script file functions operate on the agent's overlay
  - pkg/watcher: mirrors the real project tree into stable
  - pkg/orchestrator: opens, trashes, and recovers overlays
  - pkg/workspace: materializes overlay contents for human review

# Design Patterns

Copy-on-Write Layering:
  - Base layers are never written through
  - A layer owns exactly the paths written via its handle
  - Fall-through composes transparently at read time

Single Writer Per Layer:
  - Stable: merges serialize on accept; reads are unrestricted
  - Agent layer: only the owning lifecycle run writes to it
  - BoltDB's file lock rejects a second process (1s timeout)

Rename-Don't-Delete Trash:
  - Trashing renames the backing file with a "bin-" prefix
  - Recovery ignores trashed files; cleanup removes them later
  - Accidental accepts stay inspectable until cleanup runs

# Performance Characteristics

  - ReadFile: one B-tree lookup per layer consulted (~µs when hot)
  - WriteFile: one fsynced transaction (~ms, dominated by fsync)
  - ReadDir/Stat: cursor scan bounded by the directory's key range
  - LocalPaths: full bucket scan, linear in layer size
  - File size: callers enforce the 10 MiB per-file limit; BoltDB
    itself handles values well beyond that
  - A layer's file grows with its write history; space from deleted
    entries is reused within the file but the file never shrinks,
    which is acceptable for layers that live hours and then trash

# See Also

  - pkg/lifecycle for the record store layered on stable's KV
  - pkg/merge for promotion of accepted overlays
  - pkg/watcher for how stable tracks the project tree
  - BoltDB: https://github.com/etcd-io/bbolt
*/
package overlay
