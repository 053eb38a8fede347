/*
Package workspace renders agent overlays into plain directories for human
review.

Overlays live inside bbolt files, which a reviewer cannot open in an editor
or diff tool. When an agent reaches reviewing, the lifecycle runner asks the
Manager to materialize the overlay's merged view under a per-agent directory
so the proposed changes can be inspected as ordinary files before the accept
or reject decision.

# Architecture

	┌──────────────────── REVIEW WORKSPACES ───────────────────┐
	│                                                           │
	│  agent overlay (bbolt)                                    │
	│  ┌─────────────────────┐                                  │
	│  │ local writes        │      Walk (merged view)          │
	│  │ + inherited stable  │ ────────────────────────────┐    │
	│  └─────────────────────┘                             │    │
	│                                                      ▼    │
	│  <cairn_home>/workspaces/                                 │
	│  ├── agent-3fa2b1c0/          one directory per agent     │
	│  │   ├── src/main.go          plain files, 0644           │
	│  │   └── docs/api.md                                      │
	│  └── agent-9c4d22ef/                                      │
	│                                                           │
	│  Reviewer: less, diff, grep, an editor - anything         │
	└───────────────────────────────────────────────────────────┘

The render is a disposable projection. Accept and reject both end with
Cleanup, and the next materialization of the same agent starts from an
empty directory. Nothing ever reads a workspace back into an overlay.

# Core Components

Manager:
  - Rooted at one directory, one subdirectory per agent
  - Path: where a given agent's render lives
  - Materialize: reset the directory, then walk the overlay's merged
    view and write every file
  - Cleanup: remove the directory; removing a never-rendered agent is
    a no-op

# Materialization Flow

 1. Validate the agent id (empty, "..", path separators all rejected)
 2. Remove the agent's previous render, if any
 3. Recreate the empty directory
 4. Walk the overlay's merged view in path order
 5. Write each file at its overlay path, creating parents as needed
 6. Log the rendered file count at debug level

A failure mid-walk aborts with the cause; the half-written directory is
harmless because every later materialization starts by removing it.

# Usage

Creating a manager:

	m := workspace.NewManager(cfg.WorkspacesDir())

Rendering an agent for review:

	if err := m.Materialize(agentID, agentOverlay); err != nil {
		return err
	}
	fmt.Println("review at", m.Path(agentID))

Discarding the render after the verdict:

	if err := m.Cleanup(agentID); err != nil {
		return err
	}

# Failure Scenarios

Unwritable workspace root:

  - Materialize fails on the MkdirAll or the first file write
  - The runner treats this as best-effort: the agent still reaches
    reviewing, the reviewer just has no rendered tree

Crash between render and verdict:

  - The directory survives; it is advisory output only
  - Recovery does not re-render; the next Materialize or the trash
    path's Cleanup replaces or removes it

Hostile agent id:

  - Ids containing "..", "/" or "\" never touch the filesystem
  - The id space is produced by the orchestrator (uuid-derived), so a
    rejection here indicates a corrupted record, not user error

# Performance Characteristics

  - Materialize is linear in the merged view: one overlay read and one
    file write per path
  - Renders are whole-tree replacements; there is no incremental diff
  - Typical agents write a handful of files, so the render cost is
    dominated by the overlay walk, not the filesystem

# Integration Points

This package integrates with:

  - pkg/overlay: Walk supplies the merged file view being rendered
  - pkg/runner: materializes after execution, as the agent parks in
    reviewing
  - pkg/orchestrator: cleans the render up when an agent is trashed

# Design Patterns

Disposable Projection:
  - The overlay stays authoritative; the directory is a view
  - Any stale or tampered render is destroyed on the next write
  - No state flows from the filesystem back into the overlay

Validate-Then-Touch:
  - The id check runs before RemoveAll, so a crafted id can never
    resolve outside the workspace root

# See Also

  - pkg/overlay for the layered store being projected
  - pkg/runner for when materialization happens in the lifecycle
  - pkg/orchestrator for the trash path that ends with Cleanup
*/
package workspace
