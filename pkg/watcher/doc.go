/*
Package watcher keeps the stable overlay in step with the project files
on the host.

Agents never read the host filesystem directly; they read their overlay,
which falls through to stable. This package is the only bridge from the
operator's working tree into that world: a recursive fsnotify watcher
mirrors live edits, and a one-shot walk seeds stable at service start.

# Architecture

	┌─────────────────── PROJECT MIRRORING ────────────────────┐
	│                                                           │
	│  project root (host filesystem)                           │
	│        │                                                  │
	│        │ fsnotify: create / write / remove / rename       │
	│        ▼                                                  │
	│  ┌─────────────┐       write / delete   ┌──────────────┐  │
	│  │   Watcher   │ ───────────────────────▶│    stable    │  │
	│  │  mirror     │                        │   overlay    │  │
	│  │  loop       │       full walk        │              │  │
	│  └─────────────┘   ┌───────────────────▶│              │  │
	│                    │                    └──────┬───────┘  │
	│  SyncStable ───────┘                           │          │
	│  (startup + cairn sync)                        ▼          │
	│                                     agent overlays read   │
	│                                     through fall-through  │
	└───────────────────────────────────────────────────────────┘

# Core Components

Watcher:
  - Registers fsnotify watches per directory (the library watches one
    level, so the tree is walked at Start and new directories are
    adopted as they appear)
  - Creates and writes copy the file's bytes into stable at its
    root-relative, slash-separated path
  - Removes and renames delete that path from stable
  - Start fails if the initial tree registration fails; Stop drains the
    mirror loop before returning

SyncStable:
  - One full walk of the project root writing every regular file
  - Used at service start (so agents see the tree immediately) and by
    the "cairn sync" command
  - Returns the number of files written

Both paths skip the bookkeeping directories (.agentfs, .cairn, .git,
.jj, .hg, __pycache__, node_modules) and any file over the overlay's
10 MiB per-file cap.

# Event Handling

Create:

 1. Stat the path; it may have vanished already
 2. A directory is adopted: watched recursively, files inside mirrored
    (a tree moved into the project produces only one create event)
 3. A regular file is mirrored into stable

Write:

 1. Stat the path; directories and vanished files are ignored
 2. Mirror the file's current bytes into stable

Remove / Rename:

 1. Delete the relative path from stable
 2. A directory delete only clears its exact key; the files beneath it
    were deleted by their own events when the tree was removed

# Usage

Live mirroring inside the service:

	w := watcher.New(cfg.Paths.ProjectRoot, stable)
	if err := w.Start(); err != nil {
		return err
	}
	defer w.Stop()

One-shot seeding:

	files, err := watcher.SyncStable(cfg.Paths.ProjectRoot, stable)
	if err != nil {
		return err
	}
	log.Info().Int("files", files).Msg("stable synced")

# Failure Scenarios

Unreadable or half-written file:

  - Logged and skipped; stable converges on the next clean event
  - Editors that write via temp files produce create+rename pairs, each
    handled independently

Watch registration failure on a new directory:

  - Logged; files inside it stop being mirrored until the next
    SyncStable
  - The initial registration at Start is strict and fails the start

Event overflow:

  - fsnotify reports overflow on its error channel, which is logged
  - The periodic "cairn sync" and the startup sync are the recovery
    path for anything missed

# Performance Characteristics

  - One stable write transaction per mirrored change
  - SyncStable is linear in the project tree; ignored directories are
    pruned before descent
  - The 10 MiB cap keeps build artifacts and media from bloating the
    overlay database

# Integration Points

This package integrates with:

  - pkg/overlay: stable is the write target for all mirroring
  - pkg/orchestrator: starts the watcher with the service loops and
    runs the initial SyncStable in the background
  - cmd/cairn: the sync subcommand exposes SyncStable directly

# Design Patterns

Fire-and-Forget Mirroring:
  - A file that cannot be read or written is logged and skipped
  - The watcher must survive editors that create transient lock files,
    half-written saves, and permission oddities

One Direction Only:
  - Host files flow into stable, never back out
  - Agent work reaches the host only through a human-accepted merge and
    the operator's own tooling

# See Also

  - pkg/overlay for the stable layer written here
  - pkg/orchestrator for watcher lifecycle and the startup sync
  - fsnotify: https://github.com/fsnotify/fsnotify
*/
package watcher
