/*
Package log provides structured logging for Cairn using zerolog.

The log package wraps the zerolog library to provide JSON-structured logging
with component- and agent-scoped child loggers and configurable log levels.
All logs include timestamps and support filtering by severity level.

# Architecture

Cairn's logging system provides structured logging with minimal overhead:

	┌──────────────────── LOGGING SYSTEM ──────────────────────┐
	│                                                           │
	│  ┌────────────────────────────────────────────┐          │
	│  │            Global Logger                    │          │
	│  │  - Zerolog instance                         │          │
	│  │  - Initialized via log.Init()               │          │
	│  │  - Zero value discards (safe before Init)   │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                     │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │           Configuration                     │          │
	│  │  - Level: debug/info/warn/error             │          │
	│  │  - Format: JSON or console (human)          │          │
	│  │  - Output: stdout, file, or custom writer   │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                     │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │         Child Loggers                       │          │
	│  │  - WithComponent("orchestrator")            │          │
	│  │  - WithAgentID("agent-3fa2b1c0")            │          │
	│  │  - Logger.With().Str(...) inline            │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                     │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │            Log Output                       │          │
	│  │                                             │          │
	│  │  JSON Format:                               │          │
	│  │  {                                          │          │
	│  │    "level": "info",                         │          │
	│  │    "component": "runner",                   │          │
	│  │    "agent_id": "agent-3fa2b1c0",            │          │
	│  │    "time": "2026-08-24T10:30:00Z",          │          │
	│  │    "message": "state transition"            │          │
	│  │  }                                          │          │
	│  │                                             │          │
	│  │  Console Format:                            │          │
	│  │  2026-08-24T10:30:00Z INF state transition  │          │
	│  │      component=runner                       │          │
	│  └────────────────────────────────────────────┘          │
	└───────────────────────────────────────────────────────────┘

# Core Components

Global Logger:
  - Package-level zerolog.Logger instance
  - Initialized once via log.Init() (from the CLI entry)
  - The zero value discards everything, so packages may log freely in
    tests without any setup

Log Levels:
  - Debug: Detailed debugging information (per-file mirror events, KV ops)
  - Info: State transitions, commands, merges
  - Warn: Skipped signal files, oversized watcher files, snapshot failures
  - Error: Lifecycle failures, storage errors

Child Loggers:
  - WithComponent: component name on every line
  - WithAgentID: agent id context, used by script log() output
  - Most call sites tag inline with Logger.With or .Str("component", ...),
    which survives Init replacing the global

# Usage

Initializing the logger:

	import "github.com/cairnlabs/cairn/pkg/log"

	// Console output (one-shot CLI commands)
	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: false,
		Output:     os.Stdout,
	})

Component logger:

	logger := log.WithComponent("signals")
	logger.Info().Str("file", name).Msg("signal processed")

Script-facing log() calls go through WithAgentID so every line a generated
script emits carries its agent:

	log.WithAgentID(agentID).Info().Msg(message)

# Failure Scenarios

Logging before Init:
  - The zero-value global discards every event, so package init code
    and tests emit nothing rather than panicking or writing to a
    half-configured destination

Unknown level string in config:
  - Level parsing falls back to info, so a typo in the config file
    degrades verbosity instead of silencing the process

Output writer misconfigured:
  - A nil Output falls back to stdout; service supervisors capture it
    the same way they capture every other daemon

# Integration Points

This package integrates with:

  - cmd/cairn: calls Init while loading config, and again in service
    mode when --log-json switches the format
  - pkg/config: the logging block supplies level and format
  - pkg/sandbox: the script log() function emits through WithAgentID
  - every other package: inline component tags on their own lines

# Design Patterns

Singleton Logger:
  - One global instance, initialized before any component starts
  - Components derive child loggers; they never re-Init

Structured Fields Over Interpolation:
  - logger.Info().Str("agent_id", id).Msg("queued")
  - Fields are machine-filterable; messages stay short and constant

# Performance Characteristics

  - Zerolog allocates nothing for disabled levels
  - JSON encoding on the hot path only when the level is enabled
  - Console writer is for interactive use; JSON for anything parsed

# See Also

  - pkg/metrics for the numeric side of observability
  - pkg/events for in-process notification of the same transitions
  - Zerolog documentation: https://github.com/rs/zerolog
*/
package log
