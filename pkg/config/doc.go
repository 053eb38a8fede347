/*
Package config loads and validates Cairn's runtime configuration.

Configuration flows through four layers, lowest precedence first:
compiled defaults, an optional YAML file, CAIRN_* environment variables,
and explicit field writes by the caller (CLI flags and tests write
fields after Load, so they always win).

# Architecture

	┌───────────────── CONFIGURATION SOURCES ─────────────────┐
	│                                                          │
	│  Defaults (Default())                                    │
	│     │    max_concurrent_agents=5, polling on,            │
	│     │    60s/100MiB/1000 sandbox limits, ~/.cairn home   │
	│     ▼                                                    │
	│  YAML file (--config cairn.yaml, optional)               │
	│     │    only keys present in the file override          │
	│     ▼                                                    │
	│  Environment (CAIRN_*)                                   │
	│     │    set via shell or .env (godotenv in main)        │
	│     ▼                                                    │
	│  Explicit writes (flags, tests)                          │
	│     │                                                    │
	│     ▼                                                    │
	│  Validate() after the last write                         │
	└──────────────────────────────────────────────────────────┘

# Configuration File

	orchestrator:
	  max_concurrent_agents: 5
	  enable_signal_polling: true
	  cleanup_max_age: 168h
	  cleanup_interval: 1h
	executor:
	  max_execution_time: 60        # seconds
	  max_memory_bytes: 104857600
	  max_recursion_depth: 1000
	paths:
	  project_root: /work/repo
	  cairn_home: /home/user/.cairn
	llm:
	  endpoint: http://localhost:11434
	  model: qwen2.5-coder:7b
	  timeout: 30s
	log_level: info

Absent keys keep the value of the layer below; the file never resets a
field to zero. Durations are Go duration strings or bare numbers
meaning seconds.

# Environment Variables

Orchestrator:
  - CAIRN_ORCHESTRATOR_MAX_CONCURRENT_AGENTS: lifecycle permit count (>= 1)
  - CAIRN_ORCHESTRATOR_ENABLE_SIGNAL_POLLING: true/false
  - CAIRN_ORCHESTRATOR_CLEANUP_MAX_AGE: retention for terminal records
    (duration string or seconds; default 168h)
  - CAIRN_ORCHESTRATOR_CLEANUP_INTERVAL: cleanup loop tick (default 1h)

Executor (sandbox limits):
  - CAIRN_EXECUTOR_MAX_EXECUTION_TIME: wall-clock seconds, fractions
    allowed (default 60)
  - CAIRN_EXECUTOR_MAX_MEMORY_BYTES: 1 MiB .. 16 GiB (default 100 MiB)
  - CAIRN_EXECUTOR_MAX_RECURSION_DEPTH: call depth (default 1000)

Paths:
  - CAIRN_PATHS_PROJECT_ROOT: mirrored workspace root (default $PWD)
  - CAIRN_PATHS_CAIRN_HOME: signals/state/workspaces root (default ~/.cairn)

LLM:
  - CAIRN_LLM_ENDPOINT: Ollama-compatible base URL
    (default http://localhost:11434)
  - CAIRN_LLM_MODEL: model name (default qwen2.5-coder:7b)
  - CAIRN_LLM_TIMEOUT: request timeout (default 30s)

Logging:
  - CAIRN_LOG_LEVEL: debug/info/warn/error (default info)

A malformed value is a load error, never a silent fallback.

# Derived Layout

	<project_root>/.agentfs/          overlay backing databases
	    stable.db                     shared stable overlay
	    <agent-id>.db                 per-agent overlays
	    bin-<agent-id>.db             trashed overlays (cleanup removes)
	    bin.db                        trash metadata KV
	<cairn_home>/signals/             signal-file drop directory
	<cairn_home>/state/orchestrator.json   derived snapshot for the CLI
	<cairn_home>/workspaces/<agent-id>/    materialized review trees

The accessor methods (AgentFSDir, SignalsDir, StateFile, WorkspacesDir)
are the only place this layout is spelled out; components never join
paths themselves.

# Usage

	cfg, err := config.Load(configPath) // "" skips the file layer
	if err != nil {
		return err
	}
	cfg.Orchestrator.MaxConcurrentAgents = flagConcurrency // explicit wins
	if err := cfg.Validate(); err != nil {
		return err
	}

Validate enforces the documented ranges; call it after the last explicit
write, not inside Load.

# Failure Scenarios

Named file missing or unparseable:

  - Load fails; an explicitly requested config file is never skipped
  - An empty path skips the file layer entirely

Malformed environment value:

  - Load fails naming the variable
  - Partial application is possible (env vars are applied in order) but
    irrelevant because the Config is discarded on error

Out-of-range value from any layer:

  - Caught by Validate, which names the field and its bounds
  - Validation runs once, after flags, so a bad default corrected by a
    flag passes

# Integration Points

This package integrates with:

  - cmd/cairn: loads config, applies flag overrides, validates
  - pkg/orchestrator: consumes orchestrator, paths, and llm sections
  - pkg/sandbox: the executor section becomes sandbox.Limits
  - pkg/log: LogConfig translates log_level for Init

# Design Patterns

Pointer-Field File Schema:
  - The YAML schema uses pointer fields so "absent" and "zero" differ
  - Only keys present in the file override the defaults

Load Collects, Validate Judges:
  - Load only gathers and converts values
  - Range checking is deferred to Validate so flag overrides are
    judged too

# See Also

  - pkg/orchestrator for how the pieces are consumed
  - pkg/sandbox for what the executor limits mean
  - cmd/cairn for flag wiring and .env loading
*/
package config
