/*
Package signals implements the file-based command adapter: drop a JSON
file in the signal directory and the orchestrator picks it up within
half a second.

Signal files are the scripting interface. Anything that can write a
file (a shell script, a git hook, another program, a human with an
editor) can queue work and deliver review verdicts without linking
against Cairn or speaking a protocol.

# Architecture

	┌──────────────────── SIGNAL ADAPTER ──────────────────────┐
	│                                                           │
	│  <cairn_home>/signals/                                    │
	│  ├── spawn-fix123.json        any producer drops files    │
	│  ├── accept-a1b2c3d4.json                                 │
	│  └── task-42.json                                         │
	│            │                                              │
	│            │ Poller sweep every 500ms                     │
	│            ▼                                              │
	│  ┌────────────────────────────────────────────┐           │
	│  │  per file:                                 │           │
	│  │   read → decode JSON → resolve tag         │           │
	│  │   → command.Parse → SubmitCommand          │           │
	│  │   → unlink (always)                        │           │
	│  └──────────────────┬─────────────────────────┘           │
	│                     ▼                                     │
	│            orchestrator (Submitter)                       │
	└───────────────────────────────────────────────────────────┘

Signal files are single-shot. The poller sweeps the directory, handles
files in lexicographic order, and unlinks each one whether or not it
parsed, so a malformed file can never wedge the loop.

# Signal Format

Canonical form, where the payload names its own type:

	signals/anything.json
	{"type": "queue", "task": "add tests for the parser", "priority": "high"}

Compatibility form, where the file-name prefix implies the type:

	signals/spawn-fix123.json     {"task": "fix the login bug"}
	signals/queue-docs.json       {"task": "update the docs"}
	signals/accept-a1b2c3d4.json  {}
	signals/reject-a1b2c3d4.json  {}

For accept and reject, a payload without agent_id takes it from the
file stem with the prefix stripped: accept-a1b2c3d4.json accepts agent
a1b2c3d4 with an empty payload. An agent_id present in the payload
always wins over the file name.

# Processing Pipeline

 1. Glob *.json, sort lexicographically
 2. Read and JSON-decode (failure → empty payload)
 3. Resolve tag: payload "type" wins, else prefix shim, else skip
 4. Inject file-name agent_id default for accept/reject
 5. command.Parse; InvalidCommand logs and skips
 6. Submit to the orchestrator
 7. Unlink unconditionally

# Usage

Running the poller inside the service:

	poller := signals.NewPoller(cfg.SignalsDir(), orch, broker)
	poller.Start()
	defer poller.Stop()

Polling can stay off for embedded use; Sweep drives one pass manually:

	n := poller.Sweep(ctx) // returns commands submitted

Producing signals from anywhere:

	echo '{"task":"update the changelog"}' > ~/.cairn/signals/spawn-chg.json

# Failure Scenarios

Malformed JSON:

  - Decoded as an empty payload; the file-name prefix may still resolve
    a usable command (accept-a9.json with garbage content still accepts
    agent a9)
  - Without a resolvable tag the file is logged, counted as skipped,
    and removed

Command rejected by the orchestrator:

  - Logged with the command and error, counted as error, file removed
  - Example: accepting an agent that is not in reviewing

Crash mid-submit:

  - At-most-once semantics: the file may be consumed without its
    command taking effect
  - Producers that need certainty check agent status afterwards

# Monitoring

  - cairn_signals_processed_total{result} counts ok, invalid, skipped,
    and error outcomes per file
  - Every accepted signal publishes signal.received on the event broker
  - Processed signals are logged with file name, command, and agent id

# Integration Points

This package integrates with:

  - pkg/command: Parse does all validation, same as the CLI
  - pkg/orchestrator: implements Submitter; also drops signal files
    itself when a one-shot CLI invocation finds the service running
  - pkg/events: signal.received per processed file
  - pkg/metrics: per-result counters

# Design Patterns

Consume-Always:
  - Every swept file is unlinked, parsed or not
  - A crash mid-submit loses the signal rather than replaying it

Shared Parser:
  - The poller only resolves the tag and file-name defaults
  - command.Parse decides validity, so a signal file and a CLI flag
    line produce identical commands

# See Also

  - pkg/command for the parser this adapter feeds
  - pkg/orchestrator for SubmitCommand semantics
  - cmd/cairn for the CLI fallback that writes signal files
*/
package signals
