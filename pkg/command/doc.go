/*
Package command defines the normalized command model shared by every
input adapter.

A Command is a closed set of variants (queue, accept, reject, status,
list_agents) produced exclusively by Parse. The CLI, the signal-file
poller, and tests all build commands through the same parser, so
semantically equivalent inputs yield equal values and every dispatch
site switches over the same Kind set.

# Architecture

	┌──────────────────── COMMAND PIPELINE ────────────────────┐
	│                                                           │
	│  CLI flags          signal files          tests           │
	│      │                   │                  │             │
	│      └──────────┬────────┴──────────────────┘             │
	│                 ▼                                         │
	│  ┌────────────────────────────────────────────┐           │
	│  │                 Parse                      │           │
	│  │  - tag folding (case, dashes)              │           │
	│  │  - required-field checks                   │           │
	│  │  - priority coercion (name or number)      │           │
	│  │  - spawn alias → queue, default high       │           │
	│  └──────────────────┬─────────────────────────┘           │
	│                     │ *Command or ErrInvalidCommand       │
	│                     ▼                                     │
	│  orchestrator.SubmitCommand switches on Kind              │
	└───────────────────────────────────────────────────────────┘

# Variants

	Kind         Required      Optional    Defaults
	────────────────────────────────────────────────────────
	queue        task          priority    priority=normal
	accept       agent_id      -           -
	reject       agent_id      -           -
	status       agent_id      -           -
	list_agents  -             -           -

The tag "spawn" is accepted as an alias for queue with the priority
default raised to high; an explicit priority in the payload always
wins. Tags are case-insensitive and dashes fold to underscores, so
"LIST-AGENTS" and "list_agents" are the same command.

Priority values are accepted as names ("low", "normal", "high",
"urgent", any case) and as numbers (1 through 4, including the float64
form JSON decoding produces). Anything else is ErrInvalidCommand.

# Usage

Parsing adapter input:

	cmd, err := command.Parse("spawn", map[string]any{
		"task": "add error handling to the parser",
	})
	if errors.Is(err, types.ErrInvalidCommand) {
		// report to caller; system state untouched
	}

Serializing for transport (round-trips through Parse):

	payload := cmd.Payload()
	again, _ := command.Parse(cmd.Tag(), payload)
	// again == cmd

Dispatching:

	switch cmd.Kind {
	case command.KindQueue:
		// enqueue a new agent
	case command.KindAccept, command.KindReject:
		// review verdict for cmd.AgentID
	case command.KindStatus:
		// report one agent
	case command.KindListAgents:
		// report all agents
	}

# Failure Scenarios

Unknown tag:

  - ErrInvalidCommand naming the tag; nothing was mutated
  - Adapters log and drop (signals) or exit non-zero (CLI)

Missing required field:

  - queue/spawn without a task, accept/reject/status without an
    agent_id: ErrInvalidCommand naming the field
  - Whitespace-only values count as missing

Bad priority:

  - Unknown name, out-of-range number, or unsupported type:
    ErrInvalidCommand, never a silent clamp

# Integration Points

This package integrates with:

  - pkg/signals: the file adapter resolves a tag and calls Parse
  - cmd/cairn: subcommands build the payload map and call Parse
  - pkg/orchestrator: SubmitCommand consumes the parsed Command
  - pkg/types: priorities and the error taxonomy

# Design Patterns

Single Parser:
  - Parse is pure: no I/O, no global state
  - Every malformed input fails with types.ErrInvalidCommand
  - Adapters never hand-build Command values

Closed Variant Set:
  - Dispatch sites switch on Kind and handle every case
  - Adding a variant forces every switch to be revisited

Canonical Serialization:
  - Tag and Payload emit the canonical spelling, so commands can cross
    a file or a queue and parse back to an equal value

# See Also

  - pkg/signals for the file-based adapter feeding this parser
  - pkg/orchestrator for command dispatch
  - pkg/types for TaskPriority and ErrInvalidCommand
*/
package command
