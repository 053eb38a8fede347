// Package sandbox executes agent-generated Lua scripts inside a restricted
// interpreter wired to a single agent's workspace overlay.
//
// The sandbox is the boundary between untrusted generated code and the rest
// of the system. Scripts arrive from pkg/codegen already validated against
// the forbidden-construct list, but validation is a text-level check; this
// package enforces the same boundary again at runtime by never loading the
// dangerous libraries in the first place. A script has exactly one way to
// affect the world: the function set registered by Funcs, every member of
// which operates on the agent's own overlay layer.
//
// Execute never returns an error. Every way a script can fail, from a typo
// to a deliberate infinite loop, is folded into a classified Result that the
// lifecycle runner persists on the agent's record. The caller's control flow
// does not depend on what the script did.
//
// # Architecture
//
// Each execution builds a fresh Lua state, installs only the safe standard
// libraries, removes the escape hatches the base library ships with, and
// registers the workspace functions before running the script under a
// deadline:
//
//	┌─────────────────────────────────────────────────────────┐
//	│                       Execute                           │
//	│                                                         │
//	│  ┌───────────────┐   ┌──────────────┐   ┌────────────┐  │
//	│  │  lua.LState   │──▶│    Funcs     │──▶│ Workspace  │  │
//	│  │ base/string/  │   │ read_file    │   │  (overlay) │  │
//	│  │ table/math    │   │ write_file   │   └────────────┘  │
//	│  │               │   │ search_*     │   ┌────────────┐  │
//	│  │ no io/os/     │   │ ask_llm      │──▶│    LLM     │  │
//	│  │ debug/package │   │ submit_result│   └────────────┘  │
//	│  └───────────────┘   └──────────────┘                   │
//	│          │                                              │
//	│          ▼                                              │
//	│  ┌───────────────┐   outcome: ok / syntax / runtime /   │
//	│  │   classify    │──▶         timeout / memory /        │
//	│  └───────────────┘            recursion / unknown       │
//	└─────────────────────────────────────────────────────────┘
//
// The state is discarded after every run. Scripts never share interpreter
// state, globals, or workspace handles with each other.
//
// # Core Components
//
// Execute:
//   - Runs one script to completion and reports a Result
//   - Builds the state with SkipOpenLibs so nothing is loaded implicitly
//   - Opens base, table, string, and math through protected calls; a
//     failure to open a library ends the run with OutcomeUnknown
//   - Strips the base library's escape hatches after loading: dofile,
//     loadfile, load, loadstring, collectgarbage, and print
//   - Binds the interpreter to a context derived from the caller's with
//     the MaxDuration deadline applied
//
// Limits:
//   - MaxDuration: wall-clock deadline enforced through the interpreter's
//     context, so busy loops are interrupted between instructions
//   - MaxMemory: approximated as interpreter registry capacity at 128
//     bytes per slot, floored at 16384 slots so tiny budgets still yield
//     a usable state
//   - MaxRecursion: the interpreter's call stack depth; exceeding it
//     surfaces as a stack overflow classified OutcomeRecursion
//
// Funcs:
//   - Owns the nine script-facing functions and the per-agent resources
//     they close over
//   - Workspace is the slice of the overlay API scripts reach through;
//     the agent's layer satisfies it, so reads fall through to stable
//     and writes land only in the agent's own copy
//   - LLM answers in-script ask_llm calls and may be nil, in which case
//     ask_llm raises the backend-unavailable error
//   - register installs the set as interpreter globals and captures the
//     execution context so ask_llm respects the script deadline
//
// Result:
//   - Outcome, the error message if any, and the measured duration
//   - OK() reports whether the script ran to completion
//
// # Script Function Set
//
// File access:
//   - read_file(path) returns the file's contents as a string
//   - write_file(path, content) stores content and returns true
//   - list_dir(path?) returns a table of entry names, defaulting to the
//     workspace root
//   - file_exists(path) returns a boolean
//
// Search:
//   - search_files(pattern) glob-matches every path in the workspace; a
//     bare pattern like "*.lua" is treated as "**/*.lua" so extension
//     searches cover the whole tree, and an invalid pattern matches
//     nothing rather than failing
//   - search_content(pattern, root?) applies a Go regular expression to
//     every line of every file under root and returns tables with file,
//     line, and text fields; an invalid regex matches nothing
//
// Delegation and reporting:
//   - ask_llm(prompt, context?) forwards to the configured backend with
//     the optional second argument appended as extra context
//   - submit_result(summary, changed_files) records the agent's claimed
//     outcome in the overlay key/value namespace under "submission",
//     where the lifecycle runner collects it after execution
//   - log(message) emits a structured log line carrying the agent ID
//
// Every path argument is validated before it reaches storage: empty
// strings, absolute paths, and any path containing ".." raise a script
// error. File reads and writes are capped at 10 MiB per call.
//
// # Execution Flow
//
//  1. Construct a fresh lua.LState with SkipOpenLibs, the recursion limit
//     as call stack size, and the memory budget as registry capacity.
//  2. Open the four safe libraries; remove the six unsafe base globals.
//  3. Derive the execution context with the MaxDuration deadline and set
//     it on the interpreter.
//  4. Register the nine functions bound to this agent's overlay and LLM.
//  5. Run the script with DoString.
//  6. Classify the interpreter error, if any, into an Outcome.
//  7. Record the outcome counter and duration histogram, stamp the
//     Result's Duration, and return it.
//
// # Usage
//
// Running a script for an agent:
//
//	funcs := &sandbox.Funcs{
//		AgentID:   agentID,
//		Workspace: agentOverlay,
//		LLM:       llmClient,
//	}
//
//	result := sandbox.Execute(ctx, script, funcs, sandbox.Limits{
//		MaxDuration:  2 * time.Minute,
//		MaxMemory:    256 << 20,
//		MaxRecursion: 1000,
//	})
//	if !result.OK() {
//		// result.Outcome and result.Err describe the failure
//	}
//
// # Failure Scenarios
//
// Script never terminates:
//   - The deadline context interrupts the interpreter between
//     instructions
//   - classify sees the expired context and reports OutcomeTimeout
//   - The state is closed and discarded; no goroutine is left behind
//
// Script exhausts memory:
//   - Registry growth hits the configured ceiling and the interpreter
//     reports a registry overflow
//   - classify maps the message to OutcomeMemory
//
// Unbounded recursion:
//   - The call stack hits MaxRecursion and the interpreter reports a
//     stack overflow, classified OutcomeRecursion
//
// Script calls a removed global:
//   - load, dofile, and the rest were set to nil after the libraries
//     opened, so the call raises "attempt to call a non-function object"
//   - The run ends with OutcomeRuntime and the message names the site
//
// Workspace operation fails:
//   - The binding raises a Lua error prefixed with the function name,
//     for example "read_file: not found: docs/plan.md"
//   - An uncaught raise ends the run as OutcomeRuntime; scripts may
//     pcall around calls they expect to fail
//
// LLM backend down during ask_llm:
//   - The backend error is raised into the script with the "ask_llm:"
//     prefix and ends the run as OutcomeRuntime unless caught
//
// # Performance Characteristics
//
//   - State construction opens four libraries and registers nine
//     functions; the cost is dominated by script execution itself.
//   - File reads and writes are capped at 10 MiB each, matching the
//     overlay limits, so a script cannot balloon its backing store in
//     one call.
//   - search_files matches against the workspace path list without
//     touching file contents.
//   - search_content reads each candidate file once, scans line by line,
//     and skips files that exceed the read cap rather than failing the
//     search. Paths are sorted so results are deterministic.
//   - The registry-slot approximation is deliberately coarse; it bounds
//     interpreter growth without weighing actual string payloads.
//
// # Integration Points
//
// This package integrates with:
//
//   - pkg/overlay: the agent's layer satisfies the Workspace interface
//   - pkg/codegen: the LLM client satisfies the LLM interface, and the
//     validator rejects forbidden constructs before scripts reach
//     Execute
//   - pkg/runner: drives the lifecycle phase that calls Execute and
//     collects the submission afterwards
//   - pkg/types: Submission is the shape submit_result persists
//   - pkg/metrics: execution counts by outcome and a duration histogram
//   - pkg/log: the log function and per-agent structured logging
//
// # Design Patterns
//
// Allowlist, not blocklist:
//   - The state is created with SkipOpenLibs and only base, table,
//     string, and math are opened
//   - io, os, debug, and package are never loaded, and the base
//     library's dynamic code loaders are removed afterwards
//   - Validation rejects the same identifiers before execution; the
//     sandbox enforces the boundary again at runtime
//
// Always-classify:
//   - Execute has no error return; the Outcome taxonomy is the entire
//     failure surface
//   - classify inspects the interpreter error rather than wrapping the
//     script: syntax errors come from the parse step, deadline expiry
//     maps to timeout, and the interpreter's stack and registry
//     overflow messages map to recursion and memory
//
// Fresh state per run:
//   - Nothing persists in the interpreter between executions; the only
//     durable side effects are overlay writes and the submission record
//
// # See Also
//
//   - pkg/codegen for script generation and pre-execution validation
//   - pkg/overlay for the copy-on-write workspace behind Workspace
//   - pkg/runner for the lifecycle that calls Execute
//   - pkg/types for the Submission shape and error taxonomy
package sandbox
