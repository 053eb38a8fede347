/*
Package codegen turns natural-language tasks into sandbox scripts via a
local LLM, and statically validates what comes back.

The generation prompt is fixed: it enumerates the nine callable
functions and the forbidden constructs, so the model sees the entire
sandbox contract on every request. The response is defanged twice:
markdown fences are stripped, then the script must pass Validate before
the sandbox ever sees it.

# Architecture

	┌──────────────────── SCRIPT GENERATION ───────────────────┐
	│                                                           │
	│  task ──▶ BuildPrompt (fixed contract + task)             │
	│                │                                          │
	│                ▼                                          │
	│  ┌────────────────────────────────────────────┐           │
	│  │  Client                                    │           │
	│  │  POST {endpoint}/api/generate              │           │
	│  │  {model, prompt, stream:false}             │           │
	│  │  retry once on transport failure           │           │
	│  └──────────────────┬─────────────────────────┘           │
	│                     │ {response}                          │
	│                     ▼                                     │
	│  StripFences ──▶ Validate                                 │
	│                  │        │                               │
	│                  │        └─ forbidden construct /        │
	│                  │           bad syntax / no              │
	│                  │           submit_result                │
	│                  │           ──▶ ErrValidation            │
	│                  ▼                                        │
	│          script ready for pkg/sandbox                     │
	└───────────────────────────────────────────────────────────┘

# Core Components

Client:
  - POST {endpoint}/api/generate with {model, prompt, stream:false}
  - Reads {response} from the JSON body
  - Any transport or HTTP failure is ErrLLMUnavailable
  - Default wiring: http://localhost:11434, qwen2.5-coder:7b, 30s

ScriptGenerator:
  - BuildPrompt + Complete + StripFences
  - Empty or failed generations are ErrGeneration

Validate:
  - Must parse under the sandbox's Lua grammar
  - Must not mention require, io., os., load(, loadstring(, dofile(,
    loadfile(, debug., package.
  - Must call submit_result at least once

LLM and Generator interfaces:
  - Small seams so tests substitute canned implementations without a
    server, and so ask_llm and generation share one backend

# Request Flow

 1. Marshal the generate request (non-streaming)
 2. POST to {endpoint}/api/generate with a per-request context
 3. A transport-level failure (refused, reset, timeout below HTTP) is
    retried once if the context is still live
 4. A non-200 response fails immediately with a body snippet in the
    error; server verdicts are not retried
 5. Decode {response}; record latency and result metrics; report llm
    component health

# Usage

Wiring generation:

	client := codegen.NewClient(cfg.LLM.Endpoint, cfg.LLM.Model, cfg.LLM.Timeout)
	gen := codegen.NewScriptGenerator(client)

	script, err := gen.GenerateScript(ctx, "add a changelog entry")
	if err != nil {
		return err // ErrGeneration
	}
	if err := codegen.Validate(script); err != nil {
		return err // ErrValidation, execution skipped
	}

The same Client also backs the script-facing ask_llm function, so one
endpoint configuration serves both generation and in-script queries.

# Failure Scenarios

Endpoint down:

  - Transport error, one retry, then ErrLLMUnavailable
  - The llm health component degrades; /healthz turns 503
  - The agent errors in generating with the cause on its record

Model returns prose or an empty fence:

  - StripFences yields "" → ErrGeneration
  - Prose that survives stripping fails Validate's parse step

Model emits a forbidden construct:

  - Validate names the construct in the ErrValidation message
  - The script never reaches the interpreter; the sandbox would remove
    the primitive anyway, but validation turns a doomed run into a
    cheap static failure

# Monitoring

  - cairn_llm_requests_total{status}: ok and error counts
  - cairn_llm_request_seconds: end-to-end completion latency
  - /healthz "llm" component: last request's verdict with the error
    message as the reason

# Integration Points

This package integrates with:

  - pkg/runner: the generating phase calls GenerateScript + Validate
  - pkg/sandbox: executes validated scripts; ask_llm calls Complete
  - pkg/config: endpoint, model, and timeout come from the llm section
  - pkg/metrics: request counters, latency histogram, llm health

# Design Patterns

Static Gate Before Dynamic Gate:
  - Validate catches cheap failures without spinning up an interpreter
  - The sandbox still nils out every forbidden primitive at runtime;
    validation is the first line, not the only one

Retry Transport, Trust Verdicts:
  - Connection failures get one retry
  - HTTP error statuses are answers, not noise, and fail immediately

Fixed Contract Prompt:
  - The prompt is a compile-time constant; the only variable is the
    task text
  - Changing the sandbox API means changing the prompt and Validate
    together

# See Also

  - pkg/sandbox for the runtime that executes validated scripts
  - pkg/runner for the lifecycle phases calling into this package
  - Ollama API: https://github.com/ollama/ollama/blob/main/docs/api.md
*/
package codegen
