package types

import "errors"

// Error taxonomy shared across components. Component boundaries wrap
// backend failures into one of these with fmt.Errorf("%w: ...") so callers
// can test with errors.Is without seeing storage- or transport-specific
// types.
var (
	// ErrInvalidCommand marks malformed or incomplete input at the
	// command parser. System state is untouched.
	ErrInvalidCommand = errors.New("invalid command")

	// ErrInvalidState marks a command that is well-formed but disallowed
	// in the agent's current state (e.g. accepting an executing agent).
	ErrInvalidState = errors.New("invalid state")

	// ErrNotFound marks an unknown agent_id or a missing overlay path.
	ErrNotFound = errors.New("not found")

	// ErrGeneration marks a code-generation failure (LLM transport or
	// empty response). Fatal for the lifecycle.
	ErrGeneration = errors.New("generation failed")

	// ErrValidation marks generated code that failed static checks.
	// Execution is skipped; fatal for the lifecycle.
	ErrValidation = errors.New("validation failed")

	// ErrSandbox marks a script execution that did not finish cleanly
	// (syntax, runtime, timeout, memory, recursion, unknown). Fatal for
	// the lifecycle.
	ErrSandbox = errors.New("sandbox failure")

	// ErrStorage marks a lifecycle- or overlay-store failure. The
	// orchestrator treats it as non-recoverable for the affected agent.
	ErrStorage = errors.New("storage failure")

	// ErrInvalidPath marks a script path containing ".." or starting
	// with "/".
	ErrInvalidPath = errors.New("invalid path")

	// ErrTooLarge marks a read or write over the per-file size limit.
	ErrTooLarge = errors.New("file too large")

	// ErrLLMUnavailable marks an ask_llm transport failure.
	ErrLLMUnavailable = errors.New("llm unavailable")
)
