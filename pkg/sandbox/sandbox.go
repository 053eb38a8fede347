package sandbox

import (
	"context"
	"errors"
	"strings"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/cairnlabs/cairn/pkg/metrics"
)

// Limits bound one script execution. The sandbox's contract is to
// always return: whichever limit trips first converts the run into a
// classified Result instead of a hung or runaway process.
type Limits struct {
	MaxDuration  time.Duration
	MaxMemory    int64
	MaxRecursion int
}

// Outcome classifies how an execution ended.
type Outcome string

const (
	OutcomeOK        Outcome = "ok"
	OutcomeSyntax    Outcome = "syntax"
	OutcomeRuntime   Outcome = "runtime"
	OutcomeTimeout   Outcome = "timeout"
	OutcomeMemory    Outcome = "memory"
	OutcomeRecursion Outcome = "recursion"
	OutcomeUnknown   Outcome = "unknown"
)

// Result is the sandbox's verdict on one execution.
type Result struct {
	Outcome  Outcome
	Err      string
	Duration time.Duration
}

// OK reports whether the script ran to completion.
func (r Result) OK() bool {
	return r.Outcome == OutcomeOK
}

// minRegistrySlots keeps tiny memory budgets from producing an
// interpreter too small to run anything.
const minRegistrySlots = 1 << 14

// registrySlots approximates a byte budget as interpreter registry
// capacity. A slot holds one boxed value; 128 bytes per slot is a
// conservative average including string payload overhead.
func registrySlots(maxMemory int64) int {
	slots := int(maxMemory / 128)
	if slots < minRegistrySlots {
		slots = minRegistrySlots
	}
	return slots
}

// safeLibs are the only standard libraries opened. No io, no os, no
// package/require, no debug.
var safeLibs = []struct {
	name string
	open lua.LGFunction
}{
	{lua.BaseLibName, lua.OpenBase},
	{lua.TabLibName, lua.OpenTable},
	{lua.StringLibName, lua.OpenString},
	{lua.MathLibName, lua.OpenMath},
}

// removedGlobals are base-library escape hatches stripped after the
// safe libraries load.
var removedGlobals = []string{
	"dofile",
	"loadfile",
	"load",
	"loadstring",
	"collectgarbage",
	"print",
}

// Execute runs a script with the agent's functions bound and the
// limits enforced. It always returns a Result; nothing a script does
// propagates as a panic or error to the caller.
func Execute(ctx context.Context, script string, funcs *Funcs, limits Limits) Result {
	timer := metrics.NewTimer()

	L := lua.NewState(lua.Options{
		SkipOpenLibs:    true,
		CallStackSize:   limits.MaxRecursion,
		RegistryMaxSize: registrySlots(limits.MaxMemory),
	})
	defer L.Close()

	for _, lib := range safeLibs {
		if err := L.CallByParam(lua.P{
			Fn:      L.NewFunction(lib.open),
			NRet:    0,
			Protect: true,
		}, lua.LString(lib.name)); err != nil {
			result := Result{Outcome: OutcomeUnknown, Err: "failed to open " + lib.name + ": " + err.Error()}
			finish(&result, timer)
			return result
		}
	}
	for _, name := range removedGlobals {
		L.SetGlobal(name, lua.LNil)
	}

	execCtx, cancel := context.WithTimeout(ctx, limits.MaxDuration)
	defer cancel()
	L.SetContext(execCtx)

	funcs.register(L, execCtx)

	err := L.DoString(script)
	result := Result{Outcome: OutcomeOK}
	if err != nil {
		result = Result{Outcome: classify(err, execCtx), Err: err.Error()}
	}
	finish(&result, timer)
	return result
}

func finish(r *Result, timer *metrics.Timer) {
	r.Duration = timer.Duration()
	metrics.SandboxExecutionsTotal.WithLabelValues(string(r.Outcome)).Inc()
	metrics.SandboxExecutionDuration.Observe(r.Duration.Seconds())
}

// classify maps an interpreter error onto the outcome taxonomy.
func classify(err error, execCtx context.Context) Outcome {
	msg := err.Error()

	var apiErr *lua.ApiError
	if errors.As(err, &apiErr) && apiErr.Type == lua.ApiErrorSyntax {
		return OutcomeSyntax
	}

	switch {
	case execCtx.Err() != nil && errors.Is(execCtx.Err(), context.DeadlineExceeded):
		return OutcomeTimeout
	case strings.Contains(msg, "stack overflow"):
		return OutcomeRecursion
	case strings.Contains(msg, "registry overflow"):
		return OutcomeMemory
	}

	if apiErr != nil {
		return OutcomeRuntime
	}
	return OutcomeUnknown
}
