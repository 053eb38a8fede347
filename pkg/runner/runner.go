package runner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cairnlabs/cairn/pkg/codegen"
	"github.com/cairnlabs/cairn/pkg/events"
	"github.com/cairnlabs/cairn/pkg/lifecycle"
	"github.com/cairnlabs/cairn/pkg/log"
	"github.com/cairnlabs/cairn/pkg/metrics"
	"github.com/cairnlabs/cairn/pkg/sandbox"
	"github.com/cairnlabs/cairn/pkg/types"
	"github.com/cairnlabs/cairn/pkg/workspace"
)

// submissionKey is where scripts leave their result in the agent
// overlay's key/value namespace.
const submissionKey = "submission"

// Runner drives one agent from queued to reviewing or errored. Each
// state transition is persisted before the work of that state begins.
type Runner struct {
	records    *lifecycle.Store
	generator  codegen.Generator
	llm        sandbox.LLM
	workspaces *workspace.Manager
	broker     *events.Broker
	limits     sandbox.Limits
}

// New creates a runner. workspaces and broker may be nil (no review
// directories, no events). llm may be nil, in which case scripts
// calling ask_llm fail at runtime.
func New(records *lifecycle.Store, generator codegen.Generator, llm sandbox.LLM, workspaces *workspace.Manager, broker *events.Broker, limits sandbox.Limits) *Runner {
	return &Runner{
		records:    records,
		generator:  generator,
		llm:        llm,
		workspaces: workspaces,
		broker:     broker,
		limits:     limits,
	}
}

// Run executes the full lifecycle for one agent. Any failure transitions
// the agent to errored, persists the message, and returns the cause; the
// caller is responsible for releasing the agent's resources.
func (r *Runner) Run(ctx context.Context, agent *Agent) error {
	if err := r.transition(agent, types.StateSpawning); err != nil {
		return r.fail(agent, err)
	}
	if agent.Overlay() == nil {
		return r.fail(agent, fmt.Errorf("%w: agent overlay is not open", types.ErrStorage))
	}

	if err := r.transition(agent, types.StateGenerating); err != nil {
		return r.fail(agent, err)
	}
	script, err := r.generator.GenerateScript(ctx, agent.Record().Task)
	if err != nil {
		return r.fail(agent, err)
	}
	if err := codegen.Validate(script); err != nil {
		return r.fail(agent, err)
	}

	if err := r.transition(agent, types.StateExecuting); err != nil {
		return r.fail(agent, err)
	}
	funcs := &sandbox.Funcs{
		AgentID:   agent.ID(),
		Workspace: agent.Overlay(),
		LLM:       r.llm,
	}
	result := sandbox.Execute(ctx, script, funcs, r.limits)
	lg := log.WithAgentID(agent.ID())
	lg.Info().
		Str("component", "runner").
		Str("outcome", string(result.Outcome)).
		Dur("duration", result.Duration).
		Msg("sandbox execution finished")
	if !result.OK() {
		return r.fail(agent, fmt.Errorf("%w: %s: %s", types.ErrSandbox, result.Outcome, result.Err))
	}

	if err := r.transition(agent, types.StateSubmitting); err != nil {
		return r.fail(agent, err)
	}
	sub, err := r.collectSubmission(agent)
	if err != nil {
		return r.fail(agent, err)
	}
	if sub == nil {
		lg := log.WithAgentID(agent.ID())
		lg.Warn().
			Str("component", "runner").
			Msg("script finished without a submission")
	}

	agent.Update(func(rec *types.LifecycleRecord) { rec.Submission = sub })

	// Render the review workspace before announcing reviewing, so the
	// reviewer never sees the state without the files. Best-effort: a
	// failed render does not error the agent.
	if r.workspaces != nil {
		if err := r.workspaces.Materialize(agent.ID(), agent.Overlay()); err != nil {
			lg := log.WithAgentID(agent.ID())
			lg.Warn().
				Str("component", "runner").
				Err(err).
				Msg("failed to materialize review workspace")
		}
	}

	if err := r.transition(agent, types.StateReviewing); err != nil {
		return r.fail(agent, err)
	}
	return nil
}

// transition moves the agent into state, persists the record, and
// announces the change.
func (r *Runner) transition(agent *Agent, state types.AgentState) error {
	rec := agent.Update(func(rec *types.LifecycleRecord) {
		rec.State = state
		rec.StateChangedAt = time.Now().UTC()
	})
	if err := r.records.Save(&rec); err != nil {
		return err
	}
	metrics.StateTransitionsTotal.WithLabelValues(string(state)).Inc()
	r.publish(events.EventAgentStateChanged, &rec, "")
	lg := log.WithAgentID(rec.AgentID)
	lg.Debug().
		Str("component", "runner").
		Str("state", string(state)).
		Msg("state transition")
	return nil
}

// fail marks the agent errored with the cause's message. The errored
// write is best-effort: if it fails too, the stale record stays behind
// for the next recovery pass to repair.
func (r *Runner) fail(agent *Agent, cause error) error {
	rec := agent.Update(func(rec *types.LifecycleRecord) {
		rec.State = types.StateErrored
		rec.Error = cause.Error()
		rec.StateChangedAt = time.Now().UTC()
	})
	if err := r.records.Save(&rec); err != nil {
		lg := log.WithAgentID(rec.AgentID)
		lg.Error().
			Str("component", "runner").
			Err(err).
			Msg("failed to persist errored state")
	} else {
		metrics.StateTransitionsTotal.WithLabelValues(string(types.StateErrored)).Inc()
	}
	r.publish(events.EventAgentErrored, &rec, cause.Error())
	lg := log.WithAgentID(rec.AgentID)
	lg.Error().
		Str("component", "runner").
		Err(cause).
		Msg("lifecycle run failed")
	return cause
}

// collectSubmission reads and decodes the script's submission. A missing
// or malformed payload yields a nil submission, not an error.
func (r *Runner) collectSubmission(agent *Agent) (*types.Submission, error) {
	raw, err := agent.Overlay().KVGet(submissionKey)
	if errors.Is(err, types.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	sub, err := decodeSubmission(raw)
	if err != nil {
		lg := log.WithAgentID(agent.ID())
		lg.Warn().
			Str("component", "runner").
			Err(err).
			Msg("submission payload is malformed")
		return nil, nil
	}
	return sub, nil
}

// decodeSubmission accepts both the tagged form the sandbox writes
// ({agent_id, submission: {...}}) and a bare {summary, changed_files}
// object.
func decodeSubmission(raw []byte) (*types.Submission, error) {
	var tagged struct {
		AgentID    string            `json:"agent_id"`
		Submission *types.Submission `json:"submission"`
	}
	if err := json.Unmarshal(raw, &tagged); err == nil && tagged.Submission != nil {
		return tagged.Submission, nil
	}
	var plain types.Submission
	if err := json.Unmarshal(raw, &plain); err != nil {
		return nil, err
	}
	return &plain, nil
}

func (r *Runner) publish(eventType events.EventType, rec *types.LifecycleRecord, msg string) {
	if r.broker == nil {
		return
	}
	r.broker.Publish(&events.Event{
		Type:    eventType,
		AgentID: rec.AgentID,
		State:   rec.State,
		Message: msg,
	})
}
