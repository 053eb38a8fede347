package runner

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cairnlabs/cairn/pkg/events"
	"github.com/cairnlabs/cairn/pkg/lifecycle"
	"github.com/cairnlabs/cairn/pkg/overlay"
	"github.com/cairnlabs/cairn/pkg/sandbox"
	"github.com/cairnlabs/cairn/pkg/types"
	"github.com/cairnlabs/cairn/pkg/workspace"
)

const happyScript = `
write_file("greeting.txt", "hello")
submit_result("wrote a greeting", {"greeting.txt"})
`

type fakeGenerator struct {
	script string
	err    error
}

func (f *fakeGenerator) GenerateScript(_ context.Context, _ string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.script, nil
}

// recordingKV wraps the lifecycle store's backing KV and notes the state
// carried by every persisted record, in write order.
type recordingKV struct {
	lifecycle.KV

	mu     sync.Mutex
	states []types.AgentState
}

func (r *recordingKV) KVSet(key string, value []byte) error {
	var rec types.LifecycleRecord
	if err := json.Unmarshal(value, &rec); err == nil {
		r.mu.Lock()
		r.states = append(r.states, rec.State)
		r.mu.Unlock()
	}
	return r.KV.KVSet(key, value)
}

func (r *recordingKV) saved() []types.AgentState {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]types.AgentState, len(r.states))
	copy(out, r.states)
	return out
}

type harness struct {
	runner  *Runner
	agent   *Agent
	kv      *recordingKV
	records *lifecycle.Store
}

func newHarness(t *testing.T, gen *fakeGenerator, broker *events.Broker) *harness {
	return newHarnessWithWorkspaces(t, gen, broker, nil)
}

func newHarnessWithWorkspaces(t *testing.T, gen *fakeGenerator, broker *events.Broker, workspaces *workspace.Manager) *harness {
	t.Helper()
	dir := t.TempDir()

	stable, err := overlay.Open(filepath.Join(dir, "stable.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { stable.Close() })

	agentOv, err := overlay.Open(filepath.Join(dir, "agent-1.db"), stable)
	require.NoError(t, err)
	t.Cleanup(func() { agentOv.Close() })

	kv := &recordingKV{KV: stable}
	records := lifecycle.NewStore(kv)

	now := time.Now().UTC()
	rec := types.LifecycleRecord{
		AgentID:         "agent-1",
		Task:            "write a greeting",
		Priority:        types.PriorityNormal,
		State:           types.StateQueued,
		CreatedAt:       now,
		StateChangedAt:  now,
		OverlayLocation: agentOv.Path(),
	}
	require.NoError(t, records.Save(&rec))
	kv.states = nil // drop the seed write

	limits := sandbox.Limits{
		MaxDuration:  5 * time.Second,
		MaxMemory:    100 << 20,
		MaxRecursion: 1000,
	}
	return &harness{
		runner:  New(records, gen, nil, workspaces, broker, limits),
		agent:   NewAgent(rec, agentOv),
		kv:      kv,
		records: records,
	}
}

func TestRunHappyPath(t *testing.T) {
	h := newHarness(t, &fakeGenerator{script: happyScript}, nil)

	err := h.runner.Run(context.Background(), h.agent)
	require.NoError(t, err)

	assert.Equal(t, types.StateReviewing, h.agent.State())
	assert.Equal(t, []types.AgentState{
		types.StateSpawning,
		types.StateGenerating,
		types.StateExecuting,
		types.StateSubmitting,
		types.StateReviewing,
	}, h.kv.saved())

	rec, err := h.records.Load("agent-1")
	require.NoError(t, err)
	assert.Equal(t, types.StateReviewing, rec.State)
	require.NotNil(t, rec.Submission)
	assert.Equal(t, "wrote a greeting", rec.Submission.Summary)
	assert.Equal(t, []string{"greeting.txt"}, rec.Submission.ChangedFiles)
	assert.False(t, rec.StateChangedAt.Before(rec.CreatedAt))

	data, err := h.agent.Overlay().ReadFile("greeting.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

func TestRunGenerationFailure(t *testing.T) {
	cause := errors.New("model endpoint is down")
	h := newHarness(t, &fakeGenerator{err: cause}, nil)

	err := h.runner.Run(context.Background(), h.agent)
	require.ErrorIs(t, err, cause)

	assert.Equal(t, types.StateErrored, h.agent.State())
	rec, loadErr := h.records.Load("agent-1")
	require.NoError(t, loadErr)
	assert.Equal(t, types.StateErrored, rec.State)
	assert.Contains(t, rec.Error, "model endpoint is down")
}

func TestRunValidationFailureSkipsExecution(t *testing.T) {
	h := newHarness(t, &fakeGenerator{script: `os.execute("rm -rf /")`}, nil)

	err := h.runner.Run(context.Background(), h.agent)
	require.ErrorIs(t, err, types.ErrValidation)

	// errored straight from generating, never executing
	assert.Equal(t, []types.AgentState{
		types.StateSpawning,
		types.StateGenerating,
		types.StateErrored,
	}, h.kv.saved())
}

func TestRunSandboxFailure(t *testing.T) {
	script := `
error("boom")
submit_result("unreached", {})
`
	h := newHarness(t, &fakeGenerator{script: script}, nil)

	err := h.runner.Run(context.Background(), h.agent)
	require.ErrorIs(t, err, types.ErrSandbox)

	rec, loadErr := h.records.Load("agent-1")
	require.NoError(t, loadErr)
	assert.Equal(t, types.StateErrored, rec.State)
	assert.Contains(t, rec.Error, "boom")
}

func TestRunMissingSubmission(t *testing.T) {
	// Passes validation (the call is present) but never submits
	script := `
if false then
	submit_result("never", {})
end
`
	h := newHarness(t, &fakeGenerator{script: script}, nil)

	err := h.runner.Run(context.Background(), h.agent)
	require.NoError(t, err)

	assert.Equal(t, types.StateReviewing, h.agent.State())
	rec, loadErr := h.records.Load("agent-1")
	require.NoError(t, loadErr)
	assert.Nil(t, rec.Submission)
}

func TestRunMaterializesReviewWorkspace(t *testing.T) {
	workspaces := workspace.NewManager(t.TempDir())
	h := newHarnessWithWorkspaces(t, &fakeGenerator{script: happyScript}, nil, workspaces)

	require.NoError(t, h.runner.Run(context.Background(), h.agent))

	data, err := os.ReadFile(filepath.Join(workspaces.Path("agent-1"), "greeting.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

func TestRunWithoutOverlay(t *testing.T) {
	h := newHarness(t, &fakeGenerator{script: happyScript}, nil)
	orphan := NewAgent(h.agent.Record(), nil)

	err := h.runner.Run(context.Background(), orphan)
	require.ErrorIs(t, err, types.ErrStorage)
	assert.Equal(t, types.StateErrored, orphan.State())
}

func TestRunPublishesEvents(t *testing.T) {
	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()
	sub := broker.Subscribe()

	h := newHarness(t, &fakeGenerator{script: happyScript}, broker)
	require.NoError(t, h.runner.Run(context.Background(), h.agent))

	var got []types.AgentState
	deadline := time.After(2 * time.Second)
	for len(got) < 5 {
		select {
		case ev := <-sub:
			require.Equal(t, events.EventAgentStateChanged, ev.Type)
			require.Equal(t, "agent-1", ev.AgentID)
			got = append(got, ev.State)
		case <-deadline:
			t.Fatalf("timed out after %d events", len(got))
		}
	}
	assert.Equal(t, []types.AgentState{
		types.StateSpawning,
		types.StateGenerating,
		types.StateExecuting,
		types.StateSubmitting,
		types.StateReviewing,
	}, got)
}

func TestDecodeSubmission(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    *types.Submission
		wantErr bool
	}{
		{
			name: "tagged",
			raw:  `{"agent_id":"a1","submission":{"summary":"done","changed_files":["x.go"]}}`,
			want: &types.Submission{Summary: "done", ChangedFiles: []string{"x.go"}},
		},
		{
			name: "untagged",
			raw:  `{"summary":"done","changed_files":["x.go","y.go"]}`,
			want: &types.Submission{Summary: "done", ChangedFiles: []string{"x.go", "y.go"}},
		},
		{
			name: "empty object",
			raw:  `{}`,
			want: &types.Submission{},
		},
		{
			name:    "not an object",
			raw:     `"just a string"`,
			wantErr: true,
		},
		{
			name:    "garbage",
			raw:     `{{{`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decodeSubmission([]byte(tt.raw))
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
