package runner

import (
	"sync"

	"github.com/cairnlabs/cairn/pkg/overlay"
	"github.com/cairnlabs/cairn/pkg/types"
)

// Agent is the live, in-memory context for one agent: a copy of its
// lifecycle record plus the open overlay handle. The record here mirrors
// the persisted one; every mutation goes through Update and is followed
// by a save, so readers always observe a state that is at least as old as
// the durable record.
type Agent struct {
	mu      sync.RWMutex
	record  types.LifecycleRecord
	overlay *overlay.Overlay
}

// NewAgent wraps a lifecycle record and its open overlay.
func NewAgent(rec types.LifecycleRecord, ov *overlay.Overlay) *Agent {
	return &Agent{record: rec, overlay: ov}
}

// ID returns the agent identifier.
func (a *Agent) ID() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.record.AgentID
}

// State returns the current in-memory lifecycle state.
func (a *Agent) State() types.AgentState {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.record.State
}

// Record returns a copy of the current lifecycle record.
func (a *Agent) Record() types.LifecycleRecord {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.record
}

// Overlay returns the agent's workspace handle.
func (a *Agent) Overlay() *overlay.Overlay {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.overlay
}

// Update applies fn to the record under the agent's lock and returns the
// resulting copy. fn must not block; persistence happens outside the lock
// with the returned snapshot.
func (a *Agent) Update(fn func(*types.LifecycleRecord)) types.LifecycleRecord {
	a.mu.Lock()
	defer a.mu.Unlock()
	fn(&a.record)
	return a.record
}
