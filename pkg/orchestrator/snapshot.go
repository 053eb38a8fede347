package orchestrator

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/cairnlabs/cairn/pkg/events"
	"github.com/cairnlabs/cairn/pkg/log"
	"github.com/cairnlabs/cairn/pkg/types"
)

// QueueSnapshot summarizes queue load for the display snapshot.
type QueueSnapshot struct {
	Pending int `json:"pending"`
	Running int `json:"running"`
}

// Snapshot is the summary written to <home>/state/orchestrator.json
// after every command and transition. It exists for CLI consumers that
// cannot open the lifecycle store while the service holds its lock;
// the store stays authoritative.
type Snapshot struct {
	ProjectRoot string                           `json:"project_root"`
	UpdatedAt   time.Time                        `json:"updated_at"`
	Queue       QueueSnapshot                    `json:"queue"`
	Agents      map[string]types.LifecycleRecord `json:"agents"`
}

// ReadSnapshot loads a previously written display snapshot.
func ReadSnapshot(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to decode state snapshot %s: %w", path, err)
	}
	return &snap, nil
}

// writeSnapshot renders the current summary through a temp-file rename
// so readers never observe a torn write. Failures are logged and
// swallowed; the snapshot is advisory.
func (o *Orchestrator) writeSnapshot() {
	o.snapMu.Lock()
	defer o.snapMu.Unlock()

	snap := Snapshot{
		ProjectRoot: o.cfg.Paths.ProjectRoot,
		UpdatedAt:   time.Now().UTC(),
		Agents:      make(map[string]types.LifecycleRecord),
	}
	snap.Queue.Pending = o.queue.Size()

	o.mu.RLock()
	for id, agent := range o.agents {
		rec := agent.Record()
		snap.Agents[id] = rec
		if rec.State.Running() {
			snap.Queue.Running++
		}
	}
	o.mu.RUnlock()

	data, err := json.MarshalIndent(&snap, "", "  ")
	if err != nil {
		log.Logger.Warn().
			Str("component", "orchestrator").
			Err(err).
			Msg("failed to encode state snapshot")
		return
	}

	path := o.cfg.StateFile()
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		log.Logger.Warn().
			Str("component", "orchestrator").
			Err(err).
			Msg("failed to write state snapshot")
		return
	}
	if err := os.Rename(tmp, path); err != nil {
		log.Logger.Warn().
			Str("component", "orchestrator").
			Err(err).
			Msg("failed to publish state snapshot")
	}
}

// snapshotLoop refreshes the display snapshot whenever lifecycle
// events fire, so mid-run transitions show up without polling.
func (o *Orchestrator) snapshotLoop(sub events.Subscriber) {
	defer o.loopWg.Done()
	for {
		select {
		case _, ok := <-sub:
			if !ok {
				return
			}
			o.writeSnapshot()
		case <-o.stopCh:
			return
		}
	}
}
