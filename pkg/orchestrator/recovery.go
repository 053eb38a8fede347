package orchestrator

import (
	"fmt"
	"time"

	"github.com/cairnlabs/cairn/pkg/events"
	"github.com/cairnlabs/cairn/pkg/log"
	"github.com/cairnlabs/cairn/pkg/metrics"
	"github.com/cairnlabs/cairn/pkg/runner"
	"github.com/cairnlabs/cairn/pkg/types"
)

// recover reconstructs live state from the lifecycle store after a
// restart. Queued agents re-enter the dispatch queue; agents that were
// mid-lifecycle stay parked in their recorded state for the operator
// to inspect; agents whose overlay backing vanished are marked
// errored. This is the only path by which persisted state becomes live
// again.
func (o *Orchestrator) recover() error {
	records, err := o.records.ListActive()
	if err != nil {
		return err
	}

	var requeued, reopened, lost int
	for i := range records {
		rec := records[i]
		if rec.State.Terminal() {
			// Errored agents stay visible in listings, but their
			// overlay is already trashed; nothing to reopen.
			continue
		}

		if !o.store.BackingExists(rec.AgentID) {
			o.markLost(&rec, "overlay missing after restart")
			lost++
			continue
		}

		ov, err := o.store.OpenAgent(rec.AgentID)
		if err != nil {
			o.markLost(&rec, fmt.Sprintf("failed to reopen overlay: %v", err))
			lost++
			continue
		}

		o.mu.Lock()
		o.agents[rec.AgentID] = runner.NewAgent(rec, ov)
		o.mu.Unlock()
		reopened++

		if rec.State == types.StateQueued {
			o.queue.Enqueue(rec.AgentID, rec.Priority)
			requeued++
		}
	}

	if reopened > 0 || lost > 0 {
		log.Logger.Info().
			Str("component", "orchestrator").
			Int("reopened", reopened).
			Int("requeued", requeued).
			Int("lost", lost).
			Msg("recovery completed")
	}
	return nil
}

// markLost transitions an unrecoverable agent to errored. A failed
// save is logged and left alone; the record is no worse off than
// before and the next recovery retries.
func (o *Orchestrator) markLost(rec *types.LifecycleRecord, reason string) {
	rec.State = types.StateErrored
	rec.Error = reason
	rec.StateChangedAt = time.Now().UTC()
	if err := o.records.Save(rec); err != nil {
		lg := log.WithAgentID(rec.AgentID)
		lg.Warn().
			Str("component", "orchestrator").
			Err(err).
			Msg("failed to mark lost agent errored")
		return
	}
	metrics.StateTransitionsTotal.WithLabelValues(string(types.StateErrored)).Inc()
	o.broker.Publish(&events.Event{
		Type:    events.EventAgentErrored,
		AgentID: rec.AgentID,
		State:   types.StateErrored,
		Message: reason,
	})
	lg := log.WithAgentID(rec.AgentID)
	lg.Warn().
		Str("component", "orchestrator").
		Str("reason", reason).
		Msg("agent lost across restart")
}
