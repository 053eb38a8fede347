package orchestrator

import (
	"time"

	"github.com/cairnlabs/cairn/pkg/log"
	"github.com/cairnlabs/cairn/pkg/metrics"
)

// cleanupLoop periodically sweeps expired terminal agents.
func (o *Orchestrator) cleanupLoop() {
	defer o.loopWg.Done()
	ticker := time.NewTicker(o.cfg.Orchestrator.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			o.CleanupOnce()
		case <-o.stopCh:
			return
		}
	}
}

// CleanupOnce removes terminal lifecycle records older than the
// configured retention, together with their trashed overlay files and
// bin index entries. Returns how many agents were swept.
func (o *Orchestrator) CleanupOnce() int {
	removed, err := o.records.CleanupOld(o.cfg.Orchestrator.CleanupMaxAge, o.cfg.AgentFSDir())
	if err != nil {
		log.Logger.Warn().
			Str("component", "orchestrator").
			Err(err).
			Msg("cleanup sweep failed")
		return 0
	}
	if len(removed) == 0 {
		return 0
	}

	for _, agentID := range removed {
		if err := o.store.DropTrash(agentID); err != nil {
			lg := log.WithAgentID(agentID)
			lg.Debug().
				Str("component", "orchestrator").
				Err(err).
				Msg("no trash index entry to drop")
		}
		metrics.AgentsCleanedTotal.Inc()
	}

	log.Logger.Info().
		Str("component", "orchestrator").
		Int("removed", len(removed)).
		Msg("cleanup sweep completed")
	o.writeSnapshot()
	return len(removed)
}
