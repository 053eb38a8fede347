package orchestrator

import (
	"time"

	"github.com/cairnlabs/cairn/pkg/metrics"
	"github.com/cairnlabs/cairn/pkg/types"
)

// collectInterval is how often gauges are recomputed from live state.
const collectInterval = 15 * time.Second

// Collector samples orchestrator state into Prometheus gauges.
// Counters update at their call sites; population gauges are cheaper
// to recompute here than to maintain incrementally.
type Collector struct {
	orch   *Orchestrator
	stopCh chan struct{}
}

// NewCollector creates a collector over orch
func NewCollector(orch *Orchestrator) *Collector {
	return &Collector{
		orch:   orch,
		stopCh: make(chan struct{}),
	}
}

// Start begins periodic collection
func (c *Collector) Start() {
	ticker := time.NewTicker(collectInterval)
	go func() {
		// Collect immediately on start
		c.collect()

		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	o := c.orch

	metrics.QueueDepth.Set(float64(o.queue.Size()))

	counts := make(map[types.AgentState]int)
	o.mu.RLock()
	total := len(o.agents)
	for _, agent := range o.agents {
		counts[agent.State()]++
	}
	o.mu.RUnlock()

	metrics.ActiveAgents.Set(float64(total))
	for _, state := range []types.AgentState{
		types.StateQueued,
		types.StateSpawning,
		types.StateGenerating,
		types.StateExecuting,
		types.StateSubmitting,
		types.StateReviewing,
		types.StateAccepted,
		types.StateRejected,
		types.StateErrored,
	} {
		metrics.AgentsByState.WithLabelValues(string(state)).Set(float64(counts[state]))
	}
}
