package merge

import (
	"fmt"
	"sync"

	"github.com/cairnlabs/cairn/pkg/events"
	"github.com/cairnlabs/cairn/pkg/log"
	"github.com/cairnlabs/cairn/pkg/metrics"
	"github.com/cairnlabs/cairn/pkg/overlay"
)

// Engine copies an accepted agent's work into the stable overlay.
// A single mutex makes it the only writer stable ever sees.
type Engine struct {
	mu     sync.Mutex
	broker *events.Broker
}

// NewEngine creates a merge engine. broker may be nil.
func NewEngine(broker *events.Broker) *Engine {
	return &Engine{broker: broker}
}

// Merge copies every file physically present in source's own layer into
// target at the same path, returning the number of files copied. Files
// source merely inherits from its base are never copied. A per-file
// failure is logged and skipped; the merge is not atomic across files.
func (e *Engine) Merge(source, target *overlay.Overlay) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	paths, err := source.LocalPaths()
	if err != nil {
		return 0, fmt.Errorf("failed to enumerate overlay %s: %w", source.Name(), err)
	}

	merged := 0
	for _, p := range paths {
		data, err := source.ReadLocal(p)
		if err != nil {
			log.Logger.Warn().
				Str("component", "merge").
				Str("agent_id", source.Name()).
				Str("path", p).
				Err(err).
				Msg("skipping unreadable file")
			continue
		}
		if err := target.WriteFile(p, data); err != nil {
			log.Logger.Warn().
				Str("component", "merge").
				Str("agent_id", source.Name()).
				Str("path", p).
				Err(err).
				Msg("failed to merge file")
			continue
		}
		merged++
	}

	metrics.MergesTotal.Inc()
	metrics.MergedFilesTotal.Add(float64(merged))
	if e.broker != nil {
		e.broker.Publish(&events.Event{
			Type:    events.EventMergeCompleted,
			AgentID: source.Name(),
			Message: fmt.Sprintf("%d of %d files merged", merged, len(paths)),
		})
	}
	log.Logger.Info().
		Str("component", "merge").
		Str("agent_id", source.Name()).
		Int("files", merged).
		Msg("merge completed")
	return merged, nil
}
