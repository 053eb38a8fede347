package lifecycle

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/cairnlabs/cairn/pkg/log"
	"github.com/cairnlabs/cairn/pkg/types"
)

// keyPrefix namespaces lifecycle records inside the backing KV so they
// coexist with other stable-layer metadata.
const keyPrefix = "agent:"

// KV is the slice of the overlay API the store persists through.
type KV interface {
	KVGet(key string) ([]byte, error)
	KVSet(key string, value []byte) error
	KVDelete(key string) error
	KVList(prefix string) ([]string, error)
}

// Store is the durable map agent_id → LifecycleRecord. It is the
// single authority for agent state: every transition persists here
// before the lifecycle proceeds. The backing KV serializes writes, so
// concurrent Save/Load/List need no additional locking.
type Store struct {
	kv KV
}

// NewStore creates a lifecycle store over the given KV namespace
func NewStore(kv KV) *Store {
	return &Store{kv: kv}
}

// Save upserts the record. Whole-record replacement; the previous
// version is gone once this returns.
func (s *Store) Save(rec *types.LifecycleRecord) error {
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("%w: %v", types.ErrStorage, err)
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("%w: encode record %s: %v", types.ErrStorage, rec.AgentID, err)
	}
	return s.kv.KVSet(keyPrefix+rec.AgentID, data)
}

// Load returns the record for agentID, or ErrNotFound.
func (s *Store) Load(agentID string) (*types.LifecycleRecord, error) {
	data, err := s.kv.KVGet(keyPrefix + agentID)
	if err != nil {
		return nil, err
	}
	var rec types.LifecycleRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("%w: decode record %s: %v", types.ErrStorage, agentID, err)
	}
	return &rec, nil
}

// Delete removes the record for agentID. Deleting a missing record is
// a no-op.
func (s *Store) Delete(agentID string) error {
	return s.kv.KVDelete(keyPrefix + agentID)
}

// ListAll returns every persisted record, ordered by agent_id.
func (s *Store) ListAll() ([]types.LifecycleRecord, error) {
	keys, err := s.kv.KVList(keyPrefix)
	if err != nil {
		return nil, err
	}

	records := make([]types.LifecycleRecord, 0, len(keys))
	for _, key := range keys {
		data, err := s.kv.KVGet(key)
		if err != nil {
			// Deleted between list and get; skip
			continue
		}
		var rec types.LifecycleRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			log.Logger.Warn().
				Str("component", "lifecycle").
				Str("key", key).
				Err(err).
				Msg("skipping undecodable lifecycle record")
			continue
		}
		records = append(records, rec)
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].AgentID < records[j].AgentID
	})
	return records, nil
}

// ListActive returns records not yet reviewed. Errored agents remain
// listed so the operator sees what failed; accepted and rejected ones
// drop out immediately.
func (s *Store) ListActive() ([]types.LifecycleRecord, error) {
	all, err := s.ListAll()
	if err != nil {
		return nil, err
	}

	active := all[:0]
	for _, rec := range all {
		if !rec.State.Reviewed() {
			active = append(active, rec)
		}
	}
	return active, nil
}

// CleanupOld removes terminal records whose last transition is older
// than maxAge, along with the trashed overlay file each record points
// at. Artifacts outside scratchDir are never touched. Returns the
// agent IDs removed.
func (s *Store) CleanupOld(maxAge time.Duration, scratchDir string) ([]string, error) {
	all, err := s.ListAll()
	if err != nil {
		return nil, err
	}

	cutoff := time.Now().Add(-maxAge)
	var removed []string

	for _, rec := range all {
		if !rec.State.Terminal() {
			continue
		}
		if !rec.StateChangedAt.Before(cutoff) {
			continue
		}

		if rec.OverlayLocation != "" {
			removeScratch(rec.OverlayLocation, scratchDir)
		}
		if err := s.Delete(rec.AgentID); err != nil {
			log.Logger.Warn().
				Str("component", "lifecycle").
				Str("agent_id", rec.AgentID).
				Err(err).
				Msg("failed to delete lifecycle record during cleanup")
			continue
		}
		removed = append(removed, rec.AgentID)
	}

	return removed, nil
}

// removeScratch deletes one overlay artifact, refusing anything that
// resolves outside the scratch directory.
func removeScratch(location, scratchDir string) {
	if scratchDir == "" {
		return
	}
	absScratch, err := filepath.Abs(scratchDir)
	if err != nil {
		return
	}
	absLocation, err := filepath.Abs(location)
	if err != nil {
		return
	}
	if !strings.HasPrefix(absLocation, absScratch+string(filepath.Separator)) {
		log.Logger.Warn().
			Str("component", "lifecycle").
			Str("location", location).
			Msg("refusing to remove artifact outside scratch directory")
		return
	}
	if err := os.Remove(absLocation); err != nil && !os.IsNotExist(err) {
		log.Logger.Warn().
			Str("component", "lifecycle").
			Str("location", location).
			Err(err).
			Msg("failed to remove trashed overlay")
	}
}
