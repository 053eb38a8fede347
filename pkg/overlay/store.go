package overlay

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/cairnlabs/cairn/pkg/types"
)

const (
	stableFile  = "stable.db"
	binFile     = "bin.db"
	trashPrefix = "bin-"
)

// Store manages every overlay layer under one .agentfs directory:
//
//	stable.db          shared base workspace
//	<agent_id>.db      per-agent layer, base = stable
//	bin-<agent_id>.db  trashed layer awaiting cleanup
//	bin.db             trash index (KV keys "trash:<agent_id>")
type Store struct {
	dir    string
	mu     sync.Mutex
	stable *Overlay
	agents map[string]*Overlay
	bin    *Overlay
}

// NewStore opens the stable overlay under dir, creating the directory
// if needed.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create agentfs directory: %w", err)
	}

	stable, err := Open(filepath.Join(dir, stableFile), nil)
	if err != nil {
		return nil, err
	}

	return &Store{
		dir:    dir,
		stable: stable,
		agents: make(map[string]*Overlay),
	}, nil
}

// Dir returns the .agentfs directory
func (s *Store) Dir() string {
	return s.dir
}

// Stable returns the shared base overlay
func (s *Store) Stable() *Overlay {
	return s.stable
}

// AgentPath returns where the agent's active backing file lives.
func (s *Store) AgentPath(agentID string) string {
	return filepath.Join(s.dir, agentID+".db")
}

// TrashPath returns where the agent's backing file lives after trashing.
func (s *Store) TrashPath(agentID string) string {
	return filepath.Join(s.dir, trashPrefix+agentID+".db")
}

// OpenAgent opens (creating if necessary) the agent's overlay with
// stable as its base. Repeated calls return the same handle.
func (s *Store) OpenAgent(agentID string) (*Overlay, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if o, ok := s.agents[agentID]; ok {
		return o, nil
	}

	o, err := Open(s.AgentPath(agentID), s.stable)
	if err != nil {
		return nil, err
	}
	s.agents[agentID] = o
	return o, nil
}

// Agent returns the open overlay handle for agentID, if any.
func (s *Store) Agent(agentID string) (*Overlay, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.agents[agentID]
	return o, ok
}

// CloseAgent closes and forgets the agent's overlay handle. Closing an
// agent that is not open is a no-op.
func (s *Store) CloseAgent(agentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.agents[agentID]
	if !ok {
		return nil
	}
	delete(s.agents, agentID)
	return o.Close()
}

// TrashAgent closes the agent's overlay and renames its backing file
// out of the active set. The file is renamed, not deleted, so the
// cleanup pass can remove it later. Idempotent: trashing an
// already-trashed agent returns the existing trash path.
func (s *Store) TrashAgent(agentID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if o, ok := s.agents[agentID]; ok {
		delete(s.agents, agentID)
		if err := o.Close(); err != nil {
			return "", fmt.Errorf("failed to close overlay for %s: %w", agentID, err)
		}
	}

	active := filepath.Join(s.dir, agentID+".db")
	trashed := filepath.Join(s.dir, trashPrefix+agentID+".db")

	if _, err := os.Stat(active); err == nil {
		if err := os.Rename(active, trashed); err != nil {
			return "", fmt.Errorf("failed to trash overlay for %s: %w", agentID, err)
		}
		return trashed, nil
	}
	if _, err := os.Stat(trashed); err == nil {
		return trashed, nil
	}
	return "", fmt.Errorf("%w: overlay for agent %s", types.ErrNotFound, agentID)
}

// BackingExists reports whether the agent's active backing file is on
// disk. Recovery uses this to detect overlays lost between restarts.
func (s *Store) BackingExists(agentID string) bool {
	_, err := os.Stat(s.AgentPath(agentID))
	return err == nil
}

// RecordTrash notes a trashed agent in the bin index so cleanup can
// report what it removed long after the lifecycle record is gone.
func (s *Store) RecordTrash(rec *types.TrashRecord) error {
	bin, err := s.openBin()
	if err != nil {
		return err
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return bin.KVSet("trash:"+rec.AgentID, data)
}

// GetTrash returns the trash index entry for agentID.
func (s *Store) GetTrash(agentID string) (*types.TrashRecord, error) {
	bin, err := s.openBin()
	if err != nil {
		return nil, err
	}
	data, err := bin.KVGet("trash:" + agentID)
	if err != nil {
		return nil, err
	}
	var rec types.TrashRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode trash record for %s: %w", agentID, err)
	}
	return &rec, nil
}

// DropTrash removes the trash index entry for agentID.
func (s *Store) DropTrash(agentID string) error {
	bin, err := s.openBin()
	if err != nil {
		return err
	}
	return bin.KVDelete("trash:" + agentID)
}

func (s *Store) openBin() (*Overlay, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.bin != nil {
		return s.bin, nil
	}
	bin, err := Open(filepath.Join(s.dir, binFile), nil)
	if err != nil {
		return nil, err
	}
	s.bin = bin
	return bin, nil
}

// Close closes every open overlay handle
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var firstErr error
	for id, o := range s.agents {
		if err := o.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to close overlay for %s: %w", id, err)
		}
		delete(s.agents, id)
	}
	if s.bin != nil {
		if err := s.bin.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		s.bin = nil
	}
	if err := s.stable.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
