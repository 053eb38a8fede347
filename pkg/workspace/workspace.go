package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/cairnlabs/cairn/pkg/log"
	"github.com/cairnlabs/cairn/pkg/overlay"
)

// Manager materializes agent overlays into real directories so a human
// can review an agent's work with ordinary tools before deciding.
type Manager struct {
	root string
}

// NewManager creates a manager rooted at root (one subdirectory per
// agent).
func NewManager(root string) *Manager {
	return &Manager{root: root}
}

// Path returns the review directory for one agent.
func (m *Manager) Path(agentID string) string {
	return filepath.Join(m.root, agentID)
}

// Materialize renders the overlay's merged view into the agent's review
// directory, replacing whatever a previous materialization left there.
func (m *Manager) Materialize(agentID string, ov *overlay.Overlay) error {
	if err := checkID(agentID); err != nil {
		return err
	}
	dir := m.Path(agentID)
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to reset workspace %s: %w", dir, err)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create workspace %s: %w", dir, err)
	}

	files := 0
	err := ov.Walk(func(p string, data []byte) error {
		dest := filepath.Join(dir, filepath.FromSlash(p))
		if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
			return err
		}
		if err := os.WriteFile(dest, data, 0644); err != nil {
			return err
		}
		files++
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to materialize workspace for %s: %w", agentID, err)
	}

	lg := log.WithAgentID(agentID)
	lg.Debug().
		Str("component", "workspace").
		Str("dir", dir).
		Int("files", files).
		Msg("workspace materialized")
	return nil
}

// Cleanup removes the agent's review directory. A directory that never
// existed is not an error.
func (m *Manager) Cleanup(agentID string) error {
	if err := checkID(agentID); err != nil {
		return err
	}
	if err := os.RemoveAll(m.Path(agentID)); err != nil {
		return fmt.Errorf("failed to remove workspace for %s: %w", agentID, err)
	}
	return nil
}

// checkID refuses identifiers that would resolve outside the workspace
// root.
func checkID(agentID string) error {
	if agentID == "" ||
		strings.Contains(agentID, "..") ||
		strings.ContainsAny(agentID, `/\`) {
		return fmt.Errorf("invalid agent id %q", agentID)
	}
	return nil
}
