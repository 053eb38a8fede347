package workspace

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cairnlabs/cairn/pkg/overlay"
)

func newLayers(t *testing.T) (stable, agent *overlay.Overlay) {
	t.Helper()
	dir := t.TempDir()

	stable, err := overlay.Open(filepath.Join(dir, "stable.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { stable.Close() })

	agent, err = overlay.Open(filepath.Join(dir, "agent-1.db"), stable)
	require.NoError(t, err)
	t.Cleanup(func() { agent.Close() })
	return stable, agent
}

func TestMaterializeRendersMergedView(t *testing.T) {
	stable, agent := newLayers(t)
	require.NoError(t, stable.WriteFile("inherited/base.txt", []byte("from stable")))
	require.NoError(t, agent.WriteFile("src/new.go", []byte("package new")))
	require.NoError(t, agent.WriteFile("inherited/base.txt", []byte("agent version")))

	m := NewManager(t.TempDir())
	require.NoError(t, m.Materialize("agent-1", agent))

	dir := m.Path("agent-1")
	data, err := os.ReadFile(filepath.Join(dir, "src", "new.go"))
	require.NoError(t, err)
	assert.Equal(t, "package new", string(data))

	// The agent's copy shadows the inherited one
	data, err = os.ReadFile(filepath.Join(dir, "inherited", "base.txt"))
	require.NoError(t, err)
	assert.Equal(t, "agent version", string(data))
}

func TestMaterializeReplacesPreviousRender(t *testing.T) {
	_, agent := newLayers(t)
	require.NoError(t, agent.WriteFile("kept.txt", []byte("v2")))

	m := NewManager(t.TempDir())
	stale := filepath.Join(m.Path("agent-1"), "stale.txt")
	require.NoError(t, os.MkdirAll(m.Path("agent-1"), 0755))
	require.NoError(t, os.WriteFile(stale, []byte("old"), 0644))

	require.NoError(t, m.Materialize("agent-1", agent))

	_, err := os.Stat(stale)
	assert.True(t, os.IsNotExist(err), "stale file should be gone")
	data, err := os.ReadFile(filepath.Join(m.Path("agent-1"), "kept.txt"))
	require.NoError(t, err)
	assert.Equal(t, "v2", string(data))
}

func TestCleanup(t *testing.T) {
	_, agent := newLayers(t)
	require.NoError(t, agent.WriteFile("a.txt", []byte("x")))

	m := NewManager(t.TempDir())
	require.NoError(t, m.Materialize("agent-1", agent))
	require.NoError(t, m.Cleanup("agent-1"))

	_, err := os.Stat(m.Path("agent-1"))
	assert.True(t, os.IsNotExist(err))

	// Cleaning an agent that was never materialized is fine
	assert.NoError(t, m.Cleanup("agent-never"))
}

func TestRejectsEscapingIDs(t *testing.T) {
	_, agent := newLayers(t)
	m := NewManager(t.TempDir())

	for _, id := range []string{"", "..", "../sibling", "a/b", `a\b`} {
		assert.Error(t, m.Materialize(id, agent), "id %q", id)
		assert.Error(t, m.Cleanup(id), "id %q", id)
	}
}
