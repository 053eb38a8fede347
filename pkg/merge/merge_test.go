package merge

import (
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

func TestMergeCopiesLocalWrites(t *testing.T) {
	stable, agent := newLayers(t)
	require.NoError(t, agent.WriteFile("src/main.go", []byte("package main")))
	require.NoError(t, agent.WriteFile("docs/readme.md", []byte("# hi")))

	merged, err := NewEngine(nil).Merge(agent, stable)
	require.NoError(t, err)
	assert.Equal(t, 2, merged)

	data, err := stable.ReadFile("src/main.go")
	require.NoError(t, err)
	assert.Equal(t, "package main", string(data))

	data, err = stable.ReadFile("docs/readme.md")
	require.NoError(t, err)
	assert.Equal(t, "# hi", string(data))
}

func TestMergeSkipsInheritedFiles(t *testing.T) {
	stable, agent := newLayers(t)
	require.NoError(t, stable.WriteFile("base.txt", []byte("original")))
	require.NoError(t, agent.WriteFile("new.txt", []byte("agent work")))

	// The agent can read base.txt, but it is not part of its own layer
	_, err := agent.ReadFile("base.txt")
	require.NoError(t, err)

	merged, err := NewEngine(nil).Merge(agent, stable)
	require.NoError(t, err)
	assert.Equal(t, 1, merged)

	data, err := stable.ReadFile("base.txt")
	require.NoError(t, err)
	assert.Equal(t, "original", string(data))
}

func TestMergeOverwritesStablePaths(t *testing.T) {
	stable, agent := newLayers(t)
	require.NoError(t, stable.WriteFile("config.yaml", []byte("retries: 1")))
	require.NoError(t, agent.WriteFile("config.yaml", []byte("retries: 5")))

	merged, err := NewEngine(nil).Merge(agent, stable)
	require.NoError(t, err)
	assert.Equal(t, 1, merged)

	data, err := stable.ReadFile("config.yaml")
	require.NoError(t, err)
	assert.Equal(t, "retries: 5", string(data))
}

func TestMergeEmptyLayer(t *testing.T) {
	stable, agent := newLayers(t)

	merged, err := NewEngine(nil).Merge(agent, stable)
	require.NoError(t, err)
	assert.Zero(t, merged)
}

func TestMergePerFileFailureDoesNotAbort(t *testing.T) {
	dir := t.TempDir()
	stable, err := overlay.Open(filepath.Join(dir, "stable.db"), nil)
	require.NoError(t, err)

	agent, err := overlay.Open(filepath.Join(dir, "agent-1.db"), stable)
	require.NoError(t, err)
	t.Cleanup(func() { agent.Close() })
	require.NoError(t, agent.WriteFile("a.txt", []byte("x")))
	require.NoError(t, agent.WriteFile("b.txt", []byte("y")))

	// A closed target fails every write; the merge still completes
	require.NoError(t, stable.Close())
	merged, err := NewEngine(nil).Merge(agent, stable)
	require.NoError(t, err)
	assert.Zero(t, merged)
}
