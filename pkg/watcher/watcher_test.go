package watcher

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cairnlabs/cairn/pkg/overlay"
	"github.com/cairnlabs/cairn/pkg/types"
)

func newStable(t *testing.T) *overlay.Overlay {
	t.Helper()
	stable, err := overlay.Open(filepath.Join(t.TempDir(), "stable.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { stable.Close() })
	return stable
}

func startWatcher(t *testing.T, root string, stable *overlay.Overlay) *Watcher {
	t.Helper()
	w := New(root, stable)
	require.NoError(t, w.Start())
	t.Cleanup(w.Stop)
	return w
}

func stableHas(stable *overlay.Overlay, path, content string) func() bool {
	return func() bool {
		data, err := stable.ReadFile(path)
		return err == nil && string(data) == content
	}
}

func TestMirrorsCreatedFile(t *testing.T) {
	root := t.TempDir()
	stable := newStable(t)
	startWatcher(t, root, stable)

	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.txt"), []byte("v1"), 0644))
	assert.Eventually(t, stableHas(stable, "notes.txt", "v1"), 5*time.Second, 20*time.Millisecond)
}

func TestMirrorsModifiedFile(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("a: 1"), 0644))

	stable := newStable(t)
	startWatcher(t, root, stable)

	require.NoError(t, os.WriteFile(path, []byte("a: 2"), 0644))
	assert.Eventually(t, stableHas(stable, "config.yaml", "a: 2"), 5*time.Second, 20*time.Millisecond)
}

func TestMirrorsDelete(t *testing.T) {
	root := t.TempDir()
	stable := newStable(t)
	require.NoError(t, stable.WriteFile("doomed.txt", []byte("x")))
	path := filepath.Join(root, "doomed.txt")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0644))

	startWatcher(t, root, stable)
	require.NoError(t, os.Remove(path))

	assert.Eventually(t, func() bool {
		_, err := stable.ReadFile("doomed.txt")
		return err != nil
	}, 5*time.Second, 20*time.Millisecond)
}

func TestAdoptsNewDirectory(t *testing.T) {
	root := t.TempDir()
	stable := newStable(t)
	startWatcher(t, root, stable)

	sub := filepath.Join(root, "pkg", "util")
	require.NoError(t, os.MkdirAll(sub, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(sub, "helper.go"), []byte("package util"), 0644))

	assert.Eventually(t, stableHas(stable, "pkg/util/helper.go", "package util"), 5*time.Second, 20*time.Millisecond)
}

func TestIgnoresConfiguredDirectories(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".git"), 0755))
	stable := newStable(t)
	startWatcher(t, root, stable)

	require.NoError(t, os.WriteFile(filepath.Join(root, ".git", "HEAD"), []byte("ref"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "seen.txt"), []byte("yes"), 0644))

	// Wait for the legitimate file so the ignored one had its chance
	require.Eventually(t, stableHas(stable, "seen.txt", "yes"), 5*time.Second, 20*time.Millisecond)
	_, err := stable.ReadFile(".git/HEAD")
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestSkipsOversizedFiles(t *testing.T) {
	old := maxMirrorBytes
	maxMirrorBytes = 8
	defer func() { maxMirrorBytes = old }()

	root := t.TempDir()
	stable := newStable(t)
	startWatcher(t, root, stable)

	require.NoError(t, os.WriteFile(filepath.Join(root, "big.bin"), []byte("way more than eight"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "small.txt"), []byte("tiny"), 0644))

	require.Eventually(t, stableHas(stable, "small.txt", "tiny"), 5*time.Second, 20*time.Millisecond)
	_, err := stable.ReadFile("big.bin")
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestSyncStable(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "src"), 0755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "node_modules", "dep"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "main.go"), []byte("package main"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "src", "lib.go"), []byte("package src"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "node_modules", "dep", "index.js"), []byte("junk"), 0644))

	stable := newStable(t)
	count, err := SyncStable(root, stable)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	data, err := stable.ReadFile("src/lib.go")
	require.NoError(t, err)
	assert.Equal(t, "package src", string(data))

	_, err = stable.ReadFile("node_modules/dep/index.js")
	assert.ErrorIs(t, err, types.ErrNotFound)
}
