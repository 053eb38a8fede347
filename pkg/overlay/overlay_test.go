package overlay

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cairnlabs/cairn/pkg/types"
)

func newTestLayers(t *testing.T) (base, top *Overlay) {
	t.Helper()
	dir := t.TempDir()

	base, err := Open(filepath.Join(dir, "stable.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { base.Close() })

	top, err = Open(filepath.Join(dir, "agent.db"), base)
	require.NoError(t, err)
	t.Cleanup(func() { top.Close() })

	return base, top
}

func TestWriteReadRoundTrip(t *testing.T) {
	_, top := newTestLayers(t)

	require.NoError(t, top.WriteFile("src/main.go", []byte("package main")))

	data, err := top.ReadFile("src/main.go")
	require.NoError(t, err)
	assert.Equal(t, "package main", string(data))
}

func TestReadFallsThroughToBase(t *testing.T) {
	base, top := newTestLayers(t)

	require.NoError(t, base.WriteFile("README", []byte("orig")))

	// Path only in base: base bytes
	data, err := top.ReadFile("README")
	require.NoError(t, err)
	assert.Equal(t, "orig", string(data))

	// Path in both: overlay bytes win
	require.NoError(t, top.WriteFile("README", []byte("new")))
	data, err = top.ReadFile("README")
	require.NoError(t, err)
	assert.Equal(t, "new", string(data))

	// Base is untouched by the overlay write
	data, err = base.ReadFile("README")
	require.NoError(t, err)
	assert.Equal(t, "orig", string(data))
}

func TestDeleteRevealsBase(t *testing.T) {
	base, top := newTestLayers(t)

	require.NoError(t, base.WriteFile("config.yml", []byte("base")))
	require.NoError(t, top.WriteFile("config.yml", []byte("local")))

	require.NoError(t, top.DeleteFile("config.yml"))

	data, err := top.ReadFile("config.yml")
	require.NoError(t, err)
	assert.Equal(t, "base", string(data), "delete should reveal the base entry")
}

func TestReadMissingFile(t *testing.T) {
	_, top := newTestLayers(t)

	_, err := top.ReadFile("nope.txt")
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestPathNormalization(t *testing.T) {
	_, top := newTestLayers(t)

	require.NoError(t, top.WriteFile("/docs/guide.md", []byte("x")))

	// Leading slash and bare relative spellings resolve identically
	for _, p := range []string{"docs/guide.md", "/docs/guide.md", "./docs/guide.md"} {
		data, err := top.ReadFile(p)
		require.NoError(t, err, "path %q", p)
		assert.Equal(t, "x", string(data))
	}

	_, err := top.ReadFile("../escape")
	assert.ErrorIs(t, err, types.ErrInvalidPath)

	err = top.WriteFile("a/../../escape", []byte("x"))
	assert.ErrorIs(t, err, types.ErrInvalidPath)
}

func TestReadDirMergedView(t *testing.T) {
	base, top := newTestLayers(t)

	require.NoError(t, base.WriteFile("a.txt", []byte("1")))
	require.NoError(t, base.WriteFile("sub/b.txt", []byte("2")))
	require.NoError(t, top.WriteFile("c.txt", []byte("3")))
	require.NoError(t, top.WriteFile("a.txt", []byte("shadow")))

	// All root spellings are accepted
	for _, root := range []string{"/", "", "."} {
		names, err := top.ReadDir(root)
		require.NoError(t, err, "root %q", root)
		assert.Equal(t, []string{"a.txt", "c.txt", "sub"}, names)
	}

	names, err := top.ReadDir("sub")
	require.NoError(t, err)
	assert.Equal(t, []string{"b.txt"}, names)

	_, err = top.ReadDir("missing")
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestStat(t *testing.T) {
	base, top := newTestLayers(t)

	require.NoError(t, base.WriteFile("pkg/util.go", []byte("12345")))

	info, err := top.Stat("pkg/util.go")
	require.NoError(t, err)
	assert.True(t, info.IsFile)
	assert.False(t, info.IsDir)
	assert.Equal(t, int64(5), info.Size)
	assert.False(t, info.ModTime.IsZero())

	// Implicit directory synthesized from the path beneath it
	info, err = top.Stat("pkg")
	require.NoError(t, err)
	assert.True(t, info.IsDir)
	assert.False(t, info.IsFile)

	// Root is always a directory
	info, err = top.Stat("/")
	require.NoError(t, err)
	assert.True(t, info.IsDir)

	_, err = top.Stat("ghost")
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestExists(t *testing.T) {
	base, top := newTestLayers(t)

	require.NoError(t, base.WriteFile("x/y.txt", []byte("b")))

	for _, p := range []string{"x/y.txt", "x"} {
		ok, err := top.Exists(p)
		require.NoError(t, err)
		assert.True(t, ok, "path %q", p)
	}

	ok, err := top.Exists("x/z.txt")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLocalPathsExcludesBase(t *testing.T) {
	base, top := newTestLayers(t)

	require.NoError(t, base.WriteFile("inherited.txt", []byte("b")))
	require.NoError(t, top.WriteFile("own.txt", []byte("t")))
	require.NoError(t, top.WriteFile("sub/own2.txt", []byte("t")))

	local, err := top.LocalPaths()
	require.NoError(t, err)
	assert.Equal(t, []string{"own.txt", "sub/own2.txt"}, local)

	merged, err := top.Paths()
	require.NoError(t, err)
	assert.Equal(t, []string{"inherited.txt", "own.txt", "sub/own2.txt"}, merged)
}

func TestKVLayerLocal(t *testing.T) {
	base, top := newTestLayers(t)

	require.NoError(t, top.KVSet("submission", []byte(`{"summary":"s"}`)))

	data, err := top.KVGet("submission")
	require.NoError(t, err)
	assert.JSONEq(t, `{"summary":"s"}`, string(data))

	// KV never falls through: the base has its own namespace
	_, err = base.KVGet("submission")
	assert.ErrorIs(t, err, types.ErrNotFound)

	require.NoError(t, base.KVSet("agent:one", []byte("1")))
	require.NoError(t, base.KVSet("agent:two", []byte("2")))
	require.NoError(t, base.KVSet("other", []byte("3")))

	keys, err := base.KVList("agent:")
	require.NoError(t, err)
	assert.Equal(t, []string{"agent:one", "agent:two"}, keys)

	require.NoError(t, base.KVDelete("agent:one"))
	_, err = base.KVGet("agent:one")
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestOverlayPersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "stable.db")

	o, err := Open(path, nil)
	require.NoError(t, err)
	require.NoError(t, o.WriteFile("kept.txt", []byte("still here")))
	require.NoError(t, o.KVSet("k", []byte("v")))
	require.NoError(t, o.Close())

	o, err = Open(path, nil)
	require.NoError(t, err)
	defer o.Close()

	data, err := o.ReadFile("kept.txt")
	require.NoError(t, err)
	assert.Equal(t, "still here", string(data))

	v, err := o.KVGet("k")
	require.NoError(t, err)
	assert.Equal(t, "v", string(v))
}

func TestName(t *testing.T) {
	_, top := newTestLayers(t)
	assert.Equal(t, "agent", top.Name())
	assert.Equal(t, "stable", top.Base().Name())
}

func TestReadLocalIgnoresBase(t *testing.T) {
	base, top := newTestLayers(t)
	require.NoError(t, base.WriteFile("inherited.txt", []byte("from base")))
	require.NoError(t, top.WriteFile("own.txt", []byte("from top")))

	data, err := top.ReadLocal("own.txt")
	require.NoError(t, err)
	assert.Equal(t, "from top", string(data))

	// Visible through ReadFile, invisible to ReadLocal
	_, err = top.ReadFile("inherited.txt")
	require.NoError(t, err)
	_, err = top.ReadLocal("inherited.txt")
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestWalkVisitsMergedView(t *testing.T) {
	base, top := newTestLayers(t)
	require.NoError(t, base.WriteFile("a.txt", []byte("base a")))
	require.NoError(t, base.WriteFile("shared.txt", []byte("base shared")))
	require.NoError(t, top.WriteFile("shared.txt", []byte("top shared")))
	require.NoError(t, top.WriteFile("z/deep.txt", []byte("top deep")))

	visited := map[string]string{}
	var order []string
	err := top.Walk(func(p string, data []byte) error {
		visited[p] = string(data)
		order = append(order, p)
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, map[string]string{
		"a.txt":      "base a",
		"shared.txt": "top shared",
		"z/deep.txt": "top deep",
	}, visited)
	assert.Equal(t, []string{"a.txt", "shared.txt", "z/deep.txt"}, order)
}

func TestWalkStopsOnError(t *testing.T) {
	_, top := newTestLayers(t)
	require.NoError(t, top.WriteFile("a.txt", []byte("1")))
	require.NoError(t, top.WriteFile("b.txt", []byte("2")))

	boom := errors.New("stop here")
	seen := 0
	err := top.Walk(func(string, []byte) error {
		seen++
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, seen)
}
