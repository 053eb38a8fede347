package lifecycle

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

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	dir := t.TempDir()

	stable, err := overlay.Open(filepath.Join(dir, "stable.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { stable.Close() })

	return NewStore(stable), dir
}

func record(id string, state types.AgentState, changedAgo time.Duration) *types.LifecycleRecord {
	now := time.Now().UTC()
	return &types.LifecycleRecord{
		AgentID:        id,
		Task:           "task for " + id,
		Priority:       types.PriorityNormal,
		State:          state,
		CreatedAt:      now.Add(-changedAgo - time.Minute),
		StateChangedAt: now.Add(-changedAgo),
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s, _ := newTestStore(t)

	rec := record("a1", types.StateReviewing, 0)
	rec.Submission = &types.Submission{
		Summary:      "edited readme",
		ChangedFiles: []string{"README.md"},
	}
	require.NoError(t, s.Save(rec))

	got, err := s.Load("a1")
	require.NoError(t, err)
	assert.Equal(t, "a1", got.AgentID)
	assert.Equal(t, types.StateReviewing, got.State)
	require.NotNil(t, got.Submission)
	assert.Equal(t, "edited readme", got.Submission.Summary)
	assert.Equal(t, []string{"README.md"}, got.Submission.ChangedFiles)
}

func TestSaveReplacesWholeRecord(t *testing.T) {
	s, _ := newTestStore(t)

	rec := record("a1", types.StateExecuting, 0)
	rec.Error = "transient"
	require.NoError(t, s.Save(rec))

	rec2 := record("a1", types.StateReviewing, 0)
	require.NoError(t, s.Save(rec2))

	got, err := s.Load("a1")
	require.NoError(t, err)
	assert.Equal(t, types.StateReviewing, got.State)
	assert.Empty(t, got.Error, "old fields must not survive a replacement")
}

func TestLoadMissing(t *testing.T) {
	s, _ := newTestStore(t)

	_, err := s.Load("ghost")
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestSaveRejectsInvalidRecord(t *testing.T) {
	s, _ := newTestStore(t)

	err := s.Save(&types.LifecycleRecord{Task: "no id"})
	assert.ErrorIs(t, err, types.ErrStorage)
}

func TestDelete(t *testing.T) {
	s, _ := newTestStore(t)

	require.NoError(t, s.Save(record("a1", types.StateQueued, 0)))
	require.NoError(t, s.Delete("a1"))

	_, err := s.Load("a1")
	assert.ErrorIs(t, err, types.ErrNotFound)

	// Deleting a missing record is a no-op
	require.NoError(t, s.Delete("a1"))
}

func TestListAll(t *testing.T) {
	s, _ := newTestStore(t)

	require.NoError(t, s.Save(record("beta", types.StateQueued, 0)))
	require.NoError(t, s.Save(record("alpha", types.StateAccepted, 0)))

	all, err := s.ListAll()
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "alpha", all[0].AgentID)
	assert.Equal(t, "beta", all[1].AgentID)
}

func TestListActive(t *testing.T) {
	s, _ := newTestStore(t)

	require.NoError(t, s.Save(record("queued", types.StateQueued, 0)))
	require.NoError(t, s.Save(record("reviewing", types.StateReviewing, 0)))
	require.NoError(t, s.Save(record("errored", types.StateErrored, 0)))
	require.NoError(t, s.Save(record("accepted", types.StateAccepted, 0)))
	require.NoError(t, s.Save(record("rejected", types.StateRejected, 0)))

	active, err := s.ListActive()
	require.NoError(t, err)

	ids := make([]string, 0, len(active))
	for _, rec := range active {
		ids = append(ids, rec.AgentID)
	}

	// Errored stays visible; accepted/rejected drop out
	assert.Equal(t, []string{"errored", "queued", "reviewing"}, ids)
}

func TestCleanupOld(t *testing.T) {
	s, scratch := newTestStore(t)

	oldAccepted := record("old-accepted", types.StateAccepted, 48*time.Hour)
	oldErrored := record("old-errored", types.StateErrored, 48*time.Hour)
	freshRejected := record("fresh-rejected", types.StateRejected, time.Hour)
	oldExecuting := record("old-executing", types.StateExecuting, 48*time.Hour)

	// Give the old accepted record a trashed artifact to remove
	artifact := filepath.Join(scratch, "bin-old-accepted.db")
	require.NoError(t, os.WriteFile(artifact, []byte("scratch"), 0600))
	oldAccepted.OverlayLocation = artifact

	for _, rec := range []*types.LifecycleRecord{oldAccepted, oldErrored, freshRejected, oldExecuting} {
		require.NoError(t, s.Save(rec))
	}

	removed, err := s.CleanupOld(24*time.Hour, scratch)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"old-accepted", "old-errored"}, removed)

	// Records gone
	_, err = s.Load("old-accepted")
	assert.ErrorIs(t, err, types.ErrNotFound)
	_, err = s.Load("old-errored")
	assert.ErrorIs(t, err, types.ErrNotFound)

	// Young terminal and old non-terminal records survive
	_, err = s.Load("fresh-rejected")
	assert.NoError(t, err)
	_, err = s.Load("old-executing")
	assert.NoError(t, err)

	// Artifact removed from disk
	_, err = os.Stat(artifact)
	assert.True(t, os.IsNotExist(err))
}

func TestCleanupRefusesArtifactOutsideScratch(t *testing.T) {
	s, scratch := newTestStore(t)

	outside := filepath.Join(t.TempDir(), "precious.db")
	require.NoError(t, os.WriteFile(outside, []byte("keep me"), 0600))

	rec := record("a1", types.StateAccepted, 48*time.Hour)
	rec.OverlayLocation = outside
	require.NoError(t, s.Save(rec))

	removed, err := s.CleanupOld(24*time.Hour, scratch)
	require.NoError(t, err)
	assert.Equal(t, []string{"a1"}, removed)

	// The record is gone but the out-of-scratch file is untouched
	_, err = os.Stat(outside)
	assert.NoError(t, err)
}
