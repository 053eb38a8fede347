package signals

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cairnlabs/cairn/pkg/command"
	"github.com/cairnlabs/cairn/pkg/types"
)

type fakeSubmitter struct {
	mu   sync.Mutex
	cmds []*command.Command
	err  error
}

func (f *fakeSubmitter) SubmitCommand(_ context.Context, cmd *command.Command) (*types.CommandResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cmds = append(f.cmds, cmd)
	if f.err != nil {
		return nil, f.err
	}
	return &types.CommandResult{AgentID: cmd.AgentID}, nil
}

func (f *fakeSubmitter) commands() []*command.Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*command.Command, len(f.cmds))
	copy(out, f.cmds)
	return out
}

func writeSignal(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestSweepSpawnPrefix(t *testing.T) {
	dir := t.TempDir()
	sub := &fakeSubmitter{}
	p := NewPoller(dir, sub, nil)

	path := writeSignal(t, dir, "spawn-x.json", `{"task":"t"}`)

	n := p.Sweep(context.Background())
	assert.Equal(t, 1, n)

	cmds := sub.commands()
	require.Len(t, cmds, 1)
	assert.Equal(t, command.KindQueue, cmds[0].Kind)
	assert.Equal(t, "t", cmds[0].Task)
	assert.Equal(t, types.PriorityHigh, cmds[0].Priority, "spawn prefix defaults to high")

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err), "signal file must be unlinked")
}

func TestSweepExplicitType(t *testing.T) {
	dir := t.TempDir()
	sub := &fakeSubmitter{}
	p := NewPoller(dir, sub, nil)

	writeSignal(t, dir, "y.json", `{"type":"queue","task":"t2"}`)

	n := p.Sweep(context.Background())
	assert.Equal(t, 1, n)

	cmds := sub.commands()
	require.Len(t, cmds, 1)
	assert.Equal(t, command.KindQueue, cmds[0].Kind)
	assert.Equal(t, "t2", cmds[0].Task)
	assert.Equal(t, types.PriorityNormal, cmds[0].Priority, "explicit queue defaults to normal")
}

func TestSweepAcceptFilenameDefault(t *testing.T) {
	dir := t.TempDir()
	sub := &fakeSubmitter{}
	p := NewPoller(dir, sub, nil)

	writeSignal(t, dir, "accept-a1b2.json", `{}`)

	n := p.Sweep(context.Background())
	assert.Equal(t, 1, n)

	cmds := sub.commands()
	require.Len(t, cmds, 1)
	assert.Equal(t, command.KindAccept, cmds[0].Kind)
	assert.Equal(t, "a1b2", cmds[0].AgentID, "agent_id comes from the file stem")
}

func TestSweepPayloadAgentIDWins(t *testing.T) {
	dir := t.TempDir()
	sub := &fakeSubmitter{}
	p := NewPoller(dir, sub, nil)

	writeSignal(t, dir, "reject-a1.json", `{"agent_id":"other"}`)

	p.Sweep(context.Background())

	cmds := sub.commands()
	require.Len(t, cmds, 1)
	assert.Equal(t, command.KindReject, cmds[0].Kind)
	assert.Equal(t, "other", cmds[0].AgentID)
}

func TestSweepInvalidJSON(t *testing.T) {
	dir := t.TempDir()
	sub := &fakeSubmitter{}
	p := NewPoller(dir, sub, nil)

	// Invalid JSON with an accept- prefix still resolves via the stem
	path := writeSignal(t, dir, "accept-a9.json", `{{{not json`)

	n := p.Sweep(context.Background())
	assert.Equal(t, 1, n)

	cmds := sub.commands()
	require.Len(t, cmds, 1)
	assert.Equal(t, "a9", cmds[0].AgentID)

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestSweepUnresolvableSignal(t *testing.T) {
	dir := t.TempDir()
	sub := &fakeSubmitter{}
	p := NewPoller(dir, sub, nil)

	// No type field, no recognized prefix
	path := writeSignal(t, dir, "mystery.json", `{"task":"t"}`)

	n := p.Sweep(context.Background())
	assert.Equal(t, 0, n)
	assert.Empty(t, sub.commands())

	// Deleted anyway so it is not reprocessed forever
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestSweepInvalidCommandSkipped(t *testing.T) {
	dir := t.TempDir()
	sub := &fakeSubmitter{}
	p := NewPoller(dir, sub, nil)

	// queue without a task parses to InvalidCommand
	path := writeSignal(t, dir, "queue-oops.json", `{}`)

	n := p.Sweep(context.Background())
	assert.Equal(t, 0, n)
	assert.Empty(t, sub.commands())

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestSweepLexicographicOrder(t *testing.T) {
	dir := t.TempDir()
	sub := &fakeSubmitter{}
	p := NewPoller(dir, sub, nil)

	writeSignal(t, dir, "02-second.json", `{"type":"queue","task":"second"}`)
	writeSignal(t, dir, "01-first.json", `{"type":"queue","task":"first"}`)

	n := p.Sweep(context.Background())
	assert.Equal(t, 2, n)

	cmds := sub.commands()
	require.Len(t, cmds, 2)
	assert.Equal(t, "first", cmds[0].Task)
	assert.Equal(t, "second", cmds[1].Task)
}

func TestSweepSubmitErrorStillUnlinks(t *testing.T) {
	dir := t.TempDir()
	sub := &fakeSubmitter{err: types.ErrNotFound}
	p := NewPoller(dir, sub, nil)

	path := writeSignal(t, dir, "accept-gone.json", `{}`)

	n := p.Sweep(context.Background())
	assert.Equal(t, 0, n)
	require.Len(t, sub.commands(), 1, "command was submitted despite the error")

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestPollingLoop(t *testing.T) {
	dir := t.TempDir()
	sub := &fakeSubmitter{}
	p := NewPoller(dir, sub, nil)
	p.interval = 10 * time.Millisecond

	p.Start()
	defer p.Stop()

	writeSignal(t, dir, "spawn-live.json", `{"task":"t"}`)

	assert.Eventually(t, func() bool {
		return len(sub.commands()) == 1
	}, 2*time.Second, 10*time.Millisecond, "poller should pick up the dropped file")
}
