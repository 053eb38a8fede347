package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/cairnlabs/cairn/pkg/codegen"
	"github.com/cairnlabs/cairn/pkg/command"
	"github.com/cairnlabs/cairn/pkg/config"
	"github.com/cairnlabs/cairn/pkg/events"
	"github.com/cairnlabs/cairn/pkg/lifecycle"
	"github.com/cairnlabs/cairn/pkg/log"
	"github.com/cairnlabs/cairn/pkg/merge"
	"github.com/cairnlabs/cairn/pkg/metrics"
	"github.com/cairnlabs/cairn/pkg/overlay"
	"github.com/cairnlabs/cairn/pkg/queue"
	"github.com/cairnlabs/cairn/pkg/runner"
	"github.com/cairnlabs/cairn/pkg/sandbox"
	"github.com/cairnlabs/cairn/pkg/signals"
	"github.com/cairnlabs/cairn/pkg/types"
	"github.com/cairnlabs/cairn/pkg/watcher"
	"github.com/cairnlabs/cairn/pkg/worker"
	"github.com/cairnlabs/cairn/pkg/workspace"
	"github.com/google/uuid"
)

// Orchestrator wires every subsystem together: the priority queue, the
// worker pool, the overlay store, the lifecycle store, the merge
// engine, and the command adapters. It is the single entry point for
// commands and owns each agent context from queue to trash.
type Orchestrator struct {
	cfg config.Config

	broker     *events.Broker
	queue      *queue.Queue
	store      *overlay.Store
	records    *lifecycle.Store
	runner     *runner.Runner
	pool       *worker.Pool
	merger     *merge.Engine
	workspaces *workspace.Manager
	watcher    *watcher.Watcher
	poller     *signals.Poller
	collector  *Collector

	mu     sync.RWMutex
	agents map[string]*runner.Agent

	// reviewMu makes the reviewing→verdict gate atomic with its
	// persist, so two concurrent verdicts cannot both pass.
	reviewMu sync.Mutex
	snapMu   sync.Mutex

	started bool
	stopCh  chan struct{}
	loopWg  sync.WaitGroup
}

// New creates an orchestrator for cfg. Call Initialize before
// submitting commands, and Start to run the service loops.
func New(cfg config.Config) *Orchestrator {
	return &Orchestrator{
		cfg:    cfg,
		broker: events.NewBroker(),
		queue:  queue.New(),
		agents: make(map[string]*runner.Agent),
	}
}

// Broker exposes the event stream for subscribers.
func (o *Orchestrator) Broker() *events.Broker {
	return o.broker
}

// Initialize creates the scratch directories, opens the stores, builds
// the lifecycle plumbing, and runs crash recovery. It starts no
// service loop: one-shot commands work against an initialized but
// unstarted orchestrator.
func (o *Orchestrator) Initialize() error {
	for _, dir := range []string{
		o.cfg.AgentFSDir(),
		o.cfg.SignalsDir(),
		filepath.Dir(o.cfg.StateFile()),
		o.cfg.WorkspacesDir(),
	} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	store, err := overlay.NewStore(o.cfg.AgentFSDir())
	if err != nil {
		return err
	}
	o.store = store
	o.records = lifecycle.NewStore(store.Stable())
	metrics.SetHealthy("storage")

	llm := codegen.NewClient(o.cfg.LLM.Endpoint, o.cfg.LLM.Model, o.cfg.LLM.Timeout)
	o.workspaces = workspace.NewManager(o.cfg.WorkspacesDir())
	o.merger = merge.NewEngine(o.broker)
	o.runner = runner.New(o.records, codegen.NewScriptGenerator(llm), llm, o.workspaces, o.broker, sandbox.Limits{
		MaxDuration:  o.cfg.Executor.MaxExecutionTime,
		MaxMemory:    o.cfg.Executor.MaxMemoryBytes,
		MaxRecursion: o.cfg.Executor.MaxRecursionDepth,
	})
	o.pool = worker.NewPool(o.queue, o.cfg.Orchestrator.MaxConcurrentAgents, o.runTask)
	o.watcher = watcher.New(o.cfg.Paths.ProjectRoot, store.Stable())
	o.poller = signals.NewPoller(o.cfg.SignalsDir(), o, o.broker)
	o.collector = NewCollector(o)

	o.broker.Start()

	if err := o.recover(); err != nil {
		return err
	}
	o.writeSnapshot()

	log.Logger.Info().
		Str("component", "orchestrator").
		Str("project_root", o.cfg.Paths.ProjectRoot).
		Str("cairn_home", o.cfg.Paths.CairnHome).
		Msg("orchestrator initialized")
	return nil
}

// Start launches the service loops: the worker pool, signal polling,
// the project watcher plus initial stable sync, the metrics collector,
// the snapshot writer, and periodic cleanup. Initialize must have run.
func (o *Orchestrator) Start() error {
	if o.store == nil {
		return fmt.Errorf("%w: orchestrator not initialized", types.ErrStorage)
	}

	o.stopCh = make(chan struct{})
	o.pool.Start()
	metrics.SetHealthy("worker_pool")
	if o.cfg.Orchestrator.EnableSignalPolling {
		o.poller.Start()
		metrics.SetHealthy("signal_poller")
	}
	if err := o.watcher.Start(); err != nil {
		metrics.SetUnhealthy("watcher", err.Error())
		if o.cfg.Orchestrator.EnableSignalPolling {
			o.poller.Stop()
		}
		o.pool.Stop()
		return fmt.Errorf("failed to start project watcher: %w", err)
	}
	metrics.SetHealthy("watcher")
	o.collector.Start()

	// Seed stable with the current project tree. The watcher is
	// already running, so edits made during the walk are not lost.
	o.loopWg.Add(1)
	go func() {
		defer o.loopWg.Done()
		if _, err := watcher.SyncStable(o.cfg.Paths.ProjectRoot, o.store.Stable()); err != nil {
			log.Logger.Warn().
				Str("component", "orchestrator").
				Err(err).
				Msg("initial stable sync failed")
		}
	}()

	sub := o.broker.Subscribe()
	o.loopWg.Add(2)
	go o.snapshotLoop(sub)
	go o.cleanupLoop()

	o.mu.Lock()
	o.started = true
	o.mu.Unlock()

	log.Logger.Info().
		Str("component", "orchestrator").
		Int("max_concurrent", o.cfg.Orchestrator.MaxConcurrentAgents).
		Bool("signal_polling", o.cfg.Orchestrator.EnableSignalPolling).
		Msg("orchestrator started")
	return nil
}

// Stop shuts the orchestrator down: command intake stops first, the
// pool stops dispatching, in-flight lifecycles run to completion, then
// the loops and stores close. Safe on an orchestrator that was
// initialized but never started, and safe to call twice.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	started := o.started
	o.started = false
	o.mu.Unlock()

	if started {
		o.poller.Stop()
		o.pool.Stop()
		o.pool.Wait()
		o.watcher.Stop()
		o.collector.Stop()
		close(o.stopCh)
		o.loopWg.Wait()
	}

	if o.store == nil {
		return
	}
	o.writeSnapshot()
	o.broker.Stop()
	if err := o.store.Close(); err != nil {
		log.Logger.Warn().
			Str("component", "orchestrator").
			Err(err).
			Msg("failed to close overlay store")
	}
	o.store = nil

	log.Logger.Info().
		Str("component", "orchestrator").
		Msg("orchestrator stopped")
}

// SubmitCommand executes one parsed command and returns its result.
// This is the single entry point shared by the CLI and the signal
// adapter.
func (o *Orchestrator) SubmitCommand(ctx context.Context, cmd *command.Command) (*types.CommandResult, error) {
	if o.records == nil {
		return nil, fmt.Errorf("%w: orchestrator not initialized", types.ErrStorage)
	}

	log.Logger.Debug().
		Str("component", "orchestrator").
		Str("command", cmd.String()).
		Msg("command submitted")

	switch cmd.Kind {
	case command.KindQueue:
		return o.queueAgent(cmd.Task, cmd.Priority)
	case command.KindAccept:
		return o.reviewAgent(cmd.AgentID, types.StateAccepted)
	case command.KindReject:
		return o.reviewAgent(cmd.AgentID, types.StateRejected)
	case command.KindStatus:
		return o.statusAgent(cmd.AgentID)
	case command.KindListAgents:
		return o.listAgents()
	default:
		return nil, fmt.Errorf("%w: unknown command kind %q", types.ErrInvalidCommand, cmd.Kind)
	}
}

// queueAgent opens a fresh overlay, persists the initial record, and
// enqueues the agent for dispatch. The overlay is opened at queue time
// so a crash between queue and dispatch leaves a recoverable backing.
func (o *Orchestrator) queueAgent(task string, priority types.TaskPriority) (*types.CommandResult, error) {
	if !priority.Valid() {
		priority = types.PriorityNormal
	}

	agentID := newAgentID()
	ov, err := o.store.OpenAgent(agentID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	rec := types.LifecycleRecord{
		AgentID:         agentID,
		Task:            task,
		Priority:        priority,
		State:           types.StateQueued,
		CreatedAt:       now,
		StateChangedAt:  now,
		OverlayLocation: o.store.AgentPath(agentID),
	}
	if err := o.records.Save(&rec); err != nil {
		_ = o.store.CloseAgent(agentID)
		return nil, err
	}

	o.mu.Lock()
	o.agents[agentID] = runner.NewAgent(rec, ov)
	o.mu.Unlock()

	o.queue.Enqueue(agentID, priority)

	metrics.AgentsSpawnedTotal.Inc()
	metrics.QueueDepth.Set(float64(o.queue.Size()))
	metrics.StateTransitionsTotal.WithLabelValues(string(types.StateQueued)).Inc()

	o.broker.Publish(&events.Event{
		Type:    events.EventAgentQueued,
		AgentID: agentID,
		State:   types.StateQueued,
		Message: task,
	})
	lg := log.WithAgentID(agentID)
	lg.Info().
		Str("component", "orchestrator").
		Str("priority", priority.String()).
		Msg("agent queued")

	o.writeSnapshot()
	return &types.CommandResult{AgentID: agentID}, nil
}

// reviewAgent applies a human verdict to a reviewing agent. Accept
// merges the agent's layer into stable before trashing; reject only
// trashes.
func (o *Orchestrator) reviewAgent(agentID string, verdict types.AgentState) (*types.CommandResult, error) {
	o.reviewMu.Lock()
	rec, err := o.records.Load(agentID)
	if err != nil {
		o.reviewMu.Unlock()
		return nil, err
	}
	if rec.State != types.StateReviewing {
		o.reviewMu.Unlock()
		return nil, fmt.Errorf("%w: agent %s is %s, not reviewing", types.ErrInvalidState, agentID, rec.State)
	}

	rec.State = verdict
	rec.StateChangedAt = time.Now().UTC()
	err = o.records.Save(rec)
	o.reviewMu.Unlock()
	if err != nil {
		return nil, err
	}

	o.updateContext(agentID, *rec)
	metrics.StateTransitionsTotal.WithLabelValues(string(verdict)).Inc()

	eventType := events.EventAgentAccepted
	if verdict == types.StateRejected {
		eventType = events.EventAgentRejected
	}
	o.broker.Publish(&events.Event{Type: eventType, AgentID: agentID, State: verdict})

	if verdict == types.StateAccepted {
		ov, err := o.store.OpenAgent(agentID)
		if err != nil {
			return nil, err
		}
		if _, err := o.merger.Merge(ov, o.store.Stable()); err != nil {
			// The verdict is already persisted. Leave the overlay out
			// of the trash so the changes survive for manual salvage.
			return nil, err
		}
	}

	if err := o.TrashAgent(agentID); err != nil {
		lg := log.WithAgentID(agentID)
		lg.Warn().
			Str("component", "orchestrator").
			Err(err).
			Msg("failed to trash reviewed agent")
	}

	lg := log.WithAgentID(agentID)
	lg.Info().
		Str("component", "orchestrator").
		Str("verdict", string(verdict)).
		Msg("agent reviewed")

	o.writeSnapshot()
	return &types.CommandResult{}, nil
}

// statusAgent reports one agent. The live context wins over the
// persisted record; mid-transition values are fresher than the last
// save.
func (o *Orchestrator) statusAgent(agentID string) (*types.CommandResult, error) {
	o.mu.RLock()
	agent, ok := o.agents[agentID]
	o.mu.RUnlock()
	if ok {
		rec := agent.Record()
		return &types.CommandResult{Record: &rec}, nil
	}

	rec, err := o.records.Load(agentID)
	if err != nil {
		return nil, err
	}
	return &types.CommandResult{Record: rec}, nil
}

// listAgents returns the union of live contexts and persisted records,
// de-duplicated by agent_id with the live copy winning, ordered by
// creation time.
func (o *Orchestrator) listAgents() (*types.CommandResult, error) {
	persisted, err := o.records.ListAll()
	if err != nil {
		return nil, err
	}

	o.mu.RLock()
	live := make(map[string]types.LifecycleRecord, len(o.agents))
	for id, agent := range o.agents {
		live[id] = agent.Record()
	}
	o.mu.RUnlock()

	records := make([]types.LifecycleRecord, 0, len(persisted)+len(live))
	for _, rec := range persisted {
		if fresh, ok := live[rec.AgentID]; ok {
			records = append(records, fresh)
			delete(live, rec.AgentID)
			continue
		}
		records = append(records, rec)
	}
	for _, rec := range live {
		records = append(records, rec)
	}

	sort.Slice(records, func(i, j int) bool {
		if records[i].CreatedAt.Equal(records[j].CreatedAt) {
			return records[i].AgentID < records[j].AgentID
		}
		return records[i].CreatedAt.Before(records[j].CreatedAt)
	})
	return &types.CommandResult{Records: records}, nil
}

// TrashAgent retires an agent's runtime artifacts: the overlay handle
// closes, the backing file moves to the trash prefix, the lifecycle
// record points at the new location, the review workspace is removed,
// and the live context is dropped. Idempotent: trashing twice, or
// trashing an agent whose artifacts are partially gone, is safe.
func (o *Orchestrator) TrashAgent(agentID string) error {
	// The context goes away no matter what; a half-trashed agent must
	// not keep serving stale live state.
	defer o.dropContext(agentID)

	o.mu.RLock()
	agent, live := o.agents[agentID]
	o.mu.RUnlock()

	trashPath, err := o.store.TrashAgent(agentID)
	if err != nil && !errors.Is(err, types.ErrNotFound) {
		return err
	}

	rec, recErr := o.records.Load(agentID)
	if recErr != nil {
		if live {
			r := agent.Record()
			rec = &r
		} else if errors.Is(recErr, types.ErrNotFound) {
			// Nothing persisted and nothing live: already cleaned up.
			return nil
		} else {
			return recErr
		}
	}

	if trashPath != "" && rec.OverlayLocation != trashPath {
		rec.OverlayLocation = trashPath
		if err := o.records.Save(rec); err != nil {
			return err
		}
	}

	if err := o.store.RecordTrash(&types.TrashRecord{
		AgentID:    agentID,
		Task:       rec.Task,
		FinalState: rec.State,
		TrashedAt:  time.Now().UTC(),
	}); err != nil {
		// The bin index is advisory; cleanup still finds the file
		// through the lifecycle record.
		lg := log.WithAgentID(agentID)
		lg.Warn().
			Str("component", "orchestrator").
			Err(err).
			Msg("failed to record trash index entry")
	}

	if err := o.workspaces.Cleanup(agentID); err != nil {
		lg := log.WithAgentID(agentID)
		lg.Warn().
			Str("component", "orchestrator").
			Err(err).
			Msg("failed to remove review workspace")
	}

	o.broker.Publish(&events.Event{Type: events.EventAgentTrashed, AgentID: agentID, State: rec.State})
	lg := log.WithAgentID(agentID)
	lg.Debug().
		Str("component", "orchestrator").
		Str("final_state", string(rec.State)).
		Msg("agent trashed")
	return nil
}

// runTask is the worker pool's dispatch target: one queued task in,
// one finished lifecycle out. Failed lifecycles release their
// resources immediately; reviewing agents keep theirs until a verdict.
func (o *Orchestrator) runTask(ctx context.Context, task types.QueuedTask) {
	o.mu.RLock()
	agent, ok := o.agents[task.AgentID]
	o.mu.RUnlock()
	if !ok {
		lg := log.WithAgentID(task.AgentID)
		lg.Warn().
			Str("component", "orchestrator").
			Msg("queued task has no live context, skipping")
		return
	}

	if err := o.runner.Run(ctx, agent); err != nil {
		if terr := o.TrashAgent(task.AgentID); terr != nil {
			// Recovery repairs the stale record on the next start.
			lg := log.WithAgentID(task.AgentID)
			lg.Warn().
				Str("component", "orchestrator").
				Err(terr).
				Msg("failed to release errored agent")
		}
	}
	o.writeSnapshot()
}

// updateContext reflects a persisted record back into the live
// context, if one exists.
func (o *Orchestrator) updateContext(agentID string, rec types.LifecycleRecord) {
	o.mu.RLock()
	agent, ok := o.agents[agentID]
	o.mu.RUnlock()
	if ok {
		agent.Update(func(r *types.LifecycleRecord) { *r = rec })
	}
}

func (o *Orchestrator) dropContext(agentID string) {
	o.mu.Lock()
	delete(o.agents, agentID)
	o.mu.Unlock()
}

// newAgentID mints the short id agents are known by everywhere: logs,
// overlay filenames, signal payloads.
func newAgentID() string {
	return "agent-" + uuid.New().String()[:8]
}
