package worker

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/cairnlabs/cairn/pkg/log"
	"github.com/cairnlabs/cairn/pkg/metrics"
	"github.com/cairnlabs/cairn/pkg/queue"
	"github.com/cairnlabs/cairn/pkg/types"
)

// RunFunc executes one dequeued task to completion. It is called on its
// own goroutine and must not panic.
type RunFunc func(ctx context.Context, task types.QueuedTask)

// Pool dispatches queued tasks to lifecycle runs, never letting more
// than the configured number execute at once.
type Pool struct {
	queue *queue.Queue
	sem   *semaphore.Weighted
	run   RunFunc

	cancel context.CancelFunc
	done   chan struct{}
	wg     sync.WaitGroup
}

// NewPool creates a pool with capacity maxConcurrent (minimum 1).
func NewPool(q *queue.Queue, maxConcurrent int, run RunFunc) *Pool {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Pool{
		queue: q,
		sem:   semaphore.NewWeighted(int64(maxConcurrent)),
		run:   run,
	}
}

// Start launches the dispatch loop.
func (p *Pool) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.done = make(chan struct{})
	go p.dispatch(ctx)
	log.Logger.Info().Str("component", "worker").Msg("dispatch loop started")
}

// Stop halts dispatching and returns once the loop has exited.
// In-flight lifecycle runs continue to completion; use Wait to drain
// them.
func (p *Pool) Stop() {
	if p.cancel == nil {
		return
	}
	p.cancel()
	<-p.done
	log.Logger.Info().Str("component", "worker").Msg("dispatch loop stopped")
}

// Wait blocks until every in-flight lifecycle run has finished.
func (p *Pool) Wait() {
	p.wg.Wait()
}

func (p *Pool) dispatch(ctx context.Context) {
	defer close(p.done)
	for {
		task, err := p.queue.DequeueWait(ctx)
		if err != nil {
			return
		}
		metrics.QueueDepth.Set(float64(p.queue.Size()))

		if err := p.sem.Acquire(ctx, 1); err != nil {
			// Shutdown while waiting for a permit. The task's record
			// still says queued, so the next recovery re-enqueues it.
			return
		}

		p.wg.Add(1)
		go func(task types.QueuedTask) {
			defer p.wg.Done()
			defer p.sem.Release(1)
			// Runs outlive pool shutdown; Wait drains them
			p.run(context.Background(), task)
		}(task)
	}
}
