package queue

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"github.com/cairnlabs/cairn/pkg/types"
)

// item wraps a queued task with a monotonic sequence number so that
// tasks at the same priority level dequeue in arrival order.
type item struct {
	task types.QueuedTask
	seq  uint64
}

// taskHeap orders items by descending priority, then arrival order.
type taskHeap []*item

func (h taskHeap) Len() int { return len(h) }

func (h taskHeap) Less(i, j int) bool {
	if h[i].task.Priority != h[j].task.Priority {
		return h[i].task.Priority > h[j].task.Priority
	}
	return h[i].seq < h[j].seq
}

func (h taskHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *taskHeap) Push(x any) {
	*h = append(*h, x.(*item))
}

func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return it
}

// Queue is a blocking priority queue of agent tasks. Higher-priority
// tasks dequeue first; tasks at the same level dequeue in FIFO order.
// All methods are safe for concurrent use.
type Queue struct {
	mu    sync.Mutex
	cond  *sync.Cond
	items taskHeap
	seq   uint64
}

// New creates an empty queue
func New() *Queue {
	q := &Queue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Enqueue adds an agent to the queue and wakes one waiting consumer
func (q *Queue) Enqueue(agentID string, priority types.TaskPriority) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.seq++
	heap.Push(&q.items, &item{
		task: types.QueuedTask{
			AgentID:    agentID,
			Priority:   priority,
			EnqueuedAt: time.Now(),
		},
		seq: q.seq,
	})
	q.cond.Signal()
}

// TryDequeue removes and returns the highest-priority task, or
// reports false immediately when the queue is empty
func (q *Queue) TryDequeue() (types.QueuedTask, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return types.QueuedTask{}, false
	}
	return q.popLocked(), true
}

// DequeueWait blocks until a task is available or the context is
// canceled. Returns the context error on cancellation.
func (q *Queue) DequeueWait(ctx context.Context) (types.QueuedTask, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.items) == 0 {
		if err := q.waitLocked(ctx); err != nil {
			return types.QueuedTask{}, err
		}
	}
	return q.popLocked(), nil
}

// Size returns the number of queued tasks. The value may be stale by
// the time the caller acts on it.
func (q *Queue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// popLocked removes the heap root. Caller must hold q.mu and have
// checked that the heap is non-empty.
func (q *Queue) popLocked() types.QueuedTask {
	it := heap.Pop(&q.items).(*item)
	return it.task
}

// waitLocked blocks on the condition variable until signaled or the
// context is canceled. Caller must hold q.mu. Cancellation wakes every
// waiter; each re-checks the queue and its own context, so a spurious
// wakeup is harmless.
func (q *Queue) waitLocked(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			q.cond.Broadcast()
		case <-done:
		}
	}()

	q.cond.Wait()
	close(done)
	return ctx.Err()
}
