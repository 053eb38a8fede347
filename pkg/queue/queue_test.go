package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cairnlabs/cairn/pkg/types"
)

func TestPriorityOrdering(t *testing.T) {
	q := New()

	q.Enqueue("low", types.PriorityLow)
	q.Enqueue("urgent", types.PriorityUrgent)
	q.Enqueue("high", types.PriorityHigh)

	var got []string
	for i := 0; i < 3; i++ {
		task, ok := q.TryDequeue()
		require.True(t, ok)
		got = append(got, task.AgentID)
	}

	assert.Equal(t, []string{"urgent", "high", "low"}, got)
}

func TestFIFOWithinPriorityLevel(t *testing.T) {
	q := New()

	q.Enqueue("first", types.PriorityNormal)
	q.Enqueue("second", types.PriorityNormal)
	q.Enqueue("third", types.PriorityNormal)

	var got []string
	for i := 0; i < 3; i++ {
		task, ok := q.TryDequeue()
		require.True(t, ok)
		got = append(got, task.AgentID)
	}

	assert.Equal(t, []string{"first", "second", "third"}, got)
}

func TestTryDequeueEmpty(t *testing.T) {
	q := New()

	task, ok := q.TryDequeue()
	assert.False(t, ok)
	assert.Empty(t, task.AgentID)
}

func TestDequeuedPriorityDominatesRemainder(t *testing.T) {
	q := New()

	q.Enqueue("a", types.PriorityLow)
	q.Enqueue("b", types.PriorityHigh)
	q.Enqueue("c", types.PriorityNormal)
	q.Enqueue("d", types.PriorityHigh)

	prev := types.PriorityUrgent
	for {
		task, ok := q.TryDequeue()
		if !ok {
			break
		}
		assert.LessOrEqual(t, task.Priority, prev)
		prev = task.Priority
	}
}

func TestDequeueWaitBlocksUntilEnqueue(t *testing.T) {
	q := New()

	resultCh := make(chan types.QueuedTask, 1)
	go func() {
		task, err := q.DequeueWait(context.Background())
		if err == nil {
			resultCh <- task
		}
	}()

	// Give the consumer time to block
	time.Sleep(50 * time.Millisecond)
	q.Enqueue("waited", types.PriorityNormal)

	select {
	case task := <-resultCh:
		assert.Equal(t, "waited", task.AgentID)
		assert.False(t, task.EnqueuedAt.IsZero())
	case <-time.After(2 * time.Second):
		t.Fatal("DequeueWait did not return after enqueue")
	}
}

func TestDequeueWaitCancellation(t *testing.T) {
	q := New()

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := q.DequeueWait(ctx)
		errCh <- err
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("DequeueWait did not return after cancellation")
	}
}

func TestDequeueWaitCanceledContext(t *testing.T) {
	q := New()
	q.Enqueue("a", types.PriorityNormal)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// Non-empty queue still returns a task even with a dead context:
	// the wait loop is never entered.
	task, err := q.DequeueWait(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a", task.AgentID)
}

func TestSize(t *testing.T) {
	q := New()
	assert.Equal(t, 0, q.Size())

	q.Enqueue("a", types.PriorityNormal)
	q.Enqueue("b", types.PriorityHigh)
	assert.Equal(t, 2, q.Size())

	q.TryDequeue()
	assert.Equal(t, 1, q.Size())
}

func TestConcurrentProducersConsumers(t *testing.T) {
	q := New()

	const producers = 4
	const perProducer = 25
	const total = producers * perProducer

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				q.Enqueue("agent", types.TaskPriority(1+(i%4)))
			}
		}(p)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var mu sync.Mutex
	consumed := 0
	var cwg sync.WaitGroup
	for c := 0; c < 3; c++ {
		cwg.Add(1)
		go func() {
			defer cwg.Done()
			for {
				_, err := q.DequeueWait(ctx)
				if err != nil {
					return
				}
				mu.Lock()
				consumed++
				done := consumed == total
				mu.Unlock()
				if done {
					cancel()
					return
				}
			}
		}()
	}

	wg.Wait()
	cwg.Wait()

	assert.Equal(t, total, consumed)
	assert.Equal(t, 0, q.Size())
}
