package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cairnlabs/cairn/pkg/types"
)

func TestSubscribeAndPublish(t *testing.T) {
	broker := NewBroker()
	broker.Start()
	defer broker.Stop()

	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)

	broker.Publish(&Event{
		Type:    EventAgentQueued,
		AgentID: "agent-1",
		State:   types.StateQueued,
		Message: "task queued",
	})

	select {
	case event := <-sub:
		assert.Equal(t, EventAgentQueued, event.Type)
		assert.Equal(t, "agent-1", event.AgentID)
		assert.Equal(t, types.StateQueued, event.State)
		assert.False(t, event.Timestamp.IsZero(), "timestamp should be set on publish")
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestBroadcastToMultipleSubscribers(t *testing.T) {
	broker := NewBroker()
	broker.Start()
	defer broker.Stop()

	sub1 := broker.Subscribe()
	sub2 := broker.Subscribe()
	defer broker.Unsubscribe(sub1)
	defer broker.Unsubscribe(sub2)

	require.Equal(t, 2, broker.SubscriberCount())

	broker.Publish(&Event{Type: EventAgentStateChanged, AgentID: "agent-2", State: types.StateExecuting})

	for _, sub := range []Subscriber{sub1, sub2} {
		select {
		case event := <-sub:
			assert.Equal(t, EventAgentStateChanged, event.Type)
		case <-time.After(2 * time.Second):
			t.Fatal("subscriber did not receive broadcast")
		}
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	broker := NewBroker()
	broker.Start()
	defer broker.Stop()

	sub := broker.Subscribe()
	broker.Unsubscribe(sub)

	_, open := <-sub
	assert.False(t, open, "channel should be closed after unsubscribe")
	assert.Equal(t, 0, broker.SubscriberCount())

	// Double unsubscribe must not panic
	broker.Unsubscribe(sub)
}

func TestFullSubscriberDoesNotBlockBroadcast(t *testing.T) {
	broker := NewBroker()
	broker.Start()
	defer broker.Stop()

	// Never drained: fills up after 50 events
	stuck := broker.Subscribe()
	defer broker.Unsubscribe(stuck)

	live := broker.Subscribe()
	defer broker.Unsubscribe(live)

	for i := 0; i < 60; i++ {
		broker.Publish(&Event{Type: EventAgentQueued, AgentID: "agent-3"})
	}

	// The live subscriber still receives events even though the stuck
	// one stopped accepting them.
	received := 0
	deadline := time.After(2 * time.Second)
	for received < 50 {
		select {
		case <-live:
			received++
		case <-deadline:
			t.Fatalf("live subscriber received only %d events", received)
		}
	}
}
