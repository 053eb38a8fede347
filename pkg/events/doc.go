/*
Package events provides an in-memory event broker for Cairn's pub/sub messaging.

The events package implements a lightweight event bus for broadcasting agent
lifecycle events to interested subscribers. It supports asynchronous event
delivery with buffered channels, enabling loose coupling between the
orchestrator, the lifecycle runner, and observers such as the CLI log stream
and the state snapshot writer.

# Architecture

Cairn's event system provides non-blocking pub/sub messaging with buffered
channels:

	┌──────────────────── EVENT BROKER ────────────────────────┐
	│                                                           │
	│  ┌────────────────────────────────────────────┐           │
	│  │              Event Broker                  │           │
	│  │  - In-memory message bus                   │           │
	│  │  - Topic-agnostic (all events broadcast)   │           │
	│  │  - Non-blocking publish                    │           │
	│  └──────────────────┬─────────────────────────┘           │
	│                     │                                     │
	│  ┌──────────────────▼─────────────────────────┐           │
	│  │          Event Distribution                │           │
	│  │                                            │           │
	│  │  Publisher → Event Channel (buffer: 100)   │           │
	│  │       ↓                                    │           │
	│  │  Broadcast Loop                            │           │
	│  │       ↓                                    │           │
	│  │  Subscriber Channels (buffer: 50 each)     │           │
	│  └──────────────────┬─────────────────────────┘           │
	│                     │                                     │
	│  ┌──────────────────▼─────────────────────────┐           │
	│  │           Event Types                      │           │
	│  │                                            │           │
	│  │  Agent Events:                             │           │
	│  │    - agent.queued                          │           │
	│  │    - agent.state_changed                   │           │
	│  │    - agent.accepted                        │           │
	│  │    - agent.rejected                        │           │
	│  │    - agent.errored                         │           │
	│  │    - agent.trashed                         │           │
	│  │                                            │           │
	│  │  Other Events:                             │           │
	│  │    - merge.completed                       │           │
	│  │    - signal.received                       │           │
	│  └────────────────────────────────────────────┘           │
	│                                                           │
	│  ┌────────────────────────────────────────────┐           │
	│  │            Subscribers                     │           │
	│  │                                            │           │
	│  │  CLI: Stream lifecycle events to the log   │           │
	│  │  Orchestrator: Refresh state snapshot      │           │
	│  │  Tests: Await specific agent states        │           │
	│  └────────────────────────────────────────────┘           │
	└───────────────────────────────────────────────────────────┘

# Core Components

Event Broker:
  - Central message bus for event distribution
  - Manages subscriber lifecycle
  - Non-blocking publish (buffered channel)
  - Graceful shutdown via stop channel

Event:
  - Type: Event type (agent.queued, agent.state_changed, etc.)
  - AgentID: Which agent the event concerns
  - State: Agent lifecycle state at publish time
  - Timestamp: When event occurred
  - Message: Human-readable description

Subscriber:
  - Channel that receives Event pointers
  - Buffered (50 events) to handle bursts
  - Created via broker.Subscribe()
  - Closed via broker.Unsubscribe()

# Event Flow

Publish Flow:
 1. Publisher calls broker.Publish(event)
 2. Event added to main event channel (non-blocking)
 3. Broadcast loop receives event
 4. Event sent to all subscriber channels
 5. Subscribers receive event asynchronously
 6. Full subscriber buffers skip (no blocking)

Subscribe Flow:
 1. Subscriber calls broker.Subscribe()
 2. New buffered channel created
 3. Channel registered in subscriber map
 4. Subscriber channel returned
 5. Subscriber receives events via channel
 6. Subscriber processes events in own goroutine

Unsubscribe Flow:
 1. Subscriber calls broker.Unsubscribe(channel)
 2. Channel removed from subscriber map
 3. Channel closed
 4. Subscriber stops receiving events

# Usage

Creating and Starting Broker:

	import "github.com/cairnlabs/cairn/pkg/events"

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

Subscribing to Events:

	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)

	go func() {
		for event := range sub {
			fmt.Printf("Event: %s - %s\n", event.Type, event.Message)
		}
	}()

Publishing Events:

	broker.Publish(&events.Event{
		Type:    events.EventAgentStateChanged,
		AgentID: "a1b2c3d4",
		State:   types.StateExecuting,
		Message: "agent a1b2c3d4 entered executing",
	})

Filtering Events by Type:

	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)

	go func() {
		for event := range sub {
			switch event.Type {
			case events.EventAgentErrored:
				handleAgentErrored(event)
			case events.EventMergeCompleted:
				handleMergeCompleted(event)
			default:
				// Ignore other events
			}
		}
	}()

# Integration Points

This package integrates with:

  - pkg/orchestrator: Publishes queue, review, and trash events
  - pkg/runner: Publishes state transitions as agents progress
  - pkg/merge: Publishes merge.completed after overlay promotion
  - pkg/signals: Publishes signal.received for each processed file
  - cmd/cairn: Subscribes and streams events to the console log

# Event Types Catalog

Agent Events:

EventAgentQueued:
  - Published when: A task is enqueued and a lifecycle record created
  - Fields: AgentID, State (queued)
  - Subscribers: CLI log, snapshot refresh

EventAgentStateChanged:
  - Published when: Any lifecycle transition is persisted
  - Fields: AgentID, State (new state)
  - Subscribers: CLI log, snapshot refresh, tests

EventAgentAccepted:
  - Published when: A reviewing agent's work is accepted and merged
  - Fields: AgentID, State (accepted)
  - Subscribers: CLI log, snapshot refresh

EventAgentRejected:
  - Published when: A reviewing agent's work is rejected
  - Fields: AgentID, State (rejected)
  - Subscribers: CLI log, snapshot refresh

EventAgentErrored:
  - Published when: Generation, validation, or execution fails
  - Fields: AgentID, State (errored), Message carries the error
  - Subscribers: CLI log, snapshot refresh

EventAgentTrashed:
  - Published when: An agent's overlay is moved to the trash area
  - Fields: AgentID
  - Subscribers: CLI log

Other Events:

EventMergeCompleted:
  - Published when: An accepted overlay finished merging into stable
  - Fields: AgentID, Message carries the merged file count
  - Subscribers: CLI log

EventSignalReceived:
  - Published when: The signal adapter translated a signal file
  - Fields: AgentID (when the signal names one)
  - Subscribers: CLI log

# Design Patterns

Non-Blocking Publish:
  - Publish sends to buffered channel
  - Returns immediately (no waiting)
  - Events may be dropped if buffer full
  - Trade-off: Throughput over guaranteed delivery

Fan-Out Pattern:
  - Single event broadcast to all subscribers
  - Each subscriber gets own channel
  - Independent processing rates
  - Full buffers skip to prevent blocking

Fire-and-Forget:
  - No acknowledgment from subscribers
  - No retry on delivery failure
  - Simplifies broker implementation
  - Suitable for monitoring, not critical operations

Graceful Shutdown:
  - broker.Stop() signals broadcast loop
  - Subscriber channels remain open
  - Explicit Unsubscribe to close channels

# Performance Characteristics

Event Publishing:
  - Latency: < 1µs (channel send)
  - Non-blocking: Never waits for subscribers
  - Bottleneck: Subscriber processing speed

Event Delivery:
  - Per subscriber: ~500ns to 1µs
  - Buffer: 50 events per subscriber
  - Overflow: Slow subscribers skip events

Memory Usage:
  - Broker: ~1KB baseline
  - Per subscriber: ~400 bytes (channel overhead)
  - Per event: ~150 bytes

# Limitations

Current Limitations:
  - In-memory only (no persistence)
  - No event replay or history
  - No guaranteed delivery (best effort)
  - No topic-based filtering (all events broadcast)

The durable record of agent progress is the lifecycle store, not the
event stream. Events are a convenience for observers; missing one never
corrupts orchestrator state.

# Best Practices

Do:
  - Always defer broker.Unsubscribe(sub)
  - Process events asynchronously in goroutine
  - Filter events by type at subscriber
  - Start broker before publishing events

Don't:
  - Block in subscriber event loop
  - Publish events before broker.Start()
  - Forget to unsubscribe (causes leaks)
  - Rely on event delivery for critical operations

# See Also

  - pkg/orchestrator for the publishing side
  - pkg/lifecycle for the durable agent state store
  - Pub/sub pattern: https://en.wikipedia.org/wiki/Publish%E2%80%93subscribe_pattern
*/
package events
