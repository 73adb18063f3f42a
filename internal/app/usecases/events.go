package usecases

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/seehiong/micronaut-optimizer/internal/core/diag"
	"github.com/seehiong/micronaut-optimizer/internal/core/propagation"
	"github.com/seehiong/micronaut-optimizer/internal/core/value"
)

// EventType names what happened in a session.
type EventType string

const (
	EventDiagnostic         EventType = "diagnostic"
	EventGraphChanged       EventType = "graph_changed"
	EventNodeOutput         EventType = "node_output"
	EventBurst              EventType = "burst"
	EventInvocationStarted  EventType = "invocation_started"
	EventInvocationFinished EventType = "invocation_finished"
)

// Event is one notification pushed to session subscribers.
type Event struct {
	Type       EventType               `json:"type"`
	SessionID  string                  `json:"session_id"`
	NodeID     string                  `json:"node_id,omitempty"`
	Diagnostic *diag.Diagnostic        `json:"diagnostic,omitempty"`
	Output     *value.Value            `json:"output,omitempty"`
	Burst      *propagation.BurstStats `json:"burst,omitempty"`
	Invocation *InvocationResult       `json:"invocation,omitempty"`
	Timestamp  time.Time               `json:"timestamp"`
}

// DefaultSubscriberBuffer is the channel size handed to subscribers.
const DefaultSubscriberBuffer = 64

// EventBus manages event distribution
// PRINCIPLES:
// - Publish never blocks: a full subscriber loses the event, not the session
// - Events reach every subscriber in publish order
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[uint64]chan Event
	nextID      uint64
	closed      bool
	dropped     atomic.Uint64
}

// NewEventBus creates a new event bus
func NewEventBus() *EventBus {
	return &EventBus{subscribers: make(map[uint64]chan Event)}
}

// Subscribe registers a subscriber and returns its channel together with the
// function that unsubscribes it. The channel is closed on unsubscribe or when
// the bus closes.
func (eb *EventBus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = DefaultSubscriberBuffer
	}
	ch := make(chan Event, buffer)

	eb.mu.Lock()
	defer eb.mu.Unlock()
	if eb.closed {
		close(ch)
		return ch, func() {}
	}
	id := eb.nextID
	eb.nextID++
	eb.subscribers[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			eb.mu.Lock()
			defer eb.mu.Unlock()
			if sub, ok := eb.subscribers[id]; ok {
				delete(eb.subscribers, id)
				close(sub)
			}
		})
	}
}

// Publish publishes an event to all subscribers
func (eb *EventBus) Publish(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	for _, ch := range eb.subscribers {
		select {
		case ch <- event:
		default:
			eb.dropped.Add(1)
		}
	}
}

// Dropped returns how many deliveries were skipped because a subscriber was
// full.
func (eb *EventBus) Dropped() uint64 { return eb.dropped.Load() }

// Close unsubscribes everyone. Later publishes are no-ops.
func (eb *EventBus) Close() {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	if eb.closed {
		return
	}
	eb.closed = true
	for id, ch := range eb.subscribers {
		delete(eb.subscribers, id)
		close(ch)
	}
}

// diagnosticSink turns diagnostics into events for one session.
func (eb *EventBus) diagnosticSink(sessionID string) diag.Sink {
	return diag.SinkFunc(func(_ context.Context, d diag.Diagnostic) {
		eb.Publish(Event{Type: EventDiagnostic, SessionID: sessionID, NodeID: d.NodeID, Diagnostic: &d})
	})
}
