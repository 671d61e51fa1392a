package events

import (
	"sync"

	"splitescrow/core/types"
)

// Event represents a structured state change emitted by an escrow module.
type Event interface {
	EventType() string
}

// Payload is implemented by events that can render their attribute map.
type Payload interface {
	Event
	Event() *types.Event
}

// Emitter broadcasts events to downstream subscribers (e.g. RPC, indexers).
type Emitter interface {
	Emit(Event)
}

// NoopEmitter is a helper that satisfies the Emitter interface while discarding
// all events. It is useful when a component wants to optionally expose events.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// ToPayload renders evt into its attribute form. Events that do not expose a
// payload are reported with an empty attribute map.
func ToPayload(evt Event) *types.Event {
	if evt == nil {
		return nil
	}
	if provider, ok := evt.(Payload); ok {
		if payload := provider.Event(); payload != nil {
			return payload.Clone()
		}
	}
	return &types.Event{Type: evt.EventType(), Attributes: map[string]string{}}
}

// Buffer collects events until the surrounding call decides whether to
// publish or drop them.
type Buffer struct {
	mu     sync.Mutex
	events []*types.Event
}

// Emit implements the Emitter interface.
func (b *Buffer) Emit(evt Event) {
	payload := ToPayload(evt)
	if b == nil || payload == nil {
		return
	}
	b.mu.Lock()
	b.events = append(b.events, payload)
	b.mu.Unlock()
}

// Drain returns the buffered events and resets the buffer.
func (b *Buffer) Drain() []*types.Event {
	if b == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.events
	b.events = nil
	return out
}

// Reset drops every buffered event.
func (b *Buffer) Reset() {
	if b == nil {
		return
	}
	b.mu.Lock()
	b.events = nil
	b.mu.Unlock()
}

// Sink receives committed event payloads.
type Sink interface {
	Publish(evt *types.Event)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(evt *types.Event)

// Publish implements Sink.
func (f SinkFunc) Publish(evt *types.Event) {
	if f != nil {
		f(evt)
	}
}
