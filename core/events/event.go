package events

import (
	"sync"

	"lottochain/core/types"
)

// Event represents a structured state change emitted by the chain.
type Event interface {
	EventType() string
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

// TypedEvent is implemented by events that carry a serialisable payload.
type TypedEvent interface {
	Event
	Event() *types.Event
}

// Recorder buffers events emitted during a single state transition. The node
// hands a fresh recorder to the engine for each transaction and only forwards
// the buffered events once the transition commits.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Emit implements the Emitter interface.
func (r *Recorder) Emit(evt Event) {
	if r == nil || evt == nil {
		return
	}
	r.mu.Lock()
	r.events = append(r.events, evt)
	r.mu.Unlock()
}

// Events returns the buffered events in emission order.
func (r *Recorder) Events() []Event {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Payloads converts the buffered events into their serialisable form, skipping
// events without one.
func (r *Recorder) Payloads() []types.Event {
	var out []types.Event
	for _, evt := range r.Events() {
		typed, ok := evt.(TypedEvent)
		if !ok {
			continue
		}
		if payload := typed.Event(); payload != nil {
			out = append(out, *payload)
		}
	}
	return out
}

// Flush forwards the buffered events to dst and clears the buffer.
func (r *Recorder) Flush(dst Emitter) {
	if r == nil {
		return
	}
	r.mu.Lock()
	pending := r.events
	r.events = nil
	r.mu.Unlock()
	if dst == nil {
		return
	}
	for _, evt := range pending {
		dst.Emit(evt)
	}
}

// Discard drops the buffered events.
func (r *Recorder) Discard() {
	if r == nil {
		return
	}
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}
