// Package channel defines the bidirectional event channel the chat client is
// written against. Implementations own the transport; callers only see named
// events with JSON payloads.
package channel

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
)

// State is the lifecycle position of a channel.
type State int32

const (
	// Idle is a constructed channel that has not been opened yet.
	Idle State = iota
	// Open means events can be emitted and are being received.
	Open
	// Closed is terminal. There is no reconnection.
	Closed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Open:
		return "open"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

var (
	// ErrNotOpen is returned by Emit when the channel is idle or closed.
	ErrNotOpen = errors.New("channel not open")
	// ErrAlreadyOpened is returned by Open on a channel that left Idle.
	ErrAlreadyOpened = errors.New("channel already opened")
)

// Handler receives the raw payload of one inbound event.
type Handler func(payload json.RawMessage)

// Channel is a bidirectional, fire-and-forget event channel.
type Channel interface {
	// Open moves the channel from Idle to Open.
	Open(ctx context.Context) error
	// Emit sends one event. No acknowledgment is awaited.
	Emit(ctx context.Context, event, payload string) error
	// On registers the handler for an event name, replacing any previous one.
	// Handlers for one channel are invoked sequentially in arrival order.
	On(event string, h Handler)
	State() State
	Close() error
}

// Handlers is a concurrency-safe event name to handler table shared by
// channel implementations.
type Handlers struct {
	mu sync.RWMutex
	m  map[string]Handler
}

// Set registers h for event. A nil handler removes the registration.
func (h *Handlers) Set(event string, fn Handler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if fn == nil {
		delete(h.m, event)
		return
	}
	if h.m == nil {
		h.m = make(map[string]Handler)
	}
	h.m[event] = fn
}

// Dispatch invokes the handler for event and reports whether one was found.
func (h *Handlers) Dispatch(event string, payload json.RawMessage) bool {
	h.mu.RLock()
	fn, ok := h.m[event]
	h.mu.RUnlock()
	if !ok {
		return false
	}
	fn(payload)
	return true
}
