package channel

import (
	"context"
	"encoding/json"
	"sync"
)

// Emission is one event recorded by Memory.
type Emission struct {
	Event   string
	Payload string
}

// Memory is an in-process Channel. Emitted events are recorded and inbound
// events are injected with Deliver.
type Memory struct {
	mu       sync.Mutex
	state    State
	emitted  []Emission
	handlers Handlers
}

// NewMemory returns an idle in-memory channel.
func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Open(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != Idle {
		return ErrAlreadyOpened
	}
	m.state = Open
	return nil
}

func (m *Memory) Emit(ctx context.Context, event, payload string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != Open {
		return ErrNotOpen
	}
	m.emitted = append(m.emitted, Emission{Event: event, Payload: payload})
	return nil
}

func (m *Memory) On(event string, h Handler) {
	m.handlers.Set(event, h)
}

func (m *Memory) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = Closed
	return nil
}

// Deliver injects an inbound event as if it arrived from the peer.
// It reports whether a handler consumed it.
func (m *Memory) Deliver(event string, payload json.RawMessage) bool {
	if m.State() != Open {
		return false
	}
	return m.handlers.Dispatch(event, payload)
}

// DeliverText is Deliver with a string payload encoded as JSON.
func (m *Memory) DeliverText(event, text string) bool {
	data, err := json.Marshal(text)
	if err != nil {
		return false
	}
	return m.Deliver(event, data)
}

// Emitted returns a copy of everything emitted so far.
func (m *Memory) Emitted() []Emission {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Emission, len(m.emitted))
	copy(out, m.emitted)
	return out
}
