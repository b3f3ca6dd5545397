package relay

import "github.com/google/uuid"

// Peer is a connected chat client as seen by the hub.
type Peer struct {
	ID     string
	Events chan *Event
}

// NewPeer constructs a peer with a fresh id and a buffered event queue.
func NewPeer(buffer int) *Peer {
	if buffer <= 0 {
		buffer = 16
	}
	return &Peer{
		ID:     uuid.NewString(),
		Events: make(chan *Event, buffer),
	}
}
