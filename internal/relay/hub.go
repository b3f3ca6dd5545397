// Package relay rebroadcasts chat messages to every connected peer.
package relay

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/chatrelay/internal/log"
)

// Hub owns the peer set. All mutations happen on the Run goroutine.
type Hub struct {
	echo bool
	log  *zerolog.Logger

	register   chan *Peer
	unregister chan *Peer
	publish    chan *Event
	count      chan chan int
	done       chan struct{}

	peers map[*Peer]struct{}
}

// NewHub creates a hub. With echo set the sender receives its own messages.
func NewHub(echo bool, logger *zerolog.Logger) *Hub {
	if logger == nil {
		logger = log.Nop()
	}
	return &Hub{
		echo:       echo,
		log:        logger,
		register:   make(chan *Peer),
		unregister: make(chan *Peer),
		publish:    make(chan *Event, 64),
		count:      make(chan chan int),
		done:       make(chan struct{}),
		peers:      make(map[*Peer]struct{}),
	}
}

// Run processes hub operations until ctx is done. Peer event channels are
// closed on exit.
func (h *Hub) Run(ctx context.Context) {
	defer func() {
		close(h.done)
		for p := range h.peers {
			delete(h.peers, p)
			close(p.Events)
		}
	}()

	for {
		select {
		case p := <-h.register:
			h.peers[p] = struct{}{}
			h.log.Debug().Str("peer_id", p.ID).Int("peers", len(h.peers)).Msg("peer registered")
		case p := <-h.unregister:
			if _, ok := h.peers[p]; ok {
				delete(h.peers, p)
				close(p.Events)
				h.log.Debug().Str("peer_id", p.ID).Int("peers", len(h.peers)).Msg("peer unregistered")
			}
		case ev := <-h.publish:
			h.broadcast(ev)
		case reply := <-h.count:
			reply <- len(h.peers)
		case <-ctx.Done():
			return
		}
	}
}

// RegisterClient adds p to the broadcast set. It returns false once the hub
// has stopped.
func (h *Hub) RegisterClient(p *Peer) bool {
	select {
	case h.register <- p:
		return true
	case <-h.done:
		return false
	}
}

// UnregisterClient removes p and closes its event channel.
func (h *Hub) UnregisterClient(p *Peer) {
	select {
	case h.unregister <- p:
	case <-h.done:
	}
}

// Publish queues a message from the given peer for broadcast.
func (h *Hub) Publish(ctx context.Context, from *Peer, text string) bool {
	select {
	case <-h.done:
		return false
	default:
	}

	ev := &Event{From: from.ID, Text: text}
	select {
	case h.publish <- ev:
		return true
	case <-ctx.Done():
		return false
	case <-h.done:
		return false
	}
}

// Count returns the number of registered peers.
func (h *Hub) Count() int {
	reply := make(chan int, 1)
	select {
	case h.count <- reply:
		return <-reply
	case <-h.done:
		return 0
	}
}

func (h *Hub) broadcast(ev *Event) {
	for p := range h.peers {
		if !h.echo && p.ID == ev.From {
			continue
		}
		select {
		case p.Events <- ev:
		default:
			// Drop if slow consumer.
			h.log.Warn().Str("peer_id", p.ID).Msg("peer queue full, message dropped")
		}
	}
}
