package chat

import "sync"

// Message is one displayed chat line. Only the text is modelled.
type Message struct {
	Text string
}

// History is the displayed message list. Appends happen on the client loop;
// snapshots may be taken from any goroutine.
type History struct {
	mu      sync.RWMutex
	limit   int
	entries []Message
	evicted int
}

// NewHistory creates a list bounded to limit entries. Zero means unbounded.
func NewHistory(limit int) *History {
	if limit < 0 {
		limit = 0
	}
	return &History{limit: limit}
}

// Append adds msg at the end and reports how many of the oldest entries were
// evicted to respect the limit.
func (h *History) Append(msg Message) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.entries = append(h.entries, msg)
	if h.limit == 0 || len(h.entries) <= h.limit {
		return 0
	}
	drop := len(h.entries) - h.limit
	// copy down so the backing array does not grow without bound
	n := copy(h.entries, h.entries[drop:])
	clear(h.entries[n:])
	h.entries = h.entries[:n]
	h.evicted += drop
	return drop
}

// Snapshot returns a copy of the current entries, oldest first.
func (h *History) Snapshot() []Message {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]Message, len(h.entries))
	copy(out, h.entries)
	return out
}

// Len returns the number of entries currently held.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.entries)
}

// Evicted returns how many entries the limit has pushed out so far.
func (h *History) Evicted() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.evicted
}

// Reset drops every entry.
func (h *History) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = nil
}
