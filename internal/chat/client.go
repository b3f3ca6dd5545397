// Package chat implements the chat relay client: it bridges a text entry form
// and a bidirectional event channel. Every submit and every inbound message is
// handled on a single event loop, so the two handlers never run concurrently.
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/chatrelay/internal/channel"
	"github.com/vovakirdan/chatrelay/internal/config"
	"github.com/vovakirdan/chatrelay/internal/log"
	"github.com/vovakirdan/chatrelay/internal/proto"
)

// Input is the read/clear target of the form.
type Input interface {
	Value() string
	Clear()
}

// Display is the append target for received messages.
type Display interface {
	Append(text string)
}

// Resetter is implemented by displays that can be emptied.
type Resetter interface {
	Reset()
}

// Options tunes client behaviour. The zero value drops submissions made while
// the channel is not open and keeps an unbounded history.
type Options struct {
	// SendPolicy is config.SendPolicyDrop or config.SendPolicyQueue.
	SendPolicy string
	// QueueSize bounds the pending queue under SendPolicyQueue.
	QueueSize int
	// HistoryLimit caps displayed messages; zero means unbounded.
	HistoryLimit int
	// MaxMessageBytes is the largest text the relay accepts. Longer
	// submissions are dropped locally; zero disables the check.
	MaxMessageBytes int64
	Logger          *zerolog.Logger
}

// OptionsFromConfig maps the client section of cfg onto Options.
func OptionsFromConfig(cfg config.Config, logger *zerolog.Logger) Options {
	return Options{
		SendPolicy:      cfg.SendPolicy,
		QueueSize:       cfg.QueueSize,
		HistoryLimit:    cfg.HistoryLimit,
		MaxMessageBytes: cfg.MaxMessageBytes,
		Logger:          logger,
	}
}

// Client owns its channel and UI bindings for the lifetime of one session.
type Client struct {
	ch      channel.Channel
	input   Input
	display Display
	history *History
	log     *zerolog.Logger

	queueing  bool
	queueSize int
	maxText   int64

	mu      sync.Mutex
	pending []string

	ops       chan func()
	done      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once
	runOnce   sync.Once
}

// New constructs an idle client. display may be nil when only the history is
// of interest.
func New(ch channel.Channel, input Input, display Display, opts Options) *Client {
	logger := opts.Logger
	if logger == nil {
		logger = log.Nop()
	}
	queueSize := opts.QueueSize
	if queueSize <= 0 {
		queueSize = config.Default().QueueSize
	}

	c := &Client{
		ch:        ch,
		input:     input,
		display:   display,
		history:   NewHistory(opts.HistoryLimit),
		log:       logger,
		queueing:  opts.SendPolicy == config.SendPolicyQueue,
		queueSize: queueSize,
		maxText:   opts.MaxMessageBytes,
		ops:       make(chan func(), 16),
		done:      make(chan struct{}),
		stopped:   make(chan struct{}),
	}

	ch.On(proto.EventChatMessage, func(payload json.RawMessage) {
		if err := c.OnMessage(context.Background(), payload); err != nil &&
			!errors.Is(err, ErrMalformedPayload) && !errors.Is(err, ErrClientClosed) {
			c.log.Warn().Err(err).Msg("inbound message not handled")
		}
	})
	ch.On(proto.EventError, func(payload json.RawMessage) {
		c.log.Warn().RawJSON("error", payload).Msg("relay rejected a frame")
	})

	return c
}

// Run executes the event loop until ctx is done or the client is closed.
// It must be running for Submit, OnMessage and Clear to make progress.
func (c *Client) Run(ctx context.Context) error {
	err := ErrClientClosed
	ran := false
	c.runOnce.Do(func() {
		ran = true
		defer close(c.stopped)
		for {
			select {
			case op := <-c.ops:
				op()
			case <-ctx.Done():
				err = ctx.Err()
				return
			case <-c.done:
				err = nil
				return
			}
		}
	})
	if !ran {
		return fmt.Errorf("run: %w", ErrClientClosed)
	}
	return err
}

// Connect opens the channel (idle -> open) and flushes any queued
// submissions in order. Both happen on the loop, so no submission can
// overtake the queue.
func (c *Client) Connect(ctx context.Context) error {
	var openErr error
	err := c.do(ctx, func() {
		if openErr = c.ch.Open(ctx); openErr != nil {
			return
		}
		c.log.Debug().Msg("channel open")
		c.flush(ctx)
	})
	if err != nil {
		return err
	}
	if openErr != nil {
		return fmt.Errorf("open channel: %w", openErr)
	}
	return nil
}

// Submit reads the current input value, emits it unchanged as a chat message
// and clears the input. Empty values are sent as-is. A channel that is not
// open never produces an error here: the submission is dropped or queued
// according to the send policy.
func (c *Client) Submit(ctx context.Context) error {
	return c.do(ctx, func() { c.submit(ctx, c.input.Value()) })
}

// OnMessage appends a received payload to the list as plain text. Payloads
// that are not JSON strings are rejected with ErrMalformedPayload.
func (c *Client) OnMessage(ctx context.Context, payload json.RawMessage) error {
	var handleErr error
	if err := c.do(ctx, func() { handleErr = c.receive(payload) }); err != nil {
		return err
	}
	return handleErr
}

// Clear empties the displayed list.
func (c *Client) Clear(ctx context.Context) error {
	return c.do(ctx, func() {
		c.history.Reset()
		if r, ok := c.display.(Resetter); ok {
			r.Reset()
		}
	})
}

// Messages returns the displayed messages, oldest first.
func (c *Client) Messages() []Message {
	return c.history.Snapshot()
}

// Pending returns how many submissions wait for the channel to open.
func (c *Client) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// State reports the channel state.
func (c *Client) State() channel.State {
	return c.ch.State()
}

// Close stops the loop and closes the channel. It is safe to call twice.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.ch.Close()
	})
	return err
}

func (c *Client) submit(ctx context.Context, value string) {
	defer c.input.Clear()

	if !utf8.ValidString(value) {
		c.log.Warn().Int("bytes", len(value)).Msg("input is not valid UTF-8, message dropped")
		return
	}
	if c.maxText > 0 && int64(len(value)) > c.maxText {
		c.log.Warn().Int("bytes", len(value)).Int64("max_bytes", c.maxText).Msg("message too large, dropped")
		return
	}

	if state := c.ch.State(); state != channel.Open {
		c.hold(value, state)
		return
	}

	if err := c.ch.Emit(ctx, proto.EventChatMessage, value); err != nil {
		if errors.Is(err, channel.ErrNotOpen) {
			c.hold(value, c.ch.State())
			return
		}
		c.log.Warn().Err(err).Msg("emit chat message")
	}
}

// hold applies the send policy to a value that could not be emitted.
// A closed channel never reopens, so queueing only applies while idle.
func (c *Client) hold(value string, state channel.State) {
	if !c.queueing || state == channel.Closed {
		c.log.Warn().Str("state", state.String()).Msg("channel not open, message dropped")
		return
	}
	c.mu.Lock()
	if len(c.pending) >= c.queueSize {
		c.pending = c.pending[1:]
		c.log.Warn().Int("queue_size", c.queueSize).Msg("pending queue full, oldest message dropped")
	}
	c.pending = append(c.pending, value)
	n := len(c.pending)
	c.mu.Unlock()
	c.log.Debug().Int("pending", n).Msg("message queued until channel opens")
}

func (c *Client) flush(ctx context.Context) {
	c.mu.Lock()
	pending := c.pending
	c.pending = nil
	c.mu.Unlock()
	for i, value := range pending {
		if err := c.ch.Emit(ctx, proto.EventChatMessage, value); err != nil {
			c.log.Warn().Err(err).Int("unsent", len(pending)-i).Msg("flush pending messages")
			return
		}
	}
	if len(pending) > 0 {
		c.log.Debug().Int("count", len(pending)).Msg("pending messages flushed")
	}
}

func (c *Client) receive(payload json.RawMessage) error {
	text, err := proto.DecodeText(payload)
	if err != nil {
		c.log.Warn().Err(err).Int("bytes", len(payload)).Msg("rejected inbound chat message")
		return fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	if evicted := c.history.Append(Message{Text: text}); evicted > 0 {
		c.log.Debug().Int("evicted", evicted).Msg("history limit reached")
	}
	if c.display != nil {
		c.display.Append(text)
	}
	return nil
}

// do runs fn on the event loop and waits for it to finish.
func (c *Client) do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	op := func() {
		defer close(finished)
		fn()
	}

	select {
	case c.ops <- op:
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return ErrClientClosed
	case <-c.stopped:
		return ErrClientClosed
	}

	select {
	case <-finished:
		return nil
	case <-c.stopped:
		return ErrClientClosed
	}
}
