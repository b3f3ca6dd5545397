// Package ws implements channel.Channel over a websocket connection.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	stdhttp "net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/chatrelay/internal/channel"
	"github.com/vovakirdan/chatrelay/internal/log"
	"github.com/vovakirdan/chatrelay/internal/proto"
)

// Options configures the websocket channel.
type Options struct {
	DialTimeout time.Duration
	// ReadLimit caps a single inbound frame in bytes. Zero keeps the library default.
	ReadLimit int64
	Header    stdhttp.Header
	Logger    *zerolog.Logger
}

// Channel is a client-side websocket channel. It is idle until Open dials.
type Channel struct {
	url      string
	opts     Options
	log      *zerolog.Logger
	handlers channel.Handlers

	mu       sync.Mutex
	state    channel.State
	conn     *websocket.Conn
	cancel   context.CancelFunc
	readDone chan struct{}

	closed    chan struct{}
	closeOnce sync.Once
}

var _ channel.Channel = (*Channel)(nil)

// New returns an idle channel for the given ws:// or wss:// URL.
func New(url string, opts Options) *Channel {
	logger := opts.Logger
	if logger == nil {
		logger = log.Nop()
	}
	return &Channel{url: url, opts: opts, log: logger, closed: make(chan struct{})}
}

// Done is closed once the channel reaches the Closed state, whether by Close
// or because the peer went away.
func (c *Channel) Done() <-chan struct{} {
	return c.closed
}

// Open dials the server. A failed dial leaves the channel idle.
func (c *Channel) Open(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != channel.Idle {
		return channel.ErrAlreadyOpened
	}

	dialCtx := ctx
	if c.opts.DialTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, c.opts.DialTimeout)
		defer cancel()
	}

	conn, _, err := websocket.Dial(dialCtx, c.url, &websocket.DialOptions{
		HTTPHeader:   c.opts.Header,
		Subprotocols: []string{proto.Subprotocol},
	})
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.url, err)
	}
	if c.opts.ReadLimit > 0 {
		conn.SetReadLimit(c.opts.ReadLimit)
	}

	readCtx, cancel := context.WithCancel(context.Background())
	c.conn = conn
	c.cancel = cancel
	c.readDone = make(chan struct{})
	c.state = channel.Open

	go c.readLoop(readCtx, conn, c.readDone)

	c.log.Info().Str("url", c.url).Msg("connected")
	return nil
}

// Emit writes one frame. There is no acknowledgment.
func (c *Channel) Emit(ctx context.Context, event, payload string) error {
	c.mu.Lock()
	conn, state := c.conn, c.state
	c.mu.Unlock()

	if state != channel.Open {
		return channel.ErrNotOpen
	}

	frame, err := proto.NewFrame(event, payload)
	if err != nil {
		return err
	}
	data, err := proto.Encode(frame)
	if err != nil {
		return err
	}
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

func (c *Channel) On(event string, h channel.Handler) {
	c.handlers.Set(event, h)
}

func (c *Channel) State() channel.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Close performs a normal closure and waits for the read loop to stop.
func (c *Channel) Close() error {
	c.mu.Lock()
	if c.state == channel.Closed {
		c.mu.Unlock()
		return nil
	}
	conn, cancel, readDone := c.conn, c.cancel, c.readDone
	c.state = channel.Closed
	c.mu.Unlock()

	if conn == nil {
		c.closeOnce.Do(func() { close(c.closed) })
		return nil
	}

	err := conn.Close(websocket.StatusNormalClosure, "bye")
	cancel()
	<-readDone

	// the peer may already have closed; closing is best effort
	if err != nil && !isExpectedClose(err) {
		c.log.Debug().Err(err).Msg("close websocket")
	}
	return nil
}

func (c *Channel) readLoop(ctx context.Context, conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)
	defer c.markClosed()

	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			if !isExpectedClose(err) {
				c.log.Warn().Err(err).Msg("read ws frame")
			} else {
				c.log.Debug().Msg("connection closed")
			}
			return
		}
		if typ != websocket.MessageText {
			c.log.Warn().Str("type", typ.String()).Msg("ignoring non-text frame")
			continue
		}

		var frame proto.Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			c.log.Warn().Err(err).Int("bytes", len(data)).Msg("ignoring malformed frame")
			continue
		}

		payload := frame.Data
		if frame.Error != nil {
			if payload, err = json.Marshal(frame.Error); err != nil {
				continue
			}
		}

		if !c.handlers.Dispatch(frame.Event, payload) {
			c.log.Debug().Str("event", frame.Event).Msg("no handler for event")
		}
	}
}

func (c *Channel) markClosed() {
	c.mu.Lock()
	c.state = channel.Closed
	c.mu.Unlock()
	c.closeOnce.Do(func() { close(c.closed) })
}

func isExpectedClose(err error) bool {
	if errors.Is(err, context.Canceled) {
		return true
	}
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		return true
	}
	return false
}
