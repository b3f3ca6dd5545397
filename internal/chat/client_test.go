package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/chatrelay/internal/channel"
	"github.com/vovakirdan/chatrelay/internal/config"
	"github.com/vovakirdan/chatrelay/internal/proto"
)

func TestSubmitEmitsExactValueAndClearsInput(t *testing.T) {
	for _, value := range []string{"hello", "", "  padded  ", "<b>bold</b>", "line\nbreak"} {
		t.Run(fmt.Sprintf("%q", value), func(t *testing.T) {
			h := newHarness(t, Options{})
			h.connect(t)

			h.input.Set(value)
			require.NoError(t, h.client.Submit(h.ctx))

			assert.Equal(t, []channel.Emission{{Event: proto.EventChatMessage, Payload: value}}, h.ch.Emitted())
			assert.Equal(t, "", h.input.Value())
		})
	}
}

func TestSubmitWhileIdleDropsByDefault(t *testing.T) {
	h := newHarness(t, Options{})

	h.input.Set("too early")
	require.NoError(t, h.client.Submit(h.ctx))

	assert.Empty(t, h.ch.Emitted())
	assert.Equal(t, "", h.input.Value(), "input is cleared even when dropped")
	assert.Equal(t, 0, h.client.Pending())

	h.connect(t)
	assert.Empty(t, h.ch.Emitted(), "dropped messages are not replayed")
}

func TestSubmitWhileClosedDoesNotFail(t *testing.T) {
	h := newHarness(t, Options{SendPolicy: config.SendPolicyQueue})
	h.connect(t)
	require.NoError(t, h.ch.Close())

	h.input.Set("after close")
	require.NoError(t, h.client.Submit(h.ctx))
	assert.Empty(t, h.ch.Emitted())
	assert.Equal(t, 0, h.client.Pending(), "closed channels never reopen, nothing is queued")
}

func TestQueuePolicyFlushesInOrderOnConnect(t *testing.T) {
	h := newHarness(t, Options{SendPolicy: config.SendPolicyQueue, QueueSize: 2})

	for _, v := range []string{"one", "two", "three"} {
		h.input.Set(v)
		require.NoError(t, h.client.Submit(h.ctx))
	}
	assert.Equal(t, 2, h.client.Pending(), "oldest dropped once the queue is full")

	h.connect(t)

	assert.Equal(t, []channel.Emission{
		{Event: proto.EventChatMessage, Payload: "two"},
		{Event: proto.EventChatMessage, Payload: "three"},
	}, h.ch.Emitted())
	assert.Equal(t, 0, h.client.Pending())
}

func TestConnectFlushesQueueBeforeLaterSubmits(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	ch := &gatedChannel{Memory: channel.NewMemory(), opening: make(chan struct{}), release: make(chan struct{})}
	input := &fakeInput{}
	client := New(ch, input, nil, Options{SendPolicy: config.SendPolicyQueue})
	go func() { _ = client.Run(ctx) }()
	t.Cleanup(func() { _ = client.Close() })

	input.Set("queued")
	require.NoError(t, client.Submit(ctx))

	connected := make(chan error, 1)
	go func() { connected <- client.Connect(ctx) }()
	<-ch.opening

	submitted := make(chan error, 1)
	go func() {
		input.Set("later")
		submitted <- client.Submit(ctx)
	}()
	time.Sleep(20 * time.Millisecond)
	close(ch.release)

	require.NoError(t, <-connected)
	require.NoError(t, <-submitted)
	assert.Equal(t, []channel.Emission{
		{Event: proto.EventChatMessage, Payload: "queued"},
		{Event: proto.EventChatMessage, Payload: "later"},
	}, ch.Emitted())
}

func TestPendingWithoutRunningLoop(t *testing.T) {
	client := New(channel.NewMemory(), &fakeInput{}, nil, Options{})

	done := make(chan int, 1)
	go func() { done <- client.Pending() }()
	select {
	case n := <-done:
		assert.Equal(t, 0, n)
	case <-time.After(time.Second):
		t.Fatal("Pending blocked without a running loop")
	}
}

func TestSubmitDropsInvalidUTF8(t *testing.T) {
	h := newHarness(t, Options{})
	h.connect(t)

	h.input.Set("bad\xffbyte")
	require.NoError(t, h.client.Submit(h.ctx))

	assert.Empty(t, h.ch.Emitted())
	assert.Equal(t, "", h.input.Value())
}

func TestSubmitSizeLimit(t *testing.T) {
	h := newHarness(t, Options{MaxMessageBytes: 8})
	h.connect(t)

	h.input.Set(strings.Repeat("<", 8))
	require.NoError(t, h.client.Submit(h.ctx))
	h.input.Set(strings.Repeat("<", 9))
	require.NoError(t, h.client.Submit(h.ctx))

	assert.Equal(t, []channel.Emission{
		{Event: proto.EventChatMessage, Payload: strings.Repeat("<", 8)},
	}, h.ch.Emitted())
	assert.Equal(t, "", h.input.Value(), "input is cleared even when too large")
	assert.Equal(t, channel.Open, h.client.State())
}

func TestOnMessageAppendsPlainTextInArrivalOrder(t *testing.T) {
	h := newHarness(t, Options{})
	h.connect(t)

	require.True(t, h.ch.DeliverText(proto.EventChatMessage, "a"))
	require.True(t, h.ch.DeliverText(proto.EventChatMessage, "b"))
	require.True(t, h.ch.DeliverText(proto.EventChatMessage, "<script>x</script>"))

	want := []Message{{Text: "a"}, {Text: "b"}, {Text: "<script>x</script>"}}
	assert.Equal(t, want, h.client.Messages())
	assert.Equal(t, []string{"a", "b", "<script>x</script>"}, h.display.Lines())
}

func TestOnMessageRejectsNonString(t *testing.T) {
	h := newHarness(t, Options{})
	h.connect(t)

	require.NoError(t, h.client.OnMessage(h.ctx, json.RawMessage(`"kept"`)))
	for _, raw := range []string{`123`, `{"text":"x"}`, `null`, `["a"]`} {
		err := h.client.OnMessage(h.ctx, json.RawMessage(raw))
		require.ErrorIs(t, err, ErrMalformedPayload, raw)
	}

	assert.Equal(t, []Message{{Text: "kept"}}, h.client.Messages(), "existing entries untouched")
	assert.Equal(t, []string{"kept"}, h.display.Lines())
}

func TestHistoryLimitEvictsOldest(t *testing.T) {
	h := newHarness(t, Options{HistoryLimit: 2})
	h.connect(t)

	for _, text := range []string{"a", "b", "c"} {
		require.NoError(t, h.client.OnMessage(h.ctx, mustJSON(t, text)))
	}
	assert.Equal(t, []Message{{Text: "b"}, {Text: "c"}}, h.client.Messages())
}

func TestClearEmptiesList(t *testing.T) {
	h := newHarness(t, Options{})
	h.connect(t)

	require.NoError(t, h.client.OnMessage(h.ctx, mustJSON(t, "a")))
	require.NoError(t, h.client.Clear(h.ctx))

	assert.Empty(t, h.client.Messages())
	assert.Empty(t, h.display.Lines())
}

func TestConcurrentInboundIsSerialized(t *testing.T) {
	h := newHarness(t, Options{})
	h.connect(t)

	const n = 50
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, h.client.OnMessage(h.ctx, mustJSON(t, fmt.Sprint(i))))
		}()
	}
	wg.Wait()

	assert.Len(t, h.client.Messages(), n)
	assert.Len(t, h.display.Lines(), n)
}

func TestCloseStopsClient(t *testing.T) {
	h := newHarness(t, Options{})
	h.connect(t)

	require.NoError(t, h.client.Close())
	require.NoError(t, h.client.Close())
	assert.Equal(t, channel.Closed, h.client.State())

	select {
	case err := <-h.runErr:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("run loop did not stop")
	}

	assert.ErrorIs(t, h.client.Submit(h.ctx), ErrClientClosed)
}

type harness struct {
	ctx     context.Context
	ch      *channel.Memory
	input   *fakeInput
	display *fakeDisplay
	client  *Client
	runErr  chan error
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	t.Cleanup(cancel)

	h := &harness{
		ctx:     ctx,
		ch:      channel.NewMemory(),
		input:   &fakeInput{},
		display: &fakeDisplay{},
		runErr:  make(chan error, 1),
	}
	h.client = New(h.ch, h.input, h.display, opts)
	go func() { h.runErr <- h.client.Run(ctx) }()
	t.Cleanup(func() { _ = h.client.Close() })
	return h
}

func (h *harness) connect(t *testing.T) {
	t.Helper()
	require.NoError(t, h.client.Connect(h.ctx))
	require.Equal(t, channel.Open, h.client.State())
}

func mustJSON(t *testing.T, s string) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(s)
	require.NoError(t, err)
	return data
}

type fakeInput struct {
	mu    sync.Mutex
	value string
}

func (f *fakeInput) Set(v string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.value = v
}

func (f *fakeInput) Value() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.value
}

func (f *fakeInput) Clear() { f.Set("") }

type fakeDisplay struct {
	mu    sync.Mutex
	lines []string
}

func (f *fakeDisplay) Append(text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lines = append(f.lines, text)
}

func (f *fakeDisplay) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lines = nil
}

func (f *fakeDisplay) Lines() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.lines...)
}

// gatedChannel reports open and then holds Open until release is closed.
type gatedChannel struct {
	*channel.Memory
	opening chan struct{}
	release chan struct{}
}

func (g *gatedChannel) Open(ctx context.Context) error {
	err := g.Memory.Open(ctx)
	close(g.opening)
	<-g.release
	return err
}
