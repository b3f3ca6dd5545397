package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/chatrelay/internal/chat"
	"github.com/vovakirdan/chatrelay/internal/config"
	"github.com/vovakirdan/chatrelay/internal/proto"
	"github.com/vovakirdan/chatrelay/internal/transport/ws"
)

// staticInput is a form whose value is fixed until cleared.
type staticInput struct {
	value string
}

func (s *staticInput) Value() string { return s.value }
func (s *staticInput) Clear()        { s.value = "" }

// Smoke sends text once and waits until the relay delivers a chat message
// back, which it returns. It needs a relay that echoes to the sender or a
// second participant talking.
func Smoke(ctx context.Context, cfg *config.Config, logger *zerolog.Logger, text string, timeout time.Duration) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	received := make(chan string, 1)
	ch := ws.New(cfg.ServerURL, ws.Options{
		DialTimeout: cfg.DialTimeout,
		ReadLimit:   proto.FrameLimit(cfg.MaxMessageBytes),
		Logger:      logger,
	})
	client := chat.New(ch, &staticInput{value: text}, displayFunc(func(got string) {
		select {
		case received <- got:
		default:
		}
	}), chat.Options{Logger: logger})

	loopErr := make(chan error, 1)
	go func() { loopErr <- client.Run(ctx) }()
	defer func() {
		_ = client.Close()
		<-loopErr
	}()

	if err := client.Connect(ctx); err != nil {
		return "", err
	}
	if err := client.Submit(ctx); err != nil {
		return "", fmt.Errorf("submit: %w", err)
	}

	select {
	case got := <-received:
		return got, nil
	case <-ch.Done():
		return "", errors.New("relay closed the connection before replying")
	case <-ctx.Done():
		return "", fmt.Errorf("waiting for reply: %w", ctx.Err())
	}
}

type displayFunc func(string)

func (f displayFunc) Append(text string) { f(text) }
