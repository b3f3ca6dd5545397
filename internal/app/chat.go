package app

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/chatrelay/internal/chat"
	"github.com/vovakirdan/chatrelay/internal/config"
	"github.com/vovakirdan/chatrelay/internal/proto"
	"github.com/vovakirdan/chatrelay/internal/transport/ws"
	"github.com/vovakirdan/chatrelay/internal/ui/term"
)

// Chat is one terminal chat session: a websocket channel, the chat client
// and its terminal bindings.
type Chat struct {
	ch     *ws.Channel
	client *chat.Client
	form   *term.Form
	out    io.Writer
	styler term.Styler
	log    *zerolog.Logger
}

// NewChat builds an idle session reading the form from in and writing the
// message list to out.
func NewChat(cfg *config.Config, logger *zerolog.Logger, in io.Reader, out io.Writer) *Chat {
	styler := term.NewStyler(!cfg.NoColor)
	input := &term.LineInput{}

	ch := ws.New(cfg.ServerURL, ws.Options{
		DialTimeout: cfg.DialTimeout,
		ReadLimit:   proto.FrameLimit(cfg.MaxMessageBytes),
		Logger:      logger,
	})
	client := chat.New(ch, input, term.NewListView(out, styler), chat.OptionsFromConfig(*cfg, logger))

	return &Chat{
		ch:     ch,
		client: client,
		form:   term.NewForm(in, input),
		out:    out,
		styler: styler,
		log:    logger,
	}
}

// Run draws the placeholder, connects and relays until the input ends, the
// relay goes away or ctx is cancelled.
func (a *Chat) Run(ctx context.Context) error {
	if err := term.RenderPlaceholder(a.out, a.styler); err != nil {
		return fmt.Errorf("render placeholder: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	loopErr := make(chan error, 1)
	go func() { loopErr <- a.client.Run(ctx) }()
	defer func() {
		if err := a.client.Close(); err != nil {
			a.log.Warn().Err(err).Msg("close chat client")
		}
		<-loopErr
	}()

	if err := a.client.Connect(ctx); err != nil {
		return err
	}

	go func() {
		select {
		case <-a.ch.Done():
			a.log.Info().Msg("relay closed the connection")
			cancel()
		case <-ctx.Done():
		}
	}()

	err := a.form.Run(ctx, a.client.Submit)
	if err == nil || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Client exposes the underlying chat client.
func (a *Chat) Client() *chat.Client {
	return a.client
}
