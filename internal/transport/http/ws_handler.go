package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	stdhttp "net/http"

	"github.com/coder/websocket"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/chatrelay/internal/config"
	"github.com/vovakirdan/chatrelay/internal/proto"
	"github.com/vovakirdan/chatrelay/internal/relay"
)

// WSHandler upgrades HTTP connections and bridges them to relay peers.
type WSHandler struct {
	hub       *relay.Hub
	maxText   int64
	rateLimit float64
	rateBurst int
	log       *zerolog.Logger
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(hub *relay.Hub, cfg *config.Config, logger *zerolog.Logger) stdhttp.Handler {
	return &WSHandler{
		hub:       hub,
		maxText:   cfg.MaxMessageBytes,
		rateLimit: cfg.RateLimit,
		rateBurst: cfg.RateBurst,
		log:       logger,
	}
}

func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	ctx := r.Context()

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols:       []string{proto.Subprotocol},
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "internal error")

	if h.maxText > 0 {
		conn.SetReadLimit(proto.FrameLimit(h.maxText))
	}

	peer := relay.NewPeer(0)
	if !h.hub.RegisterClient(peer) {
		conn.Close(websocket.StatusGoingAway, "relay shutting down")
		return
	}
	defer h.hub.UnregisterClient(peer)

	logger := h.log.With().Str("peer_id", peer.ID).Logger()
	logger.Info().Str("remote_addr", r.RemoteAddr).Str("subprotocol", conn.Subprotocol()).Msg("peer connected")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 2)
	go func() {
		errCh <- h.readLoop(ctx, conn, peer, &logger)
	}()
	go func() {
		errCh <- h.writeLoop(ctx, conn, peer, &logger)
	}()

	err = <-errCh
	cancel() // stop the other goroutine
	<-errCh

	status := websocket.StatusNormalClosure
	reason := "closing"
	if err != nil && !errors.Is(err, context.Canceled) {
		if errors.Is(err, io.EOF) {
			err = nil
		}
		if s := websocket.CloseStatus(err); s != -1 {
			status = s
		}
		if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
			err = nil
		}
		if err != nil {
			if status == websocket.StatusNormalClosure {
				status = websocket.StatusInternalError
			}
			reason = err.Error()
			logger.Warn().Err(err).Msg("ws connection closed with error")
		}
	}

	logger.Info().Msg("peer disconnected")
	conn.Close(status, reason)
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, peer *relay.Peer, logger *zerolog.Logger) error {
	limiter := newRateLimiter(h.rateLimit, h.rateBurst)

	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}

		if !limiter.Allow() {
			if err := writeError(ctx, conn, proto.ErrCodeRateLimited, "too many messages"); err != nil {
				return err
			}
			continue
		}

		if typ != websocket.MessageText {
			if err := writeError(ctx, conn, proto.ErrCodeBadRequest, "frames must be text"); err != nil {
				return err
			}
			continue
		}

		var frame proto.Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			logger.Debug().Err(err).Msg("malformed frame")
			if err := writeError(ctx, conn, proto.ErrCodeBadRequest, "malformed frame"); err != nil {
				return err
			}
			continue
		}

		text, relayErr := relay.ParseInbound(frame, h.maxText)
		if relayErr != nil {
			logger.Debug().Str("code", relayErr.Code).Msg("rejected frame")
			if err := writeError(ctx, conn, relayErr.Code, relayErr.Message); err != nil {
				return err
			}
			continue
		}

		if !h.hub.Publish(ctx, peer, text) {
			return ctx.Err()
		}
	}
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, peer *relay.Peer, logger *zerolog.Logger) error {
	for {
		select {
		case event, ok := <-peer.Events:
			if !ok {
				return nil
			}
			frame, err := proto.NewFrame(proto.EventChatMessage, event.Text)
			if err != nil {
				return err
			}
			if err := writeFrame(ctx, conn, frame); err != nil {
				logger.Error().Err(err).Msg("write ws event")
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func writeError(ctx context.Context, conn *websocket.Conn, code, msg string) error {
	return writeFrame(ctx, conn, proto.ErrorFrame(code, msg))
}

func writeFrame(ctx context.Context, conn *websocket.Conn, frame proto.Frame) error {
	data, err := proto.Encode(frame)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, data)
}
