package http

import (
	"context"
	"errors"
	"io"
	stdhttp "net/http"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/coder/websocket"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-gateway/internal/config"
	"github.com/vovakirdan/wirechat-gateway/internal/core"
	"github.com/vovakirdan/wirechat-gateway/internal/proto"
)

const (
	inboundBuffer       = 16
	sessionCloseTimeout = 5 * time.Second
)

// WSHandler upgrades HTTP connections and bridges them to a gateway session.
// Every text frame carries one legacy protocol line in each direction.
type WSHandler struct {
	registry *core.Registry
	cfg      config.Gateway
	clock    clock.Clock
	log      *zerolog.Logger
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(registry *core.Registry, cfg config.Gateway, logger *zerolog.Logger) *WSHandler {
	return &WSHandler{registry: registry, cfg: cfg, clock: clock.New(), log: logger}
}

func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "internal error")
	if h.cfg.MaxMessageBytes > 0 {
		conn.SetReadLimit(h.cfg.MaxMessageBytes)
	}

	inbound := make(chan proto.Command, inboundBuffer)
	outbound := make(chan proto.ServerMessage, h.cfg.OutboundBuffer)
	session, err := h.registry.CreateSession(r.Context(), core.Conn{
		Inbound:    inbound,
		Outbound:   outbound,
		RemoteAddr: r.RemoteAddr,
	})
	if err != nil {
		h.log.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("session rejected")
		conn.Close(websocket.StatusTryAgainLater, "gateway unavailable")
		return
	}
	logger := h.log.With().Str("session_id", session.ID()).Logger()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	errCh := make(chan error, 2)
	go func() {
		errCh <- h.readLoop(ctx, conn, inbound, &logger)
	}()
	go func() {
		errCh <- h.writeLoop(ctx, conn, outbound, &logger)
	}()

	err = <-errCh
	status, reason := closeStatus(err)
	if status != websocket.StatusNormalClosure {
		logger.Warn().Err(err).Msg("ws connection closed with error")
	}
	// Closing first lets the read loop see the close handshake.
	conn.Close(status, reason)
	cancel() // stop the other goroutine
	<-errCh

	h.closeSession(session, outbound, &logger)
}

// closeStatus picks the close frame for the error that ended a connection.
// A normal or going-away close from the client is not an error.
func closeStatus(err error) (websocket.StatusCode, string) {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
		return websocket.StatusNormalClosure, "closing"
	}
	switch s := websocket.CloseStatus(err); s {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		return websocket.StatusNormalClosure, "closing"
	case -1:
		return websocket.StatusInternalError, truncateReason(err.Error())
	default:
		return s, truncateReason(err.Error())
	}
}

// truncateReason keeps a close reason inside the 123 bytes a close frame allows.
func truncateReason(reason string) string {
	const maxReason = 120
	if len(reason) <= maxReason {
		return reason
	}
	return reason[:maxReason]
}

// closeSession ends the session behind a finished connection. Whatever the
// session still queues is discarded so that it never blocks on a dead client.
func (h *WSHandler) closeSession(session *core.Session, outbound <-chan proto.ServerMessage, logger *zerolog.Logger) {
	go func() {
		for range outbound {
		}
	}()
	ctx, cancel := context.WithTimeout(context.Background(), sessionCloseTimeout)
	defer cancel()
	if err := session.Close(ctx); err != nil {
		logger.Warn().Err(err).Msg("session did not close in time")
	}
}

// readLoop parses client lines into commands. It owns inbound and closes it
// on return, which tells the session the client is gone.
func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, inbound chan<- proto.Command, logger *zerolog.Logger) error {
	defer close(inbound)
	limiter := newRateLimiter(h.cfg.CommandRateLimit, h.clock)

	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == -1 && ctx.Err() == nil {
				logger.Warn().Err(err).Msg("read ws frame")
			}
			return err
		}
		if typ != websocket.MessageText {
			if err := h.write(ctx, conn, proto.Error{Number: proto.ErrSyntax, Message: "binary frames are not supported"}); err != nil {
				return err
			}
			continue
		}

		cmd, err := proto.ParseCommand(string(data))
		if err != nil {
			logger.Debug().Err(err).Msg("malformed client line")
			if err := h.write(ctx, conn, proto.Error{Number: proto.ErrSyntax, Message: err.Error()}); err != nil {
				return err
			}
			continue
		}
		if !limiter.allow() {
			logger.Debug().Str("code", cmd.Code).Msg("command rate limited")
			if err := h.write(ctx, conn, proto.System{Message: "You are sending commands too fast; " + cmd.Code + " was dropped."}); err != nil {
				return err
			}
			continue
		}

		select {
		case inbound <- cmd:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// writeLoop forwards session output until the session closes its queue.
func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, outbound <-chan proto.ServerMessage, logger *zerolog.Logger) error {
	for {
		select {
		case msg, ok := <-outbound:
			if !ok {
				return nil
			}
			if err := h.write(ctx, conn, msg); err != nil {
				logger.Error().Err(err).Str("code", msg.Code()).Msg("write ws frame")
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// write encodes one message as a text frame. Writes on a websocket.Conn are
// safe from both loops.
func (h *WSHandler) write(ctx context.Context, conn *websocket.Conn, msg proto.ServerMessage) error {
	line, err := proto.Encode(msg)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, []byte(line))
}
