package http

import (
	"context"
	"errors"
	"io"
	stdhttp "net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/roomcast-server/internal/auth"
	"github.com/vovakirdan/roomcast-server/internal/gateway"
	"github.com/vovakirdan/roomcast-server/internal/metrics"
	"github.com/vovakirdan/roomcast-server/internal/proto"
)

// WSHandler upgrades HTTP connections and bridges frames between the
// websocket and the gateway.
type WSHandler struct {
	hub        *Hub
	gw         *gateway.Gateway
	tokens     *auth.Tokens
	log        *zerolog.Logger
	sendBuffer int
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(hub *Hub, gw *gateway.Gateway, tokens *auth.Tokens, sendBuffer int, logger *zerolog.Logger) stdhttp.Handler {
	return &WSHandler{hub: hub, gw: gw, tokens: tokens, log: logger, sendBuffer: sendBuffer}
}

func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	ctx := r.Context()

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "internal error")

	id := uuid.NewString()

	// A guest token only decorates the connection with a display name for
	// logs; it never gates what the client may join or claim.
	if raw := r.URL.Query().Get("token"); raw != "" && h.tokens != nil {
		if claims, parseErr := h.tokens.Parse(raw); parseErr == nil {
			h.log.Debug().Str("conn_id", id).Str("name", claims.Name).Msg("guest token accepted")
		} else {
			h.log.Warn().Err(parseErr).Str("conn_id", id).Msg("invalid guest token ignored")
		}
	}

	sub := h.hub.Add(id, h.sendBuffer)
	h.gw.HandleConnect(id)
	metrics.ActiveConnections.Inc()
	defer func() {
		// Remove from the hub first so the disconnect broadcast never
		// targets the connection that is going away.
		h.hub.Remove(id)
		h.gw.HandleDisconnect(id)
		metrics.ActiveConnections.Dec()
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 2)
	go func() {
		errCh <- h.readLoop(ctx, conn, id)
	}()
	go func() {
		errCh <- h.writeLoop(ctx, conn, sub)
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
		if s := websocket.CloseStatus(err); s != 0 {
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
			h.log.Warn().Err(err).Str("conn_id", id).Msg("ws connection closed with error")
		}
	}

	conn.Close(status, reason)
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, id string) error {
	for {
		var inbound proto.Inbound
		if err := wsjson.Read(ctx, conn, &inbound); err != nil {
			return err
		}

		payload, protoErr := h.gw.Dispatch(id, inbound.Event, inbound.Data)

		reply := proto.Outbound{Type: proto.OutboundTypeAck, Event: inbound.Event, Data: payload}
		if protoErr != nil {
			reply = proto.Outbound{Type: proto.OutboundTypeError, Event: inbound.Event, Error: protoErr}
		}
		if err := wsjson.Write(ctx, conn, reply); err != nil {
			h.log.Error().Err(err).Str("conn_id", id).Msg("write ws reply")
			return err
		}
	}
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, sub *Subscriber) error {
	for {
		select {
		case frame, ok := <-sub.Frames():
			if !ok {
				return nil
			}
			if err := wsjson.Write(ctx, conn, frame); err != nil {
				h.log.Error().Err(err).Str("conn_id", sub.id).Msg("write ws event")
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
