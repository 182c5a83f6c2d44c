// Package gateway coordinates inbound client events: it owns the presence
// registry, decides the fanout set for every notification, and delegates
// delivery to the transport layer.
package gateway

import (
	"encoding/json"
	"time"

	"github.com/rs/zerolog"
	"github.com/vovakirdan/roomcast-server/internal/metrics"
	"github.com/vovakirdan/roomcast-server/internal/proto"
	"github.com/vovakirdan/roomcast-server/internal/registry"
)

// Error codes for protocol-level replies.
const (
	ErrCodeUnknownEvent = "unknown_event"
	ErrCodeBadPayload   = "bad_payload"
)

// Transport is what the gateway needs from the connection layer: room
// subscription bookkeeping plus unicast and broadcast delivery. Broadcast
// snapshots the member set at send time; it does not block out concurrent
// joins and leaves.
type Transport interface {
	Join(conn, room string)
	Leave(conn, room string)
	SendToConnection(conn, event string, payload any)
	SendToRoom(room, event string, payload any, exclude string)
}

// Handler decodes one event's payload and returns the ack payload, or a
// protocol error for payloads that do not decode.
type Handler func(conn string, data json.RawMessage) (any, *proto.Error)

// Gateway dispatches client events through a table built once at
// construction. All registry mutations happen inside the handlers, so an
// event's ack and its side effects are consistent with each other.
type Gateway struct {
	reg      *registry.Registry
	tr       Transport
	log      *zerolog.Logger
	handlers map[string]Handler
	now      func() time.Time
}

// New builds a gateway around the given registry and transport.
func New(reg *registry.Registry, tr Transport, logger *zerolog.Logger) *Gateway {
	g := &Gateway{
		reg: reg,
		tr:  tr,
		log: logger,
		now: time.Now,
	}
	g.handlers = map[string]Handler{
		proto.EventJoinRoom:     g.handleJoinRoom,
		proto.EventLeaveRoom:    g.handleLeaveRoom,
		proto.EventSendMessage:  g.handleSendMessage,
		proto.EventTyping:       g.handleTyping,
		proto.EventGetRoomUsers: g.handleGetRoomUsers,
	}
	return g
}

// HandleConnect is called once when a connection is established.
func (g *Gateway) HandleConnect(conn string) {
	g.log.Info().Str("conn_id", conn).Msg("client connected")
}

// HandleDisconnect removes the connection's membership and notifies every
// room it was in. Must be called exactly once per physical disconnect,
// after the transport stopped delivering to the connection.
func (g *Gateway) HandleDisconnect(conn string) {
	snaps := g.reg.RemoveUser(conn)
	for _, s := range snaps {
		g.tr.SendToRoom(s.Room, proto.EventUserLeft, proto.UserLeft{
			Username:  s.Username,
			Room:      s.Room,
			Timestamp: s.Timestamp,
		}, "")
	}
	g.log.Info().Str("conn_id", conn).Int("rooms", len(snaps)).Msg("client disconnected")
}

// Dispatch routes one inbound event to its handler and returns the ack
// payload for the synchronous reply.
func (g *Gateway) Dispatch(conn, event string, data json.RawMessage) (any, *proto.Error) {
	h, ok := g.handlers[event]
	if !ok {
		return nil, &proto.Error{Code: ErrCodeUnknownEvent, Msg: "unknown event: " + event}
	}
	metrics.EventsHandled.WithLabelValues(event).Inc()
	return h(conn, data)
}

func (g *Gateway) handleJoinRoom(conn string, data json.RawMessage) (any, *proto.Error) {
	var d proto.JoinRoomData
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, badPayload(err)
	}

	g.tr.Join(conn, d.Room)
	g.reg.AddUser(conn, d.Username, d.Room)

	g.tr.SendToRoom(d.Room, proto.EventUserJoined, proto.UserJoined{
		Username:  d.Username,
		Room:      d.Room,
		Timestamp: g.now(),
	}, "")

	// Member list is computed after the join so the reply includes the
	// joining user.
	g.tr.SendToConnection(conn, proto.EventRoomUsers, proto.RoomUsers{
		Room:  d.Room,
		Users: g.reg.UsersInRoom(d.Room),
	})

	g.log.Info().Str("conn_id", conn).Str("user", d.Username).Str("room", d.Room).Msg("joined room")
	return proto.JoinAck{Success: true, Room: d.Room, Username: d.Username}, nil
}

func (g *Gateway) handleLeaveRoom(conn string, data json.RawMessage) (any, *proto.Error) {
	var d proto.LeaveRoomData
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, badPayload(err)
	}

	// Leave is best-effort: a room the connection never joined still gets
	// a notification, only a connection with no membership stays silent.
	if snap, ok := g.reg.RemoveUserFromRoom(conn, d.Room); ok {
		g.tr.Leave(conn, d.Room)
		g.tr.SendToRoom(d.Room, proto.EventUserLeft, proto.UserLeft{
			Username:  snap.Username,
			Room:      snap.Room,
			Timestamp: snap.Timestamp,
		}, "")
		g.log.Info().Str("conn_id", conn).Str("user", snap.Username).Str("room", d.Room).Msg("left room")
	}

	return proto.LeaveAck{Success: true, Room: d.Room}, nil
}

func (g *Gateway) handleSendMessage(conn string, data json.RawMessage) (any, *proto.Error) {
	var d proto.SendMessageData
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, badPayload(err)
	}

	g.tr.SendToRoom(d.Room, proto.EventMessage, proto.Message{
		Username:  d.Username,
		Message:   d.Message,
		Room:      d.Room,
		Timestamp: g.now(),
	}, "")

	g.log.Debug().Str("conn_id", conn).Str("user", d.Username).Str("room", d.Room).Msg("message relayed")
	return proto.Ack{Success: true}, nil
}

func (g *Gateway) handleTyping(conn string, data json.RawMessage) (any, *proto.Error) {
	var d proto.TypingData
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, badPayload(err)
	}

	g.tr.SendToRoom(d.Room, proto.EventUserTyping, proto.UserTyping{
		Username: d.Username,
		IsTyping: d.IsTyping,
		Room:     d.Room,
	}, conn)

	return proto.Ack{Success: true}, nil
}

func (g *Gateway) handleGetRoomUsers(conn string, data json.RawMessage) (any, *proto.Error) {
	var d proto.GetRoomUsersData
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, badPayload(err)
	}

	return proto.RoomUsers{Room: d.Room, Users: g.reg.UsersInRoom(d.Room)}, nil
}

func badPayload(err error) *proto.Error {
	return &proto.Error{Code: ErrCodeBadPayload, Msg: err.Error()}
}
