package proto

import (
	"encoding/json"
	"time"
)

// Inbound is the envelope for events coming from the client.
type Inbound struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Inbound event names the gateway dispatches on.
const (
	EventJoinRoom     = "joinRoom"
	EventLeaveRoom    = "leaveRoom"
	EventSendMessage  = "sendMessage"
	EventTyping       = "typing"
	EventGetRoomUsers = "getRoomUsers"
)

// Outbound event names.
const (
	EventUserJoined = "userJoined"
	EventUserLeft   = "userLeft"
	EventMessage    = "message"
	EventUserTyping = "userTyping"
	EventRoomUsers  = "roomUsers"
)

// Outbound envelope types.
const (
	OutboundTypeEvent = "event"
	OutboundTypeAck   = "ack"
	OutboundTypeError = "error"
)

// Outbound is the envelope for frames sent to the client. Acks echo the
// inbound event name so the client can correlate replies.
type Outbound struct {
	Type  string `json:"type"`
	Event string `json:"event,omitempty"`
	Data  any    `json:"data,omitempty"`
	Error *Error `json:"error,omitempty"`
}

// JoinRoomData requests membership in a room under a claimed username.
type JoinRoomData struct {
	Room     string `json:"room"`
	Username string `json:"username"`
}

// LeaveRoomData requests leaving a room.
type LeaveRoomData struct {
	Room string `json:"room"`
}

// SendMessageData is a chat message addressed to a room.
type SendMessageData struct {
	Room     string `json:"room"`
	Message  string `json:"message"`
	Username string `json:"username"`
}

// TypingData signals a typing-indicator change.
type TypingData struct {
	Room     string `json:"room"`
	Username string `json:"username"`
	IsTyping bool   `json:"isTyping"`
}

// GetRoomUsersData asks who is currently in a room.
type GetRoomUsersData struct {
	Room string `json:"room"`
}

// UserJoined notifies room members that a user joined.
type UserJoined struct {
	Username  string    `json:"username"`
	Room      string    `json:"room"`
	Timestamp time.Time `json:"timestamp"`
}

// UserLeft notifies room members that a user left.
type UserLeft struct {
	Username  string    `json:"username"`
	Room      string    `json:"room"`
	Timestamp time.Time `json:"timestamp"`
}

// Message carries a chat message to room members, including the sender.
type Message struct {
	Username  string    `json:"username"`
	Message   string    `json:"message"`
	Room      string    `json:"room"`
	Timestamp time.Time `json:"timestamp"`
}

// UserTyping carries a typing indicator to room members other than the sender.
type UserTyping struct {
	Username string `json:"username"`
	IsTyping bool   `json:"isTyping"`
	Room     string `json:"room"`
}

// RoomUsers is the current member list of a room, sent to one connection.
type RoomUsers struct {
	Room  string   `json:"room"`
	Users []string `json:"users"`
}

// JoinAck acknowledges a joinRoom event.
type JoinAck struct {
	Success  bool   `json:"success"`
	Room     string `json:"room"`
	Username string `json:"username"`
}

// LeaveAck acknowledges a leaveRoom event.
type LeaveAck struct {
	Success bool   `json:"success"`
	Room    string `json:"room"`
}

// Ack acknowledges events that echo nothing back.
type Ack struct {
	Success bool `json:"success"`
}

// Error describes a protocol-level error response.
type Error struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}
