package http

import (
	"sync"

	"github.com/vovakirdan/roomcast-server/internal/metrics"
	"github.com/vovakirdan/roomcast-server/internal/proto"
)

const defaultSendBuffer = 32

// Subscriber is one connection's outbound queue. The write loop of the
// owning connection drains Frames until the hub closes it.
type Subscriber struct {
	id  string
	out chan proto.Outbound
}

// Frames returns the outbound frame stream for this connection.
func (s *Subscriber) Frames() <-chan proto.Outbound {
	return s.out
}

// Hub is the transport-level fanout: it multiplexes outbound frames to
// connections and keeps its own room subscriptions, mirroring the gateway's
// registry the way a socket server mirrors channel membership. Delivery is
// best-effort; a frame to a full send buffer is dropped rather than letting
// one slow client stall a broadcast.
type Hub struct {
	mu    sync.RWMutex
	conns map[string]*Subscriber
	rooms map[string]map[string]*Subscriber
}

// NewHub returns an empty hub.
func NewHub() *Hub {
	return &Hub{
		conns: make(map[string]*Subscriber),
		rooms: make(map[string]map[string]*Subscriber),
	}
}

// Add registers a connection and returns its subscriber.
func (h *Hub) Add(conn string, buffer int) *Subscriber {
	if buffer <= 0 {
		buffer = defaultSendBuffer
	}
	sub := &Subscriber{id: conn, out: make(chan proto.Outbound, buffer)}

	h.mu.Lock()
	h.conns[conn] = sub
	h.mu.Unlock()
	return sub
}

// Remove drops the connection from every room and closes its frame stream.
// Safe against in-flight broadcasts: sends hold the read lock, so by the
// time the write lock is acquired no send can still target the subscriber.
func (h *Hub) Remove(conn string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	sub, ok := h.conns[conn]
	if !ok {
		return
	}
	delete(h.conns, conn)
	for room, members := range h.rooms {
		delete(members, conn)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	close(sub.out)
}

// Join subscribes the connection to a room.
func (h *Hub) Join(conn, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	sub, ok := h.conns[conn]
	if !ok {
		return
	}
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[string]*Subscriber)
		h.rooms[room] = members
	}
	members[conn] = sub
}

// Leave unsubscribes the connection from a room.
func (h *Hub) Leave(conn, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	members, ok := h.rooms[room]
	if !ok {
		return
	}
	delete(members, conn)
	if len(members) == 0 {
		delete(h.rooms, room)
	}
}

// SendToConnection delivers one event frame to a single connection.
func (h *Hub) SendToConnection(conn, event string, payload any) {
	frame := proto.Outbound{Type: proto.OutboundTypeEvent, Event: event, Data: payload}

	h.mu.RLock()
	defer h.mu.RUnlock()
	if sub, ok := h.conns[conn]; ok {
		push(sub, frame)
	}
}

// SendToRoom delivers one event frame to every subscriber of room, skipping
// exclude when non-empty. The member set is snapshotted under the read lock;
// concurrent joins and leaves are not blocked out.
func (h *Hub) SendToRoom(room, event string, payload any, exclude string) {
	frame := proto.Outbound{Type: proto.OutboundTypeEvent, Event: event, Data: payload}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for id, sub := range h.rooms[room] {
		if id == exclude {
			continue
		}
		push(sub, frame)
	}
}

func push(sub *Subscriber, frame proto.Outbound) {
	select {
	case sub.out <- frame:
	default:
		// Drop if slow consumer.
		metrics.DroppedFrames.Inc()
	}
}
