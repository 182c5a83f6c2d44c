package gateway

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/roomcast-server/internal/registry"
)

// fakeTransport records every delivery the gateway asks for.
type fakeTransport struct {
	mu     sync.Mutex
	joins  []string
	leaves []string
	frames []sentFrame
}

type sentFrame struct {
	conn    string // set for unicast
	room    string // set for broadcast
	event   string
	payload any
	exclude string
}

func (f *fakeTransport) Join(conn, room string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.joins = append(f.joins, conn+"/"+room)
}

func (f *fakeTransport) Leave(conn, room string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.leaves = append(f.leaves, conn+"/"+room)
}

func (f *fakeTransport) SendToConnection(conn, event string, payload any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = append(f.frames, sentFrame{conn: conn, event: event, payload: payload})
}

func (f *fakeTransport) SendToRoom(room, event string, payload any, exclude string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = append(f.frames, sentFrame{room: room, event: event, payload: payload, exclude: exclude})
}

func (f *fakeTransport) framesFor(event string) []sentFrame {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []sentFrame
	for _, fr := range f.frames {
		if fr.event == event {
			out = append(out, fr)
		}
	}
	return out
}

func newTestGateway() (*Gateway, *registry.Registry, *fakeTransport) {
	logger := zerolog.Nop()
	reg := registry.New()
	tr := &fakeTransport{}
	return New(reg, tr, &logger), reg, tr
}

func rawJSON(t *testing.T, v any) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return data
}

func sameUsers(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[string]int, len(a))
	for _, u := range a {
		seen[u]++
	}
	for _, u := range b {
		seen[u]--
		if seen[u] < 0 {
			return false
		}
	}
	return true
}
