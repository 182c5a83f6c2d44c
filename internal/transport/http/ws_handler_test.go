package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/roomcast-server/internal/auth"
	"github.com/vovakirdan/roomcast-server/internal/config"
	"github.com/vovakirdan/roomcast-server/internal/gateway"
	"github.com/vovakirdan/roomcast-server/internal/proto"
	"github.com/vovakirdan/roomcast-server/internal/registry"
)

func startTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	logger := zerolog.Nop()
	reg := registry.New()
	hub := NewHub()
	gw := gateway.New(reg, hub, &logger)
	tokens := auth.NewTokens(auth.Config{
		Secret: []byte("test-secret"),
		Issuer: "roomcast",
		TTL:    time.Hour,
	})

	server := NewServer(hub, gw, reg, tokens, config.Config{
		Addr:              ":0",
		ReadHeaderTimeout: time.Second,
		ShutdownTimeout:   time.Second,
		SendBuffer:        32,
	}, &logger)

	ts := httptest.NewServer(server.Handler)
	t.Cleanup(ts.Close)
	return ts
}

// frame mirrors proto.Outbound with raw data for per-event decoding.
type frame struct {
	Type  string          `json:"type"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
	Error *proto.Error    `json:"error"`
}

// wsClient wraps a test connection. Acks come off the read loop while
// broadcast events go through the write loop, so their relative order is
// not fixed; expect buffers whatever arrives out of turn.
type wsClient struct {
	conn    *websocket.Conn
	pending []frame
}

func dialWS(t *testing.T, ctx context.Context, ts *httptest.Server) *wsClient {
	t.Helper()

	wsURL := strings.Replace(ts.URL, "http", "ws", 1) + "/ws"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "done") })
	return &wsClient{conn: conn}
}

func (c *wsClient) send(t *testing.T, ctx context.Context, event string, payload any) {
	t.Helper()

	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal %s payload: %v", event, err)
	}
	if err := wsjson.Write(ctx, c.conn, proto.Inbound{Event: event, Data: data}); err != nil {
		t.Fatalf("send %s: %v", event, err)
	}
}

// expect returns the first frame matching the wanted type and event,
// reading more frames as needed and buffering everything else.
func (c *wsClient) expect(t *testing.T, ctx context.Context, typ, event string) frame {
	t.Helper()

	for i, f := range c.pending {
		if f.Type == typ && f.Event == event {
			c.pending = append(c.pending[:i], c.pending[i+1:]...)
			return f
		}
	}

	for {
		var f frame
		if err := wsjson.Read(ctx, c.conn, &f); err != nil {
			t.Fatalf("waiting for %s/%s: %v", typ, event, err)
		}
		if f.Type == typ && f.Event == event {
			return f
		}
		c.pending = append(c.pending, f)
	}
}

func decodeData(t *testing.T, f frame, v any) {
	t.Helper()
	if err := json.Unmarshal(f.Data, v); err != nil {
		t.Fatalf("decode %s data: %v", f.Event, err)
	}
}

func TestHealthEndpoint(t *testing.T) {
	ts := startTestServer(t)

	resp, err := ts.Client().Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
}

func TestGuestTokenEndpoint(t *testing.T) {
	ts := startTestServer(t)

	body := bytes.NewBufferString(`{"username":"alice"}`)
	resp, err := ts.Client().Post(ts.URL+"/api/auth/guest", "application/json", body)
	if err != nil {
		t.Fatalf("guest token request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}

	var out GuestTokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if out.Username != "alice" || out.Token == "" {
		t.Fatalf("unexpected response: %+v", out)
	}
}

func TestGuestTokenWithoutBody(t *testing.T) {
	ts := startTestServer(t)

	resp, err := ts.Client().Post(ts.URL+"/api/auth/guest", "application/json", nil)
	if err != nil {
		t.Fatalf("guest token request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}

	var out GuestTokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !strings.HasPrefix(out.Username, "guest-") || out.Token == "" {
		t.Fatalf("expected generated guest name, got %+v", out)
	}
}

func TestGuestTokenMalformedBody(t *testing.T) {
	ts := startTestServer(t)

	body := bytes.NewBufferString(`{"username": 42`)
	resp, err := ts.Client().Post(ts.URL+"/api/auth/guest", "application/json", body)
	if err != nil {
		t.Fatalf("guest token request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}

	var out GuestTokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !strings.HasPrefix(out.Username, "guest-") || out.Token == "" {
		t.Fatalf("expected generated guest name, got %+v", out)
	}
}

func TestJoinMessageTypingLeaveFlow(t *testing.T) {
	ts := startTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	alice := dialWS(t, ctx, ts)
	bob := dialWS(t, ctx, ts)

	// Alice joins and sees herself.
	alice.send(t, ctx, proto.EventJoinRoom, proto.JoinRoomData{Room: "lobby", Username: "alice"})

	var aliceView proto.RoomUsers
	decodeData(t, alice.expect(t, ctx, proto.OutboundTypeEvent, proto.EventRoomUsers), &aliceView)
	if len(aliceView.Users) != 1 || aliceView.Users[0] != "alice" {
		t.Fatalf("expected [alice], got %v", aliceView.Users)
	}

	var joinAck proto.JoinAck
	decodeData(t, alice.expect(t, ctx, proto.OutboundTypeAck, proto.EventJoinRoom), &joinAck)
	if !joinAck.Success || joinAck.Room != "lobby" || joinAck.Username != "alice" {
		t.Fatalf("unexpected join ack: %+v", joinAck)
	}

	// The join broadcast includes the sender, so alice also receives her own
	// userJoined frame; consume it before waiting for bob's.
	var selfJoined proto.UserJoined
	decodeData(t, alice.expect(t, ctx, proto.OutboundTypeEvent, proto.EventUserJoined), &selfJoined)
	if selfJoined.Username != "alice" || selfJoined.Room != "lobby" {
		t.Fatalf("unexpected self userJoined: %+v", selfJoined)
	}

	// Bob joins: alice is notified, bob sees both members.
	bob.send(t, ctx, proto.EventJoinRoom, proto.JoinRoomData{Room: "lobby", Username: "bob"})

	var joined proto.UserJoined
	decodeData(t, alice.expect(t, ctx, proto.OutboundTypeEvent, proto.EventUserJoined), &joined)
	if joined.Username != "bob" || joined.Room != "lobby" || joined.Timestamp.IsZero() {
		t.Fatalf("unexpected userJoined: %+v", joined)
	}

	var bobView proto.RoomUsers
	decodeData(t, bob.expect(t, ctx, proto.OutboundTypeEvent, proto.EventRoomUsers), &bobView)
	if len(bobView.Users) != 2 {
		t.Fatalf("expected both users, got %v", bobView.Users)
	}

	// Alice messages the room; bob receives it.
	alice.send(t, ctx, proto.EventSendMessage, proto.SendMessageData{Room: "lobby", Message: "hi there", Username: "alice"})

	var msg proto.Message
	decodeData(t, bob.expect(t, ctx, proto.OutboundTypeEvent, proto.EventMessage), &msg)
	if msg.Username != "alice" || msg.Message != "hi there" || msg.Room != "lobby" {
		t.Fatalf("unexpected message: %+v", msg)
	}

	// Bob starts typing; alice is notified.
	bob.send(t, ctx, proto.EventTyping, proto.TypingData{Room: "lobby", Username: "bob", IsTyping: true})

	var typing proto.UserTyping
	decodeData(t, alice.expect(t, ctx, proto.OutboundTypeEvent, proto.EventUserTyping), &typing)
	if typing.Username != "bob" || !typing.IsTyping || typing.Room != "lobby" {
		t.Fatalf("unexpected userTyping: %+v", typing)
	}

	// Alice disconnects; bob gets the leave notification.
	alice.conn.Close(websocket.StatusNormalClosure, "bye")

	var left proto.UserLeft
	decodeData(t, bob.expect(t, ctx, proto.OutboundTypeEvent, proto.EventUserLeft), &left)
	if left.Username != "alice" || left.Room != "lobby" {
		t.Fatalf("unexpected userLeft: %+v", left)
	}

	// The REST view agrees with what bob saw.
	resp, err := ts.Client().Get(ts.URL + "/api/rooms/lobby/users")
	if err != nil {
		t.Fatalf("room users request failed: %v", err)
	}
	defer resp.Body.Close()

	var roomUsers proto.RoomUsers
	if err := json.NewDecoder(resp.Body).Decode(&roomUsers); err != nil {
		t.Fatalf("decode room users: %v", err)
	}
	if len(roomUsers.Users) != 1 || roomUsers.Users[0] != "bob" {
		t.Fatalf("expected [bob], got %v", roomUsers.Users)
	}
}

func TestGetRoomUsersOverWebSocket(t *testing.T) {
	ts := startTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client := dialWS(t, ctx, ts)

	client.send(t, ctx, proto.EventJoinRoom, proto.JoinRoomData{Room: "lobby", Username: "alice"})
	client.expect(t, ctx, proto.OutboundTypeAck, proto.EventJoinRoom)

	client.send(t, ctx, proto.EventGetRoomUsers, proto.GetRoomUsersData{Room: "lobby"})

	var users proto.RoomUsers
	decodeData(t, client.expect(t, ctx, proto.OutboundTypeAck, proto.EventGetRoomUsers), &users)
	if users.Room != "lobby" || len(users.Users) != 1 || users.Users[0] != "alice" {
		t.Fatalf("unexpected reply: %+v", users)
	}
}

func TestUnknownEventGetsErrorFrame(t *testing.T) {
	ts := startTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client := dialWS(t, ctx, ts)

	client.send(t, ctx, "selfDestruct", struct{}{})

	f := client.expect(t, ctx, proto.OutboundTypeError, "selfDestruct")
	if f.Error == nil || f.Error.Code != gateway.ErrCodeUnknownEvent {
		t.Fatalf("expected unknown_event error, got %+v", f.Error)
	}
}

func TestStatsEndpoint(t *testing.T) {
	ts := startTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client := dialWS(t, ctx, ts)
	client.send(t, ctx, proto.EventJoinRoom, proto.JoinRoomData{Room: "lobby", Username: "alice"})
	client.expect(t, ctx, proto.OutboundTypeAck, proto.EventJoinRoom)

	resp, err := ts.Client().Get(ts.URL + "/api/stats")
	if err != nil {
		t.Fatalf("stats request failed: %v", err)
	}
	defer resp.Body.Close()

	var stats StatsResponse
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if stats.Connections != 1 {
		t.Fatalf("expected 1 connection, got %d", stats.Connections)
	}
}
