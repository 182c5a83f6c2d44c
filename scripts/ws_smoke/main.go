// Command ws_smoke joins a room on a running roomcast server, sends one
// message and prints every frame it receives until the timeout expires.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/vovakirdan/roomcast-server/internal/proto"
)

func main() {
	if err := run(); err != nil {
		log.Printf("ws_smoke: %v", err)
		os.Exit(1)
	}
}

func run() error {
	addr := flag.String("addr", "ws://localhost:8080/ws", "WebSocket address")
	user := flag.String("user", "tester", "username to join with")
	room := flag.String("room", "general", "room name")
	text := flag.String("text", "hello from smoke test", "message text to send")
	timeout := flag.Duration("timeout", 5*time.Second, "total timeout for the run")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, *addr, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	send := func(event string, payload any) error {
		data, marshalErr := json.Marshal(payload)
		if marshalErr != nil {
			return fmt.Errorf("marshal %s: %w", event, marshalErr)
		}
		if writeErr := wsjson.Write(ctx, conn, proto.Inbound{Event: event, Data: data}); writeErr != nil {
			return fmt.Errorf("send %s: %w", event, writeErr)
		}
		return nil
	}

	if err := send(proto.EventJoinRoom, proto.JoinRoomData{Room: *room, Username: *user}); err != nil {
		return err
	}
	if err := send(proto.EventSendMessage, proto.SendMessageData{Room: *room, Message: *text, Username: *user}); err != nil {
		return err
	}
	if err := send(proto.EventGetRoomUsers, proto.GetRoomUsersData{Room: *room}); err != nil {
		return err
	}

	for {
		var frame json.RawMessage
		if readErr := wsjson.Read(ctx, conn, &frame); readErr != nil {
			if errors.Is(readErr, context.DeadlineExceeded) {
				return nil
			}
			return fmt.Errorf("read: %w", readErr)
		}
		fmt.Printf("recv: %s\n", frame)
	}
}
