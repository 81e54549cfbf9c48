package stream

import (
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/studygloqe/relay/internal/relay"
)

func dialWS(t *testing.T, httpURL, query string) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(httpURL, "http") + "/api/events/ws" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("failed to dial websocket: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readWSMessage(t *testing.T, conn *websocket.Conn) string {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("failed to read message: %v", err)
	}
	return string(msg)
}

func TestStreamEventsWS(t *testing.T) {
	srv, registry, dispatcher := newRelayServer(t, nil)

	conn := dialWS(t, srv.URL, "?userId=alice")

	if got := readWSMessage(t, conn); got != `{"type":"connected","userId":"alice"}` {
		t.Fatalf("unexpected ack message: %s", got)
	}
	waitForCount(t, registry, 1)

	payload := `{"type":"quiz.completed","data":{"userId":"alice","score":90}}`
	ev, err := relay.ParseEvent([]byte(payload))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	dispatcher.Dispatch(ev)

	if got := readWSMessage(t, conn); got != payload {
		t.Errorf("received %s, want %s", got, payload)
	}
}

func TestStreamEventsWS_DefaultsToBroadcast(t *testing.T) {
	srv, registry, dispatcher := newRelayServer(t, nil)

	conn := dialWS(t, srv.URL, "")

	if got := readWSMessage(t, conn); got != `{"type":"connected","userId":"*"}` {
		t.Fatalf("unexpected ack message: %s", got)
	}
	waitForCount(t, registry, 1)

	// Broadcast listeners see events regardless of target.
	payload := `{"type":"quiz.completed","data":{"userId":"bob"}}`
	ev, err := relay.ParseEvent([]byte(payload))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	dispatcher.Dispatch(ev)

	if got := readWSMessage(t, conn); got != payload {
		t.Errorf("received %s, want %s", got, payload)
	}
}

func TestStreamEventsWS_DisconnectDeregisters(t *testing.T) {
	srv, registry, _ := newRelayServer(t, nil)

	conn := dialWS(t, srv.URL, "?userId=alice")
	readWSMessage(t, conn)
	waitForCount(t, registry, 1)

	conn.Close()
	waitForCount(t, registry, 0)
}
