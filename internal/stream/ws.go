package stream

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/studygloqe/relay/internal/relay"
)

const (
	// writeWait is the maximum time allowed to write a message to the peer.
	writeWait = 10 * time.Second
	// pongWait is the maximum time to wait for a pong reply from the peer.
	pongWait = 60 * time.Second
	// pingPeriod must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
	// maxMessageSize is the maximum inbound message size in bytes. Clients
	// are not expected to send anything; the read pump exists to detect
	// closure.
	maxMessageSize = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     CheckOrigin,
}

// StreamEventsWS serves the same event stream over a WebSocket connection
// for clients that cannot hold an SSE response open. The connection shares
// the registry and frame format with the SSE endpoint.
func (h *Handlers) StreamEventsWS(w http.ResponseWriter, r *http.Request) {
	key := recipientKey(r)
	handle := relay.NewHandle(key)
	if err := h.registry.Register(handle); err != nil {
		http.Error(w, "server is shutting down", http.StatusServiceUnavailable)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// upgrader already wrote the error response.
		h.teardown(handle)
		return
	}

	log.Printf("stream: ws client %s connected (key=%s, total=%d)", handle.ID, key, h.registry.Count())

	go h.writePump(conn, handle)
	go h.readPump(conn, handle)
}

// writePump owns all writes to the WebSocket connection: the initial
// acknowledgement, forwarded event frames and keepalive pings.
func (h *Handlers) writePump(conn *websocket.Conn, handle *relay.Handle) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
		h.teardown(handle)
	}()

	ack, _ := json.Marshal(map[string]string{"type": "connected", "userId": handle.Key})
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteMessage(websocket.TextMessage, ack); err != nil {
		return
	}

	for {
		select {
		case frame := <-handle.Frames():
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-handle.Done():
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case <-h.registry.Done():
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}

// readPump discards inbound messages and unblocks on close or error, which
// is how a client-initiated disconnect is detected.
func (h *Handlers) readPump(conn *websocket.Conn, handle *relay.Handle) {
	defer func() {
		conn.Close()
		h.teardown(handle)
	}()

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Printf("stream: ws client %s read error: %v", handle.ID, err)
			}
			return
		}
	}
}
