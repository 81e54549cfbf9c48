package stream

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/studygloqe/relay/internal/httputil"
	"github.com/studygloqe/relay/internal/relay"
)

// keepaliveInterval is how often an inert comment line is written to an
// idle stream so proxies and client timeouts do not treat it as dead.
const keepaliveInterval = 30 * time.Second

// StreamEvents serves one long-lived SSE connection: it registers a handle
// for the requested recipient key, acknowledges with a "connected" frame,
// then forwards dispatched events and periodic keepalives until the client
// disconnects, a write fails, or the relay shuts down.
func (h *Handlers) StreamEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		httputil.WriteError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	key := recipientKey(r)
	handle := relay.NewHandle(key)
	if err := h.registry.Register(handle); err != nil {
		httputil.WriteError(w, http.StatusServiceUnavailable, "server is shutting down")
		return
	}
	defer h.teardown(handle)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	ack, _ := json.Marshal(map[string]string{"type": "connected", "userId": key})
	if _, err := fmt.Fprintf(w, "data: %s\n\n", ack); err != nil {
		return
	}
	flusher.Flush()

	log.Printf("stream: sse client %s connected (key=%s, total=%d)", handle.ID, key, h.registry.Count())

	ticker := time.NewTicker(keepaliveInterval)
	defer ticker.Stop()

	ctx := r.Context()
	for {
		select {
		case frame := <-handle.Frames():
			if _, err := fmt.Fprintf(w, "data: %s\n\n", frame); err != nil {
				return
			}
			flusher.Flush()

		case <-ticker.C:
			// Keepalive write failure is treated the same as a client close.
			if _, err := io.WriteString(w, ": heartbeat\n\n"); err != nil {
				return
			}
			flusher.Flush()

		case <-ctx.Done():
			return

		case <-handle.Done():
			return

		case <-h.registry.Done():
			return
		}
	}
}

// teardown deregisters and closes a stream's handle. Idempotent: the
// client-close path and a failed keepalive may both reach it.
func (h *Handlers) teardown(handle *relay.Handle) {
	h.registry.Deregister(handle)
	handle.Close()
	log.Printf("stream: client %s disconnected (key=%s, total=%d)", handle.ID, handle.Key, h.registry.Count())
}
