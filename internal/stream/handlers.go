package stream

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/studygloqe/relay/internal/httputil"
	"github.com/studygloqe/relay/internal/relay"
)

// EventPublisher publishes an event to the broker on behalf of the publish
// endpoint. Satisfied by broker.Producer.
type EventPublisher interface {
	Publish(ctx context.Context, eventType string, data map[string]any) error
}

// Handlers serves the client-facing event endpoints: the SSE and WebSocket
// streams, stats, health and publish.
type Handlers struct {
	registry  *relay.Registry
	publisher EventPublisher // nil when no broker is configured
}

// NewHandlers creates the stream handlers. publisher may be nil; the
// publish endpoint then responds 503.
func NewHandlers(registry *relay.Registry, publisher EventPublisher) *Handlers {
	return &Handlers{registry: registry, publisher: publisher}
}

// RegisterRoutes wires the event endpoints.
func (h *Handlers) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/api/events/stream", h.StreamEvents).Methods(http.MethodGet)
	r.HandleFunc("/api/events/ws", h.StreamEventsWS).Methods(http.MethodGet)
	r.HandleFunc("/api/events/stats", h.GetStats).Methods(http.MethodGet)
	r.HandleFunc("/api/events/health", h.HealthCheck).Methods(http.MethodGet)
	r.HandleFunc("/api/events/publish", h.PublishEvent).Methods(http.MethodPost)
}

// recipientKey resolves the recipient key for a stream request. Absent or
// "*" means broadcast only.
func recipientKey(r *http.Request) string {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		return relay.BroadcastKey
	}
	return userID
}

// GetStats reports the number of currently connected clients.
func (h *Handlers) GetStats(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"stats": map[string]any{
			"connectedClients": h.registry.Count(),
			"timestamp":        time.Now().UTC().Format(time.RFC3339),
		},
	})
}

// HealthCheck always reports healthy. Broker connectivity is deliberately
// not reflected here: a relay with a temporarily unreachable broker must
// not be evicted by its load balancer, since its streams stay usable.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"status":    "healthy",
		"service":   "event-relay",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

type publishRequest struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data"`
}

// PublishEvent accepts an event from an in-process producer and writes it
// to the broker topic.
func (h *Handlers) PublishEvent(w http.ResponseWriter, r *http.Request) {
	if h.publisher == nil {
		httputil.WriteError(w, http.StatusServiceUnavailable, "event producer is not configured")
		return
	}

	var req publishRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Type == "" {
		httputil.WriteError(w, http.StatusBadRequest, "event type is required")
		return
	}

	if err := h.publisher.Publish(r.Context(), req.Type, req.Data); err != nil {
		httputil.WriteError(w, http.StatusBadGateway, "failed to publish event")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]any{"success": true, "type": req.Type})
}
