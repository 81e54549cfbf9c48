package token

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/studygloqe/relay/internal/httputil"
)

// Handlers serves the room-credential endpoint.
type Handlers struct {
	issuer Issuer
}

func NewHandlers(issuer Issuer) *Handlers {
	return &Handlers{issuer: issuer}
}

// RegisterRoutes wires the token endpoint.
func (h *Handlers) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/api/token/room", h.IssueRoomToken).Methods(http.MethodPost)
}

// IssueRoomToken issues a signed credential for a study room.
func (h *Handlers) IssueRoomToken(w http.ResponseWriter, r *http.Request) {
	var req IssueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.RoomID == "" {
		httputil.WriteError(w, http.StatusBadRequest, "roomId is required")
		return
	}

	cred, err := h.issuer.Issue(req)
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "failed to generate token")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"token":     cred.Token,
		"roomId":    req.RoomID,
		"userId":    req.UserID,
		"role":      cred.Role,
		"expiresIn": cred.ExpiresIn,
	})
}
