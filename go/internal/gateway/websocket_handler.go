package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/matchday/go/internal/week"
)

// WebSocketHandler handles WebSocket upgrade requests for a week's change stream
type WebSocketHandler struct {
	connectionManager *ConnectionManager
}

func NewWebSocketHandler(cm *ConnectionManager) *WebSocketHandler {
	return &WebSocketHandler{connectionManager: cm}
}

// HandleChanges upgrades GET /ws/changes?week=YYYY-MM-DD&user_id=...
func (h *WebSocketHandler) HandleChanges(w http.ResponseWriter, r *http.Request) {
	key, err := week.Parse(r.URL.Query().Get("week"))
	if err != nil {
		http.Error(w, "week must be a YYYY-MM-DD date", http.StatusBadRequest)
		return
	}

	// identity is informational only; the gateway never acts on behalf of users
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		userID = "anonymous"
	}

	if err := h.connectionManager.UpgradeConnection(w, r, userID, key.String()); err != nil {
		// the upgrader has already written the HTTP error
		log.Error().
			Err(err).
			Str("week", key.String()).
			Str("user_id", userID).
			Msg("failed to upgrade WebSocket connection")
	}
}

// HandleConnectionStats returns statistics about active connections
func (h *WebSocketHandler) HandleConnectionStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.connectionManager.Stats())
}

func (h *WebSocketHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /ws/changes", h.HandleChanges)
	mux.HandleFunc("GET /ws/stats", h.HandleConnectionStats)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}
