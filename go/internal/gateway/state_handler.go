package gateway

import (
	"context"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/matchday/go/internal/matchday"
	"github.com/mcdev12/matchday/go/internal/week"
)

// StateProvider loads a week's state as seen by one viewer.
type StateProvider interface {
	WeekState(ctx context.Context, key week.Key, viewerID string) (*WeekStateResponse, error)
}

// WeekStateResponse is what a client needs to render before the first
// change arrives on the websocket.
type WeekStateResponse struct {
	Week       week.Key          `json:"week"`
	EventLabel string            `json:"event_label"`
	View       matchday.View     `json:"view"`
	Snapshot   matchday.Snapshot `json:"snapshot"`
}

type StateHandler struct {
	stateProvider StateProvider
}

func NewStateHandler(provider StateProvider) *StateHandler {
	return &StateHandler{stateProvider: provider}
}

// HandleGetWeekState handles GET /api/weeks/{week}/state?viewer_id=...
func (h *StateHandler) HandleGetWeekState(w http.ResponseWriter, r *http.Request) {
	key, err := week.Parse(r.PathValue("week"))
	if err != nil {
		http.Error(w, "Invalid week format", http.StatusBadRequest)
		return
	}

	state, err := h.stateProvider.WeekState(r.Context(), key, r.URL.Query().Get("viewer_id"))
	if err != nil {
		log.Error().Err(err).Str("week", key.String()).Msg("failed to get week state")
		http.Error(w, "Failed to get week state", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (h *StateHandler) RegisterStateRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/weeks/{week}/state", h.HandleGetWeekState)
}
