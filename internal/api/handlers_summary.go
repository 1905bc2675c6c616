package api

import (
	"net/http"

	"github.com/gorilla/mux"

	respond "github.com/attendly/attendly/server/internal/api/respond"
	"github.com/attendly/attendly/server/internal/services"
)

// SummaryHandler serves summary retrieval and regeneration.
type SummaryHandler struct {
	svc    *services.SummaryService
	userID string
}

func NewSummaryHandler(svc *services.SummaryService, userID string) *SummaryHandler {
	return &SummaryHandler{svc: svc, userID: userID}
}

// GetSummary GET /api/meetings/{meetingId}/summary
func (h *SummaryHandler) GetSummary(w http.ResponseWriter, r *http.Request) {
	sum, err := h.svc.Latest(r.Context(), h.userID, mux.Vars(r)["meetingId"])
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, sum)
}

// RegenerateSummary POST /api/meetings/{meetingId}/summary
func (h *SummaryHandler) RegenerateSummary(w http.ResponseWriter, r *http.Request) {
	sum, err := h.svc.Generate(r.Context(), h.userID, mux.Vars(r)["meetingId"])
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusCreated, sum)
}
