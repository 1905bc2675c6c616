package api

import (
	"net/http"

	"github.com/gorilla/mux"

	respond "github.com/attendly/attendly/server/internal/api/respond"
	"github.com/attendly/attendly/server/internal/services"
)

// AttendanceHandler serves the manual join/leave endpoints.
type AttendanceHandler struct {
	svc    *services.AttendanceService
	userID string
}

func NewAttendanceHandler(svc *services.AttendanceService, userID string) *AttendanceHandler {
	return &AttendanceHandler{svc: svc, userID: userID}
}

// JoinAgent POST /api/meetings/{meetingId}/join-agent
func (h *AttendanceHandler) JoinAgent(w http.ResponseWriter, r *http.Request) {
	meetingID := mux.Vars(r)["meetingId"]
	if err := h.svc.Join(r.Context(), h.userID, meetingID); err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, map[string]string{"meetingId": meetingID, "status": "joined"})
}

// LeaveAgent POST /api/meetings/{meetingId}/leave-agent
func (h *AttendanceHandler) LeaveAgent(w http.ResponseWriter, r *http.Request) {
	meetingID := mux.Vars(r)["meetingId"]
	if err := h.svc.Leave(r.Context(), h.userID, meetingID); err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, map[string]string{"meetingId": meetingID, "status": "left"})
}
