// Package api is the HTTP transport: thin handlers over the services layer.
package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	respond "github.com/attendly/attendly/server/internal/api/respond"
	"github.com/attendly/attendly/server/internal/model"
	"github.com/attendly/attendly/server/internal/services"
)

// MeetingHandler serves the meeting CRUD and status endpoints. All meetings
// belong to the configured organizer, so the user id is fixed at wiring time.
type MeetingHandler struct {
	svc    *services.MeetingService
	userID string
}

func NewMeetingHandler(svc *services.MeetingService, userID string) *MeetingHandler {
	return &MeetingHandler{svc: svc, userID: userID}
}

// CreateMeeting POST /api/meetings
func (h *MeetingHandler) CreateMeeting(w http.ResponseWriter, r *http.Request) {
	var req services.CreateMeetingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.WriteBadRequest(w, "Invalid JSON")
		return
	}
	m, err := h.svc.Create(r.Context(), h.userID, &req)
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusCreated, m)
}

// ListMeetings GET /api/meetings
func (h *MeetingHandler) ListMeetings(w http.ResponseWriter, r *http.Request) {
	ms, err := h.svc.List(r.Context(), h.userID)
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{"meetings": ms, "count": len(ms)})
}

// GetMeeting GET /api/meetings/{meetingId}
func (h *MeetingHandler) GetMeeting(w http.ResponseWriter, r *http.Request) {
	m, err := h.svc.Get(r.Context(), h.userID, mux.Vars(r)["meetingId"])
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, m)
}

// UpdateMeeting PATCH /api/meetings/{meetingId}
func (h *MeetingHandler) UpdateMeeting(w http.ResponseWriter, r *http.Request) {
	var req services.UpdateMeetingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.WriteBadRequest(w, "Invalid JSON")
		return
	}
	m, err := h.svc.Update(r.Context(), h.userID, mux.Vars(r)["meetingId"], &req)
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, m)
}

// CancelMeeting DELETE /api/meetings/{meetingId}
func (h *MeetingHandler) CancelMeeting(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Cancel(r.Context(), h.userID, mux.Vars(r)["meetingId"]); err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AgentStatus GET /api/meetings/status
// Reports every meeting the agent is attending or has a pending join for.
func (h *MeetingHandler) AgentStatus(w http.ResponseWriter, r *http.Request) {
	ms, err := h.svc.List(r.Context(), h.userID)
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	active := []*services.MeetingStatus{}
	for _, m := range ms {
		if m.Status != model.MeetingInProgress && !m.AgentAttended && !m.AgentConfig.AutoJoin {
			continue
		}
		st, err := h.svc.Status(r.Context(), h.userID, m.MeetingID)
		if err != nil {
			respond.WriteServiceError(w, err)
			return
		}
		active = append(active, st)
	}
	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{"meetings": active, "count": len(active)})
}

// ListMessages GET /api/meetings/{meetingId}/messages
// Supports ?limit= and ?after= (RFC3339) filters.
func (h *MeetingHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	var req model.ListMessagesRequest
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			respond.WriteBadRequest(w, "invalid limit")
			return
		}
		req.Limit = n
	}
	if v := r.URL.Query().Get("after"); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			respond.WriteBadRequest(w, "invalid after timestamp; want RFC3339")
			return
		}
		req.After = &ts
	}

	msgs, err := h.svc.Messages(r.Context(), h.userID, mux.Vars(r)["meetingId"], req)
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{"messages": msgs, "count": len(msgs)})
}
