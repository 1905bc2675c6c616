package api

import (
	"net/http"
	"strings"
	"time"

	respond "github.com/attendly/attendly/server/internal/api/respond"
	"github.com/attendly/attendly/server/internal/api/validate"
	"github.com/attendly/attendly/server/internal/services"
)

// DirectoryHandler serves the directory search and free-busy lookups used
// when composing a meeting.
type DirectoryHandler struct {
	svc *services.MeetingService
}

func NewDirectoryHandler(svc *services.MeetingService) *DirectoryHandler {
	return &DirectoryHandler{svc: svc}
}

// SearchUsers GET /api/users/search?q=
func (h *DirectoryHandler) SearchUsers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if err := validate.NonEmpty("q", strings.TrimSpace(q)); err != nil {
		respond.WriteBadRequest(w, err.Error())
		return
	}
	users, err := h.svc.SearchUsers(r.Context(), q)
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{"users": users, "count": len(users)})
}

// Availability GET /api/schedule/availability?attendees=a@x.com,b@x.com&start=...&end=...
// start and end are RFC3339.
func (h *DirectoryHandler) Availability(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	attendees := splitNonEmpty(q.Get("attendees"))
	if len(attendees) == 0 {
		respond.WriteBadRequest(w, "attendees is required")
		return
	}
	if err := validate.Emails(attendees); err != nil {
		respond.WriteBadRequest(w, err.Error())
		return
	}

	start, err := time.Parse(time.RFC3339, q.Get("start"))
	if err != nil {
		respond.WriteBadRequest(w, "invalid start; want RFC3339")
		return
	}
	end, err := time.Parse(time.RFC3339, q.Get("end"))
	if err != nil {
		respond.WriteBadRequest(w, "invalid end; want RFC3339")
		return
	}
	if err := validate.TimeRange(start, end); err != nil {
		respond.WriteBadRequest(w, err.Error())
		return
	}

	avail, err := h.svc.Availability(r.Context(), attendees, start, end)
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{"availability": avail})
}

func splitNonEmpty(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
