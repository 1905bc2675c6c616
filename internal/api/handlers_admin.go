package api

import (
	"net/http"
	"strconv"

	respond "github.com/attendly/attendly/server/internal/api/respond"
	"github.com/attendly/attendly/server/internal/store"
)

// defaultReportLimit bounds the failure report when no limit is given.
const defaultReportLimit = 50

// AdminHandler serves operator-facing endpoints.
type AdminHandler struct {
	store store.Store
}

func NewAdminHandler(st store.Store) *AdminHandler { return &AdminHandler{store: st} }

// SchedulerReport GET /api/admin/scheduler/report
// Lists schedule records whose join attempts were exhausted, newest first.
func (h *AdminHandler) SchedulerReport(w http.ResponseWriter, r *http.Request) {
	limit := defaultReportLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			respond.WriteBadRequest(w, "invalid limit")
			return
		}
		limit = n
	}
	recs, err := h.store.Schedules().ListFailures(r.Context(), limit)
	if err != nil {
		respond.WriteInternalError(w, err.Error())
		return
	}
	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{"failures": recs, "count": len(recs)})
}
