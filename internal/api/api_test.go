package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/attendly/attendly/server/internal/api/recovery"
	"github.com/attendly/attendly/server/internal/capture"
	"github.com/attendly/attendly/server/internal/graph"
	"github.com/attendly/attendly/server/internal/insight/heuristic"
	"github.com/attendly/attendly/server/internal/model"
	"github.com/attendly/attendly/server/internal/services"
	"github.com/attendly/attendly/server/internal/store"
	"github.com/attendly/attendly/server/internal/store/sqlite"
)

const testUser = "agent@example.test"

type stubGraph struct{}

func (stubGraph) CreateEvent(ctx context.Context, organizer string, req *graph.EventRequest) (*graph.Event, error) {
	return &graph.Event{ID: "evt-1", JoinURL: "https://example.test/join", ChatID: "19:chat@thread.v2"}, nil
}
func (stubGraph) UpdateEvent(ctx context.Context, organizer, eventID string, req *graph.EventRequest) error {
	return nil
}
func (stubGraph) CancelEvent(ctx context.Context, organizer, eventID string) error { return nil }
func (stubGraph) GetSchedule(ctx context.Context, organizer string, attendees []string, start, end time.Time) ([]graph.Availability, error) {
	out := make([]graph.Availability, 0, len(attendees))
	for _, a := range attendees {
		out = append(out, graph.Availability{Email: a, Busy: []graph.BusyWindow{}})
	}
	return out, nil
}
func (stubGraph) SearchUsers(ctx context.Context, query string) ([]graph.User, error) {
	return []graph.User{{ID: "u1", DisplayName: "Dana", Mail: "dana@example.test"}}, nil
}
func (stubGraph) ListMessagesSince(ctx context.Context, chatID string, since time.Time) ([]graph.Message, error) {
	return nil, nil
}
func (stubGraph) PostMessage(ctx context.Context, chatID, content string) error { return nil }

type stubScheduler struct{}

func (stubScheduler) Schedule(ctx context.Context, m *model.Meeting) (*model.Schedule, error) {
	return &model.Schedule{ScheduleID: model.ScheduleIDFor(m.MeetingID)}, nil
}
func (stubScheduler) Cancel(ctx context.Context, meetingID string) error { return nil }

type fixture struct {
	router *mux.Router
	store  store.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, sqlite.EnsureSchema(db))
	st := sqlite.NewWithDB(db)

	log := zerolog.Nop()
	cm := capture.NewManager(st, stubGraph{}, heuristic.New(), time.Hour, log)
	t.Cleanup(cm.Shutdown)
	summarySvc := services.NewSummaryService(st, heuristic.New(), log)
	attendanceSvc := services.NewAttendanceService(st, cm, summarySvc, context.Background(), log)
	meetingSvc := services.NewMeetingService(st, stubGraph{}, stubScheduler{}, cm, testUser, log)

	root := mux.NewRouter()
	root.Use(recovery.Middleware)

	meeting := NewMeetingHandler(meetingSvc, testUser)
	attendance := NewAttendanceHandler(attendanceSvc, testUser)
	summary := NewSummaryHandler(summarySvc, testUser)
	directory := NewDirectoryHandler(meetingSvc)
	admin := NewAdminHandler(st)

	root.HandleFunc("/api/meetings/status", meeting.AgentStatus).Methods("GET")
	root.HandleFunc("/api/meetings", meeting.CreateMeeting).Methods("POST")
	root.HandleFunc("/api/meetings", meeting.ListMeetings).Methods("GET")
	root.HandleFunc("/api/meetings/{meetingId}", meeting.GetMeeting).Methods("GET")
	root.HandleFunc("/api/meetings/{meetingId}", meeting.UpdateMeeting).Methods("PATCH")
	root.HandleFunc("/api/meetings/{meetingId}", meeting.CancelMeeting).Methods("DELETE")
	root.HandleFunc("/api/meetings/{meetingId}/messages", meeting.ListMessages).Methods("GET")
	root.HandleFunc("/api/meetings/{meetingId}/join-agent", attendance.JoinAgent).Methods("POST")
	root.HandleFunc("/api/meetings/{meetingId}/leave-agent", attendance.LeaveAgent).Methods("POST")
	root.HandleFunc("/api/meetings/{meetingId}/summary", summary.GetSummary).Methods("GET")
	root.HandleFunc("/api/meetings/{meetingId}/summary", summary.RegenerateSummary).Methods("POST")
	root.HandleFunc("/api/users/search", directory.SearchUsers).Methods("GET")
	root.HandleFunc("/api/schedule/availability", directory.Availability).Methods("GET")
	root.HandleFunc("/api/admin/scheduler/report", admin.SchedulerReport).Methods("GET")
	root.HandleFunc("/api/health", NewHealthHandler().CheckHealth).Methods("GET")

	return &fixture{router: root, store: st}
}

func (f *fixture) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)
	return rr
}

func createPayload(start time.Time) map[string]interface{} {
	return map[string]interface{}{
		"subject":   "quarterly review",
		"startTime": start.Format(time.RFC3339),
		"endTime":   start.Add(time.Hour).Format(time.RFC3339),
		"attendees": []string{"dana@example.test"},
		"agentConfig": map[string]bool{
			"autoJoin":    true,
			"captureChat": true,
		},
	}
}

func (f *fixture) createMeeting(t *testing.T, start time.Time) model.Meeting {
	t.Helper()
	rr := f.do(t, http.MethodPost, "/api/meetings", createPayload(start))
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var m model.Meeting
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &m))
	return m
}

func TestCreateAndGetMeeting(t *testing.T) {
	f := newFixture(t)
	m := f.createMeeting(t, time.Now().Add(time.Hour))
	require.NotEmpty(t, m.MeetingID)
	require.Equal(t, "19:chat@thread.v2", m.ChatID)

	rr := f.do(t, http.MethodGet, "/api/meetings/"+m.MeetingID, nil)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = f.do(t, http.MethodGet, "/api/meetings", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var list struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &list))
	require.Equal(t, 1, list.Count)
}

func TestCreateMeetingBadRequests(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/api/meetings", bytes.NewBufferString("{not json"))
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	payload := createPayload(time.Now().Add(time.Hour))
	payload["subject"] = ""
	rr = f.do(t, http.MethodPost, "/api/meetings", payload)
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestGetMissingMeeting(t *testing.T) {
	f := newFixture(t)
	rr := f.do(t, http.MethodGet, "/api/meetings/nope", nil)
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestJoinLeaveFlow(t *testing.T) {
	f := newFixture(t)
	m := f.createMeeting(t, time.Now().Add(5*time.Minute))

	rr := f.do(t, http.MethodPost, "/api/meetings/"+m.MeetingID+"/join-agent", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = f.do(t, http.MethodGet, "/api/meetings/status", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var status struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &status))
	require.Equal(t, 1, status.Count)

	rr = f.do(t, http.MethodPost, "/api/meetings/"+m.MeetingID+"/leave-agent", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	// Leaving generated a summary.
	rr = f.do(t, http.MethodGet, "/api/meetings/"+m.MeetingID+"/summary", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var sum model.Summary
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &sum))
	require.Equal(t, "template", sum.Source)
}

func TestJoinTooEarlyConflicts(t *testing.T) {
	f := newFixture(t)
	m := f.createMeeting(t, time.Now().Add(2*time.Hour))

	rr := f.do(t, http.MethodPost, "/api/meetings/"+m.MeetingID+"/join-agent", nil)
	require.Equal(t, http.StatusConflict, rr.Code, rr.Body.String())
}

func TestSummaryNotFoundBeforeGeneration(t *testing.T) {
	f := newFixture(t)
	m := f.createMeeting(t, time.Now().Add(time.Hour))

	rr := f.do(t, http.MethodGet, "/api/meetings/"+m.MeetingID+"/summary", nil)
	require.Equal(t, http.StatusNotFound, rr.Code)

	rr = f.do(t, http.MethodPost, "/api/meetings/"+m.MeetingID+"/summary", nil)
	require.Equal(t, http.StatusCreated, rr.Code)
}

func TestCancelMeeting(t *testing.T) {
	f := newFixture(t)
	m := f.createMeeting(t, time.Now().Add(time.Hour))

	rr := f.do(t, http.MethodDelete, "/api/meetings/"+m.MeetingID, nil)
	require.Equal(t, http.StatusNoContent, rr.Code)

	rr = f.do(t, http.MethodGet, "/api/meetings/"+m.MeetingID, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var got model.Meeting
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	require.Equal(t, model.MeetingCancelled, got.Status)
}

func TestListMessagesValidation(t *testing.T) {
	f := newFixture(t)
	m := f.createMeeting(t, time.Now().Add(time.Hour))

	rr := f.do(t, http.MethodGet, "/api/meetings/"+m.MeetingID+"/messages?after=yesterday", nil)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = f.do(t, http.MethodGet, "/api/meetings/"+m.MeetingID+"/messages", nil)
	require.Equal(t, http.StatusOK, rr.Code)
}

func TestUserSearch(t *testing.T) {
	f := newFixture(t)

	rr := f.do(t, http.MethodGet, "/api/users/search", nil)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = f.do(t, http.MethodGet, "/api/users/search?q=dan", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var out struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	require.Equal(t, 1, out.Count)
}

func TestAvailabilityQueryValidation(t *testing.T) {
	f := newFixture(t)

	rr := f.do(t, http.MethodGet, "/api/schedule/availability", nil)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	start := time.Now().Add(time.Hour).UTC().Format(time.RFC3339)
	end := time.Now().Add(2 * time.Hour).UTC().Format(time.RFC3339)
	path := fmt.Sprintf("/api/schedule/availability?attendees=dana@example.test&start=%s&end=%s", start, end)
	rr = f.do(t, http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
}

func TestSchedulerReport(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	completed := time.Now().UTC()
	rec := &model.Schedule{
		ScheduleID: model.ScheduleIDFor("mtg-err"),
		MeetingID:  "mtg-err",
		UserID:     testUser,
		JoinAt:     time.Now().Add(-time.Hour),
		Status:     model.ScheduleScheduled,
	}
	_, err := f.store.Schedules().Upsert(ctx, rec)
	require.NoError(t, err)
	rec.Status = model.ScheduleCompleted
	rec.Reason = model.ReasonError
	rec.AttemptCount = 3
	rec.CompletedAt = &completed
	require.NoError(t, f.store.Schedules().Update(ctx, rec))

	rr := f.do(t, http.MethodGet, "/api/admin/scheduler/report", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var out struct {
		Count    int              `json:"count"`
		Failures []model.Schedule `json:"failures"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	require.Equal(t, 1, out.Count)
	require.Equal(t, "mtg-err", out.Failures[0].MeetingID)

	rr = f.do(t, http.MethodGet, "/api/admin/scheduler/report?limit=zero", nil)
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHealthEndpointReflectsBinding(t *testing.T) {
	f := newFixture(t)

	BindServiceHealth(func() bool { return false })
	rr := f.do(t, http.MethodGet, "/api/health", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), "unhealthy")

	BindServiceHealth(func() bool { return true })
	rr = f.do(t, http.MethodGet, "/api/health", nil)
	require.Contains(t, rr.Body.String(), `"healthy"`)
}
