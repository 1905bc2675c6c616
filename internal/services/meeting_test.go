package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/attendly/attendly/server/internal/graph"
	"github.com/attendly/attendly/server/internal/model"
	"github.com/attendly/attendly/server/internal/store"
	"github.com/attendly/attendly/server/internal/store/sqlite"
)

// --- Fakes ---

type fakeGraph struct {
	events       map[string]*graph.EventRequest
	busy         map[string][]graph.BusyWindow
	cancelled    []string
	updated      []string
	messages     []graph.Message
	posted       []string
	scheduleErr  error
	createEvtErr error
}

func newFakeGraph() *fakeGraph {
	return &fakeGraph{
		events: map[string]*graph.EventRequest{},
		busy:   map[string][]graph.BusyWindow{},
	}
}

func (f *fakeGraph) CreateEvent(ctx context.Context, organizer string, req *graph.EventRequest) (*graph.Event, error) {
	if f.createEvtErr != nil {
		return nil, f.createEvtErr
	}
	id := "evt-" + req.Subject
	f.events[id] = req
	return &graph.Event{
		ID:      id,
		JoinURL: "https://teams.microsoft.com/l/meetup-join/19%3ameeting_abc%40thread.v2/0",
		ChatID:  "19:meeting_abc@thread.v2",
	}, nil
}

func (f *fakeGraph) UpdateEvent(ctx context.Context, organizer, eventID string, req *graph.EventRequest) error {
	f.updated = append(f.updated, eventID)
	f.events[eventID] = req
	return nil
}

func (f *fakeGraph) CancelEvent(ctx context.Context, organizer, eventID string) error {
	f.cancelled = append(f.cancelled, eventID)
	return nil
}

func (f *fakeGraph) GetSchedule(ctx context.Context, organizer string, attendees []string, start, end time.Time) ([]graph.Availability, error) {
	if f.scheduleErr != nil {
		return nil, f.scheduleErr
	}
	out := make([]graph.Availability, 0, len(attendees))
	for _, a := range attendees {
		out = append(out, graph.Availability{Email: a, Busy: f.busy[a]})
	}
	return out, nil
}

func (f *fakeGraph) SearchUsers(ctx context.Context, query string) ([]graph.User, error) {
	return []graph.User{{ID: "u1", DisplayName: "Dana", Mail: "dana@example.test"}}, nil
}

func (f *fakeGraph) ListMessagesSince(ctx context.Context, chatID string, since time.Time) ([]graph.Message, error) {
	var out []graph.Message
	for _, m := range f.messages {
		if m.SentAt.After(since) {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeGraph) PostMessage(ctx context.Context, chatID, content string) error {
	f.posted = append(f.posted, content)
	return nil
}

type fakeScheduler struct {
	scheduled []string
	cancelled []string
}

func (f *fakeScheduler) Schedule(ctx context.Context, m *model.Meeting) (*model.Schedule, error) {
	f.scheduled = append(f.scheduled, m.MeetingID)
	return &model.Schedule{ScheduleID: model.ScheduleIDFor(m.MeetingID), MeetingID: m.MeetingID}, nil
}

func (f *fakeScheduler) Cancel(ctx context.Context, meetingID string) error {
	f.cancelled = append(f.cancelled, meetingID)
	return nil
}

// --- Helpers ---

const testUser = "organizer@example.test"

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	db, err := sqlite.Open(":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := sqlite.EnsureSchema(db); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}
	return sqlite.NewWithDB(db)
}

func createRequest(start time.Time) *CreateMeetingRequest {
	return &CreateMeetingRequest{
		Subject:   "roadmap review",
		StartTime: start,
		EndTime:   start.Add(time.Hour),
		Attendees: []string{"dana@example.test"},
		AgentConfig: model.AgentConfig{
			AutoJoin:    true,
			CaptureChat: true,
		},
	}
}

// --- Tests ---

func TestCreateMeetingSchedulesAutoJoin(t *testing.T) {
	st := newTestStore(t)
	fg := newFakeGraph()
	fs := &fakeScheduler{}
	svc := NewMeetingService(st, fg, fs, nil, testUser, zerolog.Nop())

	m, err := svc.Create(context.Background(), testUser, createRequest(time.Now().Add(time.Hour)))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if m.EventID == "" || m.JoinURL == "" || m.ChatID == "" {
		t.Fatalf("calendar fields not populated: %+v", m)
	}
	if m.Status != model.MeetingScheduled {
		t.Fatalf("want scheduled, got %s", m.Status)
	}
	if len(fs.scheduled) != 1 || fs.scheduled[0] != m.MeetingID {
		t.Fatalf("auto-join not registered: %+v", fs.scheduled)
	}

	got, err := svc.Get(context.Background(), testUser, m.MeetingID)
	if err != nil || got.Subject != "roadmap review" {
		t.Fatalf("Get: got=%+v err=%v", got, err)
	}
}

func TestCreateMeetingWithoutAutoJoinSkipsScheduler(t *testing.T) {
	st := newTestStore(t)
	fs := &fakeScheduler{}
	svc := NewMeetingService(st, newFakeGraph(), fs, nil, testUser, zerolog.Nop())

	req := createRequest(time.Now().Add(time.Hour))
	req.AgentConfig.AutoJoin = false
	if _, err := svc.Create(context.Background(), testUser, req); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if len(fs.scheduled) != 0 {
		t.Fatalf("scheduler invoked for non-auto-join meeting")
	}
}

func TestCreateMeetingValidation(t *testing.T) {
	st := newTestStore(t)
	svc := NewMeetingService(st, newFakeGraph(), &fakeScheduler{}, nil, testUser, zerolog.Nop())
	ctx := context.Background()
	start := time.Now().Add(time.Hour)

	cases := []struct {
		name   string
		mutate func(*CreateMeetingRequest)
	}{
		{"empty subject", func(r *CreateMeetingRequest) { r.Subject = "  " }},
		{"end before start", func(r *CreateMeetingRequest) { r.EndTime = r.StartTime.Add(-time.Minute) }},
		{"start in past", func(r *CreateMeetingRequest) {
			r.StartTime = time.Now().Add(-time.Hour)
			r.EndTime = time.Now().Add(-30 * time.Minute)
		}},
		{"no attendees", func(r *CreateMeetingRequest) { r.Attendees = nil }},
		{"bad email", func(r *CreateMeetingRequest) { r.Attendees = []string{"not-an-email"} }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := createRequest(start)
			tc.mutate(req)
			if _, err := svc.Create(ctx, testUser, req); !errors.Is(err, model.ErrValidation) {
				t.Fatalf("want ErrValidation, got %v", err)
			}
		})
	}
}

func TestCreateMeetingBusyAttendeeConflicts(t *testing.T) {
	st := newTestStore(t)
	fg := newFakeGraph()
	svc := NewMeetingService(st, fg, &fakeScheduler{}, nil, testUser, zerolog.Nop())

	start := time.Now().Add(time.Hour)
	fg.busy["dana@example.test"] = []graph.BusyWindow{{Start: start.Add(15 * time.Minute), End: start.Add(45 * time.Minute)}}

	if _, err := svc.Create(context.Background(), testUser, createRequest(start)); !errors.Is(err, model.ErrConflict) {
		t.Fatalf("want ErrConflict, got %v", err)
	}
}

func TestCreateMeetingSkipsConflictCheckWhenLookupFails(t *testing.T) {
	st := newTestStore(t)
	fg := newFakeGraph()
	fg.scheduleErr = errors.New("free-busy unavailable")
	svc := NewMeetingService(st, fg, &fakeScheduler{}, nil, testUser, zerolog.Nop())

	if _, err := svc.Create(context.Background(), testUser, createRequest(time.Now().Add(time.Hour))); err != nil {
		t.Fatalf("Create with failing free-busy: %v", err)
	}
}

func TestUpdateMeetingMovesAutoJoin(t *testing.T) {
	st := newTestStore(t)
	fg := newFakeGraph()
	fs := &fakeScheduler{}
	svc := NewMeetingService(st, fg, fs, nil, testUser, zerolog.Nop())
	ctx := context.Background()

	m, err := svc.Create(ctx, testUser, createRequest(time.Now().Add(time.Hour)))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	newStart := time.Now().Add(2 * time.Hour)
	newEnd := newStart.Add(time.Hour)
	got, err := svc.Update(ctx, testUser, m.MeetingID, &UpdateMeetingRequest{StartTime: &newStart, EndTime: &newEnd})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if !got.StartTime.Equal(newStart.UTC()) {
		t.Fatalf("start not updated: %v", got.StartTime)
	}
	if len(fg.updated) != 1 {
		t.Fatalf("calendar event not updated")
	}
	if len(fs.scheduled) != 2 { // create + move
		t.Fatalf("auto-join not re-registered: %d", len(fs.scheduled))
	}
}

func TestCancelMeetingIsIdempotent(t *testing.T) {
	st := newTestStore(t)
	fg := newFakeGraph()
	fs := &fakeScheduler{}
	svc := NewMeetingService(st, fg, fs, nil, testUser, zerolog.Nop())
	ctx := context.Background()

	m, err := svc.Create(ctx, testUser, createRequest(time.Now().Add(time.Hour)))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := svc.Cancel(ctx, testUser, m.MeetingID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	got, _ := svc.Get(ctx, testUser, m.MeetingID)
	if got.Status != model.MeetingCancelled {
		t.Fatalf("want cancelled, got %s", got.Status)
	}
	if len(fg.cancelled) != 1 || len(fs.cancelled) != 1 {
		t.Fatalf("graph cancel=%d sched cancel=%d", len(fg.cancelled), len(fs.cancelled))
	}

	// Second cancel: no new side effects, no error.
	if err := svc.Cancel(ctx, testUser, m.MeetingID); err != nil {
		t.Fatalf("Cancel again: %v", err)
	}
	if len(fg.cancelled) != 1 {
		t.Fatalf("calendar event cancelled twice")
	}
}

func TestUpdateCancelledMeetingConflicts(t *testing.T) {
	st := newTestStore(t)
	svc := NewMeetingService(st, newFakeGraph(), &fakeScheduler{}, nil, testUser, zerolog.Nop())
	ctx := context.Background()

	m, err := svc.Create(ctx, testUser, createRequest(time.Now().Add(time.Hour)))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := svc.Cancel(ctx, testUser, m.MeetingID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	subject := "too late"
	if _, err := svc.Update(ctx, testUser, m.MeetingID, &UpdateMeetingRequest{Subject: &subject}); !errors.Is(err, model.ErrConflict) {
		t.Fatalf("want ErrConflict, got %v", err)
	}
}

func TestStatusReportsScheduleAndMessages(t *testing.T) {
	st := newTestStore(t)
	fg := newFakeGraph()
	svc := NewMeetingService(st, fg, &fakeScheduler{}, nil, testUser, zerolog.Nop())
	ctx := context.Background()

	m, err := svc.Create(ctx, testUser, createRequest(time.Now().Add(time.Hour)))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := st.Schedules().Upsert(ctx, &model.Schedule{
		ScheduleID: model.ScheduleIDFor(m.MeetingID),
		MeetingID:  m.MeetingID,
		UserID:     testUser,
		JoinAt:     m.StartTime,
		Status:     model.ScheduleScheduled,
	}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if _, err := st.Messages().Create(ctx, &model.ChatMessage{
		MeetingID: m.MeetingID,
		SourceID:  "src-1",
		Sender:    "Dana",
		Content:   "hello",
		Category:  model.CategoryDiscussion,
		Urgency:   "normal",
		Sentiment: "neutral",
		SentAt:    time.Now(),
	}); err != nil {
		t.Fatalf("CreateMessage: %v", err)
	}

	stat, err := svc.Status(ctx, testUser, m.MeetingID)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if stat.Schedule == nil || stat.MessageCount != 1 || stat.CaptureActive {
		t.Fatalf("unexpected status: %+v", stat)
	}
}
