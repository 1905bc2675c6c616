package capture

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/attendly/attendly/server/internal/graph"
	"github.com/attendly/attendly/server/internal/insight/heuristic"
	"github.com/attendly/attendly/server/internal/model"
	"github.com/attendly/attendly/server/internal/store"
	"github.com/attendly/attendly/server/internal/store/sqlite"
)

const testUser = "organizer@example.test"

// chatGraph serves canned chat messages and records posts.
type chatGraph struct {
	mu       sync.Mutex
	messages []graph.Message
	posted   []string
}

func (f *chatGraph) CreateEvent(ctx context.Context, organizer string, req *graph.EventRequest) (*graph.Event, error) {
	return nil, fmt.Errorf("unused")
}
func (f *chatGraph) UpdateEvent(ctx context.Context, organizer, eventID string, req *graph.EventRequest) error {
	return fmt.Errorf("unused")
}
func (f *chatGraph) CancelEvent(ctx context.Context, organizer, eventID string) error {
	return fmt.Errorf("unused")
}
func (f *chatGraph) GetSchedule(ctx context.Context, organizer string, attendees []string, start, end time.Time) ([]graph.Availability, error) {
	return nil, fmt.Errorf("unused")
}
func (f *chatGraph) SearchUsers(ctx context.Context, query string) ([]graph.User, error) {
	return nil, fmt.Errorf("unused")
}

func (f *chatGraph) ListMessagesSince(ctx context.Context, chatID string, since time.Time) ([]graph.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []graph.Message
	for _, m := range f.messages {
		if m.SentAt.After(since) {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *chatGraph) PostMessage(ctx context.Context, chatID, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.posted = append(f.posted, content)
	return nil
}

func (f *chatGraph) postCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.posted)
}

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

func seedMeeting(t *testing.T, st store.Store, cfg model.AgentConfig) *model.Meeting {
	t.Helper()
	m, err := st.Meetings().Create(context.Background(), &model.Meeting{
		MeetingID:   "mtg-1",
		UserID:      testUser,
		Subject:     "sync",
		StartTime:   time.Now().Add(-10 * time.Minute),
		EndTime:     time.Now().Add(time.Hour),
		Attendees:   []string{"dana@example.test"},
		Status:      model.MeetingInProgress,
		ChatID:      "19:meeting_abc@thread.v2",
		AgentAttended: true,
		AgentConfig: cfg,
	})
	if err != nil {
		t.Fatalf("seed meeting: %v", err)
	}
	return m
}

func chatMsg(id, content string, sentAt time.Time) graph.Message {
	return graph.Message{ID: id, Sender: "Dana", Content: content, SentAt: sentAt}
}

func TestCaptureOncePersistsAndClassifies(t *testing.T) {
	st := newTestStore(t)
	fg := &chatGraph{}
	mgr := NewManager(st, fg, heuristic.New(), time.Hour, zerolog.Nop())

	m := seedMeeting(t, st, model.AgentConfig{CaptureChat: true})
	base := m.CreationTime.Add(time.Minute)
	fg.messages = []graph.Message{
		chatMsg("src-1", "who owns the rollout?", base),
		chatMsg("src-2", "we agreed to pause the migration", base.Add(time.Second)),
	}

	if err := mgr.captureOnce(context.Background(), testUser, m.MeetingID); err != nil {
		t.Fatalf("captureOnce: %v", err)
	}

	msgs, err := st.Messages().List(context.Background(), model.ListMessagesRequest{MeetingID: m.MeetingID})
	if err != nil || len(msgs) != 2 {
		t.Fatalf("ListMessages: n=%d err=%v", len(msgs), err)
	}
	if msgs[0].Category != model.CategoryQuestion || msgs[1].Category != model.CategoryDecision {
		t.Fatalf("classification: %s / %s", msgs[0].Category, msgs[1].Category)
	}

	got, _ := st.Meetings().Get(context.Background(), testUser, m.MeetingID)
	if got.LastCaptureTime == nil || !got.LastCaptureTime.Equal(base.Add(time.Second)) {
		t.Fatalf("watermark not advanced: %v", got.LastCaptureTime)
	}
}

func TestCaptureOnceDeduplicates(t *testing.T) {
	st := newTestStore(t)
	fg := &chatGraph{}
	mgr := NewManager(st, fg, heuristic.New(), time.Hour, zerolog.Nop())

	m := seedMeeting(t, st, model.AgentConfig{CaptureChat: true})
	base := m.CreationTime.Add(time.Minute)
	fg.messages = []graph.Message{chatMsg("src-1", "status update", base)}

	ctx := context.Background()
	if err := mgr.captureOnce(ctx, testUser, m.MeetingID); err != nil {
		t.Fatalf("captureOnce: %v", err)
	}
	// Same source message appears again in the next poll.
	fg.messages = append(fg.messages, chatMsg("src-1", "status update", base))
	if err := mgr.captureOnce(ctx, testUser, m.MeetingID); err != nil {
		t.Fatalf("captureOnce again: %v", err)
	}

	msgs, err := st.Messages().List(ctx, model.ListMessagesRequest{MeetingID: m.MeetingID})
	if err != nil || len(msgs) != 1 {
		t.Fatalf("want 1 message after dedup, got %d (err=%v)", len(msgs), err)
	}
}

func TestCaptureOncePostsInsightForActionable(t *testing.T) {
	st := newTestStore(t)
	fg := &chatGraph{}
	mgr := NewManager(st, fg, heuristic.New(), time.Hour, zerolog.Nop())

	m := seedMeeting(t, st, model.AgentConfig{CaptureChat: true, PostInsights: true})
	base := m.CreationTime.Add(time.Minute)
	fg.messages = []graph.Message{
		chatMsg("src-1", "action item: collect the metrics", base),
		chatMsg("src-2", "nice weather today", base.Add(time.Second)),
	}

	if err := mgr.captureOnce(context.Background(), testUser, m.MeetingID); err != nil {
		t.Fatalf("captureOnce: %v", err)
	}
	if fg.postCount() != 1 {
		t.Fatalf("want 1 insight post, got %d", fg.postCount())
	}
}

func TestCaptureOnceSilentWithoutPostInsights(t *testing.T) {
	st := newTestStore(t)
	fg := &chatGraph{}
	mgr := NewManager(st, fg, heuristic.New(), time.Hour, zerolog.Nop())

	m := seedMeeting(t, st, model.AgentConfig{CaptureChat: true})
	fg.messages = []graph.Message{
		chatMsg("src-1", "action item: collect the metrics", m.CreationTime.Add(time.Minute)),
	}

	if err := mgr.captureOnce(context.Background(), testUser, m.MeetingID); err != nil {
		t.Fatalf("captureOnce: %v", err)
	}
	if fg.postCount() != 0 {
		t.Fatalf("posted despite PostInsights off: %d", fg.postCount())
	}
}

func TestRecapPostedEveryTwentyMessages(t *testing.T) {
	st := newTestStore(t)
	fg := &chatGraph{}
	mgr := NewManager(st, fg, heuristic.New(), time.Hour, zerolog.Nop())

	m := seedMeeting(t, st, model.AgentConfig{CaptureChat: true, PostInsights: true})
	base := m.CreationTime.Add(time.Minute)
	for i := 0; i < recapEvery; i++ {
		fg.messages = append(fg.messages,
			chatMsg(fmt.Sprintf("src-%d", i), "regular chatter", base.Add(time.Duration(i)*time.Second)))
	}

	if err := mgr.captureOnce(context.Background(), testUser, m.MeetingID); err != nil {
		t.Fatalf("captureOnce: %v", err)
	}

	found := false
	fg.mu.Lock()
	for _, p := range fg.posted {
		if strings.HasPrefix(p, "Recap so far") {
			found = true
		}
	}
	fg.mu.Unlock()
	if !found {
		t.Fatalf("recap not posted after %d messages", recapEvery)
	}
}

func TestStartIsSingleflightPerMeeting(t *testing.T) {
	st := newTestStore(t)
	fg := &chatGraph{}
	mgr := NewManager(st, fg, heuristic.New(), time.Hour, zerolog.Nop())
	t.Cleanup(mgr.Shutdown)

	m := seedMeeting(t, st, model.AgentConfig{CaptureChat: true})
	ctx := context.Background()
	mgr.Start(ctx, m)
	mgr.Start(ctx, m)

	if got := mgr.Active(); len(got) != 1 || got[0] != m.MeetingID {
		t.Fatalf("want one loop for %s, got %v", m.MeetingID, got)
	}

	mgr.Stop(m.MeetingID)
	if mgr.IsActive(m.MeetingID) {
		t.Fatalf("loop still active after Stop")
	}
}
