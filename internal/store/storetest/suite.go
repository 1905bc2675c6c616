package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/attendly/attendly/server/internal/model"
	"github.com/attendly/attendly/server/internal/store"
)

// Run exercises a compliance suite against a store.Store implementation.
// Implementations should provide a clean, isolated store from makeStore.
func Run(t *testing.T, makeStore func(t *testing.T) store.Store) {
	t.Helper()

	s := makeStore(t)
	ctx := context.Background()
	userID := "organizer@example.test"
	now := time.Now().UTC().Truncate(time.Second)

	// Meetings
	m, err := s.Meetings().Create(ctx, &model.Meeting{
		MeetingID: uuid.NewString(),
		UserID:    userID,
		Subject:   "planning",
		StartTime: now.Add(time.Hour),
		EndTime:   now.Add(2 * time.Hour),
		Attendees: []string{"a@example.test", "b@example.test"},
		Status:    model.MeetingScheduled,
		AgentConfig: model.AgentConfig{
			AutoJoin:    true,
			CaptureChat: true,
		},
	})
	if err != nil {
		t.Fatalf("CreateMeeting: %v", err)
	}
	if m.CreationTime.IsZero() {
		t.Fatalf("CreateMeeting: zero creation time")
	}

	got, err := s.Meetings().Get(ctx, userID, m.MeetingID)
	if err != nil || got.Subject != "planning" || len(got.Attendees) != 2 {
		t.Fatalf("GetMeeting: got=%+v err=%v", got, err)
	}
	if _, err := s.Meetings().Get(ctx, userID, "missing"); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("GetMeeting missing: want ErrNotFound, got %v", err)
	}

	got.Status = model.MeetingInProgress
	got.AgentAttended = true
	capAt := now.Add(time.Hour + time.Minute)
	got.LastCaptureTime = &capAt
	if _, err := s.Meetings().Update(ctx, got); err != nil {
		t.Fatalf("UpdateMeeting: %v", err)
	}
	got, err = s.Meetings().Get(ctx, userID, m.MeetingID)
	if err != nil || !got.AgentAttended || got.LastCaptureTime == nil {
		t.Fatalf("GetMeeting after update: got=%+v err=%v", got, err)
	}

	if lst, err := s.Meetings().List(ctx, userID); err != nil || len(lst) != 1 {
		t.Fatalf("ListMeetings: n=%d err=%v", len(lst), err)
	}
	if lst, err := s.Meetings().ListInProgress(ctx); err != nil || len(lst) != 1 {
		t.Fatalf("ListInProgress: n=%d err=%v", len(lst), err)
	}

	// Schedules: upsert twice must keep one record and reset retry state
	rec := &model.Schedule{
		ScheduleID: model.ScheduleIDFor(m.MeetingID),
		MeetingID:  m.MeetingID,
		UserID:     userID,
		JoinAt:     now.Add(time.Hour),
		Status:     model.ScheduleScheduled,
	}
	if _, err := s.Schedules().Upsert(ctx, rec); err != nil {
		t.Fatalf("UpsertSchedule: %v", err)
	}
	rec.JoinAt = now.Add(90 * time.Minute)
	if _, err := s.Schedules().Upsert(ctx, rec); err != nil {
		t.Fatalf("UpsertSchedule again: %v", err)
	}
	srec, err := s.Schedules().Get(ctx, model.ScheduleIDFor(m.MeetingID))
	if err != nil || !srec.JoinAt.Equal(now.Add(90*time.Minute)) || srec.AttemptCount != 0 {
		t.Fatalf("GetSchedule after upsert: got=%+v err=%v", srec, err)
	}

	due, err := s.Schedules().ListDue(ctx, now.Add(2*time.Hour))
	if err != nil || len(due) != 1 {
		t.Fatalf("ListDue: n=%d err=%v", len(due), err)
	}
	if due, err := s.Schedules().ListDue(ctx, now.Add(time.Minute)); err != nil || len(due) != 0 {
		t.Fatalf("ListDue before join time: n=%d err=%v", len(due), err)
	}

	// Failure report
	completedAt := now.Add(-time.Hour)
	srec.Status = model.ScheduleCompleted
	srec.Reason = model.ReasonError
	srec.AttemptCount = 3
	srec.CompletedAt = &completedAt
	if err := s.Schedules().Update(ctx, srec); err != nil {
		t.Fatalf("UpdateSchedule: %v", err)
	}
	if fails, err := s.Schedules().ListFailures(ctx, 10); err != nil || len(fails) != 1 || fails[0].Reason != model.ReasonError {
		t.Fatalf("ListFailures: got=%+v err=%v", fails, err)
	}

	// Purge removes old terminal records
	if n, err := s.Schedules().PurgeCompletedBefore(ctx, now); err != nil || n != 1 {
		t.Fatalf("PurgeCompletedBefore: n=%d err=%v", n, err)
	}
	if _, err := s.Schedules().Get(ctx, model.ScheduleIDFor(m.MeetingID)); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("GetSchedule after purge: want ErrNotFound, got %v", err)
	}

	// Messages: dedup by source id
	msg1, err := s.Messages().Create(ctx, &model.ChatMessage{
		MeetingID: m.MeetingID,
		SourceID:  "src-1",
		Sender:    "Alice",
		Content:   "shall we start?",
		Category:  model.CategoryQuestion,
		Urgency:   "normal",
		Sentiment: "neutral",
		SentAt:    now.Add(61 * time.Minute),
	})
	if err != nil || msg1.MessageID == "" {
		t.Fatalf("CreateMessage: got=%+v err=%v", msg1, err)
	}
	if _, err := s.Messages().Create(ctx, &model.ChatMessage{
		MeetingID: m.MeetingID,
		SourceID:  "src-2",
		Sender:    "Bob",
		Content:   "we agreed to ship friday",
		Category:  model.CategoryDecision,
		Urgency:   "normal",
		Sentiment: "neutral",
		SentAt:    now.Add(62 * time.Minute),
	}); err != nil {
		t.Fatalf("CreateMessage 2: %v", err)
	}

	if seen, err := s.Messages().HasSource(ctx, m.MeetingID, "src-1"); err != nil || !seen {
		t.Fatalf("HasSource src-1: seen=%v err=%v", seen, err)
	}
	if seen, err := s.Messages().HasSource(ctx, m.MeetingID, "src-99"); err != nil || seen {
		t.Fatalf("HasSource src-99: seen=%v err=%v", seen, err)
	}

	msgs, err := s.Messages().List(ctx, model.ListMessagesRequest{MeetingID: m.MeetingID})
	if err != nil || len(msgs) != 2 {
		t.Fatalf("ListMessages: n=%d err=%v", len(msgs), err)
	}
	if !msgs[0].SentAt.Before(msgs[1].SentAt) {
		t.Fatalf("ListMessages: want ascending SentAt, got %v then %v", msgs[0].SentAt, msgs[1].SentAt)
	}
	if msgs, err := s.Messages().List(ctx, model.ListMessagesRequest{MeetingID: m.MeetingID, Limit: 1}); err != nil || len(msgs) != 1 {
		t.Fatalf("ListMessages limit: n=%d err=%v", len(msgs), err)
	}
	after := now.Add(61*time.Minute + 30*time.Second)
	if msgs, err := s.Messages().List(ctx, model.ListMessagesRequest{MeetingID: m.MeetingID, After: &after}); err != nil || len(msgs) != 1 {
		t.Fatalf("ListMessages after: n=%d err=%v", len(msgs), err)
	}

	// Summaries: latest wins
	if _, err := s.Summaries().Latest(ctx, m.MeetingID); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("LatestSummary empty: want ErrNotFound, got %v", err)
	}
	if _, err := s.Summaries().Create(ctx, &model.Summary{
		SummaryID:        uuid.NewString(),
		MeetingID:        m.MeetingID,
		ExecutiveSummary: "first",
		KeyPoints:        []string{"k1"},
		Decisions:        []string{},
		ActionItems:      []string{},
		OpenQuestions:    []string{},
		Source:           "template",
	}); err != nil {
		t.Fatalf("CreateSummary: %v", err)
	}
	time.Sleep(5 * time.Millisecond) // ensure monotonic creation time ordering
	if _, err := s.Summaries().Create(ctx, &model.Summary{
		SummaryID:        uuid.NewString(),
		MeetingID:        m.MeetingID,
		ExecutiveSummary: "second",
		KeyPoints:        []string{},
		Decisions:        []string{},
		ActionItems:      []string{},
		OpenQuestions:    []string{},
		Scores:           model.QualityScores{Engagement: 0.5, Productivity: 0.5, Clarity: 0.5},
		Source:           "gemini",
	}); err != nil {
		t.Fatalf("CreateSummary second: %v", err)
	}
	latest, err := s.Summaries().Latest(ctx, m.MeetingID)
	if err != nil || latest.ExecutiveSummary != "second" || latest.Source != "gemini" {
		t.Fatalf("LatestSummary: got=%+v err=%v", latest, err)
	}
}
