// Package scheduler drives the auto-join lifecycle: it persists join intents,
// polls for due schedule records once per tick, and arms in-process leave
// timers for the meetings it joins.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/attendly/attendly/server/internal/model"
	"github.com/attendly/attendly/server/internal/store"
)

// immediateJoinWindow: meetings starting within this window are joined at
// schedule time instead of waiting for the next tick.
const immediateJoinWindow = 2 * time.Minute

// joinGrace: a due meeting is still joinable this long after its start;
// past it the record is marked missed.
const joinGrace = 5 * time.Minute

// Attendance is the join/leave surface the scheduler drives.
type Attendance interface {
	Join(ctx context.Context, userID, meetingID string) error
	Leave(ctx context.Context, userID, meetingID string) error
}

// Config controls tick cadence, the due window, and the retry policy.
type Config struct {
	Interval        time.Duration // tick cadence
	LookAhead       time.Duration // due window upper bound relative to now
	MaxAttempts     int           // join attempts before a record is marked error
	RetainCompleted time.Duration // completed records older than this are purged
}

// Scheduler polls schedule records and triggers attendance transitions.
type Scheduler struct {
	store store.Store
	att   Attendance
	log   zerolog.Logger
	cfg   Config
	now   func() time.Time

	mu     sync.Mutex
	timers map[string]*time.Timer
}

// New constructs a Scheduler with defaults filled in.
func New(st store.Store, att Attendance, cfg Config, log zerolog.Logger) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.LookAhead <= 0 {
		cfg.LookAhead = 3 * time.Minute
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.RetainCompleted <= 0 {
		cfg.RetainCompleted = 24 * time.Hour
	}
	return &Scheduler{
		store:  st,
		att:    att,
		log:    log,
		cfg:    cfg,
		now:    time.Now,
		timers: make(map[string]*time.Timer),
	}
}

// SetClock overrides the time source. Test hook.
func (s *Scheduler) SetClock(now func() time.Time) { s.now = now }

// Schedule persists a join intent for a meeting with auto-join enabled.
// The record id derives from the meeting id, so repeated calls update one
// record. Meetings starting within the immediate window are processed at once.
func (s *Scheduler) Schedule(ctx context.Context, m *model.Meeting) (*model.Schedule, error) {
	if !m.AgentConfig.AutoJoin {
		return nil, fmt.Errorf("meeting %s: auto-join disabled: %w", m.MeetingID, model.ErrValidation)
	}

	rec := &model.Schedule{
		ScheduleID: model.ScheduleIDFor(m.MeetingID),
		MeetingID:  m.MeetingID,
		UserID:     m.UserID,
		JoinAt:     m.StartTime,
		Status:     model.ScheduleScheduled,
	}
	rec, err := s.store.Schedules().Upsert(ctx, rec)
	if err != nil {
		return nil, err
	}
	s.log.Info().Str("meeting", m.MeetingID).Time("join_at", rec.JoinAt).Msg("auto-join scheduled")

	if until := m.StartTime.Sub(s.now()); until <= immediateJoinWindow {
		s.process(ctx, rec)
		// return the post-processing state
		return s.store.Schedules().Get(ctx, rec.ScheduleID)
	}
	return rec, nil
}

// Cancel stops any armed leave timer and cancels a pending schedule record
// for the meeting. Missing records are ignored.
func (s *Scheduler) Cancel(ctx context.Context, meetingID string) error {
	s.stopTimer(meetingID)

	rec, err := s.store.Schedules().Get(ctx, model.ScheduleIDFor(meetingID))
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil
		}
		return err
	}
	if rec.Status != model.ScheduleScheduled {
		return nil
	}
	now := s.now().UTC()
	rec.Status = model.ScheduleCancelled
	rec.CompletedAt = &now
	return s.store.Schedules().Update(ctx, rec)
}

// Run ticks until ctx is canceled.
func (s *Scheduler) Run(ctx context.Context) error {
	s.log.Info().Dur("interval", s.cfg.Interval).Msg("scheduler starting")
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("scheduler stopping")
			s.stopAllTimers()
			return ctx.Err()
		case <-ticker.C:
			if err := s.Tick(ctx); err != nil {
				// log and continue; per-record backoff prevents hot-looping
				s.log.Error().Err(err).Msg("scheduler tick")
			}
		}
	}
}

// Tick processes all pending schedule records due by now plus the look-ahead
// window and purges old completed records. Records left over from downtime
// are included; process resolves them as joined or missed.
func (s *Scheduler) Tick(ctx context.Context) error {
	now := s.now()
	recs, err := s.store.Schedules().ListDue(ctx, now.Add(s.cfg.LookAhead))
	if err != nil {
		return err
	}
	for _, rec := range recs {
		s.process(ctx, rec)
	}

	if n, err := s.store.Schedules().PurgeCompletedBefore(ctx, now.Add(-s.cfg.RetainCompleted)); err != nil {
		s.log.Error().Err(err).Msg("schedule purge failed")
	} else if n > 0 {
		s.log.Debug().Int64("purged", n).Msg("purged completed schedule records")
	}
	return nil
}

// process runs one schedule record through the join state machine. Completed
// and cancelled records are left untouched, making it safe to call twice.
func (s *Scheduler) process(ctx context.Context, rec *model.Schedule) {
	// refresh: the record may have completed since the window query
	rec, err := s.store.Schedules().Get(ctx, rec.ScheduleID)
	if err != nil {
		s.log.Error().Err(err).Msg("schedule reload failed")
		return
	}
	if rec.Status != model.ScheduleScheduled {
		return
	}
	now := s.now()
	if rec.NextAttemptAt != nil && now.Before(*rec.NextAttemptAt) {
		return
	}

	m, err := s.store.Meetings().Get(ctx, rec.UserID, rec.MeetingID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			s.complete(ctx, rec, model.ReasonMeetingNotFound)
			return
		}
		s.retryOrFail(ctx, rec, err)
		return
	}

	if m.AgentAttended || m.Status == model.MeetingInProgress {
		s.complete(ctx, rec, model.ReasonAlreadyJoined)
		return
	}
	if m.Status == model.MeetingCancelled {
		ts := now.UTC()
		rec.Status = model.ScheduleCancelled
		rec.CompletedAt = &ts
		if err := s.store.Schedules().Update(ctx, rec); err != nil {
			s.log.Error().Err(err).Str("schedule", rec.ScheduleID).Msg("schedule update failed")
		}
		return
	}

	sinceStart := now.Sub(m.StartTime)
	switch {
	case sinceStart < -immediateJoinWindow:
		// not due yet; the tick window will pick it up again
		return
	case sinceStart > joinGrace:
		s.complete(ctx, rec, model.ReasonMissed)
		return
	}

	if err := s.att.Join(ctx, rec.UserID, rec.MeetingID); err != nil {
		if errors.Is(err, model.ErrAlreadyEnded) {
			s.complete(ctx, rec, model.ReasonMissed)
			return
		}
		s.retryOrFail(ctx, rec, err)
		return
	}
	s.complete(ctx, rec, model.ReasonJoined)
	s.ArmEndTimer(m)
}

// complete marks a record terminal.
func (s *Scheduler) complete(ctx context.Context, rec *model.Schedule, reason string) {
	now := s.now().UTC()
	rec.Status = model.ScheduleCompleted
	rec.Reason = reason
	rec.CompletedAt = &now
	rec.NextAttemptAt = nil
	if err := s.store.Schedules().Update(ctx, rec); err != nil {
		s.log.Error().Err(err).Str("schedule", rec.ScheduleID).Msg("schedule update failed")
		return
	}
	s.log.Info().Str("schedule", rec.ScheduleID).Str("reason", reason).Msg("schedule completed")
}

// retryOrFail applies the bounded backoff policy: exponential next-attempt
// delay up to MaxAttempts, then the record lands in the error report.
func (s *Scheduler) retryOrFail(ctx context.Context, rec *model.Schedule, cause error) {
	rec.AttemptCount++
	if rec.AttemptCount >= s.cfg.MaxAttempts {
		s.log.Error().Err(cause).
			Str("schedule", rec.ScheduleID).
			Int("attempts", rec.AttemptCount).
			Msg("join failed, attempts exhausted")
		s.complete(ctx, rec, model.ReasonError)
		return
	}

	backoff := 30 * time.Second << rec.AttemptCount
	if backoff > 5*time.Minute {
		backoff = 5 * time.Minute
	}
	next := s.now().Add(backoff).UTC()
	rec.NextAttemptAt = &next
	if err := s.store.Schedules().Update(ctx, rec); err != nil {
		s.log.Error().Err(err).Str("schedule", rec.ScheduleID).Msg("schedule update failed")
		return
	}
	s.log.Warn().Err(cause).
		Str("schedule", rec.ScheduleID).
		Int("attempt", rec.AttemptCount).
		Time("next_attempt", next).
		Msg("join failed, will retry")
}

// ArmEndTimer arms a single in-process timer that leaves the meeting at its
// end time. Re-arming replaces any existing timer for the meeting.
func (s *Scheduler) ArmEndTimer(m *model.Meeting) {
	d := m.EndTime.Sub(s.now())
	if d < 0 {
		d = 0
	}
	userID, meetingID := m.UserID, m.MeetingID

	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.timers[meetingID]; ok {
		t.Stop()
	}
	s.timers[meetingID] = time.AfterFunc(d, func() {
		s.mu.Lock()
		delete(s.timers, meetingID)
		s.mu.Unlock()
		if err := s.att.Leave(context.Background(), userID, meetingID); err != nil {
			s.log.Error().Err(err).Str("meeting", meetingID).Msg("auto-leave failed")
			return
		}
		s.log.Info().Str("meeting", meetingID).Msg("auto-leave fired")
	})
	s.log.Info().Str("meeting", meetingID).Dur("in", d).Msg("end timer armed")
}

// Reconcile re-arms leave timers from durable state after a restart: every
// attended in-progress meeting either gets its end timer back or, when the
// end already passed, is left immediately.
func (s *Scheduler) Reconcile(ctx context.Context) error {
	meetings, err := s.store.Meetings().ListInProgress(ctx)
	if err != nil {
		return err
	}
	now := s.now()
	for _, m := range meetings {
		if m.EndTime.After(now) {
			s.ArmEndTimer(m)
			continue
		}
		if err := s.att.Leave(ctx, m.UserID, m.MeetingID); err != nil {
			s.log.Error().Err(err).Str("meeting", m.MeetingID).Msg("reconcile leave failed")
		}
	}
	if len(meetings) > 0 {
		s.log.Info().Int("meetings", len(meetings)).Msg("attendance reconciled after startup")
	}
	return nil
}

func (s *Scheduler) stopTimer(meetingID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.timers[meetingID]; ok {
		t.Stop()
		delete(s.timers, meetingID)
	}
}

func (s *Scheduler) stopAllTimers() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
}
