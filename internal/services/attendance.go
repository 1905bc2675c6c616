package services

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/attendly/attendly/server/internal/capture"
	"github.com/attendly/attendly/server/internal/model"
	"github.com/attendly/attendly/server/internal/store"
)

// earlyJoinWindow: the agent may join this long before the scheduled start.
const earlyJoinWindow = 15 * time.Minute

// AttendanceService flips the agent in and out of meetings and owns the
// side effects: the capture loop on join, summary generation on leave.
type AttendanceService struct {
	store     store.Store
	capture   *capture.Manager
	summaries *SummaryService
	log       zerolog.Logger
	now       func() time.Time

	// loopCtx bounds capture loops to the process lifetime rather than
	// to the HTTP request that started them.
	loopCtx context.Context
}

// NewAttendanceService constructs an AttendanceService. loopCtx should be the
// process-lifetime context.
func NewAttendanceService(st store.Store, cm *capture.Manager, sm *SummaryService, loopCtx context.Context, log zerolog.Logger) *AttendanceService {
	if loopCtx == nil {
		loopCtx = context.Background()
	}
	return &AttendanceService{
		store:     st,
		capture:   cm,
		summaries: sm,
		log:       log,
		now:       time.Now,
		loopCtx:   loopCtx,
	}
}

// SetClock overrides the time source. Test hook.
func (s *AttendanceService) SetClock(now func() time.Time) { s.now = now }

// Join marks the agent as attending and starts chat capture. Valid from
// fifteen minutes before the start until the scheduled end. Joining a meeting
// the agent already attends is a no-op.
func (s *AttendanceService) Join(ctx context.Context, userID, meetingID string) error {
	m, err := s.store.Meetings().Get(ctx, userID, meetingID)
	if err != nil {
		return err
	}
	if m.Status == model.MeetingCancelled {
		return fmt.Errorf("meeting %s is cancelled: %w", meetingID, model.ErrConflict)
	}
	if m.AgentAttended {
		s.log.Debug().Str("meeting", meetingID).Msg("join requested but agent already attending")
		return nil
	}

	now := s.now()
	if now.Before(m.StartTime.Add(-earlyJoinWindow)) {
		return fmt.Errorf("meeting %s starts at %s: %w", meetingID, m.StartTime.Format(time.RFC3339), model.ErrNotYetJoinable)
	}
	if now.After(m.EndTime) {
		return fmt.Errorf("meeting %s ended at %s: %w", meetingID, m.EndTime.Format(time.RFC3339), model.ErrAlreadyEnded)
	}

	m.AgentAttended = true
	m.Status = model.MeetingInProgress
	m, err = s.store.Meetings().Update(ctx, m)
	if err != nil {
		return err
	}
	s.log.Info().Str("meeting", meetingID).Msg("agent joined meeting")

	if m.AgentConfig.CaptureChat && m.ChatID != "" {
		s.capture.Start(s.loopCtx, m)
	}
	return nil
}

// Leave stops capture, marks the meeting completed, and kicks off summary
// generation. Leaving a meeting the agent is not attending logs a warning
// and succeeds.
func (s *AttendanceService) Leave(ctx context.Context, userID, meetingID string) error {
	m, err := s.store.Meetings().Get(ctx, userID, meetingID)
	if err != nil {
		return err
	}
	if !m.AgentAttended {
		s.log.Warn().Str("meeting", meetingID).Msg("leave requested but agent not attending")
		return nil
	}

	s.capture.Stop(meetingID)

	m.AgentAttended = false
	m.Status = model.MeetingCompleted
	if _, err := s.store.Meetings().Update(ctx, m); err != nil {
		return err
	}
	s.log.Info().Str("meeting", meetingID).Msg("agent left meeting")

	if m.AgentConfig.CaptureChat {
		if _, err := s.summaries.Generate(ctx, userID, meetingID); err != nil {
			// the summary can be regenerated on demand
			s.log.Error().Err(err).Str("meeting", meetingID).Msg("summary generation failed")
		}
	}
	return nil
}

// Resume restarts capture loops for meetings the agent was attending when
// the process stopped. Called once at startup.
func (s *AttendanceService) Resume(ctx context.Context) error {
	meetings, err := s.store.Meetings().ListInProgress(ctx)
	if err != nil {
		return err
	}
	for _, m := range meetings {
		if m.EndTime.Before(s.now()) {
			continue // the scheduler's reconcile pass will leave it
		}
		if m.AgentConfig.CaptureChat && m.ChatID != "" {
			s.capture.Start(s.loopCtx, m)
		}
	}
	return nil
}
