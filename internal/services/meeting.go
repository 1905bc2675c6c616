// Package services holds the business logic between the HTTP handlers and
// the store, Graph client, and insight provider.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/attendly/attendly/server/internal/graph"
	"github.com/attendly/attendly/server/internal/model"
	"github.com/attendly/attendly/server/internal/store"
)

// JoinScheduler is the slice of the scheduler the meeting service drives.
type JoinScheduler interface {
	Schedule(ctx context.Context, m *model.Meeting) (*model.Schedule, error)
	Cancel(ctx context.Context, meetingID string) error
}

// CaptureStatus reports whether a capture loop is running for a meeting.
type CaptureStatus interface {
	IsActive(meetingID string) bool
}

// CreateMeetingRequest carries the fields accepted when scheduling a meeting.
type CreateMeetingRequest struct {
	Subject     string            `json:"subject"`
	StartTime   time.Time         `json:"startTime"`
	EndTime     time.Time         `json:"endTime"`
	Attendees   []string          `json:"attendees"`
	Body        string            `json:"body,omitempty"`
	AgentConfig model.AgentConfig `json:"agentConfig"`
}

// UpdateMeetingRequest carries the mutable meeting fields. Nil means
// "leave unchanged".
type UpdateMeetingRequest struct {
	Subject     *string            `json:"subject,omitempty"`
	StartTime   *time.Time         `json:"startTime,omitempty"`
	EndTime     *time.Time         `json:"endTime,omitempty"`
	Attendees   []string           `json:"attendees,omitempty"`
	AgentConfig *model.AgentConfig `json:"agentConfig,omitempty"`
}

// MeetingStatus is the live view of one meeting.
type MeetingStatus struct {
	Meeting       *model.Meeting  `json:"meeting"`
	Schedule      *model.Schedule `json:"schedule,omitempty"`
	CaptureActive bool            `json:"captureActive"`
	MessageCount  int             `json:"messageCount"`
}

// MeetingService owns the meeting lifecycle: creation with conflict
// detection, Graph event management, updates, and soft cancellation.
type MeetingService struct {
	store     store.Store
	graph     graph.Client
	sched     JoinScheduler
	capture   CaptureStatus
	organizer string
	log       zerolog.Logger
	now       func() time.Time
}

// NewMeetingService constructs a MeetingService. organizer is the mailbox
// events are created under.
func NewMeetingService(st store.Store, g graph.Client, sched JoinScheduler, cap CaptureStatus, organizer string, log zerolog.Logger) *MeetingService {
	return &MeetingService{
		store:     st,
		graph:     g,
		sched:     sched,
		capture:   cap,
		organizer: organizer,
		log:       log,
		now:       time.Now,
	}
}

// SetClock overrides the time source. Test hook.
func (s *MeetingService) SetClock(now func() time.Time) { s.now = now }

// Create validates the request, checks attendee free-busy, creates the Graph
// event, persists the meeting, and registers auto-join when enabled.
func (s *MeetingService) Create(ctx context.Context, userID string, req *CreateMeetingRequest) (*model.Meeting, error) {
	if err := s.validateCreate(req); err != nil {
		return nil, err
	}

	if conflicts, err := s.findConflicts(ctx, req.Attendees, req.StartTime, req.EndTime); err != nil {
		s.log.Warn().Err(err).Msg("free-busy lookup failed, skipping conflict check")
	} else if len(conflicts) > 0 {
		return nil, fmt.Errorf("attendees busy: %s: %w", strings.Join(conflicts, ", "), model.ErrConflict)
	}

	event, err := s.graph.CreateEvent(ctx, s.organizer, &graph.EventRequest{
		Subject:   req.Subject,
		Start:     req.StartTime,
		End:       req.EndTime,
		Attendees: req.Attendees,
		Body:      req.Body,
	})
	if err != nil {
		return nil, fmt.Errorf("create calendar event: %w", err)
	}

	m := &model.Meeting{
		MeetingID:   uuid.NewString(),
		UserID:      userID,
		Subject:     req.Subject,
		StartTime:   req.StartTime.UTC(),
		EndTime:     req.EndTime.UTC(),
		Attendees:   req.Attendees,
		Status:      model.MeetingScheduled,
		EventID:     event.ID,
		JoinURL:     event.JoinURL,
		ChatID:      event.ChatID,
		AgentConfig: req.AgentConfig,
	}
	m, err = s.store.Meetings().Create(ctx, m)
	if err != nil {
		return nil, err
	}
	s.log.Info().Str("meeting", m.MeetingID).Str("subject", m.Subject).Msg("meeting created")

	if m.AgentConfig.AutoJoin {
		if _, err := s.sched.Schedule(ctx, m); err != nil {
			// the meeting exists either way; auto-join can be re-registered
			s.log.Error().Err(err).Str("meeting", m.MeetingID).Msg("auto-join registration failed")
		}
	}
	return m, nil
}

// Get returns one meeting.
func (s *MeetingService) Get(ctx context.Context, userID, meetingID string) (*model.Meeting, error) {
	return s.store.Meetings().Get(ctx, userID, meetingID)
}

// List returns the user's meetings, newest first.
func (s *MeetingService) List(ctx context.Context, userID string) ([]*model.Meeting, error) {
	return s.store.Meetings().List(ctx, userID)
}

// Update applies partial changes, pushes them to the Graph event, and
// re-registers auto-join when the start time moved.
func (s *MeetingService) Update(ctx context.Context, userID, meetingID string, req *UpdateMeetingRequest) (*model.Meeting, error) {
	m, err := s.store.Meetings().Get(ctx, userID, meetingID)
	if err != nil {
		return nil, err
	}
	if m.Status == model.MeetingCancelled || m.Status == model.MeetingCompleted {
		return nil, fmt.Errorf("meeting %s is %s: %w", meetingID, m.Status, model.ErrConflict)
	}

	timeChanged := false
	if req.Subject != nil {
		m.Subject = strings.TrimSpace(*req.Subject)
	}
	if req.StartTime != nil {
		m.StartTime = req.StartTime.UTC()
		timeChanged = true
	}
	if req.EndTime != nil {
		m.EndTime = req.EndTime.UTC()
		timeChanged = true
	}
	if req.Attendees != nil {
		m.Attendees = req.Attendees
	}
	if req.AgentConfig != nil {
		m.AgentConfig = *req.AgentConfig
	}

	if m.Subject == "" {
		return nil, fmt.Errorf("subject is required: %w", model.ErrValidation)
	}
	if !m.EndTime.After(m.StartTime) {
		return nil, fmt.Errorf("endTime must be after startTime: %w", model.ErrValidation)
	}
	if err := validateEmails(m.Attendees); err != nil {
		return nil, err
	}

	if m.EventID != "" {
		err := s.graph.UpdateEvent(ctx, s.organizer, m.EventID, &graph.EventRequest{
			Subject:   m.Subject,
			Start:     m.StartTime,
			End:       m.EndTime,
			Attendees: m.Attendees,
		})
		if err != nil {
			return nil, fmt.Errorf("update calendar event: %w", err)
		}
	}

	m, err = s.store.Meetings().Update(ctx, m)
	if err != nil {
		return nil, err
	}

	switch {
	case !m.AgentConfig.AutoJoin:
		if err := s.sched.Cancel(ctx, m.MeetingID); err != nil {
			s.log.Error().Err(err).Str("meeting", m.MeetingID).Msg("auto-join cancel failed")
		}
	case timeChanged || req.AgentConfig != nil:
		if _, err := s.sched.Schedule(ctx, m); err != nil {
			s.log.Error().Err(err).Str("meeting", m.MeetingID).Msg("auto-join re-registration failed")
		}
	}
	return m, nil
}

// Cancel soft-cancels the meeting, cancels the Graph event, and withdraws
// any pending auto-join. Cancelling a cancelled meeting is a no-op.
func (s *MeetingService) Cancel(ctx context.Context, userID, meetingID string) error {
	m, err := s.store.Meetings().Get(ctx, userID, meetingID)
	if err != nil {
		return err
	}
	if m.Status == model.MeetingCancelled {
		return nil
	}

	if m.EventID != "" {
		if err := s.graph.CancelEvent(ctx, s.organizer, m.EventID); err != nil {
			return fmt.Errorf("cancel calendar event: %w", err)
		}
	}

	m.Status = model.MeetingCancelled
	m.AgentAttended = false
	if _, err := s.store.Meetings().Update(ctx, m); err != nil {
		return err
	}
	if err := s.sched.Cancel(ctx, meetingID); err != nil {
		s.log.Error().Err(err).Str("meeting", meetingID).Msg("auto-join cancel failed")
	}
	s.log.Info().Str("meeting", meetingID).Msg("meeting cancelled")
	return nil
}

// Status assembles the live view: record, schedule state, capture activity,
// captured message count.
func (s *MeetingService) Status(ctx context.Context, userID, meetingID string) (*MeetingStatus, error) {
	m, err := s.store.Meetings().Get(ctx, userID, meetingID)
	if err != nil {
		return nil, err
	}
	st := &MeetingStatus{Meeting: m}

	if rec, err := s.store.Schedules().Get(ctx, model.ScheduleIDFor(meetingID)); err == nil {
		st.Schedule = rec
	} else if !errors.Is(err, model.ErrNotFound) {
		return nil, err
	}

	msgs, err := s.store.Messages().List(ctx, model.ListMessagesRequest{MeetingID: meetingID})
	if err != nil {
		return nil, err
	}
	st.MessageCount = len(msgs)
	if s.capture != nil {
		st.CaptureActive = s.capture.IsActive(meetingID)
	}
	return st, nil
}

// Messages lists captured chat messages for a meeting the user owns.
func (s *MeetingService) Messages(ctx context.Context, userID, meetingID string, req model.ListMessagesRequest) ([]*model.ChatMessage, error) {
	if _, err := s.store.Meetings().Get(ctx, userID, meetingID); err != nil {
		return nil, err
	}
	req.MeetingID = meetingID
	return s.store.Messages().List(ctx, req)
}

// SearchUsers proxies a directory search.
func (s *MeetingService) SearchUsers(ctx context.Context, query string) ([]graph.User, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("query is required: %w", model.ErrValidation)
	}
	return s.graph.SearchUsers(ctx, query)
}

// Availability returns per-attendee busy windows in [start, end].
func (s *MeetingService) Availability(ctx context.Context, attendees []string, start, end time.Time) ([]graph.Availability, error) {
	if len(attendees) == 0 {
		return nil, fmt.Errorf("attendees are required: %w", model.ErrValidation)
	}
	if !end.After(start) {
		return nil, fmt.Errorf("end must be after start: %w", model.ErrValidation)
	}
	if err := validateEmails(attendees); err != nil {
		return nil, err
	}
	return s.graph.GetSchedule(ctx, s.organizer, attendees, start, end)
}

func (s *MeetingService) validateCreate(req *CreateMeetingRequest) error {
	req.Subject = strings.TrimSpace(req.Subject)
	switch {
	case req.Subject == "":
		return fmt.Errorf("subject is required: %w", model.ErrValidation)
	case req.StartTime.IsZero() || req.EndTime.IsZero():
		return fmt.Errorf("startTime and endTime are required: %w", model.ErrValidation)
	case !req.EndTime.After(req.StartTime):
		return fmt.Errorf("endTime must be after startTime: %w", model.ErrValidation)
	case req.StartTime.Before(s.now()):
		return fmt.Errorf("startTime is in the past: %w", model.ErrValidation)
	case len(req.Attendees) == 0:
		return fmt.Errorf("at least one attendee is required: %w", model.ErrValidation)
	}
	return validateEmails(req.Attendees)
}

// findConflicts returns the attendees whose free-busy overlaps the window.
func (s *MeetingService) findConflicts(ctx context.Context, attendees []string, start, end time.Time) ([]string, error) {
	avail, err := s.graph.GetSchedule(ctx, s.organizer, attendees, start, end)
	if err != nil {
		return nil, err
	}
	var busy []string
	for _, a := range avail {
		for _, w := range a.Busy {
			if w.Start.Before(end) && w.End.After(start) {
				busy = append(busy, a.Email)
				break
			}
		}
	}
	return busy, nil
}

func validateEmails(addrs []string) error {
	for _, a := range addrs {
		at := strings.Index(a, "@")
		if at <= 0 || at == len(a)-1 || strings.ContainsAny(a, " \t") {
			return fmt.Errorf("invalid attendee email %q: %w", a, model.ErrValidation)
		}
	}
	return nil
}
