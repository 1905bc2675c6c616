package store

import (
	"context"
	"time"

	"github.com/attendly/attendly/server/internal/model"
)

// Store exposes persistence operations required by services.
// Implementations live under internal/store/<driver>/ (postgres, sqlite).
type Store interface {
	Meetings() Meetings
	Schedules() Schedules
	Messages() Messages
	Summaries() Summaries
}

type Meetings interface {
	Create(ctx context.Context, m *model.Meeting) (*model.Meeting, error)
	Get(ctx context.Context, userID, meetingID string) (*model.Meeting, error)
	List(ctx context.Context, userID string) ([]*model.Meeting, error)
	Update(ctx context.Context, m *model.Meeting) (*model.Meeting, error)
	// ListInProgress returns meetings the agent is currently attending,
	// across all users. Used by the startup reconciliation pass.
	ListInProgress(ctx context.Context) ([]*model.Meeting, error)
}

type Schedules interface {
	// Upsert inserts the record or, when a record with the same
	// schedule id exists, overwrites its join time and resets status.
	Upsert(ctx context.Context, s *model.Schedule) (*model.Schedule, error)
	Get(ctx context.Context, scheduleID string) (*model.Schedule, error)
	Update(ctx context.Context, s *model.Schedule) error
	// ListDue returns records with status 'scheduled' whose join time is
	// at or before to. Records that became due while the service was down
	// are included so they can be resolved instead of pending forever.
	ListDue(ctx context.Context, to time.Time) ([]*model.Schedule, error)
	// ListFailures returns completed records with reason 'error',
	// most recent first.
	ListFailures(ctx context.Context, limit int) ([]*model.Schedule, error)
	// PurgeCompletedBefore deletes completed records whose completion
	// time is older than cutoff. Returns the number of rows removed.
	PurgeCompletedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type Messages interface {
	Create(ctx context.Context, m *model.ChatMessage) (*model.ChatMessage, error)
	List(ctx context.Context, req model.ListMessagesRequest) ([]*model.ChatMessage, error)
	// HasSource reports whether a message with the given Graph source id
	// was already captured for the meeting.
	HasSource(ctx context.Context, meetingID, sourceID string) (bool, error)
}

type Summaries interface {
	Create(ctx context.Context, s *model.Summary) (*model.Summary, error)
	// Latest returns the most recent summary for the meeting, or
	// model.ErrNotFound when none has been generated yet.
	Latest(ctx context.Context, meetingID string) (*model.Summary, error)
}
