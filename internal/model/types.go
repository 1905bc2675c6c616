package model

import "time"

// Meeting lifecycle statuses.
const (
	MeetingScheduled  = "scheduled"
	MeetingInProgress = "in_progress"
	MeetingCompleted  = "completed"
	MeetingCancelled  = "cancelled"
)

// Schedule record statuses.
const (
	ScheduleScheduled = "scheduled"
	ScheduleCompleted = "completed"
	ScheduleCancelled = "cancelled"
)

// Terminal completion reasons for a schedule record.
const (
	ReasonJoined          = "joined"
	ReasonMissed          = "missed"
	ReasonError           = "error"
	ReasonAlreadyJoined   = "already_joined"
	ReasonMeetingNotFound = "meeting_not_found"
)

// Chat message categories assigned by the insight provider.
const (
	CategoryQuestion   = "question"
	CategoryActionItem = "action_item"
	CategoryDecision   = "decision"
	CategoryDiscussion = "discussion"
)

// AgentConfig holds the per-meeting agent toggles.
type AgentConfig struct {
	AutoJoin     bool `json:"autoJoin"`
	CaptureChat  bool `json:"captureChat"`
	PostInsights bool `json:"postInsights"`
}

// Meeting is the persisted record of a scheduled Teams meeting.
// Records are soft-cancelled, never deleted.
type Meeting struct {
	MeetingID       string      `json:"meetingId"`
	UserID          string      `json:"userId"`
	Subject         string      `json:"subject"`
	StartTime       time.Time   `json:"startTime"`
	EndTime         time.Time   `json:"endTime"`
	Attendees       []string    `json:"attendees"`
	Status          string      `json:"status"`
	EventID         string      `json:"eventId,omitempty"`
	JoinURL         string      `json:"joinUrl,omitempty"`
	ChatID          string      `json:"chatId,omitempty"`
	AgentAttended   bool        `json:"agentAttended"`
	AgentConfig     AgentConfig `json:"agentConfig"`
	LastCaptureTime *time.Time  `json:"lastCaptureTime,omitempty"`
	CreationTime    time.Time   `json:"creationTime"`
	UpdateTime      time.Time   `json:"updateTime"`
}

// Schedule is a persisted intent to auto-join a meeting at JoinAt.
// The identifier is derived from the meeting id, so scheduling the
// same meeting twice updates one record instead of arming two timers.
type Schedule struct {
	ScheduleID    string     `json:"scheduleId"`
	MeetingID     string     `json:"meetingId"`
	UserID        string     `json:"userId"`
	JoinAt        time.Time  `json:"joinAt"`
	Status        string     `json:"status"`
	Reason        string     `json:"reason,omitempty"`
	AttemptCount  int        `json:"attemptCount"`
	NextAttemptAt *time.Time `json:"nextAttemptAt,omitempty"`
	CompletedAt   *time.Time `json:"completedAt,omitempty"`
	CreationTime  time.Time  `json:"creationTime"`
}

// ScheduleIDFor derives the schedule identifier for a meeting.
func ScheduleIDFor(meetingID string) string { return "sched-" + meetingID }

// ChatMessage is an immutable captured chat message with derived tags.
type ChatMessage struct {
	MessageID    string    `json:"messageId"`
	MeetingID    string    `json:"meetingId"`
	SourceID     string    `json:"sourceId"`
	Sender       string    `json:"sender"`
	Content      string    `json:"content"`
	Category     string    `json:"category"`
	Urgency      string    `json:"urgency"`
	Sentiment    string    `json:"sentiment"`
	SentAt       time.Time `json:"sentAt"`
	CreationTime time.Time `json:"creationTime"`
}

// QualityScores are heuristic per-summary scores in [0,1].
type QualityScores struct {
	Engagement   float64 `json:"engagement"`
	Productivity float64 `json:"productivity"`
	Clarity      float64 `json:"clarity"`
}

// Summary is a generated meeting summary. Regeneration appends a new
// record; the most recent one wins.
type Summary struct {
	SummaryID        string        `json:"summaryId"`
	MeetingID        string        `json:"meetingId"`
	ExecutiveSummary string        `json:"executiveSummary"`
	KeyPoints        []string      `json:"keyPoints"`
	Decisions        []string      `json:"decisions"`
	ActionItems      []string      `json:"actionItems"`
	OpenQuestions    []string      `json:"openQuestions"`
	Scores           QualityScores `json:"scores"`
	Source           string        `json:"source"`
	CreationTime     time.Time     `json:"creationTime"`
}

// ListMessagesRequest captures filters used when listing chat messages.
type ListMessagesRequest struct {
	MeetingID string
	Limit     int
	After     *time.Time
}
