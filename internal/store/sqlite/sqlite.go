package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/attendly/attendly/server/internal/model"
	"github.com/attendly/attendly/server/internal/store"
)

// Open opens (or creates) a SQLite database at the given path and enables
// WAL journal mode. Pass ":memory:" for an in-memory database (tests).
func Open(path string) (*sql.DB, error) {
	dsn := "file::memory:?_pragma=foreign_keys(ON)"
	inMemory := path == ":memory:"
	if !inMemory {
		// ensure parent directory exists to avoid SQLITE_CANTOPEN errors
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
		dsn = fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)", path)
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if inMemory {
		// each pooled connection would otherwise see its own empty database
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// EnsureSchema creates the tables if they do not exist.
func EnsureSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS Meetings (
            UserId TEXT NOT NULL,
            MeetingId TEXT NOT NULL,
            Subject TEXT NOT NULL,
            StartTime TIMESTAMP NOT NULL,
            EndTime TIMESTAMP NOT NULL,
            Attendees TEXT NOT NULL,
            Status TEXT NOT NULL,
            EventId TEXT,
            JoinUrl TEXT,
            ChatId TEXT,
            AgentAttended BOOLEAN NOT NULL DEFAULT 0,
            AutoJoin BOOLEAN NOT NULL DEFAULT 0,
            CaptureChat BOOLEAN NOT NULL DEFAULT 0,
            PostInsights BOOLEAN NOT NULL DEFAULT 0,
            LastCaptureTime TIMESTAMP,
            CreationTime TIMESTAMP NOT NULL,
            UpdateTime TIMESTAMP NOT NULL,
            PRIMARY KEY(UserId, MeetingId)
        );`,
		`CREATE INDEX IF NOT EXISTS Meetings_Status_Idx ON Meetings(Status);`,
		`CREATE TABLE IF NOT EXISTS Schedules (
            ScheduleId TEXT PRIMARY KEY,
            MeetingId TEXT NOT NULL,
            UserId TEXT NOT NULL,
            JoinAt TIMESTAMP NOT NULL,
            Status TEXT NOT NULL,
            Reason TEXT NOT NULL DEFAULT '',
            AttemptCount INTEGER NOT NULL DEFAULT 0,
            NextAttemptAt TIMESTAMP,
            CompletedAt TIMESTAMP,
            CreationTime TIMESTAMP NOT NULL
        );`,
		`CREATE INDEX IF NOT EXISTS Schedules_Due_Idx ON Schedules(Status, JoinAt);`,
		`CREATE TABLE IF NOT EXISTS ChatMessages (
            MessageId TEXT PRIMARY KEY,
            MeetingId TEXT NOT NULL,
            SourceId TEXT NOT NULL,
            Sender TEXT NOT NULL,
            Content TEXT NOT NULL,
            Category TEXT NOT NULL,
            Urgency TEXT NOT NULL,
            Sentiment TEXT NOT NULL,
            SentAt TIMESTAMP NOT NULL,
            CreationTime TIMESTAMP NOT NULL,
            UNIQUE(MeetingId, SourceId)
        );`,
		`CREATE TABLE IF NOT EXISTS Summaries (
            SummaryId TEXT PRIMARY KEY,
            MeetingId TEXT NOT NULL,
            ExecutiveSummary TEXT NOT NULL,
            KeyPoints TEXT NOT NULL,
            Decisions TEXT NOT NULL,
            ActionItems TEXT NOT NULL,
            OpenQuestions TEXT NOT NULL,
            Engagement REAL NOT NULL,
            Productivity REAL NOT NULL,
            Clarity REAL NOT NULL,
            Source TEXT NOT NULL,
            CreationTime TIMESTAMP NOT NULL
        );`,
		`CREATE INDEX IF NOT EXISTS Summaries_Meeting_Idx ON Summaries(MeetingId, CreationTime);`,
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// NewWithDB constructs a SQLite-backed store.
func NewWithDB(db *sql.DB) store.Store { return &sqStore{db: db} }

type sqStore struct{ db *sql.DB }

func (s *sqStore) Meetings() store.Meetings   { return &meetings{db: s.db} }
func (s *sqStore) Schedules() store.Schedules { return &schedules{db: s.db} }
func (s *sqStore) Messages() store.Messages   { return &messages{db: s.db} }
func (s *sqStore) Summaries() store.Summaries { return &summaries{db: s.db} }

// HealthPing implements health.HealthPinger.
func (s *sqStore) HealthPing(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func encodeList(v []string) string {
	if v == nil {
		v = []string{}
	}
	b, _ := json.Marshal(v)
	return string(b)
}

func decodeList(raw string) []string {
	var out []string
	if raw == "" {
		return []string{}
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return []string{}
	}
	return out
}

// --- Meetings ---

type meetings struct{ db *sql.DB }

const meetingCols = `UserId, MeetingId, Subject, StartTime, EndTime, Attendees, Status,
        EventId, JoinUrl, ChatId, AgentAttended, AutoJoin, CaptureChat, PostInsights,
        LastCaptureTime, CreationTime, UpdateTime`

func (m *meetings) Create(ctx context.Context, in *model.Meeting) (*model.Meeting, error) {
	out := *in
	if out.MeetingID == "" {
		out.MeetingID = uuid.New().String()
	}
	now := time.Now().UTC()
	out.CreationTime = now
	out.UpdateTime = now
	if out.Status == "" {
		out.Status = model.MeetingScheduled
	}
	_, err := m.db.ExecContext(ctx, `INSERT INTO Meetings (`+meetingCols+`)
        VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		out.UserID, out.MeetingID, out.Subject, out.StartTime.UTC(), out.EndTime.UTC(),
		encodeList(out.Attendees), out.Status, out.EventID, out.JoinURL, out.ChatID,
		out.AgentAttended, out.AgentConfig.AutoJoin, out.AgentConfig.CaptureChat,
		out.AgentConfig.PostInsights, out.LastCaptureTime, out.CreationTime, out.UpdateTime)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func scanMeeting(scan func(dest ...any) error) (*model.Meeting, error) {
	var out model.Meeting
	var attendees string
	var last *time.Time
	err := scan(&out.UserID, &out.MeetingID, &out.Subject, &out.StartTime, &out.EndTime,
		&attendees, &out.Status, &out.EventID, &out.JoinURL, &out.ChatID,
		&out.AgentAttended, &out.AgentConfig.AutoJoin, &out.AgentConfig.CaptureChat,
		&out.AgentConfig.PostInsights, &last, &out.CreationTime, &out.UpdateTime)
	if err != nil {
		return nil, err
	}
	out.Attendees = decodeList(attendees)
	out.LastCaptureTime = last
	return &out, nil
}

func (m *meetings) Get(ctx context.Context, userID, meetingID string) (*model.Meeting, error) {
	row := m.db.QueryRowContext(ctx, `SELECT `+meetingCols+` FROM Meetings WHERE UserId=? AND MeetingId=?`,
		userID, meetingID)
	out, err := scanMeeting(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("meeting %s: %w", meetingID, model.ErrNotFound)
	}
	return out, err
}

func (m *meetings) List(ctx context.Context, userID string) ([]*model.Meeting, error) {
	rows, err := m.db.QueryContext(ctx, `SELECT `+meetingCols+` FROM Meetings WHERE UserId=? ORDER BY StartTime DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Meeting
	for rows.Next() {
		mt, err := scanMeeting(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, mt)
	}
	return out, rows.Err()
}

func (m *meetings) Update(ctx context.Context, in *model.Meeting) (*model.Meeting, error) {
	out := *in
	out.UpdateTime = time.Now().UTC()
	res, err := m.db.ExecContext(ctx, `UPDATE Meetings SET Subject=?, StartTime=?, EndTime=?,
        Attendees=?, Status=?, EventId=?, JoinUrl=?, ChatId=?, AgentAttended=?,
        AutoJoin=?, CaptureChat=?, PostInsights=?, LastCaptureTime=?, UpdateTime=?
        WHERE UserId=? AND MeetingId=?`,
		out.Subject, out.StartTime.UTC(), out.EndTime.UTC(), encodeList(out.Attendees),
		out.Status, out.EventID, out.JoinURL, out.ChatID, out.AgentAttended,
		out.AgentConfig.AutoJoin, out.AgentConfig.CaptureChat, out.AgentConfig.PostInsights,
		out.LastCaptureTime, out.UpdateTime, out.UserID, out.MeetingID)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("meeting %s: %w", out.MeetingID, model.ErrNotFound)
	}
	return &out, nil
}

func (m *meetings) ListInProgress(ctx context.Context) ([]*model.Meeting, error) {
	rows, err := m.db.QueryContext(ctx, `SELECT `+meetingCols+` FROM Meetings
        WHERE Status=? AND AgentAttended=1 ORDER BY EndTime ASC`, model.MeetingInProgress)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Meeting
	for rows.Next() {
		mt, err := scanMeeting(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, mt)
	}
	return out, rows.Err()
}

// --- Schedules ---

type schedules struct{ db *sql.DB }

const scheduleCols = `ScheduleId, MeetingId, UserId, JoinAt, Status, Reason,
        AttemptCount, NextAttemptAt, CompletedAt, CreationTime`

func (s *schedules) Upsert(ctx context.Context, in *model.Schedule) (*model.Schedule, error) {
	out := *in
	if out.ScheduleID == "" {
		out.ScheduleID = model.ScheduleIDFor(out.MeetingID)
	}
	if out.Status == "" {
		out.Status = model.ScheduleScheduled
	}
	out.CreationTime = time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `INSERT INTO Schedules (`+scheduleCols+`)
        VALUES (?,?,?,?,?,?,?,?,?,?)
        ON CONFLICT(ScheduleId) DO UPDATE SET
            JoinAt=excluded.JoinAt,
            Status=excluded.Status,
            Reason='',
            AttemptCount=0,
            NextAttemptAt=NULL,
            CompletedAt=NULL`,
		out.ScheduleID, out.MeetingID, out.UserID, out.JoinAt.UTC(), out.Status, out.Reason,
		out.AttemptCount, out.NextAttemptAt, out.CompletedAt, out.CreationTime)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func scanSchedule(scan func(dest ...any) error) (*model.Schedule, error) {
	var out model.Schedule
	var next, completed *time.Time
	err := scan(&out.ScheduleID, &out.MeetingID, &out.UserID, &out.JoinAt, &out.Status,
		&out.Reason, &out.AttemptCount, &next, &completed, &out.CreationTime)
	if err != nil {
		return nil, err
	}
	out.NextAttemptAt = next
	out.CompletedAt = completed
	return &out, nil
}

func (s *schedules) Get(ctx context.Context, scheduleID string) (*model.Schedule, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+scheduleCols+` FROM Schedules WHERE ScheduleId=?`, scheduleID)
	out, err := scanSchedule(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("schedule %s: %w", scheduleID, model.ErrNotFound)
	}
	return out, err
}

func (s *schedules) Update(ctx context.Context, in *model.Schedule) error {
	res, err := s.db.ExecContext(ctx, `UPDATE Schedules SET JoinAt=?, Status=?, Reason=?,
        AttemptCount=?, NextAttemptAt=?, CompletedAt=? WHERE ScheduleId=?`,
		in.JoinAt.UTC(), in.Status, in.Reason, in.AttemptCount, in.NextAttemptAt,
		in.CompletedAt, in.ScheduleID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("schedule %s: %w", in.ScheduleID, model.ErrNotFound)
	}
	return nil
}

func (s *schedules) ListDue(ctx context.Context, to time.Time) ([]*model.Schedule, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+scheduleCols+` FROM Schedules
        WHERE Status=? AND JoinAt<=? ORDER BY JoinAt ASC`,
		model.ScheduleScheduled, to.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Schedule
	for rows.Next() {
		rec, err := scanSchedule(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *schedules) ListFailures(ctx context.Context, limit int) ([]*model.Schedule, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+scheduleCols+` FROM Schedules
        WHERE Status=? AND Reason=? ORDER BY CompletedAt DESC LIMIT ?`,
		model.ScheduleCompleted, model.ReasonError, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Schedule
	for rows.Next() {
		rec, err := scanSchedule(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *schedules) PurgeCompletedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM Schedules WHERE Status IN (?,?) AND CompletedAt IS NOT NULL AND CompletedAt<?`,
		model.ScheduleCompleted, model.ScheduleCancelled, cutoff.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// --- Messages ---

type messages struct{ db *sql.DB }

const messageCols = `MessageId, MeetingId, SourceId, Sender, Content, Category, Urgency, Sentiment, SentAt, CreationTime`

func (m *messages) Create(ctx context.Context, in *model.ChatMessage) (*model.ChatMessage, error) {
	out := *in
	if out.MessageID == "" {
		out.MessageID = uuid.New().String()
	}
	out.CreationTime = time.Now().UTC()
	_, err := m.db.ExecContext(ctx, `INSERT INTO ChatMessages (`+messageCols+`) VALUES (?,?,?,?,?,?,?,?,?,?)`,
		out.MessageID, out.MeetingID, out.SourceID, out.Sender, out.Content,
		out.Category, out.Urgency, out.Sentiment, out.SentAt.UTC(), out.CreationTime)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (m *messages) List(ctx context.Context, req model.ListMessagesRequest) ([]*model.ChatMessage, error) {
	q := `SELECT ` + messageCols + ` FROM ChatMessages WHERE MeetingId=?`
	args := []any{req.MeetingID}
	if req.After != nil {
		q += ` AND SentAt>?`
		args = append(args, req.After.UTC())
	}
	q += ` ORDER BY SentAt ASC`
	if req.Limit > 0 {
		q += ` LIMIT ?`
		args = append(args, req.Limit)
	}
	rows, err := m.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.ChatMessage
	for rows.Next() {
		var msg model.ChatMessage
		if err := rows.Scan(&msg.MessageID, &msg.MeetingID, &msg.SourceID, &msg.Sender,
			&msg.Content, &msg.Category, &msg.Urgency, &msg.Sentiment, &msg.SentAt,
			&msg.CreationTime); err != nil {
			return nil, err
		}
		out = append(out, &msg)
	}
	return out, rows.Err()
}

func (m *messages) HasSource(ctx context.Context, meetingID, sourceID string) (bool, error) {
	var n int
	row := m.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM ChatMessages WHERE MeetingId=? AND SourceId=?`,
		meetingID, sourceID)
	if err := row.Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

// --- Summaries ---

type summaries struct{ db *sql.DB }

func (s *summaries) Create(ctx context.Context, in *model.Summary) (*model.Summary, error) {
	out := *in
	if out.SummaryID == "" {
		out.SummaryID = uuid.New().String()
	}
	out.CreationTime = time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `INSERT INTO Summaries (SummaryId, MeetingId, ExecutiveSummary,
        KeyPoints, Decisions, ActionItems, OpenQuestions, Engagement, Productivity, Clarity, Source, CreationTime)
        VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		out.SummaryID, out.MeetingID, out.ExecutiveSummary,
		encodeList(out.KeyPoints), encodeList(out.Decisions), encodeList(out.ActionItems),
		encodeList(out.OpenQuestions), out.Scores.Engagement, out.Scores.Productivity,
		out.Scores.Clarity, out.Source, out.CreationTime)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *summaries) Latest(ctx context.Context, meetingID string) (*model.Summary, error) {
	row := s.db.QueryRowContext(ctx, `SELECT SummaryId, MeetingId, ExecutiveSummary, KeyPoints,
        Decisions, ActionItems, OpenQuestions, Engagement, Productivity, Clarity, Source, CreationTime
        FROM Summaries WHERE MeetingId=? ORDER BY CreationTime DESC LIMIT 1`, meetingID)
	var out model.Summary
	var keyPoints, decisions, actions, questions string
	err := row.Scan(&out.SummaryID, &out.MeetingID, &out.ExecutiveSummary, &keyPoints,
		&decisions, &actions, &questions, &out.Scores.Engagement, &out.Scores.Productivity,
		&out.Scores.Clarity, &out.Source, &out.CreationTime)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("summary for meeting %s: %w", meetingID, model.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	out.KeyPoints = decodeList(keyPoints)
	out.Decisions = decodeList(decisions)
	out.ActionItems = decodeList(actions)
	out.OpenQuestions = decodeList(questions)
	return &out, nil
}
