package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/attendly/attendly/server/internal/model"
	"github.com/attendly/attendly/server/internal/store"
)

// Open opens a PostgreSQL connection using the pgx stdlib driver and verifies connectivity.
func Open(dsn string) (*sql.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres DSN is empty")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// NewWithDB constructs a native Postgres store backed directly by database/sql.
func NewWithDB(db *sql.DB) store.Store { return &pgStore{db: db} }

type pgStore struct{ db *sql.DB }

func (s *pgStore) Meetings() store.Meetings   { return &meetings{db: s.db} }
func (s *pgStore) Schedules() store.Schedules { return &schedules{db: s.db} }
func (s *pgStore) Messages() store.Messages   { return &messages{db: s.db} }
func (s *pgStore) Summaries() store.Summaries { return &summaries{db: s.db} }

// HealthPing implements health.HealthPinger for the Postgres-backed store.
func (s *pgStore) HealthPing(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Bootstrap performs a connectivity check to ensure Postgres is reachable.
// Schema setup is handled by deploy-time migrations.
func Bootstrap(ctx context.Context, dsn string) error {
	if dsn == "" {
		return nil
	}
	db, err := Open(dsn)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()
	return db.PingContext(ctx)
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

const meetingCols = `user_id, meeting_id, subject, start_time, end_time, attendees, status,
        event_id, join_url, chat_id, agent_attended, auto_join, capture_chat, post_insights,
        last_capture_time, creation_time, update_time`

func (m *meetings) Create(ctx context.Context, in *model.Meeting) (*model.Meeting, error) {
	out := *in
	if out.MeetingID == "" {
		out.MeetingID = uuid.New().String()
	}
	if out.Status == "" {
		out.Status = model.MeetingScheduled
	}
	row := m.db.QueryRowContext(ctx, `INSERT INTO meetings (user_id, meeting_id, subject,
        start_time, end_time, attendees, status, event_id, join_url, chat_id, agent_attended,
        auto_join, capture_chat, post_insights, last_capture_time)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
        RETURNING creation_time, update_time`,
		out.UserID, out.MeetingID, out.Subject, out.StartTime.UTC(), out.EndTime.UTC(),
		encodeList(out.Attendees), out.Status, out.EventID, out.JoinURL, out.ChatID,
		out.AgentAttended, out.AgentConfig.AutoJoin, out.AgentConfig.CaptureChat,
		out.AgentConfig.PostInsights, out.LastCaptureTime)
	if err := row.Scan(&out.CreationTime, &out.UpdateTime); err != nil {
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
	row := m.db.QueryRowContext(ctx, `SELECT `+meetingCols+` FROM meetings WHERE user_id=$1 AND meeting_id=$2`,
		userID, meetingID)
	out, err := scanMeeting(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("meeting %s: %w", meetingID, model.ErrNotFound)
	}
	return out, err
}

func (m *meetings) List(ctx context.Context, userID string) ([]*model.Meeting, error) {
	rows, err := m.db.QueryContext(ctx, `SELECT `+meetingCols+` FROM meetings WHERE user_id=$1 ORDER BY start_time DESC`, userID)
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
	row := m.db.QueryRowContext(ctx, `UPDATE meetings SET subject=$1, start_time=$2, end_time=$3,
        attendees=$4, status=$5, event_id=$6, join_url=$7, chat_id=$8, agent_attended=$9,
        auto_join=$10, capture_chat=$11, post_insights=$12, last_capture_time=$13, update_time=now()
        WHERE user_id=$14 AND meeting_id=$15
        RETURNING update_time`,
		out.Subject, out.StartTime.UTC(), out.EndTime.UTC(), encodeList(out.Attendees),
		out.Status, out.EventID, out.JoinURL, out.ChatID, out.AgentAttended,
		out.AgentConfig.AutoJoin, out.AgentConfig.CaptureChat, out.AgentConfig.PostInsights,
		out.LastCaptureTime, out.UserID, out.MeetingID)
	if err := row.Scan(&out.UpdateTime); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("meeting %s: %w", out.MeetingID, model.ErrNotFound)
		}
		return nil, err
	}
	return &out, nil
}

func (m *meetings) ListInProgress(ctx context.Context) ([]*model.Meeting, error) {
	rows, err := m.db.QueryContext(ctx, `SELECT `+meetingCols+` FROM meetings
        WHERE status=$1 AND agent_attended ORDER BY end_time ASC`, model.MeetingInProgress)
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

const scheduleCols = `schedule_id, meeting_id, user_id, join_at, status, reason,
        attempt_count, next_attempt_at, completed_at, creation_time`

func (s *schedules) Upsert(ctx context.Context, in *model.Schedule) (*model.Schedule, error) {
	out := *in
	if out.ScheduleID == "" {
		out.ScheduleID = model.ScheduleIDFor(out.MeetingID)
	}
	if out.Status == "" {
		out.Status = model.ScheduleScheduled
	}
	row := s.db.QueryRowContext(ctx, `INSERT INTO schedules (schedule_id, meeting_id, user_id,
        join_at, status, reason, attempt_count, next_attempt_at, completed_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
        ON CONFLICT (schedule_id) DO UPDATE SET
            join_at=EXCLUDED.join_at,
            status=EXCLUDED.status,
            reason='',
            attempt_count=0,
            next_attempt_at=NULL,
            completed_at=NULL
        RETURNING creation_time`,
		out.ScheduleID, out.MeetingID, out.UserID, out.JoinAt.UTC(), out.Status, out.Reason,
		out.AttemptCount, out.NextAttemptAt, out.CompletedAt)
	if err := row.Scan(&out.CreationTime); err != nil {
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
	row := s.db.QueryRowContext(ctx, `SELECT `+scheduleCols+` FROM schedules WHERE schedule_id=$1`, scheduleID)
	out, err := scanSchedule(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("schedule %s: %w", scheduleID, model.ErrNotFound)
	}
	return out, err
}

func (s *schedules) Update(ctx context.Context, in *model.Schedule) error {
	res, err := s.db.ExecContext(ctx, `UPDATE schedules SET join_at=$1, status=$2, reason=$3,
        attempt_count=$4, next_attempt_at=$5, completed_at=$6 WHERE schedule_id=$7`,
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
	rows, err := s.db.QueryContext(ctx, `SELECT `+scheduleCols+` FROM schedules
        WHERE status=$1 AND join_at<=$2 ORDER BY join_at ASC`,
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
	rows, err := s.db.QueryContext(ctx, `SELECT `+scheduleCols+` FROM schedules
        WHERE status=$1 AND reason=$2 ORDER BY completed_at DESC LIMIT $3`,
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
	res, err := s.db.ExecContext(ctx, `DELETE FROM schedules WHERE status IN ($1,$2) AND completed_at IS NOT NULL AND completed_at<$3`,
		model.ScheduleCompleted, model.ScheduleCancelled, cutoff.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// --- Messages ---

type messages struct{ db *sql.DB }

const messageCols = `message_id, meeting_id, source_id, sender, content, category, urgency, sentiment, sent_at, creation_time`

func (m *messages) Create(ctx context.Context, in *model.ChatMessage) (*model.ChatMessage, error) {
	out := *in
	if out.MessageID == "" {
		out.MessageID = uuid.New().String()
	}
	row := m.db.QueryRowContext(ctx, `INSERT INTO chat_messages (message_id, meeting_id,
        source_id, sender, content, category, urgency, sentiment, sent_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
        RETURNING creation_time`,
		out.MessageID, out.MeetingID, out.SourceID, out.Sender, out.Content,
		out.Category, out.Urgency, out.Sentiment, out.SentAt.UTC())
	if err := row.Scan(&out.CreationTime); err != nil {
		return nil, err
	}
	return &out, nil
}

func (m *messages) List(ctx context.Context, req model.ListMessagesRequest) ([]*model.ChatMessage, error) {
	q := `SELECT ` + messageCols + ` FROM chat_messages WHERE meeting_id=$1`
	args := []any{req.MeetingID}
	if req.After != nil {
		q += fmt.Sprintf(` AND sent_at>$%d`, len(args)+1)
		args = append(args, req.After.UTC())
	}
	q += ` ORDER BY sent_at ASC`
	if req.Limit > 0 {
		q += fmt.Sprintf(` LIMIT $%d`, len(args)+1)
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
	row := m.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM chat_messages WHERE meeting_id=$1 AND source_id=$2`,
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
	row := s.db.QueryRowContext(ctx, `INSERT INTO summaries (summary_id, meeting_id,
        executive_summary, key_points, decisions, action_items, open_questions,
        engagement, productivity, clarity, source)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
        RETURNING creation_time`,
		out.SummaryID, out.MeetingID, out.ExecutiveSummary,
		encodeList(out.KeyPoints), encodeList(out.Decisions), encodeList(out.ActionItems),
		encodeList(out.OpenQuestions), out.Scores.Engagement, out.Scores.Productivity,
		out.Scores.Clarity, out.Source)
	if err := row.Scan(&out.CreationTime); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *summaries) Latest(ctx context.Context, meetingID string) (*model.Summary, error) {
	row := s.db.QueryRowContext(ctx, `SELECT summary_id, meeting_id, executive_summary,
        key_points, decisions, action_items, open_questions, engagement, productivity,
        clarity, source, creation_time
        FROM summaries WHERE meeting_id=$1 ORDER BY creation_time DESC LIMIT 1`, meetingID)
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
