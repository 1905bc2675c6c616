package postgres

// DDL is the reference schema for the Postgres store. Deployments apply it
// through migrations; it is kept here so the driver and schema evolve together.
const DDL = `
CREATE TABLE IF NOT EXISTS meetings (
    user_id           TEXT NOT NULL,
    meeting_id        TEXT NOT NULL,
    subject           TEXT NOT NULL,
    start_time        TIMESTAMPTZ NOT NULL,
    end_time          TIMESTAMPTZ NOT NULL,
    attendees         TEXT NOT NULL DEFAULT '[]',
    status            TEXT NOT NULL,
    event_id          TEXT NOT NULL DEFAULT '',
    join_url          TEXT NOT NULL DEFAULT '',
    chat_id           TEXT NOT NULL DEFAULT '',
    agent_attended    BOOLEAN NOT NULL DEFAULT FALSE,
    auto_join         BOOLEAN NOT NULL DEFAULT FALSE,
    capture_chat      BOOLEAN NOT NULL DEFAULT FALSE,
    post_insights     BOOLEAN NOT NULL DEFAULT FALSE,
    last_capture_time TIMESTAMPTZ,
    creation_time     TIMESTAMPTZ NOT NULL DEFAULT now(),
    update_time       TIMESTAMPTZ NOT NULL DEFAULT now(),
    PRIMARY KEY (user_id, meeting_id)
);
CREATE INDEX IF NOT EXISTS meetings_status_idx ON meetings (status);

CREATE TABLE IF NOT EXISTS schedules (
    schedule_id     TEXT PRIMARY KEY,
    meeting_id      TEXT NOT NULL,
    user_id         TEXT NOT NULL,
    join_at         TIMESTAMPTZ NOT NULL,
    status          TEXT NOT NULL,
    reason          TEXT NOT NULL DEFAULT '',
    attempt_count   INTEGER NOT NULL DEFAULT 0,
    next_attempt_at TIMESTAMPTZ,
    completed_at    TIMESTAMPTZ,
    creation_time   TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS schedules_due_idx ON schedules (status, join_at);

CREATE TABLE IF NOT EXISTS chat_messages (
    message_id    TEXT PRIMARY KEY,
    meeting_id    TEXT NOT NULL,
    source_id     TEXT NOT NULL,
    sender        TEXT NOT NULL,
    content       TEXT NOT NULL,
    category      TEXT NOT NULL,
    urgency       TEXT NOT NULL,
    sentiment     TEXT NOT NULL,
    sent_at       TIMESTAMPTZ NOT NULL,
    creation_time TIMESTAMPTZ NOT NULL DEFAULT now(),
    UNIQUE (meeting_id, source_id)
);

CREATE TABLE IF NOT EXISTS summaries (
    summary_id        TEXT PRIMARY KEY,
    meeting_id        TEXT NOT NULL,
    executive_summary TEXT NOT NULL,
    key_points        TEXT NOT NULL DEFAULT '[]',
    decisions         TEXT NOT NULL DEFAULT '[]',
    action_items      TEXT NOT NULL DEFAULT '[]',
    open_questions    TEXT NOT NULL DEFAULT '[]',
    engagement        DOUBLE PRECISION NOT NULL,
    productivity      DOUBLE PRECISION NOT NULL,
    clarity           DOUBLE PRECISION NOT NULL,
    source            TEXT NOT NULL,
    creation_time     TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS summaries_meeting_idx ON summaries (meeting_id, creation_time);
`
