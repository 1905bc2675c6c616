// Package capture runs the per-meeting chat capture loops: poll the meeting
// chat, classify new messages, persist them, and post insight replies.
package capture

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/attendly/attendly/server/internal/graph"
	"github.com/attendly/attendly/server/internal/insight"
	"github.com/attendly/attendly/server/internal/insight/heuristic"
	"github.com/attendly/attendly/server/internal/model"
	"github.com/attendly/attendly/server/internal/store"
)

// recapEvery: a periodic recap is posted to the chat after this many
// captured messages.
const recapEvery = 20

// Manager owns all active capture loops. At most one loop runs per meeting;
// the map below is the in-process guard, and durable meeting state lets the
// scheduler rebuild loops after a restart.
type Manager struct {
	store    store.Store
	graph    graph.Client
	insight  insight.Provider
	log      zerolog.Logger
	interval time.Duration

	mu          sync.Mutex
	loops       map[string]context.CancelFunc
	sinceRecap  map[string]int
	loopsClosed sync.WaitGroup
}

// NewManager constructs a Manager.
func NewManager(st store.Store, g graph.Client, p insight.Provider, interval time.Duration, log zerolog.Logger) *Manager {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Manager{
		store:      st,
		graph:      g,
		insight:    p,
		log:        log,
		interval:   interval,
		loops:      make(map[string]context.CancelFunc),
		sinceRecap: make(map[string]int),
	}
}

// Start launches a capture loop for the meeting. A second call for the same
// meeting is a no-op while the first loop is alive.
func (m *Manager) Start(ctx context.Context, meeting *model.Meeting) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.loops[meeting.MeetingID]; ok {
		m.log.Debug().Str("meeting", meeting.MeetingID).Msg("capture loop already running")
		return
	}
	loopCtx, cancel := context.WithCancel(ctx)
	m.loops[meeting.MeetingID] = cancel
	m.loopsClosed.Add(1)
	go m.run(loopCtx, meeting.UserID, meeting.MeetingID)
	m.log.Info().Str("meeting", meeting.MeetingID).Dur("interval", m.interval).Msg("capture loop started")
}

// Stop cancels the meeting's capture loop if one is running.
func (m *Manager) Stop(meetingID string) {
	m.mu.Lock()
	cancel, ok := m.loops[meetingID]
	if ok {
		delete(m.loops, meetingID)
		delete(m.sinceRecap, meetingID)
	}
	m.mu.Unlock()
	if ok {
		cancel()
		m.log.Info().Str("meeting", meetingID).Msg("capture loop stopped")
	}
}

// IsActive reports whether a loop is running for the meeting.
func (m *Manager) IsActive(meetingID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.loops[meetingID]
	return ok
}

// Active returns the meeting ids with running loops, sorted.
func (m *Manager) Active() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.loops))
	for id := range m.loops {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Shutdown cancels every loop and waits for them to drain.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	for id, cancel := range m.loops {
		cancel()
		delete(m.loops, id)
	}
	m.mu.Unlock()
	m.loopsClosed.Wait()
}

func (m *Manager) run(ctx context.Context, userID, meetingID string) {
	defer m.loopsClosed.Done()
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := m.captureOnce(ctx, userID, meetingID); err != nil {
				// log and continue; the next tick retries from LastCaptureTime
				m.log.Error().Err(err).Str("meeting", meetingID).Msg("chat capture failed")
			}
		}
	}
}

// captureOnce fetches messages newer than the meeting's LastCaptureTime,
// classifies and persists them, and advances the watermark. Deduplication is
// two-layered: the watermark skips already-seen history, and the per-source-id
// check catches messages that share a timestamp with the watermark.
func (m *Manager) captureOnce(ctx context.Context, userID, meetingID string) error {
	meeting, err := m.store.Meetings().Get(ctx, userID, meetingID)
	if err != nil {
		return err
	}
	if meeting.ChatID == "" {
		return nil
	}

	since := meeting.CreationTime
	if meeting.LastCaptureTime != nil {
		since = *meeting.LastCaptureTime
	}

	msgs, err := m.graph.ListMessagesSince(ctx, meeting.ChatID, since)
	if err != nil {
		return err
	}
	if len(msgs) == 0 {
		return nil
	}

	captured := 0
	latest := since
	for _, msg := range msgs {
		seen, err := m.store.Messages().HasSource(ctx, meetingID, msg.ID)
		if err != nil {
			return err
		}
		if seen {
			continue
		}

		c, err := m.insight.Classify(ctx, msg.Sender, msg.Content)
		if err != nil {
			m.log.Warn().Err(err).Str("meeting", meetingID).Msg("classification failed, using keyword rules")
			c = heuristic.Classify(msg.Content)
		}

		rec := &model.ChatMessage{
			MeetingID: meetingID,
			SourceID:  msg.ID,
			Sender:    msg.Sender,
			Content:   msg.Content,
			Category:  c.Category,
			Urgency:   c.Urgency,
			Sentiment: c.Sentiment,
			SentAt:    msg.SentAt,
		}
		if _, err := m.store.Messages().Create(ctx, rec); err != nil {
			return err
		}
		captured++
		if msg.SentAt.After(latest) {
			latest = msg.SentAt
		}

		if c.Actionable && meeting.AgentConfig.PostInsights {
			if err := m.graph.PostMessage(ctx, meeting.ChatID, insightReply(c, msg)); err != nil {
				m.log.Warn().Err(err).Str("meeting", meetingID).Msg("insight post failed")
			}
		}
	}

	if captured == 0 {
		return nil
	}

	meeting.LastCaptureTime = &latest
	if _, err := m.store.Meetings().Update(ctx, meeting); err != nil {
		return err
	}

	if meeting.AgentConfig.PostInsights {
		m.mu.Lock()
		m.sinceRecap[meetingID] += captured
		recapDue := m.sinceRecap[meetingID] >= recapEvery
		if recapDue {
			m.sinceRecap[meetingID] = 0
		}
		m.mu.Unlock()
		if recapDue {
			if err := m.postRecap(ctx, meeting); err != nil {
				m.log.Warn().Err(err).Str("meeting", meetingID).Msg("recap post failed")
			}
		}
	}

	m.log.Debug().Str("meeting", meetingID).Int("captured", captured).Msg("chat messages captured")
	return nil
}

// postRecap posts a short in-chat recap of everything captured so far.
func (m *Manager) postRecap(ctx context.Context, meeting *model.Meeting) error {
	all, err := m.store.Messages().List(ctx, model.ListMessagesRequest{MeetingID: meeting.MeetingID})
	if err != nil {
		return err
	}
	var questions, actions, decisions int
	for _, msg := range all {
		switch msg.Category {
		case model.CategoryQuestion:
			questions++
		case model.CategoryActionItem:
			actions++
		case model.CategoryDecision:
			decisions++
		}
	}
	text := fmt.Sprintf("Recap so far: %d messages captured (%d questions, %d action items, %d decisions).",
		len(all), questions, actions, decisions)
	return m.graph.PostMessage(ctx, meeting.ChatID, text)
}

func insightReply(c insight.Classification, msg graph.Message) string {
	switch c.Category {
	case model.CategoryQuestion:
		return fmt.Sprintf("Noted an open question from %s; it will appear in the meeting summary.", msg.Sender)
	case model.CategoryActionItem:
		return fmt.Sprintf("Captured an action item from %s.", msg.Sender)
	case model.CategoryDecision:
		return fmt.Sprintf("Recorded a decision from %s.", msg.Sender)
	default:
		return fmt.Sprintf("Flagged an urgent note from %s.", msg.Sender)
	}
}
