package services

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/attendly/attendly/server/internal/insight"
	"github.com/attendly/attendly/server/internal/insight/heuristic"
	"github.com/attendly/attendly/server/internal/model"
	"github.com/attendly/attendly/server/internal/store"
)

// SummaryService generates and serves meeting summaries. The configured
// provider is tried first; any failure falls back to the templated draft so
// a summary is always produced.
type SummaryService struct {
	store    store.Store
	provider insight.Provider
	log      zerolog.Logger
}

// NewSummaryService constructs a SummaryService.
func NewSummaryService(st store.Store, p insight.Provider, log zerolog.Logger) *SummaryService {
	return &SummaryService{store: st, provider: p, log: log}
}

// Generate builds a summary from the captured messages and appends it.
// Regeneration is the same call; Latest always returns the newest record.
func (s *SummaryService) Generate(ctx context.Context, userID, meetingID string) (*model.Summary, error) {
	m, err := s.store.Meetings().Get(ctx, userID, meetingID)
	if err != nil {
		return nil, err
	}
	msgs, err := s.store.Messages().List(ctx, model.ListMessagesRequest{MeetingID: meetingID})
	if err != nil {
		return nil, err
	}

	draft, source := s.draft(ctx, m.Subject, msgs)

	sum := &model.Summary{
		SummaryID:        uuid.NewString(),
		MeetingID:        meetingID,
		ExecutiveSummary: draft.ExecutiveSummary,
		KeyPoints:        orEmpty(draft.KeyPoints),
		Decisions:        orEmpty(draft.Decisions),
		ActionItems:      orEmpty(draft.ActionItems),
		OpenQuestions:    orEmpty(draft.OpenQuestions),
		Scores:           computeScores(m, msgs),
		Source:           source,
	}
	sum, err = s.store.Summaries().Create(ctx, sum)
	if err != nil {
		return nil, err
	}
	s.log.Info().Str("meeting", meetingID).Str("source", source).Int("messages", len(msgs)).Msg("summary generated")
	return sum, nil
}

// Latest returns the newest summary for a meeting the user owns.
func (s *SummaryService) Latest(ctx context.Context, userID, meetingID string) (*model.Summary, error) {
	if _, err := s.store.Meetings().Get(ctx, userID, meetingID); err != nil {
		return nil, err
	}
	return s.store.Summaries().Latest(ctx, meetingID)
}

// draft picks the provider draft when it succeeds, the templated draft
// otherwise. An empty transcript always takes the template: there is nothing
// for a generative model to add.
func (s *SummaryService) draft(ctx context.Context, subject string, msgs []*model.ChatMessage) (*insight.Draft, string) {
	if len(msgs) == 0 {
		return heuristic.BuildDraft(subject, msgs), "template"
	}
	d, err := s.provider.Summarize(ctx, subject, msgs)
	if err != nil {
		s.log.Warn().Err(err).Str("provider", s.provider.Name()).Msg("provider summary failed, using template")
		return heuristic.BuildDraft(subject, msgs), "template"
	}
	return d, s.provider.Name()
}

// computeScores derives rough quality scores from the transcript shape:
// engagement from message rate, productivity from the share of decisions and
// action items, clarity from the share of unresolved questions.
func computeScores(m *model.Meeting, msgs []*model.ChatMessage) model.QualityScores {
	if len(msgs) == 0 {
		return model.QualityScores{}
	}

	var questions, actions, decisions int
	for _, msg := range msgs {
		switch msg.Category {
		case model.CategoryQuestion:
			questions++
		case model.CategoryActionItem:
			actions++
		case model.CategoryDecision:
			decisions++
		}
	}

	minutes := m.EndTime.Sub(m.StartTime).Minutes()
	if minutes < 1 {
		minutes = 1
	}
	total := float64(len(msgs))

	return model.QualityScores{
		Engagement:   clamp01(total / minutes / 2),
		Productivity: clamp01(float64(2*decisions+actions) / total * 2),
		Clarity:      clamp01(1 - float64(questions)/total),
	}
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
