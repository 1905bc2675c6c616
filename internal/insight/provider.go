// Package insight classifies captured chat messages and drafts meeting
// summaries, either with keyword heuristics or a generative-AI API.
package insight

import (
	"context"

	"github.com/attendly/attendly/server/internal/model"
)

// Classification carries the derived tags for a single chat message.
type Classification struct {
	Category   string
	Urgency    string
	Sentiment  string
	Actionable bool
}

// Draft is a generated summary before persistence.
type Draft struct {
	ExecutiveSummary string   `json:"executiveSummary"`
	KeyPoints        []string `json:"keyPoints"`
	Decisions        []string `json:"decisions"`
	ActionItems      []string `json:"actionItems"`
	OpenQuestions    []string `json:"openQuestions"`
}

// Provider produces classifications and summary drafts.
type Provider interface {
	// Name identifies the provider; it is recorded as the summary source.
	Name() string
	Classify(ctx context.Context, sender, content string) (Classification, error)
	Summarize(ctx context.Context, subject string, msgs []*model.ChatMessage) (*Draft, error)
}
