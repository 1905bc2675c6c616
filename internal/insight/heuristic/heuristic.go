// Package heuristic tags chat messages with keyword rules and builds
// templated summary drafts. It is the default insight provider and the
// fallback when the generative API is unavailable.
package heuristic

import (
	"context"
	"fmt"
	"strings"

	"github.com/attendly/attendly/server/internal/insight"
	"github.com/attendly/attendly/server/internal/model"
)

var (
	questionStarters = []string{"who ", "what ", "when ", "where ", "why ", "how ", "can ", "could ", "should ", "would ", "is ", "are ", "do ", "does "}

	actionPhrases = []string{"action item", "todo", "to do", "follow up", "follow-up", "i'll take", "i will take", "will handle", "take care of", "assigned to", "due by", "by end of", "need to", "let's schedule"}

	decisionPhrases = []string{"decided", "decision", "we agreed", "agreed to", "approved", "go with", "final call", "conclusion", "signed off"}

	urgentPhrases = []string{"urgent", "asap", "immediately", "critical", "blocker", "right away", "before today", "high priority"}

	positiveWords = []string{"great", "good", "thanks", "thank you", "awesome", "excellent", "nice", "love", "agree", "perfect"}

	negativeWords = []string{"problem", "issue", "concern", "fail", "wrong", "blocked", "disagree", "worried", "bad", "broken", "delay"}
)

// Provider implements insight.Provider with pure keyword rules.
type Provider struct{}

func New() *Provider { return &Provider{} }

// Name returns "template": summaries from this provider are the templated
// fallback shape, never model-generated narrative.
func (p *Provider) Name() string { return "template" }

func (p *Provider) Classify(ctx context.Context, sender, content string) (insight.Classification, error) {
	return Classify(content), nil
}

// Classify tags a message by substring match. It never fails, which makes it
// a safe fallback when a remote provider errors.
func Classify(content string) insight.Classification {
	lower := strings.ToLower(strings.TrimSpace(content))

	c := insight.Classification{
		Category:  model.CategoryDiscussion,
		Urgency:   "normal",
		Sentiment: "neutral",
	}

	switch {
	case containsAny(lower, decisionPhrases):
		c.Category = model.CategoryDecision
	case containsAny(lower, actionPhrases):
		c.Category = model.CategoryActionItem
	case strings.Contains(lower, "?") || hasAnyPrefix(lower, questionStarters):
		c.Category = model.CategoryQuestion
	}

	if containsAny(lower, urgentPhrases) {
		c.Urgency = "high"
	}

	pos := countAny(lower, positiveWords)
	neg := countAny(lower, negativeWords)
	switch {
	case pos > neg:
		c.Sentiment = "positive"
	case neg > pos:
		c.Sentiment = "negative"
	}

	c.Actionable = c.Category == model.CategoryQuestion ||
		c.Category == model.CategoryActionItem ||
		c.Urgency == "high"
	return c
}

func (p *Provider) Summarize(ctx context.Context, subject string, msgs []*model.ChatMessage) (*insight.Draft, error) {
	return BuildDraft(subject, msgs), nil
}

// BuildDraft assembles an extractive, templated draft from the captured
// messages: category buckets become the summary sections.
func BuildDraft(subject string, msgs []*model.ChatMessage) *insight.Draft {
	d := &insight.Draft{
		KeyPoints:     []string{},
		Decisions:     []string{},
		ActionItems:   []string{},
		OpenQuestions: []string{},
	}

	senders := map[string]bool{}
	for _, m := range msgs {
		senders[m.Sender] = true
		line := fmt.Sprintf("%s: %s", m.Sender, truncate(m.Content, 140))
		switch m.Category {
		case model.CategoryDecision:
			d.Decisions = append(d.Decisions, line)
			d.KeyPoints = append(d.KeyPoints, line)
		case model.CategoryActionItem:
			d.ActionItems = append(d.ActionItems, line)
		case model.CategoryQuestion:
			d.OpenQuestions = append(d.OpenQuestions, line)
		default:
			if m.Urgency == "high" {
				d.KeyPoints = append(d.KeyPoints, line)
			}
		}
	}

	d.ExecutiveSummary = fmt.Sprintf(
		"Meeting %q captured %d chat messages from %d participants: %d decisions, %d action items, and %d open questions.",
		subject, len(msgs), len(senders), len(d.Decisions), len(d.ActionItems), len(d.OpenQuestions))
	return d
}

func containsAny(s string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

func countAny(s string, words []string) int {
	n := 0
	for _, w := range words {
		if strings.Contains(s, w) {
			n++
		}
	}
	return n
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "…"
}
