package heuristic

import (
	"testing"
	"time"

	"github.com/attendly/attendly/server/internal/model"
)

func TestClassifyCategories(t *testing.T) {
	cases := []struct {
		content string
		want    string
	}{
		{"what time does the demo start?", model.CategoryQuestion},
		{"can you share the doc", model.CategoryQuestion},
		{"action item: update the dashboard", model.CategoryActionItem},
		{"i'll take the follow up with legal", model.CategoryActionItem},
		{"we agreed to move the launch", model.CategoryDecision},
		{"the proposal was approved", model.CategoryDecision},
		{"just sharing some context here", model.CategoryDiscussion},
	}
	for _, tc := range cases {
		if got := Classify(tc.content); got.Category != tc.want {
			t.Errorf("Classify(%q).Category = %s, want %s", tc.content, got.Category, tc.want)
		}
	}
}

func TestClassifyDecisionWinsOverQuestion(t *testing.T) {
	// A message that matches several rules takes the strongest category.
	got := Classify("we agreed to ship it, right?")
	if got.Category != model.CategoryDecision {
		t.Fatalf("want decision, got %s", got.Category)
	}
}

func TestClassifyUrgencyAndSentiment(t *testing.T) {
	c := Classify("urgent: the deploy is blocked")
	if c.Urgency != "high" {
		t.Fatalf("want high urgency, got %s", c.Urgency)
	}
	if c.Sentiment != "negative" {
		t.Fatalf("want negative sentiment, got %s", c.Sentiment)
	}
	if !c.Actionable {
		t.Fatalf("urgent message must be actionable")
	}

	c = Classify("thanks, this looks great")
	if c.Sentiment != "positive" || c.Urgency != "normal" {
		t.Fatalf("want positive/normal, got %s/%s", c.Sentiment, c.Urgency)
	}
	if c.Actionable {
		t.Fatalf("plain positive chatter must not be actionable")
	}
}

func TestBuildDraftBuckets(t *testing.T) {
	now := time.Now()
	msgs := []*model.ChatMessage{
		{Sender: "Ana", Content: "we agreed on option b", Category: model.CategoryDecision, SentAt: now},
		{Sender: "Ben", Content: "todo: write the ADR", Category: model.CategoryActionItem, SentAt: now},
		{Sender: "Cid", Content: "who reviews it?", Category: model.CategoryQuestion, SentAt: now},
		{Sender: "Ana", Content: "fyi the board is updated", Category: model.CategoryDiscussion, SentAt: now},
	}
	d := BuildDraft("arch sync", msgs)

	if len(d.Decisions) != 1 || len(d.ActionItems) != 1 || len(d.OpenQuestions) != 1 {
		t.Fatalf("buckets: %+v", d)
	}
	if d.ExecutiveSummary == "" {
		t.Fatalf("empty executive summary")
	}
	if d.Decisions[0] != "Ana: we agreed on option b" {
		t.Fatalf("decision line: %q", d.Decisions[0])
	}
}

func TestBuildDraftEmptyTranscript(t *testing.T) {
	d := BuildDraft("silent meeting", nil)
	if d.ExecutiveSummary == "" {
		t.Fatalf("empty transcript still needs a summary line")
	}
	if d.KeyPoints == nil || d.Decisions == nil || d.ActionItems == nil || d.OpenQuestions == nil {
		t.Fatalf("sections must be empty slices, not nil: %+v", d)
	}
}
