// Package gemini implements the insight provider against the Gemini
// generateContent REST API.
package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/attendly/attendly/server/internal/insight"
	"github.com/attendly/attendly/server/internal/model"
)

const classifyPrompt = `Classify the following meeting chat message.
Respond with a JSON object: {"category":"question|action_item|decision|discussion","urgency":"high|normal","sentiment":"positive|neutral|negative"}.
Message from %s: %q`

const summarizePrompt = `Summarize this meeting chat transcript for the meeting %q.
Respond with a JSON object: {"executiveSummary":"...","keyPoints":["..."],"decisions":["..."],"actionItems":["..."],"openQuestions":["..."]}.
Transcript:
%s`

// Provider calls the Gemini generateContent endpoint.
type Provider struct {
	client *resty.Client
	apiKey string
	model  string
}

// New creates a Provider. baseURL is normally
// https://generativelanguage.googleapis.com.
func New(baseURL, apiKey, modelName string) *Provider {
	c := resty.New().
		SetBaseURL(baseURL).
		SetHeader("Content-Type", "application/json").
		SetTimeout(60 * time.Second)
	return &Provider{client: c, apiKey: apiKey, model: modelName}
}

func (p *Provider) Name() string { return "gemini" }

type generateRequest struct {
	Contents []struct {
		Parts []struct {
			Text string `json:"text"`
		} `json:"parts"`
	} `json:"contents"`
	GenerationConfig struct {
		ResponseMimeType string `json:"responseMimeType"`
	} `json:"generationConfig"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// generate sends one prompt and returns the raw text of the first candidate.
func (p *Provider) generate(ctx context.Context, prompt string) (string, error) {
	var req generateRequest
	req.Contents = make([]struct {
		Parts []struct {
			Text string `json:"text"`
		} `json:"parts"`
	}, 1)
	req.Contents[0].Parts = []struct {
		Text string `json:"text"`
	}{{Text: prompt}}
	req.GenerationConfig.ResponseMimeType = "application/json"

	var out generateResponse
	resp, err := p.client.R().
		SetContext(ctx).
		SetQueryParam("key", p.apiKey).
		SetBody(&req).
		SetResult(&out).
		SetError(&out).
		Post(fmt.Sprintf("/v1beta/models/%s:generateContent", p.model))
	if err != nil {
		return "", fmt.Errorf("gemini request: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		if out.Error != nil {
			return "", fmt.Errorf("gemini status %d: %s", resp.StatusCode(), out.Error.Message)
		}
		return "", fmt.Errorf("gemini status %d", resp.StatusCode())
	}
	if len(out.Candidates) == 0 || len(out.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("gemini returned no candidates")
	}
	return out.Candidates[0].Content.Parts[0].Text, nil
}

func (p *Provider) Classify(ctx context.Context, sender, content string) (insight.Classification, error) {
	text, err := p.generate(ctx, fmt.Sprintf(classifyPrompt, sender, content))
	if err != nil {
		return insight.Classification{}, err
	}

	var parsed struct {
		Category  string `json:"category"`
		Urgency   string `json:"urgency"`
		Sentiment string `json:"sentiment"`
	}
	if err := json.Unmarshal([]byte(text), &parsed); err != nil {
		return insight.Classification{}, fmt.Errorf("gemini classify: unparsable response: %w", err)
	}

	c := insight.Classification{
		Category:  normalizeCategory(parsed.Category),
		Urgency:   normalizeEnum(parsed.Urgency, "normal", "high", "normal"),
		Sentiment: normalizeEnum(parsed.Sentiment, "neutral", "positive", "neutral", "negative"),
	}
	c.Actionable = c.Category == model.CategoryQuestion ||
		c.Category == model.CategoryActionItem ||
		c.Urgency == "high"
	return c, nil
}

func (p *Provider) Summarize(ctx context.Context, subject string, msgs []*model.ChatMessage) (*insight.Draft, error) {
	var transcript strings.Builder
	for _, m := range msgs {
		fmt.Fprintf(&transcript, "[%s] %s: %s\n", m.SentAt.Format(time.RFC3339), m.Sender, m.Content)
	}

	text, err := p.generate(ctx, fmt.Sprintf(summarizePrompt, subject, transcript.String()))
	if err != nil {
		return nil, err
	}

	var draft insight.Draft
	if err := json.Unmarshal([]byte(text), &draft); err != nil {
		return nil, fmt.Errorf("gemini summarize: unparsable response: %w", err)
	}
	if strings.TrimSpace(draft.ExecutiveSummary) == "" {
		return nil, fmt.Errorf("gemini summarize: empty executive summary")
	}
	return &draft, nil
}

// HealthPing implements health.HealthPinger by fetching the model resource.
func (p *Provider) HealthPing(ctx context.Context) error {
	resp, err := p.client.R().
		SetContext(ctx).
		SetQueryParam("key", p.apiKey).
		Get(fmt.Sprintf("/v1beta/models/%s", p.model))
	if err != nil {
		return err
	}
	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("gemini status %d", resp.StatusCode())
	}
	return nil
}

func normalizeCategory(v string) string {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case model.CategoryQuestion:
		return model.CategoryQuestion
	case model.CategoryActionItem:
		return model.CategoryActionItem
	case model.CategoryDecision:
		return model.CategoryDecision
	default:
		return model.CategoryDiscussion
	}
}

func normalizeEnum(v, def string, allowed ...string) string {
	low := strings.ToLower(strings.TrimSpace(v))
	for _, a := range allowed {
		if low == a {
			return a
		}
	}
	return def
}
