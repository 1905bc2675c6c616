package graph

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/attendly/attendly/server/internal/msauth"
)

const graphTimeFormat = "2006-01-02T15:04:05"

// RestClient talks to the Graph REST API with bearer tokens from a
// msauth.TokenProvider.
type RestClient struct {
	client *resty.Client
	tokens msauth.TokenProvider
}

// NewRestClient creates a client against the given Graph base URL
// (e.g. https://graph.microsoft.com/v1.0).
func NewRestClient(baseURL string, tokens msauth.TokenProvider) *RestClient {
	c := resty.New().
		SetBaseURL(baseURL).
		SetHeader("Content-Type", "application/json").
		SetTimeout(30 * time.Second)
	return &RestClient{client: c, tokens: tokens}
}

func (g *RestClient) request(ctx context.Context) (*resty.Request, error) {
	tok, err := g.tokens.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("graph auth: %w", err)
	}
	return g.client.R().SetContext(ctx).SetAuthToken(tok), nil
}

type graphError struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func statusErr(op string, resp *resty.Response, ge *graphError) error {
	if ge != nil && ge.Error.Message != "" {
		return fmt.Errorf("graph %s status %d: %s", op, resp.StatusCode(), ge.Error.Message)
	}
	return fmt.Errorf("graph %s status %d", op, resp.StatusCode())
}

// --- calendar events ---

type dateTimeZone struct {
	DateTime string `json:"dateTime"`
	TimeZone string `json:"timeZone"`
}

type eventAttendee struct {
	EmailAddress struct {
		Address string `json:"address"`
	} `json:"emailAddress"`
	Type string `json:"type"`
}

type eventBody struct {
	Subject         string          `json:"subject"`
	Start           dateTimeZone    `json:"start"`
	End             dateTimeZone    `json:"end"`
	Attendees       []eventAttendee `json:"attendees"`
	IsOnlineMeeting bool            `json:"isOnlineMeeting"`
	Provider        string          `json:"onlineMeetingProvider"`
	Body            *struct {
		ContentType string `json:"contentType"`
		Content     string `json:"content"`
	} `json:"body,omitempty"`
}

type eventResponse struct {
	ID            string `json:"id"`
	OnlineMeeting *struct {
		JoinURL string `json:"joinUrl"`
	} `json:"onlineMeeting"`
}

func buildEventBody(req *EventRequest) eventBody {
	body := eventBody{
		Subject:         req.Subject,
		Start:           dateTimeZone{DateTime: req.Start.UTC().Format(graphTimeFormat), TimeZone: "UTC"},
		End:             dateTimeZone{DateTime: req.End.UTC().Format(graphTimeFormat), TimeZone: "UTC"},
		IsOnlineMeeting: true,
		Provider:        "teamsForBusiness",
	}
	for _, a := range req.Attendees {
		var at eventAttendee
		at.EmailAddress.Address = a
		at.Type = "required"
		body.Attendees = append(body.Attendees, at)
	}
	if req.Body != "" {
		body.Body = &struct {
			ContentType string `json:"contentType"`
			Content     string `json:"content"`
		}{ContentType: "text", Content: req.Body}
	}
	return body
}

func (g *RestClient) CreateEvent(ctx context.Context, organizer string, req *EventRequest) (*Event, error) {
	r, err := g.request(ctx)
	if err != nil {
		return nil, err
	}
	var out eventResponse
	var ge graphError
	resp, err := r.SetBody(buildEventBody(req)).SetResult(&out).SetError(&ge).
		Post(fmt.Sprintf("/users/%s/events", url.PathEscape(organizer)))
	if err != nil {
		return nil, fmt.Errorf("graph create event: %w", err)
	}
	if resp.StatusCode() != http.StatusCreated {
		return nil, statusErr("create event", resp, &ge)
	}
	ev := &Event{ID: out.ID}
	if out.OnlineMeeting != nil {
		ev.JoinURL = out.OnlineMeeting.JoinURL
		ev.ChatID = ChatIDFromJoinURL(out.OnlineMeeting.JoinURL)
	}
	return ev, nil
}

func (g *RestClient) UpdateEvent(ctx context.Context, organizer, eventID string, req *EventRequest) error {
	r, err := g.request(ctx)
	if err != nil {
		return err
	}
	var ge graphError
	resp, err := r.SetBody(buildEventBody(req)).SetError(&ge).
		Patch(fmt.Sprintf("/users/%s/events/%s", url.PathEscape(organizer), url.PathEscape(eventID)))
	if err != nil {
		return fmt.Errorf("graph update event: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return statusErr("update event", resp, &ge)
	}
	return nil
}

func (g *RestClient) CancelEvent(ctx context.Context, organizer, eventID string) error {
	r, err := g.request(ctx)
	if err != nil {
		return err
	}
	var ge graphError
	resp, err := r.SetBody(map[string]string{"comment": "Meeting cancelled"}).SetError(&ge).
		Post(fmt.Sprintf("/users/%s/events/%s/cancel", url.PathEscape(organizer), url.PathEscape(eventID)))
	if err != nil {
		return fmt.Errorf("graph cancel event: %w", err)
	}
	if resp.StatusCode() != http.StatusAccepted && resp.StatusCode() != http.StatusNoContent {
		return statusErr("cancel event", resp, &ge)
	}
	return nil
}

// --- free-busy ---

type getScheduleRequest struct {
	Schedules                []string     `json:"schedules"`
	StartTime                dateTimeZone `json:"startTime"`
	EndTime                  dateTimeZone `json:"endTime"`
	AvailabilityViewInterval int          `json:"availabilityViewInterval"`
}

type getScheduleResponse struct {
	Value []struct {
		ScheduleID    string `json:"scheduleId"`
		ScheduleItems []struct {
			Status string       `json:"status"`
			Start  dateTimeZone `json:"start"`
			End    dateTimeZone `json:"end"`
		} `json:"scheduleItems"`
	} `json:"value"`
}

func (g *RestClient) GetSchedule(ctx context.Context, organizer string, attendees []string, start, end time.Time) ([]Availability, error) {
	r, err := g.request(ctx)
	if err != nil {
		return nil, err
	}
	body := getScheduleRequest{
		Schedules:                attendees,
		StartTime:                dateTimeZone{DateTime: start.UTC().Format(graphTimeFormat), TimeZone: "UTC"},
		EndTime:                  dateTimeZone{DateTime: end.UTC().Format(graphTimeFormat), TimeZone: "UTC"},
		AvailabilityViewInterval: 30,
	}
	var out getScheduleResponse
	var ge graphError
	resp, err := r.SetBody(&body).SetResult(&out).SetError(&ge).
		Post(fmt.Sprintf("/users/%s/calendar/getSchedule", url.PathEscape(organizer)))
	if err != nil {
		return nil, fmt.Errorf("graph getSchedule: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, statusErr("getSchedule", resp, &ge)
	}

	result := make([]Availability, 0, len(out.Value))
	for _, sched := range out.Value {
		av := Availability{Email: sched.ScheduleID, Busy: []BusyWindow{}}
		for _, item := range sched.ScheduleItems {
			if item.Status == "free" {
				continue
			}
			s, err1 := time.Parse(graphTimeFormat, item.Start.DateTime)
			e, err2 := time.Parse(graphTimeFormat, item.End.DateTime)
			if err1 != nil || err2 != nil {
				continue
			}
			av.Busy = append(av.Busy, BusyWindow{Start: s.UTC(), End: e.UTC()})
		}
		result = append(result, av)
	}
	return result, nil
}

// --- directory ---

type userListResponse struct {
	Value []User `json:"value"`
}

func (g *RestClient) SearchUsers(ctx context.Context, query string) ([]User, error) {
	r, err := g.request(ctx)
	if err != nil {
		return nil, err
	}
	filter := fmt.Sprintf("startswith(displayName,'%s') or startswith(mail,'%s')",
		escapeODataLiteral(query), escapeODataLiteral(query))
	var out userListResponse
	var ge graphError
	resp, err := r.
		SetQueryParam("$filter", filter).
		SetQueryParam("$top", "10").
		SetResult(&out).SetError(&ge).
		Get("/users")
	if err != nil {
		return nil, fmt.Errorf("graph user search: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, statusErr("user search", resp, &ge)
	}
	return out.Value, nil
}

// escapeODataLiteral doubles single quotes per OData string literal rules.
func escapeODataLiteral(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

// --- chat messages ---

type chatMessagesResponse struct {
	Value []struct {
		ID              string    `json:"id"`
		CreatedDateTime time.Time `json:"createdDateTime"`
		From            *struct {
			User *struct {
				DisplayName string `json:"displayName"`
			} `json:"user"`
		} `json:"from"`
		Body struct {
			Content string `json:"content"`
		} `json:"body"`
	} `json:"value"`
}

// ListMessagesSince fetches recent chat messages and filters to those created
// strictly after since. Graph chat listing has no server-side time filter, so
// filtering happens here; results are returned in ascending send order.
func (g *RestClient) ListMessagesSince(ctx context.Context, chatID string, since time.Time) ([]Message, error) {
	r, err := g.request(ctx)
	if err != nil {
		return nil, err
	}
	var out chatMessagesResponse
	var ge graphError
	resp, err := r.
		SetQueryParam("$top", "50").
		SetResult(&out).SetError(&ge).
		Get(fmt.Sprintf("/chats/%s/messages", url.PathEscape(chatID)))
	if err != nil {
		return nil, fmt.Errorf("graph list messages: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, statusErr("list messages", resp, &ge)
	}

	var msgs []Message
	for _, v := range out.Value {
		if !v.CreatedDateTime.After(since) {
			continue
		}
		sender := "unknown"
		if v.From != nil && v.From.User != nil && v.From.User.DisplayName != "" {
			sender = v.From.User.DisplayName
		}
		msgs = append(msgs, Message{
			ID:      v.ID,
			Sender:  sender,
			Content: stripHTML(v.Body.Content),
			SentAt:  v.CreatedDateTime.UTC(),
		})
	}
	sort.Slice(msgs, func(i, j int) bool { return msgs[i].SentAt.Before(msgs[j].SentAt) })
	return msgs, nil
}

func (g *RestClient) PostMessage(ctx context.Context, chatID, content string) error {
	r, err := g.request(ctx)
	if err != nil {
		return err
	}
	var ge graphError
	resp, err := r.
		SetBody(map[string]any{"body": map[string]string{"content": content}}).
		SetError(&ge).
		Post(fmt.Sprintf("/chats/%s/messages", url.PathEscape(chatID)))
	if err != nil {
		return fmt.Errorf("graph post message: %w", err)
	}
	if resp.StatusCode() != http.StatusCreated {
		return statusErr("post message", resp, &ge)
	}
	return nil
}

// HealthPing implements health.HealthPinger with a cheap directory read.
func (g *RestClient) HealthPing(ctx context.Context) error {
	r, err := g.request(ctx)
	if err != nil {
		return err
	}
	resp, err := r.SetQueryParam("$select", "id").Get("/organization")
	if err != nil {
		return err
	}
	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("graph status %d", resp.StatusCode())
	}
	return nil
}

// ChatIDFromJoinURL extracts the Teams thread id from an online-meeting join
// URL. Returns "" when the URL does not carry one.
func ChatIDFromJoinURL(joinURL string) string {
	u, err := url.Parse(joinURL)
	if err != nil {
		return ""
	}
	for _, seg := range strings.Split(u.Path, "/") {
		dec, err := url.PathUnescape(seg)
		if err != nil {
			continue
		}
		if strings.HasPrefix(dec, "19:") && strings.Contains(dec, "@thread") {
			return dec
		}
	}
	return ""
}

// stripHTML removes the simple markup Graph wraps chat bodies in.
func stripHTML(s string) string {
	var b strings.Builder
	inTag := false
	for _, r := range s {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
		case !inTag:
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}
