// Package graph wraps the Microsoft Graph REST endpoints the agent needs:
// calendar events, free-busy lookups, user search, and Teams chat messages.
package graph

import (
	"context"
	"time"
)

// EventRequest describes a calendar event to create or update.
type EventRequest struct {
	Subject   string
	Start     time.Time
	End       time.Time
	Attendees []string
	Body      string
}

// Event is the subset of a Graph calendar event the service keeps.
type Event struct {
	ID      string
	JoinURL string
	ChatID  string
}

// User is a directory entry.
type User struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Mail        string `json:"mail"`
}

// BusyWindow is a busy interval reported by the free-busy endpoint.
type BusyWindow struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Availability reports the busy windows for one attendee.
type Availability struct {
	Email string       `json:"email"`
	Busy  []BusyWindow `json:"busy"`
}

// Message is a Teams chat message as fetched from Graph.
type Message struct {
	ID      string
	Sender  string
	Content string
	SentAt  time.Time
}

// Client is the outbound Graph surface used by services and the capture loop.
type Client interface {
	CreateEvent(ctx context.Context, organizer string, req *EventRequest) (*Event, error)
	UpdateEvent(ctx context.Context, organizer, eventID string, req *EventRequest) error
	CancelEvent(ctx context.Context, organizer, eventID string) error
	GetSchedule(ctx context.Context, organizer string, attendees []string, start, end time.Time) ([]Availability, error)
	SearchUsers(ctx context.Context, query string) ([]User, error)
	ListMessagesSince(ctx context.Context, chatID string, since time.Time) ([]Message, error)
	PostMessage(ctx context.Context, chatID, content string) error
}
