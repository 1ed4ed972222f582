package model

import (
	"encoding/json"
	"time"
)

// Role represents the role of a message sender.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Kind tags how a message should be rendered.
type Kind string

const (
	KindText        Kind = "text"
	KindItinerary   Kind = "itinerary"
	KindSuggestions Kind = "suggestions"
)

// Message is one entry of a session's history. Messages are never modified
// after they are appended.
type Message struct {
	ID          string          `json:"id"`
	Role        Role            `json:"role"`
	Content     string          `json:"content"`
	CreatedAt   time.Time       `json:"created_at"`
	Suggestions []string        `json:"suggestions,omitempty"`
	Kind        Kind            `json:"kind"`
	Itinerary   json.RawMessage `json:"itinerary,omitempty"`
}

// Clone returns a copy that shares no slices with m.
func (m Message) Clone() Message {
	if m.Suggestions != nil {
		m.Suggestions = append([]string(nil), m.Suggestions...)
	}
	if m.Itinerary != nil {
		m.Itinerary = append(json.RawMessage(nil), m.Itinerary...)
	}
	return m
}

// SendMessageRequest is the request to submit a free-text utterance.
type SendMessageRequest struct {
	Content string `json:"content"`
}

// SuggestionRequest is the request sent when a quick reply is clicked.
type SuggestionRequest struct {
	Suggestion string `json:"suggestion"`
}

// TurnResult is returned once a turn has settled.
type TurnResult struct {
	Session  *SessionView `json:"session"`
	Appended []Message    `json:"appended"`
	// Discarded is set when a "start over" overtook the turn and its output was dropped.
	Discarded bool `json:"discarded,omitempty"`
}

// ErrorEvent represents an error event.
type ErrorEvent struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// HeartbeatEvent represents a heartbeat event.
type HeartbeatEvent struct {
	Timestamp time.Time `json:"timestamp"`
}
