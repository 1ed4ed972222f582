package model

import (
	"time"
)

// EventType represents the type of session event.
type EventType string

const (
	EventTypeMessage            EventType = "message"
	EventTypeReset              EventType = "reset"
	EventTypeItineraryRequested EventType = "itinerary_requested"
	EventTypeItineraryFailed    EventType = "itinerary_failed"
	EventTypeGuideSaved         EventType = "guide_saved"
	EventTypeLoading            EventType = "loading"
)

// SessionEvent is emitted whenever a session's observable state changes.
type SessionEvent struct {
	ID        string            `json:"id"`
	SessionID string            `json:"session_id"`
	Type      EventType         `json:"type"`
	Message   *Message          `json:"message,omitempty"`
	Request   *ItineraryRequest `json:"request,omitempty"`
	Loading   *bool             `json:"loading,omitempty"`
	Reason    string            `json:"reason,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	Sequence  uint64            `json:"sequence,omitempty"`
}

// StoryEntry is one story associated with a destination.
type StoryEntry struct {
	Story       string `json:"story" yaml:"story"`
	Description string `json:"description" yaml:"description"`
}

// DestinationStories is the response for a destination lookup.
type DestinationStories struct {
	Destination string       `json:"destination"`
	FunFact     string       `json:"fun_fact"`
	Stories     []StoryEntry `json:"stories"`
}

// StoryDestination is the response for a reverse story lookup.
type StoryDestination struct {
	Story       string `json:"story"`
	Destination string `json:"destination"`
}
