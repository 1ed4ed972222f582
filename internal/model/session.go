// Package model defines data structures for the travel chat service.
package model

import (
	"time"
)

const (
	// DefaultDuration is used when no duration was extracted before an itinerary request.
	DefaultDuration = "3 days"

	landingPlaceholder = "Where would you like to go? Or what story inspires you?"
	activePlaceholder  = "Type your answer..."
)

// StarterSuggestions are offered on the landing view before the first message.
var StarterSuggestions = []string{
	"Harry Potter in London",
	"I want to visit Paris for 3 days",
	"Lord of the Rings adventure",
}

// Slots holds the travel intent accumulated across a conversation.
// An empty string means the slot is unset.
type Slots struct {
	Destination string `json:"destination,omitempty"`
	Story       string `json:"story,omitempty"`
	Duration    string `json:"duration,omitempty"`
	TravelStyle string `json:"travelStyle,omitempty"`
}

// Merge returns s overlaid with every non-empty field of other.
func (s Slots) Merge(other Slots) Slots {
	if other.Destination != "" {
		s.Destination = other.Destination
	}
	if other.Story != "" {
		s.Story = other.Story
	}
	if other.Duration != "" {
		s.Duration = other.Duration
	}
	if other.TravelStyle != "" {
		s.TravelStyle = other.TravelStyle
	}
	return s
}

// Complete reports whether both destination and story are known.
func (s Slots) Complete() bool {
	return s.Destination != "" && s.Story != ""
}

// Session is the full state of one conversation.
type Session struct {
	ID       string    `json:"id"`
	Slots    Slots     `json:"slots"`
	Messages []Message `json:"messages"`
	Loading  bool      `json:"loading"`
	Started  bool      `json:"started"`
	// Generation is bumped by every "start over"; turns tagged with an older
	// generation are discarded when they resolve.
	Generation uint64    `json:"generation"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Clone returns a deep copy of s.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	if s.Messages != nil {
		c.Messages = make([]Message, len(s.Messages))
		for i, m := range s.Messages {
			c.Messages[i] = m.Clone()
		}
	}
	return &c
}

// Append adds msg to the history and marks the conversation as started.
func (s *Session) Append(msg Message) {
	s.Messages = append(s.Messages, msg)
	s.Started = true
}

// Reset clears the trip slots, history and the started flag, and invalidates
// in-flight turns. TravelStyle is chosen when the session is created and
// survives. Loading is left alone: the request that set it clears it when it settles.
func (s *Session) Reset() {
	s.Slots = Slots{TravelStyle: s.Slots.TravelStyle}
	s.Messages = nil
	s.Started = false
	s.Generation++
}

// SessionView is what transports render.
type SessionView struct {
	ID          string    `json:"id"`
	Slots       Slots     `json:"slots"`
	Messages    []Message `json:"messages"`
	Loading     bool      `json:"loading"`
	Started     bool      `json:"started"`
	Placeholder string    `json:"placeholder"`
	Starters    []string  `json:"starters,omitempty"`
}

// View builds the renderable view of s.
func (s *Session) View() *SessionView {
	c := s.Clone()
	v := &SessionView{
		ID:          c.ID,
		Slots:       c.Slots,
		Messages:    c.Messages,
		Loading:     c.Loading,
		Started:     c.Started,
		Placeholder: activePlaceholder,
	}
	if v.Messages == nil {
		v.Messages = []Message{}
	}
	if !c.Started {
		v.Starters = append([]string(nil), StarterSuggestions...)
	}
	if len(c.Messages) == 0 {
		v.Placeholder = landingPlaceholder
	}
	return v
}

// CreateSessionRequest is the request to open a new session.
type CreateSessionRequest struct {
	TravelStyle string `json:"travelStyle,omitempty"`
}

// CreateSessionResponse carries the new session and the token that grants access to it.
type CreateSessionResponse struct {
	Session   *SessionView `json:"session"`
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
}

// ItineraryRequest is the body sent to the itinerary service.
type ItineraryRequest struct {
	Destination  string `json:"destination"`
	Inspiration  string `json:"inspiration"`
	TravelerType string `json:"travelerType"`
	Duration     string `json:"duration"`
	Interests    string `json:"interests"`
}

// NewItineraryRequest maps slots to a request, filling in defaults.
func NewItineraryRequest(s Slots) *ItineraryRequest {
	req := &ItineraryRequest{
		Destination:  s.Destination,
		Inspiration:  s.Story,
		TravelerType: s.TravelStyle,
		Duration:     s.Duration,
		Interests:    s.Story,
	}
	if req.Inspiration == "" {
		req.Inspiration = "none"
	}
	if req.TravelerType == "" {
		req.TravelerType = "explorer"
	}
	if req.Duration == "" {
		req.Duration = DefaultDuration
	}
	if req.Interests == "" {
		req.Interests = "culture, sightseeing"
	}
	return req
}
