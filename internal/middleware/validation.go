package middleware

import (
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

// MaxUtteranceLength bounds a single chat message in bytes.
const MaxUtteranceLength = 2000

// ValidateUtterance validates a chat message or suggestion.
func ValidateUtterance(content string) error {
	if strings.TrimSpace(content) == "" {
		return errors.New("content cannot be empty")
	}
	if len(content) > MaxUtteranceLength {
		return errors.New("content exceeds maximum length")
	}
	if !utf8.ValidString(content) {
		return errors.New("content must be valid UTF-8")
	}
	return nil
}

// ValidateSessionID validates a session ID.
func ValidateSessionID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return errors.New("invalid session ID format")
	}
	return nil
}

// ValidateTravelStyle validates the optional traveler type of a new session.
func ValidateTravelStyle(style string) error {
	if len(style) > 64 {
		return errors.New("travel style exceeds maximum length")
	}
	if !utf8.ValidString(style) {
		return errors.New("travel style must be valid UTF-8")
	}
	return nil
}
