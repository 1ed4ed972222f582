// Package extract pulls slot candidates out of a single utterance. Every
// matcher is independent and returns "" when it finds nothing.
package extract

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/kultrip/story-travel/internal/model"
)

// durationPatterns are tried in order; the first match wins.
var durationPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(\d+)\s*days?`),
	regexp.MustCompile(`(?i)for\s+(\d+)\s*days?`),
	regexp.MustCompile(`(?i)(\d+)-day`),
}

// weekPattern is tried after the day patterns so the "1 week" quick reply fills the slot.
var weekPattern = regexp.MustCompile(`(?i)(\d+)\s*weeks?\b`)

// destinationPattern captures a run of capitalized words after a travel verb or
// preposition. Punctuation, digits and lowercase words end the run.
var destinationPattern = regexp.MustCompile(`(?i:\b(?:to|in|visit|explore|see))[ \t]+([A-Z][A-Za-z]*(?:[ \t]+[A-Z][A-Za-z]*)*)`)

// StoryKeywords is the fixed vocabulary searched for in utterances, in priority order.
var StoryKeywords = []string{
	"Harry Potter",
	"Emily in Paris",
	"Sherlock",
	"Lord of the Rings",
	"Game of Thrones",
	"Bridgerton",
	"Money Heist",
	"Breaking Bad",
	"Friends",
	"Narcos",
	"Vikings",
	"Frida",
	"Romeo",
	"Juliet",
}

// Extract runs every matcher over text.
func Extract(text string) model.Slots {
	return model.Slots{
		Destination: Destination(text),
		Story:       Story(text),
		Duration:    Duration(text),
	}
}

// Duration returns "<N> days" for the first matching day-count pattern, or
// converts a week count to days.
func Duration(text string) string {
	for _, p := range durationPatterns {
		if m := p.FindStringSubmatch(text); m != nil {
			return m[1] + " days"
		}
	}
	if m := weekPattern.FindStringSubmatch(text); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			return strconv.Itoa(n*7) + " days"
		}
	}
	return ""
}

// Destination returns the capitalized place name following "to", "in",
// "visit", "explore" or "see". The name is not checked against the knowledge base.
func Destination(text string) string {
	for _, m := range destinationPattern.FindAllStringSubmatch(text, -1) {
		if name := trimAtFor(m[1]); name != "" {
			return name
		}
	}
	return ""
}

// trimAtFor cuts a captured run at the word "for", which the capitalized
// pattern accepts when written as "For".
func trimAtFor(span string) string {
	words := strings.Fields(span)
	for i, w := range words {
		if strings.EqualFold(w, "for") {
			words = words[:i]
			break
		}
	}
	return strings.Join(words, " ")
}

// Story returns the first keyword contained in text, ignoring case.
func Story(text string) string {
	lower := strings.ToLower(text)
	for _, k := range StoryKeywords {
		if strings.Contains(lower, strings.ToLower(k)) {
			return k
		}
	}
	return ""
}
