package dialogue

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kultrip/story-travel/internal/model"
)

// MaxStorySuggestions caps the stories offered for a destination.
const MaxStorySuggestions = 5

// Quick replies.
const JustTheCity = "Just the city"

// Suggestion sets attached to replies.
var (
	DayOptions       = []string{"1 day", "2 day", "3 day"}
	DayOrWeekOptions = []string{"1 day", "2 day", "3 day", "1 week"}
	ItineraryOptions = []string{"Save my guide", "Send to email", "Start over"}
)

// Fixed texts.
const (
	SavedText    = "✅ Your guide has been saved! You can access it anytime from your Kultrip dashboard."
	EmailText    = "📧 Great! What email should I send your personalized guide to?"
	GreetingText = "I'd love to help you plan an unforgettable story-inspired journey! Where would you like to go, or what story inspires your travels?"
	FallbackText = "I'm having trouble connecting to create your itinerary. Let me know if you'd like to try again or adjust your plans!"
)

// CompleteAskDaysText asks for a duration once destination and story are known.
func CompleteAskDaysText(story, destination string) string {
	return fmt.Sprintf("Excellent choice! %s in %s will be magical. How many days would you like to spend there?", story, destination)
}

// StoryListText offers the stories set in a known destination.
func StoryListText(destination, funFact string, titles []string) string {
	return fmt.Sprintf("%s, perfect choice! %s\n\nIt's home to many amazing stories: %s...\n\nWould you like to explore one of these stories, or just the city itself?",
		destination, funFact, strings.Join(titles, ", "))
}

// UnknownDestinationAskDaysText asks for a duration for a destination outside the knowledge base.
func UnknownDestinationAskDaysText(destination string) string {
	return fmt.Sprintf("%s sounds wonderful! How many days are you planning to stay?", destination)
}

// SuggestedDestinationText names the destination where a story is set.
func SuggestedDestinationText(story, destination string) string {
	return fmt.Sprintf("%s, what a great choice! The best place to experience this is %s. How many days would you like to spend there?", story, destination)
}

// AskDestinationText asks where to go for a story with no known destination.
func AskDestinationText(story string) string {
	return fmt.Sprintf("I love %s! Which destination were you thinking for this adventure?", story)
}

// CityOnlyAskDaysText asks for a duration for a trip without a story.
func CityOnlyAskDaysText(destination string) string {
	return fmt.Sprintf("Perfect! A pure %s experience. How many days would you like?", destination)
}

// ItineraryReply renders a successful itinerary for the slots it was requested with.
func ItineraryReply(slots model.Slots, payload json.RawMessage) *Reply {
	story := slots.Story
	if story == "" {
		story = "Cultural"
	}
	duration := slots.Duration
	if duration == "" {
		duration = model.DefaultDuration
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, payload, "", "  "); err != nil {
		pretty.Reset()
		pretty.Write(payload)
	}

	return &Reply{
		Content: fmt.Sprintf("🎬 Your %s Adventure in %s\n\n%s of unforgettable experiences\n\n%s\n\n✨ Ready to embark on this journey?",
			story, slots.Destination, duration, pretty.String()),
		Suggestions: append([]string(nil), ItineraryOptions...),
		Kind:        model.KindItinerary,
	}
}

// FallbackReply is appended when the itinerary service fails.
func FallbackReply() *Reply {
	return text(FallbackText)
}
