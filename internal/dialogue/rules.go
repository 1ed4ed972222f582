// Package dialogue decides the assistant's next move from the accumulated slots
// and the latest utterance. It is pure: no I/O, no clock, no session storage.
package dialogue

import (
	"strings"

	"github.com/kultrip/story-travel/internal/extract"
	"github.com/kultrip/story-travel/internal/model"
)

// Rule names, recorded in metrics and logs.
const (
	RuleStartOver       = "start_over"
	RuleSave            = "save"
	RuleEmail           = "email"
	RuleComplete        = "destination_and_story"
	RuleDestinationOnly = "destination_only"
	RuleStoryOnly       = "story_only"
	RuleJustTheCity     = "just_the_city"
	RuleUnknown         = "nothing_known"
	RuleNone            = "none"
)

// Knowledge is the lookup surface the rules need.
type Knowledge interface {
	StoriesForDestination(name string) ([]model.StoryEntry, bool)
	DestinationForStory(title string) (string, bool)
	FunFact(name string) string
}

// Turn is the input to a rule.
type Turn struct {
	// Utterance is the raw user text, Lower its lower-cased form.
	Utterance string
	Lower     string
	// Slots holds the prior slots for commands and the merged slots for rules.
	Slots     model.Slots
	Knowledge Knowledge
}

// Reply is an assistant message to append.
type Reply struct {
	Content     string
	Suggestions []string
	Kind        model.Kind
}

// Decision is the outcome of one turn.
type Decision struct {
	Rule string
	// Slots are the slots to store after the turn.
	Slots model.Slots
	// Reply is nil when the turn emits no message.
	Reply *Reply
	// RequestItinerary asks the caller to call the itinerary service with Slots.
	RequestItinerary bool
	// Reset asks the caller to clear the session.
	Reset bool
	// Event is an extra event to publish, empty for none.
	Event model.EventType
}

// Rule is one guard/action pair of a decision table.
type Rule struct {
	Name string
	When func(t *Turn) bool
	Then func(t *Turn) Decision
}

// Commands are checked against the raw utterance before any extraction.
var Commands = []Rule{
	{
		Name: RuleStartOver,
		When: func(t *Turn) bool { return strings.Contains(t.Lower, "start over") },
		Then: func(t *Turn) Decision {
			return Decision{Reset: true}
		},
	},
	{
		Name: RuleSave,
		When: func(t *Turn) bool { return strings.Contains(t.Lower, "save") },
		Then: func(t *Turn) Decision {
			return Decision{
				Slots: t.Slots,
				Reply: text(SavedText),
				Event: model.EventTypeGuideSaved,
			}
		},
	},
	{
		Name: RuleEmail,
		When: func(t *Turn) bool { return strings.Contains(t.Lower, "email") },
		Then: func(t *Turn) Decision {
			return Decision{Slots: t.Slots, Reply: text(EmailText)}
		},
	},
}

// Rules run on the merged slots. The first rule whose guard holds decides the turn.
var Rules = []Rule{
	{
		Name: RuleComplete,
		When: func(t *Turn) bool { return t.Slots.Complete() },
		Then: func(t *Turn) Decision {
			if t.Slots.Duration != "" {
				return Decision{Slots: t.Slots, RequestItinerary: true}
			}
			return Decision{
				Slots: t.Slots,
				Reply: ask(CompleteAskDaysText(t.Slots.Story, t.Slots.Destination), DayOptions),
			}
		},
	},
	{
		Name: RuleDestinationOnly,
		When: func(t *Turn) bool { return t.Slots.Destination != "" && t.Slots.Story == "" },
		Then: func(t *Turn) Decision {
			dest := t.Slots.Destination
			if stories, ok := t.Knowledge.StoriesForDestination(dest); ok && len(stories) > 0 {
				titles := storyTitles(stories, MaxStorySuggestions)
				suggestions := append(titles, JustTheCity)
				return Decision{
					Slots: t.Slots,
					Reply: ask(StoryListText(dest, t.Knowledge.FunFact(dest), titles), suggestions),
				}
			}
			if t.Slots.Duration == "" {
				return Decision{
					Slots: t.Slots,
					Reply: ask(UnknownDestinationAskDaysText(dest), DayOrWeekOptions),
				}
			}
			return Decision{Slots: t.Slots, RequestItinerary: true}
		},
	},
	{
		Name: RuleStoryOnly,
		When: func(t *Turn) bool { return t.Slots.Story != "" && t.Slots.Destination == "" },
		Then: func(t *Turn) Decision {
			story := t.Slots.Story
			if dest, ok := t.Knowledge.DestinationForStory(story); ok {
				slots := t.Slots
				slots.Destination = dest
				return Decision{
					Slots: slots,
					Reply: ask(SuggestedDestinationText(story, dest), DayOptions),
				}
			}
			return Decision{Slots: t.Slots, Reply: text(AskDestinationText(story))}
		},
	},
	{
		Name: RuleJustTheCity,
		When: func(t *Turn) bool {
			return t.Slots.Destination != "" &&
				(strings.Contains(t.Lower, "just the city") || strings.Contains(t.Lower, "city itself"))
		},
		Then: func(t *Turn) Decision {
			slots := t.Slots
			slots.Story = ""
			if slots.Duration != "" {
				return Decision{Slots: slots, RequestItinerary: true}
			}
			return Decision{
				Slots: slots,
				Reply: ask(CityOnlyAskDaysText(slots.Destination), DayOrWeekOptions),
			}
		},
	},
	{
		Name: RuleUnknown,
		When: func(t *Turn) bool { return t.Slots.Destination == "" && t.Slots.Story == "" },
		Then: func(t *Turn) Decision {
			return Decision{Slots: t.Slots, Reply: text(GreetingText)}
		},
	},
}

// Decide runs the commands, then extraction and the rules, for one utterance.
func Decide(kb Knowledge, prior model.Slots, utterance string) Decision {
	t := &Turn{
		Utterance: utterance,
		Lower:     strings.ToLower(utterance),
		Slots:     prior,
		Knowledge: kb,
	}
	if d, ok := first(Commands, t); ok {
		return d
	}

	t.Slots = prior.Merge(extract.Extract(utterance))
	if d, ok := first(Rules, t); ok {
		return d
	}
	return Decision{Rule: RuleNone, Slots: t.Slots}
}

func first(rules []Rule, t *Turn) (Decision, bool) {
	for _, r := range rules {
		if r.When(t) {
			d := r.Then(t)
			d.Rule = r.Name
			return d, true
		}
	}
	return Decision{}, false
}

func storyTitles(stories []model.StoryEntry, limit int) []string {
	if len(stories) > limit {
		stories = stories[:limit]
	}
	titles := make([]string, len(stories))
	for i, s := range stories {
		titles[i] = s.Story
	}
	return titles
}

func text(content string) *Reply {
	return &Reply{Content: content, Kind: model.KindText}
}

func ask(content string, suggestions []string) *Reply {
	return &Reply{
		Content:     content,
		Suggestions: append([]string(nil), suggestions...),
		Kind:        model.KindSuggestions,
	}
}
