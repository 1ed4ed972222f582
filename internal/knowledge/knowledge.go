// Package knowledge holds the static table linking destinations to the stories
// set there.
package knowledge

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kultrip/story-travel/internal/model"
)

// DefaultFunFact is used for destinations without an entry in the fact table.
const DefaultFunFact = "This destination has inspired countless stories!"

//go:embed stories.yaml
var defaultTable []byte

type destination struct {
	Name    string             `yaml:"name"`
	FunFact string             `yaml:"fun_fact"`
	Stories []model.StoryEntry `yaml:"stories"`
}

type table struct {
	Destinations []destination `yaml:"destinations"`
}

// Base is a read-only lookup over the destination table. Destination order is
// the order of the source file and breaks ties in DestinationForStory.
type Base struct {
	destinations []destination
	byName       map[string]int
}

// Default returns the embedded table.
func Default() (*Base, error) {
	return Parse(defaultTable)
}

// Load reads a table from path, or the embedded one when path is empty.
func Load(path string) (*Base, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read knowledge base: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML table.
func Parse(data []byte) (*Base, error) {
	var t table
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parse knowledge base: %w", err)
	}
	if len(t.Destinations) == 0 {
		return nil, errors.New("knowledge base has no destinations")
	}

	b := &Base{
		destinations: t.Destinations,
		byName:       make(map[string]int, len(t.Destinations)),
	}
	for i, d := range t.Destinations {
		name := strings.TrimSpace(d.Name)
		if name == "" {
			return nil, fmt.Errorf("destination %d has no name", i)
		}
		key := strings.ToLower(name)
		if _, dup := b.byName[key]; dup {
			return nil, fmt.Errorf("duplicate destination %q", name)
		}
		for j, s := range d.Stories {
			if strings.TrimSpace(s.Story) == "" {
				return nil, fmt.Errorf("destination %q: story %d has no title", name, j)
			}
		}
		b.destinations[i].Name = name
		b.byName[key] = i
	}
	return b, nil
}

// StoriesForDestination returns the stories of the destination whose name
// equals name, ignoring case.
func (b *Base) StoriesForDestination(name string) ([]model.StoryEntry, bool) {
	i, ok := b.byName[strings.ToLower(name)]
	if !ok {
		return nil, false
	}
	return append([]model.StoryEntry(nil), b.destinations[i].Stories...), true
}

// DestinationForStory returns the first destination with a story whose title
// contains title or is contained in it, ignoring case. Short queries match
// loosely on purpose so partial titles still resolve.
func (b *Base) DestinationForStory(title string) (string, bool) {
	query := strings.ToLower(title)
	for _, d := range b.destinations {
		for _, s := range d.Stories {
			stored := strings.ToLower(s.Story)
			if strings.Contains(stored, query) || strings.Contains(query, stored) {
				return d.Name, true
			}
		}
	}
	return "", false
}

// FunFact returns the fact for a destination or DefaultFunFact.
func (b *Base) FunFact(name string) string {
	if i, ok := b.byName[strings.ToLower(name)]; ok && b.destinations[i].FunFact != "" {
		return b.destinations[i].FunFact
	}
	return DefaultFunFact
}

// Destinations lists destination names in table order.
func (b *Base) Destinations() []string {
	names := make([]string, len(b.destinations))
	for i, d := range b.destinations {
		names[i] = d.Name
	}
	return names
}
