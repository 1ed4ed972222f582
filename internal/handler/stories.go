package handler

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/kultrip/story-travel/internal/knowledge"
	"github.com/kultrip/story-travel/internal/model"
)

// StoryHandler exposes the knowledge base read-only.
type StoryHandler struct {
	kb *knowledge.Base
}

// NewStoryHandler creates a new story handler.
func NewStoryHandler(kb *knowledge.Base) *StoryHandler {
	return &StoryHandler{kb: kb}
}

// Destinations handles GET /api/v1/destinations
func (h *StoryHandler) Destinations(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{
		"destinations": h.kb.Destinations(),
	})
}

// Stories handles GET /api/v1/destinations/:name/stories
func (h *StoryHandler) Stories(w http.ResponseWriter, r *http.Request) {
	name, ok := pathParam(r, "name")
	if !ok {
		writeError(w, http.StatusBadRequest, "destination is required")
		return
	}

	stories, found := h.kb.StoriesForDestination(name)
	if !found {
		writeError(w, http.StatusNotFound, "destination not found")
		return
	}

	writeJSON(w, http.StatusOK, &model.DestinationStories{
		Destination: name,
		FunFact:     h.kb.FunFact(name),
		Stories:     stories,
	})
}

// Destination handles GET /api/v1/stories/:title/destination
func (h *StoryHandler) Destination(w http.ResponseWriter, r *http.Request) {
	title, ok := pathParam(r, "title")
	if !ok {
		writeError(w, http.StatusBadRequest, "story is required")
		return
	}

	dest, found := h.kb.DestinationForStory(title)
	if !found {
		writeError(w, http.StatusNotFound, "story not found")
		return
	}

	writeJSON(w, http.StatusOK, &model.StoryDestination{
		Story:       title,
		Destination: dest,
	})
}

func pathParam(r *http.Request, key string) (string, bool) {
	raw := chi.URLParam(r, key)
	v, err := url.PathUnescape(raw)
	if err != nil {
		v = raw
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}
