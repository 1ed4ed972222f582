package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kultrip/story-travel/internal/events"
	"github.com/kultrip/story-travel/internal/handler"
	"github.com/kultrip/story-travel/internal/knowledge"
	"github.com/kultrip/story-travel/internal/middleware"
	"github.com/kultrip/story-travel/internal/model"
	"github.com/kultrip/story-travel/internal/service"
	"github.com/kultrip/story-travel/internal/session"
	"github.com/kultrip/story-travel/pkg/logger"
	"github.com/kultrip/story-travel/pkg/client"
)

type staticPlanner struct{}

func (staticPlanner) Generate(context.Context, *model.ItineraryRequest) (json.RawMessage, error) {
	return json.RawMessage(`{"days":[]}`), nil
}

func newAPIServer(t *testing.T) *httptest.Server {
	t.Helper()
	kb, err := knowledge.Default()
	require.NoError(t, err)

	log := logger.Nop()
	hub := events.NewHub(events.DefaultBuffer, log)
	sessions := service.NewSessionService(session.NewMemoryStore(time.Hour), hub, log)
	messages := service.NewMessageService(sessions, kb, staticPlanner{}, 0, log)
	issuer := middleware.NewTokenIssuer("test-secret", time.Hour)

	srv := httptest.NewServer(handler.NewRouter(handler.RouterConfig{
		Health:            handler.NewHealthHandler(),
		Sessions:          handler.NewSessionHandler(sessions, issuer, log),
		Messages:          handler.NewMessageHandler(messages, log),
		Stream:            handler.NewStreamHandler(sessions, hub, time.Hour, log),
		Websocket:         handler.NewWebsocketHandler(sessions, messages, hub, nil, log),
		Stories:           handler.NewStoryHandler(kb),
		Issuer:            issuer,
		RateLimitRequests: 1000,
		RateLimitWindow:   time.Minute,
		Logger:            log,
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestResolveInput(t *testing.T) {
	suggestions := []string{"1 day", "2 day", "3 day"}

	text, clicked := ResolveInput("2", suggestions)
	require.True(t, clicked)
	require.Equal(t, "2 day", text)

	text, clicked = ResolveInput("4", suggestions)
	require.False(t, clicked)
	require.Equal(t, "4", text)

	text, clicked = ResolveInput("Paris", suggestions)
	require.False(t, clicked)
	require.Equal(t, "Paris", text)
}

func TestChatLoop(t *testing.T) {
	var clicks []string
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/sessions/s1/messages", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(&model.TurnResult{
			Session: &model.SessionView{ID: "s1", Messages: make([]model.Message, 2)},
			Appended: []model.Message{
				{Role: model.RoleUser, Content: "Harry Potter in London"},
				{Role: model.RoleAssistant, Content: "How many days?", Suggestions: []string{"1 day", "2 day"}},
			},
		})
	})
	mux.HandleFunc("POST /api/v1/sessions/s1/suggestions", func(w http.ResponseWriter, r *http.Request) {
		var req model.SuggestionRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		clicks = append(clicks, req.Suggestion)
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"error":"busy"}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	view := &model.SessionView{
		ID:          "s1",
		Placeholder: "Where would you like to go? Or what story inspires you?",
		Starters:    model.StarterSuggestions,
	}
	in := strings.NewReader("Harry Potter in London\n2\n/quit\n")
	var out bytes.Buffer

	err := chatLoop(context.Background(), client.New(srv.URL), view, in, &out)
	require.NoError(t, err)

	require.Equal(t, []string{"2 day"}, clicks)
	got := out.String()
	require.Contains(t, got, "[1] Harry Potter in London")
	require.Contains(t, got, "How many days?")
	require.Contains(t, got, "[2] 2 day")
	require.Contains(t, got, "Still preparing your itinerary")
}

func TestChatLoop_StartOverShowsLanding(t *testing.T) {
	srv := newAPIServer(t)
	ctx := context.Background()
	c := client.New(srv.URL)

	created, err := c.CreateSession(ctx, "")
	require.NoError(t, err)

	// The itinerary reply offers "Save my guide", "Send to email", "Start over".
	in := strings.NewReader("Harry Potter in London for 2 days\n3\n/quit\n")
	var out bytes.Buffer
	require.NoError(t, chatLoop(ctx, c, created.Session, in, &out))

	got := out.String()
	landing := "Where would you like to go? Or what story inspires you?"
	require.Equal(t, 2, strings.Count(got, landing), got)
	require.Contains(t, got, "Your Harry Potter Adventure in London")
	after := got[strings.LastIndex(got, landing):]
	for i, starter := range model.StarterSuggestions {
		require.Contains(t, after, fmt.Sprintf("[%d] %s", i+1, starter))
	}

	view, err := c.GetSession(ctx, created.Session.ID)
	require.NoError(t, err)
	require.False(t, view.Started)
	require.Empty(t, view.Messages)
}
