package handler

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/kultrip/story-travel/internal/events"
	"github.com/kultrip/story-travel/internal/knowledge"
	"github.com/kultrip/story-travel/internal/middleware"
	"github.com/kultrip/story-travel/internal/model"
	"github.com/kultrip/story-travel/internal/service"
	"github.com/kultrip/story-travel/internal/session"
	"github.com/kultrip/story-travel/pkg/logger"
)

type stubPlanner struct {
	mu    sync.Mutex
	calls []*model.ItineraryRequest
}

func (p *stubPlanner) Generate(_ context.Context, req *model.ItineraryRequest) (json.RawMessage, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, req)
	return json.RawMessage(`{"days":[{"day":1}]}`), nil
}

func (p *stubPlanner) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

type stubHistory struct {
	after uint64
	limit int
	err   error
}

func (h *stubHistory) History(_ context.Context, _ string, after uint64, limit int) ([]model.SessionEvent, uint64, bool, error) {
	h.after, h.limit = after, limit
	if h.err != nil {
		return nil, 0, false, h.err
	}
	return []model.SessionEvent{{ID: "e1", Type: model.EventTypeMessage, Sequence: after + 1}}, after + 1, true, nil
}

type testAPI struct {
	handler  http.Handler
	sessions *service.SessionService
	planner  *stubPlanner
	history  *stubHistory
}

func newTestAPI(t *testing.T, checkers ...Checker) *testAPI {
	t.Helper()
	kb, err := knowledge.Default()
	require.NoError(t, err)

	log := logger.Nop()
	hub := events.NewHub(events.DefaultBuffer, log)
	sessions := service.NewSessionService(session.NewMemoryStore(time.Hour), hub, log)
	planner := &stubPlanner{}
	messages := service.NewMessageService(sessions, kb, planner, 0, log)
	issuer := middleware.NewTokenIssuer("test-secret", time.Hour)
	history := &stubHistory{}

	h := NewRouter(RouterConfig{
		Health:            NewHealthHandler(checkers...),
		Sessions:          NewSessionHandler(sessions, issuer, log),
		Messages:          NewMessageHandler(messages, log),
		Stream:            NewStreamHandler(sessions, hub, time.Hour, log),
		Websocket:         NewWebsocketHandler(sessions, messages, hub, nil, log),
		Stories:           NewStoryHandler(kb),
		Events:            NewEventHandler(history, log),
		Issuer:            issuer,
		AllowedOrigins:    []string{"*"},
		RateLimitRequests: 1000,
		RateLimitWindow:   time.Minute,
		Logger:            log,
	})
	return &testAPI{handler: h, sessions: sessions, planner: planner, history: history}
}

func (a *testAPI) do(t *testing.T, method, target, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, target, rd)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

func (a *testAPI) createSession(t *testing.T) (string, string) {
	t.Helper()
	rec := a.do(t, http.MethodPost, "/api/v1/sessions", "", nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp model.CreateSessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Token)
	return resp.Session.ID, resp.Token
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealth(t *testing.T) {
	api := newTestAPI(t)
	rec := api.do(t, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = api.do(t, http.MethodGet, "/ready", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestReady_FailingChecker(t *testing.T) {
	api := newTestAPI(t, Checker{Name: "redis", Check: func(context.Context) error {
		return errors.New("connection refused")
	}})

	rec := api.do(t, http.MethodGet, "/ready", "", nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.JSONEq(t, `{"status":"not ready","reason":"redis not reachable"}`, rec.Body.String())
}

func TestCreateSession(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodPost, "/api/v1/sessions", "", &model.CreateSessionRequest{TravelStyle: "family"})
	require.Equal(t, http.StatusCreated, rec.Code)

	resp := decode[model.CreateSessionResponse](t, rec)
	require.Equal(t, "family", resp.Session.Slots.TravelStyle)
	require.False(t, resp.Session.Started)
	require.Equal(t, model.StarterSuggestions, resp.Session.Starters)
	require.Empty(t, resp.Session.Messages)
	require.True(t, resp.ExpiresAt.After(time.Now()))
}

func TestCreateSession_InvalidBody(t *testing.T) {
	api := newTestAPI(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions", strings.NewReader("{"))
	rec := httptest.NewRecorder()
	api.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(t, http.MethodPost, "/api/v1/sessions", "", &model.CreateSessionRequest{TravelStyle: strings.Repeat("x", 100)})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetSession_RequiresToken(t *testing.T) {
	api := newTestAPI(t)
	id, token := api.createSession(t)
	otherID, _ := api.createSession(t)

	rec := api.do(t, http.MethodGet, "/api/v1/sessions/"+id, "", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = api.do(t, http.MethodGet, "/api/v1/sessions/"+otherID, token, nil)
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = api.do(t, http.MethodGet, "/api/v1/sessions/"+id, token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	view := decode[model.SessionView](t, rec)
	require.Equal(t, id, view.ID)
}

func TestSendMessage_ConversationToItinerary(t *testing.T) {
	api := newTestAPI(t)
	id, token := api.createSession(t)

	rec := api.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/messages", token,
		&model.SendMessageRequest{Content: "Harry Potter in London"})
	require.Equal(t, http.StatusOK, rec.Code)

	res := decode[model.TurnResult](t, rec)
	require.Len(t, res.Appended, 2)
	require.Equal(t, model.RoleUser, res.Appended[0].Role)
	require.Equal(t, "Excellent choice! Harry Potter in London will be magical. How many days would you like to spend there?", res.Appended[1].Content)
	require.Equal(t, []string{"1 day", "2 day", "3 day"}, res.Appended[1].Suggestions)
	require.Zero(t, api.planner.Calls())

	rec = api.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/suggestions", token,
		&model.SuggestionRequest{Suggestion: "2 day"})
	require.Equal(t, http.StatusOK, rec.Code)

	res = decode[model.TurnResult](t, rec)
	require.Equal(t, 1, api.planner.Calls())
	require.False(t, res.Session.Loading)
	last := res.Session.Messages[len(res.Session.Messages)-1]
	require.Equal(t, model.KindItinerary, last.Kind)
	require.JSONEq(t, `{"days":[{"day":1}]}`, string(last.Itinerary))
}

func TestSendMessage_Validation(t *testing.T) {
	api := newTestAPI(t)
	id, token := api.createSession(t)

	rec := api.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/messages", token, &model.SendMessageRequest{Content: "   "})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/messages", token, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/suggestions", token, &model.SuggestionRequest{})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSendMessage_BusyWhileLoading(t *testing.T) {
	api := newTestAPI(t)
	id, token := api.createSession(t)

	_, err := api.sessions.Update(context.Background(), id, func(s *model.Session) error {
		s.Loading = true
		return nil
	})
	require.NoError(t, err)

	rec := api.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/messages", token, &model.SendMessageRequest{Content: "Paris"})
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestRestartAndDeleteSession(t *testing.T) {
	api := newTestAPI(t)
	id, token := api.createSession(t)

	rec := api.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/messages", token,
		&model.SendMessageRequest{Content: "I want to visit Paris"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = api.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/reset", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	view := decode[model.SessionView](t, rec)
	require.Empty(t, view.Messages)
	require.False(t, view.Started)
	require.Equal(t, model.Slots{}, view.Slots)
	require.Equal(t, model.StarterSuggestions, view.Starters)

	rec = api.do(t, http.MethodDelete, "/api/v1/sessions/"+id, token, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = api.do(t, http.MethodGet, "/api/v1/sessions/"+id, token, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSuggestion_StartOverReturnsLandingView(t *testing.T) {
	api := newTestAPI(t)
	rec := api.do(t, http.MethodPost, "/api/v1/sessions", "", &model.CreateSessionRequest{TravelStyle: "family"})
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decode[model.CreateSessionResponse](t, rec)
	id, token := created.Session.ID, created.Token

	rec = api.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/messages", token,
		&model.SendMessageRequest{Content: "Harry Potter in London for 2 days"})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 1, api.planner.Calls())

	rec = api.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/suggestions", token,
		&model.SuggestionRequest{Suggestion: "Start over"})
	require.Equal(t, http.StatusOK, rec.Code)

	res := decode[model.TurnResult](t, rec)
	require.Empty(t, res.Appended)
	require.False(t, res.Discarded)
	require.False(t, res.Session.Started)
	require.Empty(t, res.Session.Messages)
	require.Equal(t, model.StarterSuggestions, res.Session.Starters)
	require.Equal(t, "Where would you like to go? Or what story inspires you?", res.Session.Placeholder)
	require.Equal(t, model.Slots{TravelStyle: "family"}, res.Session.Slots)
}

func TestStories(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodGet, "/api/v1/destinations", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[map[string][]string](t, rec)
	require.Len(t, list["destinations"], 20)

	rec = api.do(t, http.MethodGet, "/api/v1/destinations/Paris/stories", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	stories := decode[model.DestinationStories](t, rec)
	require.Equal(t, "Paris", stories.Destination)
	require.NotEmpty(t, stories.Stories)
	require.NotEqual(t, knowledge.DefaultFunFact, stories.FunFact)

	rec = api.do(t, http.MethodGet, "/api/v1/destinations/Atlantis/stories", "", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = api.do(t, http.MethodGet, "/api/v1/stories/"+url.PathEscape("Harry Potter")+"/destination", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	dest := decode[model.StoryDestination](t, rec)
	require.Equal(t, "London", dest.Destination)

	rec = api.do(t, http.MethodGet, "/api/v1/stories/"+url.PathEscape("Unknown Saga")+"/destination", "", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestEventHistory(t *testing.T) {
	api := newTestAPI(t)
	id, token := api.createSession(t)

	rec := api.do(t, http.MethodGet, "/api/v1/sessions/"+id+"/events?after_sequence=7&limit=9999", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, uint64(7), api.history.after)
	require.Equal(t, maxHistoryLimit, api.history.limit)

	resp := decode[EventHistoryResponse](t, rec)
	require.Len(t, resp.Events, 1)
	require.Equal(t, uint64(8), resp.LastSequence)
	require.True(t, resp.HasMore)

	rec = api.do(t, http.MethodGet, "/api/v1/sessions/"+id+"/events?limit=zero", token, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	api.history.err = errors.New("stream gone")
	rec = api.do(t, http.MethodGet, "/api/v1/sessions/"+id+"/events", token, nil)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

type sseEvent struct {
	name string
	data string
}

func readSSE(t *testing.T, rd *bufio.Reader) sseEvent {
	t.Helper()
	var ev sseEvent
	for {
		line, err := rd.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		switch {
		case strings.HasPrefix(line, "event: "):
			ev.name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			ev.data = strings.TrimPrefix(line, "data: ")
		case line == "" && ev.name != "":
			return ev
		}
	}
}

func TestStream_SnapshotThenEvents(t *testing.T) {
	api := newTestAPI(t)
	srv := httptest.NewServer(api.handler)
	defer srv.Close()
	id, token := api.createSession(t)

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(srv.URL + "/api/v1/sessions/" + id + "/stream?token=" + token)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	rd := bufio.NewReader(resp.Body)
	require.Equal(t, "connected", readSSE(t, rd).name)

	snapshot := readSSE(t, rd)
	require.Equal(t, "session", snapshot.name)
	var view model.SessionView
	require.NoError(t, json.Unmarshal([]byte(snapshot.data), &view))
	require.Equal(t, id, view.ID)

	rec := api.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/messages", token,
		&model.SendMessageRequest{Content: "I want to visit Paris"})
	require.Equal(t, http.StatusOK, rec.Code)

	first := readSSE(t, rd)
	require.Equal(t, "message", first.name)
	var ev model.SessionEvent
	require.NoError(t, json.Unmarshal([]byte(first.data), &ev))
	require.Equal(t, model.RoleUser, ev.Message.Role)
	require.Equal(t, "I want to visit Paris", ev.Message.Content)

	second := readSSE(t, rd)
	require.Equal(t, "message", second.name)
	require.NoError(t, json.Unmarshal([]byte(second.data), &ev))
	require.Equal(t, model.RoleAssistant, ev.Message.Role)
}

func TestStream_UnknownSession(t *testing.T) {
	api := newTestAPI(t)
	id, token := api.createSession(t)
	require.NoError(t, api.sessions.Delete(context.Background(), id))

	rec := api.do(t, http.MethodGet, "/api/v1/sessions/"+id+"/stream", token, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWebsocket_Turns(t *testing.T) {
	api := newTestAPI(t)
	srv := httptest.NewServer(api.handler)
	defer srv.Close()
	id, token := api.createSession(t)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/sessions/" + id + "/ws?token=" + token
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var frame OutboundFrame
	require.NoError(t, conn.ReadJSON(&frame))
	require.Equal(t, FrameSession, frame.Type)
	require.Equal(t, id, frame.Session.ID)

	require.NoError(t, conn.WriteJSON(&InboundFrame{Type: "shout", Text: "hi"}))
	frame = OutboundFrame{}
	require.NoError(t, conn.ReadJSON(&frame))
	require.Equal(t, FrameError, frame.Type)
	require.Equal(t, "invalid_request", frame.Error.Code)

	require.NoError(t, conn.WriteJSON(&InboundFrame{Type: FrameSubmit, Text: "I want to visit Paris"}))

	// Live events may arrive on either side of the result.
	for {
		frame = OutboundFrame{}
		require.NoError(t, conn.ReadJSON(&frame))
		if frame.Type != FrameEvent {
			break
		}
	}
	require.Equal(t, FrameResult, frame.Type)
	require.Equal(t, "Paris", frame.Result.Session.Slots.Destination)
	require.Len(t, frame.Result.Appended, 2)
}

func TestCheckOrigin(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://evil.example")

	require.True(t, checkOrigin(nil)(req))
	require.True(t, checkOrigin([]string{"*"})(req))
	require.False(t, checkOrigin([]string{"https://kultrip.com"})(req))

	req.Header.Set("Origin", "https://kultrip.com")
	require.True(t, checkOrigin([]string{"https://kultrip.com"})(req))

	req.Header.Set("Origin", "https://app.kultrip.com")
	require.True(t, checkOrigin([]string{"https://*.kultrip.com"})(req))
	require.True(t, checkOrigin([]string{"https://*"})(req))
	require.False(t, checkOrigin([]string{"http://*"})(req))
}
