package handler

import (
	"context"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/kultrip/story-travel/internal/events"
	"github.com/kultrip/story-travel/internal/middleware"
	"github.com/kultrip/story-travel/internal/model"
	"github.com/kultrip/story-travel/internal/service"
	"github.com/kultrip/story-travel/pkg/logger"
	"github.com/kultrip/story-travel/pkg/metrics"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10
	wsOutBuffer  = 16
)

// Frame types exchanged over the socket.
const (
	FrameSubmit     = "submit"
	FrameSuggestion = "suggestion"
	FrameSession    = "session"
	FrameEvent      = "event"
	FrameResult     = "result"
	FrameError      = "error"
)

// InboundFrame is sent by the client.
type InboundFrame struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// OutboundFrame is sent to the client. Exactly one payload field is set.
type OutboundFrame struct {
	Type    string              `json:"type"`
	Session *model.SessionView  `json:"session,omitempty"`
	Event   *model.SessionEvent `json:"event,omitempty"`
	Result  *model.TurnResult   `json:"result,omitempty"`
	Error   *model.ErrorEvent   `json:"error,omitempty"`
}

// WebsocketHandler runs a chat session over a single websocket.
type WebsocketHandler struct {
	sessions *service.SessionService
	messages *service.MessageService
	hub      *events.Hub
	upgrader websocket.Upgrader
	logger   *logger.Logger
}

// NewWebsocketHandler creates a new websocket handler. An empty or "*"
// origin list accepts any origin.
func NewWebsocketHandler(
	sessions *service.SessionService,
	messages *service.MessageService,
	hub *events.Hub,
	allowedOrigins []string,
	log *logger.Logger,
) *WebsocketHandler {
	return &WebsocketHandler{
		sessions: sessions,
		messages: messages,
		hub:      hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin(allowedOrigins),
		},
		logger: log,
	}
}

// checkOrigin accepts the same origin patterns as the CORS middleware: exact
// origins or a single "*" wildcard such as "https://*.kultrip.com".
func checkOrigin(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 || slices.Contains(allowed, "*") {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := strings.ToLower(r.Header.Get("Origin"))
		if origin == "" {
			return true
		}
		for _, pattern := range allowed {
			pattern = strings.ToLower(pattern)
			prefix, suffix, wildcard := strings.Cut(pattern, "*")
			if origin == pattern ||
				wildcard && len(origin) >= len(prefix)+len(suffix) &&
					strings.HasPrefix(origin, prefix) && strings.HasSuffix(origin, suffix) {
				return true
			}
		}
		return false
	}
}

// Handle handles GET /api/v1/sessions/:id/ws
func (h *WebsocketHandler) Handle(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	if err := middleware.ValidateSessionID(sessionID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	sub := h.hub.Subscribe(sessionID)
	defer sub.Close()

	sess, err := h.sessions.Get(r.Context(), sessionID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	metrics.WebsocketConnectionsActive.Inc()
	defer metrics.WebsocketConnectionsActive.Dec()

	log := h.logger.WithRequest(middleware.GetCorrelationID(r.Context()), sessionID)
	log.Debug("websocket connected")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out := make(chan *OutboundFrame, wsOutBuffer)
	out <- &OutboundFrame{Type: FrameSession, Session: sess.View()}

	var writer sync.WaitGroup
	writer.Add(1)
	go func() {
		defer writer.Done()
		defer conn.Close() // unblocks the reader
		defer cancel()
		h.writeLoop(ctx, conn, sub, out, log)
	}()

	// Turns still running after the reader returns settle in the background;
	// their results are dropped.
	h.readLoop(ctx, conn, sessionID, out, log)

	cancel()
	writer.Wait()
	log.Debug("websocket disconnected")
}

func (h *WebsocketHandler) readLoop(
	ctx context.Context,
	conn *websocket.Conn,
	sessionID string,
	out chan<- *OutboundFrame,
	log *logger.Logger,
) {
	conn.SetReadLimit(int64(middleware.MaxUtteranceLength) * 2)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	send := func(f *OutboundFrame) {
		select {
		case out <- f:
		case <-ctx.Done():
		}
	}

	for {
		var in InboundFrame
		if err := conn.ReadJSON(&in); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn("websocket read failed", zap.Error(err))
			}
			return
		}

		if err := middleware.ValidateUtterance(in.Text); err != nil {
			send(errorFrame("invalid_request", err.Error()))
			continue
		}

		var turn func(context.Context, string, string) (*model.TurnResult, error)
		switch in.Type {
		case FrameSubmit:
			turn = h.messages.Submit
		case FrameSuggestion:
			turn = h.messages.ClickSuggestion
		default:
			send(errorFrame("invalid_request", "unknown frame type"))
			continue
		}

		go func(text string) {
			res, err := turn(ctx, sessionID, text)
			if err != nil {
				send(turnErrorFrame(err))
				return
			}
			send(&OutboundFrame{Type: FrameResult, Result: res})
		}(in.Text)
	}
}

func (h *WebsocketHandler) writeLoop(
	ctx context.Context,
	conn *websocket.Conn,
	sub *events.Subscription,
	out <-chan *OutboundFrame,
	log *logger.Logger,
) {
	ping := time.NewTicker(wsPingPeriod)
	defer ping.Stop()

	write := func(f *OutboundFrame) bool {
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		if err := conn.WriteJSON(f); err != nil {
			log.Debug("websocket write failed", zap.Error(err))
			return false
		}
		return true
	}

	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(wsWriteWait))
			return

		case f := <-out:
			if !write(f) {
				return
			}

		case ev, ok := <-sub.C():
			if !ok {
				return
			}
			if !write(&OutboundFrame{Type: FrameEvent, Event: ev}) {
				return
			}

		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		}
	}
}

func errorFrame(code, msg string) *OutboundFrame {
	return &OutboundFrame{Type: FrameError, Error: &model.ErrorEvent{Code: code, Message: msg}}
}

func turnErrorFrame(err error) *OutboundFrame {
	status, msg := serviceErrorStatus(err)
	code := "internal"
	switch status {
	case http.StatusNotFound:
		code = "not_found"
	case http.StatusConflict:
		code = "busy"
	case http.StatusBadRequest:
		code = "invalid_request"
	}
	return errorFrame(code, msg)
}
