package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/kultrip/story-travel/internal/middleware"
	"github.com/kultrip/story-travel/internal/model"
	"github.com/kultrip/story-travel/pkg/logger"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

// HistoryReader replays the durable event log of a session.
type HistoryReader interface {
	History(ctx context.Context, sessionID string, afterSequence uint64, limit int) ([]model.SessionEvent, uint64, bool, error)
}

// EventHistoryResponse is one page of replayed session events.
type EventHistoryResponse struct {
	Events       []model.SessionEvent `json:"events"`
	LastSequence uint64               `json:"last_sequence"`
	HasMore      bool                 `json:"has_more"`
}

// EventHandler serves the event log.
type EventHandler struct {
	history HistoryReader
	logger  *logger.Logger
}

// NewEventHandler creates a new event handler.
func NewEventHandler(history HistoryReader, log *logger.Logger) *EventHandler {
	return &EventHandler{
		history: history,
		logger:  log,
	}
}

// List handles GET /api/v1/sessions/:id/events
// Supports ?after_sequence=N and ?limit=N for paging.
func (h *EventHandler) List(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	if err := middleware.ValidateSessionID(sessionID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var afterSequence uint64
	if v := r.URL.Query().Get("after_sequence"); v != "" {
		seq, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid after_sequence")
			return
		}
		afterSequence = seq
	}

	limit := defaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	evs, last, more, err := h.history.History(r.Context(), sessionID, afterSequence, limit)
	if err != nil {
		h.logger.Error("failed to read event history",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "failed to read events")
		return
	}
	if evs == nil {
		evs = []model.SessionEvent{}
	}
	if last == 0 {
		last = afterSequence
	}

	writeJSON(w, http.StatusOK, &EventHistoryResponse{
		Events:       evs,
		LastSequence: last,
		HasMore:      more,
	})
}
