package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/kultrip/story-travel/internal/middleware"
	"github.com/kultrip/story-travel/internal/model"
	"github.com/kultrip/story-travel/internal/service"
	"github.com/kultrip/story-travel/pkg/logger"
)

// MessageHandler handles the two inbound turn operations.
type MessageHandler struct {
	messageService *service.MessageService
	logger         *logger.Logger
}

// NewMessageHandler creates a new message handler.
func NewMessageHandler(msgSvc *service.MessageService, log *logger.Logger) *MessageHandler {
	return &MessageHandler{
		messageService: msgSvc,
		logger:         log,
	}
}

// Send handles POST /api/v1/sessions/:id/messages
func (h *MessageHandler) Send(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	if err := middleware.ValidateSessionID(sessionID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req model.SendMessageRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := middleware.ValidateUtterance(req.Content); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := h.messageService.Submit(r.Context(), sessionID, req.Content)
	h.respond(w, r, res, err)
}

// Suggest handles POST /api/v1/sessions/:id/suggestions
func (h *MessageHandler) Suggest(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	if err := middleware.ValidateSessionID(sessionID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req model.SuggestionRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := middleware.ValidateUtterance(req.Suggestion); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := h.messageService.ClickSuggestion(r.Context(), sessionID, req.Suggestion)
	h.respond(w, r, res, err)
}

func (h *MessageHandler) respond(w http.ResponseWriter, r *http.Request, res *model.TurnResult, err error) {
	if err != nil {
		h.logger.Warn("turn rejected",
			zap.String("session_id", chi.URLParam(r, "id")),
			zap.String("correlation_id", middleware.GetCorrelationID(r.Context())),
			zap.Error(err),
		)
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
