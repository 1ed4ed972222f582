// Package handler provides HTTP handlers for the API.
package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/kultrip/story-travel/internal/middleware"
	"github.com/kultrip/story-travel/internal/model"
	"github.com/kultrip/story-travel/internal/service"
	"github.com/kultrip/story-travel/pkg/logger"
	"github.com/kultrip/story-travel/pkg/metrics"
)

// SessionHandler handles session endpoints.
type SessionHandler struct {
	service *service.SessionService
	issuer  *middleware.TokenIssuer
	logger  *logger.Logger
}

// NewSessionHandler creates a new session handler.
func NewSessionHandler(svc *service.SessionService, issuer *middleware.TokenIssuer, log *logger.Logger) *SessionHandler {
	return &SessionHandler{
		service: svc,
		issuer:  issuer,
		logger:  log,
	}
}

// Create handles POST /api/v1/sessions
func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req model.CreateSessionRequest
	if err := decodeJSON(w, r, &req, true); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := middleware.ValidateTravelStyle(req.TravelStyle); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	sess, err := h.service.Create(ctx, &req)
	if err != nil {
		h.logger.Error("failed to create session", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to create session")
		return
	}

	token, expiresAt, err := h.issuer.Issue(sess.ID)
	if err != nil {
		h.logger.Error("failed to issue session token", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to create session")
		return
	}
	metrics.SessionsCreatedTotal.WithLabelValues("http").Inc()

	writeJSON(w, http.StatusCreated, &model.CreateSessionResponse{
		Session:   sess.View(),
		Token:     token,
		ExpiresAt: expiresAt,
	})
}

// Get handles GET /api/v1/sessions/:id
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	if err := middleware.ValidateSessionID(sessionID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	sess, err := h.service.Get(r.Context(), sessionID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, sess.View())
}

// Restart handles POST /api/v1/sessions/:id/reset
func (h *SessionHandler) Restart(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	if err := middleware.ValidateSessionID(sessionID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	sess, err := h.service.Restart(r.Context(), sessionID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, sess.View())
}

// Delete handles DELETE /api/v1/sessions/:id
func (h *SessionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	if err := middleware.ValidateSessionID(sessionID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.service.Delete(r.Context(), sessionID); err != nil {
		writeServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
