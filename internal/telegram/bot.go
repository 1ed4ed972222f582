// Package telegram runs the travel chat as a Telegram bot. Every chat maps to
// one session; quick replies are rendered as inline keyboards.
package telegram

import (
	"context"
	"errors"
	"runtime/debug"
	"strings"
	"sync"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"go.uber.org/zap"

	"github.com/kultrip/story-travel/internal/model"
	"github.com/kultrip/story-travel/internal/service"
	"github.com/kultrip/story-travel/pkg/logger"
	"github.com/kultrip/story-travel/pkg/metrics"
)

const busyText = "⏳ I'm still preparing your itinerary, hang tight!"

// Sender is the part of the Bot API the handler talks to.
type Sender interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
	SendChatAction(ctx context.Context, params *bot.SendChatActionParams) (bool, error)
}

// Handler turns Telegram updates into conversation turns.
type Handler struct {
	sessions *service.SessionService
	messages *service.MessageService
	logger   *logger.Logger

	mu    sync.Mutex
	chats map[int64]string
	// opening serializes session creation so concurrent updates for a new
	// chat share one session.
	opening sync.Mutex

	turns sync.WaitGroup
}

// NewHandler creates a new Telegram handler.
func NewHandler(sessions *service.SessionService, messages *service.MessageService, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.Nop()
	}
	return &Handler{
		sessions: sessions,
		messages: messages,
		logger:   log.With(zap.String("transport", "telegram")),
		chats:    make(map[int64]string),
	}
}

// New creates a bot wired to h.
func New(token string, h *Handler) (*bot.Bot, error) {
	b, err := bot.New(token,
		bot.WithMiddlewares(h.recover),
		bot.WithDefaultHandler(h.handleText),
	)
	if err != nil {
		return nil, err
	}

	b.RegisterHandler(bot.HandlerTypeMessageText, "/start", bot.MatchTypePrefix, h.handleStart)
	b.RegisterHandler(bot.HandlerTypeCallbackQueryData, suggestionPrefix, bot.MatchTypePrefix, h.handleSuggestion)
	return b, nil
}

// Run polls for updates until ctx is done, then waits for running turns.
func (h *Handler) Run(ctx context.Context, b *bot.Bot) {
	h.logger.Info("telegram bot started")
	b.Start(ctx)
	h.turns.Wait()
	h.logger.Info("telegram bot stopped")
}

func (h *Handler) recover(next bot.HandlerFunc) bot.HandlerFunc {
	return func(ctx context.Context, b *bot.Bot, update *models.Update) {
		defer func() {
			if r := recover(); r != nil {
				h.logger.Error("panic recovered in telegram handler",
					zap.Any("panic", r),
					zap.String("stack", string(debug.Stack())),
				)
			}
		}()
		next(ctx, b, update)
	}
}

func (h *Handler) handleStart(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}
	metrics.TelegramUpdatesTotal.WithLabelValues("start").Inc()
	h.Start(ctx, b, update.Message.Chat.ID)
}

func (h *Handler) handleText(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil || update.Message.Text == "" {
		return
	}
	if strings.HasPrefix(update.Message.Text, "/") {
		return
	}
	metrics.TelegramUpdatesTotal.WithLabelValues("text").Inc()

	chatID, text := update.Message.Chat.ID, update.Message.Text
	h.turns.Add(1)
	go func() {
		defer h.turns.Done()
		h.Converse(ctx, b, chatID, text, false)
	}()
}

func (h *Handler) handleSuggestion(ctx context.Context, b *bot.Bot, update *models.Update) {
	cq := update.CallbackQuery
	if cq == nil {
		return
	}
	metrics.TelegramUpdatesTotal.WithLabelValues("callback").Inc()

	if _, err := b.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{CallbackQueryID: cq.ID}); err != nil {
		h.logger.Warn("failed to answer callback query", zap.Error(err))
	}

	suggestion, ok := SuggestionFromCallback(cq.Data)
	if !ok {
		return
	}

	// Private chats share their id with the user.
	chatID := cq.From.ID
	if cq.Message.Message != nil {
		chatID = cq.Message.Message.Chat.ID
	}

	h.turns.Add(1)
	go func() {
		defer h.turns.Done()
		h.Converse(ctx, b, chatID, suggestion, true)
	}()
}

// Start opens a fresh session for the chat, or restarts the current one, and
// shows the landing prompt with the starter suggestions.
func (h *Handler) Start(ctx context.Context, s Sender, chatID int64) {
	log := h.logger.With(zap.Int64("chat_id", chatID))

	id, fresh, err := h.ensureSession(ctx, chatID)
	var sess *model.Session
	if err == nil && !fresh {
		sess, err = h.sessions.Restart(ctx, id)
		if errors.Is(err, service.ErrNotFound) {
			h.forget(chatID, id)
			id, _, err = h.ensureSession(ctx, chatID)
		}
	}
	if err == nil && sess == nil {
		sess, err = h.sessions.Get(ctx, id)
	}
	if err != nil {
		log.Error("failed to start session", zap.Error(err))
		return
	}

	h.landing(ctx, s, chatID, sess.View())
}

// Converse runs one turn for the chat and sends the assistant replies.
func (h *Handler) Converse(ctx context.Context, s Sender, chatID int64, text string, clicked bool) {
	log := h.logger.With(zap.Int64("chat_id", chatID))

	sessionID, _, err := h.ensureSession(ctx, chatID)
	if err != nil {
		log.Error("failed to open session", zap.Error(err))
		return
	}

	if _, err := s.SendChatAction(ctx, &bot.SendChatActionParams{ChatID: chatID, Action: models.ChatActionTyping}); err != nil {
		log.Debug("failed to send typing action", zap.Error(err))
	}

	res, err := h.turn(ctx, sessionID, text, clicked)
	if errors.Is(err, service.ErrNotFound) {
		// The session expired between turns.
		h.forget(chatID, sessionID)
		if sessionID, _, err = h.ensureSession(ctx, chatID); err == nil {
			res, err = h.turn(ctx, sessionID, text, clicked)
		}
	}
	switch {
	case errors.Is(err, service.ErrBusy):
		h.send(ctx, s, chatID, busyText, nil)
		return
	case err != nil:
		log.Error("turn failed", zap.String("session_id", sessionID), zap.Error(err))
		return
	case res.Discarded:
		return
	}

	for _, msg := range res.Appended {
		if msg.Role != model.RoleAssistant {
			continue
		}
		h.send(ctx, s, chatID, msg.Content, msg.Suggestions)
	}

	// A "start over" appends nothing and leaves the chat back on the landing view.
	if res.Session != nil && !res.Session.Started {
		h.landing(ctx, s, chatID, res.Session)
	}
}

func (h *Handler) landing(ctx context.Context, s Sender, chatID int64, view *model.SessionView) {
	h.send(ctx, s, chatID, view.Placeholder, view.Starters)
}

func (h *Handler) turn(ctx context.Context, sessionID, text string, clicked bool) (*model.TurnResult, error) {
	if clicked {
		return h.messages.ClickSuggestion(ctx, sessionID, text)
	}
	return h.messages.Submit(ctx, sessionID, text)
}

// send delivers text in as many parts as needed; the keyboard goes with the last one.
func (h *Handler) send(ctx context.Context, s Sender, chatID int64, text string, suggestions []string) {
	parts := SplitMessage(text, MaxMessageLen)
	for i, part := range parts {
		params := &bot.SendMessageParams{ChatID: chatID, Text: part}
		if i == len(parts)-1 {
			if kb := SuggestionKeyboard(suggestions); kb != nil {
				params.ReplyMarkup = kb
			}
		}
		if _, err := s.SendMessage(ctx, params); err != nil {
			h.logger.Warn("failed to send telegram message",
				zap.Int64("chat_id", chatID),
				zap.Error(err),
			)
			return
		}
	}
}

// ensureSession returns the chat's session id, creating a session when the chat
// has none. fresh reports whether the session was created by this call.
func (h *Handler) ensureSession(ctx context.Context, chatID int64) (id string, fresh bool, err error) {
	if id, ok := h.session(chatID); ok {
		return id, false, nil
	}

	h.opening.Lock()
	defer h.opening.Unlock()
	if id, ok := h.session(chatID); ok {
		return id, false, nil
	}
	sess, err := h.create(ctx, chatID)
	if err != nil {
		return "", false, err
	}
	return sess.ID, true, nil
}

func (h *Handler) create(ctx context.Context, chatID int64) (*model.Session, error) {
	sess, err := h.sessions.Create(ctx, nil)
	if err != nil {
		return nil, err
	}
	metrics.SessionsCreatedTotal.WithLabelValues("telegram").Inc()

	h.mu.Lock()
	h.chats[chatID] = sess.ID
	h.mu.Unlock()
	return sess, nil
}

func (h *Handler) session(chatID int64) (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	id, ok := h.chats[chatID]
	return id, ok
}

// forget drops the chat's mapping if it still points at id.
func (h *Handler) forget(chatID int64, id string) {
	h.mu.Lock()
	if h.chats[chatID] == id {
		delete(h.chats, chatID)
	}
	h.mu.Unlock()
}
