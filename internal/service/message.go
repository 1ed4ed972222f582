package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/kultrip/story-travel/internal/dialogue"
	"github.com/kultrip/story-travel/internal/model"
	"github.com/kultrip/story-travel/pkg/logger"
	"github.com/kultrip/story-travel/pkg/metrics"
	"github.com/kultrip/story-travel/pkg/tracing"
)

var (
	// ErrBusy is returned while the session waits for an itinerary.
	ErrBusy = errors.New("an itinerary is already being prepared for this session")

	// ErrEmptyUtterance is returned for blank input.
	ErrEmptyUtterance = errors.New("message must not be empty")

	errStaleTurn = errors.New("turn overtaken by start over")
)

// itineraryUnavailable is the only failure reason events carry.
const itineraryUnavailable = "itinerary service unavailable"

// Planner produces an itinerary for a completed request.
type Planner interface {
	Generate(ctx context.Context, req *model.ItineraryRequest) (json.RawMessage, error)
}

// MessageService runs conversation turns.
type MessageService struct {
	sessions *SessionService
	kb       dialogue.Knowledge
	planner  Planner
	delay    time.Duration
	sleep    func(time.Duration)
	logger   *logger.Logger
}

// NewMessageService creates a new message service. delay is the thinking pause
// before every decision.
func NewMessageService(
	sessions *SessionService,
	kb dialogue.Knowledge,
	planner Planner,
	delay time.Duration,
	log *logger.Logger,
) *MessageService {
	if log == nil {
		log = logger.Nop()
	}
	return &MessageService{
		sessions: sessions,
		kb:       kb,
		planner:  planner,
		delay:    delay,
		sleep:    time.Sleep,
		logger:   log,
	}
}

// ClickSuggestion submits a quick reply exactly as if it had been typed.
func (s *MessageService) ClickSuggestion(ctx context.Context, sessionID, suggestion string) (*model.TurnResult, error) {
	return s.Submit(ctx, sessionID, suggestion)
}

// Submit runs one turn: append the user message, pause, decide, and reply or
// call the itinerary service. The turn is not cancelled when ctx is; once
// accepted it always settles.
func (s *MessageService) Submit(ctx context.Context, sessionID, utterance string) (*model.TurnResult, error) {
	ctx = context.WithoutCancel(ctx)
	ctx, span := tracing.Tracer("service").Start(ctx, "service.Submit")
	defer span.End()
	span.SetAttributes(attribute.String("session.id", sessionID))

	text := strings.TrimSpace(utterance)
	if text == "" {
		return nil, ErrEmptyUtterance
	}
	log := s.logger.WithSession(sessionID)

	userMsg := newMessage(model.RoleUser, text, nil, model.KindText)
	var generation uint64
	_, err := s.sessions.Update(ctx, sessionID, func(sess *model.Session) error {
		if sess.Loading {
			return ErrBusy
		}
		sess.Append(userMsg)
		generation = sess.Generation
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrBusy) {
			metrics.BusyRejectionsTotal.Inc()
		}
		return nil, err
	}
	metrics.RecordMessage(string(model.RoleUser), string(model.KindText))
	s.sessions.Publish(ctx, messageEvent(sessionID, userMsg))

	s.think()

	var (
		decision dialogue.Decision
		reply    *model.Message
	)
	sess, err := s.sessions.Update(ctx, sessionID, func(sess *model.Session) error {
		if sess.Generation != generation {
			return errStaleTurn
		}
		decision = dialogue.Decide(s.kb, sess.Slots, text)
		if decision.Reset {
			sess.Reset()
			return nil
		}
		if decision.RequestItinerary && sess.Loading {
			return ErrBusy
		}
		sess.Slots = decision.Slots
		if decision.Reply != nil {
			msg := newMessage(model.RoleAssistant, decision.Reply.Content, decision.Reply.Suggestions, decision.Reply.Kind)
			sess.Append(msg)
			reply = &msg
		}
		if decision.RequestItinerary {
			sess.Loading = true
		}
		return nil
	})
	switch {
	case errors.Is(err, errStaleTurn):
		return s.discard(ctx, sessionID, log)
	case errors.Is(err, ErrBusy):
		metrics.BusyRejectionsTotal.Inc()
		return nil, err
	case err != nil:
		return nil, err
	}

	span.SetAttributes(attribute.String("dialogue.rule", decision.Rule))
	metrics.RecordTurn(decision.Rule)
	log.Debug("turn decided",
		zap.String("rule", decision.Rule),
		zap.String("destination", decision.Slots.Destination),
		zap.String("story", decision.Slots.Story),
		zap.String("duration", decision.Slots.Duration),
	)

	if decision.Reset {
		s.sessions.Publish(ctx, &model.SessionEvent{SessionID: sessionID, Type: model.EventTypeReset})
		return &model.TurnResult{Session: sess.View()}, nil
	}

	appended := []model.Message{userMsg}
	if reply != nil {
		metrics.RecordMessage(string(reply.Role), string(reply.Kind))
		s.sessions.Publish(ctx, messageEvent(sessionID, *reply))
		appended = append(appended, *reply)
	}
	if decision.Event != "" {
		s.sessions.Publish(ctx, &model.SessionEvent{SessionID: sessionID, Type: decision.Event})
	}
	if !decision.RequestItinerary {
		return &model.TurnResult{Session: sess.View(), Appended: appended}, nil
	}

	return s.requestItinerary(ctx, sessionID, generation, decision.Slots, appended, log)
}

// requestItinerary calls the planner and settles the session. Loading is cleared
// whatever the outcome, also when a start over overtook the call.
func (s *MessageService) requestItinerary(
	ctx context.Context,
	sessionID string,
	generation uint64,
	slots model.Slots,
	appended []model.Message,
	log *logger.Logger,
) (*model.TurnResult, error) {
	req := model.NewItineraryRequest(slots)
	s.sessions.Publish(ctx,
		loadingEvent(sessionID, true),
		&model.SessionEvent{SessionID: sessionID, Type: model.EventTypeItineraryRequested, Request: req},
	)

	payload, callErr := s.generate(ctx, req)

	var msg model.Message
	if callErr != nil {
		log.Error("itinerary request failed",
			zap.String("destination", req.Destination),
			zap.Error(callErr),
		)
		r := dialogue.FallbackReply()
		msg = newMessage(model.RoleAssistant, r.Content, r.Suggestions, r.Kind)
	} else {
		r := dialogue.ItineraryReply(slots, payload)
		msg = newMessage(model.RoleAssistant, r.Content, r.Suggestions, r.Kind)
		msg.Itinerary = payload
	}

	stale := false
	sess, err := s.sessions.Update(ctx, sessionID, func(sess *model.Session) error {
		sess.Loading = false
		if sess.Generation != generation {
			stale = true
			return nil
		}
		sess.Append(msg)
		return nil
	})
	if err != nil {
		log.Error("failed to settle itinerary turn", zap.Error(err))
		return nil, fmt.Errorf("failed to settle turn: %w", err)
	}

	s.sessions.Publish(ctx, loadingEvent(sessionID, false))
	if stale {
		metrics.StaleTurnsTotal.Inc()
		log.Info("discarding itinerary result after start over")
		return &model.TurnResult{Session: sess.View(), Discarded: true}, nil
	}

	metrics.RecordMessage(string(msg.Role), string(msg.Kind))
	s.sessions.Publish(ctx, messageEvent(sessionID, msg))
	if callErr != nil {
		s.sessions.Publish(ctx, &model.SessionEvent{
			SessionID: sessionID,
			Type:      model.EventTypeItineraryFailed,
			Request:   req,
			Reason:    itineraryUnavailable,
		})
	}

	return &model.TurnResult{Session: sess.View(), Appended: append(appended, msg)}, nil
}

// generate turns a planner panic into an error so the turn still settles.
func (s *MessageService) generate(ctx context.Context, req *model.ItineraryRequest) (payload json.RawMessage, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("planner panic: %v", r)
		}
	}()
	return s.planner.Generate(ctx, req)
}

func (s *MessageService) discard(ctx context.Context, sessionID string, log *logger.Logger) (*model.TurnResult, error) {
	metrics.StaleTurnsTotal.Inc()
	log.Info("discarding turn after start over")

	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return &model.TurnResult{Session: sess.View(), Discarded: true}, nil
}

func (s *MessageService) think() {
	if s.delay > 0 {
		s.sleep(s.delay)
	}
}

func newMessage(role model.Role, content string, suggestions []string, kind model.Kind) model.Message {
	return model.Message{
		ID:          uuid.Must(uuid.NewV7()).String(),
		Role:        role,
		Content:     content,
		CreatedAt:   time.Now(),
		Suggestions: suggestions,
		Kind:        kind,
	}
}

func messageEvent(sessionID string, msg model.Message) *model.SessionEvent {
	m := msg.Clone()
	return &model.SessionEvent{
		SessionID: sessionID,
		Type:      model.EventTypeMessage,
		Message:   &m,
	}
}

func loadingEvent(sessionID string, loading bool) *model.SessionEvent {
	return &model.SessionEvent{
		SessionID: sessionID,
		Type:      model.EventTypeLoading,
		Loading:   &loading,
	}
}
