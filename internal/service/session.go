// Package service provides business logic for the travel chat.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kultrip/story-travel/internal/events"
	"github.com/kultrip/story-travel/internal/model"
	"github.com/kultrip/story-travel/internal/session"
	"github.com/kultrip/story-travel/pkg/logger"
)

// ErrNotFound is returned for unknown or expired sessions.
var ErrNotFound = session.ErrNotFound

// SessionService owns session lifecycle and serializes writes per session.
type SessionService struct {
	store     session.Store
	publisher events.Publisher
	logger    *logger.Logger
	now       func() time.Time
	locks     *keyedMutex
}

// NewSessionService creates a new session service. A nil publisher discards events.
func NewSessionService(store session.Store, publisher events.Publisher, log *logger.Logger) *SessionService {
	if publisher == nil {
		publisher = events.Discard{}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &SessionService{
		store:     store,
		publisher: publisher,
		logger:    log,
		now:       time.Now,
		locks:     newKeyedMutex(),
	}
}

// Create opens a new session on the landing view.
func (s *SessionService) Create(ctx context.Context, req *model.CreateSessionRequest) (*model.Session, error) {
	now := s.now()

	sess := &model.Session{
		ID:        uuid.Must(uuid.NewV7()).String(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if req != nil {
		sess.Slots.TravelStyle = req.TravelStyle
	}

	if err := s.store.Save(ctx, sess); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	s.logger.Info("session created",
		zap.String("session_id", sess.ID),
		zap.String("travel_style", sess.Slots.TravelStyle),
	)
	return sess, nil
}

// Get retrieves a session by ID.
func (s *SessionService) Get(ctx context.Context, id string) (*model.Session, error) {
	sess, err := s.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return sess, nil
}

// Delete ends a session.
func (s *SessionService) Delete(ctx context.Context, id string) error {
	unlock := s.locks.Lock(id)
	defer unlock()

	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	s.logger.Info("session deleted", zap.String("session_id", id))
	return nil
}

// Restart clears a session as "start over" does and invalidates in-flight turns.
func (s *SessionService) Restart(ctx context.Context, id string) (*model.Session, error) {
	sess, err := s.Update(ctx, id, func(sess *model.Session) error {
		sess.Reset()
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.Publish(ctx, &model.SessionEvent{SessionID: id, Type: model.EventTypeReset})
	return sess, nil
}

// Update loads a session, applies fn under the session lock and saves the result.
// fn returning an error aborts without saving. UpdatedAt is stamped on save.
func (s *SessionService) Update(ctx context.Context, id string, fn func(sess *model.Session) error) (*model.Session, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	sess, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := fn(sess); err != nil {
		return nil, err
	}
	sess.UpdatedAt = s.now()
	if err := s.store.Save(ctx, sess); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}
	return sess, nil
}

// Publish emits events after a state change. Failures are logged and dropped.
func (s *SessionService) Publish(ctx context.Context, evs ...*model.SessionEvent) {
	for _, ev := range evs {
		if ev.ID == "" {
			ev.ID = uuid.Must(uuid.NewV7()).String()
		}
		if ev.CreatedAt.IsZero() {
			ev.CreatedAt = s.now()
		}
		if err := s.publisher.Publish(ctx, ev); err != nil {
			s.logger.Warn("failed to publish session event",
				zap.String("session_id", ev.SessionID),
				zap.String("event_type", string(ev.Type)),
				zap.Error(err),
			)
		}
	}
}

// keyedMutex hands out one mutex per key and forgets keys nobody holds.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*refMutex)}
}

// Lock locks key and returns its unlock function.
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
