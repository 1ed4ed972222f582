// Package session stores per-conversation state.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/kultrip/story-travel/internal/model"
	"github.com/kultrip/story-travel/pkg/metrics"
)

// ErrNotFound is returned for unknown or expired sessions.
var ErrNotFound = errors.New("session not found")

// Store persists sessions for the lifetime of a conversation. Implementations
// return copies; callers own what they get and must Save to publish changes.
type Store interface {
	Get(ctx context.Context, id string) (*model.Session, error)
	Save(ctx context.Context, s *model.Session) error
	Delete(ctx context.Context, id string) error
}

// MemoryStore keeps sessions in process memory. Sessions idle longer than the
// TTL are treated as missing and dropped by Sweep.
type MemoryStore struct {
	ttl      time.Duration
	now      func() time.Time
	sessions map[string]*model.Session
	mu       sync.RWMutex
}

// NewMemoryStore creates an in-memory store. A zero ttl keeps sessions forever.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		ttl:      ttl,
		now:      time.Now,
		sessions: make(map[string]*model.Session),
	}
}

// Get returns a copy of the session.
func (s *MemoryStore) Get(_ context.Context, id string) (*model.Session, error) {
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()

	if !ok || s.expired(sess) {
		return nil, ErrNotFound
	}
	return sess.Clone(), nil
}

// Save stores a copy of sess.
func (s *MemoryStore) Save(_ context.Context, sess *model.Session) error {
	if sess == nil || sess.ID == "" {
		return errors.New("session: cannot save session without id")
	}
	s.mu.Lock()
	s.sessions[sess.ID] = sess.Clone()
	n := len(s.sessions)
	s.mu.Unlock()

	metrics.SessionsActive.Set(float64(n))
	return nil
}

// Delete removes a session. Deleting an unknown session is not an error.
func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	delete(s.sessions, id)
	n := len(s.sessions)
	s.mu.Unlock()

	metrics.SessionsActive.Set(float64(n))
	return nil
}

// Sweep drops expired sessions and returns how many were removed.
func (s *MemoryStore) Sweep() int {
	s.mu.Lock()
	removed := 0
	for id, sess := range s.sessions {
		if s.expired(sess) {
			delete(s.sessions, id)
			removed++
		}
	}
	n := len(s.sessions)
	s.mu.Unlock()

	metrics.SessionsActive.Set(float64(n))
	return removed
}

// Len returns the number of stored sessions, expired ones included.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// RunSweeper calls Sweep every interval until ctx is done.
func (s *MemoryStore) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

func (s *MemoryStore) expired(sess *model.Session) bool {
	return s.ttl > 0 && s.now().Sub(sess.UpdatedAt) > s.ttl
}
