// Package events distributes session events to live subscribers and durable sinks.
package events

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/kultrip/story-travel/internal/model"
	"github.com/kultrip/story-travel/pkg/logger"
	"github.com/kultrip/story-travel/pkg/metrics"
)

// DefaultBuffer is the per-subscriber channel capacity.
const DefaultBuffer = 64

// Publisher accepts session events.
type Publisher interface {
	Publish(ctx context.Context, ev *model.SessionEvent) error
}

// Hub fans events out to in-process subscribers of a session. Publishing never
// blocks: a subscriber whose buffer is full misses the event.
type Hub struct {
	buffer int
	log    *logger.Logger

	mu   sync.RWMutex
	subs map[string]map[*Subscription]struct{}
}

// NewHub creates a hub. A non-positive buffer uses DefaultBuffer.
func NewHub(buffer int, log *logger.Logger) *Hub {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Hub{
		buffer: buffer,
		log:    log,
		subs:   make(map[string]map[*Subscription]struct{}),
	}
}

// Subscription receives the events of one session until closed.
type Subscription struct {
	SessionID string

	ch   chan *model.SessionEvent
	hub  *Hub
	once sync.Once
}

// C returns the receive channel. It is closed by Close.
func (s *Subscription) C() <-chan *model.SessionEvent {
	return s.ch
}

// Close detaches the subscription and closes its channel. Safe to call twice.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.hub.remove(s)
	})
}

// Subscribe registers a subscriber for sessionID.
func (h *Hub) Subscribe(sessionID string) *Subscription {
	sub := &Subscription{
		SessionID: sessionID,
		ch:        make(chan *model.SessionEvent, h.buffer),
		hub:       h,
	}

	h.mu.Lock()
	set, ok := h.subs[sessionID]
	if !ok {
		set = make(map[*Subscription]struct{})
		h.subs[sessionID] = set
	}
	set[sub] = struct{}{}
	h.mu.Unlock()

	return sub
}

func (h *Hub) remove(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if set, ok := h.subs[sub.SessionID]; ok {
		delete(set, sub)
		if len(set) == 0 {
			delete(h.subs, sub.SessionID)
		}
	}
	close(sub.ch)
}

// Subscribers returns the number of live subscribers for sessionID.
func (h *Hub) Subscribers(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[sessionID])
}

// Publish delivers ev to every subscriber of its session.
func (h *Hub) Publish(_ context.Context, ev *model.SessionEvent) error {
	if ev == nil {
		return errors.New("events: nil event")
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for sub := range h.subs[ev.SessionID] {
		select {
		case sub.ch <- ev:
		default:
			h.log.Warn("dropping event for slow subscriber",
				zap.String("session_id", ev.SessionID),
				zap.String("event_type", string(ev.Type)),
			)
		}
	}
	return nil
}

// Sink is a named publisher, the name labels metrics and logs.
type Sink struct {
	Name      string
	Publisher Publisher
}

// Fanout publishes every event to all sinks in order.
type Fanout struct {
	sinks []Sink
	log   *logger.Logger
}

// NewFanout creates a fanout over sinks. Nil publishers are skipped.
func NewFanout(log *logger.Logger, sinks ...Sink) *Fanout {
	if log == nil {
		log = logger.Nop()
	}
	f := &Fanout{log: log}
	for _, s := range sinks {
		if s.Publisher != nil {
			f.sinks = append(f.sinks, s)
		}
	}
	return f
}

// Publish sends ev to every sink. A failing sink does not stop the others;
// the joined error is returned.
func (f *Fanout) Publish(ctx context.Context, ev *model.SessionEvent) error {
	var errs []error
	for _, s := range f.sinks {
		err := s.Publisher.Publish(ctx, ev)
		metrics.RecordPublish(s.Name, err)
		if err != nil {
			f.log.Warn("failed to publish session event",
				zap.String("sink", s.Name),
				zap.String("session_id", ev.SessionID),
				zap.String("event_type", string(ev.Type)),
				zap.Error(err),
			)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Discard drops every event.
type Discard struct{}

// Publish drops the event.
func (Discard) Publish(context.Context, *model.SessionEvent) error { return nil }
