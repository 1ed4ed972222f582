package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/kultrip/story-travel/internal/model"
)

const (
	// StreamName is the name of the trip events stream.
	StreamName = "TRIPS"

	// SubjectPrefix is the prefix for all trip subjects.
	SubjectPrefix = "trip"

	// MaxHistory caps a single History call.
	MaxHistory = 500
)

// StreamManager handles JetStream stream operations.
type StreamManager struct {
	js jetstream.JetStream
}

// NewStreamManager creates a new stream manager.
func NewStreamManager(client *Client) *StreamManager {
	return &StreamManager{js: client.JetStream()}
}

// EnsureStream creates the trips stream unless it already exists.
func (m *StreamManager) EnsureStream(ctx context.Context) error {
	_, err := m.js.Stream(ctx, StreamName)
	if err == nil {
		return nil
	}
	if !errors.Is(err, jetstream.ErrStreamNotFound) {
		return fmt.Errorf("failed to look up stream: %w", err)
	}

	_, err = m.js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Subjects:    []string{SubjectPrefix + ".>"},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      30 * 24 * time.Hour,
		MaxBytes:    10 * 1024 * 1024 * 1024,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		Compression: jetstream.S2Compression,
		Description: "Story travel session transcripts and events",
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}
	return nil
}

// MessageSubject returns the subject for a message appended to a session.
func MessageSubject(sessionID string, role model.Role) string {
	return fmt.Sprintf("%s.%s.msg.%s", SubjectPrefix, sessionID, role)
}

// EventSubject returns the subject for a non-message session event.
func EventSubject(sessionID string, eventType model.EventType) string {
	return fmt.Sprintf("%s.%s.event.%s", SubjectPrefix, sessionID, eventType)
}

// SessionFilter returns the filter subject matching everything of one session.
func SessionFilter(sessionID string) string {
	return fmt.Sprintf("%s.%s.>", SubjectPrefix, sessionID)
}

// Subject picks the subject an event is stored under.
func Subject(ev *model.SessionEvent) string {
	if ev.Type == model.EventTypeMessage && ev.Message != nil {
		return MessageSubject(ev.SessionID, ev.Message.Role)
	}
	return EventSubject(ev.SessionID, ev.Type)
}

// Publish stores ev in the stream and records the assigned sequence on it.
func (m *StreamManager) Publish(ctx context.Context, ev *model.SessionEvent) error {
	if ev == nil || ev.SessionID == "" {
		return errors.New("nats: event without session id")
	}

	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	opts := []jetstream.PublishOpt{}
	if ev.ID != "" {
		opts = append(opts, jetstream.WithMsgID(ev.ID))
	}

	ack, err := m.js.Publish(ctx, Subject(ev), data, opts...)
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	ev.Sequence = ack.Sequence
	return nil
}

// History returns up to limit events of a session stored after afterSequence,
// the last stream sequence read and whether more may follow.
func (m *StreamManager) History(ctx context.Context, sessionID string, afterSequence uint64, limit int) ([]model.SessionEvent, uint64, bool, error) {
	if limit <= 0 || limit > MaxHistory {
		limit = MaxHistory
	}

	cfg := jetstream.ConsumerConfig{
		FilterSubject:     SessionFilter(sessionID),
		AckPolicy:         jetstream.AckNonePolicy,
		DeliverPolicy:     jetstream.DeliverAllPolicy,
		InactiveThreshold: 30 * time.Second,
	}
	if afterSequence > 0 {
		cfg.DeliverPolicy = jetstream.DeliverByStartSequencePolicy
		cfg.OptStartSeq = afterSequence + 1
	}

	consumer, err := m.js.CreateConsumer(ctx, StreamName, cfg)
	if err != nil {
		return nil, 0, false, fmt.Errorf("failed to create consumer: %w", err)
	}
	defer func() {
		name := consumer.CachedInfo().Name
		_ = m.js.DeleteConsumer(context.WithoutCancel(ctx), StreamName, name)
	}()

	batch, err := consumer.Fetch(limit, jetstream.FetchMaxWait(2*time.Second))
	if err != nil {
		return nil, 0, false, fmt.Errorf("failed to fetch events: %w", err)
	}

	var (
		events       []model.SessionEvent
		lastSequence = afterSequence
	)
	for msg := range batch.Messages() {
		var ev model.SessionEvent
		if err := json.Unmarshal(msg.Data(), &ev); err != nil {
			continue
		}
		if meta, err := msg.Metadata(); err == nil {
			ev.Sequence = meta.Sequence.Stream
			lastSequence = meta.Sequence.Stream
		}
		events = append(events, ev)
	}

	if err := batch.Error(); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return nil, 0, false, fmt.Errorf("batch error: %w", err)
	}

	return events, lastSequence, len(events) == limit, nil
}
