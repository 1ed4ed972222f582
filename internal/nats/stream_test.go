package nats

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kultrip/story-travel/internal/model"
)

func TestSubjects(t *testing.T) {
	require.Equal(t, "trip.s1.msg.user", MessageSubject("s1", model.RoleUser))
	require.Equal(t, "trip.s1.event.reset", EventSubject("s1", model.EventTypeReset))
	require.Equal(t, "trip.s1.>", SessionFilter("s1"))
}

func TestSubject_ByEventType(t *testing.T) {
	msg := &model.Message{Role: model.RoleAssistant}
	require.Equal(t, "trip.s1.msg.assistant", Subject(&model.SessionEvent{
		SessionID: "s1",
		Type:      model.EventTypeMessage,
		Message:   msg,
	}))
	require.Equal(t, "trip.s1.event.itinerary_failed", Subject(&model.SessionEvent{
		SessionID: "s1",
		Type:      model.EventTypeItineraryFailed,
	}))
}
