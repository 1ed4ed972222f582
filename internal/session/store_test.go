package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kultrip/story-travel/internal/model"
)

func TestMemoryStore_SaveGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(0)

	sess := &model.Session{ID: "abc", Slots: model.Slots{Destination: "Paris"}, UpdatedAt: time.Now()}
	require.NoError(t, s.Save(ctx, sess))

	got, err := s.Get(ctx, "abc")
	require.NoError(t, err)
	require.Equal(t, "Paris", got.Slots.Destination)
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(0)
	sess := &model.Session{ID: "abc"}
	require.NoError(t, s.Save(ctx, sess))

	sess.Slots.Story = "changed after save"
	got, err := s.Get(ctx, "abc")
	require.NoError(t, err)
	require.Empty(t, got.Slots.Story)

	got.Append(model.Message{ID: "m1"})
	again, err := s.Get(ctx, "abc")
	require.NoError(t, err)
	require.Empty(t, again.Messages)
}

func TestMemoryStore_NotFound(t *testing.T) {
	_, err := NewMemoryStore(0).Get(context.Background(), "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_SaveWithoutID(t *testing.T) {
	require.Error(t, NewMemoryStore(0).Save(context.Background(), &model.Session{}))
}

func TestMemoryStore_TTLAndSweep(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)
	s := NewMemoryStore(time.Hour)
	s.now = func() time.Time { return now }

	require.NoError(t, s.Save(ctx, &model.Session{ID: "old", UpdatedAt: now.Add(-2 * time.Hour)}))
	require.NoError(t, s.Save(ctx, &model.Session{ID: "fresh", UpdatedAt: now.Add(-time.Minute)}))

	_, err := s.Get(ctx, "old")
	require.ErrorIs(t, err, ErrNotFound)
	_, err = s.Get(ctx, "fresh")
	require.NoError(t, err)

	require.Equal(t, 1, s.Sweep())
	require.Equal(t, 1, s.Len())
}

func TestMemoryStore_Delete(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(0)
	require.NoError(t, s.Save(ctx, &model.Session{ID: "abc"}))
	require.NoError(t, s.Delete(ctx, "abc"))
	require.NoError(t, s.Delete(ctx, "abc"))
	_, err := s.Get(ctx, "abc")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestRedisKey(t *testing.T) {
	require.Equal(t, "session:abc", Key("abc"))
}
