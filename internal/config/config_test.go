package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "8080", cfg.ServerPort)
	require.Equal(t, "http://localhost:8081/api/itinerary/", cfg.ItineraryURL)
	require.Equal(t, 500*time.Millisecond, cfg.ThinkingDelay)
	require.Equal(t, StoreMemory, cfg.SessionStore)
	require.Equal(t, []string{"https://*", "http://*"}, cfg.AllowedOrigins)
	require.Equal(t, time.Minute, cfg.RateLimitWindow)
	require.False(t, cfg.NATSEnabled)
	require.False(t, cfg.TelegramEnabled())
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("THINKING_DELAY", "0s")
	t.Setenv("SESSION_STORE", "redis")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://kultrip.com,https://app.kultrip.com")
	t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "9090", cfg.ServerPort)
	require.Zero(t, cfg.ThinkingDelay)
	require.Equal(t, StoreRedis, cfg.SessionStore)
	require.Equal(t, []string{"https://kultrip.com", "https://app.kultrip.com"}, cfg.AllowedOrigins)
	require.True(t, cfg.TelegramEnabled())
}

func TestLoad_RedisWithoutAddr(t *testing.T) {
	t.Setenv("SESSION_STORE", "redis")
	_, err := Load()
	require.Error(t, err)
	require.Contains(t, err.Error(), "REDIS_ADDR")
}

func TestLoad_UnknownStore(t *testing.T) {
	t.Setenv("SESSION_STORE", "postgres")
	_, err := Load()
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown SESSION_STORE")
}

func TestLoad_BadDuration(t *testing.T) {
	t.Setenv("THINKING_DELAY", "soon")
	_, err := Load()
	require.Error(t, err)
	require.Contains(t, err.Error(), "parse config")
}
