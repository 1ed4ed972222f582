package nats

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kultrip/story-travel/pkg/logger"
)

func TestConnectOptions(t *testing.T) {
	opts, err := connectOptions(Config{URL: "nats://localhost:4222"}, logger.Nop())
	require.NoError(t, err)
	plain := len(opts)

	opts, err = connectOptions(Config{URL: "nats://localhost:4222", Token: "s3cret"}, logger.Nop())
	require.NoError(t, err)
	require.Len(t, opts, plain+1)
}

func TestConnectOptions_PartialTLS(t *testing.T) {
	_, err := connectOptions(Config{CAFile: "ca.pem"}, logger.Nop())
	require.ErrorContains(t, err, "must be set together")
}

func TestConnectOptions_MissingCA(t *testing.T) {
	dir := t.TempDir()
	_, err := connectOptions(Config{
		CAFile:   filepath.Join(dir, "ca.pem"),
		CertFile: filepath.Join(dir, "cert.pem"),
		KeyFile:  filepath.Join(dir, "key.pem"),
	}, logger.Nop())
	require.ErrorContains(t, err, "read CA file")
}

func TestPing_Disconnected(t *testing.T) {
	c := &Client{logger: logger.Nop()}
	require.False(t, c.IsConnected())
	require.ErrorIs(t, c.Ping(context.Background()), ErrNotConnected)
	c.Close()
}
