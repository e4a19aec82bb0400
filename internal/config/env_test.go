package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestApplyEnv(t *testing.T) {
	t.Setenv("CHAT_SERVICE_MAX_BODY_SIZE", "4mb")
	t.Setenv("CHAT_SERVICE_WS_READ_LIMIT", "16K")
	t.Setenv("CHAT_SERVICE_USER_CACHE_TTL", "PT2M")
	t.Setenv("CHAT_SERVICE_WS_PING_PERIOD", "20s")
	t.Setenv("CHAT_SERVICE_WS_SEND_BUFFER", "32")
	t.Setenv("CHAT_SERVICE_CORS_ENABLED", "true")

	cfg := DefaultConfig()
	require.NoError(t, cfg.ApplyEnv())

	require.Equal(t, int64(4*1024*1024), cfg.MaxBodySize)
	require.Equal(t, int64(16*1024), cfg.WebSocket.ReadLimit)
	require.Equal(t, 2*time.Minute, cfg.UserCacheTTL)
	require.Equal(t, 20*time.Second, cfg.WebSocket.PingPeriod)
	require.Equal(t, 32, cfg.WebSocket.SendBuffer)
	require.True(t, cfg.CORSEnabled)
}

func TestApplyEnv_RejectsBadSize(t *testing.T) {
	t.Setenv("CHAT_SERVICE_MAX_BODY_SIZE", "lots")
	cfg := DefaultConfig()
	require.Error(t, cfg.ApplyEnv())
}

func TestParseDuration_ISO(t *testing.T) {
	d, err := parseDuration("PT1H30M")
	require.NoError(t, err)
	require.Equal(t, 90*time.Minute, d)

	_, err = parseDuration("P1D")
	require.Error(t, err)
}
