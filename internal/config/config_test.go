package config

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaultConfig_Validates(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	require.Equal(t, int64(4*1024*1024), cfg.MaxBodySize)
	require.Equal(t, "mongo", cfg.DatastoreType)
}

func TestValidate_PingMustBeShorterThanPongWait(t *testing.T) {
	cfg := DefaultConfig()
	cfg.WebSocket.PingPeriod = time.Minute
	cfg.WebSocket.PongWait = 30 * time.Second
	require.Error(t, cfg.Validate())
}

func TestContextRoundTrip(t *testing.T) {
	cfg := DefaultConfig()
	ctx := WithContext(context.Background(), &cfg)
	require.Same(t, &cfg, FromContext(ctx))
	require.Nil(t, FromContext(context.Background()))
}
