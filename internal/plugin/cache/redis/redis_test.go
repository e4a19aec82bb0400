package redis

import (
	"context"
	"testing"
	"time"

	"github.com/chirino/chat-service/internal/model"
	"github.com/chirino/chat-service/internal/testutil/testredis"
	"github.com/stretchr/testify/require"
)

func TestRedisUserCache(t *testing.T) {
	if testing.Short() {
		t.Skip("requires docker")
	}
	ctx := context.Background()
	c, err := LoadFromURLWithTTL(ctx, testredis.StartRedis(t), time.Minute)
	require.NoError(t, err)
	require.True(t, c.Available())

	alice := model.User{ID: "u-alice", Username: "alice", Email: "alice@example.com"}
	bob := model.User{ID: "u-bob", Username: "bob"}
	require.NoError(t, c.Set(ctx, []model.User{alice, bob}, 0))

	got, err := c.GetUsers(ctx, []string{"u-alice", "u-missing", "u-bob"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "alice", got["u-alice"].Username)
	require.Equal(t, "bob", got["u-bob"].Username)

	require.NoError(t, c.Remove(ctx, "u-alice"))
	got, err = c.GetUsers(ctx, []string{"u-alice"})
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestRedisUserCacheExpires(t *testing.T) {
	if testing.Short() {
		t.Skip("requires docker")
	}
	ctx := context.Background()
	c, err := LoadFromURLWithTTL(ctx, testredis.StartRedis(t), time.Minute)
	require.NoError(t, err)

	require.NoError(t, c.Set(ctx, []model.User{{ID: "u-eve"}}, 100*time.Millisecond))
	require.Eventually(t, func() bool {
		got, err := c.GetUsers(ctx, []string{"u-eve"})
		return err == nil && len(got) == 0
	}, 5*time.Second, 50*time.Millisecond)
}
