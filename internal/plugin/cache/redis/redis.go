package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/chirino/chat-service/internal/config"
	"github.com/chirino/chat-service/internal/model"
	registrycache "github.com/chirino/chat-service/internal/registry/cache"
	goredis "github.com/redis/go-redis/v9"
)

const defaultTTL = 10 * time.Minute

func init() {
	registrycache.Register(registrycache.Plugin{
		Name:   "redis",
		Loader: load,
	})
}

func load(ctx context.Context) (registrycache.UserCache, error) {
	cfg := config.FromContext(ctx)
	if cfg == nil || cfg.RedisURL == "" {
		return nil, fmt.Errorf("redis cache: CHAT_SERVICE_REDIS_URL is required")
	}
	return LoadFromURLWithTTL(ctx, cfg.RedisURL, cfg.UserCacheTTL)
}

// LoadFromURLWithTTL creates a UserCache from a Redis-compatible URL.
func LoadFromURLWithTTL(ctx context.Context, redisURL string, ttl time.Duration) (registrycache.UserCache, error) {
	opts, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("redis cache: invalid URL: %w", err)
	}
	return LoadFromOptionsWithTTL(ctx, opts, ttl)
}

// LoadFromOptionsWithTTL creates a UserCache from go-redis Options.
// This allows callers to customize options (e.g. Protocol for RESP2).
func LoadFromOptionsWithTTL(ctx context.Context, opts *goredis.Options, ttl time.Duration) (registrycache.UserCache, error) {
	client := goredis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis cache: ping failed: %w", err)
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &redisUserCache{client: client, ttl: ttl}, nil
}

type redisUserCache struct {
	client *goredis.Client
	ttl    time.Duration
}

func userKey(userID string) string {
	return "chat-user:" + userID
}

func (c *redisUserCache) Available() bool {
	return true
}

func (c *redisUserCache) GetUsers(ctx context.Context, userIDs []string) (map[string]model.User, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	keys := make([]string, len(userIDs))
	for i, id := range userIDs {
		keys[i] = userKey(id)
	}
	values, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	result := make(map[string]model.User, len(values))
	for _, v := range values {
		s, ok := v.(string)
		if !ok {
			continue
		}
		var u model.User
		if err := json.Unmarshal([]byte(s), &u); err != nil {
			return nil, err
		}
		result[u.ID] = u
	}
	return result, nil
}

func (c *redisUserCache) Set(ctx context.Context, users []model.User, ttl time.Duration) error {
	if len(users) == 0 {
		return nil
	}
	if ttl == 0 {
		ttl = c.ttl
	}
	pipe := c.client.Pipeline()
	for _, u := range users {
		data, err := json.Marshal(u)
		if err != nil {
			return err
		}
		pipe.Set(ctx, userKey(u.ID), data, ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (c *redisUserCache) Remove(ctx context.Context, userID string) error {
	return c.client.Del(ctx, userKey(userID)).Err()
}

var _ registrycache.UserCache = (*redisUserCache)(nil)
