// Package infinispan registers the "infinispan" user cache: the Redis user
// cache talking to an Infinispan server's RESP connector.
package infinispan

import (
	"context"
	"fmt"
	"net"

	"github.com/charmbracelet/log"
	"github.com/chirino/chat-service/internal/config"
	"github.com/chirino/chat-service/internal/plugin/cache/redis"
	registrycache "github.com/chirino/chat-service/internal/registry/cache"
	goredis "github.com/redis/go-redis/v9"
)

// DefaultPort is the Infinispan single-port endpoint that also speaks RESP.
const DefaultPort = "11222"

func init() {
	registrycache.Register(registrycache.Plugin{
		Name:   "infinispan",
		Loader: load,
	})
}

// options maps the CHAT_SERVICE_INFINISPAN_* settings to go-redis options.
// A host without a port gets DefaultPort. The connector has no HELLO, so the
// client stays on RESP2.
func options(cfg *config.Config) (*goredis.Options, error) {
	if cfg == nil || cfg.InfinispanHost == "" {
		return nil, fmt.Errorf("infinispan cache: CHAT_SERVICE_INFINISPAN_HOST is required")
	}
	addr := cfg.InfinispanHost
	if _, _, err := net.SplitHostPort(addr); err != nil {
		addr = net.JoinHostPort(addr, DefaultPort)
	}
	return &goredis.Options{
		Addr:     addr,
		Username: cfg.InfinispanUsername,
		Password: cfg.InfinispanPassword,
		Protocol: 2,
	}, nil
}

func load(ctx context.Context) (registrycache.UserCache, error) {
	cfg := config.FromContext(ctx)
	opts, err := options(cfg)
	if err != nil {
		return nil, err
	}
	timeoutCtx, cancel := context.WithTimeout(ctx, cfg.InfinispanStartupTimeout)
	defer cancel()

	cache, err := redis.LoadFromOptionsWithTTL(timeoutCtx, opts, cfg.UserCacheTTL)
	if err != nil {
		return nil, fmt.Errorf("infinispan cache at %s: %w", opts.Addr, err)
	}
	log.Info("User cache connected", "kind", "infinispan", "addr", opts.Addr, "ttl", cfg.UserCacheTTL)
	return cache, nil
}
