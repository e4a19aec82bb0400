package chat

import (
	"time"

	"github.com/chirino/chat-service/internal/dispatch"
	"github.com/chirino/chat-service/internal/presence"
	registrycache "github.com/chirino/chat-service/internal/registry/cache"
	registrystore "github.com/chirino/chat-service/internal/registry/store"
)

// Service bundles the channels that share one presence registry.
type Service struct {
	Presence *presence.Registry
	Direct   *DirectChannel
	Groups   *GroupChannel
	Profiles *Profiles
}

// NewService wires the channels over store. cache may be nil.
func NewService(store registrystore.ChatStore, cache registrycache.UserCache, cacheTTL time.Duration) *Service {
	reg := presence.NewRegistry()
	d := dispatch.New(reg)
	h := NewHydrator(store, cache, cacheTTL)
	return &Service{
		Presence: reg,
		Direct:   NewDirectChannel(store, d),
		Groups:   NewGroupChannel(store, d, h),
		Profiles: NewProfiles(store, h),
	}
}
