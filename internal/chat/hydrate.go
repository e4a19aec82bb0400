package chat

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
	"github.com/chirino/chat-service/internal/model"
	registrycache "github.com/chirino/chat-service/internal/registry/cache"
	registrystore "github.com/chirino/chat-service/internal/registry/store"
	"github.com/chirino/chat-service/internal/security"
	"github.com/samber/lo"
)

// Hydrator resolves user references for the read paths that return expanded
// records. Profiles are looked up in the UserCache first and fetched from the
// store on a miss. References to users that no longer exist stay unresolved.
type Hydrator struct {
	store registrystore.ChatStore
	cache registrycache.UserCache
	ttl   time.Duration
}

// NewHydrator returns a Hydrator. cache may be nil.
func NewHydrator(store registrystore.ChatStore, cache registrycache.UserCache, ttl time.Duration) *Hydrator {
	return &Hydrator{store: store, cache: cache, ttl: ttl}
}

func (h *Hydrator) cacheEnabled() bool {
	return h.cache != nil && h.cache.Available()
}

// Users returns the profiles of userIDs keyed by id.
func (h *Hydrator) Users(ctx context.Context, userIDs []string) (map[string]model.User, error) {
	ids := lo.Uniq(lo.Compact(userIDs))
	found := make(map[string]model.User, len(ids))
	if len(ids) == 0 {
		return found, nil
	}

	missing := ids
	if h.cacheEnabled() {
		cached, err := h.cache.GetUsers(ctx, ids)
		if err != nil {
			log.Warn("User cache lookup failed", "err", err)
		}
		for id, u := range cached {
			found[id] = u
		}
		missing = lo.Filter(ids, func(id string, _ int) bool {
			_, ok := found[id]
			return !ok
		})
		security.RecordCacheLookup(len(ids)-len(missing), len(missing))
	}
	if len(missing) == 0 {
		return found, nil
	}

	users, err := h.store.GetUsers(ctx, missing)
	if err != nil {
		return nil, err
	}
	for _, u := range users {
		found[u.ID] = u
	}
	if h.cacheEnabled() && len(users) > 0 {
		if err := h.cache.Set(ctx, users, h.ttl); err != nil {
			log.Warn("User cache fill failed", "err", err)
		}
	}
	return found, nil
}

// Invalidate drops userID from the cache after a profile change.
func (h *Hydrator) Invalidate(ctx context.Context, userID string) {
	if !h.cacheEnabled() {
		return
	}
	if err := h.cache.Remove(ctx, userID); err != nil {
		log.Warn("User cache invalidation failed", "userID", userID, "err", err)
	}
}

func resolve(ref model.UserRef, users map[string]model.User) model.UserRef {
	if u, ok := users[ref.ID()]; ok {
		return model.Resolved(u)
	}
	return ref
}

// Messages resolves the sender of every message in place.
func (h *Hydrator) Messages(ctx context.Context, msgs []model.Message) error {
	users, err := h.Users(ctx, lo.Map(msgs, func(m model.Message, _ int) string { return m.Sender.ID() }))
	if err != nil {
		return err
	}
	for i := range msgs {
		msgs[i].Sender = resolve(msgs[i].Sender, users)
	}
	return nil
}

// Message resolves the sender of a single message in place.
func (h *Hydrator) Message(ctx context.Context, msg *model.Message) error {
	one := []model.Message{*msg}
	if err := h.Messages(ctx, one); err != nil {
		return err
	}
	*msg = one[0]
	return nil
}

// Groups resolves creator and members of every group in place. When
// withLastMessage is set the last message is attached as well.
func (h *Hydrator) Groups(ctx context.Context, groups []model.Group, withLastMessage bool) error {
	var ids []string
	for _, g := range groups {
		ids = append(ids, g.Creator.ID())
		ids = append(ids, g.MemberIDs()...)
	}
	users, err := h.Users(ctx, ids)
	if err != nil {
		return err
	}
	for i := range groups {
		g := &groups[i]
		g.Creator = resolve(g.Creator, users)
		for j := range g.Members {
			g.Members[j] = resolve(g.Members[j], users)
		}
	}
	if !withLastMessage {
		return nil
	}

	var lastIDs []string
	for _, g := range groups {
		if g.LastMessage != nil {
			lastIDs = append(lastIDs, g.LastMessage.ID())
		}
	}
	if len(lastIDs) == 0 {
		return nil
	}
	msgs, err := h.store.GetMessages(ctx, lastIDs)
	if err != nil {
		return err
	}
	byID := lo.KeyBy(msgs, func(m model.Message) string { return m.ID })
	for i := range groups {
		g := &groups[i]
		if g.LastMessage == nil {
			continue
		}
		if m, ok := byID[g.LastMessage.ID()]; ok {
			ref := model.Resolved(m)
			g.LastMessage = &ref
		}
	}
	return nil
}

// Group resolves creator and members of a single group in place.
func (h *Hydrator) Group(ctx context.Context, g *model.Group) error {
	one := []model.Group{*g}
	if err := h.Groups(ctx, one, false); err != nil {
		return err
	}
	*g = one[0]
	return nil
}
