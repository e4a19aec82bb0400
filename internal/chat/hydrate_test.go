package chat

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/chirino/chat-service/internal/model"
	"github.com/chirino/chat-service/internal/plugin/store/memory"
	registrystore "github.com/chirino/chat-service/internal/registry/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mapCache struct {
	mu      sync.Mutex
	users   map[string]model.User
	ttls    []time.Duration
	removed []string
	broken  bool
}

func newMapCache() *mapCache { return &mapCache{users: map[string]model.User{}} }

func (c *mapCache) Available() bool { return true }

func (c *mapCache) GetUsers(_ context.Context, ids []string) (map[string]model.User, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.broken {
		return nil, errors.New("cache down")
	}
	out := map[string]model.User{}
	for _, id := range ids {
		if u, ok := c.users[id]; ok {
			out[id] = u
		}
	}
	return out, nil
}

func (c *mapCache) Set(_ context.Context, users []model.User, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, u := range users {
		c.users[u.ID] = u
	}
	c.ttls = append(c.ttls, ttl)
	return nil
}

func (c *mapCache) Remove(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.users, id)
	c.removed = append(c.removed, id)
	return nil
}

func TestHydratorFillsCacheOnMiss(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	_, err := store.CreateUser(ctx, model.User{ID: "a", Username: "alice"})
	require.NoError(t, err)
	cache := newMapCache()
	h := NewHydrator(store, cache, time.Minute)

	users, err := h.Users(ctx, []string{"a", "gone", "a", ""})
	require.NoError(t, err)
	assert.Len(t, users, 1)
	assert.Equal(t, "alice", users["a"].Username)
	assert.Contains(t, cache.users, "a")
	assert.Equal(t, []time.Duration{time.Minute}, cache.ttls)

	// Served from the cache even after the store changes underneath.
	name := "renamed"
	_, err = store.UpdateUserProfile(ctx, "a", model.ProfileUpdate{Username: &name})
	require.NoError(t, err)
	users, err = h.Users(ctx, []string{"a"})
	require.NoError(t, err)
	assert.Equal(t, "alice", users["a"].Username)

	h.Invalidate(ctx, "a")
	users, err = h.Users(ctx, []string{"a"})
	require.NoError(t, err)
	assert.Equal(t, "renamed", users["a"].Username)
}

func TestHydratorFallsBackWhenCacheFails(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	_, err := store.CreateUser(ctx, model.User{ID: "a", Username: "alice"})
	require.NoError(t, err)
	cache := newMapCache()
	cache.broken = true

	users, err := NewHydrator(store, cache, time.Minute).Users(ctx, []string{"a"})
	require.NoError(t, err)
	assert.Equal(t, "alice", users["a"].Username)
}

func TestHydratorLeavesDanglingRefsUnresolved(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	_, err := store.CreateUser(ctx, model.User{ID: "a", Username: "alice"})
	require.NoError(t, err)
	h := NewHydrator(store, nil, 0)

	msgs := []model.Message{
		model.NewDirectMessage("a", "b", "hi", ""),
		model.NewDirectMessage("deleted", "a", "hi", ""),
	}
	require.NoError(t, h.Messages(ctx, msgs))
	assert.True(t, msgs[0].Sender.IsResolved())
	assert.False(t, msgs[1].Sender.IsResolved())
	assert.Equal(t, "deleted", msgs[1].Sender.ID())
}

func TestProfileUpdateInvalidatesCache(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	cache := newMapCache()
	p := NewProfiles(store, NewHydrator(store, cache, time.Minute))

	u, err := p.Ensure(ctx, model.User{ID: "a", Email: "a@example.com"})
	require.NoError(t, err)
	assert.Equal(t, "a", u.Username)

	again, err := p.Ensure(ctx, model.User{ID: "a", Username: "ignored"})
	require.NoError(t, err)
	assert.Equal(t, "a", again.Username)

	_, err = p.Get(ctx, "a")
	require.NoError(t, err)
	require.Contains(t, cache.users, "a")

	bio := "hello"
	updated, err := p.Update(ctx, "a", model.ProfileUpdate{Bio: &bio})
	require.NoError(t, err)
	assert.Equal(t, "hello", updated.Bio)
	assert.Equal(t, []string{"a"}, cache.removed)

	got, err := p.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "hello", got.Bio)
}

func TestEnsureReportsEmailTakenByAnotherUser(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	p := NewProfiles(store, NewHydrator(store, nil, 0))

	_, err := p.Ensure(ctx, model.User{ID: "alice", Email: "alice@example.com"})
	require.NoError(t, err)

	_, err = p.Ensure(ctx, model.User{ID: "alice-sso", Email: "alice@example.com"})
	var conflict *registrystore.ConflictError
	require.True(t, errors.As(err, &conflict), "expected ConflictError, got %v", err)
	assert.Equal(t, registrystore.ConflictDuplicateEmail, conflict.Code)
}
