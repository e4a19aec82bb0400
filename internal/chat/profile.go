package chat

import (
	"context"
	"errors"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/chirino/chat-service/internal/model"
	registrystore "github.com/chirino/chat-service/internal/registry/store"
)

// Profiles manages user records on behalf of the authentication layer.
type Profiles struct {
	store   registrystore.ChatStore
	hydrate *Hydrator
}

// NewProfiles returns a Profiles service.
func NewProfiles(store registrystore.ChatStore, hydrator *Hydrator) *Profiles {
	return &Profiles{store: store, hydrate: hydrator}
}

// Ensure returns the user record for an authenticated identity, creating it
// on first sight.
func (p *Profiles) Ensure(ctx context.Context, user model.User) (*model.User, error) {
	if user.ID == "" {
		return nil, &registrystore.ValidationError{Field: "id", Message: "is required"}
	}
	existing, err := p.store.GetUser(ctx, user.ID)
	if err == nil {
		return existing, nil
	}
	var notFound *registrystore.NotFoundError
	if !errors.As(err, &notFound) {
		return nil, registrystore.Wrap("get user", err)
	}
	if user.Username == "" {
		user.Username = user.ID
	}
	created, err := p.store.CreateUser(ctx, user)
	if err != nil {
		var conflict *registrystore.ConflictError
		if errors.As(err, &conflict) && conflict.Code == registrystore.ConflictDuplicateUser {
			// Lost a race with a concurrent first request.
			return p.Get(ctx, user.ID)
		}
		return nil, registrystore.Wrap("create user", err)
	}
	log.Info("Registered user", "userID", created.ID, "username", created.Username)
	return created, nil
}

// Get returns a user profile.
func (p *Profiles) Get(ctx context.Context, userID string) (*model.User, error) {
	users, err := p.hydrate.Users(ctx, []string{userID})
	if err != nil {
		return nil, registrystore.Wrap("get user", err)
	}
	u, ok := users[userID]
	if !ok {
		return nil, &registrystore.NotFoundError{Resource: "user", ID: userID}
	}
	return &u, nil
}

// Update applies a profile change and drops the cached copy.
func (p *Profiles) Update(ctx context.Context, userID string, update model.ProfileUpdate) (*model.User, error) {
	if update.Username != nil && strings.TrimSpace(*update.Username) == "" {
		return nil, &registrystore.ValidationError{Field: "username", Message: "username cannot be empty"}
	}
	u, err := p.store.UpdateUserProfile(ctx, userID, update)
	if err != nil {
		return nil, registrystore.Wrap("update profile", err)
	}
	p.hydrate.Invalidate(ctx, userID)
	return u, nil
}
