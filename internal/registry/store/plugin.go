package store

import (
	"context"
	"fmt"
	"time"

	"github.com/chirino/chat-service/internal/model"
)

// ChatStore is the durable data access interface for users, messages and groups.
//
// Read methods return references unresolved; hydration is the caller's choice.
// Membership mutations are atomic set operations on the backing store, so
// concurrent adds and removes of the same member resolve last-write-wins.
type ChatStore interface {
	// Users
	CreateUser(ctx context.Context, user model.User) (*model.User, error)
	GetUser(ctx context.Context, userID string) (*model.User, error)
	// GetUsers returns the users that exist among userIDs, in no particular order.
	GetUsers(ctx context.Context, userIDs []string) ([]model.User, error)
	ListUsersExcept(ctx context.Context, userID string) ([]model.User, error)
	UpdateUserProfile(ctx context.Context, userID string, update model.ProfileUpdate) (*model.User, error)

	// Messages
	CreateMessage(ctx context.Context, msg model.Message) (*model.Message, error)
	GetMessage(ctx context.Context, messageID string) (*model.Message, error)
	GetMessages(ctx context.Context, messageIDs []string) ([]model.Message, error)
	UpdateMessageText(ctx context.Context, messageID string, text string, editedAt time.Time) (*model.Message, error)
	DeleteMessage(ctx context.Context, messageID string) error
	DeleteGroupMessages(ctx context.Context, groupID string) (int64, error)
	// ListDirectMessages returns the messages exchanged between userA and userB, oldest first.
	ListDirectMessages(ctx context.Context, userA, userB string) ([]model.Message, error)
	// ListGroupMessages returns the messages of a group, oldest first.
	ListGroupMessages(ctx context.Context, groupID string) ([]model.Message, error)
	// MarkDirectSeen flags every unseen message sent by fromUserID to toUserID as seen.
	MarkDirectSeen(ctx context.Context, fromUserID, toUserID string) (int64, error)
	// MarkGroupSeen adds userID to seenBy of every group message not sent by userID.
	// Repeated calls are no-ops.
	MarkGroupSeen(ctx context.Context, groupID, userID string) (int64, error)
	// CountUnseen counts unseen messages sent by fromUserID to toUserID.
	CountUnseen(ctx context.Context, fromUserID, toUserID string) (int64, error)

	// Groups
	CreateGroup(ctx context.Context, group model.Group) (*model.Group, error)
	GetGroup(ctx context.Context, groupID string) (*model.Group, error)
	// ListGroupsForUser returns the groups userID belongs to, most recently updated first.
	ListGroupsForUser(ctx context.Context, userID string) ([]model.Group, error)
	UpdateGroupInfo(ctx context.Context, groupID string, update model.GroupInfoUpdate) (*model.Group, error)
	SetLastMessage(ctx context.Context, groupID, messageID string) error
	AddGroupMember(ctx context.Context, groupID, userID string) (*model.Group, error)
	// RemoveGroupMember pulls userID from both members and admins.
	RemoveGroupMember(ctx context.Context, groupID, userID string) (*model.Group, error)
	DeleteGroup(ctx context.Context, groupID string) error
}

// Loader creates a ChatStore from config.
type Loader func(ctx context.Context) (ChatStore, error)

// Plugin represents a store plugin.
type Plugin struct {
	Name   string
	Loader Loader
}

var plugins []Plugin

// Register adds a store plugin.
func Register(p Plugin) {
	plugins = append(plugins, p)
}

// Names returns all registered store plugin names.
func Names() []string {
	names := make([]string, len(plugins))
	for i, p := range plugins {
		names[i] = p.Name
	}
	return names
}

// Select returns the loader for the named store plugin.
func Select(name string) (Loader, error) {
	for _, p := range plugins {
		if p.Name == name {
			return p.Loader, nil
		}
	}
	return nil, fmt.Errorf("unknown store %q; valid: %v", name, Names())
}
