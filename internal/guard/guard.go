// Package guard holds the membership and authorization rules shared by the
// direct and group message channels.
//
// The rules are deliberately asymmetric: only the sender may edit a message,
// only the sender may delete a direct message, and the sender or any group
// admin may delete a group message.
package guard

import (
	"github.com/chirino/chat-service/internal/model"
	registrystore "github.com/chirino/chat-service/internal/registry/store"
	"github.com/samber/lo"
)

// IsMember reports whether userID is in the group's member set.
func IsMember(g model.Group, userID string) bool {
	return userID != "" && lo.Contains(g.MemberIDs(), userID)
}

// IsAdmin reports whether userID is one of the group's admins.
func IsAdmin(g model.Group, userID string) bool {
	return userID != "" && lo.Contains(g.Admins, userID)
}

// IsCreator reports whether userID created the group.
func IsCreator(g model.Group, userID string) bool {
	return userID != "" && g.Creator.ID() == userID
}

// IsSender reports whether userID sent the message.
func IsSender(m model.Message, userID string) bool {
	return userID != "" && m.Sender.ID() == userID
}

func deny(action string) error {
	return &registrystore.AuthorizationError{Action: action}
}

// RequireMember fails unless userID belongs to g.
func RequireMember(g model.Group, userID, action string) error {
	if !IsMember(g, userID) {
		return deny(action)
	}
	return nil
}

// RequireAdmin fails unless userID administers g.
func RequireAdmin(g model.Group, userID, action string) error {
	if !IsAdmin(g, userID) {
		return deny(action)
	}
	return nil
}

// RequireCreator fails unless userID created g.
func RequireCreator(g model.Group, userID, action string) error {
	if !IsCreator(g, userID) {
		return deny(action)
	}
	return nil
}

// CanEditMessage allows only the sender, for direct and group messages alike.
func CanEditMessage(m model.Message, userID string) error {
	if !IsSender(m, userID) {
		return deny("edit this message")
	}
	return nil
}

// CanDeleteDirectMessage allows only the sender. The receiver cannot delete.
func CanDeleteDirectMessage(m model.Message, userID string) error {
	if !IsSender(m, userID) {
		return deny("delete this message")
	}
	return nil
}

// CanDeleteGroupMessage allows the sender or any admin of g.
func CanDeleteGroupMessage(g model.Group, m model.Message, userID string) error {
	if !IsSender(m, userID) && !IsAdmin(g, userID) {
		return deny("delete this message")
	}
	return nil
}

// CanRemoveMember allows admins to remove anyone and members to remove
// themselves. The creator can never be removed, whoever asks.
func CanRemoveMember(g model.Group, requesterID, targetID string) error {
	if IsCreator(g, targetID) {
		return &registrystore.ValidationError{Field: "userId", Message: "the group creator cannot be removed"}
	}
	if !IsAdmin(g, requesterID) && requesterID != targetID {
		return deny("remove members from this group")
	}
	return nil
}
