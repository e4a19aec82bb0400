package store

import (
	"strings"

	"github.com/chirino/chat-service/internal/model"
	"github.com/samber/lo"
)

// ValidateMessage checks the invariants every message must satisfy before it
// is persisted.
func ValidateMessage(m model.Message) error {
	if m.Sender.ID() == "" {
		return &ValidationError{Field: "sender", Message: "is required"}
	}
	hasReceiver := m.Receiver != nil && *m.Receiver != ""
	hasGroup := m.Group != nil && *m.Group != ""
	switch {
	case hasReceiver && hasGroup:
		return &ValidationError{Field: "receiver", Message: "a message cannot have both a receiver and a group"}
	case !hasReceiver && !hasGroup:
		return &ValidationError{Field: "receiver", Message: "a message needs either a receiver or a group"}
	}
	if strings.TrimSpace(m.Text) == "" && m.Image == "" {
		return &ValidationError{Field: "text", Message: "text or image is required"}
	}
	return nil
}

// ValidateEditText checks replacement text for a message edit.
func ValidateEditText(text string) error {
	if strings.TrimSpace(text) == "" {
		return &ValidationError{Field: "text", Message: "text is required"}
	}
	return nil
}

// ValidateGroup checks the invariants every group must satisfy before it is persisted.
func ValidateGroup(g model.Group) error {
	if strings.TrimSpace(g.Name) == "" {
		return &ValidationError{Field: "name", Message: "name is required"}
	}
	creator := g.Creator.ID()
	if creator == "" {
		return &ValidationError{Field: "creator", Message: "is required"}
	}
	if !lo.Contains(g.MemberIDs(), creator) {
		return &ValidationError{Field: "members", Message: "creator must be a member"}
	}
	if !lo.Contains(g.Admins, creator) {
		return &ValidationError{Field: "admins", Message: "creator must be an admin"}
	}
	return nil
}
