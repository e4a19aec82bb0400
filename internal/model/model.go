package model

import (
	"time"
)

// User is the public profile of a chat participant. The password hash and
// credentials live with the authentication collaborator and never reach the core.
type User struct {
	ID             string    `json:"id"`
	Username       string    `json:"username"`
	Email          string    `json:"email"`
	ProfilePicture string    `json:"profilePicture"`
	Bio            string    `json:"bio"`
	CreatedAt      time.Time `json:"createdAt"`
}

// RecordID implements Record.
func (u User) RecordID() string { return u.ID }

// UserRef references a User either by id or as a hydrated record.
type UserRef = Ref[User]

// MessageRef references a Message either by id or as a hydrated record.
type MessageRef = Ref[Message]

// Message is a direct or group message. Exactly one of Receiver and Group is set.
type Message struct {
	ID        string     `json:"id"`
	Sender    UserRef    `json:"sender"`
	Receiver  *string    `json:"receiver,omitempty"`
	Group     *string    `json:"group,omitempty"`
	Text      string     `json:"text,omitempty"`
	Image     string     `json:"image,omitempty"`
	Seen      bool       `json:"seen"`
	SeenBy    []string   `json:"seenBy,omitempty"`
	Edited    bool       `json:"edited"`
	EditedAt  *time.Time `json:"editedAt,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// RecordID implements Record.
func (m Message) RecordID() string { return m.ID }

// IsDirect reports whether the message is addressed to a single receiver.
func (m Message) IsDirect() bool { return m.Receiver != nil && m.Group == nil }

// IsGroupMessage reports whether the message is addressed to a group.
func (m Message) IsGroupMessage() bool { return m.Group != nil && m.Receiver == nil }

// Peer returns the other party of a direct message as seen from userID.
func (m Message) Peer(userID string) string {
	if m.Receiver == nil {
		return ""
	}
	if m.Sender.ID() == userID {
		return *m.Receiver
	}
	return m.Sender.ID()
}

// Group is a multi-member conversation. The creator is always a member and an admin.
type Group struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Avatar      string      `json:"avatar"`
	Creator     UserRef     `json:"creator"`
	Members     []UserRef   `json:"members"`
	Admins      []string    `json:"admins"`
	LastMessage *MessageRef `json:"lastMessage,omitempty"`
	CreatedAt   time.Time   `json:"createdAt"`
	UpdatedAt   time.Time   `json:"updatedAt"`
}

// RecordID implements Record.
func (g Group) RecordID() string { return g.ID }

// MemberIDs returns the ids of all members in stored order.
func (g Group) MemberIDs() []string {
	ids := make([]string, len(g.Members))
	for i, m := range g.Members {
		ids[i] = m.ID()
	}
	return ids
}

// GroupInfoUpdate carries the optional fields accepted by a group info update.
// Nil fields are left untouched.
type GroupInfoUpdate struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	Avatar      *string `json:"avatar,omitempty"`
}

// IsEmpty reports whether the update carries no fields.
func (u GroupInfoUpdate) IsEmpty() bool {
	return u.Name == nil && u.Description == nil && u.Avatar == nil
}

// ProfileUpdate carries the mutable user profile fields.
type ProfileUpdate struct {
	Username       *string `json:"username,omitempty"`
	ProfilePicture *string `json:"profilePicture,omitempty"`
	Bio            *string `json:"bio,omitempty"`
}

// NewDirectMessage builds an unsaved direct message from senderID to receiverID.
func NewDirectMessage(senderID, receiverID, text, image string) Message {
	return Message{
		Sender:   Unresolved[User](senderID),
		Receiver: &receiverID,
		Text:     text,
		Image:    image,
	}
}

// NewGroupMessage builds an unsaved group message. The sender has seen its own message.
func NewGroupMessage(senderID, groupID, text, image string) Message {
	return Message{
		Sender: Unresolved[User](senderID),
		Group:  &groupID,
		Text:   text,
		Image:  image,
		SeenBy: []string{senderID},
	}
}
