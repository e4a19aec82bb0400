package chat

import (
	"context"

	"github.com/charmbracelet/log"
	"github.com/chirino/chat-service/internal/guard"
	"github.com/chirino/chat-service/internal/model"
	registrystore "github.com/chirino/chat-service/internal/registry/store"
)

// UserDirectory is the result of ListUsersWithUnseenCounts. Unseen holds an
// entry only for peers with at least one unseen message.
type UserDirectory struct {
	Users  []model.User     `json:"users"`
	Unseen map[string]int64 `json:"unSeenMessages"`
}

// DirectChannel implements one-to-one conversations.
type DirectChannel struct {
	store  registrystore.ChatStore
	notify Notifier
	now    clock
}

// NewDirectChannel returns a DirectChannel.
func NewDirectChannel(store registrystore.ChatStore, notify Notifier) *DirectChannel {
	return &DirectChannel{store: store, notify: notify, now: utcNow}
}

// Send stores a message from senderID to receiverID and pushes newMessage to
// the receiver. The created message is returned to the sender.
func (c *DirectChannel) Send(ctx context.Context, senderID, receiverID, text, image string) (*model.Message, error) {
	msg := model.NewDirectMessage(senderID, receiverID, text, image)
	if err := registrystore.ValidateMessage(msg); err != nil {
		return nil, err
	}
	if _, err := c.store.GetUser(ctx, receiverID); err != nil {
		return nil, registrystore.Wrap("get receiver", err)
	}
	created, err := c.store.CreateMessage(ctx, msg)
	if err != nil {
		return nil, registrystore.Wrap("create message", err)
	}
	c.notify.DispatchTo(receiverID, model.EventNewMessage, created)
	return created, nil
}

func (c *DirectChannel) getDirect(ctx context.Context, messageID string) (*model.Message, error) {
	msg, err := c.store.GetMessage(ctx, messageID)
	if err != nil {
		return nil, registrystore.Wrap("get message", err)
	}
	if !msg.IsDirect() {
		return nil, &registrystore.NotFoundError{Resource: "message", ID: messageID}
	}
	return msg, nil
}

// Edit replaces the text of a direct message. Only the sender may edit.
func (c *DirectChannel) Edit(ctx context.Context, editorID, messageID, text string) (*model.Message, error) {
	msg, err := c.getDirect(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if err := guard.CanEditMessage(*msg, editorID); err != nil {
		return nil, err
	}
	if err := registrystore.ValidateEditText(text); err != nil {
		return nil, err
	}
	updated, err := c.store.UpdateMessageText(ctx, messageID, text, c.now())
	if err != nil {
		return nil, registrystore.Wrap("update message", err)
	}
	c.notify.DispatchTo(updated.Peer(editorID), model.EventMessageEdited, updated)
	return updated, nil
}

// Delete hard-deletes a direct message. Only the sender may delete; the
// receiver is notified with the message id.
func (c *DirectChannel) Delete(ctx context.Context, requesterID, messageID string) error {
	msg, err := c.getDirect(ctx, messageID)
	if err != nil {
		return err
	}
	if err := guard.CanDeleteDirectMessage(*msg, requesterID); err != nil {
		return err
	}
	if err := c.store.DeleteMessage(ctx, messageID); err != nil {
		return registrystore.Wrap("delete message", err)
	}
	c.notify.DispatchTo(msg.Peer(requesterID), model.EventMessageDeleted, messageID)
	return nil
}

// ListConversation returns the messages between userID and peerID, oldest
// first, and marks everything peerID sent to userID as seen. The returned
// messages reflect the state before marking. The peer is not notified.
func (c *DirectChannel) ListConversation(ctx context.Context, userID, peerID string) ([]model.Message, error) {
	if peerID == "" {
		return nil, &registrystore.ValidationError{Field: "peerId", Message: "is required"}
	}
	msgs, err := c.store.ListDirectMessages(ctx, userID, peerID)
	if err != nil {
		return nil, registrystore.Wrap("list messages", err)
	}
	marked, err := c.store.MarkDirectSeen(ctx, peerID, userID)
	if err != nil {
		return nil, registrystore.Wrap("mark seen", err)
	}
	if marked > 0 {
		log.Debug("Marked direct messages seen", "userID", userID, "peerID", peerID, "count", marked)
	}
	return msgs, nil
}

// MarkConversationSeen flags everything peerID sent to userID as seen
// without listing the conversation.
func (c *DirectChannel) MarkConversationSeen(ctx context.Context, userID, peerID string) (int64, error) {
	if peerID == "" {
		return 0, &registrystore.ValidationError{Field: "peerId", Message: "is required"}
	}
	n, err := c.store.MarkDirectSeen(ctx, peerID, userID)
	if err != nil {
		return 0, registrystore.Wrap("mark seen", err)
	}
	return n, nil
}

// ListUsersWithUnseenCounts returns every user other than requesterID and the
// number of unseen messages each has sent to requesterID. It issues one count
// query per user.
func (c *DirectChannel) ListUsersWithUnseenCounts(ctx context.Context, requesterID string) (*UserDirectory, error) {
	users, err := c.store.ListUsersExcept(ctx, requesterID)
	if err != nil {
		return nil, registrystore.Wrap("list users", err)
	}
	dir := &UserDirectory{Users: users, Unseen: map[string]int64{}}
	for _, u := range users {
		n, err := c.store.CountUnseen(ctx, u.ID, requesterID)
		if err != nil {
			return nil, registrystore.Wrap("count unseen", err)
		}
		if n > 0 {
			dir.Unseen[u.ID] = n
		}
	}
	return dir, nil
}
