package chat

import (
	"context"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/chirino/chat-service/internal/guard"
	"github.com/chirino/chat-service/internal/model"
	registrystore "github.com/chirino/chat-service/internal/registry/store"
	"github.com/samber/lo"
)

// CreateGroupRequest carries the fields accepted by GroupChannel.Create.
type CreateGroupRequest struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Avatar      string   `json:"avatar"`
	MemberIDs   []string `json:"memberIds"`
}

// GroupChannel implements group conversations and membership management.
// Group records returned to callers have creator and members hydrated;
// group messages have their sender hydrated.
type GroupChannel struct {
	store   registrystore.ChatStore
	notify  Notifier
	hydrate *Hydrator
	now     clock
}

// NewGroupChannel returns a GroupChannel.
func NewGroupChannel(store registrystore.ChatStore, notify Notifier, hydrator *Hydrator) *GroupChannel {
	return &GroupChannel{store: store, notify: notify, hydrate: hydrator, now: utcNow}
}

func (c *GroupChannel) getGroup(ctx context.Context, groupID string) (*model.Group, error) {
	g, err := c.store.GetGroup(ctx, groupID)
	if err != nil {
		return nil, registrystore.Wrap("get group", err)
	}
	return g, nil
}

// getGroupMessage loads a group message and its group. A direct message id
// is reported as not found.
func (c *GroupChannel) getGroupMessage(ctx context.Context, messageID string) (*model.Message, *model.Group, error) {
	msg, err := c.store.GetMessage(ctx, messageID)
	if err != nil {
		return nil, nil, registrystore.Wrap("get message", err)
	}
	if !msg.IsGroupMessage() {
		return nil, nil, &registrystore.NotFoundError{Resource: "group message", ID: messageID}
	}
	g, err := c.getGroup(ctx, *msg.Group)
	if err != nil {
		return nil, nil, err
	}
	return msg, g, nil
}

// Create stores a new group. The creator is always the first member and the
// only admin. newGroup is pushed to every member.
func (c *GroupChannel) Create(ctx context.Context, creatorID string, req CreateGroupRequest) (*model.Group, error) {
	if strings.TrimSpace(req.Name) == "" {
		return nil, &registrystore.ValidationError{Field: "name", Message: "name is required"}
	}
	ids := lo.Compact(req.MemberIDs)
	if len(ids) == 0 {
		return nil, &registrystore.ValidationError{Field: "memberIds", Message: "at least one member is required"}
	}
	members := lo.Uniq(append([]string{creatorID}, ids...))

	g := model.Group{
		Name:        strings.TrimSpace(req.Name),
		Description: req.Description,
		Avatar:      req.Avatar,
		Creator:     model.Unresolved[model.User](creatorID),
		Members:     model.UnresolvedRefs[model.User](members),
		Admins:      []string{creatorID},
	}
	if err := registrystore.ValidateGroup(g); err != nil {
		return nil, err
	}
	created, err := c.store.CreateGroup(ctx, g)
	if err != nil {
		return nil, registrystore.Wrap("create group", err)
	}
	if err := c.hydrate.Group(ctx, created); err != nil {
		return nil, registrystore.Wrap("hydrate group", err)
	}
	c.notify.Dispatch(members, model.EventNewGroup, created)
	return created, nil
}

// ListGroups returns the groups userID belongs to, most recently updated
// first, with the last message attached.
func (c *GroupChannel) ListGroups(ctx context.Context, userID string) ([]model.Group, error) {
	groups, err := c.store.ListGroupsForUser(ctx, userID)
	if err != nil {
		return nil, registrystore.Wrap("list groups", err)
	}
	if err := c.hydrate.Groups(ctx, groups, true); err != nil {
		return nil, registrystore.Wrap("hydrate groups", err)
	}
	return groups, nil
}

// Send stores a group message, records it as the group's last message and
// pushes newGroupMessage to every member.
func (c *GroupChannel) Send(ctx context.Context, senderID, groupID, text, image string) (*model.Message, error) {
	g, err := c.getGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if err := guard.RequireMember(*g, senderID, "send messages to this group"); err != nil {
		return nil, err
	}
	msg := model.NewGroupMessage(senderID, groupID, text, image)
	if err := registrystore.ValidateMessage(msg); err != nil {
		return nil, err
	}
	created, err := c.store.CreateMessage(ctx, msg)
	if err != nil {
		return nil, registrystore.Wrap("create message", err)
	}
	if err := c.store.SetLastMessage(ctx, groupID, created.ID); err != nil {
		return nil, registrystore.Wrap("set last message", err)
	}
	if err := c.hydrate.Message(ctx, created); err != nil {
		return nil, registrystore.Wrap("hydrate message", err)
	}
	c.notify.Dispatch(g.MemberIDs(), model.EventNewGroupMessage, model.GroupMessageEvent{GroupID: groupID, Message: *created})
	return created, nil
}

// Edit replaces the text of a group message. Only the sender may edit;
// admins have no override here.
func (c *GroupChannel) Edit(ctx context.Context, editorID, messageID, text string) (*model.Message, error) {
	msg, g, err := c.getGroupMessage(ctx, messageID)
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
	if err := c.hydrate.Message(ctx, updated); err != nil {
		return nil, registrystore.Wrap("hydrate message", err)
	}
	c.notify.Dispatch(g.MemberIDs(), model.EventGroupMessageEdited, model.GroupMessageEvent{GroupID: g.ID, Message: *updated})
	return updated, nil
}

// Delete hard-deletes a group message. The sender or any admin may delete.
func (c *GroupChannel) Delete(ctx context.Context, requesterID, messageID string) error {
	msg, g, err := c.getGroupMessage(ctx, messageID)
	if err != nil {
		return err
	}
	if err := guard.CanDeleteGroupMessage(*g, *msg, requesterID); err != nil {
		return err
	}
	if err := c.store.DeleteMessage(ctx, messageID); err != nil {
		return registrystore.Wrap("delete message", err)
	}
	c.notify.Dispatch(g.MemberIDs(), model.EventGroupMessageDeleted, model.GroupMessageDeletedEvent{GroupID: g.ID, MessageID: messageID})
	return nil
}

// ListMessages returns the group's messages, oldest first, and adds userID
// to seenBy of every message it did not send. Marking is idempotent. The
// returned messages reflect the state before marking.
func (c *GroupChannel) ListMessages(ctx context.Context, userID, groupID string) ([]model.Message, error) {
	g, err := c.getGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if err := guard.RequireMember(*g, userID, "view this group"); err != nil {
		return nil, err
	}
	msgs, err := c.store.ListGroupMessages(ctx, groupID)
	if err != nil {
		return nil, registrystore.Wrap("list messages", err)
	}
	marked, err := c.store.MarkGroupSeen(ctx, groupID, userID)
	if err != nil {
		return nil, registrystore.Wrap("mark seen", err)
	}
	if marked > 0 {
		log.Debug("Marked group messages seen", "userID", userID, "groupID", groupID, "count", marked)
	}
	if err := c.hydrate.Messages(ctx, msgs); err != nil {
		return nil, registrystore.Wrap("hydrate messages", err)
	}
	return msgs, nil
}

// UpdateInfo applies the provided fields. Admins only. groupUpdated goes to
// the members as they were before the write.
func (c *GroupChannel) UpdateInfo(ctx context.Context, requesterID, groupID string, update model.GroupInfoUpdate) (*model.Group, error) {
	g, err := c.getGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if err := guard.RequireAdmin(*g, requesterID, "update this group"); err != nil {
		return nil, err
	}
	if update.Name != nil && strings.TrimSpace(*update.Name) == "" {
		return nil, &registrystore.ValidationError{Field: "name", Message: "name cannot be empty"}
	}
	recipients := g.MemberIDs()

	updated, err := c.store.UpdateGroupInfo(ctx, groupID, update)
	if err != nil {
		return nil, registrystore.Wrap("update group", err)
	}
	if err := c.hydrate.Group(ctx, updated); err != nil {
		return nil, registrystore.Wrap("hydrate group", err)
	}
	c.notify.Dispatch(recipients, model.EventGroupUpdated, updated)
	return updated, nil
}

// DeleteGroup removes the group and all of its messages. Creator only.
func (c *GroupChannel) DeleteGroup(ctx context.Context, requesterID, groupID string) error {
	g, err := c.getGroup(ctx, groupID)
	if err != nil {
		return err
	}
	if err := guard.RequireCreator(*g, requesterID, "delete this group"); err != nil {
		return err
	}
	recipients := g.MemberIDs()

	removed, err := c.store.DeleteGroupMessages(ctx, groupID)
	if err != nil {
		return registrystore.Wrap("delete group messages", err)
	}
	if err := c.store.DeleteGroup(ctx, groupID); err != nil {
		return registrystore.Wrap("delete group", err)
	}
	log.Info("Deleted group", "groupID", groupID, "messages", removed)
	c.notify.Dispatch(recipients, model.EventGroupDeleted, model.GroupRefEvent{GroupID: groupID})
	return nil
}

// AddMember adds newUserID to the group. Admins only. The new member gets
// addedToGroup with the full group, everyone else gets memberAdded.
func (c *GroupChannel) AddMember(ctx context.Context, requesterID, groupID, newUserID string) (*model.Group, error) {
	g, err := c.getGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if err := guard.RequireAdmin(*g, requesterID, "add members to this group"); err != nil {
		return nil, err
	}
	if newUserID == "" {
		return nil, &registrystore.ValidationError{Field: "userId", Message: "is required"}
	}
	if guard.IsMember(*g, newUserID) {
		return nil, &registrystore.ValidationError{Field: "userId", Message: "user is already a member"}
	}
	user, err := c.store.GetUser(ctx, newUserID)
	if err != nil {
		return nil, registrystore.Wrap("get user", err)
	}

	updated, err := c.store.AddGroupMember(ctx, groupID, newUserID)
	if err != nil {
		return nil, registrystore.Wrap("add member", err)
	}
	if err := c.hydrate.Group(ctx, updated); err != nil {
		return nil, registrystore.Wrap("hydrate group", err)
	}
	c.notify.DispatchTo(newUserID, model.EventAddedToGroup, updated)
	others := lo.Without(updated.MemberIDs(), newUserID)
	c.notify.Dispatch(others, model.EventMemberAdded, model.MemberAddedEvent{GroupID: groupID, NewMember: model.Resolved(*user)})
	return updated, nil
}

// RemoveMember removes targetID from members and admins. Admins may remove
// anyone but the creator; any member may remove itself.
func (c *GroupChannel) RemoveMember(ctx context.Context, requesterID, groupID, targetID string) (*model.Group, error) {
	g, err := c.getGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if err := guard.CanRemoveMember(*g, requesterID, targetID); err != nil {
		return nil, err
	}
	if !guard.IsMember(*g, targetID) {
		return nil, &registrystore.ValidationError{Field: "userId", Message: "user is not a member"}
	}

	updated, err := c.store.RemoveGroupMember(ctx, groupID, targetID)
	if err != nil {
		return nil, registrystore.Wrap("remove member", err)
	}
	if err := c.hydrate.Group(ctx, updated); err != nil {
		return nil, registrystore.Wrap("hydrate group", err)
	}
	c.notify.DispatchTo(targetID, model.EventRemovedFromGroup, model.GroupRefEvent{GroupID: groupID})
	c.notify.Dispatch(updated.MemberIDs(), model.EventMemberRemoved, model.MemberRemovedEvent{GroupID: groupID, RemovedMemberID: targetID})
	return updated, nil
}
