package metrics

import (
	"context"
	"time"

	"github.com/chirino/chat-service/internal/model"
	"github.com/chirino/chat-service/internal/registry/store"
	"github.com/chirino/chat-service/internal/security"
)

// Wrap returns a ChatStore that records StoreLatency for every operation.
func Wrap(inner store.ChatStore) store.ChatStore {
	return &metricsStore{inner: inner}
}

type metricsStore struct {
	inner store.ChatStore
}

func observe(op string, start time.Time) {
	if security.StoreLatency == nil {
		return
	}
	security.StoreLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func (m *metricsStore) CreateUser(ctx context.Context, user model.User) (*model.User, error) {
	defer observe("create_user", time.Now())
	return m.inner.CreateUser(ctx, user)
}

func (m *metricsStore) GetUser(ctx context.Context, userID string) (*model.User, error) {
	defer observe("get_user", time.Now())
	return m.inner.GetUser(ctx, userID)
}

func (m *metricsStore) GetUsers(ctx context.Context, userIDs []string) ([]model.User, error) {
	defer observe("get_users", time.Now())
	return m.inner.GetUsers(ctx, userIDs)
}

func (m *metricsStore) ListUsersExcept(ctx context.Context, userID string) ([]model.User, error) {
	defer observe("list_users", time.Now())
	return m.inner.ListUsersExcept(ctx, userID)
}

func (m *metricsStore) UpdateUserProfile(ctx context.Context, userID string, update model.ProfileUpdate) (*model.User, error) {
	defer observe("update_user_profile", time.Now())
	return m.inner.UpdateUserProfile(ctx, userID, update)
}

func (m *metricsStore) CreateMessage(ctx context.Context, msg model.Message) (*model.Message, error) {
	defer observe("create_message", time.Now())
	return m.inner.CreateMessage(ctx, msg)
}

func (m *metricsStore) GetMessage(ctx context.Context, messageID string) (*model.Message, error) {
	defer observe("get_message", time.Now())
	return m.inner.GetMessage(ctx, messageID)
}

func (m *metricsStore) GetMessages(ctx context.Context, messageIDs []string) ([]model.Message, error) {
	defer observe("get_messages", time.Now())
	return m.inner.GetMessages(ctx, messageIDs)
}

func (m *metricsStore) UpdateMessageText(ctx context.Context, messageID string, text string, editedAt time.Time) (*model.Message, error) {
	defer observe("update_message_text", time.Now())
	return m.inner.UpdateMessageText(ctx, messageID, text, editedAt)
}

func (m *metricsStore) DeleteMessage(ctx context.Context, messageID string) error {
	defer observe("delete_message", time.Now())
	return m.inner.DeleteMessage(ctx, messageID)
}

func (m *metricsStore) DeleteGroupMessages(ctx context.Context, groupID string) (int64, error) {
	defer observe("delete_group_messages", time.Now())
	return m.inner.DeleteGroupMessages(ctx, groupID)
}

func (m *metricsStore) ListDirectMessages(ctx context.Context, userA, userB string) ([]model.Message, error) {
	defer observe("list_direct_messages", time.Now())
	return m.inner.ListDirectMessages(ctx, userA, userB)
}

func (m *metricsStore) ListGroupMessages(ctx context.Context, groupID string) ([]model.Message, error) {
	defer observe("list_group_messages", time.Now())
	return m.inner.ListGroupMessages(ctx, groupID)
}

func (m *metricsStore) MarkDirectSeen(ctx context.Context, fromUserID, toUserID string) (int64, error) {
	defer observe("mark_direct_seen", time.Now())
	return m.inner.MarkDirectSeen(ctx, fromUserID, toUserID)
}

func (m *metricsStore) MarkGroupSeen(ctx context.Context, groupID, userID string) (int64, error) {
	defer observe("mark_group_seen", time.Now())
	return m.inner.MarkGroupSeen(ctx, groupID, userID)
}

func (m *metricsStore) CountUnseen(ctx context.Context, fromUserID, toUserID string) (int64, error) {
	defer observe("count_unseen", time.Now())
	return m.inner.CountUnseen(ctx, fromUserID, toUserID)
}

func (m *metricsStore) CreateGroup(ctx context.Context, group model.Group) (*model.Group, error) {
	defer observe("create_group", time.Now())
	return m.inner.CreateGroup(ctx, group)
}

func (m *metricsStore) GetGroup(ctx context.Context, groupID string) (*model.Group, error) {
	defer observe("get_group", time.Now())
	return m.inner.GetGroup(ctx, groupID)
}

func (m *metricsStore) ListGroupsForUser(ctx context.Context, userID string) ([]model.Group, error) {
	defer observe("list_groups", time.Now())
	return m.inner.ListGroupsForUser(ctx, userID)
}

func (m *metricsStore) UpdateGroupInfo(ctx context.Context, groupID string, update model.GroupInfoUpdate) (*model.Group, error) {
	defer observe("update_group_info", time.Now())
	return m.inner.UpdateGroupInfo(ctx, groupID, update)
}

func (m *metricsStore) SetLastMessage(ctx context.Context, groupID, messageID string) error {
	defer observe("set_last_message", time.Now())
	return m.inner.SetLastMessage(ctx, groupID, messageID)
}

func (m *metricsStore) AddGroupMember(ctx context.Context, groupID, userID string) (*model.Group, error) {
	defer observe("add_group_member", time.Now())
	return m.inner.AddGroupMember(ctx, groupID, userID)
}

func (m *metricsStore) RemoveGroupMember(ctx context.Context, groupID, userID string) (*model.Group, error) {
	defer observe("remove_group_member", time.Now())
	return m.inner.RemoveGroupMember(ctx, groupID, userID)
}

func (m *metricsStore) DeleteGroup(ctx context.Context, groupID string) error {
	defer observe("delete_group", time.Now())
	return m.inner.DeleteGroup(ctx, groupID)
}
