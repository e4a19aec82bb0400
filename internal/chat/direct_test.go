package chat

import (
	"testing"

	"github.com/chirino/chat-service/internal/model"
	registrystore "github.com/chirino/chat-service/internal/registry/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirectSendReachesOnlineReceiver(t *testing.T) {
	h := newHarness(t, "x", "y")
	h.online("x", "y")

	msg, err := h.direct.Send(h.ctx, "x", "y", "hi", "")
	require.NoError(t, err)
	assert.Equal(t, "hi", msg.Text)
	assert.False(t, msg.Seen)
	assert.NotEmpty(t, msg.ID)

	got := h.conn("y").named(model.EventNewMessage)
	require.Len(t, got, 1)
	assert.Equal(t, "hi", got[0].(*model.Message).Text)
	assert.Empty(t, h.conn("x").named(model.EventNewMessage), "the sender updates from the return value")
}

func TestDirectSendToOfflineReceiverStillStores(t *testing.T) {
	h := newHarness(t, "x", "y")

	_, err := h.direct.Send(h.ctx, "x", "y", "", "img.png")
	require.NoError(t, err)

	msgs, err := h.direct.ListConversation(h.ctx, "y", "x")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "img.png", msgs[0].Image)
}

func TestDirectSendValidation(t *testing.T) {
	h := newHarness(t, "x", "y")
	h.online("y")

	_, err := h.direct.Send(h.ctx, "x", "y", "  ", "")
	var verr *registrystore.ValidationError
	require.ErrorAs(t, err, &verr)

	_, err = h.direct.Send(h.ctx, "x", "", "hi", "")
	require.ErrorAs(t, err, &verr)

	_, err = h.direct.Send(h.ctx, "x", "ghost", "hi", "")
	var nf *registrystore.NotFoundError
	require.ErrorAs(t, err, &nf)

	assert.Empty(t, h.conn("y").chatEvents())
}

func TestDirectEdit(t *testing.T) {
	h := newHarness(t, "x", "y")
	h.online("x", "y")
	msg, err := h.direct.Send(h.ctx, "x", "y", "hi", "")
	require.NoError(t, err)

	t.Run("receiver cannot edit", func(t *testing.T) {
		_, err := h.direct.Edit(h.ctx, "y", msg.ID, "changed")
		var aerr *registrystore.AuthorizationError
		require.ErrorAs(t, err, &aerr)
	})

	t.Run("empty text", func(t *testing.T) {
		_, err := h.direct.Edit(h.ctx, "x", msg.ID, "")
		var verr *registrystore.ValidationError
		require.ErrorAs(t, err, &verr)
	})

	t.Run("missing message", func(t *testing.T) {
		_, err := h.direct.Edit(h.ctx, "x", "nope", "changed")
		var nf *registrystore.NotFoundError
		require.ErrorAs(t, err, &nf)
	})

	assert.Empty(t, h.conn("y").named(model.EventMessageEdited))

	edited, err := h.direct.Edit(h.ctx, "x", msg.ID, "hello")
	require.NoError(t, err)
	assert.Equal(t, "hello", edited.Text)
	assert.True(t, edited.Edited)
	require.NotNil(t, edited.EditedAt)

	got := h.conn("y").named(model.EventMessageEdited)
	require.Len(t, got, 1)
	assert.Equal(t, "hello", got[0].(*model.Message).Text)
	assert.Empty(t, h.conn("x").named(model.EventMessageEdited))
}

func TestDirectDeleteIsSenderOnly(t *testing.T) {
	h := newHarness(t, "x", "y")
	h.online("x", "y")
	msg, err := h.direct.Send(h.ctx, "x", "y", "hi", "")
	require.NoError(t, err)

	err = h.direct.Delete(h.ctx, "y", msg.ID)
	var aerr *registrystore.AuthorizationError
	require.ErrorAs(t, err, &aerr)
	assert.Empty(t, h.conn("x").named(model.EventMessageDeleted))

	require.NoError(t, h.direct.Delete(h.ctx, "x", msg.ID))
	got := h.conn("y").named(model.EventMessageDeleted)
	require.Len(t, got, 1)
	assert.Equal(t, msg.ID, got[0])

	_, err = h.store.GetMessage(h.ctx, msg.ID)
	var nf *registrystore.NotFoundError
	require.ErrorAs(t, err, &nf)
}

func TestDirectChannelRejectsGroupMessages(t *testing.T) {
	h := newHarness(t, "a", "b")
	g := h.group(t, "a", "b")
	msg, err := h.groups.Send(h.ctx, "a", g.ID, "hi", "")
	require.NoError(t, err)

	var nf *registrystore.NotFoundError
	_, err = h.direct.Edit(h.ctx, "a", msg.ID, "x")
	require.ErrorAs(t, err, &nf)
	require.ErrorAs(t, h.direct.Delete(h.ctx, "a", msg.ID), &nf)
}

func TestUnseenCountsFollowConversationViews(t *testing.T) {
	h := newHarness(t, "x", "y", "z")

	dir, err := h.direct.ListUsersWithUnseenCounts(h.ctx, "y")
	require.NoError(t, err)
	assert.Len(t, dir.Users, 2)
	assert.Empty(t, dir.Unseen)

	_, err = h.direct.Send(h.ctx, "x", "y", "one", "")
	require.NoError(t, err)
	dir, err = h.direct.ListUsersWithUnseenCounts(h.ctx, "y")
	require.NoError(t, err)
	assert.Equal(t, int64(1), dir.Unseen["x"])
	_, hasZ := dir.Unseen["z"]
	assert.False(t, hasZ)

	_, err = h.direct.Send(h.ctx, "x", "y", "two", "")
	require.NoError(t, err)
	dir, err = h.direct.ListUsersWithUnseenCounts(h.ctx, "y")
	require.NoError(t, err)
	assert.Equal(t, int64(2), dir.Unseen["x"])

	// Viewing from the sender's side changes nothing.
	_, err = h.direct.ListConversation(h.ctx, "x", "y")
	require.NoError(t, err)
	dir, err = h.direct.ListUsersWithUnseenCounts(h.ctx, "y")
	require.NoError(t, err)
	assert.Equal(t, int64(2), dir.Unseen["x"])

	msgs, err := h.direct.ListConversation(h.ctx, "y", "x")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "one", msgs[0].Text)
	assert.Equal(t, "two", msgs[1].Text)

	dir, err = h.direct.ListUsersWithUnseenCounts(h.ctx, "y")
	require.NoError(t, err)
	_, hasX := dir.Unseen["x"]
	assert.False(t, hasX)
}

func TestListConversationRequiresPeer(t *testing.T) {
	h := newHarness(t, "x")
	_, err := h.direct.ListConversation(h.ctx, "x", "")
	var verr *registrystore.ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestMarkConversationSeen(t *testing.T) {
	h := newHarness(t, "x", "y")
	_, err := h.direct.Send(h.ctx, "x", "y", "one", "")
	require.NoError(t, err)

	n, err := h.direct.MarkConversationSeen(h.ctx, "y", "x")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = h.direct.MarkConversationSeen(h.ctx, "y", "x")
	require.NoError(t, err)
	assert.Zero(t, n)
}
