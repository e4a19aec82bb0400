package chat

import (
	"errors"
	"testing"

	"github.com/chirino/chat-service/internal/model"
	registrystore "github.com/chirino/chat-service/internal/registry/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requireStoreError(t *testing.T, err error) {
	t.Helper()
	var se *registrystore.StoreError
	require.True(t, errors.As(err, &se), "expected StoreError, got %v", err)
	assert.ErrorIs(t, err, errStoreDown)
}

func requireNoChatEvents(t *testing.T, h *harness, ids ...string) {
	t.Helper()
	for _, id := range ids {
		assert.Empty(t, h.conn(id).chatEvents(), "user %s", id)
	}
}

func TestFailedWritesAreNotDispatched(t *testing.T) {
	t.Run("direct send", func(t *testing.T) {
		h := newHarness(t, "a", "b")
		h.online("a", "b")
		h.faults.breakWrites()

		msg, err := h.direct.Send(h.ctx, "a", "b", "hi", "")
		require.Nil(t, msg)
		requireStoreError(t, err)
		requireNoChatEvents(t, h, "a", "b")
	})

	t.Run("group send", func(t *testing.T) {
		h := newHarness(t, "c", "m")
		g := h.group(t, "c", "m")
		h.online("c", "m")
		h.faults.breakWrites()

		msg, err := h.groups.Send(h.ctx, "c", g.ID, "hi", "")
		require.Nil(t, msg)
		requireStoreError(t, err)
		requireNoChatEvents(t, h, "c", "m")

		stored, err := h.store.GetGroup(h.ctx, g.ID)
		require.NoError(t, err)
		assert.Nil(t, stored.LastMessage)
	})

	t.Run("update info", func(t *testing.T) {
		h := newHarness(t, "c", "m")
		g := h.group(t, "c", "m")
		h.online("c", "m")
		h.faults.breakWrites()

		name := "renamed"
		updated, err := h.groups.UpdateInfo(h.ctx, "c", g.ID, model.GroupInfoUpdate{Name: &name})
		require.Nil(t, updated)
		requireStoreError(t, err)
		requireNoChatEvents(t, h, "c", "m")
	})

	t.Run("remove member", func(t *testing.T) {
		h := newHarness(t, "c", "m1", "m2")
		g := h.group(t, "c", "m1", "m2")
		h.online("c", "m1", "m2")
		h.faults.breakWrites()

		updated, err := h.groups.RemoveMember(h.ctx, "c", g.ID, "m1")
		require.Nil(t, updated)
		requireStoreError(t, err)
		requireNoChatEvents(t, h, "c", "m1", "m2")

		stored, err := h.store.GetGroup(h.ctx, g.ID)
		require.NoError(t, err)
		assert.Contains(t, stored.MemberIDs(), "m1")
	})

	t.Run("delete group", func(t *testing.T) {
		h := newHarness(t, "c", "m")
		g := h.group(t, "c", "m")
		h.online("c", "m")
		h.faults.breakWrites()

		requireStoreError(t, h.groups.DeleteGroup(h.ctx, "c", g.ID))
		requireNoChatEvents(t, h, "c", "m")
	})
}
