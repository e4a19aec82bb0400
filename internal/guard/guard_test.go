package guard

import (
	"errors"
	"testing"

	"github.com/chirino/chat-service/internal/model"
	registrystore "github.com/chirino/chat-service/internal/registry/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func group() model.Group {
	return model.Group{
		ID:      "g",
		Creator: model.Unresolved[model.User]("creator"),
		Members: model.UnresolvedRefs[model.User]([]string{"creator", "admin", "member", "sender"}),
		Admins:  []string{"creator", "admin"},
	}
}

func isAuthz(err error) bool {
	var ae *registrystore.AuthorizationError
	return errors.As(err, &ae)
}

func isValidation(err error) bool {
	var ve *registrystore.ValidationError
	return errors.As(err, &ve)
}

func TestPredicates(t *testing.T) {
	g := group()
	assert.True(t, IsMember(g, "member"))
	assert.False(t, IsMember(g, "stranger"))
	assert.False(t, IsMember(g, ""))
	assert.True(t, IsAdmin(g, "admin"))
	assert.False(t, IsAdmin(g, "member"))
	assert.True(t, IsCreator(g, "creator"))
	assert.False(t, IsCreator(g, "admin"))

	m := model.NewGroupMessage("sender", "g", "hi", "")
	assert.True(t, IsSender(m, "sender"))
	assert.False(t, IsSender(m, "admin"))
}

func TestEditIsSenderOnly(t *testing.T) {
	m := model.NewGroupMessage("sender", "g", "hi", "")
	require.NoError(t, CanEditMessage(m, "sender"))
	assert.True(t, isAuthz(CanEditMessage(m, "admin")))
	assert.True(t, isAuthz(CanEditMessage(m, "creator")))
}

func TestDirectDeleteIsSenderOnly(t *testing.T) {
	m := model.NewDirectMessage("sender", "receiver", "hi", "")
	require.NoError(t, CanDeleteDirectMessage(m, "sender"))
	assert.True(t, isAuthz(CanDeleteDirectMessage(m, "receiver")))
}

func TestGroupDeleteAllowsSenderOrAdmin(t *testing.T) {
	g := group()
	m := model.NewGroupMessage("sender", "g", "hi", "")
	require.NoError(t, CanDeleteGroupMessage(g, m, "sender"))
	require.NoError(t, CanDeleteGroupMessage(g, m, "admin"))
	assert.True(t, isAuthz(CanDeleteGroupMessage(g, m, "member")))
}

func TestRemoveMemberRules(t *testing.T) {
	g := group()
	require.NoError(t, CanRemoveMember(g, "admin", "member"))
	require.NoError(t, CanRemoveMember(g, "member", "member"))
	assert.True(t, isAuthz(CanRemoveMember(g, "member", "sender")))

	for _, requester := range []string{"creator", "admin", "member"} {
		assert.True(t, isValidation(CanRemoveMember(g, requester, "creator")), requester)
	}
}

func TestRequireHelpers(t *testing.T) {
	g := group()
	require.NoError(t, RequireMember(g, "member", "read"))
	assert.True(t, isAuthz(RequireMember(g, "stranger", "read")))
	require.NoError(t, RequireAdmin(g, "admin", "update"))
	assert.True(t, isAuthz(RequireAdmin(g, "member", "update")))
	require.NoError(t, RequireCreator(g, "creator", "delete"))
	assert.True(t, isAuthz(RequireCreator(g, "admin", "delete")))
}
