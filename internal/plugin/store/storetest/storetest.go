// Package storetest holds the behavioural test suite every ChatStore plugin must pass.
package storetest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/chirino/chat-service/internal/model"
	registrystore "github.com/chirino/chat-service/internal/registry/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory returns a fresh, empty store for a single sub-test.
type Factory func(t *testing.T) registrystore.ChatStore

// Run executes the suite against stores produced by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("Users", func(t *testing.T) { testUsers(t, newStore(t)) })
	t.Run("MessageInvariants", func(t *testing.T) { testMessageInvariants(t, newStore(t)) })
	t.Run("DirectMessages", func(t *testing.T) { testDirectMessages(t, newStore(t)) })
	t.Run("GroupMessages", func(t *testing.T) { testGroupMessages(t, newStore(t)) })
	t.Run("Groups", func(t *testing.T) { testGroups(t, newStore(t)) })
	t.Run("ConcurrentMembership", func(t *testing.T) { testConcurrentMembership(t, newStore(t)) })
	t.Run("NotFound", func(t *testing.T) { testNotFound(t, newStore(t)) })
}

func mustUser(t *testing.T, s registrystore.ChatStore, name string) model.User {
	t.Helper()
	u, err := s.CreateUser(context.Background(), model.User{Username: name, Email: name + "@example.com"})
	require.NoError(t, err)
	return *u
}

func requireNotFound(t *testing.T, err error) {
	t.Helper()
	var nf *registrystore.NotFoundError
	require.True(t, errors.As(err, &nf), "expected NotFoundError, got %v", err)
}

func testUsers(t *testing.T, s registrystore.ChatStore) {
	ctx := context.Background()
	alice := mustUser(t, s, "alice")
	bob := mustUser(t, s, "bob")
	carol := mustUser(t, s, "carol")
	require.NotEmpty(t, alice.ID)

	_, err := s.CreateUser(ctx, model.User{Username: "alice2", Email: "alice@example.com"})
	var conflict *registrystore.ConflictError
	require.True(t, errors.As(err, &conflict), "expected ConflictError, got %v", err)
	assert.Equal(t, registrystore.ConflictDuplicateEmail, conflict.Code)

	_, err = s.CreateUser(ctx, model.User{ID: alice.ID, Username: "alice3"})
	require.True(t, errors.As(err, &conflict), "expected ConflictError, got %v", err)
	assert.Equal(t, registrystore.ConflictDuplicateUser, conflict.Code)

	others, err := s.ListUsersExcept(ctx, alice.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{bob.ID, carol.ID}, ids(others))

	some, err := s.GetUsers(ctx, []string{bob.ID, "missing", carol.ID})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{bob.ID, carol.ID}, ids(some))

	bio := "hello there"
	updated, err := s.UpdateUserProfile(ctx, bob.ID, model.ProfileUpdate{Bio: &bio})
	require.NoError(t, err)
	assert.Equal(t, bio, updated.Bio)
	assert.Equal(t, "bob", updated.Username)

	got, err := s.GetUser(ctx, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, bio, got.Bio)
}

func ids(users []model.User) []string {
	out := make([]string, len(users))
	for i, u := range users {
		out[i] = u.ID
	}
	return out
}

func testMessageInvariants(t *testing.T, s registrystore.ChatStore) {
	ctx := context.Background()
	receiver, group := "b", "g"

	_, err := s.CreateMessage(ctx, model.Message{Sender: model.Unresolved[model.User]("a"), Receiver: &receiver, Group: &group, Text: "x"})
	var ve *registrystore.ValidationError
	require.True(t, errors.As(err, &ve))

	_, err = s.CreateMessage(ctx, model.Message{Sender: model.Unresolved[model.User]("a"), Text: "x"})
	require.True(t, errors.As(err, &ve))

	_, err = s.CreateMessage(ctx, model.NewDirectMessage("a", "b", "", ""))
	require.True(t, errors.As(err, &ve))
}

func testDirectMessages(t *testing.T, s registrystore.ChatStore) {
	ctx := context.Background()
	alice := mustUser(t, s, "alice")
	bob := mustUser(t, s, "bob")
	carol := mustUser(t, s, "carol")

	m1, err := s.CreateMessage(ctx, model.NewDirectMessage(alice.ID, bob.ID, "hi", ""))
	require.NoError(t, err)
	require.NotEmpty(t, m1.ID)
	assert.False(t, m1.Seen)
	assert.False(t, m1.Sender.IsResolved())
	m2, err := s.CreateMessage(ctx, model.NewDirectMessage(bob.ID, alice.ID, "", "pic.png"))
	require.NoError(t, err)
	m3, err := s.CreateMessage(ctx, model.NewDirectMessage(alice.ID, bob.ID, "again", ""))
	require.NoError(t, err)
	_, err = s.CreateMessage(ctx, model.NewDirectMessage(alice.ID, carol.ID, "other", ""))
	require.NoError(t, err)

	convo, err := s.ListDirectMessages(ctx, bob.ID, alice.ID)
	require.NoError(t, err)
	require.Len(t, convo, 3)
	assert.Equal(t, []string{m1.ID, m2.ID, m3.ID}, []string{convo[0].ID, convo[1].ID, convo[2].ID})

	n, err := s.CountUnseen(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	marked, err := s.MarkDirectSeen(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), marked)
	n, err = s.CountUnseen(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	assert.Zero(t, n)

	// The reverse direction is untouched.
	n, err = s.CountUnseen(ctx, bob.ID, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	editedAt := time.Now().UTC().Truncate(time.Millisecond)
	edited, err := s.UpdateMessageText(ctx, m1.ID, "hello", editedAt)
	require.NoError(t, err)
	assert.Equal(t, "hello", edited.Text)
	assert.True(t, edited.Edited)
	require.NotNil(t, edited.EditedAt)
	assert.True(t, editedAt.Equal(*edited.EditedAt))

	got, err := s.GetMessages(ctx, []string{m1.ID, m2.ID, "missing"})
	require.NoError(t, err)
	assert.Len(t, got, 2)

	require.NoError(t, s.DeleteMessage(ctx, m1.ID))
	_, err = s.GetMessage(ctx, m1.ID)
	requireNotFound(t, err)
	requireNotFound(t, s.DeleteMessage(ctx, m1.ID))
}

func newGroup(creator string, members ...string) model.Group {
	refs := []model.UserRef{model.Unresolved[model.User](creator)}
	for _, m := range members {
		refs = append(refs, model.Unresolved[model.User](m))
	}
	return model.Group{
		Name:    "team",
		Creator: model.Unresolved[model.User](creator),
		Members: refs,
		Admins:  []string{creator},
	}
}

func testGroupMessages(t *testing.T, s registrystore.ChatStore) {
	ctx := context.Background()
	alice := mustUser(t, s, "alice")
	bob := mustUser(t, s, "bob")

	g, err := s.CreateGroup(ctx, newGroup(alice.ID, bob.ID))
	require.NoError(t, err)

	m1, err := s.CreateMessage(ctx, model.NewGroupMessage(alice.ID, g.ID, "one", ""))
	require.NoError(t, err)
	assert.Equal(t, []string{alice.ID}, m1.SeenBy)
	m2, err := s.CreateMessage(ctx, model.NewGroupMessage(bob.ID, g.ID, "two", ""))
	require.NoError(t, err)
	require.NoError(t, s.SetLastMessage(ctx, g.ID, m2.ID))

	fresh, err := s.GetGroup(ctx, g.ID)
	require.NoError(t, err)
	require.NotNil(t, fresh.LastMessage)
	assert.Equal(t, m2.ID, fresh.LastMessage.ID())

	// Repeated marking is idempotent.
	for i := 0; i < 2; i++ {
		_, err = s.MarkGroupSeen(ctx, g.ID, bob.ID)
		require.NoError(t, err)
	}
	msgs, err := s.ListGroupMessages(ctx, g.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, m1.ID, msgs[0].ID)
	assert.ElementsMatch(t, []string{alice.ID, bob.ID}, msgs[0].SeenBy)
	// bob's own message is not re-marked by bob.
	assert.Equal(t, []string{bob.ID}, msgs[1].SeenBy)

	deleted, err := s.DeleteGroupMessages(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)
	msgs, err = s.ListGroupMessages(ctx, g.ID)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func testGroups(t *testing.T, s registrystore.ChatStore) {
	ctx := context.Background()
	alice := mustUser(t, s, "alice")
	bob := mustUser(t, s, "bob")
	carol := mustUser(t, s, "carol")

	_, err := s.CreateGroup(ctx, model.Group{Name: "bad", Creator: model.Unresolved[model.User](alice.ID), Admins: []string{alice.ID}})
	var ve *registrystore.ValidationError
	require.True(t, errors.As(err, &ve))

	g1, err := s.CreateGroup(ctx, newGroup(alice.ID, bob.ID))
	require.NoError(t, err)
	assert.Equal(t, alice.ID, g1.Creator.ID())
	assert.ElementsMatch(t, []string{alice.ID, bob.ID}, g1.MemberIDs())
	assert.Equal(t, []string{alice.ID}, g1.Admins)

	time.Sleep(5 * time.Millisecond)
	g2, err := s.CreateGroup(ctx, newGroup(bob.ID, carol.ID))
	require.NoError(t, err)

	groups, err := s.ListGroupsForUser(ctx, bob.ID)
	require.NoError(t, err)
	require.Len(t, groups, 2)
	assert.Equal(t, g2.ID, groups[0].ID)

	time.Sleep(5 * time.Millisecond)
	name := "renamed"
	updated, err := s.UpdateGroupInfo(ctx, g1.ID, model.GroupInfoUpdate{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "renamed", updated.Name)
	assert.True(t, updated.UpdatedAt.After(g1.UpdatedAt))

	groups, err = s.ListGroupsForUser(ctx, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, g1.ID, groups[0].ID)

	added, err := s.AddGroupMember(ctx, g1.ID, carol.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{alice.ID, bob.ID, carol.ID}, added.MemberIDs())

	again, err := s.AddGroupMember(ctx, g1.ID, carol.ID)
	require.NoError(t, err)
	assert.Len(t, again.MemberIDs(), 3)

	removed, err := s.RemoveGroupMember(ctx, g2.ID, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{carol.ID}, removed.MemberIDs())
	assert.Empty(t, removed.Admins)

	carolGroups, err := s.ListGroupsForUser(ctx, carol.ID)
	require.NoError(t, err)
	assert.Len(t, carolGroups, 2)

	require.NoError(t, s.DeleteGroup(ctx, g1.ID))
	_, err = s.GetGroup(ctx, g1.ID)
	requireNotFound(t, err)
}

func testConcurrentMembership(t *testing.T, s registrystore.ChatStore) {
	ctx := context.Background()
	owner := mustUser(t, s, "owner")
	g, err := s.CreateGroup(ctx, newGroup(owner.ID))
	require.NoError(t, err)

	var joiners []string
	for i := 0; i < 8; i++ {
		joiners = append(joiners, mustUser(t, s, "joiner"+string(rune('a'+i))).ID)
	}

	var wg sync.WaitGroup
	for _, id := range joiners {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := s.AddGroupMember(ctx, g.ID, id)
			assert.NoError(t, err)
		}(id)
	}
	wg.Wait()

	final, err := s.GetGroup(ctx, g.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, append([]string{owner.ID}, joiners...), final.MemberIDs())
}

func testNotFound(t *testing.T, s registrystore.ChatStore) {
	ctx := context.Background()
	_, err := s.GetUser(ctx, "nope")
	requireNotFound(t, err)
	_, err = s.GetGroup(ctx, "nope")
	requireNotFound(t, err)
	_, err = s.UpdateMessageText(ctx, "nope", "x", time.Now())
	requireNotFound(t, err)
	_, err = s.AddGroupMember(ctx, "nope", "u")
	requireNotFound(t, err)
	requireNotFound(t, s.DeleteGroup(ctx, "nope"))
}
