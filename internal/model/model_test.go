package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRefJSONUnresolved(t *testing.T) {
	ref := Unresolved[User]("u1")
	data, err := json.Marshal(ref)
	require.NoError(t, err)
	assert.JSONEq(t, `"u1"`, string(data))

	var back UserRef
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, "u1", back.ID())
	assert.False(t, back.IsResolved())
}

func TestRefJSONResolved(t *testing.T) {
	ref := Resolved(User{ID: "u1", Username: "alice"})
	data, err := json.Marshal(ref)
	require.NoError(t, err)

	var obj map[string]any
	require.NoError(t, json.Unmarshal(data, &obj))
	assert.Equal(t, "u1", obj["id"])
	assert.Equal(t, "alice", obj["username"])

	var back UserRef
	require.NoError(t, json.Unmarshal(data, &back))
	assert.True(t, back.IsResolved())
	u, ok := back.Record()
	require.True(t, ok)
	assert.Equal(t, "alice", u.Username)
	assert.Equal(t, "u1", back.ID())
}

func TestRefUnresolveKeepsID(t *testing.T) {
	ref := Resolved(User{ID: "u1"}).Unresolve()
	assert.False(t, ref.IsResolved())
	assert.Equal(t, "u1", ref.ID())
}

func TestMessageShape(t *testing.T) {
	dm := NewDirectMessage("a", "b", "hi", "")
	assert.True(t, dm.IsDirect())
	assert.False(t, dm.IsGroupMessage())
	assert.Equal(t, "b", dm.Peer("a"))
	assert.Equal(t, "a", dm.Peer("b"))

	gm := NewGroupMessage("a", "g", "", "img.png")
	assert.True(t, gm.IsGroupMessage())
	assert.Equal(t, []string{"a"}, gm.SeenBy)
}

func TestGroupMemberIDs(t *testing.T) {
	g := Group{Members: []UserRef{Unresolved[User]("a"), Resolved(User{ID: "b"})}}
	assert.Equal(t, []string{"a", "b"}, g.MemberIDs())
}
