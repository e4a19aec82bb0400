package dispatch

import (
	"errors"
	"testing"

	"github.com/chirino/chat-service/internal/mocks"
	"github.com/chirino/chat-service/internal/model"
	"github.com/chirino/chat-service/internal/presence"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type mapLocator map[string]presence.Conn

func (m mapLocator) Lookup(userID string) (presence.Conn, bool) {
	c, ok := m[userID]
	return c, ok
}

func TestDispatch_DeliversToOnlineTargetsOnly(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	alice := mocks.NewMockConn(ctrl)
	bob := mocks.NewMockConn(ctrl)

	// Given alice and bob are online, carol is not
	d := New(mapLocator{"alice": alice, "bob": bob})
	alice.EXPECT().Send(model.EventGroupDeleted, gomock.Any()).Return(nil).Times(1)
	bob.EXPECT().Send(model.EventGroupDeleted, gomock.Any()).Return(nil).Times(1)

	// When dispatching to all three
	n := d.Dispatch([]string{"alice", "bob", "carol"}, model.EventGroupDeleted, model.GroupRefEvent{GroupID: "g"})

	// Then only the online two receive it
	req.Equal(2, n)
}

func TestDispatch_DeduplicatesTargets(t *testing.T) {
	ctrl := gomock.NewController(t)
	alice := mocks.NewMockConn(ctrl)
	d := New(mapLocator{"alice": alice})

	alice.EXPECT().Send(model.EventMessageDeleted, "m1").Return(nil).Times(1)
	require.Equal(t, 1, d.Dispatch([]string{"alice", "alice", ""}, model.EventMessageDeleted, "m1"))
}

func TestDispatch_SwallowsDeliveryFailures(t *testing.T) {
	ctrl := gomock.NewController(t)
	broken := mocks.NewMockConn(ctrl)
	ok := mocks.NewMockConn(ctrl)
	d := New(mapLocator{"broken": broken, "ok": ok})

	broken.EXPECT().Send(gomock.Any(), gomock.Any()).Return(errors.New("send buffer full"))
	ok.EXPECT().Send(model.EventNewMessage, gomock.Any()).Return(nil)

	require.Equal(t, 1, d.Dispatch([]string{"broken", "ok"}, model.EventNewMessage, model.Message{ID: "m"}))
}

func TestDispatchTo_OfflineIsNoop(t *testing.T) {
	d := New(mapLocator{})
	require.False(t, d.DispatchTo("ghost", model.EventNewMessage, nil))
}

func TestDispatch_UsesPresenceRegistry(t *testing.T) {
	ctrl := gomock.NewController(t)
	conn := mocks.NewMockConn(ctrl)
	// The registry broadcasts the online set on connect.
	conn.EXPECT().Send(model.EventGetOnlineUsers, []string{"u"}).Return(nil)
	conn.EXPECT().Send(model.EventAddedToGroup, gomock.Any()).Return(nil)

	r := presence.NewRegistry()
	r.Connect("u", conn)
	require.True(t, New(r).DispatchTo("u", model.EventAddedToGroup, model.Group{ID: "g"}))
}
