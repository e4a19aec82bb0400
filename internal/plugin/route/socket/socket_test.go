package socket_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/chirino/chat-service/internal/config"
	"github.com/chirino/chat-service/internal/dispatch"
	"github.com/chirino/chat-service/internal/model"
	"github.com/chirino/chat-service/internal/plugin/route/socket"
	"github.com/chirino/chat-service/internal/presence"
	"github.com/chirino/chat-service/internal/security"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) (*httptest.Server, *presence.Registry) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cfg := config.DefaultConfig()
	cfg.Mode = config.ModeTesting
	reg := presence.NewRegistry()

	r := gin.New()
	socket.MountRoutes(r, reg, cfg.WebSocket, security.ParseOrigins(""), security.AuthMiddleware(security.NewTokenResolver(&cfg)))
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, reg
}

func dial(t *testing.T, srv *httptest.Server, user string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + socket.Path + "?token=" + user
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// next reads frames until one named event arrives.
func next(t *testing.T, conn *websocket.Conn, event string) json.RawMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		var f socket.Frame
		require.NoError(t, conn.ReadJSON(&f))
		if f.Event == event {
			return f.Data
		}
	}
}

func onlineSet(t *testing.T, data json.RawMessage) []string {
	var ids []string
	require.NoError(t, json.Unmarshal(data, &ids))
	return ids
}

func TestConnectBroadcastsOnlineUsers(t *testing.T) {
	srv, reg := setup(t)

	alice := dial(t, srv, "alice")
	assert.Equal(t, []string{"alice"}, onlineSet(t, next(t, alice, model.EventGetOnlineUsers)))

	bob := dial(t, srv, "bob")
	assert.Equal(t, []string{"alice", "bob"}, onlineSet(t, next(t, bob, model.EventGetOnlineUsers)))
	assert.Equal(t, []string{"alice", "bob"}, onlineSet(t, next(t, alice, model.EventGetOnlineUsers)))

	require.NoError(t, bob.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	assert.Equal(t, []string{"alice"}, onlineSet(t, next(t, alice, model.EventGetOnlineUsers)))
	assert.Eventually(t, func() bool { return !reg.IsOnline("bob") }, 5*time.Second, 10*time.Millisecond)
}

func TestDispatchedEventsReachTheSocket(t *testing.T) {
	srv, reg := setup(t)
	conn := dial(t, srv, "bob")
	next(t, conn, model.EventGetOnlineUsers)

	d := dispatch.New(reg)
	assert.Eventually(t, func() bool {
		return d.DispatchTo("bob", model.EventGroupDeleted, model.GroupRefEvent{GroupID: "g1"})
	}, 5*time.Second, 10*time.Millisecond)

	var ev model.GroupRefEvent
	require.NoError(t, json.Unmarshal(next(t, conn, model.EventGroupDeleted), &ev))
	assert.Equal(t, "g1", ev.GroupID)
}

func TestClientCanAskForOnlineUsers(t *testing.T) {
	srv, _ := setup(t)
	conn := dial(t, srv, "alice")
	next(t, conn, model.EventGetOnlineUsers)

	require.NoError(t, conn.WriteJSON(map[string]string{"event": model.EventGetOnlineUsers}))
	assert.Equal(t, []string{"alice"}, onlineSet(t, next(t, conn, model.EventGetOnlineUsers)))
}

func TestReconnectKeepsNewestConnection(t *testing.T) {
	srv, reg := setup(t)
	first := dial(t, srv, "alice")
	next(t, first, model.EventGetOnlineUsers)
	second := dial(t, srv, "alice")
	next(t, second, model.EventGetOnlineUsers)

	require.NoError(t, first.Close())

	// The stale connection going away must not take alice offline.
	time.Sleep(100 * time.Millisecond)
	assert.True(t, reg.IsOnline("alice"))

	d := dispatch.New(reg)
	require.True(t, d.DispatchTo("alice", model.EventMessageDeleted, "m1"))
	var id string
	require.NoError(t, json.Unmarshal(next(t, second, model.EventMessageDeleted), &id))
	assert.Equal(t, "m1", id)
}

func TestUpgradeRequiresAuth(t *testing.T) {
	srv, _ := setup(t)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + socket.Path
	_, resp, err := websocket.DefaultDialer.DialContext(context.Background(), url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
