package serve

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/chirino/chat-service/internal/config"
	"github.com/chirino/chat-service/internal/security"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

func startMemoryServer(t *testing.T) *Server {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Mode = config.ModeTesting
	cfg.DatastoreType = "memory"
	cfg.MetricsLabels = "service=chat-service-test"
	cfg.Listener.Port = 0
	cfg.Listener.EnableTLS = false

	srv, err := StartServer(config.WithContext(context.Background(), &cfg), &cfg)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})
	return srv
}

func TestStartServer_ServesStatusAndHealth(t *testing.T) {
	srv := startMemoryServer(t)
	base := fmt.Sprintf("http://127.0.0.1:%d", srv.Running.Port)

	for _, path := range []string{"/api/status", "/health", "/ready"} {
		resp, err := http.Get(base + path)
		require.NoError(t, err, path)
		_ = resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode, path)
	}
}

func TestStartServer_DirectMessageReachesSocket(t *testing.T) {
	srv := startMemoryServer(t)
	base := fmt.Sprintf("127.0.0.1:%d", srv.Running.Port)

	conn, _, err := websocket.DefaultDialer.Dial("ws://"+base+"/api/socket?token=bob", nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool {
		return srv.Chat.Presence.IsOnline("bob")
	}, 2*time.Second, 10*time.Millisecond)

	req, err := http.NewRequest(http.MethodPost, "http://"+base+"/api/messages/send/bob", strings.NewReader(`{"text":"hi bob"}`))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(security.UserIDHeader, "alice")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		var frame struct {
			Event string          `json:"event"`
			Data  json.RawMessage `json:"data"`
		}
		require.NoError(t, json.Unmarshal(data, &frame))
		if frame.Event != "newMessage" {
			continue
		}
		var msg struct {
			Sender   string `json:"sender"`
			Receiver string `json:"receiver"`
			Text     string `json:"text"`
		}
		require.NoError(t, json.Unmarshal(frame.Data, &msg))
		require.Equal(t, "alice", msg.Sender)
		require.Equal(t, "bob", msg.Receiver)
		require.Equal(t, "hi bob", msg.Text)
		return
	}
}

func TestStartServer_RejectsInvalidWebSocketConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.DatastoreType = "memory"
	cfg.WebSocket.PingPeriod = cfg.WebSocket.PongWait
	_, err := StartServer(context.Background(), &cfg)
	require.Error(t, err)
}
