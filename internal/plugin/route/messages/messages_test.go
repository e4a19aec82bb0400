package messages_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/chirino/chat-service/internal/chat"
	"github.com/chirino/chat-service/internal/config"
	"github.com/chirino/chat-service/internal/model"
	"github.com/chirino/chat-service/internal/plugin/route/messages"
	"github.com/chirino/chat-service/internal/plugin/store/memory"
	"github.com/chirino/chat-service/internal/security"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	store := memory.New()
	for _, id := range []string{"alice", "bob"} {
		_, err := store.CreateUser(context.Background(), model.User{ID: id, Username: id})
		require.NoError(t, err)
	}
	svc := chat.NewService(store, nil, 0)

	cfg := config.DefaultConfig()
	cfg.Mode = config.ModeTesting
	auth := security.AuthMiddleware(security.NewTokenResolver(&cfg))
	limiter := security.NewSendLimiter(0.001, 2, time.Minute)

	r := gin.New()
	messages.MountRoutes(r, svc.Direct, limiter.Middleware(), auth)
	return r
}

func do(t *testing.T, r *gin.Engine, user, method, path string, body any) (int, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set(security.UserIDHeader, user)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return w.Code, out
}

func TestDirectMessageLifecycle(t *testing.T) {
	r := setupRouter(t)

	code, out := do(t, r, "alice", http.MethodPost, "/api/messages/send/bob", map[string]any{"text": "hi"})
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, true, out["success"])
	msg := out["message"].(map[string]any)
	assert.Equal(t, "hi", msg["text"])
	assert.Equal(t, "alice", msg["sender"])
	id := msg["id"].(string)

	code, out = do(t, r, "bob", http.MethodGet, "/api/messages/users", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, map[string]any{"alice": float64(1)}, out["unSeenMessages"])
	assert.Len(t, out["users"], 1)

	code, out = do(t, r, "bob", http.MethodGet, "/api/messages/alice", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, out["messages"], 1)

	_, out = do(t, r, "bob", http.MethodGet, "/api/messages/users", nil)
	assert.Empty(t, out["unSeenMessages"])

	code, _ = do(t, r, "bob", http.MethodPut, "/api/messages/edit/"+id, map[string]any{"text": "nope"})
	assert.Equal(t, http.StatusForbidden, code)

	code, out = do(t, r, "alice", http.MethodPut, "/api/messages/edit/"+id, map[string]any{"text": "hello"})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, out["message"].(map[string]any)["edited"])

	code, _ = do(t, r, "bob", http.MethodDelete, "/api/messages/"+id, nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, _ = do(t, r, "alice", http.MethodDelete, "/api/messages/"+id, nil)
	assert.Equal(t, http.StatusOK, code)

	code, out = do(t, r, "alice", http.MethodDelete, "/api/messages/"+id, nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "not_found", out["code"])
}

func TestSendValidationAndLimits(t *testing.T) {
	r := setupRouter(t)

	code, out := do(t, r, "alice", http.MethodPost, "/api/messages/send/bob", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "validation_error", out["code"])

	code, _ = do(t, r, "alice", http.MethodPost, "/api/messages/send/bob", map[string]any{"text": "1"})
	assert.Equal(t, http.StatusCreated, code)
	code, _ = do(t, r, "alice", http.MethodPost, "/api/messages/send/bob", map[string]any{"text": "2"})
	assert.Equal(t, http.StatusTooManyRequests, code)

	code, _ = do(t, r, "bob", http.MethodPost, "/api/messages/send/alice", map[string]any{"text": "1"})
	assert.Equal(t, http.StatusCreated, code)
}

func TestUnauthenticated(t *testing.T) {
	r := setupRouter(t)
	code, out := do(t, r, "", http.MethodGet, "/api/messages/users", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, false, out["success"])
}
