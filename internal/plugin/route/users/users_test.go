package users_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/chirino/chat-service/internal/chat"
	"github.com/chirino/chat-service/internal/config"
	"github.com/chirino/chat-service/internal/plugin/route/users"
	"github.com/chirino/chat-service/internal/plugin/store/memory"
	"github.com/chirino/chat-service/internal/security"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func do(t *testing.T, r *gin.Engine, user, method, path string, body any) (int, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(security.UserIDHeader, user)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return w.Code, out
}

func TestProfileRoutesRegisterCallerOnFirstSight(t *testing.T) {
	gin.SetMode(gin.TestMode)
	store := memory.New()
	svc := chat.NewService(store, nil, 0)
	cfg := config.DefaultConfig()
	cfg.Mode = config.ModeTesting

	r := gin.New()
	users.MountRoutes(r, svc.Profiles, security.AuthMiddleware(security.NewTokenResolver(&cfg)), users.EnsureUser(svc.Profiles))

	code, out := do(t, r, "alice", http.MethodGet, "/api/auth/check-auth", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "alice", out["userData"].(map[string]any)["id"])

	code, out = do(t, r, "alice", http.MethodPut, "/api/users/update-profile", map[string]any{"bio": "hello"})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "hello", out["userData"].(map[string]any)["bio"])

	code, _ = do(t, r, "alice", http.MethodPut, "/api/auth/update-profile", map[string]any{"username": " "})
	assert.Equal(t, http.StatusBadRequest, code)
}
