package security

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/chirino/chat-service/internal/config"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-with-enough-entropy"

func sign(t *testing.T, secret string, claims chatClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func resolver(mode string) *TokenResolver {
	cfg := config.DefaultConfig()
	cfg.Mode = mode
	cfg.JWTSecret = testSecret
	return NewTokenResolver(&cfg)
}

func TestResolveHS256(t *testing.T) {
	r := resolver(config.ModeProd)
	ctx := context.Background()

	token := sign(t, testSecret, chatClaims{
		UserID:           "u1",
		Username:         "alice",
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	})
	id, err := r.Resolve(ctx, token, "")
	require.NoError(t, err)
	assert.Equal(t, "u1", id.UserID)
	assert.Equal(t, "alice", id.Username)

	subjectOnly := sign(t, testSecret, chatClaims{RegisteredClaims: jwt.RegisteredClaims{Subject: "u2"}})
	id, err = r.Resolve(ctx, subjectOnly, "")
	require.NoError(t, err)
	assert.Equal(t, "u2", id.UserID)

	_, err = r.Resolve(ctx, sign(t, "other-secret", chatClaims{UserID: "u1"}), "")
	assert.ErrorIs(t, err, errInvalidJWT)

	expired := sign(t, testSecret, chatClaims{
		UserID:           "u1",
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour))},
	})
	_, err = r.Resolve(ctx, expired, "")
	assert.ErrorIs(t, err, errInvalidJWT)

	_, err = r.Resolve(ctx, sign(t, testSecret, chatClaims{}), "")
	assert.ErrorIs(t, err, errMissingIdentity)
}

func TestResolveTestingShortcutsOnlyInTestingMode(t *testing.T) {
	ctx := context.Background()

	prod := resolver(config.ModeProd)
	_, err := prod.Resolve(ctx, "alice", "")
	assert.ErrorIs(t, err, errInvalidJWT)
	_, err = prod.Resolve(ctx, "", "alice")
	assert.ErrorIs(t, err, errMissingToken)

	tm := resolver(config.ModeTesting)
	id, err := tm.Resolve(ctx, "alice", "")
	require.NoError(t, err)
	assert.Equal(t, "alice", id.UserID)
	id, err = tm.Resolve(ctx, "", "bob")
	require.NoError(t, err)
	assert.Equal(t, "bob", id.UserID)
}

func TestAuthMiddlewareTokenSources(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(AuthMiddleware(resolver(config.ModeProd)))
	r.GET("/me", func(c *gin.Context) { c.String(http.StatusOK, GetUserID(c)) })

	token := sign(t, testSecret, chatClaims{UserID: "u1"})

	cases := map[string]func(*http.Request){
		"header": func(req *http.Request) { req.Header.Set("Authorization", "Bearer "+token) },
		"cookie": func(req *http.Request) { req.AddCookie(&http.Cookie{Name: TokenCookie, Value: token}) },
		"query":  func(req *http.Request) { req.URL.RawQuery = TokenQueryParam + "=" + token },
	}
	for name, apply := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			apply(req)
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, "u1", w.Body.String())
		})
	}

	t.Run("missing", func(t *testing.T) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/me", nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("basic auth", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.Header.Set("Authorization", "Basic Zm9vOmJhcg==")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}
