package security

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestSendLimiterIsPerUser(t *testing.T) {
	l := NewSendLimiter(0.001, 2, time.Minute)

	assert.True(t, l.Allow("a"))
	assert.True(t, l.Allow("a"))
	assert.False(t, l.Allow("a"))
	assert.True(t, l.Allow("b"))
}

func TestSendLimiterDisabled(t *testing.T) {
	l := NewSendLimiter(0, 0, time.Minute)
	for i := 0; i < 100; i++ {
		assert.True(t, l.Allow("a"))
	}
}

func TestSendLimiterSweepsIdleUsers(t *testing.T) {
	l := NewSendLimiter(1, 1, time.Minute)
	l.Allow("a")
	l.Allow("b")
	l.sweep(time.Now())
	assert.Equal(t, 2, l.size())
	l.sweep(time.Now().Add(2 * time.Minute))
	assert.Equal(t, 0, l.size())
}

func TestSendLimiterMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	l := NewSendLimiter(0.001, 1, time.Minute)
	r := gin.New()
	r.Use(func(c *gin.Context) { c.Set(ContextKeyUserID, "a"); c.Next() })
	r.POST("/send", l.Middleware(), func(c *gin.Context) { c.Status(http.StatusCreated) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/send", nil))
	assert.Equal(t, http.StatusCreated, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/send", nil))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}
