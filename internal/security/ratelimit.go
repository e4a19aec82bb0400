package security

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

type userLimiter struct {
	lim  *rate.Limiter
	seen time.Time
}

// SendLimiter applies a token bucket per authenticated user to message
// sends. Idle buckets are reclaimed after ttl.
type SendLimiter struct {
	mu    sync.Mutex
	users map[string]*userLimiter
	limit rate.Limit
	burst int
	ttl   time.Duration
}

// NewSendLimiter returns a limiter allowing perSecond sends with the given
// burst. A non-positive perSecond disables limiting.
func NewSendLimiter(perSecond float64, burst int, ttl time.Duration) *SendLimiter {
	limit := rate.Limit(perSecond)
	if perSecond <= 0 {
		limit = rate.Inf
	}
	if burst <= 0 {
		burst = 1
	}
	return &SendLimiter{users: map[string]*userLimiter{}, limit: limit, burst: burst, ttl: ttl}
}

// Allow reports whether userID may send now.
func (l *SendLimiter) Allow(userID string) bool {
	if l.limit == rate.Inf {
		return true
	}
	l.mu.Lock()
	ul, ok := l.users[userID]
	if !ok {
		ul = &userLimiter{lim: rate.NewLimiter(l.limit, l.burst)}
		l.users[userID] = ul
	}
	ul.seen = time.Now()
	l.mu.Unlock()
	return ul.lim.Allow()
}

func (l *SendLimiter) sweep(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for id, ul := range l.users {
		if now.Sub(ul.seen) > l.ttl {
			delete(l.users, id)
		}
	}
}

func (l *SendLimiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.users)
}

// Run reclaims idle buckets until ctx is done.
func (l *SendLimiter) Run(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			l.sweep(now)
		}
	}
}

// Middleware rejects requests over the caller's budget with 429. It must run
// after AuthMiddleware.
func (l *SendLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !l.Allow(GetUserID(c)) {
			RecordRateLimited()
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"success": false, "message": "too many messages, slow down"})
			return
		}
		c.Next()
	}
}
