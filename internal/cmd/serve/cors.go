package serve

import (
	"net/http"
	"strconv"

	"github.com/chirino/chat-service/internal/security"
	"github.com/gin-gonic/gin"
)

const (
	corsAllowMethods = "GET, POST, PUT, DELETE, OPTIONS"
	corsMaxAge       = 600 // seconds a browser may cache a preflight
)

// corsMiddleware answers preflights and tags responses for allowed origins.
// Requests from other origins are served without CORS headers, which the
// browser then refuses to hand to the page.
func corsMiddleware(origins security.Origins) gin.HandlerFunc {
	allowHeaders := "Authorization, Content-Type, " + security.UserIDHeader
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origins.Allows(origin) {
			h := c.Writer.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Add("Vary", "Origin")
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Set("Access-Control-Allow-Headers", allowHeaders)
			h.Set("Access-Control-Allow-Methods", corsAllowMethods)
			if c.Request.Method == http.MethodOptions {
				h.Set("Access-Control-Max-Age", strconv.Itoa(corsMaxAge))
			}
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
