package users

import (
	"errors"
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/chirino/chat-service/internal/chat"
	"github.com/chirino/chat-service/internal/model"
	registrystore "github.com/chirino/chat-service/internal/registry/store"
	"github.com/chirino/chat-service/internal/security"
	"github.com/gin-gonic/gin"
)

// EnsureUser registers the authenticated caller on first sight. It must run
// after security.AuthMiddleware.
func EnsureUser(profiles *chat.Profiles) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := security.GetIdentity(c)
		if id == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "message": "Unauthorized"})
			return
		}
		_, err := profiles.Ensure(c.Request.Context(), model.User{ID: id.UserID, Username: id.Username, Email: id.Email})
		if err != nil {
			handleError(c, err)
			c.Abort()
			return
		}
		c.Next()
	}
}

// MountRoutes mounts the profile routes under both /api/auth and /api/users.
func MountRoutes(r *gin.Engine, profiles *chat.Profiles, auth ...gin.HandlerFunc) {
	for _, prefix := range []string{"/api/auth", "/api/users"} {
		g := r.Group(prefix, auth...)
		g.GET("/check-auth", func(c *gin.Context) {
			checkAuth(c, profiles)
		})
		g.PUT("/update-profile", func(c *gin.Context) {
			updateProfile(c, profiles)
		})
	}
}

func checkAuth(c *gin.Context, profiles *chat.Profiles) {
	u, err := profiles.Get(c.Request.Context(), security.GetUserID(c))
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "userData": u, "message": "User is authenticated"})
}

func updateProfile(c *gin.Context, profiles *chat.Profiles) {
	var req model.ProfileUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "code": "validation_error", "message": err.Error()})
		return
	}
	u, err := profiles.Update(c.Request.Context(), security.GetUserID(c), req)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "userData": u, "message": "Profile updated successfully"})
}

func handleError(c *gin.Context, err error) {
	var notFound *registrystore.NotFoundError
	var validation *registrystore.ValidationError
	var conflict *registrystore.ConflictError

	switch {
	case errors.As(err, &notFound):
		c.JSON(http.StatusNotFound, gin.H{"success": false, "code": "not_found", "message": err.Error()})
	case errors.As(err, &validation):
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "code": "validation_error", "message": err.Error()})
	case errors.As(err, &conflict):
		c.JSON(http.StatusConflict, gin.H{"success": false, "code": conflict.Code, "message": err.Error()})
	default:
		log.Error("Profile request failed", "path", c.FullPath(), "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "internal server error"})
	}
}
