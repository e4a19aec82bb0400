package messages

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

type sendRequest struct {
	Text  string `json:"text"`
	Image string `json:"image"`
}

type editRequest struct {
	Text string `json:"text"`
}

// MountRoutes mounts the direct message routes. limit guards the send route.
func MountRoutes(r *gin.Engine, direct *chat.DirectChannel, limit gin.HandlerFunc, auth ...gin.HandlerFunc) {
	g := r.Group("/api/messages", auth...)

	g.GET("/users", func(c *gin.Context) {
		listUsers(c, direct)
	})
	g.GET("/:id", func(c *gin.Context) {
		listConversation(c, direct)
	})
	g.PUT("/mark-seen/:id", func(c *gin.Context) {
		markSeen(c, direct)
	})
	g.POST("/send/:id", limit, func(c *gin.Context) {
		sendMessage(c, direct)
	})
	g.PUT("/edit/:id", func(c *gin.Context) {
		editMessage(c, direct)
	})
	g.DELETE("/:id", func(c *gin.Context) {
		deleteMessage(c, direct)
	})
}

func listUsers(c *gin.Context, direct *chat.DirectChannel) {
	dir, err := direct.ListUsersWithUnseenCounts(c.Request.Context(), security.GetUserID(c))
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "users": dir.Users, "unSeenMessages": dir.Unseen})
}

func listConversation(c *gin.Context, direct *chat.DirectChannel) {
	msgs, err := direct.ListConversation(c.Request.Context(), security.GetUserID(c), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	if msgs == nil {
		msgs = []model.Message{}
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "messages": msgs})
}

func markSeen(c *gin.Context, direct *chat.DirectChannel) {
	n, err := direct.MarkConversationSeen(c.Request.Context(), security.GetUserID(c), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Messages marked as seen", "count": n})
}

func sendMessage(c *gin.Context, direct *chat.DirectChannel) {
	var req sendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "code": "validation_error", "message": err.Error()})
		return
	}
	msg, err := direct.Send(c.Request.Context(), security.GetUserID(c), c.Param("id"), req.Text, req.Image)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "message": msg})
}

func editMessage(c *gin.Context, direct *chat.DirectChannel) {
	var req editRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "code": "validation_error", "message": err.Error()})
		return
	}
	msg, err := direct.Edit(c.Request.Context(), security.GetUserID(c), c.Param("id"), req.Text)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": msg})
}

func deleteMessage(c *gin.Context, direct *chat.DirectChannel) {
	if err := direct.Delete(c.Request.Context(), security.GetUserID(c), c.Param("id")); err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Message deleted successfully"})
}

func handleError(c *gin.Context, err error) {
	var notFound *registrystore.NotFoundError
	var validation *registrystore.ValidationError
	var conflict *registrystore.ConflictError
	var forbidden *registrystore.AuthorizationError

	switch {
	case errors.As(err, &notFound):
		c.JSON(http.StatusNotFound, gin.H{"success": false, "code": "not_found", "message": err.Error()})
	case errors.As(err, &validation):
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "code": "validation_error", "message": err.Error()})
	case errors.As(err, &conflict):
		c.JSON(http.StatusConflict, gin.H{"success": false, "code": conflict.Code, "message": err.Error()})
	case errors.As(err, &forbidden):
		c.JSON(http.StatusForbidden, gin.H{"success": false, "code": "forbidden", "message": err.Error()})
	default:
		log.Error("Direct message request failed", "path", c.FullPath(), "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "internal server error"})
	}
}
