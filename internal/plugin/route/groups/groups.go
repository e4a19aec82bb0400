package groups

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

// MountRoutes mounts the group routes. limit guards the send route.
func MountRoutes(r *gin.Engine, groups *chat.GroupChannel, limit gin.HandlerFunc, auth ...gin.HandlerFunc) {
	g := r.Group("/api/groups", auth...)

	g.POST("/create", func(c *gin.Context) {
		createGroup(c, groups)
	})
	g.GET("", func(c *gin.Context) {
		listGroups(c, groups)
	})
	g.PUT("/:groupId", func(c *gin.Context) {
		updateGroup(c, groups)
	})
	g.DELETE("/:groupId", func(c *gin.Context) {
		deleteGroup(c, groups)
	})
	g.GET("/:groupId/messages", func(c *gin.Context) {
		listMessages(c, groups)
	})
	g.POST("/:groupId/send", limit, func(c *gin.Context) {
		sendMessage(c, groups)
	})
	g.POST("/:groupId/add-member", func(c *gin.Context) {
		addMember(c, groups)
	})
	g.DELETE("/:groupId/remove-member/:userId", func(c *gin.Context) {
		removeMember(c, groups)
	})
	g.PUT("/message/:messageId", func(c *gin.Context) {
		editMessage(c, groups)
	})
	g.DELETE("/message/:messageId", func(c *gin.Context) {
		deleteMessage(c, groups)
	})
}

func bindJSON(c *gin.Context, v any) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "code": "validation_error", "message": err.Error()})
		return false
	}
	return true
}

func createGroup(c *gin.Context, groups *chat.GroupChannel) {
	var req chat.CreateGroupRequest
	if !bindJSON(c, &req) {
		return
	}
	group, err := groups.Create(c.Request.Context(), security.GetUserID(c), req)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "group": group, "message": "Group created successfully"})
}

func listGroups(c *gin.Context, groups *chat.GroupChannel) {
	list, err := groups.ListGroups(c.Request.Context(), security.GetUserID(c))
	if err != nil {
		handleError(c, err)
		return
	}
	if list == nil {
		list = []model.Group{}
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "groups": list})
}

func updateGroup(c *gin.Context, groups *chat.GroupChannel) {
	var req model.GroupInfoUpdate
	if !bindJSON(c, &req) {
		return
	}
	group, err := groups.UpdateInfo(c.Request.Context(), security.GetUserID(c), c.Param("groupId"), req)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "group": group, "message": "Group updated successfully"})
}

func deleteGroup(c *gin.Context, groups *chat.GroupChannel) {
	if err := groups.DeleteGroup(c.Request.Context(), security.GetUserID(c), c.Param("groupId")); err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Group deleted successfully"})
}

func listMessages(c *gin.Context, groups *chat.GroupChannel) {
	msgs, err := groups.ListMessages(c.Request.Context(), security.GetUserID(c), c.Param("groupId"))
	if err != nil {
		handleError(c, err)
		return
	}
	if msgs == nil {
		msgs = []model.Message{}
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "messages": msgs})
}

func sendMessage(c *gin.Context, groups *chat.GroupChannel) {
	var req struct {
		Text  string `json:"text"`
		Image string `json:"image"`
	}
	if !bindJSON(c, &req) {
		return
	}
	msg, err := groups.Send(c.Request.Context(), security.GetUserID(c), c.Param("groupId"), req.Text, req.Image)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "message": msg})
}

func addMember(c *gin.Context, groups *chat.GroupChannel) {
	var req struct {
		UserID string `json:"userId" binding:"required"`
	}
	if !bindJSON(c, &req) {
		return
	}
	group, err := groups.AddMember(c.Request.Context(), security.GetUserID(c), c.Param("groupId"), req.UserID)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "group": group, "message": "Member added successfully"})
}

func removeMember(c *gin.Context, groups *chat.GroupChannel) {
	userID := security.GetUserID(c)
	target := c.Param("userId")
	if _, err := groups.RemoveMember(c.Request.Context(), userID, c.Param("groupId"), target); err != nil {
		handleError(c, err)
		return
	}
	msg := "Member removed successfully"
	if target == userID {
		msg = "Left group successfully"
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": msg})
}

func editMessage(c *gin.Context, groups *chat.GroupChannel) {
	var req struct {
		Text string `json:"text"`
	}
	if !bindJSON(c, &req) {
		return
	}
	msg, err := groups.Edit(c.Request.Context(), security.GetUserID(c), c.Param("messageId"), req.Text)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": msg})
}

func deleteMessage(c *gin.Context, groups *chat.GroupChannel) {
	if err := groups.Delete(c.Request.Context(), security.GetUserID(c), c.Param("messageId")); err != nil {
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
		log.Error("Group request failed", "path", c.FullPath(), "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "internal server error"})
	}
}
