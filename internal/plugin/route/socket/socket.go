// Package socket serves the WebSocket endpoint that keeps users online and
// carries pushed chat events.
//
// Every frame is a JSON object {"event": name, "data": payload}. Clients may
// send {"event": "getOnlineUsers"} to ask for the current online set.
package socket

import (
	"github.com/charmbracelet/log"
	"github.com/chirino/chat-service/internal/config"
	"github.com/chirino/chat-service/internal/presence"
	"github.com/chirino/chat-service/internal/security"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// Path is where the WebSocket endpoint is mounted.
const Path = "/api/socket"

// MountRoutes mounts the WebSocket endpoint. Upgrades are accepted from
// origins, from the API's own host and from clients that send no Origin.
func MountRoutes(r *gin.Engine, registry *presence.Registry, cfg config.WebSocketConfig, origins security.Origins, auth ...gin.HandlerFunc) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     origins.AllowsRequest,
	}
	handlers := append(append([]gin.HandlerFunc{}, auth...), func(c *gin.Context) {
		serve(c, upgrader, registry, cfg)
	})
	r.GET(Path, handlers...)
}

func serve(c *gin.Context, upgrader websocket.Upgrader, registry *presence.Registry, cfg config.WebSocketConfig) {
	userID := security.GetUserID(c)
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		log.Debug("WebSocket upgrade failed", "userID", userID, "err", err)
		return
	}
	log.Info("User connected", "userID", userID, "remote", c.Request.RemoteAddr)

	cl := newClient(userID, conn, cfg, registry)
	go cl.writePump()
	registry.Connect(userID, cl)
	cl.readPump()
	log.Info("User disconnected", "userID", userID)
}
