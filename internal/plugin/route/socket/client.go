package socket

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/chirino/chat-service/internal/config"
	"github.com/chirino/chat-service/internal/model"
	"github.com/chirino/chat-service/internal/presence"
	"github.com/gorilla/websocket"
)

var (
	errClosed     = errors.New("connection closed")
	errBufferFull = errors.New("send buffer full")
)

// Frame is the JSON envelope of every WebSocket message in both directions.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type outFrame struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// client is a live WebSocket connection. It implements presence.Conn.
type client struct {
	userID   string
	conn     *websocket.Conn
	cfg      config.WebSocketConfig
	registry *presence.Registry

	mu     sync.Mutex
	send   chan []byte
	closed bool
}

func newClient(userID string, conn *websocket.Conn, cfg config.WebSocketConfig, registry *presence.Registry) *client {
	return &client{
		userID:   userID,
		conn:     conn,
		cfg:      cfg,
		registry: registry,
		send:     make(chan []byte, cfg.SendBuffer),
	}
}

// Send queues an event without blocking. A full buffer fails the delivery
// rather than stalling the dispatcher.
func (c *client) Send(event string, payload any) error {
	data, err := json.Marshal(outFrame{Event: event, Data: payload})
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errClosed
	}
	select {
	case c.send <- data:
		return nil
	default:
		return errBufferFull
	}
}

func (c *client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func (c *client) readPump() {
	defer func() {
		c.registry.Disconnect(c.userID, c)
		c.close()
	}()
	c.conn.SetReadLimit(c.cfg.ReadLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	})
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug("WebSocket read failed", "userID", c.userID, "err", err)
			}
			return
		}
		var in Frame
		if err := json.Unmarshal(data, &in); err != nil {
			log.Debug("Ignoring malformed frame", "userID", c.userID, "err", err)
			continue
		}
		c.handle(in)
	}
}

func (c *client) handle(in Frame) {
	switch in.Event {
	case model.EventGetOnlineUsers:
		if err := c.Send(model.EventGetOnlineUsers, c.registry.Online()); err != nil {
			log.Debug("Online users reply dropped", "userID", c.userID, "err", err)
		}
	default:
		log.Debug("Ignoring unknown event", "userID", c.userID, "event", in.Event)
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(c.cfg.PingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
