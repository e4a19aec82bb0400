// Package presence tracks which users hold a live connection.
//
// A Registry maps each user id to at most one connection handle. The most
// recent Connect for an id wins; the connection it replaces is not closed.
// Every Connect and Disconnect broadcasts the full online set to all live
// connections as a getOnlineUsers event.
package presence

import (
	"sort"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/chirino/chat-service/internal/model"
	"github.com/chirino/chat-service/internal/security"
)

// Registry is the process-wide presence map. It is safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]Conn
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{conns: map[string]Conn{}}
}

// Connect registers conn as userID's live connection, replacing any previous
// handle, then broadcasts the online set.
func (r *Registry) Connect(userID string, conn Conn) {
	if userID == "" || conn == nil {
		return
	}
	r.mu.Lock()
	r.conns[userID] = conn
	targets, online := r.snapshotLocked()
	r.mu.Unlock()

	log.Info("User connected", "userID", userID, "online", len(online))
	broadcast(targets, online)
}

// Disconnect removes userID's entry only if it still refers to conn, so a
// late disconnect of a replaced connection cannot evict the newer one. The
// online set is broadcast either way. Reports whether the entry was removed.
func (r *Registry) Disconnect(userID string, conn Conn) bool {
	r.mu.Lock()
	current, ok := r.conns[userID]
	removed := ok && current == conn
	if removed {
		delete(r.conns, userID)
	}
	targets, online := r.snapshotLocked()
	r.mu.Unlock()

	if removed {
		log.Info("User disconnected", "userID", userID, "online", len(online))
	} else {
		log.Debug("Ignoring disconnect of stale connection", "userID", userID)
	}
	broadcast(targets, online)
	return removed
}

// Lookup returns the live connection of userID, if any.
func (r *Registry) Lookup(userID string) (Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conns[userID]
	return c, ok
}

// Online returns the ids of all connected users in sorted order.
func (r *Registry) Online() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.onlineLocked()
}

// IsOnline reports whether userID has a live connection.
func (r *Registry) IsOnline(userID string) bool {
	_, ok := r.Lookup(userID)
	return ok
}

// Reset drops every entry without notifying anyone. Used at shutdown.
func (r *Registry) Reset() {
	r.mu.Lock()
	r.conns = map[string]Conn{}
	r.mu.Unlock()
	security.SetOnlineUsers(0)
}

func (r *Registry) onlineLocked() []string {
	ids := make([]string, 0, len(r.conns))
	for id := range r.conns {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (r *Registry) snapshotLocked() ([]Conn, []string) {
	targets := make([]Conn, 0, len(r.conns))
	for _, c := range r.conns {
		targets = append(targets, c)
	}
	online := r.onlineLocked()
	security.SetOnlineUsers(len(online))
	return targets, online
}

func broadcast(targets []Conn, online []string) {
	for _, c := range targets {
		if err := c.Send(model.EventGetOnlineUsers, online); err != nil {
			security.RecordEventDropped(model.EventGetOnlineUsers)
			log.Debug("Dropped online users broadcast", "err", err)
			continue
		}
		security.RecordEventDispatched(model.EventGetOnlineUsers)
	}
}
