package route

import (
	"sort"

	"github.com/gin-gonic/gin"
)

// RouterLoader mounts a plugin's routes on the gin engine.
type RouterLoader func(r *gin.Engine) error

// RouteType selects the server a plugin's routes are mounted on.
type RouteType int

const (
	// RouteTypeMain mounts on the chat API server, ahead of the
	// authenticated /api/users, /api/messages, /api/groups and /api/socket routes.
	RouteTypeMain RouteType = iota
	// RouteTypeManagement mounts on the management server (health, metrics).
	// Without a dedicated management port these share the main server.
	RouteTypeManagement
)

// Mount orders used by the chat service's route plugins. Lower mounts first.
const (
	OrderProbes = 0
	OrderStatus = 10
)

// Plugin is a route loader, the server it targets and its mount position.
type Plugin struct {
	Order  int
	Type   RouteType
	Loader RouterLoader
}

var plugins []Plugin

// Register adds a route plugin. Called from init() in plugin packages.
func Register(p Plugin) {
	plugins = append(plugins, p)
}

// loaders returns the loaders of type t by Order, keeping registration order
// among equal Orders.
func loaders(t RouteType) []RouterLoader {
	matching := make([]Plugin, 0, len(plugins))
	for _, p := range plugins {
		if p.Type == t {
			matching = append(matching, p)
		}
	}
	sort.SliceStable(matching, func(i, j int) bool { return matching[i].Order < matching[j].Order })
	out := make([]RouterLoader, len(matching))
	for i, p := range matching {
		out[i] = p.Loader
	}
	return out
}

// MainRouteLoaders returns the loaders for the chat API server.
func MainRouteLoaders() []RouterLoader { return loaders(RouteTypeMain) }

// ManagementRouteLoaders returns the loaders for the management server.
func ManagementRouteLoaders() []RouterLoader { return loaders(RouteTypeManagement) }
