package security

import (
	"net/http"
	"net/url"
	"strings"
)

// Origins is the set of browser origins allowed to call the chat API and open
// sockets, parsed from CHAT_SERVICE_CORS_ORIGINS. An empty list allows any.
type Origins struct {
	any     bool
	allowed map[string]bool
}

// ParseOrigins parses a comma-separated origins list. "*" or an empty list
// allows every origin.
func ParseOrigins(csv string) Origins {
	o := Origins{allowed: map[string]bool{}}
	for _, part := range strings.Split(csv, ",") {
		if v := strings.TrimSpace(part); v != "" {
			o.allowed[v] = true
		}
	}
	o.any = len(o.allowed) == 0 || o.allowed["*"]
	return o
}

// AllowsAny reports whether every origin is allowed.
func (o Origins) AllowsAny() bool { return o.any }

// Allows reports whether a non-empty origin is allowed.
func (o Origins) Allows(origin string) bool {
	return origin != "" && (o.any || o.allowed[origin])
}

// AllowsRequest is a websocket CheckOrigin: requests without an Origin header
// and same-host origins are always accepted.
func (o Origins) AllowsRequest(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || o.Allows(origin) {
		return true
	}
	u, err := url.Parse(origin)
	return err == nil && strings.EqualFold(u.Host, r.Host)
}
