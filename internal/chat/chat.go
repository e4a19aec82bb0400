// Package chat implements the direct and group message channels.
//
// Every operation follows the same order: check the request, apply the
// mutation through the store, then notify live connections. A failed check or
// store write returns before anything is dispatched.
package chat

import "time"

// Notifier pushes events to live connections on a best-effort basis.
type Notifier interface {
	Dispatch(targets []string, event string, payload any) int
	DispatchTo(userID string, event string, payload any) bool
}

type clock func() time.Time

func utcNow() time.Time { return time.Now().UTC() }
