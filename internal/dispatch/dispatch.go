// Package dispatch pushes events to the live connections of a set of users.
package dispatch

import (
	"github.com/charmbracelet/log"
	"github.com/chirino/chat-service/internal/presence"
	"github.com/chirino/chat-service/internal/security"
	"github.com/samber/lo"
)

// Locator resolves a user id to its live connection.
type Locator interface {
	Lookup(userID string) (presence.Conn, bool)
}

// Dispatcher delivers events through a Locator.
//
// It provides best-effort, at-most-once fan-out: offline targets are skipped,
// a failed delivery is logged and counted but never retried or reported to
// the caller, and nothing is queued for later. Users who miss an event
// reconcile through their next list or fetch call.
//
// Dispatcher is stateless and safe for concurrent use.
type Dispatcher struct {
	locator Locator
}

// New returns a Dispatcher resolving targets through locator.
func New(locator Locator) *Dispatcher {
	return &Dispatcher{locator: locator}
}

// Dispatch sends event to every distinct target that is online and returns
// how many deliveries were accepted.
func (d *Dispatcher) Dispatch(targets []string, event string, payload any) int {
	delivered := 0
	for _, userID := range lo.Uniq(targets) {
		if d.deliver(userID, event, payload) {
			delivered++
		}
	}
	return delivered
}

// DispatchTo sends event to a single user if online.
func (d *Dispatcher) DispatchTo(userID string, event string, payload any) bool {
	return d.deliver(userID, event, payload)
}

func (d *Dispatcher) deliver(userID string, event string, payload any) bool {
	if userID == "" {
		return false
	}
	conn, ok := d.locator.Lookup(userID)
	if !ok {
		return false
	}
	if err := conn.Send(event, payload); err != nil {
		security.RecordEventDropped(event)
		log.Debug("Dropped event", "event", event, "userID", userID, "err", err)
		return false
	}
	security.RecordEventDispatched(event)
	return true
}
