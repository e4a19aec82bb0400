//go:generate go run go.uber.org/mock/mockgen -source=conn.go -destination=../mocks/mock_conn.go -package=mocks
package presence

// Conn is a live connection handle.
type Conn interface {
	// Send queues an event for the remote peer. It must not block; a
	// connection that cannot accept the event returns an error instead.
	Send(event string, payload any) error
}
