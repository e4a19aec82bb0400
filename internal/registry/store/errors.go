package store

import "fmt"

// NotFoundError indicates the resource was not found.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ValidationError indicates a client-side validation failure.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on %s: %s", e.Field, e.Message)
}

// AuthorizationError indicates the caller is not allowed to perform Action.
type AuthorizationError struct {
	Action string
}

func (e *AuthorizationError) Error() string {
	if e.Action == "" {
		return "not authorized"
	}
	return "not authorized to " + e.Action
}

// Conflict codes reported by CreateUser.
const (
	ConflictDuplicateUser  = "duplicate_user"
	ConflictDuplicateEmail = "duplicate_email"
)

// ConflictError indicates a uniqueness/conflict violation.
type ConflictError struct {
	Message string
	Code    string
	Details map[string]interface{}
}

func (e *ConflictError) Error() string {
	return e.Message
}

// StoreError wraps a durable-store failure.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s failed: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// Wrap returns err as a *StoreError for op unless it is nil or already one of
// the typed errors declared in this package.
func Wrap(op string, err error) error {
	switch err.(type) {
	case nil:
		return nil
	case *NotFoundError, *ValidationError, *AuthorizationError, *ConflictError, *StoreError:
		return err
	}
	return &StoreError{Op: op, Err: err}
}
