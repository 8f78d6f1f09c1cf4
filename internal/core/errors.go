package core

import (
	"errors"
	"fmt"
)

var (
	// ErrAuth rejects a connection attempt; the client must re-authenticate.
	ErrAuth = errors.New("authentication failed")
	// ErrNotFound marks a benign race: the target vanished. Callers drop silently.
	ErrNotFound = errors.New("not found")
	// ErrUnauthorized is returned when a non-admin attempts a privileged action.
	ErrUnauthorized = errors.New("permission denied")
	// ErrExists is returned by the store for a duplicate catalog entry.
	ErrExists = errors.New("already exists")
	// ErrInvalid wraps malformed or rejected input.
	ErrInvalid = errors.New("invalid request")
	// ErrRateLimited is returned when a session exceeds its event budget.
	ErrRateLimited = errors.New("rate limit exceeded")
	// ErrBackpressure is returned by TrySend when the send queue is full.
	ErrBackpressure = errors.New("backpressure")
	// ErrClosed is returned by TrySend after the connection was closed.
	ErrClosed = errors.New("connection closed")
)

// PersistenceError is a failed call to the store collaborator.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func Persistence(op string, err error) error {
	if err == nil {
		return nil
	}
	return &PersistenceError{Op: op, Err: err}
}

func Invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}
