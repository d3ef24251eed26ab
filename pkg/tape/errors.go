package tape

import (
	"errors"
	"fmt"
)

// ErrInteractionNotFound is returned by Delete for an unknown interaction ID.
var ErrInteractionNotFound = errors.New("interaction not found")

// ReadOnlyError is returned when a mutation is attempted on a tape whose mode
// does not allow it.
type ReadOnlyError struct {
	Tape string
	Mode Mode
	Op   string
}

func (e *ReadOnlyError) Error() string {
	return fmt.Sprintf("tape %q is %s: %s not allowed", e.Tape, e.Mode, e.Op)
}

// LoadError is returned when a tape cannot be read from its backing store,
// either because the content is missing or because it is malformed.
type LoadError struct {
	Tape string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load tape %q: %v", e.Tape, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// SaveError is returned when a tape cannot be persisted. The tape stays dirty.
type SaveError struct {
	Tape string
	Err  error
}

func (e *SaveError) Error() string {
	return fmt.Sprintf("save tape %q: %v", e.Tape, e.Err)
}

func (e *SaveError) Unwrap() error { return e.Err }
