package store

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/getmockd/tapedeck/pkg/tape"
)

// FlushError reports the tapes that could not be saved during Shutdown.
// Every other dirty tape was saved.
type FlushError struct {
	Failures []*tape.SaveError
}

func (e *FlushError) Error() string {
	msgs := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		msgs[i] = f.Error()
	}
	return fmt.Sprintf("failed to flush %d tape(s): %s", len(e.Failures), strings.Join(msgs, "; "))
}

// Unwrap exposes each failure to errors.Is and errors.As.
func (e *FlushError) Unwrap() []error {
	errs := make([]error, len(e.Failures))
	for i, f := range e.Failures {
		errs[i] = f
	}
	return errs
}

// Tapes returns the sorted names of the tapes that failed to flush.
func (e *FlushError) Tapes() []string {
	names := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		names[i] = f.Tape
	}
	sort.Strings(names)
	return names
}

// asSaveError returns err as a *tape.SaveError for name, wrapping it if needed.
func asSaveError(name string, err error) *tape.SaveError {
	var se *tape.SaveError
	if errors.As(err, &se) {
		return se
	}
	return &tape.SaveError{Tape: name, Err: err}
}
