package dispatch

import (
	"errors"
	"fmt"

	"github.com/roach88/lattice/internal/event"
)

// ErrNoSession is returned when a handler produces commands and no session
// is active to execute them.
var ErrNoSession = errors.New("no active session")

// DispatchError wraps a handler, command or relay failure.
type DispatchError struct {
	Kind   event.Kind
	Domain string
	Err    error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("dispatch %s in domain %q: %v", e.Kind, e.Domain, e.Err)
}

func (e *DispatchError) Unwrap() error {
	return e.Err
}

// IsDispatchError reports whether err came from HandleEvent.
func IsDispatchError(err error) bool {
	var de *DispatchError
	return errors.As(err, &de)
}
