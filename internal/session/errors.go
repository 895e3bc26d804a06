package session

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes session errors.
type ErrorCode string

const (
	// ErrCodeClosed indicates the session no longer accepts work.
	ErrCodeClosed ErrorCode = "SESSION_CLOSED"

	// ErrCodeReadOnly indicates a mutation on a read-only session.
	ErrCodeReadOnly ErrorCode = "SESSION_READ_ONLY"

	// ErrCodeAborted indicates the session was rolled back.
	ErrCodeAborted ErrorCode = "SESSION_ABORTED"

	// ErrCodeCommand indicates a command executed by the session failed.
	ErrCodeCommand ErrorCode = "COMMAND_FAILED"
)

// Error is returned by session operations.
type Error struct {
	Code      ErrorCode
	SessionID string
	Message   string
	Err       error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s (session=%s)", e.Code, e.Message, e.SessionID)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

func hasCode(err error, code ErrorCode) bool {
	var se *Error
	if errors.As(err, &se) {
		return se.Code == code
	}
	return false
}

// IsClosed reports whether err is a closed-session error.
func IsClosed(err error) bool { return hasCode(err, ErrCodeClosed) }

// IsReadOnly reports whether err is a read-only violation.
func IsReadOnly(err error) bool { return hasCode(err, ErrCodeReadOnly) }

// IsAborted reports whether err reports a rolled back session.
func IsAborted(err error) bool { return hasCode(err, ErrCodeAborted) }
