package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound means no domain yielded a record for a label.
	ErrNotFound = errors.New("entry not found in any domain")

	// ErrNoSelection means a command needed a selected item and there was none.
	ErrNoSelection = errors.New("no service selected")

	// ErrNoConfig means the selected item has no plist on disk.
	ErrNoConfig = errors.New("no plist for service")
)

// TransportError is a failed daemon round-trip, a malformed response,
// or an error key embedded in the response.
type TransportError struct {
	Op     string
	Domain DomainType
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s (%s): %v", e.Op, e.Domain, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// CommandError is a user-facing failure of an omnibox command.
type CommandError struct {
	Msg string
	Err error
}

// NewCommandError wraps err with a user-facing message.
func NewCommandError(msg string, err error) *CommandError {
	return &CommandError{Msg: msg, Err: err}
}

func (e *CommandError) Error() string {
	if e.Err == nil {
		return e.Msg
	}
	if e.Msg == "" {
		return e.Err.Error()
	}
	return e.Msg + ": " + e.Err.Error()
}

func (e *CommandError) Unwrap() error {
	return e.Err
}
