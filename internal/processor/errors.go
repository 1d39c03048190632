package processor

import (
	"errors"
	"fmt"
)

var (
	ErrNotConfigured    = errors.New("processor_not_configured")
	ErrInvalidSignature = errors.New("invalid_webhook_signature")
)

// Error is a failed or declined processor call. Message is safe to show to
// the caller; Err keeps the underlying cause for logs.
type Error struct {
	Op      string
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("processor %s: %s (%s)", e.Op, e.Message, e.Code)
	}
	return fmt.Sprintf("processor %s: %s", e.Op, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// AsError extracts a processor error from err's chain.
func AsError(err error) (*Error, bool) {
	var perr *Error
	if errors.As(err, &perr) {
		return perr, true
	}
	return nil, false
}
