package reconcile

import (
	apperrors "github.com/masterco/lahza-server/internal/errors"
)

// Error is a reconciliation failure the HTTP layer can translate directly
// into a response status and body.
type Error struct {
	Code    apperrors.ErrorCode
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func newError(code apperrors.ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

func wrapError(code apperrors.ErrorCode, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}
