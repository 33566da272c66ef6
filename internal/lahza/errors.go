package lahza

import (
	"errors"
	"fmt"
	"net"
)

// Category classifies gateway failures so the HTTP layer can pick a
// user-facing message without leaking gateway internals.
type Category string

const (
	CategoryConfig  Category = "config"  // secret key not configured
	CategoryNetwork Category = "network" // connection refused, DNS, TLS
	CategoryTimeout Category = "timeout" // deadline exceeded
	CategoryDecode  Category = "decode"  // non-JSON response body
	CategoryAPI     Category = "api"     // HTTP !ok or status:false envelope
)

// Error is returned for every gateway failure.
type Error struct {
	Category Category
	Message  string
	Err      error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("lahza: %s: %v", e.Message, e.Err)
	}
	return "lahza: " + e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// newError builds an *Error, sniffing timeouts out of network failures.
func newError(category Category, message string, err error) *Error {
	if category == CategoryNetwork {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			category = CategoryTimeout
		}
	}
	return &Error{Category: category, Message: message, Err: err}
}

// CategoryOf returns the category of a gateway error, or CategoryAPI when err
// is not a gateway error.
func CategoryOf(err error) Category {
	var gwErr *Error
	if errors.As(err, &gwErr) {
		return gwErr.Category
	}
	return CategoryAPI
}
