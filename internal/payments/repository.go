package payments

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when no record exists for a reference.
var ErrNotFound = errors.New("payments: record not found")

// ErrDuplicateReference is returned when Create hits an existing reference.
// References are 128-bit random tokens, so this indicates a caller bug rather
// than bad luck; it must fail loudly, never overwrite.
var ErrDuplicateReference = errors.New("payments: duplicate reference")

// ErrAlreadySucceeded is returned when MarkFailed targets a record that
// already converged to success. A late contradictory signal must not
// un-succeed a payment; callers log the anomaly and move on.
var ErrAlreadySucceeded = errors.New("payments: record already succeeded")

// CreateParams carries the initialize-time snapshot for a new record.
type CreateParams struct {
	Reference string
	Name      string
	Email     string
	Mobile    string
	Address   string
	Amount    decimal.Decimal
	Currency  string
	OfferType string
	OfferName string
	Source    string
	Metadata  map[string]any
}

// PlaceholderSeed carries whatever customer fields are known when a verify or
// webhook call races ahead of initialize.
type PlaceholderSeed struct {
	Name   string
	Email  string
	Mobile string
	Source string
}

// Repository persists payment records. Implementations must make the success
// transition atomic: two concurrent MarkSuccess calls for one reference may
// both succeed, but exactly one paidAt timestamp survives.
type Repository interface {
	// Create inserts a pending record. Returns ErrDuplicateReference when the
	// reference already exists.
	Create(ctx context.Context, params CreateParams) (Record, error)

	// GetByReference returns the record or ErrNotFound.
	GetByReference(ctx context.Context, reference string) (Record, error)

	// FindOrCreatePlaceholder returns the existing record, or creates a
	// minimal pending one (amount zero) so a joinable row exists for later
	// reconciliation. The bool reports whether a record was created.
	FindOrCreatePlaceholder(ctx context.Context, reference string, seed PlaceholderSeed) (Record, bool, error)

	// MarkSuccess merges the gateway payload and transitions the record to
	// success. Idempotent: re-invocation refreshes gatewayResponse and card
	// fields but never moves paidAt.
	MarkSuccess(ctx context.Context, reference string, payload map[string]any) (Record, error)

	// MarkFailed appends the reason to metadata.errors and transitions to
	// failed. Returns ErrAlreadySucceeded (record untouched) when the record
	// already converged to success.
	MarkFailed(ctx context.Context, reference string, reason string) (Record, error)

	// CacheGatewayResponse merges a payload into gatewayResponse without a
	// status transition (pending records awaiting a conclusive signal).
	CacheGatewayResponse(ctx context.Context, reference string, payload map[string]any) (Record, error)

	// SetTransactionID stores the gateway-assigned id once known.
	SetTransactionID(ctx context.Context, reference, transactionID string) error

	Close() error
}
