// Package receipts sends confirmation emails after a payment converges to
// success. Delivery is decoupled from the payment state machine: a receipt
// failure never alters a payment record.
package receipts

import (
	"context"

	"github.com/masterco/lahza-server/internal/payments"
)

// Notifier delivers a receipt for a succeeded payment.
type Notifier interface {
	Send(ctx context.Context, rec payments.Record) error
}

// NopNotifier discards receipts. Used when receipt delivery is disabled.
type NopNotifier struct{}

func (NopNotifier) Send(context.Context, payments.Record) error { return nil }
