// Package settings stores the operator-controlled sale configuration: which
// sale funnel is live, whether checkout accepts payments, and the default
// currency.
package settings

import (
	"context"
	"errors"
)

// ErrNotBootstrapped is returned when no settings row exists yet.
var ErrNotBootstrapped = errors.New("settings: not bootstrapped")

// Settings is the active sale configuration.
type Settings struct {
	ActiveSale      string `json:"activeSale" yaml:"active_sale"`
	CheckoutEnabled bool   `json:"checkoutEnabled" yaml:"checkout_enabled"`
	DefaultCurrency string `json:"defaultCurrency" yaml:"default_currency"`
}

// Repository persists sale settings. There is exactly one settings row;
// Bootstrap seeds it explicitly at startup rather than on first read, so a
// misconfigured deployment fails fast instead of silently self-healing.
type Repository interface {
	// GetActive returns the current settings or ErrNotBootstrapped.
	GetActive(ctx context.Context) (Settings, error)

	// Bootstrap inserts defaults if no settings exist. Idempotent: existing
	// settings are left untouched.
	Bootstrap(ctx context.Context, defaults Settings) error

	// Update replaces the stored settings.
	Update(ctx context.Context, s Settings) error

	Close() error
}
