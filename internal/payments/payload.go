package payments

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Gateway payloads arrive in several shapes depending on which event produced
// them: a verify response nests transaction fields under "data", webhook
// bodies wrap them in "transaction" or "payment". The helpers here take an
// ordered list of dot-separated paths and return the first value present,
// keeping the fallback-order semantics in one place.

// FirstString returns the first string value found at the given paths.
// Numeric values are rendered as strings so gateway-assigned integer ids can
// be stored uniformly.
func FirstString(payload map[string]any, paths ...string) (string, bool) {
	for _, path := range paths {
		v, ok := valueAt(payload, path)
		if !ok {
			continue
		}
		switch s := v.(type) {
		case string:
			if s != "" {
				return s, true
			}
		case float64:
			return strings.TrimSuffix(fmt.Sprintf("%.0f", s), ".0"), true
		case json.Number:
			return s.String(), true
		case int64:
			return fmt.Sprintf("%d", s), true
		}
	}
	return "", false
}

// FirstNumber returns the first numeric value found at the given paths.
func FirstNumber(payload map[string]any, paths ...string) (decimal.Decimal, bool) {
	for _, path := range paths {
		v, ok := valueAt(payload, path)
		if !ok {
			continue
		}
		switch n := v.(type) {
		case float64:
			return decimal.NewFromFloat(n), true
		case int64:
			return decimal.NewFromInt(n), true
		case int:
			return decimal.NewFromInt(int64(n)), true
		case json.Number:
			if d, err := decimal.NewFromString(n.String()); err == nil {
				return d, true
			}
		case string:
			if d, err := decimal.NewFromString(n); err == nil {
				return d, true
			}
		}
	}
	return decimal.Zero, false
}

// FirstMap returns the first object value found at the given paths.
func FirstMap(payload map[string]any, paths ...string) (map[string]any, bool) {
	for _, path := range paths {
		v, ok := valueAt(payload, path)
		if !ok {
			continue
		}
		if m, ok := v.(map[string]any); ok {
			return m, true
		}
	}
	return nil, false
}

// valueAt descends the payload along a dot-separated path.
func valueAt(payload map[string]any, path string) (any, bool) {
	current := any(payload)
	for _, segment := range strings.Split(path, ".") {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = m[segment]
		if !ok || current == nil {
			return nil, false
		}
	}
	return current, true
}

// Webhook payload field locations, most specific first.
var (
	referencePaths = []string{"reference", "data.reference", "transaction.reference", "payment.reference"}
	statusPaths    = []string{"status", "data.status", "transaction.status", "payment.status", "event"}
)

// ExtractReference pulls the payment reference out of a webhook body.
func ExtractReference(payload map[string]any) (string, bool) {
	return FirstString(payload, referencePaths...)
}

// ExtractStatus pulls a transaction status out of a verify or webhook
// payload.
func ExtractStatus(payload map[string]any) (string, bool) {
	return FirstString(payload, statusPaths...)
}
