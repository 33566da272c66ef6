// Package money holds the amount conventions shared between the Lahza wire
// format (minor units) and payment records (major-unit decimals).
package money

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// minorUnitThreshold drives the gateway amount heuristic: Lahza reports
// amounts in the smallest currency unit, so a verify payload carrying a value
// above this threshold is assumed to be minor units and divided by 100.
// The heuristic is deliberately currency-unaware; a genuine major-unit charge
// above 1000 would be misread. Lahza has no explicit unit field to do better.
const minorUnitThreshold = 1000

var hundred = decimal.NewFromInt(100)

// FromMinorUnits converts a minor-unit integer (e.g. cents) to a major-unit
// decimal amount.
func FromMinorUnits(minor int64) decimal.Decimal {
	return decimal.NewFromInt(minor).Div(hundred)
}

// ToMinorUnits converts a major-unit decimal amount to the minor-unit integer
// the gateway initialize call expects. Fractions beyond two places are
// rounded half up.
func ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(hundred).Round(0).IntPart()
}

// NormalizeGatewayAmount applies the minor-unit heuristic to an amount
// reported by a verify payload.
func NormalizeGatewayAmount(raw decimal.Decimal) decimal.Decimal {
	if raw.GreaterThan(decimal.NewFromInt(minorUnitThreshold)) {
		return raw.Div(hundred)
	}
	return raw
}

// NormalizeCurrency uppercases and validates a 3-letter currency code.
func NormalizeCurrency(code string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if len(code) != 3 {
		return "", fmt.Errorf("money: invalid currency code %q", code)
	}
	return code, nil
}

// CurrencyOrDefault normalizes a currency code, falling back to def when the
// input is empty or malformed.
func CurrencyOrDefault(code, def string) string {
	normalized, err := NormalizeCurrency(code)
	if err != nil {
		return def
	}
	return normalized
}
