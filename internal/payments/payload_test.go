package payments

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestFirstString_PathOrder(t *testing.T) {
	payload := map[string]any{
		"data":        map[string]any{"reference": "nested"},
		"transaction": map[string]any{"reference": "deeper"},
	}

	got, ok := FirstString(payload, referencePaths...)
	if !ok || got != "nested" {
		t.Errorf("FirstString = %q (%v), want nested", got, ok)
	}

	payload["reference"] = "top"
	got, _ = FirstString(payload, referencePaths...)
	if got != "top" {
		t.Errorf("FirstString = %q, want top-level value to win", got)
	}
}

func TestFirstString_NumericValue(t *testing.T) {
	got, ok := FirstString(map[string]any{"id": float64(42)}, "id")
	if !ok || got != "42" {
		t.Errorf("FirstString numeric = %q (%v), want 42", got, ok)
	}
}

func TestFirstString_SkipsEmpty(t *testing.T) {
	payload := map[string]any{
		"status": "",
		"data":   map[string]any{"status": "success"},
	}
	got, ok := FirstString(payload, "status", "data.status")
	if !ok || got != "success" {
		t.Errorf("FirstString = %q (%v), want fallthrough past empty string", got, ok)
	}
}

func TestFirstNumber_Shapes(t *testing.T) {
	tests := []struct {
		name    string
		payload map[string]any
		want    decimal.Decimal
	}{
		{"float", map[string]any{"amount": float64(50.5)}, decimal.NewFromFloat(50.5)},
		{"string", map[string]any{"amount": "120.75"}, decimal.RequireFromString("120.75")},
		{"int", map[string]any{"amount": 5000}, decimal.NewFromInt(5000)},
		{"nested", map[string]any{"data": map[string]any{"amount": float64(99)}}, decimal.NewFromInt(99)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := FirstNumber(tt.payload, "amount", "data.amount")
			if !ok || !got.Equal(tt.want) {
				t.Errorf("FirstNumber = %s (%v), want %s", got, ok, tt.want)
			}
		})
	}
}

func TestFirstNumber_Absent(t *testing.T) {
	if _, ok := FirstNumber(map[string]any{"amount": "not-a-number"}, "amount"); ok {
		t.Error("FirstNumber accepted a non-numeric string")
	}
}

func TestExtractReference_WebhookShapes(t *testing.T) {
	tests := []struct {
		name    string
		payload map[string]any
		want    string
	}{
		{"flat", map[string]any{"reference": "BF-1"}, "BF-1"},
		{"data wrapper", map[string]any{"data": map[string]any{"reference": "CK-2"}}, "CK-2"},
		{"transaction wrapper", map[string]any{"transaction": map[string]any{"reference": "PK-3"}}, "PK-3"},
		{"payment wrapper", map[string]any{"payment": map[string]any{"reference": "PR-4"}}, "PR-4"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ExtractReference(tt.payload)
			if !ok || got != tt.want {
				t.Errorf("ExtractReference = %q (%v), want %q", got, ok, tt.want)
			}
		})
	}

	if _, ok := ExtractReference(map[string]any{"event": "charge.success"}); ok {
		t.Error("ExtractReference found a reference where none exists")
	}
}

func TestExtractStatus_EventFallback(t *testing.T) {
	got, ok := ExtractStatus(map[string]any{"event": "charge.success"})
	if !ok || got != "charge.success" {
		t.Errorf("ExtractStatus = %q (%v), want event name fallback", got, ok)
	}
}
