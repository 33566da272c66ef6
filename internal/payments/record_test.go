package payments

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestApplySuccess_PopulatesFromPayload(t *testing.T) {
	rec := &Record{Reference: "BF-ABC", Status: StatusPending, Currency: "USD"}
	now := time.Date(2025, 11, 28, 12, 0, 0, 0, time.UTC)

	rec.applySuccess(map[string]any{
		"id":       float64(981234),
		"amount":   float64(5000),
		"currency": "ils",
		"card": map[string]any{
			"brand": "visa",
			"last4": "4242",
		},
		"customer": map[string]any{"email": "buyer@example.com", "name": "Dana"},
	}, now)

	if rec.Status != StatusSuccess {
		t.Fatalf("status = %q, want success", rec.Status)
	}
	if rec.PaidAt == nil || !rec.PaidAt.Equal(now) {
		t.Fatalf("paidAt = %v, want %v", rec.PaidAt, now)
	}
	if rec.TransactionID != "981234" {
		t.Errorf("transactionID = %q, want 981234", rec.TransactionID)
	}
	if want := decimal.NewFromFloat(50); !rec.Amount.Equal(want) {
		t.Errorf("amount = %s, want %s (minor units divided)", rec.Amount, want)
	}
	if rec.Currency != "ILS" {
		t.Errorf("currency = %q, want ILS", rec.Currency)
	}
	if rec.Card.Brand != "visa" || rec.Card.Last4 != "4242" {
		t.Errorf("card = %+v, want visa/4242", rec.Card)
	}
	if rec.Email != "buyer@example.com" {
		t.Errorf("email = %q, want backfilled", rec.Email)
	}
}

func TestApplySuccess_Idempotent(t *testing.T) {
	rec := &Record{Reference: "CK-XYZ", Status: StatusPending}
	first := time.Date(2025, 11, 28, 12, 0, 0, 0, time.UTC)
	second := first.Add(5 * time.Minute)

	rec.applySuccess(map[string]any{"id": "tx-1", "amount": float64(2500)}, first)
	rec.applySuccess(map[string]any{"id": "tx-other", "amount": float64(2500), "channel": "card"}, second)

	if rec.Status != StatusSuccess {
		t.Fatalf("status = %q, want success", rec.Status)
	}
	if !rec.PaidAt.Equal(first) {
		t.Errorf("paidAt moved to %v, want first timestamp %v", rec.PaidAt, first)
	}
	if rec.TransactionID != "tx-1" {
		t.Errorf("transactionID = %q, want first-write tx-1", rec.TransactionID)
	}
	if rec.GatewayResponse["channel"] != "card" {
		t.Errorf("gatewayResponse missing merged key from second payload")
	}
}

func TestApplySuccess_DoesNotOverwriteKnownCustomer(t *testing.T) {
	rec := &Record{Reference: "BF-1", Email: "known@example.com", Name: "Known", Status: StatusPending}
	rec.applySuccess(map[string]any{
		"customer": map[string]any{"email": "other@example.com", "name": "Other"},
	}, time.Now())

	if rec.Email != "known@example.com" || rec.Name != "Known" {
		t.Errorf("customer fields overwritten: email=%q name=%q", rec.Email, rec.Name)
	}
}

func TestApplySuccess_SmallAmountKept(t *testing.T) {
	rec := &Record{Reference: "BF-2", Status: StatusPending}
	rec.applySuccess(map[string]any{"amount": float64(50)}, time.Now())

	if want := decimal.NewFromFloat(50); !rec.Amount.Equal(want) {
		t.Errorf("amount = %s, want 50 unchanged", rec.Amount)
	}
}

func TestApplyFailure_AppendsErrorLog(t *testing.T) {
	rec := &Record{Reference: "BF-3", Status: StatusPending}
	first := time.Date(2025, 11, 28, 12, 0, 0, 0, time.UTC)

	rec.applyFailure("card declined", first)
	rec.applyFailure("insufficient funds", first.Add(time.Minute))

	if rec.Status != StatusFailed {
		t.Fatalf("status = %q, want failed", rec.Status)
	}
	errs, ok := rec.Metadata["errors"].([]any)
	if !ok || len(errs) != 2 {
		t.Fatalf("metadata.errors = %v, want two entries", rec.Metadata["errors"])
	}
	entry := errs[0].(map[string]any)
	if entry["message"] != "card declined" {
		t.Errorf("first error message = %v", entry["message"])
	}
	if entry["timestamp"] != first.Format(time.RFC3339) {
		t.Errorf("first error timestamp = %v", entry["timestamp"])
	}
}

func TestExtractCard_FallbackOrder(t *testing.T) {
	tests := []struct {
		name    string
		payload map[string]any
		want    string
	}{
		{
			name: "top level wins",
			payload: map[string]any{
				"card":          map[string]any{"last4": "1111"},
				"authorization": map[string]any{"card": map[string]any{"last4": "2222"}},
			},
			want: "1111",
		},
		{
			name: "authorization before payment_method",
			payload: map[string]any{
				"authorization":  map[string]any{"card": map[string]any{"last4": "2222"}},
				"payment_method": map[string]any{"card": map[string]any{"last4": "3333"}},
			},
			want: "2222",
		},
		{
			name: "payment_method fallback",
			payload: map[string]any{
				"payment_method": map[string]any{"card": map[string]any{"last4": "3333"}},
			},
			want: "3333",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			card, ok := extractCard(tt.payload)
			if !ok {
				t.Fatal("extractCard returned no card")
			}
			if card.Last4 != tt.want {
				t.Errorf("last4 = %q, want %q", card.Last4, tt.want)
			}
		})
	}
}

func TestExtractCard_AlternateKeyNames(t *testing.T) {
	card, ok := extractCard(map[string]any{
		"card": map[string]any{"card_type": "debit", "last_four": "9876"},
	})
	if !ok {
		t.Fatal("extractCard returned no card")
	}
	if card.Type != "debit" || card.Last4 != "9876" {
		t.Errorf("card = %+v, want type=debit last4=9876", card)
	}
}

func TestExtractCard_Absent(t *testing.T) {
	if _, ok := extractCard(map[string]any{"status": "success"}); ok {
		t.Error("extractCard found a card in a payload without one")
	}
}

func TestStatusVocabulary(t *testing.T) {
	for _, s := range []string{"success", "COMPLETED", "Paid", "approved", "successful"} {
		if !IsSuccessStatus(s) {
			t.Errorf("IsSuccessStatus(%q) = false", s)
		}
	}
	for _, s := range []string{"failed", "DECLINED", "rejected", "cancelled"} {
		if !IsFailureStatus(s) {
			t.Errorf("IsFailureStatus(%q) = false", s)
		}
	}
	for _, s := range []string{"pending", "processing", ""} {
		if IsSuccessStatus(s) || IsFailureStatus(s) {
			t.Errorf("%q classified as terminal", s)
		}
	}
}

func TestStatusTerminal(t *testing.T) {
	if StatusPending.Terminal() {
		t.Error("pending reported terminal")
	}
	for _, s := range []Status{StatusSuccess, StatusFailed, StatusCancelled} {
		if !s.Terminal() {
			t.Errorf("%s not reported terminal", s)
		}
	}
}
