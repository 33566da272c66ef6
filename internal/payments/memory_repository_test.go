package payments

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestMemoryRepository_CreateAndGet(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	rec, err := repo.Create(ctx, CreateParams{
		Reference: "BF-TEST1",
		Name:      "Dana",
		Email:     "dana@example.com",
		Amount:    decimal.NewFromInt(99),
		Currency:  "USD",
		Source:    "black_friday",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if rec.Status != StatusPending {
		t.Errorf("status = %q, want pending", rec.Status)
	}

	got, err := repo.GetByReference(ctx, "BF-TEST1")
	if err != nil {
		t.Fatalf("GetByReference: %v", err)
	}
	if got.Email != "dana@example.com" {
		t.Errorf("email = %q", got.Email)
	}

	if _, err := repo.GetByReference(ctx, "BF-MISSING"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing reference error = %v, want ErrNotFound", err)
	}
}

func TestMemoryRepository_DuplicateCreate(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	params := CreateParams{Reference: "BF-DUP", Amount: decimal.NewFromInt(10), Currency: "USD"}

	if _, err := repo.Create(ctx, params); err != nil {
		t.Fatalf("first Create: %v", err)
	}
	if _, err := repo.Create(ctx, params); !errors.Is(err, ErrDuplicateReference) {
		t.Errorf("second Create error = %v, want ErrDuplicateReference", err)
	}
}

func TestMemoryRepository_PlaceholderCreatedOnce(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	rec, created, err := repo.FindOrCreatePlaceholder(ctx, "CK-PH1", PlaceholderSeed{Email: "x@example.com"})
	if err != nil {
		t.Fatalf("FindOrCreatePlaceholder: %v", err)
	}
	if !created {
		t.Error("first call should create")
	}
	if rec.Status != StatusPending || !rec.Amount.IsZero() {
		t.Errorf("placeholder = status %q amount %s, want pending/0", rec.Status, rec.Amount)
	}
	if rec.Metadata["placeholder"] != true {
		t.Error("placeholder marker missing from metadata")
	}

	again, created, err := repo.FindOrCreatePlaceholder(ctx, "CK-PH1", PlaceholderSeed{Email: "other@example.com"})
	if err != nil {
		t.Fatalf("second FindOrCreatePlaceholder: %v", err)
	}
	if created {
		t.Error("second call should not create")
	}
	if again.Email != "x@example.com" {
		t.Errorf("email = %q, want original seed preserved", again.Email)
	}
}

func TestMemoryRepository_MarkSuccessIdempotent(t *testing.T) {
	first := time.Date(2025, 11, 28, 10, 0, 0, 0, time.UTC)
	repo := NewMemoryRepository().WithClock(fixedClock(first))
	ctx := context.Background()

	if _, err := repo.Create(ctx, CreateParams{Reference: "PK-S1", Amount: decimal.NewFromInt(50), Currency: "USD"}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	rec, err := repo.MarkSuccess(ctx, "PK-S1", map[string]any{"id": "tx-9", "status": "success"})
	if err != nil {
		t.Fatalf("MarkSuccess: %v", err)
	}
	if rec.Status != StatusSuccess || rec.PaidAt == nil {
		t.Fatalf("record = status %q paidAt %v", rec.Status, rec.PaidAt)
	}

	repo.WithClock(fixedClock(first.Add(time.Hour)))
	again, err := repo.MarkSuccess(ctx, "PK-S1", map[string]any{"id": "tx-late", "channel": "card"})
	if err != nil {
		t.Fatalf("second MarkSuccess: %v", err)
	}
	if !again.PaidAt.Equal(first) {
		t.Errorf("paidAt = %v, want unchanged %v", again.PaidAt, first)
	}
	if again.TransactionID != "tx-9" {
		t.Errorf("transactionID = %q, want first write kept", again.TransactionID)
	}
	if again.GatewayResponse["channel"] != "card" {
		t.Error("gatewayResponse not refreshed on repeat success")
	}
}

func TestMemoryRepository_NoRegressionAfterSuccess(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	if _, err := repo.Create(ctx, CreateParams{Reference: "BF-R1", Amount: decimal.NewFromInt(10), Currency: "USD"}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := repo.MarkSuccess(ctx, "BF-R1", map[string]any{"status": "success"}); err != nil {
		t.Fatalf("MarkSuccess: %v", err)
	}

	rec, err := repo.MarkFailed(ctx, "BF-R1", "late decline signal")
	if !errors.Is(err, ErrAlreadySucceeded) {
		t.Fatalf("MarkFailed after success error = %v, want ErrAlreadySucceeded", err)
	}
	if rec.Status != StatusSuccess {
		t.Errorf("status regressed to %q", rec.Status)
	}
	if _, ok := rec.Metadata["errors"]; ok {
		t.Error("failure reason leaked into a succeeded record")
	}
}

func TestMemoryRepository_MarkFailed(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	if _, err := repo.Create(ctx, CreateParams{Reference: "BF-F1", Amount: decimal.NewFromInt(10), Currency: "USD"}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	rec, err := repo.MarkFailed(ctx, "BF-F1", "declined")
	if err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}
	if rec.Status != StatusFailed {
		t.Errorf("status = %q, want failed", rec.Status)
	}
	if errs, ok := rec.Metadata["errors"].([]any); !ok || len(errs) != 1 {
		t.Errorf("metadata.errors = %v, want one entry", rec.Metadata["errors"])
	}
}

func TestMemoryRepository_CacheGatewayResponse(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	if _, err := repo.Create(ctx, CreateParams{Reference: "BF-C1", Amount: decimal.NewFromInt(10), Currency: "USD"}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	rec, err := repo.CacheGatewayResponse(ctx, "BF-C1", map[string]any{"status": "pending", "channel": "card"})
	if err != nil {
		t.Fatalf("CacheGatewayResponse: %v", err)
	}
	if rec.Status != StatusPending {
		t.Errorf("status = %q, caching must not transition", rec.Status)
	}
	if rec.GatewayResponse["channel"] != "card" {
		t.Error("payload not merged into gatewayResponse")
	}
}

func TestMemoryRepository_SetTransactionIDFirstWriteWins(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	if _, err := repo.Create(ctx, CreateParams{Reference: "BF-T1", Amount: decimal.NewFromInt(10), Currency: "USD"}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := repo.SetTransactionID(ctx, "BF-T1", "tx-first"); err != nil {
		t.Fatalf("SetTransactionID: %v", err)
	}
	if err := repo.SetTransactionID(ctx, "BF-T1", "tx-second"); err != nil {
		t.Fatalf("second SetTransactionID: %v", err)
	}

	rec, err := repo.GetByReference(ctx, "BF-T1")
	if err != nil {
		t.Fatalf("GetByReference: %v", err)
	}
	if rec.TransactionID != "tx-first" {
		t.Errorf("transactionID = %q, want tx-first", rec.TransactionID)
	}
}

func TestMemoryRepository_ReturnsCopies(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	if _, err := repo.Create(ctx, CreateParams{
		Reference: "BF-CP1",
		Amount:    decimal.NewFromInt(10),
		Currency:  "USD",
		Metadata:  map[string]any{"k": "v"},
	}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	rec, _ := repo.GetByReference(ctx, "BF-CP1")
	rec.Metadata["k"] = "mutated"

	again, _ := repo.GetByReference(ctx, "BF-CP1")
	if again.Metadata["k"] != "v" {
		t.Error("caller mutation leaked into stored record")
	}
}
