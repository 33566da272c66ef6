// Package payments holds the payment record entity and its persistence.
//
// A Record tracks one purchase attempt end-to-end. Its reference is the join
// key across the three reconciliation entry points (initialize, verify,
// webhook), which may arrive in any order and redundantly; the transition
// rules here make convergence idempotent.
package payments

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/masterco/lahza-server/internal/money"
)

// Status is the lifecycle state of a payment record.
type Status string

const (
	StatusPending   Status = "pending"
	StatusSuccess   Status = "success"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether no further transition is expected.
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusFailed || s == StatusCancelled
}

// Card is a best-effort snapshot of the instrument used, populated only after
// a confirmed success.
type Card struct {
	Brand    string `json:"brand,omitempty" bson:"brand,omitempty"`
	Type     string `json:"type,omitempty" bson:"type,omitempty"`
	Last4    string `json:"last4,omitempty" bson:"last4,omitempty"`
	ExpMonth string `json:"expMonth,omitempty" bson:"exp_month,omitempty"`
	ExpYear  string `json:"expYear,omitempty" bson:"exp_year,omitempty"`
}

// Empty reports whether no card details were captured.
func (c Card) Empty() bool {
	return c == Card{}
}

// Record is one purchase attempt.
type Record struct {
	Reference     string `json:"reference" bson:"reference"`
	TransactionID string `json:"transactionId,omitempty" bson:"transaction_id,omitempty"`

	Name    string `json:"name" bson:"name"`
	Email   string `json:"email" bson:"email"`
	Mobile  string `json:"mobile,omitempty" bson:"mobile,omitempty"`
	Address string `json:"address,omitempty" bson:"address,omitempty"`

	Amount   decimal.Decimal `json:"amount" bson:"amount"`
	Currency string          `json:"currency" bson:"currency"`

	Card Card `json:"card,omitempty" bson:"card,omitempty"`

	OfferType string `json:"offerType,omitempty" bson:"offer_type,omitempty"`
	OfferName string `json:"offerName,omitempty" bson:"offer_name,omitempty"`
	Source    string `json:"source" bson:"source"`

	Status Status `json:"status" bson:"status"`

	Metadata        map[string]any `json:"metadata,omitempty" bson:"metadata,omitempty"`
	GatewayResponse map[string]any `json:"gatewayResponse,omitempty" bson:"gateway_response,omitempty"`

	CreatedAt time.Time  `json:"createdAt" bson:"created_at"`
	UpdatedAt time.Time  `json:"updatedAt" bson:"updated_at"`
	PaidAt    *time.Time `json:"paidAt,omitempty" bson:"paid_at,omitempty"`
}

// applySuccess folds an authoritative gateway payload into the record and
// moves it to success. Safe to apply repeatedly: gatewayResponse and card
// fields refresh, paidAt never moves once set.
func (r *Record) applySuccess(payload map[string]any, now time.Time) {
	r.mergeGatewayResponse(payload)

	if id, ok := FirstString(payload, "id", "data.id", "transaction_id"); ok && r.TransactionID == "" {
		r.TransactionID = id
	}

	if card, ok := extractCard(payload); ok {
		r.Card = card
	}

	if raw, ok := FirstNumber(payload, "amount", "data.amount"); ok && raw.IsPositive() {
		r.Amount = money.NormalizeGatewayAmount(raw)
	}
	if currency, ok := FirstString(payload, "currency", "data.currency"); ok {
		r.Currency = money.CurrencyOrDefault(currency, r.Currency)
	}
	if email, ok := FirstString(payload, "customer.email", "data.customer.email"); ok && r.Email == "" {
		r.Email = email
	}
	if name, ok := FirstString(payload, "customer.name", "data.customer.name"); ok && r.Name == "" {
		r.Name = name
	}

	r.Status = StatusSuccess
	if r.PaidAt == nil {
		paidAt := now
		r.PaidAt = &paidAt
	}
	r.UpdatedAt = now
}

// applyFailure records the failure reason and moves the record to failed.
// Caller must enforce the no-regression policy before invoking.
func (r *Record) applyFailure(reason string, now time.Time) {
	if r.Metadata == nil {
		r.Metadata = make(map[string]any)
	}
	var errorLog []any
	if existing, ok := r.Metadata["errors"].([]any); ok {
		errorLog = existing
	}
	r.Metadata["errors"] = append(errorLog, map[string]any{
		"message":   reason,
		"timestamp": now.UTC().Format(time.RFC3339),
	})

	r.Status = StatusFailed
	r.UpdatedAt = now
}

// mergeGatewayResponse unions the payload into the cached gateway response,
// last write winning per key.
func (r *Record) mergeGatewayResponse(payload map[string]any) {
	if len(payload) == 0 {
		return
	}
	if r.GatewayResponse == nil {
		r.GatewayResponse = make(map[string]any, len(payload))
	}
	for k, v := range payload {
		r.GatewayResponse[k] = v
	}
}

// cardPaths is the fallback chain for card details; the gateway nests them
// differently depending on payment method and event type.
var cardPaths = []string{"card", "authorization.card", "payment_method.card"}

func extractCard(payload map[string]any) (Card, bool) {
	for _, path := range cardPaths {
		raw, ok := FirstMap(payload, path)
		if !ok || len(raw) == 0 {
			continue
		}
		card := Card{
			Brand:    stringAt(raw, "brand"),
			Type:     stringAt(raw, "type", "card_type"),
			Last4:    stringAt(raw, "last4", "last_four"),
			ExpMonth: stringAt(raw, "exp_month"),
			ExpYear:  stringAt(raw, "exp_year"),
		}
		if !card.Empty() {
			return card, true
		}
	}
	return Card{}, false
}

func stringAt(m map[string]any, keys ...string) string {
	for _, key := range keys {
		if s, ok := FirstString(m, key); ok {
			return s
		}
	}
	return ""
}

// successStatuses and failureStatuses are the gateway status vocabularies the
// orchestrator converges on.
var successStatuses = map[string]bool{
	"success":    true,
	"completed":  true,
	"paid":       true,
	"approved":   true,
	"successful": true,
}

var failureStatuses = map[string]bool{
	"failed":    true,
	"declined":  true,
	"rejected":  true,
	"cancelled": true,
}

// IsSuccessStatus reports whether a gateway status string means the payment
// went through. Comparison is case-insensitive.
func IsSuccessStatus(status string) bool {
	return successStatuses[strings.ToLower(strings.TrimSpace(status))]
}

// IsFailureStatus reports whether a gateway status string is a terminal
// failure.
func IsFailureStatus(status string) bool {
	return failureStatuses[strings.ToLower(strings.TrimSpace(status))]
}
