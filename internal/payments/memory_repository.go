package payments

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// MemoryRepository is an in-memory Repository for tests and local
// development. The mutex gives the same first-success-wins guarantee the
// database backends get from conditional updates.
type MemoryRepository struct {
	mu      sync.RWMutex
	records map[string]*Record
	now     func() time.Time
}

// NewMemoryRepository creates an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		records: make(map[string]*Record),
		now:     time.Now,
	}
}

// WithClock overrides the time source (tests only).
func (m *MemoryRepository) WithClock(now func() time.Time) *MemoryRepository {
	m.now = now
	return m
}

func (m *MemoryRepository) Create(_ context.Context, params CreateParams) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.records[params.Reference]; exists {
		return Record{}, ErrDuplicateReference
	}

	now := m.now().UTC()
	rec := &Record{
		Reference: params.Reference,
		Name:      params.Name,
		Email:     params.Email,
		Mobile:    params.Mobile,
		Address:   params.Address,
		Amount:    params.Amount,
		Currency:  params.Currency,
		OfferType: params.OfferType,
		OfferName: params.OfferName,
		Source:    params.Source,
		Status:    StatusPending,
		Metadata:  params.Metadata,
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.records[params.Reference] = rec
	return cloneRecord(rec), nil
}

func (m *MemoryRepository) GetByReference(_ context.Context, reference string) (Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.records[reference]
	if !ok {
		return Record{}, ErrNotFound
	}
	return cloneRecord(rec), nil
}

func (m *MemoryRepository) FindOrCreatePlaceholder(_ context.Context, reference string, seed PlaceholderSeed) (Record, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if rec, ok := m.records[reference]; ok {
		return cloneRecord(rec), false, nil
	}

	now := m.now().UTC()
	source := seed.Source
	if source == "" {
		source = "black_friday"
	}
	rec := &Record{
		Reference: reference,
		Name:      seed.Name,
		Email:     seed.Email,
		Mobile:    seed.Mobile,
		Amount:    decimal.Zero,
		Currency:  "USD",
		Source:    source,
		Status:    StatusPending,
		Metadata:  map[string]any{"placeholder": true},
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.records[reference] = rec
	return cloneRecord(rec), true, nil
}

func (m *MemoryRepository) MarkSuccess(_ context.Context, reference string, payload map[string]any) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[reference]
	if !ok {
		return Record{}, ErrNotFound
	}
	rec.applySuccess(payload, m.now().UTC())
	return cloneRecord(rec), nil
}

func (m *MemoryRepository) MarkFailed(_ context.Context, reference string, reason string) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[reference]
	if !ok {
		return Record{}, ErrNotFound
	}
	if rec.Status == StatusSuccess {
		return cloneRecord(rec), ErrAlreadySucceeded
	}
	rec.applyFailure(reason, m.now().UTC())
	return cloneRecord(rec), nil
}

func (m *MemoryRepository) CacheGatewayResponse(_ context.Context, reference string, payload map[string]any) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[reference]
	if !ok {
		return Record{}, ErrNotFound
	}
	rec.mergeGatewayResponse(payload)
	rec.UpdatedAt = m.now().UTC()
	return cloneRecord(rec), nil
}

func (m *MemoryRepository) SetTransactionID(_ context.Context, reference, transactionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[reference]
	if !ok {
		return ErrNotFound
	}
	if rec.TransactionID == "" {
		rec.TransactionID = transactionID
		rec.UpdatedAt = m.now().UTC()
	}
	return nil
}

func (m *MemoryRepository) Close() error {
	return nil
}

// cloneRecord copies a record so callers cannot mutate shared state.
func cloneRecord(rec *Record) Record {
	out := *rec
	if rec.Metadata != nil {
		out.Metadata = make(map[string]any, len(rec.Metadata))
		for k, v := range rec.Metadata {
			out.Metadata[k] = v
		}
	}
	if rec.GatewayResponse != nil {
		out.GatewayResponse = make(map[string]any, len(rec.GatewayResponse))
		for k, v := range rec.GatewayResponse {
			out.GatewayResponse[k] = v
		}
	}
	if rec.PaidAt != nil {
		paidAt := *rec.PaidAt
		out.PaidAt = &paidAt
	}
	return out
}
