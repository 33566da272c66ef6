package payments

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/masterco/lahza-server/internal/config"
)

// PostgresRepository implements Repository using PostgreSQL.
//
// The success transition runs inside a row-locked transaction and sets
// paid_at with COALESCE, so two racing success signals both converge but only
// the first one's timestamp survives.
type PostgresRepository struct {
	db        *sql.DB
	ownsDB    bool
	tableName string
}

// NewPostgresRepository opens a connection pool and ensures the table exists.
func NewPostgresRepository(connectionString string, poolConfig config.PostgresPoolConfig) (*PostgresRepository, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	config.ApplyPostgresPoolSettings(db, poolConfig)

	repo := &PostgresRepository{db: db, ownsDB: true, tableName: "payments"}
	if err := repo.createTable(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return repo, nil
}

// NewPostgresRepositoryWithDB reuses an existing connection pool.
func NewPostgresRepositoryWithDB(db *sql.DB) (*PostgresRepository, error) {
	repo := &PostgresRepository{db: db, ownsDB: false, tableName: "payments"}
	if err := repo.createTable(); err != nil {
		return nil, err
	}
	return repo, nil
}

// WithTableName sets a custom table name and recreates the schema if needed.
func (r *PostgresRepository) WithTableName(name string) *PostgresRepository {
	if name != "" {
		r.tableName = name
		_ = r.createTable()
	}
	return r
}

func (r *PostgresRepository) createTable() error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			reference        TEXT PRIMARY KEY,
			transaction_id   TEXT NOT NULL DEFAULT '',
			name             TEXT NOT NULL DEFAULT '',
			email            TEXT NOT NULL DEFAULT '',
			mobile           TEXT NOT NULL DEFAULT '',
			address          TEXT NOT NULL DEFAULT '',
			amount           NUMERIC(14,2) NOT NULL DEFAULT 0,
			currency         TEXT NOT NULL DEFAULT 'USD',
			card             JSONB NOT NULL DEFAULT '{}',
			offer_type       TEXT NOT NULL DEFAULT '',
			offer_name       TEXT NOT NULL DEFAULT '',
			source           TEXT NOT NULL DEFAULT '',
			status           TEXT NOT NULL DEFAULT 'pending',
			metadata         JSONB NOT NULL DEFAULT '{}',
			gateway_response JSONB NOT NULL DEFAULT '{}',
			created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			paid_at          TIMESTAMPTZ
		);
		CREATE INDEX IF NOT EXISTS idx_%s_status ON %s(status);
		CREATE INDEX IF NOT EXISTS idx_%s_email ON %s(email);
	`, r.tableName, r.tableName, r.tableName, r.tableName, r.tableName)

	if _, err := r.db.Exec(query); err != nil {
		return fmt.Errorf("create payments table: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Create(ctx context.Context, params CreateParams) (Record, error) {
	now := time.Now().UTC()
	metadata, err := marshalJSONB(params.Metadata)
	if err != nil {
		return Record{}, err
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (reference, name, email, mobile, address, amount, currency,
			offer_type, offer_name, source, status, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $13)
	`, r.tableName)

	_, err = r.db.ExecContext(ctx, query,
		params.Reference, params.Name, params.Email, params.Mobile, params.Address,
		params.Amount, params.Currency, params.OfferType, params.OfferName,
		params.Source, StatusPending, metadata, now)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return Record{}, ErrDuplicateReference
		}
		return Record{}, fmt.Errorf("insert payment: %w", err)
	}

	return r.GetByReference(ctx, params.Reference)
}

func (r *PostgresRepository) GetByReference(ctx context.Context, reference string) (Record, error) {
	query := fmt.Sprintf(selectColumns+` FROM %s WHERE reference = $1`, r.tableName)
	return r.scanRecord(r.db.QueryRowContext(ctx, query, reference))
}

func (r *PostgresRepository) FindOrCreatePlaceholder(ctx context.Context, reference string, seed PlaceholderSeed) (Record, bool, error) {
	now := time.Now().UTC()
	source := seed.Source
	if source == "" {
		source = "black_friday"
	}
	metadata, err := marshalJSONB(map[string]any{"placeholder": true})
	if err != nil {
		return Record{}, false, err
	}

	// ON CONFLICT DO NOTHING makes concurrent placeholder creation race-free:
	// the second caller falls through to the read.
	query := fmt.Sprintf(`
		INSERT INTO %s (reference, name, email, mobile, amount, currency, source, status, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 0, 'USD', $5, $6, $7, $8, $8)
		ON CONFLICT (reference) DO NOTHING
	`, r.tableName)

	result, err := r.db.ExecContext(ctx, query,
		reference, seed.Name, seed.Email, seed.Mobile, source, StatusPending, metadata, now)
	if err != nil {
		return Record{}, false, fmt.Errorf("insert placeholder: %w", err)
	}

	created := false
	if rows, err := result.RowsAffected(); err == nil && rows > 0 {
		created = true
	}

	rec, err := r.GetByReference(ctx, reference)
	return rec, created, err
}

func (r *PostgresRepository) MarkSuccess(ctx context.Context, reference string, payload map[string]any) (Record, error) {
	var rec Record
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		current, err := r.lockRecord(ctx, tx, reference)
		if err != nil {
			return err
		}

		current.applySuccess(payload, time.Now().UTC())

		card, err := marshalJSONB(current.Card)
		if err != nil {
			return err
		}
		gatewayResponse, err := marshalJSONB(current.GatewayResponse)
		if err != nil {
			return err
		}

		// COALESCE keeps the first paid_at even if two success signals race
		// past the row lock on retry.
		query := fmt.Sprintf(`
			UPDATE %s SET
				transaction_id = $2,
				amount = $3,
				currency = $4,
				card = $5,
				status = $6,
				gateway_response = $7,
				email = $8,
				name = $9,
				updated_at = $10,
				paid_at = COALESCE(paid_at, $10)
			WHERE reference = $1
		`, r.tableName)

		_, err = tx.ExecContext(ctx, query,
			reference, current.TransactionID, current.Amount, current.Currency,
			card, StatusSuccess, gatewayResponse, current.Email, current.Name,
			time.Now().UTC())
		if err != nil {
			return fmt.Errorf("update payment success: %w", err)
		}
		return nil
	})
	if err != nil {
		return Record{}, err
	}

	rec, err = r.GetByReference(ctx, reference)
	return rec, err
}

func (r *PostgresRepository) MarkFailed(ctx context.Context, reference string, reason string) (Record, error) {
	var conflict bool
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		current, err := r.lockRecord(ctx, tx, reference)
		if err != nil {
			return err
		}
		if current.Status == StatusSuccess {
			conflict = true
			return nil
		}

		current.applyFailure(reason, time.Now().UTC())

		metadata, err := marshalJSONB(current.Metadata)
		if err != nil {
			return err
		}

		query := fmt.Sprintf(`
			UPDATE %s SET status = $2, metadata = $3, updated_at = $4
			WHERE reference = $1 AND status <> $5
		`, r.tableName)

		_, err = tx.ExecContext(ctx, query, reference, StatusFailed, metadata, time.Now().UTC(), StatusSuccess)
		if err != nil {
			return fmt.Errorf("update payment failed: %w", err)
		}
		return nil
	})
	if err != nil {
		return Record{}, err
	}

	rec, err := r.GetByReference(ctx, reference)
	if err != nil {
		return Record{}, err
	}
	if conflict {
		return rec, ErrAlreadySucceeded
	}
	return rec, nil
}

func (r *PostgresRepository) CacheGatewayResponse(ctx context.Context, reference string, payload map[string]any) (Record, error) {
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		current, err := r.lockRecord(ctx, tx, reference)
		if err != nil {
			return err
		}
		current.mergeGatewayResponse(payload)

		gatewayResponse, err := marshalJSONB(current.GatewayResponse)
		if err != nil {
			return err
		}

		query := fmt.Sprintf(`UPDATE %s SET gateway_response = $2, updated_at = $3 WHERE reference = $1`, r.tableName)
		_, err = tx.ExecContext(ctx, query, reference, gatewayResponse, time.Now().UTC())
		if err != nil {
			return fmt.Errorf("cache gateway response: %w", err)
		}
		return nil
	})
	if err != nil {
		return Record{}, err
	}
	return r.GetByReference(ctx, reference)
}

func (r *PostgresRepository) SetTransactionID(ctx context.Context, reference, transactionID string) error {
	query := fmt.Sprintf(`
		UPDATE %s SET transaction_id = $2, updated_at = $3
		WHERE reference = $1 AND transaction_id = ''
	`, r.tableName)
	if _, err := r.db.ExecContext(ctx, query, reference, transactionID, time.Now().UTC()); err != nil {
		return fmt.Errorf("set transaction id: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Close() error {
	if r.ownsDB {
		return r.db.Close()
	}
	return nil
}

// withTx runs fn in a transaction, committing on success.
func (r *PostgresRepository) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

const selectColumns = `SELECT reference, transaction_id, name, email, mobile, address,
	amount, currency, card, offer_type, offer_name, source, status,
	metadata, gateway_response, created_at, updated_at, paid_at`

// lockRecord reads a record FOR UPDATE inside tx.
func (r *PostgresRepository) lockRecord(ctx context.Context, tx *sql.Tx, reference string) (*Record, error) {
	query := fmt.Sprintf(selectColumns+` FROM %s WHERE reference = $1 FOR UPDATE`, r.tableName)
	rec, err := r.scanRecord(tx.QueryRowContext(ctx, query, reference))
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *PostgresRepository) scanRecord(row rowScanner) (Record, error) {
	var rec Record
	var amount decimal.Decimal
	var card, metadata, gatewayResponse []byte
	var paidAt sql.NullTime

	err := row.Scan(&rec.Reference, &rec.TransactionID, &rec.Name, &rec.Email,
		&rec.Mobile, &rec.Address, &amount, &rec.Currency, &card,
		&rec.OfferType, &rec.OfferName, &rec.Source, &rec.Status,
		&metadata, &gatewayResponse, &rec.CreatedAt, &rec.UpdatedAt, &paidAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("scan payment: %w", err)
	}

	rec.Amount = amount
	if paidAt.Valid {
		t := paidAt.Time
		rec.PaidAt = &t
	}
	if len(card) > 0 {
		_ = json.Unmarshal(card, &rec.Card)
	}
	if len(metadata) > 0 {
		_ = json.Unmarshal(metadata, &rec.Metadata)
	}
	if len(gatewayResponse) > 0 {
		_ = json.Unmarshal(gatewayResponse, &rec.GatewayResponse)
	}
	return rec, nil
}

func marshalJSONB(v any) ([]byte, error) {
	if v == nil {
		return []byte("{}"), nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal jsonb: %w", err)
	}
	return raw, nil
}
