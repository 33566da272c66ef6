package settings

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// PostgresRepository stores the single settings row in PostgreSQL. The id=1
// constraint enforces singleness at the schema level.
type PostgresRepository struct {
	db        *sql.DB
	tableName string
}

// NewPostgresRepository prepares the settings table on an existing pool. The
// pool's lifetime belongs to the caller.
func NewPostgresRepository(db *sql.DB, tableName string) (*PostgresRepository, error) {
	if tableName == "" {
		tableName = "sale_settings"
	}
	repo := &PostgresRepository{db: db, tableName: tableName}
	if err := repo.createTable(); err != nil {
		return nil, err
	}
	return repo, nil
}

func (r *PostgresRepository) createTable() error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id               INT PRIMARY KEY CHECK (id = 1),
			active_sale      TEXT NOT NULL,
			checkout_enabled BOOLEAN NOT NULL,
			default_currency TEXT NOT NULL,
			updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`, r.tableName)
	if _, err := r.db.Exec(query); err != nil {
		return fmt.Errorf("create settings table: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetActive(ctx context.Context) (Settings, error) {
	query := fmt.Sprintf(`SELECT active_sale, checkout_enabled, default_currency FROM %s WHERE id = 1`, r.tableName)

	var s Settings
	err := r.db.QueryRowContext(ctx, query).Scan(&s.ActiveSale, &s.CheckoutEnabled, &s.DefaultCurrency)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Settings{}, ErrNotBootstrapped
		}
		return Settings{}, fmt.Errorf("read settings: %w", err)
	}
	return s, nil
}

func (r *PostgresRepository) Bootstrap(ctx context.Context, defaults Settings) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (id, active_sale, checkout_enabled, default_currency, updated_at)
		VALUES (1, $1, $2, $3, $4)
		ON CONFLICT (id) DO NOTHING
	`, r.tableName)

	if _, err := r.db.ExecContext(ctx, query,
		defaults.ActiveSale, defaults.CheckoutEnabled, defaults.DefaultCurrency, time.Now().UTC()); err != nil {
		return fmt.Errorf("bootstrap settings: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Update(ctx context.Context, s Settings) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (id, active_sale, checkout_enabled, default_currency, updated_at)
		VALUES (1, $1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			active_sale = EXCLUDED.active_sale,
			checkout_enabled = EXCLUDED.checkout_enabled,
			default_currency = EXCLUDED.default_currency,
			updated_at = EXCLUDED.updated_at
	`, r.tableName)

	if _, err := r.db.ExecContext(ctx, query,
		s.ActiveSale, s.CheckoutEnabled, s.DefaultCurrency, time.Now().UTC()); err != nil {
		return fmt.Errorf("update settings: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Close() error { return nil }
