package config

import (
	"database/sql"
	"fmt"
	"strings"
)

// finalize applies defaults and validates the configuration.
func (c *Config) finalize() error {
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Logging.Environment == "" {
		c.Logging.Environment = "production"
	}
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}
	if c.Sale.DefaultCurrency == "" {
		c.Sale.DefaultCurrency = "USD"
	}
	c.Sale.DefaultCurrency = strings.ToUpper(c.Sale.DefaultCurrency)

	switch c.Storage.Backend {
	case "", "memory":
		c.Storage.Backend = "memory"
	case "postgres":
		if c.Storage.PostgresURL == "" {
			return fmt.Errorf("storage.postgres_url is required when storage.backend is postgres")
		}
	case "mongodb":
		if c.Storage.MongoDBURL == "" {
			return fmt.Errorf("storage.mongodb_url is required when storage.backend is mongodb")
		}
	default:
		return fmt.Errorf("storage.backend must be one of memory, postgres, mongodb (got %q)", c.Storage.Backend)
	}

	if len(c.Sale.DefaultCurrency) != 3 {
		return fmt.Errorf("sale.default_currency must be a 3-letter code (got %q)", c.Sale.DefaultCurrency)
	}

	if c.Recaptcha.Enabled && c.Recaptcha.SecretKey == "" {
		return fmt.Errorf("recaptcha.secret_key is required when recaptcha.enabled is true")
	}

	if c.Receipts.Enabled {
		if c.Receipts.SMTPHost == "" {
			return fmt.Errorf("receipts.smtp_host is required when receipts.enabled is true")
		}
		if c.Receipts.FromEmail == "" {
			return fmt.Errorf("receipts.from_email is required when receipts.enabled is true")
		}
	}
	if c.Receipts.QueueSize <= 0 {
		c.Receipts.QueueSize = 256
	}
	if c.Receipts.MaxAttempts <= 0 {
		c.Receipts.MaxAttempts = 2
	}

	return nil
}

// ApplyPostgresPoolSettings applies pool settings to an open database handle.
func ApplyPostgresPoolSettings(db *sql.DB, cfg PostgresPoolConfig) {
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime.Duration > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime.Duration)
	}
}
