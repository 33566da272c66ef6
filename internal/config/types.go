package config

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration to support string based YAML decoding.
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses duration values expressed as Go-style strings or bare
// numbers interpreted as seconds.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		raw := strings.TrimSpace(value.Value)
		if raw == "" {
			d.Duration = 0
			return nil
		}
		parsed, err := time.ParseDuration(raw)
		if err == nil {
			d.Duration = parsed
			return nil
		}
		secs, convErr := time.ParseDuration(fmt.Sprintf("%ss", raw))
		if convErr == nil {
			d.Duration = secs
			return nil
		}
		return fmt.Errorf("invalid duration value %q: %w", raw, err)
	default:
		return fmt.Errorf("unsupported duration node kind: %v", value.Kind)
	}
}

// MarshalYAML renders the duration as a string to keep config edits human-friendly.
func (d Duration) MarshalYAML() (interface{}, error) {
	return d.Duration.String(), nil
}

// Config holds application level configuration aggregated from file and
// environment variables.
type Config struct {
	Server         ServerConfig         `yaml:"server"`
	Logging        LoggingConfig        `yaml:"logging"`
	Lahza          LahzaConfig          `yaml:"lahza"`
	Recaptcha      RecaptchaConfig      `yaml:"recaptcha"`
	Storage        StorageConfig        `yaml:"storage"`
	Receipts       ReceiptsConfig       `yaml:"receipts"`
	Offers         OffersConfig         `yaml:"offers"`
	Sale           SaleConfig           `yaml:"sale"`
	RateLimit      RateLimitConfig      `yaml:"rate_limit"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Address            string   `yaml:"address"`
	PublicBaseURL      string   `yaml:"public_base_url"` // used to build gateway callback URLs
	ReadTimeout        Duration `yaml:"read_timeout"`
	WriteTimeout       Duration `yaml:"write_timeout"`
	IdleTimeout        Duration `yaml:"idle_timeout"`
	CORSAllowedOrigins []string `yaml:"cors_allowed_origins"`
	AdminMetricsAPIKey string   `yaml:"admin_metrics_api_key"` // optional protection for /metrics
}

// LoggingConfig holds logger configuration.
type LoggingConfig struct {
	Level       string `yaml:"level"`
	Format      string `yaml:"format"` // json | console
	Environment string `yaml:"environment"`
}

// LahzaConfig holds Lahza payment gateway configuration.
type LahzaConfig struct {
	BaseURL   string   `yaml:"base_url"`
	SecretKey string   `yaml:"secret_key"`
	Timeout   Duration `yaml:"timeout"`
}

// RecaptchaConfig holds the human-verification gate configuration.
// The gate is disabled by default: production policy is to skip the check to
// avoid added checkout latency.
type RecaptchaConfig struct {
	Enabled   bool     `yaml:"enabled"`
	SecretKey string   `yaml:"secret_key"`
	VerifyURL string   `yaml:"verify_url"`
	Timeout   Duration `yaml:"timeout"`
}

// StorageConfig holds persistence backend configuration.
type StorageConfig struct {
	Backend           string             `yaml:"backend"` // "memory", "postgres", or "mongodb"
	PostgresURL       string             `yaml:"postgres_url"`
	MongoDBURL        string             `yaml:"mongodb_url"`
	MongoDBDatabase   string             `yaml:"mongodb_database"`
	MongoDBCollection string             `yaml:"mongodb_collection"`
	PaymentsTable     string             `yaml:"payments_table"`
	SettingsTable     string             `yaml:"settings_table"`
	PostgresPool      PostgresPoolConfig `yaml:"postgres_pool"`
}

// PostgresPoolConfig holds PostgreSQL connection pool settings.
type PostgresPoolConfig struct {
	MaxOpenConns    int      `yaml:"max_open_conns"`
	MaxIdleConns    int      `yaml:"max_idle_conns"`
	ConnMaxLifetime Duration `yaml:"conn_max_lifetime"`
}

// ReceiptsConfig holds receipt email delivery configuration.
type ReceiptsConfig struct {
	Enabled        bool     `yaml:"enabled"`
	SMTPHost       string   `yaml:"smtp_host"`
	SMTPPort       string   `yaml:"smtp_port"`
	SMTPUser       string   `yaml:"smtp_user"`
	SMTPPassword   string   `yaml:"smtp_password"`
	FromEmail      string   `yaml:"from_email"`
	FromName       string   `yaml:"from_name"`
	Subject        string   `yaml:"subject"`
	AttachmentPath string   `yaml:"attachment_path"` // fixed instructional PDF; optional
	QueueSize      int      `yaml:"queue_size"`
	MaxAttempts    int      `yaml:"max_attempts"`
	RetryInterval  Duration `yaml:"retry_interval"`
}

// OffersConfig locates the course-package catalog.
type OffersConfig struct {
	CatalogPath string `yaml:"catalog_path"`
}

// SaleConfig holds defaults used to bootstrap the active sale settings row.
type SaleConfig struct {
	ActiveSale      string `yaml:"active_sale"`
	CheckoutEnabled bool   `yaml:"checkout_enabled"`
	DefaultCurrency string `yaml:"default_currency"`
}

// RateLimitConfig holds per-IP request limiting configuration.
type RateLimitConfig struct {
	Enabled bool     `yaml:"enabled"`
	Limit   int      `yaml:"limit"`
	Window  Duration `yaml:"window"`
}

// CircuitBreakerConfig holds circuit breaker settings per external service.
type CircuitBreakerConfig struct {
	Enabled   bool                 `yaml:"enabled"`
	LahzaAPI  BreakerServiceConfig `yaml:"lahza_api"`
	Recaptcha BreakerServiceConfig `yaml:"recaptcha"`
}

// BreakerServiceConfig configures a single service's breaker.
type BreakerServiceConfig struct {
	MaxRequests         uint32   `yaml:"max_requests"`
	Interval            Duration `yaml:"interval"`
	Timeout             Duration `yaml:"timeout"`
	ConsecutiveFailures uint32   `yaml:"consecutive_failures"`
	FailureRatio        float64  `yaml:"failure_ratio"`
	MinRequests         uint32   `yaml:"min_requests"`
}
