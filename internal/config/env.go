package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// applyEnvOverrides applies environment variable overrides to the config.
// Environment variables take precedence over YAML configuration.
func (c *Config) applyEnvOverrides() {
	// Server config
	setIfEnv(&c.Server.Address, "SERVER_ADDRESS")
	setIfEnv(&c.Server.PublicBaseURL, "SERVER_PUBLIC_BASE_URL")
	setIfEnv(&c.Server.AdminMetricsAPIKey, "ADMIN_METRICS_API_KEY")

	// Logging config
	setIfEnv(&c.Logging.Level, "LOG_LEVEL")
	setIfEnv(&c.Logging.Format, "LOG_FORMAT")
	setIfEnv(&c.Logging.Environment, "ENVIRONMENT")

	// Lahza gateway config
	setIfEnv(&c.Lahza.BaseURL, "LAHZA_BASE_URL")
	setIfEnv(&c.Lahza.SecretKey, "LAHZA_SECRET_KEY")
	setDurationIfEnv(&c.Lahza.Timeout, "LAHZA_TIMEOUT")

	// reCAPTCHA config
	setBoolIfEnv(&c.Recaptcha.Enabled, "RECAPTCHA_ENABLED")
	setIfEnv(&c.Recaptcha.SecretKey, "RECAPTCHA_SECRET_KEY")
	setIfEnv(&c.Recaptcha.VerifyURL, "RECAPTCHA_VERIFY_URL")
	setDurationIfEnv(&c.Recaptcha.Timeout, "RECAPTCHA_TIMEOUT")

	// Storage config
	setIfEnv(&c.Storage.Backend, "STORAGE_BACKEND")
	setIfEnv(&c.Storage.PostgresURL, "STORAGE_POSTGRES_URL")
	setIfEnv(&c.Storage.MongoDBURL, "STORAGE_MONGODB_URL")
	setIfEnv(&c.Storage.MongoDBDatabase, "STORAGE_MONGODB_DATABASE")
	setIfEnv(&c.Storage.MongoDBCollection, "STORAGE_MONGODB_COLLECTION")
	setIntIfEnv(&c.Storage.PostgresPool.MaxOpenConns, "STORAGE_POSTGRES_MAX_OPEN_CONNS")
	setIntIfEnv(&c.Storage.PostgresPool.MaxIdleConns, "STORAGE_POSTGRES_MAX_IDLE_CONNS")
	setDurationIfEnv(&c.Storage.PostgresPool.ConnMaxLifetime, "STORAGE_POSTGRES_CONN_MAX_LIFETIME")

	// Receipt email config
	setBoolIfEnv(&c.Receipts.Enabled, "RECEIPTS_ENABLED")
	setIfEnv(&c.Receipts.SMTPHost, "SMTP_HOST")
	setIfEnv(&c.Receipts.SMTPPort, "SMTP_PORT")
	setIfEnv(&c.Receipts.SMTPUser, "SMTP_USER")
	setIfEnv(&c.Receipts.SMTPPassword, "SMTP_PASS")
	setIfEnv(&c.Receipts.FromEmail, "RECEIPTS_FROM_EMAIL")
	setIfEnv(&c.Receipts.FromName, "RECEIPTS_FROM_NAME")
	setIfEnv(&c.Receipts.AttachmentPath, "RECEIPTS_ATTACHMENT_PATH")

	// Offers catalog
	setIfEnv(&c.Offers.CatalogPath, "OFFERS_CATALOG_PATH")

	// Sale defaults
	setIfEnv(&c.Sale.ActiveSale, "SALE_ACTIVE")
	setBoolIfEnv(&c.Sale.CheckoutEnabled, "SALE_CHECKOUT_ENABLED")
	setIfEnv(&c.Sale.DefaultCurrency, "SALE_DEFAULT_CURRENCY")

	// Rate limiting
	setBoolIfEnv(&c.RateLimit.Enabled, "RATE_LIMIT_ENABLED")
	setIntIfEnv(&c.RateLimit.Limit, "RATE_LIMIT_LIMIT")
	setDurationIfEnv(&c.RateLimit.Window, "RATE_LIMIT_WINDOW")

	// Circuit breaker
	setBoolIfEnv(&c.CircuitBreaker.Enabled, "CIRCUIT_BREAKER_ENABLED")

	// CORS origins as comma-separated list
	if v := os.Getenv("SERVER_CORS_ALLOWED_ORIGINS"); v != "" {
		origins := strings.Split(v, ",")
		for i := range origins {
			origins[i] = strings.TrimSpace(origins[i])
		}
		c.Server.CORSAllowedOrigins = origins
	}
}

// setIfEnv sets a string pointer to the environment variable value if it exists.
func setIfEnv(target *string, key string) {
	if val := os.Getenv(key); val != "" {
		*target = val
	}
}

// setBoolIfEnv sets a boolean from an environment variable.
// Accepts "1", "true", "TRUE", "True" as true values.
func setBoolIfEnv(target *bool, key string) {
	if v := os.Getenv(key); v != "" {
		*target = v == "1" || strings.EqualFold(v, "true")
	}
}

// setIntIfEnv sets an int from an environment variable when it parses.
func setIntIfEnv(target *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*target = n
		}
	}
}

// setDurationIfEnv sets a Duration from an environment variable.
// Uses time.ParseDuration to parse values like "5m", "120s", "1h30m".
func setDurationIfEnv(target *Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if dur, err := time.ParseDuration(v); err == nil {
			*target = Duration{Duration: dur}
		}
	}
}
