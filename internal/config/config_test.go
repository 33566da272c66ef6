package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

var managedEnv = []string{
	"SERVER_ADDRESS", "SERVER_PUBLIC_BASE_URL", "LAHZA_BASE_URL",
	"LAHZA_SECRET_KEY", "LAHZA_TIMEOUT", "RECAPTCHA_ENABLED",
	"RECAPTCHA_SECRET_KEY", "STORAGE_BACKEND", "STORAGE_POSTGRES_URL",
	"STORAGE_MONGODB_URL", "RECEIPTS_ENABLED", "SMTP_HOST",
	"RECEIPTS_FROM_EMAIL", "SALE_DEFAULT_CURRENCY", "RATE_LIMIT_ENABLED",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range managedEnv {
		os.Unsetenv(key)
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Address != ":8080" {
		t.Errorf("default address = %q", cfg.Server.Address)
	}
	if cfg.Lahza.BaseURL != "https://api.lahza.io" {
		t.Errorf("default lahza base url = %q", cfg.Lahza.BaseURL)
	}
	if cfg.Lahza.Timeout.Duration != 30*time.Second {
		t.Errorf("default lahza timeout = %s", cfg.Lahza.Timeout)
	}
	if cfg.Recaptcha.Timeout.Duration != 10*time.Second {
		t.Errorf("default recaptcha timeout = %s", cfg.Recaptcha.Timeout)
	}
	if cfg.Storage.Backend != "memory" {
		t.Errorf("default backend = %q", cfg.Storage.Backend)
	}
	if cfg.Recaptcha.Enabled {
		t.Error("recaptcha should be disabled by default")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("LAHZA_SECRET_KEY", "sk_test_abc")
	t.Setenv("LAHZA_TIMEOUT", "45s")
	t.Setenv("SALE_DEFAULT_CURRENCY", "ils")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Lahza.SecretKey != "sk_test_abc" {
		t.Errorf("secret key = %q", cfg.Lahza.SecretKey)
	}
	if cfg.Lahza.Timeout.Duration != 45*time.Second {
		t.Errorf("timeout = %s", cfg.Lahza.Timeout)
	}
	if cfg.Sale.DefaultCurrency != "ILS" {
		t.Errorf("currency = %q", cfg.Sale.DefaultCurrency)
	}
}

func TestLoad_YAMLFile(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	raw := `
server:
  address: ":9090"
  public_base_url: "https://example.com"
lahza:
  base_url: "https://sandbox.lahza.io"
  timeout: 20s
storage:
  backend: memory
rate_limit:
  enabled: false
`
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Address != ":9090" {
		t.Errorf("address = %q", cfg.Server.Address)
	}
	if cfg.Lahza.BaseURL != "https://sandbox.lahza.io" {
		t.Errorf("base url = %q", cfg.Lahza.BaseURL)
	}
	if cfg.Lahza.Timeout.Duration != 20*time.Second {
		t.Errorf("timeout = %s", cfg.Lahza.Timeout)
	}
	if cfg.RateLimit.Enabled {
		t.Error("rate limit should be disabled by file")
	}
}

func TestLoad_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{
			name:    "postgres backend without url",
			env:     map[string]string{"STORAGE_BACKEND": "postgres"},
			wantErr: "storage.postgres_url is required",
		},
		{
			name:    "mongodb backend without url",
			env:     map[string]string{"STORAGE_BACKEND": "mongodb"},
			wantErr: "storage.mongodb_url is required",
		},
		{
			name:    "unknown backend",
			env:     map[string]string{"STORAGE_BACKEND": "cassandra"},
			wantErr: "storage.backend must be one of",
		},
		{
			name:    "recaptcha enabled without secret",
			env:     map[string]string{"RECAPTCHA_ENABLED": "true"},
			wantErr: "recaptcha.secret_key is required",
		},
		{
			name:    "receipts enabled without smtp host",
			env:     map[string]string{"RECEIPTS_ENABLED": "1"},
			wantErr: "receipts.smtp_host is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load("")
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want containing %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestDuration_UnmarshalYAML(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	// Bare numbers are interpreted as seconds.
	raw := "lahza:\n  timeout: 15\n"
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Lahza.Timeout.Duration != 15*time.Second {
		t.Errorf("timeout = %s, want 15s", cfg.Lahza.Timeout)
	}
}
