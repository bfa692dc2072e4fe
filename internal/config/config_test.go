package config

import (
	"strings"
	"testing"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "test.db")
	t.Setenv("STRIPE_SECRET_KEY", "sk_test_123")
	t.Setenv("STRIPE_WEBHOOK_SECRET", "whsec_test")
}

func TestNew_Defaults(t *testing.T) {
	setRequired(t)
	t.Setenv("PORT", "")
	t.Setenv("STRIPE_SCAN_LIMIT", "")
	t.Setenv("ALLOWED_ORIGINS", "")

	cfg, err := New()
	if err != nil {
		t.Fatalf("Expected config to load: %v", err)
	}
	if cfg.Port != "8080" {
		t.Errorf("Expected default port 8080, got %q", cfg.Port)
	}
	if cfg.StripeScanLimit != defaultScanLimit {
		t.Errorf("Expected default scan limit %d, got %d", defaultScanLimit, cfg.StripeScanLimit)
	}
	if len(cfg.AllowedOrigins) != 1 || cfg.AllowedOrigins[0] != "*" {
		t.Errorf("Expected wildcard origins, got %v", cfg.AllowedOrigins)
	}
}

func TestNew_MissingRequired(t *testing.T) {
	cases := []string{"DATABASE_URL", "STRIPE_SECRET_KEY", "STRIPE_WEBHOOK_SECRET"}

	for _, missing := range cases {
		t.Run(missing, func(t *testing.T) {
			setRequired(t)
			t.Setenv(missing, "")

			_, err := New()
			if err == nil {
				t.Fatalf("Expected an error when %s is missing", missing)
			}
			if !strings.Contains(err.Error(), missing) {
				t.Errorf("Expected error to name %s, got %q", missing, err)
			}
		})
	}
}

func TestNew_ScanLimit(t *testing.T) {
	setRequired(t)
	t.Setenv("STRIPE_SCAN_LIMIT", "50")

	cfg, err := New()
	if err != nil {
		t.Fatalf("Expected config to load: %v", err)
	}
	if cfg.StripeScanLimit != 50 {
		t.Errorf("Expected scan limit 50, got %d", cfg.StripeScanLimit)
	}

	t.Setenv("STRIPE_SCAN_LIMIT", "-1")
	if _, err := New(); err == nil {
		t.Error("Expected an error for a non-positive scan limit")
	}

	t.Setenv("STRIPE_SCAN_LIMIT", "lots")
	if _, err := New(); err == nil {
		t.Error("Expected an error for a non-numeric scan limit")
	}
}

func TestNew_AllowedOrigins(t *testing.T) {
	setRequired(t)
	t.Setenv("ALLOWED_ORIGINS", "https://intently.app, chrome-extension://abc123")

	cfg, err := New()
	if err != nil {
		t.Fatalf("Expected config to load: %v", err)
	}
	if len(cfg.AllowedOrigins) != 2 {
		t.Fatalf("Expected 2 origins, got %v", cfg.AllowedOrigins)
	}
	if cfg.AllowedOrigins[1] != "chrome-extension://abc123" {
		t.Errorf("Expected trimmed origin, got %q", cfg.AllowedOrigins[1])
	}
}
