package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

const defaultScanLimit = 25

type Config struct {
	Port string

	DatabaseURL string

	StripeSecretKey     string
	StripeWebhookSecret string
	// StripeScanLimit bounds session/subscription list scans during
	// reconciliation so a fallback lookup can never page through the
	// whole account.
	StripeScanLimit int64

	SentryDSN      string
	AllowedOrigins []string
}

func New() (*Config, error) {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, errors.New("DATABASE_URL environment variable is required")
	}

	stripeSecretKey := os.Getenv("STRIPE_SECRET_KEY")
	if stripeSecretKey == "" {
		return nil, errors.New("STRIPE_SECRET_KEY environment variable is required")
	}

	stripeWebhookSecret := os.Getenv("STRIPE_WEBHOOK_SECRET")
	if stripeWebhookSecret == "" {
		return nil, errors.New("STRIPE_WEBHOOK_SECRET environment variable is required")
	}

	scanLimit := int64(defaultScanLimit)
	if raw := os.Getenv("STRIPE_SCAN_LIMIT"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parsed <= 0 {
			return nil, fmt.Errorf("STRIPE_SCAN_LIMIT must be a positive integer, got %q", raw)
		}
		scanLimit = parsed
	}

	origins := []string{"*"}
	if raw := os.Getenv("ALLOWED_ORIGINS"); raw != "" {
		origins = origins[:0]
		for _, o := range strings.Split(raw, ",") {
			if trimmed := strings.TrimSpace(o); trimmed != "" {
				origins = append(origins, trimmed)
			}
		}
	}

	return &Config{
		Port:                port,
		DatabaseURL:         dbURL,
		StripeSecretKey:     stripeSecretKey,
		StripeWebhookSecret: stripeWebhookSecret,
		StripeScanLimit:     scanLimit,
		SentryDSN:           os.Getenv("SENTRY_DSN"),
		AllowedOrigins:      origins,
	}, nil
}
