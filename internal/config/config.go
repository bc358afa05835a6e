package config

import (
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Application
	AppName string
	AppEnv  string
	AppURL  string
	Port    string

	// Database (optional driver switch via ENV, default: sqlite)
	DBDriver     string
	DBConnection string

	// Security
	JWTSecret string
	JWTExpiry time.Duration

	// Email
	EmailFrom    string
	ResendAPIKey string

	// Observability (optional)
	SentryDSN string

	// Payment
	PaymentProvider    string // "stripe", "polar" or "lemonsqueezy"
	CheckoutSuccessURL string
	CheckoutCancelURL  string
	PortalReturnURL    string
	// Payment - Stripe
	StripeSecretKey     string
	StripeWebhookSecret string
	// Payment - Polar
	PolarAccessToken   string
	PolarWebhookSecret string
	PolarSandboxMode   bool
	// Payment - Lemon Squeezy
	LemonSqueezyAPIKey        string
	LemonSqueezyStoreID       string
	LemonSqueezyWebhookSecret string

	// Plans is the static catalog mapping plan x provider to vendor prices.
	Plans Catalog
}

func Load() *Config {
	// Load .env file if it exists
	err := godotenv.Load()
	if err != nil {
		slog.Info("no .env file found, using environment variables")
	}

	appURL := envRequired("APP_URL") // Required: base URL for checkout redirects

	cfg := &Config{
		// Application
		AppName: envString("APP_NAME", "Acme"),
		AppEnv:  envRequired("APP_ENV"), // Required: 'development' or 'production'
		AppURL:  appURL,
		Port:    envString("PORT", "8090"),

		// Database
		DBDriver:     envString("DB_DRIVER", "sqlite"),
		DBConnection: envString("DB_CONNECTION", "./data/paykit.db?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"),

		// Security
		JWTSecret: envRequired("JWT_SECRET"),
		JWTExpiry: envDuration("JWT_EXPIRY", 168*time.Hour), // 7 days

		// Email (RESEND_API_KEY optional in development, required in production)
		EmailFrom:    envString("EMAIL_FROM", "billing@example.com"),
		ResendAPIKey: envString("RESEND_API_KEY", ""),

		// Observability
		SentryDSN: envString("SENTRY_DSN", ""),

		// Payment (provider selection and configuration)
		PaymentProvider:    envString("PAYMENT_PROVIDER", "stripe"), // Default: stripe
		CheckoutSuccessURL: envString("CHECKOUT_SUCCESS_URL", appURL+"/dashboard?checkout=success"),
		CheckoutCancelURL:  envString("CHECKOUT_CANCEL_URL", appURL+"/dashboard?checkout=canceled"),
		PortalReturnURL:    envString("PORTAL_RETURN_URL", appURL+"/dashboard"),

		StripeSecretKey:     envString("STRIPE_SECRET_KEY", ""),
		StripeWebhookSecret: envString("STRIPE_WEBHOOK_SECRET", ""),

		PolarAccessToken:   envString("POLAR_ACCESS_TOKEN", envString("POLAR_API_KEY", "")),
		PolarWebhookSecret: envString("POLAR_WEBHOOK_SECRET", ""),
		PolarSandboxMode:   envBool("POLAR_SANDBOX_MODE", envString("APP_ENV", "development") == "development"),

		LemonSqueezyAPIKey:        envString("LEMONSQUEEZY_API_KEY", ""),
		LemonSqueezyStoreID:       envString("LEMONSQUEEZY_STORE_ID", ""),
		LemonSqueezyWebhookSecret: envString("LEMONSQUEEZY_WEBHOOK_SECRET", ""),

		Plans: DefaultCatalog(envString),
	}

	// Production: validate required services
	if cfg.IsProduction() {
		validateProduction(cfg)
	}

	return cfg
}

// validateProduction ensures all required services are configured for production deployments.
// Development allows email to use log mode for easier local testing.
func validateProduction(cfg *Config) {
	if cfg.ResendAPIKey == "" {
		slog.Error("production deployment requires RESEND_API_KEY",
			"hint", "set APP_ENV=development for local testing with email log mode")
		os.Exit(1)
	}
}

func envString(key, def string) string {
	value := os.Getenv(key)
	if value == "" {
		value = def
	}
	return value
}

func envBool(key string, def bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		slog.Warn("config invalid bool, using default", "key", key, "value", v, "default", def)
		return def
	}
	return b
}

func envDuration(key string, def time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		slog.Warn("config invalid duration, using default", "key", key, "value", v, "default", def)
		return def
	}
	return d
}

func envRequired(key string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	slog.Error("config required env var missing", "key", key)
	os.Exit(1)
	return ""
}

func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}
