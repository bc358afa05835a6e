package app

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/templui/paykit/internal/config"
	"github.com/templui/paykit/internal/db"
	"github.com/templui/paykit/internal/metrics"
	"github.com/templui/paykit/internal/repository"
	"github.com/templui/paykit/internal/service"
	"github.com/templui/paykit/internal/service/payment"
)

type App struct {
	Cfg             *config.Config
	DB              *sqlx.DB
	Store           *repository.Store
	Registry        *prometheus.Registry
	PaymentProvider payment.Provider
	AuthService     *service.AuthService
	UserService     *service.UserService
	EmailService    *service.EmailService
	WebhookService  *service.WebhookService
	BillingService  *service.BillingService
}

func New(cfg *config.Config) (*App, error) {
	// Initialize payment provider first so bad credentials fail before touching the database
	paymentProvider, err := payment.NewProvider(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize payment provider: %w", err)
	}

	database, err := db.Init(cfg.DBDriver, cfg.DBConnection)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	err = db.RunMigrations(database.DB, cfg.DBDriver)
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return Wire(cfg, database, paymentProvider, metrics.NewRegistry()), nil
}

// Wire assembles the services around an open database and a constructed provider.
func Wire(cfg *config.Config, database *sqlx.DB, provider payment.Provider, registry *prometheus.Registry) *App {
	store := repository.NewStore(database)
	billingMetrics := metrics.NewBillingMetrics(registry)

	emailService := service.NewEmailService(
		cfg.ResendAPIKey,
		cfg.EmailFrom,
		cfg.AppURL,
		cfg.AppName,
		cfg.IsDevelopment(),
	)
	authService := service.NewAuthService(cfg.JWTSecret, cfg.IsProduction(), cfg.JWTExpiry)
	userService := service.NewUserService(store)
	webhookService := service.NewWebhookService(provider, store, billingMetrics, emailService)
	billingService := service.NewBillingService(provider, store, webhookService, cfg.Plans, billingMetrics)

	return &App{
		Cfg:             cfg,
		DB:              database,
		Store:           store,
		Registry:        registry,
		PaymentProvider: provider,
		AuthService:     authService,
		UserService:     userService,
		EmailService:    emailService,
		WebhookService:  webhookService,
		BillingService:  billingService,
	}
}

func (a *App) Close() error {
	if a.DB != nil {
		return a.DB.Close()
	}
	return nil
}
