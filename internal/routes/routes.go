package routes

import (
	"net/http"
	"time"

	"github.com/templui/paykit/internal/app"
	"github.com/templui/paykit/internal/handler"
	"github.com/templui/paykit/internal/metrics"
	"github.com/templui/paykit/internal/middleware"
)

func SetupRoutes(app *app.App) http.Handler {
	// Handlers
	billing := handler.NewBillingHandler(app.BillingService, app.WebhookService)
	health := handler.NewHealthHandler(app.Store, app.PaymentProvider.Name())

	mux := http.NewServeMux()

	// ============================================================================
	// OPERATIONS
	// ============================================================================

	mux.HandleFunc("GET /healthz", health.Healthz)
	mux.Handle("GET /metrics", metrics.Handler(app.Registry))

	// ============================================================================
	// PAYMENTS API (authenticated)
	// ============================================================================

	// Vendor sessions are rate limited per user
	rateLimiter := middleware.RateLimit(10, time.Minute)

	mux.HandleFunc("POST /api/payments/checkout", middleware.RequireAuth(rateLimiter(billing.CreateCheckout)))
	mux.HandleFunc("POST /api/payments/portal", middleware.RequireAuth(rateLimiter(billing.CustomerPortal)))
	mux.HandleFunc("GET /api/payments/subscription", middleware.RequireAuth(billing.Subscription))
	mux.HandleFunc("POST /api/payments/subscription/cancel", middleware.RequireAuth(rateLimiter(billing.CancelSubscription)))

	// ============================================================================
	// WEBHOOKS
	// ============================================================================

	// Payment provider webhook (Stripe, Polar or Lemon Squeezy, whichever is active)
	mux.HandleFunc("POST /api/webhooks/payments", billing.Webhook)
	mux.HandleFunc("POST /webhooks/payment", billing.Webhook)

	// Global middleware - executed in order (top to bottom)
	handler := middleware.Chain(
		mux,
		middleware.AuthMiddleware(app.AuthService, app.UserService), // before logging so the user id is logged
		middleware.RequestLogging,
	)

	return handler
}
