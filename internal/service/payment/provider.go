package payment

import "context"

// Provider is the uniform capability set every billing vendor adapter implements.
// Implementations are immutable after construction and safe for concurrent use.
type Provider interface {
	// Name returns the provider name (e.g., "polar", "stripe")
	Name() string

	// CreateCheckout creates a hosted checkout for a catalog plan.
	CreateCheckout(ctx context.Context, opts CheckoutOptions) (*CheckoutResult, error)

	// CreateCustomer resolves the vendor customer for a user. Vendors without a
	// customer primitive return a provisional customer.
	CreateCustomer(ctx context.Context, userID, email string) (*CustomerData, error)

	// Subscription fetches vendor state. It returns nil, nil when the vendor reports not found.
	Subscription(ctx context.Context, providerSubscriptionID string) (*SubscriptionData, error)

	CancelSubscription(ctx context.Context, providerSubscriptionID string, atPeriodEnd bool) error

	// CreatePortal returns a self-service billing portal url. ErrNotFound when the
	// customer has no portal.
	CreatePortal(ctx context.Context, providerCustomerID, returnURL string) (*PortalResult, error)

	// ProcessWebhook interprets a normalized event without performing I/O.
	// Unknown event types yield Processed with no deltas.
	ProcessWebhook(event WebhookEvent) (*WebhookResult, error)

	// ValidateWebhook reports whether payload carries a genuine vendor signature.
	ValidateWebhook(payload []byte, sig WebhookSignature) bool
}
