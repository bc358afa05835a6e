package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	standardwebhooks "github.com/standard-webhooks/standard-webhooks/libraries/go"
	"github.com/templui/paykit/internal/config"
	"github.com/templui/paykit/internal/model"
)

type PolarProvider struct {
	api      polarAPI
	verifier *standardwebhooks.Webhook
	settings
}

func NewPolarProvider(cfg *config.Config) (*PolarProvider, error) {
	if cfg.PolarAccessToken == "" {
		return nil, fmt.Errorf("%w: POLAR_ACCESS_TOKEN is required when using Polar provider", ErrConfiguration)
	}
	if cfg.PolarWebhookSecret == "" {
		return nil, fmt.Errorf("%w: POLAR_WEBHOOK_SECRET is required when using Polar provider", ErrConfiguration)
	}

	verifier, err := standardwebhooks.NewWebhookRaw([]byte(cfg.PolarWebhookSecret))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create webhook verifier: %v", ErrConfiguration, err)
	}

	if cfg.PolarSandboxMode {
		slog.Info("polar using sandbox mode", "app_env", cfg.AppEnv)
	} else {
		slog.Info("polar using production mode", "app_env", cfg.AppEnv)
	}

	return &PolarProvider{
		api:      newPolarClient(cfg.PolarAccessToken, cfg.PolarSandboxMode),
		verifier: verifier,
		settings: settingsFrom(cfg),
	}, nil
}

func (p *PolarProvider) Name() string {
	return model.ProviderPolar
}

func (p *PolarProvider) CreateCheckout(ctx context.Context, opts CheckoutOptions) (*CheckoutResult, error) {
	price, err := p.checkoutPrice(model.ProviderPolar, opts.Plan, opts.Interval)
	if err != nil {
		return nil, err
	}

	// Polar creates the customer during checkout
	customer, err := p.CreateCustomer(ctx, opts.UserID, opts.Email)
	if err != nil {
		return nil, err
	}

	id, url, err := p.api.CreateCheckout(ctx, polarCheckoutRequest{
		ProductID:  price.ProductID,
		SuccessURL: firstNonEmpty(opts.SuccessURL, p.successURL),
		ReturnURL:  firstNonEmpty(opts.CancelURL, p.cancelURL),
		Email:      opts.Email,
		Metadata: map[string]string{
			"user_id":  opts.UserID,
			"plan":     opts.Plan,
			"provider": model.ProviderPolar,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create checkout: %v", ErrProvider, err)
	}

	slog.Info("polar checkout created", "user_id", opts.UserID, "plan", opts.Plan, "checkout_id", id)

	return &CheckoutResult{
		URL:       url,
		SessionID: id,
		Customer:  customer,
	}, nil
}

// CreateCustomer returns a provisional customer. Polar assigns the real id during
// checkout and reports it through webhooks.
func (p *PolarProvider) CreateCustomer(_ context.Context, userID, email string) (*CustomerData, error) {
	return &CustomerData{
		UserID:             userID,
		ProviderCustomerID: model.ProvisionalCustomerID(model.ProviderPolar, userID),
		Email:              email,
		Provisional:        true,
	}, nil
}

func (p *PolarProvider) Subscription(ctx context.Context, providerSubscriptionID string) (*SubscriptionData, error) {
	raw, err := p.api.GetSubscription(ctx, providerSubscriptionID)
	if err != nil {
		if isPolarNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: failed to get subscription: %v", ErrProvider, err)
	}

	var sub polarSubscription
	err = json.Unmarshal(raw, &sub)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse subscription: %v", ErrProvider, err)
	}

	return p.subscriptionData(sub), nil
}

func (p *PolarProvider) CancelSubscription(ctx context.Context, providerSubscriptionID string, atPeriodEnd bool) error {
	err := p.api.CancelSubscription(ctx, providerSubscriptionID, atPeriodEnd)
	if err != nil {
		return fmt.Errorf("%w: failed to cancel subscription: %v", ErrProvider, err)
	}

	slog.Info("polar subscription canceled", "subscription_id", providerSubscriptionID, "at_period_end", atPeriodEnd)
	return nil
}

func (p *PolarProvider) CreatePortal(ctx context.Context, providerCustomerID, returnURL string) (*PortalResult, error) {
	if model.IsProvisionalCustomerID(providerCustomerID) {
		return nil, fmt.Errorf("%w: polar customer not confirmed yet", ErrNotFound)
	}

	url, err := p.api.CreateCustomerSession(ctx, providerCustomerID, firstNonEmpty(returnURL, p.portalReturnURL))
	if err != nil {
		if isPolarNotFound(err) {
			return nil, fmt.Errorf("%w: polar customer %s", ErrNotFound, providerCustomerID)
		}
		return nil, fmt.Errorf("%w: failed to create customer portal session: %v", ErrProvider, err)
	}

	return &PortalResult{URL: url}, nil
}

// ValidateWebhook verifies the Standard Webhooks signature Polar sends.
func (p *PolarProvider) ValidateWebhook(payload []byte, sig WebhookSignature) bool {
	if p.verifier == nil || sig.Value == "" {
		return false
	}

	headers := http.Header{}
	headers.Set(HeaderWebhookID, sig.MessageID)
	headers.Set(HeaderWebhookTimestamp, sig.Timestamp)
	headers.Set(HeaderWebhookSignature, sig.Value)

	err := p.verifier.Verify(payload, headers)
	if err != nil {
		slog.Warn("polar webhook signature validation failed", "error", err)
		return false
	}
	return true
}

func (p *PolarProvider) ProcessWebhook(event WebhookEvent) (*WebhookResult, error) {
	switch event.Type {
	case "customer.created", "customer.updated":
		var c polarCustomer
		err := json.Unmarshal(event.Data, &c)
		if err != nil {
			return nil, fmt.Errorf("failed to parse customer: %w", err)
		}
		return &WebhookResult{
			Processed: true,
			Customer: &CustomerData{
				UserID:             c.userID(),
				ProviderCustomerID: c.ID,
				Email:              c.Email,
				EventAt:            event.OccurredAt,
			},
		}, nil

	case "subscription.created",
		"subscription.updated",
		"subscription.active",
		"subscription.canceled",
		"subscription.uncanceled",
		"subscription.revoked":
		var sub polarSubscription
		err := json.Unmarshal(event.Data, &sub)
		if err != nil {
			return nil, fmt.Errorf("failed to parse subscription: %w", err)
		}

		data := p.subscriptionData(sub)
		data.EventAt = event.OccurredAt

		result := &WebhookResult{Processed: true, Subscription: data}
		if sub.Customer != nil && sub.Customer.ID != "" {
			result.Customer = &CustomerData{
				UserID:             data.UserID,
				ProviderCustomerID: sub.Customer.ID,
				Email:              sub.Customer.Email,
				EventAt:            event.OccurredAt,
			}
		}
		return result, nil

	case "order.paid", "order.refunded":
		var o polarOrder
		err := json.Unmarshal(event.Data, &o)
		if err != nil {
			return nil, fmt.Errorf("failed to parse order: %w", err)
		}
		return &WebhookResult{Processed: true, Payment: p.paymentData(o, event)}, nil
	}

	return &WebhookResult{Processed: true}, nil
}

func (p *PolarProvider) subscriptionData(sub polarSubscription) *SubscriptionData {
	data := &SubscriptionData{
		UserID:                 sub.userID(),
		ProviderCustomerID:     firstNonEmpty(sub.CustomerID, sub.Customer.id()),
		ProviderSubscriptionID: sub.ID,
		Status:                 mapPolarStatus(sub.Status),
		Plan:                   p.plans.PlanForProduct(model.ProviderPolar, firstNonEmpty(sub.ProductID, sub.Product.id())),
		Interval:               normalizeInterval(sub.RecurringInterval),
		Currency:               stringPtr(sub.Currency),
		CurrentPeriodStart:     parseTime(sub.CurrentPeriodStart),
		CurrentPeriodEnd:       parseTime(sub.CurrentPeriodEnd),
		CancelAtPeriodEnd:      sub.CancelAtPeriodEnd,
		CanceledAt:             parseTime(sub.CanceledAt),
		TrialStart:             parseTime(sub.TrialStart),
		TrialEnd:               parseTime(sub.TrialEnd),
	}
	if sub.Amount != nil {
		data.Amount = int64Ptr(*sub.Amount)
	}
	return data
}

func (p *PolarProvider) paymentData(o polarOrder, event WebhookEvent) *PaymentData {
	payment := &PaymentData{
		UserID:                 o.userID(),
		ProviderCustomerID:     firstNonEmpty(o.CustomerID, o.Customer.id()),
		ProviderSubscriptionID: o.SubscriptionID,
		ProviderPaymentID:      o.ID,
		Type:                   model.PaymentTypeOneTime,
		Status:                 model.PaymentStatusSucceeded,
		Amount:                 o.amount(),
		Currency:               firstNonEmpty(o.Currency, "usd"),
		Description:            "Payment for " + firstNonEmpty(o.Product.name(), "product"),
		EventAt:                event.OccurredAt,
	}
	if o.SubscriptionID != "" {
		payment.Type = model.PaymentTypeSubscription
	}
	if event.Type == "order.refunded" {
		payment.Type = model.PaymentTypeRefund
		payment.Status = model.PaymentStatusRefunded
		if o.RefundedAmount > 0 {
			payment.Amount = o.RefundedAmount
		}
	}
	return payment
}

func mapPolarStatus(status string) string {
	switch status {
	case "active":
		return model.SubscriptionStatusActive
	case "canceled":
		return model.SubscriptionStatusCanceled
	case "past_due":
		return model.SubscriptionStatusPastDue
	case "trialing":
		return model.SubscriptionStatusTrialing
	case "incomplete", "incomplete_expired":
		return model.SubscriptionStatusIncomplete
	default:
		return model.SubscriptionStatusIncomplete
	}
}
