package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/templui/paykit/internal/config"
	"github.com/templui/paykit/internal/model"
)

type LemonSqueezyProvider struct {
	api           lemonSqueezyAPI
	webhookSecret string
	settings
}

func NewLemonSqueezyProvider(cfg *config.Config) (*LemonSqueezyProvider, error) {
	if cfg.LemonSqueezyAPIKey == "" {
		return nil, fmt.Errorf("%w: LEMONSQUEEZY_API_KEY is required when using Lemon Squeezy provider", ErrConfiguration)
	}
	if cfg.LemonSqueezyStoreID == "" {
		return nil, fmt.Errorf("%w: LEMONSQUEEZY_STORE_ID is required when using Lemon Squeezy provider", ErrConfiguration)
	}
	if cfg.LemonSqueezyWebhookSecret == "" {
		return nil, fmt.Errorf("%w: LEMONSQUEEZY_WEBHOOK_SECRET is required when using Lemon Squeezy provider", ErrConfiguration)
	}

	storeID, err := strconv.Atoi(cfg.LemonSqueezyStoreID)
	if err != nil {
		return nil, fmt.Errorf("%w: LEMONSQUEEZY_STORE_ID must be numeric: %v", ErrConfiguration, err)
	}

	slog.Info("lemonsqueezy provider initialized", "app_env", cfg.AppEnv, "store_id", storeID)

	return &LemonSqueezyProvider{
		api:           newLemonSqueezyClient(cfg.LemonSqueezyAPIKey, storeID),
		webhookSecret: cfg.LemonSqueezyWebhookSecret,
		settings:      settingsFrom(cfg),
	}, nil
}

func (l *LemonSqueezyProvider) Name() string {
	return model.ProviderLemonSqueezy
}

func (l *LemonSqueezyProvider) CreateCheckout(ctx context.Context, opts CheckoutOptions) (*CheckoutResult, error) {
	price, err := l.checkoutPrice(model.ProviderLemonSqueezy, opts.Plan, opts.Interval)
	if err != nil {
		return nil, err
	}

	customer, err := l.CreateCustomer(ctx, opts.UserID, opts.Email)
	if err != nil {
		return nil, err
	}

	raw, err := l.api.CreateCheckout(ctx, lemonSqueezyCheckoutRequest{
		VariantID:   price.ProductID,
		RedirectURL: firstNonEmpty(opts.SuccessURL, l.successURL),
		Email:       opts.Email,
		Custom: map[string]any{
			"user_id":  opts.UserID,
			"plan":     opts.Plan,
			"provider": model.ProviderLemonSqueezy,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create checkout: %v", ErrProvider, err)
	}

	var doc lemonSqueezyDocument[lemonSqueezyCheckoutAttributes]
	err = json.Unmarshal(raw, &doc)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse checkout: %v", ErrProvider, err)
	}
	if doc.Data.Attributes.URL == "" {
		return nil, fmt.Errorf("%w: checkout has no url", ErrProvider)
	}

	slog.Info("lemonsqueezy checkout created", "user_id", opts.UserID, "plan", opts.Plan, "checkout_id", doc.Data.ID)

	return &CheckoutResult{
		URL:       doc.Data.Attributes.URL,
		SessionID: doc.Data.ID,
		Customer:  customer,
	}, nil
}

// CreateCustomer returns a provisional customer. Lemon Squeezy has no customer
// creation primitive, the real id arrives with the first webhook.
func (l *LemonSqueezyProvider) CreateCustomer(_ context.Context, userID, email string) (*CustomerData, error) {
	return &CustomerData{
		UserID:             userID,
		ProviderCustomerID: model.ProvisionalCustomerID(model.ProviderLemonSqueezy, userID),
		Email:              email,
		Provisional:        true,
	}, nil
}

func (l *LemonSqueezyProvider) Subscription(ctx context.Context, providerSubscriptionID string) (*SubscriptionData, error) {
	raw, err := l.api.GetSubscription(ctx, providerSubscriptionID)
	if err != nil {
		if errors.Is(err, errLemonSqueezyNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: failed to get subscription: %v", ErrProvider, err)
	}

	var doc lemonSqueezyDocument[lemonSqueezySubscriptionAttributes]
	err = json.Unmarshal(raw, &doc)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse subscription: %v", ErrProvider, err)
	}

	return l.subscriptionData(doc.Data.ID, doc.Data.Attributes, ""), nil
}

// CancelSubscription cancels at period end. Lemon Squeezy's API has no immediate
// cancellation, so atPeriodEnd=false behaves the same.
func (l *LemonSqueezyProvider) CancelSubscription(ctx context.Context, providerSubscriptionID string, atPeriodEnd bool) error {
	err := l.api.CancelSubscription(ctx, providerSubscriptionID)
	if err != nil {
		return fmt.Errorf("%w: failed to cancel subscription: %v", ErrProvider, err)
	}

	slog.Info("lemonsqueezy subscription canceled", "subscription_id", providerSubscriptionID, "at_period_end", atPeriodEnd)
	return nil
}

func (l *LemonSqueezyProvider) CreatePortal(ctx context.Context, providerCustomerID, _ string) (*PortalResult, error) {
	if model.IsProvisionalCustomerID(providerCustomerID) {
		return nil, fmt.Errorf("%w: lemonsqueezy customer not confirmed yet", ErrNotFound)
	}

	raw, err := l.api.GetCustomer(ctx, providerCustomerID)
	if err != nil {
		if errors.Is(err, errLemonSqueezyNotFound) {
			return nil, fmt.Errorf("%w: lemonsqueezy customer %s", ErrNotFound, providerCustomerID)
		}
		return nil, fmt.Errorf("%w: failed to get customer: %v", ErrProvider, err)
	}

	var doc lemonSqueezyDocument[lemonSqueezyCustomerAttributes]
	err = json.Unmarshal(raw, &doc)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse customer: %v", ErrProvider, err)
	}

	url := doc.Data.Attributes.URLs.CustomerPortal
	if url == "" {
		return nil, fmt.Errorf("%w: customer portal URL not found", ErrNotFound)
	}

	return &PortalResult{URL: url}, nil
}

// ValidateWebhook compares the X-Signature header with the hex HMAC-SHA256 of the body.
func (l *LemonSqueezyProvider) ValidateWebhook(payload []byte, sig WebhookSignature) bool {
	if l.webhookSecret == "" || sig.Value == "" {
		return false
	}

	expected, err := hex.DecodeString(strings.TrimSpace(sig.Value))
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, []byte(l.webhookSecret))
	mac.Write(payload)
	return hmac.Equal(mac.Sum(nil), expected)
}

func (l *LemonSqueezyProvider) ProcessWebhook(event WebhookEvent) (*WebhookResult, error) {
	switch event.Type {
	case "subscription_created",
		"subscription_updated",
		"subscription_cancelled",
		"subscription_expired",
		"subscription_paused",
		"subscription_unpaused",
		"subscription_resumed":
		var body lemonSqueezyWebhook[lemonSqueezySubscriptionAttributes]
		err := json.Unmarshal(event.Data, &body)
		if err != nil {
			return nil, fmt.Errorf("failed to parse subscription: %w", err)
		}

		userID := body.Meta.CustomData.userID()
		attrs := body.Data.Attributes
		data := l.subscriptionData(body.Data.ID, attrs, userID)
		data.EventAt = event.OccurredAt

		result := &WebhookResult{Processed: true, Subscription: data}
		if userID != "" && attrs.CustomerID != 0 {
			result.Customer = &CustomerData{
				UserID:             userID,
				ProviderCustomerID: idString(attrs.CustomerID),
				Email:              attrs.UserEmail,
				EventAt:            event.OccurredAt,
			}
		}
		return result, nil

	case "subscription_payment_success",
		"subscription_payment_failed",
		"subscription_payment_refunded":
		var body lemonSqueezyWebhook[lemonSqueezyInvoiceAttributes]
		err := json.Unmarshal(event.Data, &body)
		if err != nil {
			return nil, fmt.Errorf("failed to parse subscription invoice: %w", err)
		}

		attrs := body.Data.Attributes
		payment := &PaymentData{
			UserID:                 body.Meta.CustomData.userID(),
			ProviderCustomerID:     idString(attrs.CustomerID),
			ProviderSubscriptionID: idString(attrs.SubscriptionID),
			ProviderPaymentID:      body.Data.ID,
			Type:                   model.PaymentTypeSubscription,
			Status:                 model.PaymentStatusSucceeded,
			Amount:                 attrs.Total,
			Currency:               strings.ToLower(attrs.Currency),
			Description:            "Subscription payment " + body.Data.ID,
			EventAt:                event.OccurredAt,
		}
		switch event.Type {
		case "subscription_payment_failed":
			payment.Status = model.PaymentStatusFailed
		case "subscription_payment_refunded":
			payment.Type = model.PaymentTypeRefund
			payment.Status = model.PaymentStatusRefunded
		}
		return &WebhookResult{Processed: true, Payment: payment}, nil

	case "order_created", "order_refunded":
		var body lemonSqueezyWebhook[lemonSqueezyOrderAttributes]
		err := json.Unmarshal(event.Data, &body)
		if err != nil {
			return nil, fmt.Errorf("failed to parse order: %w", err)
		}

		attrs := body.Data.Attributes
		// Subscription charges also arrive as subscription_payment_* invoices,
		// which own them.
		if l.isRecurringVariant(attrs.FirstOrderItem.VariantID) {
			slog.Info("lemonsqueezy subscription order skipped", "event_type", event.Type, "order_id", body.Data.ID)
			return &WebhookResult{Processed: true}, nil
		}

		payment := &PaymentData{
			UserID:             body.Meta.CustomData.userID(),
			ProviderCustomerID: idString(attrs.CustomerID),
			ProviderPaymentID:  body.Data.ID,
			Type:               model.PaymentTypeOneTime,
			Status:             mapLemonSqueezyOrderStatus(attrs.Status),
			Amount:             attrs.Total,
			Currency:           strings.ToLower(attrs.Currency),
			Description:        "Order " + firstNonEmpty(attrs.Identifier, body.Data.ID),
			EventAt:            event.OccurredAt,
		}
		if event.Type == "order_refunded" {
			payment.Type = model.PaymentTypeRefund
			payment.Status = model.PaymentStatusRefunded
		}
		return &WebhookResult{Processed: true, Payment: payment}, nil
	}

	return &WebhookResult{Processed: true}, nil
}

func (l *LemonSqueezyProvider) isRecurringVariant(variantID int64) bool {
	if variantID == 0 {
		return false
	}
	price, ok := l.plans.PriceForProduct(model.ProviderLemonSqueezy, idString(variantID))
	return ok && price.Type == config.PriceTypeRecurring
}

func (l *LemonSqueezyProvider) subscriptionData(id string, attrs lemonSqueezySubscriptionAttributes, userID string) *SubscriptionData {
	variantID := idString(attrs.VariantID)

	data := &SubscriptionData{
		UserID:                 userID,
		ProviderCustomerID:     idString(attrs.CustomerID),
		ProviderSubscriptionID: id,
		Status:                 mapLemonSqueezyStatus(attrs.Status),
		Plan:                   l.plans.PlanForProduct(model.ProviderLemonSqueezy, variantID),
		CurrentPeriodStart:     parseTime(attrs.CreatedAt),
		CurrentPeriodEnd:       parseTime(attrs.RenewsAt),
		CancelAtPeriodEnd:      attrs.Cancelled,
		TrialEnd:               parseTime(attrs.TrialEndsAt),
	}

	if attrs.Cancelled || attrs.Status == "cancelled" || attrs.Status == "expired" {
		data.CanceledAt = parseTime(attrs.EndsAt)
	}

	// The subscription object carries no price, the catalog variant does.
	if price, ok := l.plans.PriceForProduct(model.ProviderLemonSqueezy, variantID); ok {
		data.Interval = normalizeInterval(price.Interval)
		data.Amount = int64Ptr(price.Amount)
		data.Currency = stringPtr(price.Currency)
	} else if strings.Contains(strings.ToLower(attrs.VariantName), "year") {
		data.Interval = normalizeInterval(model.IntervalYear)
	} else {
		data.Interval = normalizeInterval(model.IntervalMonth)
	}

	return data
}

func mapLemonSqueezyStatus(status string) string {
	switch status {
	case "active":
		return model.SubscriptionStatusActive
	case "on_trial":
		return model.SubscriptionStatusTrialing
	case "past_due":
		return model.SubscriptionStatusPastDue
	case "cancelled", "expired":
		return model.SubscriptionStatusCanceled
	case "paused":
		return model.SubscriptionStatusPaused
	default:
		return model.SubscriptionStatusIncomplete
	}
}

func mapLemonSqueezyOrderStatus(status string) string {
	switch status {
	case "paid":
		return model.PaymentStatusSucceeded
	case "failed":
		return model.PaymentStatusFailed
	case "refunded":
		return model.PaymentStatusRefunded
	default:
		return model.PaymentStatusPending
	}
}
