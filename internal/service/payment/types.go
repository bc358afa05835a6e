package payment

import (
	"encoding/json"
	"time"
)

type CheckoutOptions struct {
	Plan     string
	Interval string // defaults to month
	UserID   string
	Email    string
	// Empty URLs fall back to the configured defaults.
	SuccessURL string
	CancelURL  string
	// TrialDays overrides the catalog trial length when set.
	TrialDays *int
}

type CheckoutResult struct {
	URL       string `json:"url"`
	SessionID string `json:"sessionId"`
	// Customer is the vendor customer the checkout is bound to, provisional for
	// vendors that only reveal the customer through webhooks.
	Customer *CustomerData `json:"-"`
}

type PortalResult struct {
	URL string `json:"url"`
}

// CustomerData is a customer delta.
type CustomerData struct {
	UserID             string
	ProviderCustomerID string
	Email              string
	Provisional        bool
	EventAt            time.Time
}

// SubscriptionData is a subscription delta in normalized form.
type SubscriptionData struct {
	UserID                 string
	ProviderCustomerID     string
	ProviderSubscriptionID string
	Status                 string
	Plan                   string
	Interval               *string
	Amount                 *int64
	Currency               *string
	CurrentPeriodStart     *time.Time
	CurrentPeriodEnd       *time.Time
	CancelAtPeriodEnd      bool
	CanceledAt             *time.Time
	TrialStart             *time.Time
	TrialEnd               *time.Time
	EventAt                time.Time
}

// PaymentData is a payment delta. Amount is in the currency's minor unit.
type PaymentData struct {
	UserID                 string
	ProviderCustomerID     string
	ProviderSubscriptionID string
	ProviderPaymentID      string
	Type                   string
	Status                 string
	Amount                 int64
	Currency               string
	Description            string
	EventAt                time.Time
}

// WebhookEvent is the vendor-agnostic envelope handed to ProcessWebhook.
type WebhookEvent struct {
	Type     string
	Provider string
	// Data is the event object (Stripe data.object, Polar data, Lemon Squeezy full body).
	Data json.RawMessage
	Raw  json.RawMessage
	// OccurredAt is the vendor's event timestamp, zero when the payload has none.
	OccurredAt time.Time
}

type WebhookResult struct {
	Processed    bool
	Customer     *CustomerData
	Subscription *SubscriptionData
	Payment      *PaymentData
}

// HasChanges reports whether the result carries any delta.
func (r *WebhookResult) HasChanges() bool {
	return r != nil && (r.Customer != nil || r.Subscription != nil || r.Payment != nil)
}

// WebhookSignature carries the signature header plus the Standard Webhooks
// message id and timestamp used by Polar.
type WebhookSignature struct {
	Value     string
	MessageID string
	Timestamp string
}
