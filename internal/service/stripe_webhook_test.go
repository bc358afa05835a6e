package service

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v81/webhook"
	"github.com/templui/paykit/internal/config"
	"github.com/templui/paykit/internal/metrics"
	"github.com/templui/paykit/internal/model"
	"github.com/templui/paykit/internal/service/payment"
)

// Runs signed Stripe deliveries through the real adapter and the reconciler.
func TestStripeSubscriptionWebhookEndToEnd(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t, "a@example.com")

	stripe, err := payment.NewStripeProvider(&config.Config{
		AppEnv:              "development",
		StripeSecretKey:     "sk_test_123",
		StripeWebhookSecret: "whsec_test",
		Plans: config.DefaultCatalog(func(key, def string) string {
			if key == "STRIPE_PRICE_PRO_MONTHLY" {
				return "price_pro_m"
			}
			return def
		}),
	})
	require.NoError(t, err)
	webhooks := NewWebhookService(stripe, env.store, metrics.NewBillingMetrics(prometheus.NewRegistry()), env.receipts)

	payload := []byte(fmt.Sprintf(`{
  "id": "evt_1",
  "type": "customer.subscription.updated",
  "created": 1700000500,
  "data": {"object": {
    "id": "sub_1",
    "customer": "cus_1",
    "status": "active",
    "current_period_start": 1700000000,
    "current_period_end": 1702592000,
    "cancel_at_period_end": false,
    "metadata": {"userId": %q},
    "items": {"data": [{"price": {"id": "price_pro_m", "unit_amount": 2990, "currency": "usd", "recurring": {"interval": "month"}}}]}
  }}
}`, user.ID))

	deliver := func(body []byte, secret string) (*WebhookOutcome, error) {
		signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
			Payload:   body,
			Secret:    secret,
			Timestamp: time.Now(),
		})
		h := http.Header{}
		h.Set(payment.HeaderStripeSignature, signed.Header)
		return webhooks.Handle(context.Background(), body, h)
	}

	_, err = deliver(payload, "whsec_wrong")
	assert.ErrorIs(t, err, ErrInvalidSignature)
	_, subs, _ := countRows(t, env, user.ID)
	assert.Zero(t, subs)

	for range 2 {
		outcome, err := deliver(payload, "whsec_test")
		require.NoError(t, err)
		assert.Equal(t, "customer.subscription.updated", outcome.Event)
	}

	customers, subs, payments := countRows(t, env, user.ID)
	assert.Equal(t, 1, customers)
	assert.Equal(t, 1, subs)
	assert.Zero(t, payments)

	sub, err := env.store.Subscriptions.ByProviderSubscriptionID(context.Background(), model.ProviderStripe, "sub_1")
	require.NoError(t, err)
	assert.Equal(t, model.PlanPro, sub.Plan)
	assert.Equal(t, model.SubscriptionStatusActive, sub.Status)
	require.NotNil(t, sub.Interval)
	assert.Equal(t, model.IntervalMonth, *sub.Interval)
	require.NotNil(t, sub.CustomerID)
}
