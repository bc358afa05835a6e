package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/templui/paykit/internal/config"
	"github.com/templui/paykit/internal/metrics"
	"github.com/templui/paykit/internal/model"
	"github.com/templui/paykit/internal/service/payment"
)

// A subscription purchase fires order_created and subscription_payment_success
// for the same charge; only the invoice becomes a payment.
func TestLemonSqueezySubscriptionPurchaseRecordsOnePayment(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t, "a@example.com")

	const secret = "ls-secret"
	provider, err := payment.NewLemonSqueezyProvider(&config.Config{
		AppEnv:                    "development",
		LemonSqueezyAPIKey:        "ls_key",
		LemonSqueezyStoreID:       "1",
		LemonSqueezyWebhookSecret: secret,
		Plans: config.DefaultCatalog(func(key, def string) string {
			if key == "LEMONSQUEEZY_VARIANT_PRO_MONTHLY" {
				return "42"
			}
			return def
		}),
	})
	require.NoError(t, err)
	webhooks := NewWebhookService(provider, env.store, metrics.NewBillingMetrics(prometheus.NewRegistry()), env.receipts)

	deliver := func(body string) {
		t.Helper()
		mac := hmac.New(sha256.New, []byte(secret))
		mac.Write([]byte(body))
		h := http.Header{}
		h.Set(payment.HeaderLemonSqueezySignature, hex.EncodeToString(mac.Sum(nil)))

		_, err := webhooks.Handle(context.Background(), []byte(body), h)
		require.NoError(t, err)
	}

	deliver(fmt.Sprintf(`{"meta":{"event_name":"order_created","custom_data":{"user_id":%q}},
		"data":{"type":"orders","id":"1001","attributes":{"customer_id":77,"identifier":"ord-1","status":"paid",
		"total":2990,"currency":"USD","first_order_item":{"variant_id":42}}}}`, user.ID))
	deliver(fmt.Sprintf(`{"meta":{"event_name":"subscription_payment_success","custom_data":{"user_id":%q}},
		"data":{"type":"subscription-invoices","id":"5001","attributes":{"subscription_id":901,"customer_id":77,
		"status":"paid","total":2990,"currency":"USD"}}}`, user.ID))

	payments, err := env.store.Payments.ByUserID(context.Background(), user.ID)
	require.NoError(t, err)
	require.Len(t, payments, 1)
	assert.Equal(t, "5001", payments[0].ProviderPaymentID)
	assert.Equal(t, model.PaymentTypeSubscription, payments[0].Type)
	assert.Equal(t, int64(2990), payments[0].Amount)

	assert.Equal(t, []string{"a@example.com:5001"}, env.receipts.sent)
}
