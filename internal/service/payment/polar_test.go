package payment

import (
	"context"
	"encoding/json"
	"strconv"
	"testing"
	"time"

	standardwebhooks "github.com/standard-webhooks/standard-webhooks/libraries/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/templui/paykit/internal/model"
)

type fakePolarAPI struct {
	checkoutID      string
	checkoutURL     string
	portalURL       string
	subscriptionRaw json.RawMessage
	err             error

	checkoutReq polarCheckoutRequest
	sessionFor  string
	canceled    map[string]bool
}

func (f *fakePolarAPI) CreateCheckout(ctx context.Context, req polarCheckoutRequest) (string, string, error) {
	f.checkoutReq = req
	return f.checkoutID, f.checkoutURL, f.err
}

func (f *fakePolarAPI) CreateCustomerSession(ctx context.Context, customerID, returnURL string) (string, error) {
	f.sessionFor = customerID
	return f.portalURL, f.err
}

func (f *fakePolarAPI) GetSubscription(ctx context.Context, id string) (json.RawMessage, error) {
	return f.subscriptionRaw, f.err
}

func (f *fakePolarAPI) CancelSubscription(ctx context.Context, id string, atPeriodEnd bool) error {
	if f.canceled == nil {
		f.canceled = map[string]bool{}
	}
	f.canceled[id] = atPeriodEnd
	return f.err
}

const polarTestSecret = "polar-webhook-secret"

func newTestPolar(t *testing.T, api polarAPI) *PolarProvider {
	t.Helper()
	verifier, err := standardwebhooks.NewWebhookRaw([]byte(polarTestSecret))
	require.NoError(t, err)
	return &PolarProvider{api: api, verifier: verifier, settings: testSettings()}
}

func TestPolarCreateCheckoutReturnsProvisionalCustomer(t *testing.T) {
	api := &fakePolarAPI{checkoutID: "co_1", checkoutURL: "https://polar.sh/checkout/co_1"}
	p := newTestPolar(t, api)

	res, err := p.CreateCheckout(context.Background(), CheckoutOptions{
		Plan:   model.PlanPro,
		UserID: "user-1",
		Email:  "u@example.com",
	})
	require.NoError(t, err)

	assert.Equal(t, "https://polar.sh/checkout/co_1", res.URL)
	assert.Equal(t, "co_1", res.SessionID)
	require.NotNil(t, res.Customer)
	assert.True(t, res.Customer.Provisional)
	assert.Equal(t, model.ProvisionalCustomerID(model.ProviderPolar, "user-1"), res.Customer.ProviderCustomerID)

	assert.Equal(t, "polar_pro", api.checkoutReq.ProductID)
	assert.Equal(t, "user-1", api.checkoutReq.Metadata["user_id"])
	assert.Equal(t, "https://app.test/success", api.checkoutReq.SuccessURL)
}

func TestPolarCheckoutRejectsUnconfiguredInterval(t *testing.T) {
	api := &fakePolarAPI{checkoutID: "co_1", checkoutURL: "https://polar.sh/checkout/co_1"}
	p := newTestPolar(t, api)

	_, err := p.CreateCheckout(context.Background(), CheckoutOptions{
		Plan:     model.PlanPro,
		Interval: model.IntervalYear,
		UserID:   "user-1",
	})
	require.ErrorIs(t, err, ErrConfiguration)
	assert.Contains(t, err.Error(), "interval year")
	assert.Empty(t, api.checkoutReq.ProductID)
}

func TestPolarPortalRejectsProvisionalCustomer(t *testing.T) {
	api := &fakePolarAPI{portalURL: "https://polar.sh/portal"}
	p := newTestPolar(t, api)

	_, err := p.CreatePortal(context.Background(), model.ProvisionalCustomerID(model.ProviderPolar, "user-1"), "")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Empty(t, api.sessionFor)

	res, err := p.CreatePortal(context.Background(), "cust_1", "")
	require.NoError(t, err)
	assert.Equal(t, "https://polar.sh/portal", res.URL)
	assert.Equal(t, "cust_1", api.sessionFor)
}

func TestPolarValidateWebhook(t *testing.T) {
	p := newTestPolar(t, &fakePolarAPI{})
	payload := []byte(`{"type":"subscription.updated","timestamp":"2024-05-01T10:00:00Z","data":{}}`)

	signer, err := standardwebhooks.NewWebhookRaw([]byte(polarTestSecret))
	require.NoError(t, err)

	now := time.Now()
	signature, err := signer.Sign("msg_1", now, payload)
	require.NoError(t, err)

	sig := WebhookSignature{
		Value:     signature,
		MessageID: "msg_1",
		Timestamp: strconv.FormatInt(now.Unix(), 10),
	}
	assert.True(t, p.ValidateWebhook(payload, sig))
	assert.False(t, p.ValidateWebhook([]byte(`{"type":"tampered"}`), sig))

	sig.MessageID = "msg_2"
	assert.False(t, p.ValidateWebhook(payload, sig))
	assert.False(t, p.ValidateWebhook(payload, WebhookSignature{}))
}

func TestPolarProcessSubscriptionEvent(t *testing.T) {
	p := newTestPolar(t, &fakePolarAPI{})

	payload := `{"type":"subscription.active","timestamp":"2024-05-01T10:00:00Z","data":{
		"id":"psub_1","status":"active","customer_id":"pcus_1","product_id":"polar_pro","amount":2990,"currency":"usd",
		"recurring_interval":"month","current_period_start":"2024-05-01T10:00:00Z","current_period_end":"2024-06-01T10:00:00Z",
		"cancel_at_period_end":false,"metadata":{"user_id":"user-1"},
		"customer":{"id":"pcus_1","email":"u@example.com","external_id":null,"metadata":{}}}}`

	event, err := ParseWebhookEvent(model.ProviderPolar, []byte(payload))
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC), event.OccurredAt)

	result, err := p.ProcessWebhook(*event)
	require.NoError(t, err)

	require.NotNil(t, result.Subscription)
	sub := result.Subscription
	assert.Equal(t, "psub_1", sub.ProviderSubscriptionID)
	assert.Equal(t, "user-1", sub.UserID)
	assert.Equal(t, model.PlanPro, sub.Plan)
	assert.Equal(t, model.SubscriptionStatusActive, sub.Status)
	assert.Equal(t, model.IntervalMonth, *sub.Interval)
	assert.Equal(t, int64(2990), *sub.Amount)

	require.NotNil(t, result.Customer)
	assert.Equal(t, "pcus_1", result.Customer.ProviderCustomerID)
	assert.Equal(t, "user-1", result.Customer.UserID)
}

func TestPolarProcessOrderRefunded(t *testing.T) {
	p := newTestPolar(t, &fakePolarAPI{})

	payload := `{"type":"order.refunded","data":{"id":"ord_1","customer_id":"pcus_1","subscription_id":"psub_1",
		"total_amount":2990,"refunded_amount":1000,"currency":"usd","metadata":{"user_id":"user-1"},"product":{"id":"polar_pro","name":"Pro"}}}`

	event, err := ParseWebhookEvent(model.ProviderPolar, []byte(payload))
	require.NoError(t, err)

	result, err := p.ProcessWebhook(*event)
	require.NoError(t, err)
	require.NotNil(t, result.Payment)
	assert.Equal(t, model.PaymentTypeRefund, result.Payment.Type)
	assert.Equal(t, model.PaymentStatusRefunded, result.Payment.Status)
	assert.Equal(t, int64(1000), result.Payment.Amount)
	assert.Equal(t, "Payment for Pro", result.Payment.Description)
}

func TestPolarCancelSubscription(t *testing.T) {
	api := &fakePolarAPI{}
	p := newTestPolar(t, api)

	require.NoError(t, p.CancelSubscription(context.Background(), "psub_1", true))
	require.NoError(t, p.CancelSubscription(context.Background(), "psub_2", false))
	assert.Equal(t, map[string]bool{"psub_1": true, "psub_2": false}, api.canceled)
}

func TestMapPolarStatus(t *testing.T) {
	tests := map[string]string{
		"active":             model.SubscriptionStatusActive,
		"canceled":           model.SubscriptionStatusCanceled,
		"past_due":           model.SubscriptionStatusPastDue,
		"trialing":           model.SubscriptionStatusTrialing,
		"incomplete":         model.SubscriptionStatusIncomplete,
		"incomplete_expired": model.SubscriptionStatusIncomplete,
		"unpaid":             model.SubscriptionStatusIncomplete,
	}
	for in, want := range tests {
		assert.Equal(t, want, mapPolarStatus(in), in)
	}
}
