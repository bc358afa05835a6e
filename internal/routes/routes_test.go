package routes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/templui/paykit/internal/app"
	"github.com/templui/paykit/internal/config"
	"github.com/templui/paykit/internal/db/dbtest"
	"github.com/templui/paykit/internal/model"
	"github.com/templui/paykit/internal/service/payment"
)

type stubProvider struct {
	name        string
	valid       bool
	result      *payment.WebhookResult
	checkout    *payment.CheckoutResult
	checkoutErr error
	lastOpts    payment.CheckoutOptions
	portalCalls int
}

func (s *stubProvider) Name() string { return s.name }

func (s *stubProvider) CreateCheckout(ctx context.Context, opts payment.CheckoutOptions) (*payment.CheckoutResult, error) {
	s.lastOpts = opts
	if s.checkoutErr != nil {
		return nil, s.checkoutErr
	}
	return s.checkout, nil
}

func (s *stubProvider) CreateCustomer(ctx context.Context, userID, email string) (*payment.CustomerData, error) {
	return &payment.CustomerData{UserID: userID, ProviderCustomerID: "cus_" + userID}, nil
}

func (s *stubProvider) Subscription(ctx context.Context, id string) (*payment.SubscriptionData, error) {
	return nil, nil
}

func (s *stubProvider) CancelSubscription(ctx context.Context, id string, atPeriodEnd bool) error {
	return nil
}

func (s *stubProvider) CreatePortal(ctx context.Context, customerID, returnURL string) (*payment.PortalResult, error) {
	s.portalCalls++
	return &payment.PortalResult{URL: "https://portal.test"}, nil
}

func (s *stubProvider) ProcessWebhook(event payment.WebhookEvent) (*payment.WebhookResult, error) {
	if s.result == nil {
		return &payment.WebhookResult{Processed: true}, nil
	}
	return s.result, nil
}

func (s *stubProvider) ValidateWebhook(payload []byte, sig payment.WebhookSignature) bool {
	return s.valid
}

type testServer struct {
	app      *app.App
	provider *stubProvider
	handler  http.Handler
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	cfg := &config.Config{
		AppName:   "Acme",
		AppEnv:    "development",
		AppURL:    "http://localhost:8090",
		JWTSecret: "test-secret",
		JWTExpiry: time.Hour,
		EmailFrom: "billing@example.com",
		Plans: config.DefaultCatalog(func(key, def string) string {
			return def
		}),
	}
	provider := &stubProvider{name: model.ProviderStripe, valid: true}
	a := app.Wire(cfg, dbtest.New(t), provider, prometheus.NewRegistry())

	return &testServer{app: a, provider: provider, handler: SetupRoutes(a)}
}

func (s *testServer) do(t *testing.T, method, path, body, token string, headers http.Header) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header[k] = v
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) login(t *testing.T, email string) (*model.User, string) {
	t.Helper()

	user, err := s.app.UserService.Create(context.Background(), email)
	require.NoError(t, err)
	token, err := s.app.AuthService.GenerateJWT(user)
	require.NoError(t, err)
	return user, token
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestPaymentsRequireAuth(t *testing.T) {
	srv := newTestServer(t)

	for _, tc := range []struct{ method, path string }{
		{http.MethodPost, "/api/payments/checkout"},
		{http.MethodPost, "/api/payments/portal"},
		{http.MethodGet, "/api/payments/subscription"},
		{http.MethodPost, "/api/payments/subscription/cancel"},
	} {
		rec := srv.do(t, tc.method, tc.path, `{}`, "", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, tc.path)
	}
}

func TestCheckoutEndpoint(t *testing.T) {
	srv := newTestServer(t)
	_, token := srv.login(t, "a@example.com")
	srv.provider.checkout = &payment.CheckoutResult{URL: "https://checkout.test/cs_1", SessionID: "cs_1"}

	rec := srv.do(t, http.MethodPost, "/api/payments/checkout", `{"plan":"pro","interval":"month"}`, token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"url":"https://checkout.test/cs_1","sessionId":"cs_1"}`, rec.Body.String())

	rec = srv.do(t, http.MethodPost, "/api/payments/checkout", `{"plan":"free"}`, token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = srv.do(t, http.MethodPost, "/api/payments/checkout", `{}`, token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = srv.do(t, http.MethodPost, "/api/payments/checkout", `{"plan":"pro","interval":"weekly"}`, token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCheckoutAcceptsRelativeRedirects(t *testing.T) {
	srv := newTestServer(t)
	_, token := srv.login(t, "a@example.com")
	srv.provider.checkout = &payment.CheckoutResult{URL: "https://checkout.test/cs_1", SessionID: "cs_1"}

	rec := srv.do(t, http.MethodPost, "/api/payments/checkout", `{"plan":"pro","successUrl":"/dashboard?checkout=success","cancelUrl":"https://app.test/pricing"}`, token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "/dashboard?checkout=success", srv.provider.lastOpts.SuccessURL)
	assert.Equal(t, "https://app.test/pricing", srv.provider.lastOpts.CancelURL)
}

func TestCheckoutReportsMissingPrice(t *testing.T) {
	srv := newTestServer(t)
	_, token := srv.login(t, "a@example.com")
	srv.provider.checkoutErr = fmt.Errorf("%w: no stripe price configured for plan pro with interval year", payment.ErrConfiguration)

	rec := srv.do(t, http.MethodPost, "/api/payments/checkout", `{"plan":"pro","interval":"year"}`, token, nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, decode(t, rec)["error"], "no stripe price configured for plan pro with interval year")

	srv.provider.checkoutErr = errors.New("connection reset")
	rec = srv.do(t, http.MethodPost, "/api/payments/checkout", `{"plan":"pro"}`, token, nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Failed to create checkout session", decode(t, rec)["error"])
}

func TestPortalEndpoint(t *testing.T) {
	srv := newTestServer(t)
	user, token := srv.login(t, "a@example.com")

	rec := srv.do(t, http.MethodPost, "/api/payments/portal", `{}`, token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "No customer found", decode(t, rec)["error"])

	// A customer recorded under another provider
	srv.provider.name = model.ProviderPolar
	_, err := srv.app.WebhookService.ApplyCustomer(context.Background(), &payment.CustomerData{UserID: user.ID, ProviderCustomerID: "pcus_1"})
	require.NoError(t, err)
	srv.provider.name = model.ProviderStripe

	rec = srv.do(t, http.MethodPost, "/api/payments/portal", `{}`, token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Customer provider (polar) does not match active provider (stripe)", decode(t, rec)["error"])
	assert.Zero(t, srv.provider.portalCalls)
}

func TestSubscriptionEndpointReturnsNull(t *testing.T) {
	srv := newTestServer(t)
	_, token := srv.login(t, "a@example.com")

	rec := srv.do(t, http.MethodGet, "/api/payments/subscription", "", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"subscription":null}`, rec.Body.String())
}

func TestWebhookEndpoint(t *testing.T) {
	srv := newTestServer(t)
	user, token := srv.login(t, "a@example.com")
	sig := http.Header{payment.HeaderStripeSignature: {"t=1,v1=test"}}
	payload := `{"type":"customer.subscription.updated","data":{"object":{}}}`

	srv.provider.result = &payment.WebhookResult{
		Processed: true,
		Subscription: &payment.SubscriptionData{
			UserID:                 user.ID,
			ProviderSubscriptionID: "sub_1",
			Status:                 model.SubscriptionStatusActive,
			Plan:                   model.PlanPro,
		},
	}

	t.Run("missing signature writes nothing", func(t *testing.T) {
		rec := srv.do(t, http.MethodPost, "/api/webhooks/payments", payload, "", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.JSONEq(t, `{"error":"Missing signature"}`, rec.Body.String())

		rec = srv.do(t, http.MethodGet, "/api/payments/subscription", "", token, nil)
		assert.JSONEq(t, `{"subscription":null}`, rec.Body.String())
	})

	t.Run("invalid signature", func(t *testing.T) {
		srv.provider.valid = false
		defer func() { srv.provider.valid = true }()

		rec := srv.do(t, http.MethodPost, "/api/webhooks/payments", payload, "", sig)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.JSONEq(t, `{"error":"Invalid signature"}`, rec.Body.String())
	})

	t.Run("invalid json", func(t *testing.T) {
		rec := srv.do(t, http.MethodPost, "/api/webhooks/payments", `{oops`, "", sig)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.JSONEq(t, `{"error":"Invalid JSON"}`, rec.Body.String())
	})

	t.Run("no event type", func(t *testing.T) {
		rec := srv.do(t, http.MethodPost, "/webhooks/payment", `{"data":{}}`, "", sig)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"processed":true}`, rec.Body.String())
	})

	t.Run("received", func(t *testing.T) {
		rec := srv.do(t, http.MethodPost, "/api/webhooks/payments", payload, "", sig)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"received":true}`, rec.Body.String())

		rec = srv.do(t, http.MethodGet, "/api/payments/subscription", "", token, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		sub := decode(t, rec)["subscription"].(map[string]any)
		assert.Equal(t, "pro", sub["plan"])
		assert.Equal(t, "active", sub["status"])
	})
}

func TestOperationalEndpoints(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(t, http.MethodGet, "/healthz", "", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode(t, rec)["status"])

	srv.do(t, http.MethodPost, "/api/webhooks/payments", `{}`, "", nil)

	rec = srv.do(t, http.MethodGet, "/metrics", "", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `paykit_webhooks_total{outcome="missing_signature",provider="stripe"} 1`)
}
