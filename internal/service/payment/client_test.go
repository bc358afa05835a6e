package payment

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/NdoleStudio/lemonsqueezy-go"
	polargo "github.com/polarsource/polar-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v81"
)

func newTestStripeClient(t *testing.T, handler http.HandlerFunc) *stripeClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	backend := stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
		URL:               stripe.String(srv.URL),
		HTTPClient:        srv.Client(),
		MaxNetworkRetries: stripe.Int64(0),
	})
	return newStripeClient("sk_test_123", &stripe.Backends{API: backend, Connect: backend, Uploads: backend})
}

func TestStripeClientFindCustomerByEmail(t *testing.T) {
	c := newTestStripeClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/v1/customers", r.URL.Path)
		assert.Equal(t, "a@example.com", r.URL.Query().Get("email"))
		assert.Equal(t, "Bearer sk_test_123", r.Header.Get("Authorization"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"object":"list","url":"/v1/customers","has_more":false,
			"data":[{"id":"cus_1","object":"customer","email":"a@example.com"}]}`)
	})

	customer, err := c.FindCustomerByEmail(context.Background(), "a@example.com")
	require.NoError(t, err)
	require.NotNil(t, customer)
	assert.Equal(t, "cus_1", customer.ID)
}

func TestStripeClientSubscription(t *testing.T) {
	const body = `{"id":"sub_1","object":"subscription","status":"active","customer":"cus_1"}`

	c := newTestStripeClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/v1/subscriptions/sub_1":
			_, _ = io.WriteString(w, body)
		case r.Method == http.MethodDelete && r.URL.Path == "/v1/subscriptions/sub_1":
			_, _ = io.WriteString(w, `{"id":"sub_1","object":"subscription","status":"canceled"}`)
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `{"error":{"type":"invalid_request_error","code":"resource_missing","message":"No such subscription"}}`)
		}
	})

	raw, err := c.GetSubscription(context.Background(), "sub_1")
	require.NoError(t, err)
	assert.JSONEq(t, body, string(raw))

	require.NoError(t, c.CancelSubscription(context.Background(), "sub_1"))

	_, err = c.GetSubscription(context.Background(), "sub_missing")
	require.Error(t, err)
	assert.True(t, isStripeNotFound(err))
}

func newTestPolarClient(t *testing.T, handler http.HandlerFunc) *polarClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return newPolarClient("polar_token", true, polargo.WithServerURL(srv.URL), polargo.WithClient(srv.Client()))
}

func writePolarNotFound(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusNotFound)
	_, _ = io.WriteString(w, `{"error":"ResourceNotFound","detail":"Not found"}`)
}

func TestPolarClientCancelAtPeriodEnd(t *testing.T) {
	var method, path string
	var update map[string]any

	c := newTestPolarClient(t, func(w http.ResponseWriter, r *http.Request) {
		method, path = r.Method, r.URL.Path
		assert.Equal(t, "Bearer polar_token", r.Header.Get("Authorization"))
		_ = json.NewDecoder(r.Body).Decode(&update)
		writePolarNotFound(w)
	})

	err := c.CancelSubscription(context.Background(), "sub_1", true)
	require.Error(t, err)
	assert.True(t, isPolarNotFound(err))

	assert.Equal(t, http.MethodPatch, method)
	assert.True(t, strings.HasSuffix(path, "/subscriptions/sub_1"), path)
	assert.Equal(t, true, update["cancel_at_period_end"])
}

func TestPolarClientRevoke(t *testing.T) {
	var method, path string

	c := newTestPolarClient(t, func(w http.ResponseWriter, r *http.Request) {
		method, path = r.Method, r.URL.Path
		writePolarNotFound(w)
	})

	err := c.CancelSubscription(context.Background(), "sub_1", false)
	require.Error(t, err)
	assert.True(t, isPolarNotFound(err))
	assert.Equal(t, http.MethodDelete, method)
	assert.True(t, strings.HasSuffix(path, "/subscriptions/sub_1"), path)

	_, err = c.GetSubscription(context.Background(), "sub_1")
	assert.True(t, isPolarNotFound(err))
}

func newTestLemonSqueezyClient(t *testing.T, handler http.HandlerFunc) *lemonSqueezyClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return newLemonSqueezyClient("ls_key", 7, lemonsqueezy.WithBaseURL(srv.URL), lemonsqueezy.WithHTTPClient(srv.Client()))
}

func TestLemonSqueezyClientCreateCheckout(t *testing.T) {
	const body = `{"jsonapi":{"version":"1.0"},"data":{"type":"checkouts","id":"chk_1",
		"attributes":{"store_id":7,"variant_id":2002,"url":"https://acme.lemonsqueezy.com/checkout/custom/chk_1"}}}`

	var sent struct {
		Data struct {
			Attributes struct {
				ProductOptions struct {
					RedirectURL string `json:"redirect_url"`
				} `json:"product_options"`
				CheckoutData struct {
					Email  string         `json:"email"`
					Custom map[string]any `json:"custom"`
				} `json:"checkout_data"`
			} `json:"attributes"`
		} `json:"data"`
	}

	c := newTestLemonSqueezyClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.True(t, strings.HasSuffix(r.URL.Path, "/v1/checkouts"), r.URL.Path)
		assert.Equal(t, "Bearer ls_key", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&sent))

		w.Header().Set("Content-Type", "application/vnd.api+json")
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, body)
	})

	raw, err := c.CreateCheckout(context.Background(), lemonSqueezyCheckoutRequest{
		VariantID:   "2002",
		RedirectURL: "https://app.test/success",
		Email:       "a@example.com",
		Custom:      map[string]any{"user_id": "u1"},
	})
	require.NoError(t, err)
	assert.JSONEq(t, body, string(raw))

	assert.Equal(t, "https://app.test/success", sent.Data.Attributes.ProductOptions.RedirectURL)
	assert.Equal(t, "a@example.com", sent.Data.Attributes.CheckoutData.Email)
	assert.Equal(t, "u1", sent.Data.Attributes.CheckoutData.Custom["user_id"])

	_, err = c.CreateCheckout(context.Background(), lemonSqueezyCheckoutRequest{VariantID: "pro"})
	assert.Error(t, err)
}

func TestLemonSqueezyClientNotFound(t *testing.T) {
	c := newTestLemonSqueezyClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/vnd.api+json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"jsonapi":{"version":"1.0"},"errors":[{"detail":"Not Found","status":"404","title":"Not Found"}]}`)
	})

	_, err := c.GetSubscription(context.Background(), "901")
	assert.ErrorIs(t, err, errLemonSqueezyNotFound)

	_, err = c.GetCustomer(context.Background(), "77")
	assert.ErrorIs(t, err, errLemonSqueezyNotFound)

	err = c.CancelSubscription(context.Background(), "901")
	assert.ErrorIs(t, err, errLemonSqueezyNotFound)
}
