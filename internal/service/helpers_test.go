package service

import (
	"context"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"github.com/templui/paykit/internal/config"
	"github.com/templui/paykit/internal/db/dbtest"
	"github.com/templui/paykit/internal/metrics"
	"github.com/templui/paykit/internal/model"
	"github.com/templui/paykit/internal/repository"
	"github.com/templui/paykit/internal/service/payment"
)

// fakeProvider implements payment.Provider with canned responses and call tracking.
type fakeProvider struct {
	name  string
	valid bool

	process func(event payment.WebhookEvent) (*payment.WebhookResult, error)

	checkout     *payment.CheckoutResult
	checkoutErr  error
	checkoutOpts []payment.CheckoutOptions

	portal      *payment.PortalResult
	portalErr   error
	portalCalls []string

	subscription    *payment.SubscriptionData
	subscriptionErr error

	cancelErr   error
	cancelCalls []string
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{name: model.ProviderStripe, valid: true}
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) CreateCheckout(ctx context.Context, opts payment.CheckoutOptions) (*payment.CheckoutResult, error) {
	f.checkoutOpts = append(f.checkoutOpts, opts)
	return f.checkout, f.checkoutErr
}

func (f *fakeProvider) CreateCustomer(ctx context.Context, userID, email string) (*payment.CustomerData, error) {
	return &payment.CustomerData{UserID: userID, ProviderCustomerID: "cus_" + userID, Email: email}, nil
}

func (f *fakeProvider) Subscription(ctx context.Context, id string) (*payment.SubscriptionData, error) {
	if f.subscription == nil {
		return nil, f.subscriptionErr
	}
	copied := *f.subscription
	return &copied, f.subscriptionErr
}

func (f *fakeProvider) CancelSubscription(ctx context.Context, id string, atPeriodEnd bool) error {
	f.cancelCalls = append(f.cancelCalls, id)
	return f.cancelErr
}

func (f *fakeProvider) CreatePortal(ctx context.Context, customerID, returnURL string) (*payment.PortalResult, error) {
	f.portalCalls = append(f.portalCalls, customerID)
	return f.portal, f.portalErr
}

func (f *fakeProvider) ProcessWebhook(event payment.WebhookEvent) (*payment.WebhookResult, error) {
	if f.process == nil {
		return &payment.WebhookResult{Processed: true}, nil
	}
	return f.process(event)
}

func (f *fakeProvider) ValidateWebhook(payload []byte, sig payment.WebhookSignature) bool {
	return f.valid
}

type fakeReceipts struct {
	mu   sync.Mutex
	sent []string
}

func (f *fakeReceipts) SendPaymentReceipt(ctx context.Context, to string, p *model.Payment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, to+":"+p.ProviderPaymentID)
	return nil
}

type testEnv struct {
	store    *repository.Store
	provider *fakeProvider
	receipts *fakeReceipts
	webhooks *WebhookService
	billing  *BillingService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store := repository.NewStore(dbtest.New(t))
	provider := newFakeProvider()
	receipts := &fakeReceipts{}
	m := metrics.NewBillingMetrics(prometheus.NewRegistry())

	webhooks := NewWebhookService(provider, store, m, receipts)
	plans := config.DefaultCatalog(func(key, def string) string {
		if key == "STRIPE_PRICE_PRO_MONTHLY" {
			return "price_pro_m"
		}
		return def
	})

	return &testEnv{
		store:    store,
		provider: provider,
		receipts: receipts,
		webhooks: webhooks,
		billing:  NewBillingService(provider, store, webhooks, plans, m),
	}
}

func (e *testEnv) createUser(t *testing.T, email string) *model.User {
	t.Helper()
	user, err := NewUserService(e.store).Create(context.Background(), email)
	require.NoError(t, err)
	return user
}
