package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/templui/paykit/internal/config"
	"github.com/templui/paykit/internal/metrics"
	"github.com/templui/paykit/internal/model"
	"github.com/templui/paykit/internal/repository"
	"github.com/templui/paykit/internal/service/payment"
)

var (
	ErrUnknownPlan          = errors.New("unknown plan")
	ErrFreePlan             = errors.New("the free plan does not require checkout")
	ErrNoCustomer           = errors.New("No customer found")
	ErrNoSubscription       = errors.New("No subscription found")
	ErrSubscriptionCanceled = errors.New("subscription is already canceled")
)

// ProviderMismatchError means the user's billing records belong to a provider
// other than the active one.
type ProviderMismatchError struct {
	RecordProvider string
	ActiveProvider string
}

func (e *ProviderMismatchError) Error() string {
	return fmt.Sprintf("Customer provider (%s) does not match active provider (%s)", e.RecordProvider, e.ActiveProvider)
}

type CheckoutRequest struct {
	Plan       string
	Interval   string
	SuccessURL string
	CancelURL  string
}

// BillingService orchestrates the user-facing billing operations on top of the
// active provider and the reconciler's upserts.
type BillingService struct {
	provider payment.Provider
	store    *repository.Store
	webhooks *WebhookService
	plans    config.Catalog
	metrics  metrics.BillingMetrics
}

func NewBillingService(provider payment.Provider, store *repository.Store, webhooks *WebhookService, plans config.Catalog, m metrics.BillingMetrics) *BillingService {
	return &BillingService{
		provider: provider,
		store:    store,
		webhooks: webhooks,
		plans:    plans,
		metrics:  m,
	}
}

// ProviderName returns the active provider.
func (s *BillingService) ProviderName() string {
	return s.provider.Name()
}

func (s *BillingService) Checkout(ctx context.Context, user *model.User, req CheckoutRequest) (*payment.CheckoutResult, error) {
	plan, ok := s.plans.Plan(req.Plan)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPlan, req.Plan)
	}
	if plan.Free {
		return nil, ErrFreePlan
	}

	opts := payment.CheckoutOptions{
		Plan:       plan.Name,
		Interval:   req.Interval,
		UserID:     user.ID,
		Email:      user.Email,
		SuccessURL: req.SuccessURL,
		CancelURL:  req.CancelURL,
	}

	trialDays, err := s.firstTrialDays(ctx, user.ID, plan.Name, req.Interval)
	if err != nil {
		return nil, err
	}
	if trialDays > 0 {
		opts.TrialDays = &trialDays
	}

	res, err := s.provider.CreateCheckout(ctx, opts)
	s.metrics.RecordProviderCall(s.provider.Name(), "checkout", err)
	if err != nil {
		return nil, fmt.Errorf("failed to create checkout: %w", err)
	}

	s.rememberCustomer(ctx, res.Customer)
	return res, nil
}

// firstTrialDays grants the catalog trial to users who never subscribed before.
func (s *BillingService) firstTrialDays(ctx context.Context, userID, plan, interval string) (int, error) {
	price, ok := s.plans.CheckoutPrice(plan, s.provider.Name(), interval)
	if !ok || price.TrialDays == 0 {
		return 0, nil
	}

	_, err := s.store.Subscriptions.LatestByUserID(ctx, userID)
	if errors.Is(err, repository.ErrSubscriptionNotFound) {
		return price.TrialDays, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to check subscription history: %w", err)
	}
	return 0, nil
}

// rememberCustomer stores the checkout's customer. The vendor session already
// exists, so failures are logged instead of failing the checkout.
func (s *BillingService) rememberCustomer(ctx context.Context, data *payment.CustomerData) {
	if data == nil {
		return
	}

	if data.Provisional {
		customers, err := s.store.Customers.ByUserID(ctx, data.UserID)
		if err != nil {
			slog.Warn("failed to load customers", "error", err, "user_id", data.UserID)
			return
		}
		for _, c := range customers {
			if c.Provider == s.provider.Name() && !c.Provisional {
				return
			}
		}
	}

	_, err := s.webhooks.ApplyCustomer(ctx, data)
	if err != nil {
		slog.Error("failed to persist checkout customer", "error", err, "user_id", data.UserID)
	}
}

func (s *BillingService) Portal(ctx context.Context, userID, returnURL string) (*payment.PortalResult, error) {
	customers, err := s.store.Customers.ByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get customers: %w", err)
	}
	if len(customers) == 0 {
		return nil, ErrNoCustomer
	}

	customer := s.activeCustomer(customers)
	if customer == nil {
		return nil, &ProviderMismatchError{RecordProvider: customers[0].Provider, ActiveProvider: s.provider.Name()}
	}

	res, err := s.provider.CreatePortal(ctx, customer.ProviderCustomerID, returnURL)
	s.metrics.RecordProviderCall(s.provider.Name(), "portal", err)
	if err != nil {
		return nil, fmt.Errorf("failed to create portal: %w", err)
	}
	return res, nil
}

// activeCustomer picks the user's customer on the active provider, preferring confirmed ones.
func (s *BillingService) activeCustomer(customers []model.Customer) *model.Customer {
	var provisional *model.Customer
	for i := range customers {
		c := &customers[i]
		if c.Provider != s.provider.Name() {
			continue
		}
		if !c.Provisional {
			return c
		}
		if provisional == nil {
			provisional = c
		}
	}
	return provisional
}

// Subscription returns the user's most recently updated subscription, or nil.
func (s *BillingService) Subscription(ctx context.Context, userID string) (*model.Subscription, error) {
	sub, err := s.store.Subscriptions.LatestByUserID(ctx, userID)
	if errors.Is(err, repository.ErrSubscriptionNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}
	return sub, nil
}

// Cancel cancels the user's latest subscription on the active provider and mirrors
// the vendor's resulting state.
func (s *BillingService) Cancel(ctx context.Context, userID string, atPeriodEnd bool) (*model.Subscription, error) {
	sub, err := s.Subscription(ctx, userID)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, ErrNoSubscription
	}
	if sub.Provider != s.provider.Name() {
		return nil, &ProviderMismatchError{RecordProvider: sub.Provider, ActiveProvider: s.provider.Name()}
	}
	if sub.Status == model.SubscriptionStatusCanceled {
		return nil, ErrSubscriptionCanceled
	}

	err = s.provider.CancelSubscription(ctx, sub.ProviderSubscriptionID, atPeriodEnd)
	s.metrics.RecordProviderCall(s.provider.Name(), "cancel", err)
	if err != nil {
		return nil, fmt.Errorf("failed to cancel subscription: %w", err)
	}

	synced, err := s.SyncSubscription(ctx, sub.ProviderSubscriptionID)
	if err != nil || synced == nil {
		if err != nil {
			slog.Warn("failed to sync canceled subscription", "error", err, "subscription_id", sub.ProviderSubscriptionID)
		}
		return s.Subscription(ctx, userID)
	}
	return synced, nil
}

// ProviderSubscription fetches the vendor's view of a subscription.
func (s *BillingService) ProviderSubscription(ctx context.Context, providerSubscriptionID string) (*payment.SubscriptionData, error) {
	data, err := s.provider.Subscription(ctx, providerSubscriptionID)
	s.metrics.RecordProviderCall(s.provider.Name(), "get_subscription", err)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, fmt.Errorf("%w: subscription %s", payment.ErrNotFound, providerSubscriptionID)
	}
	return data, nil
}

// SyncSubscription pulls current vendor state into the local row. The fetch counts
// as the newest event, so it overrides anything applied before.
func (s *BillingService) SyncSubscription(ctx context.Context, providerSubscriptionID string) (*model.Subscription, error) {
	data, err := s.ProviderSubscription(ctx, providerSubscriptionID)
	if err != nil {
		return nil, err
	}
	data.EventAt = time.Now().UTC()

	return s.webhooks.ApplySubscription(ctx, data, nil)
}
