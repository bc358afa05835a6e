package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/templui/paykit/internal/metrics"
	"github.com/templui/paykit/internal/model"
	"github.com/templui/paykit/internal/repository"
	"github.com/templui/paykit/internal/service/payment"
)

var (
	ErrMissingSignature = errors.New("missing signature")
	ErrInvalidSignature = fmt.Errorf("webhook rejected: %w", payment.ErrSignatureInvalid)
	ErrInvalidPayload   = errors.New("invalid JSON payload")
)

// ReceiptSender notifies a user about a newly recorded payment.
type ReceiptSender interface {
	SendPaymentReceipt(ctx context.Context, to string, p *model.Payment) error
}

// WebhookOutcome describes what a delivery changed.
type WebhookOutcome struct {
	Event        string
	Customer     *model.Customer
	Subscription *model.Subscription
	Payment      *model.Payment
}

// WebhookService verifies vendor webhooks and mirrors their deltas into storage.
// Every upsert runs in its own transaction keyed by the provider-scoped natural key.
type WebhookService struct {
	provider payment.Provider
	store    *repository.Store
	metrics  metrics.BillingMetrics
	receipts ReceiptSender
	now      func() time.Time
}

func NewWebhookService(provider payment.Provider, store *repository.Store, m metrics.BillingMetrics, receipts ReceiptSender) *WebhookService {
	return &WebhookService{
		provider: provider,
		store:    store,
		metrics:  m,
		receipts: receipts,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Handle runs one delivery through verification, parsing, interpretation and upsert.
// Errors wrapping ErrMissingSignature, ErrInvalidSignature or ErrInvalidPayload are
// caller mistakes; any other error should make the vendor redeliver.
func (s *WebhookService) Handle(ctx context.Context, payload []byte, headers http.Header) (*WebhookOutcome, error) {
	start := time.Now()
	provider := s.provider.Name()

	sig, ok := payment.ExtractSignature(provider, headers)
	if !ok {
		s.metrics.ObserveWebhook(provider, metrics.OutcomeMissingSignature, time.Since(start))
		slog.Warn("webhook missing signature", "provider", provider)
		return nil, ErrMissingSignature
	}

	if !s.provider.ValidateWebhook(payload, sig) {
		s.metrics.ObserveWebhook(provider, metrics.OutcomeInvalidSignature, time.Since(start))
		slog.Warn("webhook signature rejected", "provider", provider)
		return nil, ErrInvalidSignature
	}

	event, err := payment.ParseWebhookEvent(provider, payload)
	if err != nil {
		s.metrics.ObserveWebhook(provider, metrics.OutcomeInvalidPayload, time.Since(start))
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if event == nil {
		s.metrics.ObserveWebhook(provider, metrics.OutcomeIgnored, time.Since(start))
		slog.Info("webhook has no event type, ignoring", "provider", provider)
		return &WebhookOutcome{}, nil
	}

	result, err := s.provider.ProcessWebhook(*event)
	if err != nil {
		s.metrics.ObserveWebhook(provider, metrics.OutcomeFailed, time.Since(start))
		return nil, fmt.Errorf("failed to process %s webhook: %w", event.Type, err)
	}

	outcome := &WebhookOutcome{Event: event.Type}
	if !result.HasChanges() {
		s.metrics.ObserveWebhook(provider, metrics.OutcomeIgnored, time.Since(start))
		slog.Info("webhook received", "provider", provider, "event_type", event.Type, "changes", false)
		return outcome, nil
	}

	err = s.apply(ctx, result, outcome)
	if err != nil {
		s.metrics.ObserveWebhook(provider, metrics.OutcomeFailed, time.Since(start))
		return nil, fmt.Errorf("failed to reconcile %s webhook: %w", event.Type, err)
	}

	s.metrics.ObserveWebhook(provider, metrics.OutcomeProcessed, time.Since(start))
	slog.Info("webhook processed", "provider", provider, "event_type", event.Type, "duration", time.Since(start))
	return outcome, nil
}

func (s *WebhookService) apply(ctx context.Context, result *payment.WebhookResult, outcome *WebhookOutcome) error {
	var err error

	if result.Customer != nil {
		outcome.Customer, err = s.ApplyCustomer(ctx, result.Customer)
		if err != nil {
			return err
		}
	}

	if result.Subscription != nil {
		outcome.Subscription, err = s.ApplySubscription(ctx, result.Subscription, outcome.Customer)
		if err != nil {
			return err
		}
	}

	if result.Payment != nil {
		outcome.Payment, err = s.ApplyPayment(ctx, result.Payment, outcome.Customer)
		if err != nil {
			return err
		}
	}

	return nil
}

// ApplyCustomer upserts a customer delta. It returns nil when the customer is unknown
// and the delta names no user.
func (s *WebhookService) ApplyCustomer(ctx context.Context, d *payment.CustomerData) (*model.Customer, error) {
	if d.ProviderCustomerID == "" {
		return nil, nil
	}

	var customer *model.Customer
	err := s.store.InTx(ctx, func(tx *repository.Store) error {
		var err error
		customer, err = s.upsertCustomer(ctx, tx, d)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upsert customer: %w", err)
	}
	return customer, nil
}

func (s *WebhookService) upsertCustomer(ctx context.Context, tx *repository.Store, d *payment.CustomerData) (*model.Customer, error) {
	provider := s.provider.Name()

	existing, err := tx.Customers.ByProviderCustomerID(ctx, provider, d.ProviderCustomerID)
	if err == nil {
		return s.updateCustomer(ctx, tx, existing, d)
	}
	if !errors.Is(err, repository.ErrCustomerNotFound) {
		return nil, err
	}

	if d.UserID == "" {
		slog.Warn("customer webhook has no user, skipping", "provider", provider, "customer_id", d.ProviderCustomerID)
		s.metrics.RecordUpsert("customer", metrics.ActionSkipped)
		return nil, nil
	}

	known, err := s.userExists(ctx, tx, d.UserID)
	if err != nil || !known {
		return nil, err
	}

	// A confirmed id replaces the placeholder created at checkout
	if !d.Provisional {
		provisional, err := tx.Customers.ProvisionalByUser(ctx, d.UserID, provider)
		if err == nil {
			provisional.ProviderCustomerID = d.ProviderCustomerID
			provisional.Provisional = false
			if d.Email != "" {
				provisional.Email = &d.Email
			}
			provisional.UpdatedAt = s.now()

			err = tx.Customers.Update(ctx, provisional)
			if err != nil {
				return nil, err
			}
			s.metrics.RecordUpsert("customer", metrics.ActionPromoted)
			slog.Info("provisional customer confirmed", "provider", provider, "user_id", d.UserID, "customer_id", d.ProviderCustomerID)
			return provisional, nil
		}
		if !errors.Is(err, repository.ErrCustomerNotFound) {
			return nil, err
		}
	}

	now := s.now()
	customer := &model.Customer{
		ID:                 uuid.New().String(),
		UserID:             d.UserID,
		Provider:           provider,
		ProviderCustomerID: d.ProviderCustomerID,
		Provisional:        d.Provisional,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if d.Email != "" {
		customer.Email = &d.Email
	}

	err = tx.Customers.Create(ctx, customer)
	if errors.Is(err, repository.ErrCustomerExists) {
		existing, err = tx.Customers.ByProviderCustomerID(ctx, provider, d.ProviderCustomerID)
		if err != nil {
			return nil, err
		}
		return s.updateCustomer(ctx, tx, existing, d)
	}
	if err != nil {
		return nil, err
	}

	s.metrics.RecordUpsert("customer", metrics.ActionCreated)
	return customer, nil
}

func (s *WebhookService) updateCustomer(ctx context.Context, tx *repository.Store, c *model.Customer, d *payment.CustomerData) (*model.Customer, error) {
	if d.Email != "" {
		c.Email = &d.Email
	}
	c.UpdatedAt = s.now()

	err := tx.Customers.Update(ctx, c)
	if err != nil {
		return nil, err
	}

	s.metrics.RecordUpsert("customer", metrics.ActionUpdated)
	return c, nil
}

// resolveCustomer finds the local customer a subscription or payment belongs to,
// creating it when the vendor id is new and the owning user is known.
func (s *WebhookService) resolveCustomer(ctx context.Context, tx *repository.Store, providerCustomerID, userID string, accompanying *model.Customer) (*model.Customer, error) {
	if providerCustomerID == "" {
		return accompanying, nil
	}

	customer, err := tx.Customers.ByProviderCustomerID(ctx, s.provider.Name(), providerCustomerID)
	if err == nil {
		return customer, nil
	}
	if !errors.Is(err, repository.ErrCustomerNotFound) {
		return nil, err
	}

	if accompanying != nil && accompanying.ProviderCustomerID == providerCustomerID {
		return accompanying, nil
	}

	if userID == "" {
		return accompanying, nil
	}

	return s.upsertCustomer(ctx, tx, &payment.CustomerData{
		UserID:             userID,
		ProviderCustomerID: providerCustomerID,
	})
}

// ApplySubscription upserts a subscription delta. Deltas older than the last applied
// event are skipped.
func (s *WebhookService) ApplySubscription(ctx context.Context, d *payment.SubscriptionData, accompanying *model.Customer) (*model.Subscription, error) {
	if d.ProviderSubscriptionID == "" {
		return nil, nil
	}

	var sub *model.Subscription
	err := s.store.InTx(ctx, func(tx *repository.Store) error {
		var err error
		sub, err = s.upsertSubscription(ctx, tx, d, accompanying)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upsert subscription: %w", err)
	}
	return sub, nil
}

func (s *WebhookService) upsertSubscription(ctx context.Context, tx *repository.Store, d *payment.SubscriptionData, accompanying *model.Customer) (*model.Subscription, error) {
	provider := s.provider.Name()

	existing, err := tx.Subscriptions.ByProviderSubscriptionID(ctx, provider, d.ProviderSubscriptionID)
	if err != nil && !errors.Is(err, repository.ErrSubscriptionNotFound) {
		return nil, err
	}

	userID := d.UserID
	if userID == "" && existing != nil {
		userID = existing.UserID
	}

	customer, err := s.resolveCustomer(ctx, tx, d.ProviderCustomerID, userID, accompanying)
	if err != nil {
		return nil, err
	}
	if userID == "" && customer != nil {
		userID = customer.UserID
	}

	if existing != nil {
		return s.updateSubscription(ctx, tx, existing, d, customer)
	}

	if userID == "" {
		slog.Warn("subscription webhook has no user, skipping", "provider", provider, "subscription_id", d.ProviderSubscriptionID)
		s.metrics.RecordUpsert("subscription", metrics.ActionSkipped)
		return nil, nil
	}

	known, err := s.userExists(ctx, tx, userID)
	if err != nil || !known {
		return nil, err
	}

	now := s.now()
	sub := &model.Subscription{
		ID:                     uuid.New().String(),
		UserID:                 userID,
		Provider:               provider,
		ProviderSubscriptionID: d.ProviderSubscriptionID,
		CreatedAt:              now,
	}
	if customer != nil {
		sub.CustomerID = &customer.ID
	}
	s.mergeSubscription(sub, d)

	err = tx.Subscriptions.Create(ctx, sub)
	if errors.Is(err, repository.ErrSubscriptionExists) {
		existing, err = tx.Subscriptions.ByProviderSubscriptionID(ctx, provider, d.ProviderSubscriptionID)
		if err != nil {
			return nil, err
		}
		return s.updateSubscription(ctx, tx, existing, d, customer)
	}
	if err != nil {
		return nil, err
	}

	s.metrics.RecordUpsert("subscription", metrics.ActionCreated)
	slog.Info("subscription created", "provider", provider, "user_id", userID, "subscription_id", d.ProviderSubscriptionID, "plan", sub.Plan, "status", sub.Status)
	return sub, nil
}

func (s *WebhookService) updateSubscription(ctx context.Context, tx *repository.Store, sub *model.Subscription, d *payment.SubscriptionData, customer *model.Customer) (*model.Subscription, error) {
	if isStale(d.EventAt, sub.LastEventAt) {
		s.metrics.RecordUpsert("subscription", metrics.ActionSkipped)
		slog.Info("stale subscription event skipped",
			"subscription_id", sub.ProviderSubscriptionID,
			"event_at", d.EventAt,
			"last_event_at", sub.LastEventAt,
		)
		return sub, nil
	}

	if customer != nil {
		sub.CustomerID = &customer.ID
	}
	s.mergeSubscription(sub, d)

	err := tx.Subscriptions.Update(ctx, sub)
	if err != nil {
		return nil, err
	}

	s.metrics.RecordUpsert("subscription", metrics.ActionUpdated)
	return sub, nil
}

// mergeSubscription copies the vendor-owned fields. Optional values the delta does
// not carry keep their stored value.
func (s *WebhookService) mergeSubscription(sub *model.Subscription, d *payment.SubscriptionData) {
	sub.Status = d.Status
	sub.Plan = d.Plan
	if sub.Plan == "" {
		sub.Plan = model.PlanFree
	}
	if d.Interval != nil {
		sub.Interval = d.Interval
	}
	if d.Amount != nil {
		sub.Amount = d.Amount
	}
	if d.Currency != nil {
		sub.Currency = d.Currency
	}
	if d.CurrentPeriodStart != nil {
		sub.CurrentPeriodStart = d.CurrentPeriodStart
	}
	if d.CurrentPeriodEnd != nil {
		sub.CurrentPeriodEnd = d.CurrentPeriodEnd
	}
	sub.CancelAtPeriodEnd = d.CancelAtPeriodEnd
	sub.CanceledAt = d.CanceledAt
	if d.TrialStart != nil {
		sub.TrialStart = d.TrialStart
	}
	if d.TrialEnd != nil {
		sub.TrialEnd = d.TrialEnd
	}
	sub.LastEventAt = latest(d.EventAt, sub.LastEventAt)
	sub.UpdatedAt = s.now()
}

// ApplyPayment upserts a payment delta. Amount and currency never change after the
// first write.
func (s *WebhookService) ApplyPayment(ctx context.Context, d *payment.PaymentData, accompanying *model.Customer) (*model.Payment, error) {
	if d.ProviderPaymentID == "" {
		return nil, nil
	}

	var (
		p       *model.Payment
		created bool
	)
	err := s.store.InTx(ctx, func(tx *repository.Store) error {
		var err error
		p, created, err = s.upsertPayment(ctx, tx, d, accompanying)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upsert payment: %w", err)
	}

	if created && p.Status == model.PaymentStatusSucceeded && p.Type != model.PaymentTypeRefund {
		s.sendReceipt(ctx, p)
	}
	return p, nil
}

func (s *WebhookService) upsertPayment(ctx context.Context, tx *repository.Store, d *payment.PaymentData, accompanying *model.Customer) (*model.Payment, bool, error) {
	provider := s.provider.Name()

	existing, err := tx.Payments.ByProviderPaymentID(ctx, provider, d.ProviderPaymentID)
	if err != nil && !errors.Is(err, repository.ErrPaymentNotFound) {
		return nil, false, err
	}

	var sub *model.Subscription
	if d.ProviderSubscriptionID != "" {
		sub, err = tx.Subscriptions.ByProviderSubscriptionID(ctx, provider, d.ProviderSubscriptionID)
		if err != nil && !errors.Is(err, repository.ErrSubscriptionNotFound) {
			return nil, false, err
		}
	}

	userID := d.UserID
	if userID == "" && existing != nil {
		userID = existing.UserID
	}
	if userID == "" && sub != nil {
		userID = sub.UserID
	}

	customer, err := s.resolveCustomer(ctx, tx, d.ProviderCustomerID, userID, accompanying)
	if err != nil {
		return nil, false, err
	}
	if userID == "" && customer != nil {
		userID = customer.UserID
	}

	if existing != nil {
		p, err := s.updatePayment(ctx, tx, existing, d, customer, sub)
		return p, false, err
	}

	if userID == "" {
		slog.Warn("payment webhook has no user, skipping", "provider", provider, "payment_id", d.ProviderPaymentID)
		s.metrics.RecordUpsert("payment", metrics.ActionSkipped)
		return nil, false, nil
	}

	known, err := s.userExists(ctx, tx, userID)
	if err != nil || !known {
		return nil, false, err
	}

	now := s.now()
	p := &model.Payment{
		ID:                uuid.New().String(),
		UserID:            userID,
		Provider:          provider,
		ProviderPaymentID: d.ProviderPaymentID,
		Type:              d.Type,
		Status:            d.Status,
		Amount:            d.Amount,
		Currency:          d.Currency,
		LastEventAt:       latest(d.EventAt, nil),
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if customer != nil {
		p.CustomerID = &customer.ID
	}
	if sub != nil {
		p.SubscriptionID = &sub.ID
	}
	if d.Description != "" {
		p.Description = &d.Description
	}

	err = tx.Payments.Create(ctx, p)
	if errors.Is(err, repository.ErrPaymentExists) {
		existing, err = tx.Payments.ByProviderPaymentID(ctx, provider, d.ProviderPaymentID)
		if err != nil {
			return nil, false, err
		}
		p, err := s.updatePayment(ctx, tx, existing, d, customer, sub)
		return p, false, err
	}
	if err != nil {
		return nil, false, err
	}

	s.metrics.RecordUpsert("payment", metrics.ActionCreated)
	slog.Info("payment recorded", "provider", provider, "user_id", userID, "payment_id", d.ProviderPaymentID, "status", p.Status, "amount", p.Amount, "currency", p.Currency)
	return p, true, nil
}

func (s *WebhookService) updatePayment(ctx context.Context, tx *repository.Store, p *model.Payment, d *payment.PaymentData, customer *model.Customer, sub *model.Subscription) (*model.Payment, error) {
	if isStale(d.EventAt, p.LastEventAt) {
		s.metrics.RecordUpsert("payment", metrics.ActionSkipped)
		slog.Info("stale payment event skipped", "payment_id", p.ProviderPaymentID, "event_at", d.EventAt)
		return p, nil
	}

	p.Status = d.Status
	if customer != nil && p.CustomerID == nil {
		p.CustomerID = &customer.ID
	}
	if sub != nil && p.SubscriptionID == nil {
		p.SubscriptionID = &sub.ID
	}
	if d.Description != "" && p.Description == nil {
		p.Description = &d.Description
	}
	p.LastEventAt = latest(d.EventAt, p.LastEventAt)
	p.UpdatedAt = s.now()

	err := tx.Payments.Update(ctx, p)
	if err != nil {
		return nil, err
	}

	s.metrics.RecordUpsert("payment", metrics.ActionUpdated)
	return p, nil
}

func (s *WebhookService) sendReceipt(ctx context.Context, p *model.Payment) {
	if s.receipts == nil {
		return
	}

	user, err := s.store.Users.ByID(ctx, p.UserID)
	if err != nil {
		slog.Warn("failed to load user for receipt", "error", err, "user_id", p.UserID)
		return
	}

	err = s.receipts.SendPaymentReceipt(ctx, user.Email, p)
	if err != nil {
		slog.Warn("failed to send payment receipt", "error", err, "user_id", p.UserID, "payment_id", p.ProviderPaymentID)
	}
}

// userExists guards inserts against deliveries naming users this app does not know.
func (s *WebhookService) userExists(ctx context.Context, tx *repository.Store, userID string) (bool, error) {
	_, err := tx.Users.ByID(ctx, userID)
	if errors.Is(err, repository.ErrUserNotFound) {
		slog.Warn("webhook references unknown user, skipping", "user_id", userID)
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func isStale(eventAt time.Time, last *time.Time) bool {
	return !eventAt.IsZero() && last != nil && eventAt.Before(*last)
}

func latest(eventAt time.Time, last *time.Time) *time.Time {
	if eventAt.IsZero() {
		return last
	}
	if last != nil && last.After(eventAt) {
		return last
	}
	t := eventAt.UTC()
	return &t
}
