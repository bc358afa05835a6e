package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/webhook"
	"github.com/templui/paykit/internal/config"
	"github.com/templui/paykit/internal/model"
)

type StripeProvider struct {
	api           stripeAPI
	webhookSecret string
	settings
}

func NewStripeProvider(cfg *config.Config) (*StripeProvider, error) {
	if cfg.StripeSecretKey == "" {
		return nil, fmt.Errorf("%w: STRIPE_SECRET_KEY is required when using Stripe provider", ErrConfiguration)
	}
	if cfg.StripeWebhookSecret == "" {
		return nil, fmt.Errorf("%w: STRIPE_WEBHOOK_SECRET is required when using Stripe provider", ErrConfiguration)
	}

	slog.Info("stripe provider initialized", "app_env", cfg.AppEnv)

	return &StripeProvider{
		api:           newStripeClient(cfg.StripeSecretKey, nil),
		webhookSecret: cfg.StripeWebhookSecret,
		settings:      settingsFrom(cfg),
	}, nil
}

func (s *StripeProvider) Name() string {
	return model.ProviderStripe
}

func (s *StripeProvider) CreateCheckout(ctx context.Context, opts CheckoutOptions) (*CheckoutResult, error) {
	price, err := s.checkoutPrice(model.ProviderStripe, opts.Plan, opts.Interval)
	if err != nil {
		return nil, err
	}

	customer, err := s.CreateCustomer(ctx, opts.UserID, opts.Email)
	if err != nil {
		return nil, err
	}

	metadata := map[string]string{
		"userId":   opts.UserID,
		"plan":     opts.Plan,
		"provider": model.ProviderStripe,
	}

	mode := stripe.CheckoutSessionModeSubscription
	if price.Type == config.PriceTypeOneTime {
		mode = stripe.CheckoutSessionModePayment
	}

	params := &stripe.CheckoutSessionParams{
		Customer:           stripe.String(customer.ProviderCustomerID),
		ClientReferenceID:  stripe.String(opts.UserID),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		Mode:               stripe.String(string(mode)),
		SuccessURL:         stripe.String(firstNonEmpty(opts.SuccessURL, s.successURL)),
		CancelURL:          stripe.String(firstNonEmpty(opts.CancelURL, s.cancelURL)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(price.ProductID),
				Quantity: stripe.Int64(1),
			},
		},
		Metadata:            metadata,
		AllowPromotionCodes: stripe.Bool(true),
	}

	if opts.TrialDays != nil && *opts.TrialDays > 0 && mode == stripe.CheckoutSessionModeSubscription {
		params.SubscriptionData = &stripe.CheckoutSessionSubscriptionDataParams{
			TrialPeriodDays: stripe.Int64(int64(*opts.TrialDays)),
			Metadata:        metadata,
		}
	}

	sess, err := s.api.CreateCheckoutSession(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create checkout session: %v", ErrProvider, err)
	}
	if sess == nil || sess.URL == "" {
		return nil, fmt.Errorf("%w: checkout session has no url", ErrProvider)
	}

	slog.Info("stripe checkout created", "user_id", opts.UserID, "plan", opts.Plan, "session_id", sess.ID)

	return &CheckoutResult{
		URL:       sess.URL,
		SessionID: sess.ID,
		Customer:  customer,
	}, nil
}

// CreateCustomer reuses the first Stripe customer with a matching email, else creates one.
func (s *StripeProvider) CreateCustomer(ctx context.Context, userID, email string) (*CustomerData, error) {
	var customer *stripe.Customer

	if email != "" {
		existing, err := s.api.FindCustomerByEmail(ctx, email)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to search customers: %v", ErrProvider, err)
		}
		customer = existing
	}

	if customer == nil {
		params := &stripe.CustomerParams{
			Metadata: map[string]string{
				"userId":   userID,
				"provider": model.ProviderStripe,
			},
		}
		if email != "" {
			params.Email = stripe.String(email)
		}

		created, err := s.api.CreateCustomer(ctx, params)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to create customer: %v", ErrProvider, err)
		}
		customer = created

		slog.Info("stripe customer created", "user_id", userID, "customer_id", customer.ID)
	}

	return &CustomerData{
		UserID:             userID,
		ProviderCustomerID: customer.ID,
		Email:              firstNonEmpty(customer.Email, email),
	}, nil
}

func (s *StripeProvider) Subscription(ctx context.Context, providerSubscriptionID string) (*SubscriptionData, error) {
	raw, err := s.api.GetSubscription(ctx, providerSubscriptionID)
	if err != nil {
		if isStripeNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: failed to get subscription: %v", ErrProvider, err)
	}

	var sub stripeSubscription
	err = json.Unmarshal(raw, &sub)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse subscription: %v", ErrProvider, err)
	}

	return s.subscriptionData(sub), nil
}

func (s *StripeProvider) CancelSubscription(ctx context.Context, providerSubscriptionID string, atPeriodEnd bool) error {
	var err error
	if atPeriodEnd {
		err = s.api.UpdateSubscription(ctx, providerSubscriptionID, &stripe.SubscriptionParams{
			CancelAtPeriodEnd: stripe.Bool(true),
		})
	} else {
		err = s.api.CancelSubscription(ctx, providerSubscriptionID)
	}
	if err != nil {
		return fmt.Errorf("%w: failed to cancel subscription: %v", ErrProvider, err)
	}

	slog.Info("stripe subscription canceled", "subscription_id", providerSubscriptionID, "at_period_end", atPeriodEnd)
	return nil
}

func (s *StripeProvider) CreatePortal(ctx context.Context, providerCustomerID, returnURL string) (*PortalResult, error) {
	sess, err := s.api.CreatePortalSession(ctx, &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(providerCustomerID),
		ReturnURL: stripe.String(firstNonEmpty(returnURL, s.portalReturnURL)),
	})
	if err != nil {
		if isStripeNotFound(err) {
			return nil, fmt.Errorf("%w: stripe customer %s", ErrNotFound, providerCustomerID)
		}
		return nil, fmt.Errorf("%w: failed to create customer portal session: %v", ErrProvider, err)
	}

	return &PortalResult{URL: sess.URL}, nil
}

// ValidateWebhook verifies the Stripe-Signature header and its timestamp tolerance.
// Only the signature is checked here; event decoding happens later.
func (s *StripeProvider) ValidateWebhook(payload []byte, sig WebhookSignature) bool {
	if s.webhookSecret == "" || sig.Value == "" {
		return false
	}

	err := webhook.ValidatePayload(payload, sig.Value, s.webhookSecret)
	if err != nil {
		slog.Warn("stripe webhook signature validation failed", "error", err)
		return false
	}
	return true
}

func (s *StripeProvider) ProcessWebhook(event WebhookEvent) (*WebhookResult, error) {
	switch event.Type {
	case "customer.created", "customer.updated":
		var c stripeCustomer
		err := json.Unmarshal(event.Data, &c)
		if err != nil {
			return nil, fmt.Errorf("failed to parse customer: %w", err)
		}
		return &WebhookResult{
			Processed: true,
			Customer: &CustomerData{
				UserID:             metadataUserID(c.Metadata),
				ProviderCustomerID: c.ID,
				Email:              c.Email,
				EventAt:            event.OccurredAt,
			},
		}, nil

	case "customer.subscription.created",
		"customer.subscription.updated",
		"customer.subscription.deleted",
		"customer.subscription.paused",
		"customer.subscription.resumed":
		var sub stripeSubscription
		err := json.Unmarshal(event.Data, &sub)
		if err != nil {
			return nil, fmt.Errorf("failed to parse subscription: %w", err)
		}
		data := s.subscriptionData(sub)
		data.EventAt = event.OccurredAt
		return &WebhookResult{Processed: true, Subscription: data}, nil

	case "invoice.payment_succeeded", "invoice.paid", "invoice.payment_failed":
		var inv stripeInvoice
		err := json.Unmarshal(event.Data, &inv)
		if err != nil {
			return nil, fmt.Errorf("failed to parse invoice: %w", err)
		}
		subscriptionID := inv.subscriptionID()
		if subscriptionID == "" {
			// One-time invoices are recorded through checkout.session.completed
			return &WebhookResult{Processed: true}, nil
		}

		status, amount := model.PaymentStatusSucceeded, inv.AmountPaid
		if event.Type == "invoice.payment_failed" {
			status, amount = model.PaymentStatusFailed, inv.AmountDue
		}

		return &WebhookResult{
			Processed: true,
			Payment: &PaymentData{
				UserID:                 inv.userID(),
				ProviderCustomerID:     inv.Customer.ID,
				ProviderSubscriptionID: subscriptionID,
				ProviderPaymentID:      inv.ID,
				Type:                   model.PaymentTypeSubscription,
				Status:                 status,
				Amount:                 amount,
				Currency:               inv.Currency,
				Description:            inv.description(),
				EventAt:                event.OccurredAt,
			},
		}, nil

	case "checkout.session.completed":
		var sess stripeCheckoutSession
		err := json.Unmarshal(event.Data, &sess)
		if err != nil {
			return nil, fmt.Errorf("failed to parse checkout session: %w", err)
		}
		return s.checkoutCompleted(sess, event), nil

	case "charge.refunded":
		var ch stripeCharge
		err := json.Unmarshal(event.Data, &ch)
		if err != nil {
			return nil, fmt.Errorf("failed to parse charge: %w", err)
		}
		return &WebhookResult{
			Processed: true,
			Payment: &PaymentData{
				UserID:             metadataUserID(ch.Metadata),
				ProviderCustomerID: ch.Customer.ID,
				ProviderPaymentID:  firstNonEmpty(ch.Invoice.ID, ch.PaymentIntent.ID, ch.ID),
				Type:               model.PaymentTypeRefund,
				Status:             model.PaymentStatusRefunded,
				Amount:             ch.AmountRefunded,
				Currency:           ch.Currency,
				Description:        ch.Description,
				EventAt:            event.OccurredAt,
			},
		}, nil
	}

	return &WebhookResult{Processed: true}, nil
}

func (s *StripeProvider) checkoutCompleted(sess stripeCheckoutSession, event WebhookEvent) *WebhookResult {
	result := &WebhookResult{Processed: true}
	userID := firstNonEmpty(metadataUserID(sess.Metadata), sess.ClientReferenceID)

	if sess.Customer.ID != "" {
		result.Customer = &CustomerData{
			UserID:             userID,
			ProviderCustomerID: sess.Customer.ID,
			Email:              firstNonEmpty(sess.CustomerDetails.Email, sess.CustomerEmail),
			EventAt:            event.OccurredAt,
		}
	}

	// Subscription checkouts are reconciled by the customer.subscription.* events
	if sess.Mode == string(stripe.CheckoutSessionModePayment) && sess.PaymentStatus == "paid" {
		result.Payment = &PaymentData{
			UserID:             userID,
			ProviderCustomerID: sess.Customer.ID,
			ProviderPaymentID:  firstNonEmpty(sess.PaymentIntent.ID, sess.ID),
			Type:               model.PaymentTypeOneTime,
			Status:             model.PaymentStatusSucceeded,
			Amount:             sess.AmountTotal,
			Currency:           sess.Currency,
			Description:        "One-time purchase: " + firstNonEmpty(sess.Metadata["plan"], "checkout"),
			EventAt:            event.OccurredAt,
		}
	}

	return result
}

func (s *StripeProvider) subscriptionData(sub stripeSubscription) *SubscriptionData {
	data := &SubscriptionData{
		UserID:                 metadataUserID(sub.Metadata),
		ProviderCustomerID:     sub.Customer.ID,
		ProviderSubscriptionID: sub.ID,
		Status:                 mapStripeStatus(sub.Status),
		Plan:                   model.PlanFree,
		CurrentPeriodStart:     unixPtr(sub.CurrentPeriodStart),
		CurrentPeriodEnd:       unixPtr(sub.CurrentPeriodEnd),
		CancelAtPeriodEnd:      sub.CancelAtPeriodEnd,
		CanceledAt:             unixPtr(sub.CanceledAt),
		TrialStart:             unixPtr(sub.TrialStart),
		TrialEnd:               unixPtr(sub.TrialEnd),
	}

	if len(sub.Items.Data) > 0 {
		item := sub.Items.Data[0]
		data.Plan = s.plans.PlanForProduct(model.ProviderStripe, item.Price.ID)
		if item.Price.Recurring != nil {
			data.Interval = normalizeInterval(item.Price.Recurring.Interval)
		}
		if item.Price.UnitAmount > 0 {
			data.Amount = int64Ptr(item.Price.UnitAmount)
		}
		data.Currency = stringPtr(item.Price.Currency)

		// Newer API versions report billing periods per item
		if data.CurrentPeriodStart == nil {
			data.CurrentPeriodStart = unixPtr(item.CurrentPeriodStart)
		}
		if data.CurrentPeriodEnd == nil {
			data.CurrentPeriodEnd = unixPtr(item.CurrentPeriodEnd)
		}
	}

	return data
}

func mapStripeStatus(status string) string {
	switch status {
	case "active":
		return model.SubscriptionStatusActive
	case "trialing":
		return model.SubscriptionStatusTrialing
	case "canceled":
		return model.SubscriptionStatusCanceled
	case "past_due":
		return model.SubscriptionStatusPastDue
	case "incomplete", "incomplete_expired":
		return model.SubscriptionStatusIncomplete
	case "paused":
		return model.SubscriptionStatusPaused
	default:
		return model.SubscriptionStatusIncomplete
	}
}

// metadataUserID reads the owning user from vendor metadata, accepting both key styles.
func metadataUserID(metadata map[string]string) string {
	return firstNonEmpty(metadata["userId"], metadata["user_id"])
}
