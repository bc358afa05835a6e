package payment

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/client"
)

// stripeAPI is the slice of the Stripe API the adapter uses.
type stripeAPI interface {
	FindCustomerByEmail(ctx context.Context, email string) (*stripe.Customer, error)
	CreateCustomer(ctx context.Context, params *stripe.CustomerParams) (*stripe.Customer, error)
	CreateCheckoutSession(ctx context.Context, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	CreatePortalSession(ctx context.Context, params *stripe.BillingPortalSessionParams) (*stripe.BillingPortalSession, error)
	// GetSubscription returns the subscription as raw API JSON.
	GetSubscription(ctx context.Context, id string) (json.RawMessage, error)
	UpdateSubscription(ctx context.Context, id string, params *stripe.SubscriptionParams) error
	CancelSubscription(ctx context.Context, id string) error
}

type stripeClient struct {
	api *client.API
}

// newStripeClient talks to the live API when backends is nil.
func newStripeClient(secretKey string, backends *stripe.Backends) *stripeClient {
	return &stripeClient{api: client.New(secretKey, backends)}
}

func (c *stripeClient) FindCustomerByEmail(ctx context.Context, email string) (*stripe.Customer, error) {
	params := &stripe.CustomerListParams{Email: stripe.String(email)}
	params.Context = ctx
	params.Limit = stripe.Int64(1)

	iter := c.api.Customers.List(params)
	if iter.Next() {
		return iter.Customer(), nil
	}
	return nil, iter.Err()
}

func (c *stripeClient) CreateCustomer(ctx context.Context, params *stripe.CustomerParams) (*stripe.Customer, error) {
	params.Context = ctx
	return c.api.Customers.New(params)
}

func (c *stripeClient) CreateCheckoutSession(ctx context.Context, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	params.Context = ctx
	return c.api.CheckoutSessions.New(params)
}

func (c *stripeClient) CreatePortalSession(ctx context.Context, params *stripe.BillingPortalSessionParams) (*stripe.BillingPortalSession, error) {
	params.Context = ctx
	return c.api.BillingPortalSessions.New(params)
}

func (c *stripeClient) GetSubscription(ctx context.Context, id string) (json.RawMessage, error) {
	params := &stripe.SubscriptionParams{}
	params.Context = ctx
	params.AddExpand("items.data.price")

	sub, err := c.api.Subscriptions.Get(id, params)
	if err != nil {
		return nil, err
	}
	if sub.LastResponse != nil && len(sub.LastResponse.RawJSON) > 0 {
		return sub.LastResponse.RawJSON, nil
	}
	return json.Marshal(sub)
}

func (c *stripeClient) UpdateSubscription(ctx context.Context, id string, params *stripe.SubscriptionParams) error {
	params.Context = ctx
	_, err := c.api.Subscriptions.Update(id, params)
	return err
}

func (c *stripeClient) CancelSubscription(ctx context.Context, id string) error {
	params := &stripe.SubscriptionCancelParams{}
	params.Context = ctx
	_, err := c.api.Subscriptions.Cancel(id, params)
	return err
}

func isStripeNotFound(err error) bool {
	var stripeErr *stripe.Error
	if !errors.As(err, &stripeErr) {
		return false
	}
	return stripeErr.HTTPStatusCode == http.StatusNotFound || stripeErr.Code == stripe.ErrorCodeResourceMissing
}
