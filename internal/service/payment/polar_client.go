package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	polargo "github.com/polarsource/polar-go"
	"github.com/polarsource/polar-go/models/apierrors"
	"github.com/polarsource/polar-go/models/components"
	"github.com/polarsource/polar-go/models/operations"
)

type polarCheckoutRequest struct {
	ProductID  string
	SuccessURL string
	ReturnURL  string
	Email      string
	Metadata   map[string]string
}

// polarAPI is the slice of the Polar API the adapter uses.
type polarAPI interface {
	CreateCheckout(ctx context.Context, req polarCheckoutRequest) (id, url string, err error)
	CreateCustomerSession(ctx context.Context, customerID, returnURL string) (string, error)
	// GetSubscription returns the subscription as JSON in the webhook wire format.
	GetSubscription(ctx context.Context, id string) (json.RawMessage, error)
	CancelSubscription(ctx context.Context, id string, atPeriodEnd bool) error
}

type polarClient struct {
	client *polargo.Polar
}

func newPolarClient(accessToken string, sandbox bool, opts ...polargo.SDKOption) *polarClient {
	server := polargo.ServerProduction
	if sandbox {
		server = polargo.ServerSandbox
	}

	opts = append([]polargo.SDKOption{
		polargo.WithSecurity(accessToken),
		polargo.WithServer(server),
	}, opts...)
	return &polarClient{client: polargo.New(opts...)}
}

func (c *polarClient) CreateCheckout(ctx context.Context, req polarCheckoutRequest) (string, string, error) {
	metadata := make(map[string]components.CheckoutCreateMetadata, len(req.Metadata))
	for k, v := range req.Metadata {
		metadata[k] = components.CreateCheckoutCreateMetadataStr(v)
	}

	create := components.CheckoutCreate{
		Products:           []string{req.ProductID},
		SuccessURL:         polargo.String(req.SuccessURL),
		ReturnURL:          polargo.String(req.ReturnURL),
		AllowDiscountCodes: polargo.Bool(true),
		Metadata:           metadata,
	}
	if req.Email != "" {
		create.CustomerEmail = polargo.String(req.Email)
	}

	res, err := c.client.Checkouts.Create(ctx, create)
	if err != nil {
		return "", "", err
	}
	if res == nil || res.Checkout == nil {
		return "", "", fmt.Errorf("checkout response is nil")
	}
	return res.Checkout.ID, res.Checkout.URL, nil
}

func (c *polarClient) CreateCustomerSession(ctx context.Context, customerID, returnURL string) (string, error) {
	sessionCreate := operations.CreateCustomerSessionsCreateCustomerSessionCreateCustomerSessionCustomerIDCreate(
		components.CustomerSessionCustomerIDCreate{
			CustomerID: customerID,
			ReturnURL:  polargo.String(returnURL),
		},
	)

	res, err := c.client.CustomerSessions.Create(ctx, sessionCreate)
	if err != nil {
		return "", err
	}
	if res == nil || res.CustomerSession == nil {
		return "", fmt.Errorf("customer portal response is nil")
	}
	return res.CustomerSession.CustomerPortalURL, nil
}

func (c *polarClient) GetSubscription(ctx context.Context, id string) (json.RawMessage, error) {
	res, err := c.client.Subscriptions.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if res == nil || res.Subscription == nil {
		return nil, fmt.Errorf("subscription response is nil")
	}
	return json.Marshal(res.Subscription)
}

func (c *polarClient) CancelSubscription(ctx context.Context, id string, atPeriodEnd bool) error {
	if !atPeriodEnd {
		_, err := c.client.Subscriptions.Revoke(ctx, id)
		return err
	}

	update := components.CreateSubscriptionUpdateSubscriptionCancel(components.SubscriptionCancel{
		CancelAtPeriodEnd: true,
	})
	_, err := c.client.Subscriptions.Update(ctx, id, update)
	return err
}

func isPolarNotFound(err error) bool {
	var notFound *apierrors.ResourceNotFound
	if errors.As(err, &notFound) {
		return true
	}
	var apiErr *apierrors.APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}
