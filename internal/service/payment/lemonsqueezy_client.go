package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/NdoleStudio/lemonsqueezy-go"
)

// errLemonSqueezyNotFound marks a 404 from the Lemon Squeezy API.
var errLemonSqueezyNotFound = errors.New("lemon squeezy resource not found")

type lemonSqueezyCheckoutRequest struct {
	VariantID   string
	RedirectURL string
	Email       string
	Custom      map[string]any
}

// lemonSqueezyAPI is the slice of the Lemon Squeezy API the adapter uses.
// Resource reads return the raw JSON:API document.
type lemonSqueezyAPI interface {
	CreateCheckout(ctx context.Context, req lemonSqueezyCheckoutRequest) (json.RawMessage, error)
	GetSubscription(ctx context.Context, id string) (json.RawMessage, error)
	CancelSubscription(ctx context.Context, id string) error
	GetCustomer(ctx context.Context, id string) (json.RawMessage, error)
}

type lemonSqueezyClient struct {
	client  *lemonsqueezy.Client
	storeID int
}

func newLemonSqueezyClient(apiKey string, storeID int, opts ...lemonsqueezy.Option) *lemonSqueezyClient {
	return &lemonSqueezyClient{
		client:  lemonsqueezy.New(append([]lemonsqueezy.Option{lemonsqueezy.WithAPIKey(apiKey)}, opts...)...),
		storeID: storeID,
	}
}

func (c *lemonSqueezyClient) CreateCheckout(ctx context.Context, req lemonSqueezyCheckoutRequest) (json.RawMessage, error) {
	variantID, err := strconv.Atoi(req.VariantID)
	if err != nil {
		return nil, fmt.Errorf("invalid variant id %q: %w", req.VariantID, err)
	}

	attrs := &lemonsqueezy.CheckoutCreateAttributes{
		ProductOptions: lemonsqueezy.CheckoutCreateProductOptions{
			RedirectURL:       req.RedirectURL,
			ReceiptButtonText: "Go to Dashboard",
			ReceiptLinkURL:    req.RedirectURL,
		},
		CheckoutData: lemonsqueezy.CheckoutCreateData{
			Email:  req.Email,
			Custom: req.Custom,
		},
	}

	_, resp, err := c.client.Checkouts.Create(ctx, c.storeID, variantID, attrs)
	return rawBody(resp, err)
}

func (c *lemonSqueezyClient) GetSubscription(ctx context.Context, id string) (json.RawMessage, error) {
	_, resp, err := c.client.Subscriptions.Get(ctx, id)
	return rawBody(resp, err)
}

func (c *lemonSqueezyClient) CancelSubscription(ctx context.Context, id string) error {
	_, resp, err := c.client.Subscriptions.Cancel(ctx, id)
	_, err = rawBody(resp, err)
	return err
}

func (c *lemonSqueezyClient) GetCustomer(ctx context.Context, id string) (json.RawMessage, error) {
	_, resp, err := c.client.Customers.Get(ctx, id)
	return rawBody(resp, err)
}

func rawBody(resp *lemonsqueezy.Response, err error) (json.RawMessage, error) {
	if resp != nil && resp.HTTPResponse != nil && resp.HTTPResponse.StatusCode == http.StatusNotFound {
		return nil, errLemonSqueezyNotFound
	}
	if err != nil {
		return nil, err
	}
	if resp == nil || resp.Body == nil {
		return nil, fmt.Errorf("empty response body")
	}
	return json.RawMessage(*resp.Body), nil
}
