package payment

import "fmt"

// lemonSqueezyDocument is a single-resource JSON:API document.
type lemonSqueezyDocument[A any] struct {
	Data struct {
		ID         string `json:"id"`
		Type       string `json:"type"`
		Attributes A      `json:"attributes"`
	} `json:"data"`
}

type lemonSqueezyWebhook[A any] struct {
	Meta struct {
		EventName  string                 `json:"event_name"`
		CustomData lemonSqueezyCustomData `json:"custom_data"`
	} `json:"meta"`
	lemonSqueezyDocument[A]
}

type lemonSqueezyCustomData map[string]any

func (c lemonSqueezyCustomData) userID() string {
	for _, key := range []string{"user_id", "userId"} {
		if v, ok := c[key]; ok && v != nil {
			if s, ok := v.(string); ok {
				if s != "" {
					return s
				}
				continue
			}
			return fmt.Sprint(v)
		}
	}
	return ""
}

type lemonSqueezyCheckoutAttributes struct {
	URL string `json:"url"`
}

type lemonSqueezyCustomerAttributes struct {
	Email string `json:"email"`
	URLs  struct {
		CustomerPortal string `json:"customer_portal"`
	} `json:"urls"`
}

type lemonSqueezySubscriptionAttributes struct {
	CustomerID  int64  `json:"customer_id"`
	ProductID   int64  `json:"product_id"`
	VariantID   int64  `json:"variant_id"`
	VariantName string `json:"variant_name"`
	UserEmail   string `json:"user_email"`
	Status      string `json:"status"`
	Cancelled   bool   `json:"cancelled"`
	TrialEndsAt string `json:"trial_ends_at"`
	RenewsAt    string `json:"renews_at"`
	EndsAt      string `json:"ends_at"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

type lemonSqueezyInvoiceAttributes struct {
	SubscriptionID int64  `json:"subscription_id"`
	CustomerID     int64  `json:"customer_id"`
	Status         string `json:"status"`
	Total          int64  `json:"total"`
	Currency       string `json:"currency"`
}

type lemonSqueezyOrderAttributes struct {
	CustomerID     int64  `json:"customer_id"`
	Identifier     string `json:"identifier"`
	Status         string `json:"status"`
	Total          int64  `json:"total"`
	Currency       string `json:"currency"`
	UserEmail      string `json:"user_email"`
	FirstOrderItem struct {
		VariantID int64 `json:"variant_id"`
	} `json:"first_order_item"`
}
