package payment

import "fmt"

// polarMetadata tolerates the string, number and boolean values Polar allows.
type polarMetadata map[string]any

func (m polarMetadata) get(key string) string {
	v, ok := m[key]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return fmt.Sprintf("%.0f", t)
	default:
		return fmt.Sprint(t)
	}
}

func (m polarMetadata) userID() string {
	return firstNonEmpty(m.get("user_id"), m.get("userId"))
}

type polarCustomer struct {
	ID         string        `json:"id"`
	Email      string        `json:"email"`
	ExternalID *string       `json:"external_id"`
	Metadata   polarMetadata `json:"metadata"`
}

func (c *polarCustomer) id() string {
	if c == nil {
		return ""
	}
	return c.ID
}

func (c *polarCustomer) userID() string {
	if c == nil {
		return ""
	}
	if c.ExternalID != nil && *c.ExternalID != "" {
		return *c.ExternalID
	}
	return c.Metadata.userID()
}

type polarProduct struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func (p *polarProduct) id() string {
	if p == nil {
		return ""
	}
	return p.ID
}

func (p *polarProduct) name() string {
	if p == nil {
		return ""
	}
	return p.Name
}

type polarSubscription struct {
	ID                 string         `json:"id"`
	Status             string         `json:"status"`
	CustomerID         string         `json:"customer_id"`
	ProductID          string         `json:"product_id"`
	Amount             *int64         `json:"amount"`
	Currency           string         `json:"currency"`
	RecurringInterval  string         `json:"recurring_interval"`
	CurrentPeriodStart string         `json:"current_period_start"`
	CurrentPeriodEnd   string         `json:"current_period_end"`
	CancelAtPeriodEnd  bool           `json:"cancel_at_period_end"`
	CanceledAt         string         `json:"canceled_at"`
	TrialStart         string         `json:"trial_start"`
	TrialEnd           string         `json:"trial_end"`
	Metadata           polarMetadata  `json:"metadata"`
	Customer           *polarCustomer `json:"customer"`
	Product            *polarProduct  `json:"product"`
}

// userID prefers checkout metadata, then the customer's external id or metadata.
func (s polarSubscription) userID() string {
	return firstNonEmpty(s.Metadata.userID(), s.Customer.userID())
}

type polarOrder struct {
	ID             string         `json:"id"`
	Status         string         `json:"status"`
	CustomerID     string         `json:"customer_id"`
	SubscriptionID string         `json:"subscription_id"`
	Amount         int64          `json:"amount"`
	TotalAmount    int64          `json:"total_amount"`
	RefundedAmount int64          `json:"refunded_amount"`
	Currency       string         `json:"currency"`
	Metadata       polarMetadata  `json:"metadata"`
	Customer       *polarCustomer `json:"customer"`
	Product        *polarProduct  `json:"product"`
}

func (o polarOrder) userID() string {
	return firstNonEmpty(o.Metadata.userID(), o.Customer.userID())
}

func (o polarOrder) amount() int64 {
	if o.TotalAmount > 0 {
		return o.TotalAmount
	}
	return o.Amount
}
