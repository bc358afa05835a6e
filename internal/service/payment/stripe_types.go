package payment

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// stripeRef decodes a Stripe expandable field, either an id string or an object with an id.
type stripeRef struct {
	ID string
}

func (r *stripeRef) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	if b[0] == '"' {
		return json.Unmarshal(b, &r.ID)
	}
	var obj struct {
		ID string `json:"id"`
	}
	err := json.Unmarshal(b, &obj)
	if err != nil {
		return err
	}
	r.ID = obj.ID
	return nil
}

type stripePrice struct {
	ID         string `json:"id"`
	UnitAmount int64  `json:"unit_amount"`
	Currency   string `json:"currency"`
	Type       string `json:"type"`
	Recurring  *struct {
		Interval string `json:"interval"`
	} `json:"recurring"`
}

type stripeCustomer struct {
	ID       string            `json:"id"`
	Email    string            `json:"email"`
	Metadata map[string]string `json:"metadata"`
}

type stripeSubscription struct {
	ID                 string            `json:"id"`
	Customer           stripeRef         `json:"customer"`
	Status             string            `json:"status"`
	CurrentPeriodStart int64             `json:"current_period_start"`
	CurrentPeriodEnd   int64             `json:"current_period_end"`
	CancelAtPeriodEnd  bool              `json:"cancel_at_period_end"`
	CanceledAt         int64             `json:"canceled_at"`
	TrialStart         int64             `json:"trial_start"`
	TrialEnd           int64             `json:"trial_end"`
	Metadata           map[string]string `json:"metadata"`
	Items              struct {
		Data []struct {
			Price              stripePrice `json:"price"`
			Quantity           int64       `json:"quantity"`
			CurrentPeriodStart int64       `json:"current_period_start"`
			CurrentPeriodEnd   int64       `json:"current_period_end"`
		} `json:"data"`
	} `json:"items"`
}

type stripeInvoice struct {
	ID                  string            `json:"id"`
	Customer            stripeRef         `json:"customer"`
	Subscription        stripeRef         `json:"subscription"`
	AmountPaid          int64             `json:"amount_paid"`
	AmountDue           int64             `json:"amount_due"`
	Currency            string            `json:"currency"`
	Description         string            `json:"description"`
	PeriodEnd           int64             `json:"period_end"`
	Metadata            map[string]string `json:"metadata"`
	SubscriptionDetails struct {
		Metadata map[string]string `json:"metadata"`
	} `json:"subscription_details"`
	Parent struct {
		SubscriptionDetails struct {
			Subscription stripeRef         `json:"subscription"`
			Metadata     map[string]string `json:"metadata"`
		} `json:"subscription_details"`
	} `json:"parent"`
	Lines struct {
		Data []struct {
			Metadata map[string]string `json:"metadata"`
		} `json:"data"`
	} `json:"lines"`
}

func (inv stripeInvoice) subscriptionID() string {
	return firstNonEmpty(inv.Subscription.ID, inv.Parent.SubscriptionDetails.Subscription.ID)
}

// userID searches the metadata copies Stripe attaches to invoices.
func (inv stripeInvoice) userID() string {
	candidates := []map[string]string{
		inv.Metadata,
		inv.SubscriptionDetails.Metadata,
		inv.Parent.SubscriptionDetails.Metadata,
	}
	for _, line := range inv.Lines.Data {
		candidates = append(candidates, line.Metadata)
	}
	for _, md := range candidates {
		if id := metadataUserID(md); id != "" {
			return id
		}
	}
	return ""
}

func (inv stripeInvoice) description() string {
	if inv.Description != "" {
		return inv.Description
	}
	if inv.PeriodEnd > 0 {
		return fmt.Sprintf("Payment for %s", time.Unix(inv.PeriodEnd, 0).UTC().Format("2006-01-02"))
	}
	return "Payment for subscription"
}

type stripeCheckoutSession struct {
	ID                string            `json:"id"`
	Customer          stripeRef         `json:"customer"`
	CustomerEmail     string            `json:"customer_email"`
	ClientReferenceID string            `json:"client_reference_id"`
	Mode              string            `json:"mode"`
	PaymentStatus     string            `json:"payment_status"`
	PaymentIntent     stripeRef         `json:"payment_intent"`
	Subscription      stripeRef         `json:"subscription"`
	AmountTotal       int64             `json:"amount_total"`
	Currency          string            `json:"currency"`
	Metadata          map[string]string `json:"metadata"`
	CustomerDetails   struct {
		Email string `json:"email"`
	} `json:"customer_details"`
}

type stripeCharge struct {
	ID             string            `json:"id"`
	Customer       stripeRef         `json:"customer"`
	Invoice        stripeRef         `json:"invoice"`
	PaymentIntent  stripeRef         `json:"payment_intent"`
	AmountRefunded int64             `json:"amount_refunded"`
	Currency       string            `json:"currency"`
	Description    string            `json:"description"`
	Metadata       map[string]string `json:"metadata"`
}
