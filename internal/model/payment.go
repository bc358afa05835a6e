package model

import (
	"fmt"
	"strings"
	"time"
)

type Payment struct {
	ID                string     `db:"id" json:"id"`
	UserID            string     `db:"user_id" json:"userId"`
	CustomerID        *string    `db:"customer_id" json:"customerId"`
	SubscriptionID    *string    `db:"subscription_id" json:"subscriptionId"`
	Provider          string     `db:"provider" json:"provider"`
	ProviderPaymentID string     `db:"provider_payment_id" json:"providerPaymentId"`
	Type              string     `db:"type" json:"type"`
	Status            string     `db:"status" json:"status"`
	Amount            int64      `db:"amount" json:"amount"`
	Currency          string     `db:"currency" json:"currency"`
	Description       *string    `db:"description" json:"description"`
	LastEventAt       *time.Time `db:"last_event_at" json:"-"`
	CreatedAt         time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt         time.Time  `db:"updated_at" json:"updatedAt"`
}

const (
	PaymentStatusSucceeded = "succeeded"
	PaymentStatusPending   = "pending"
	PaymentStatusFailed    = "failed"
	PaymentStatusCanceled  = "canceled"
	PaymentStatusRefunded  = "refunded"
)

const (
	PaymentTypeSubscription = "subscription"
	PaymentTypeOneTime      = "one_time"
	PaymentTypeRefund       = "refund"
)

// FormatAmount renders the minor-unit amount with its currency code, e.g. "29.90 USD".
func (p *Payment) FormatAmount() string {
	return fmt.Sprintf("%d.%02d %s", p.Amount/100, p.Amount%100, strings.ToUpper(p.Currency))
}
