package model

import (
	"fmt"
	"time"
)

type Subscription struct {
	ID                     string     `db:"id" json:"id"`
	UserID                 string     `db:"user_id" json:"userId"`
	CustomerID             *string    `db:"customer_id" json:"customerId"`
	Provider               string     `db:"provider" json:"provider"`
	ProviderSubscriptionID string     `db:"provider_subscription_id" json:"providerSubscriptionId"`
	Status                 string     `db:"status" json:"status"`
	Plan                   string     `db:"plan" json:"plan"`
	Interval               *string    `db:"interval" json:"interval"`
	Amount                 *int64     `db:"amount" json:"amount"`
	Currency               *string    `db:"currency" json:"currency"`
	CurrentPeriodStart     *time.Time `db:"current_period_start" json:"currentPeriodStart"`
	CurrentPeriodEnd       *time.Time `db:"current_period_end" json:"currentPeriodEnd"`
	CancelAtPeriodEnd      bool       `db:"cancel_at_period_end" json:"cancelAtPeriodEnd"`
	CanceledAt             *time.Time `db:"canceled_at" json:"canceledAt"`
	TrialStart             *time.Time `db:"trial_start" json:"trialStart"`
	TrialEnd               *time.Time `db:"trial_end" json:"trialEnd"`
	LastEventAt            *time.Time `db:"last_event_at" json:"-"`
	CreatedAt              time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt              time.Time  `db:"updated_at" json:"updatedAt"`
}

const (
	SubscriptionStatusActive     = "active"
	SubscriptionStatusCanceled   = "canceled"
	SubscriptionStatusPastDue    = "past_due"
	SubscriptionStatusTrialing   = "trialing"
	SubscriptionStatusIncomplete = "incomplete"
	SubscriptionStatusPaused     = "paused"
)

const (
	ProviderStripe       = "stripe"
	ProviderPolar        = "polar"
	ProviderLemonSqueezy = "lemonsqueezy"
)

// Providers lists every supported billing vendor.
var Providers = []string{ProviderStripe, ProviderPolar, ProviderLemonSqueezy}

const (
	PlanFree       = "free"
	PlanStarter    = "starter"
	PlanPro        = "pro"
	PlanEnterprise = "enterprise"
)

const (
	IntervalMonth = "month"
	IntervalYear  = "year"
)

func (s *Subscription) IsActive() bool {
	return s.Status == SubscriptionStatusActive || s.Status == SubscriptionStatusTrialing
}

func (s *Subscription) IsPaid() bool {
	return s.Plan != PlanFree && s.IsActive()
}

func (s *Subscription) FormatPrice() string {
	if s.Amount == nil || *s.Amount == 0 {
		return ""
	}

	currencySymbols := map[string]string{
		"usd": "$",
		"eur": "€",
		"gbp": "£",
	}

	amount := float64(*s.Amount) / 100.0
	symbol := ""
	if s.Currency != nil {
		symbol = currencySymbols[*s.Currency]
	}
	if symbol == "" {
		symbol = "$"
	}

	if s.Interval == nil {
		return fmt.Sprintf("%s%.2f", symbol, amount)
	}
	return fmt.Sprintf("%s%.2f/%s", symbol, amount, *s.Interval)
}
