package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/templui/paykit/internal/model"
)

var (
	ErrSubscriptionNotFound = errors.New("subscription not found")
	ErrSubscriptionExists   = errors.New("subscription already exists")
)

type SubscriptionRepository interface {
	// Create returns ErrSubscriptionExists when (provider, provider_subscription_id) is taken.
	Create(ctx context.Context, sub *model.Subscription) error
	ByID(ctx context.Context, id string) (*model.Subscription, error)
	ByProviderSubscriptionID(ctx context.Context, provider, providerSubID string) (*model.Subscription, error)
	// LatestByUserID returns the user's most recently updated subscription.
	LatestByUserID(ctx context.Context, userID string) (*model.Subscription, error)
	ByUserID(ctx context.Context, userID string) ([]model.Subscription, error)
	Update(ctx context.Context, sub *model.Subscription) error
}

type subscriptionRepository struct {
	db DBTX
}

func NewSubscriptionRepository(db DBTX) SubscriptionRepository {
	return &subscriptionRepository{db: db}
}

func (r *subscriptionRepository) Create(ctx context.Context, sub *model.Subscription) error {
	query := `
		INSERT INTO subscriptions (
			id, user_id, customer_id, provider, provider_subscription_id,
			status, plan, interval, amount, currency,
			current_period_start, current_period_end, cancel_at_period_end,
			canceled_at, trial_start, trial_end, last_event_at,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
		ON CONFLICT DO NOTHING
	`

	result, err := r.db.ExecContext(ctx, query,
		sub.ID,
		sub.UserID,
		sub.CustomerID,
		sub.Provider,
		sub.ProviderSubscriptionID,
		sub.Status,
		sub.Plan,
		sub.Interval,
		sub.Amount,
		sub.Currency,
		sub.CurrentPeriodStart,
		sub.CurrentPeriodEnd,
		sub.CancelAtPeriodEnd,
		sub.CanceledAt,
		sub.TrialStart,
		sub.TrialEnd,
		sub.LastEventAt,
		sub.CreatedAt,
		sub.UpdatedAt,
	)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrSubscriptionExists
	}

	return nil
}

func (r *subscriptionRepository) ByID(ctx context.Context, id string) (*model.Subscription, error) {
	return r.get(ctx, `SELECT * FROM subscriptions WHERE id = $1`, id)
}

func (r *subscriptionRepository) ByProviderSubscriptionID(ctx context.Context, provider, providerSubID string) (*model.Subscription, error) {
	query := `SELECT * FROM subscriptions WHERE provider = $1 AND provider_subscription_id = $2`
	return r.get(ctx, query, provider, providerSubID)
}

func (r *subscriptionRepository) LatestByUserID(ctx context.Context, userID string) (*model.Subscription, error) {
	query := `
		SELECT * FROM subscriptions
		WHERE user_id = $1
		ORDER BY updated_at DESC, created_at DESC
		LIMIT 1
	`
	return r.get(ctx, query, userID)
}

func (r *subscriptionRepository) ByUserID(ctx context.Context, userID string) ([]model.Subscription, error) {
	subs := []model.Subscription{}
	query := `SELECT * FROM subscriptions WHERE user_id = $1 ORDER BY updated_at DESC, created_at DESC`

	err := r.db.SelectContext(ctx, &subs, query, userID)
	if err != nil {
		return nil, err
	}

	return subs, nil
}

// Update writes the mutable fields. The natural key and created_at are never changed.
func (r *subscriptionRepository) Update(ctx context.Context, sub *model.Subscription) error {
	query := `
		UPDATE subscriptions
		SET customer_id = $1,
		    status = $2,
		    plan = $3,
		    interval = $4,
		    amount = $5,
		    currency = $6,
		    current_period_start = $7,
		    current_period_end = $8,
		    cancel_at_period_end = $9,
		    canceled_at = $10,
		    trial_start = $11,
		    trial_end = $12,
		    last_event_at = $13,
		    updated_at = $14
		WHERE id = $15
	`

	result, err := r.db.ExecContext(ctx, query,
		sub.CustomerID,
		sub.Status,
		sub.Plan,
		sub.Interval,
		sub.Amount,
		sub.Currency,
		sub.CurrentPeriodStart,
		sub.CurrentPeriodEnd,
		sub.CancelAtPeriodEnd,
		sub.CanceledAt,
		sub.TrialStart,
		sub.TrialEnd,
		sub.LastEventAt,
		sub.UpdatedAt,
		sub.ID,
	)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rows == 0 {
		return ErrSubscriptionNotFound
	}

	return nil
}

func (r *subscriptionRepository) get(ctx context.Context, query string, args ...any) (*model.Subscription, error) {
	sub := &model.Subscription{}

	err := r.db.GetContext(ctx, sub, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSubscriptionNotFound
	}
	if err != nil {
		return nil, err
	}

	return sub, nil
}
