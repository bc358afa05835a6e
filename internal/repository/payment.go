package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/templui/paykit/internal/model"
)

var (
	ErrPaymentNotFound = errors.New("payment not found")
	ErrPaymentExists   = errors.New("payment already exists")
)

type PaymentRepository interface {
	// Create returns ErrPaymentExists when (provider, provider_payment_id) is taken.
	Create(ctx context.Context, p *model.Payment) error
	ByProviderPaymentID(ctx context.Context, provider, providerPaymentID string) (*model.Payment, error)
	ByUserID(ctx context.Context, userID string) ([]model.Payment, error)
	Update(ctx context.Context, p *model.Payment) error
}

type paymentRepository struct {
	db DBTX
}

func NewPaymentRepository(db DBTX) PaymentRepository {
	return &paymentRepository{db: db}
}

func (r *paymentRepository) Create(ctx context.Context, p *model.Payment) error {
	query := `
		INSERT INTO payments (
			id, user_id, customer_id, subscription_id, provider, provider_payment_id,
			type, status, amount, currency, description, last_event_at,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT DO NOTHING
	`

	result, err := r.db.ExecContext(ctx, query,
		p.ID,
		p.UserID,
		p.CustomerID,
		p.SubscriptionID,
		p.Provider,
		p.ProviderPaymentID,
		p.Type,
		p.Status,
		p.Amount,
		p.Currency,
		p.Description,
		p.LastEventAt,
		p.CreatedAt,
		p.UpdatedAt,
	)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrPaymentExists
	}

	return nil
}

func (r *paymentRepository) ByProviderPaymentID(ctx context.Context, provider, providerPaymentID string) (*model.Payment, error) {
	p := &model.Payment{}
	query := `SELECT * FROM payments WHERE provider = $1 AND provider_payment_id = $2`

	err := r.db.GetContext(ctx, p, query, provider, providerPaymentID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPaymentNotFound
	}
	if err != nil {
		return nil, err
	}

	return p, nil
}

func (r *paymentRepository) ByUserID(ctx context.Context, userID string) ([]model.Payment, error) {
	payments := []model.Payment{}
	query := `SELECT * FROM payments WHERE user_id = $1 ORDER BY created_at DESC`

	err := r.db.SelectContext(ctx, &payments, query, userID)
	if err != nil {
		return nil, err
	}

	return payments, nil
}

// Update changes status and references only. Type, amount and currency are fixed at creation.
func (r *paymentRepository) Update(ctx context.Context, p *model.Payment) error {
	query := `
		UPDATE payments
		SET status = $1,
		    customer_id = $2,
		    subscription_id = $3,
		    description = $4,
		    last_event_at = $5,
		    updated_at = $6
		WHERE id = $7
	`

	result, err := r.db.ExecContext(ctx, query,
		p.Status,
		p.CustomerID,
		p.SubscriptionID,
		p.Description,
		p.LastEventAt,
		p.UpdatedAt,
		p.ID,
	)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rows == 0 {
		return ErrPaymentNotFound
	}

	return nil
}
