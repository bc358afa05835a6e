package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/templui/paykit/internal/model"
)

var (
	ErrCustomerNotFound = errors.New("customer not found")
	ErrCustomerExists   = errors.New("customer already exists")
)

type CustomerRepository interface {
	// Create returns ErrCustomerExists when (provider, provider_customer_id) is taken.
	Create(ctx context.Context, customer *model.Customer) error
	ByID(ctx context.Context, id string) (*model.Customer, error)
	ByProviderCustomerID(ctx context.Context, provider, providerCustomerID string) (*model.Customer, error)
	// ByUserID returns the user's customers, most recently updated first.
	ByUserID(ctx context.Context, userID string) ([]model.Customer, error)
	ProvisionalByUser(ctx context.Context, userID, provider string) (*model.Customer, error)
	Update(ctx context.Context, customer *model.Customer) error
}

type customerRepository struct {
	db DBTX
}

func NewCustomerRepository(db DBTX) CustomerRepository {
	return &customerRepository{db: db}
}

func (r *customerRepository) Create(ctx context.Context, c *model.Customer) error {
	query := `
		INSERT INTO customers (
			id, user_id, provider, provider_customer_id, email, provisional,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT DO NOTHING
	`

	result, err := r.db.ExecContext(ctx, query,
		c.ID,
		c.UserID,
		c.Provider,
		c.ProviderCustomerID,
		c.Email,
		c.Provisional,
		c.CreatedAt,
		c.UpdatedAt,
	)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrCustomerExists
	}

	return nil
}

func (r *customerRepository) ByID(ctx context.Context, id string) (*model.Customer, error) {
	return r.get(ctx, `SELECT * FROM customers WHERE id = $1`, id)
}

func (r *customerRepository) ByProviderCustomerID(ctx context.Context, provider, providerCustomerID string) (*model.Customer, error) {
	query := `SELECT * FROM customers WHERE provider = $1 AND provider_customer_id = $2`
	return r.get(ctx, query, provider, providerCustomerID)
}

func (r *customerRepository) ByUserID(ctx context.Context, userID string) ([]model.Customer, error) {
	customers := []model.Customer{}
	query := `SELECT * FROM customers WHERE user_id = $1 ORDER BY updated_at DESC, created_at DESC`

	err := r.db.SelectContext(ctx, &customers, query, userID)
	if err != nil {
		return nil, err
	}

	return customers, nil
}

func (r *customerRepository) ProvisionalByUser(ctx context.Context, userID, provider string) (*model.Customer, error) {
	query := `
		SELECT * FROM customers
		WHERE user_id = $1 AND provider = $2 AND provisional = $3
		ORDER BY created_at DESC
		LIMIT 1
	`
	return r.get(ctx, query, userID, provider, true)
}

func (r *customerRepository) Update(ctx context.Context, c *model.Customer) error {
	query := `
		UPDATE customers
		SET provider_customer_id = $1,
		    email = $2,
		    provisional = $3,
		    updated_at = $4
		WHERE id = $5
	`

	result, err := r.db.ExecContext(ctx, query,
		c.ProviderCustomerID,
		c.Email,
		c.Provisional,
		c.UpdatedAt,
		c.ID,
	)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rows == 0 {
		return ErrCustomerNotFound
	}

	return nil
}

func (r *customerRepository) get(ctx context.Context, query string, args ...any) (*model.Customer, error) {
	c := &model.Customer{}

	err := r.db.GetContext(ctx, c, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCustomerNotFound
	}
	if err != nil {
		return nil, err
	}

	return c, nil
}
