package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/templui/paykit/internal/model"
	"github.com/templui/paykit/internal/repository"
	"github.com/templui/paykit/internal/validation"
)

var (
	ErrEmailAlreadyExists = errors.New("email already exists")
	ErrActiveSubscription = errors.New("cannot delete account with active subscription")
)

type UserService struct {
	store *repository.Store
}

func NewUserService(store *repository.Store) *UserService {
	return &UserService{store: store}
}

func (s *UserService) Create(ctx context.Context, email string) (*model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	err := validation.ValidateEmail(email)
	if err != nil {
		return nil, err
	}

	user := &model.User{
		ID:        uuid.New().String(),
		Email:     email,
		CreatedAt: time.Now().UTC(),
	}

	err = s.store.Users.Create(ctx, user)
	if errors.Is(err, repository.ErrDuplicateEmail) {
		return nil, ErrEmailAlreadyExists
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	slog.Info("user created", "user_id", user.ID)
	return user, nil
}

func (s *UserService) ByID(ctx context.Context, id string) (*model.User, error) {
	return s.store.Users.ByID(ctx, id)
}

func (s *UserService) ByEmail(ctx context.Context, email string) (*model.User, error) {
	return s.store.Users.ByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
}

// DeleteAccount removes the user. Billing rows cascade with it, so accounts
// still paying or inside a paid period are refused.
func (s *UserService) DeleteAccount(ctx context.Context, userID string) error {
	sub, err := s.store.Subscriptions.LatestByUserID(ctx, userID)
	if err != nil && !errors.Is(err, repository.ErrSubscriptionNotFound) {
		return fmt.Errorf("failed to check subscription: %w", err)
	}

	if sub != nil && sub.Plan != model.PlanFree &&
		(sub.IsActive() || (sub.CurrentPeriodEnd != nil && sub.CurrentPeriodEnd.After(time.Now()))) {
		return ErrActiveSubscription
	}

	// Foreign key CASCADE removes customers, subscriptions and payments
	err = s.store.Users.Delete(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}

	return nil
}
