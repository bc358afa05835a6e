package model

import (
	"strings"
	"time"
)

// Customer is a billing vendor identity linked to one user.
type Customer struct {
	ID                 string    `db:"id" json:"id"`
	UserID             string    `db:"user_id" json:"userId"`
	Provider           string    `db:"provider" json:"provider"`
	ProviderCustomerID string    `db:"provider_customer_id" json:"providerCustomerId"`
	Email              *string   `db:"email" json:"email"`
	Provisional        bool      `db:"provisional" json:"provisional"`
	CreatedAt          time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt          time.Time `db:"updated_at" json:"updatedAt"`
}

const provisionalPrefix = "pending_"

// ProvisionalCustomerID is the placeholder used until the vendor reports a real customer id.
func ProvisionalCustomerID(provider, userID string) string {
	return provisionalPrefix + provider + "_" + userID
}

func IsProvisionalCustomerID(id string) bool {
	return strings.HasPrefix(id, provisionalPrefix)
}
