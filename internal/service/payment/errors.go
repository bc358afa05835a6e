package payment

import "errors"

var (
	// ErrConfiguration means a credential or catalog price is missing.
	ErrConfiguration = errors.New("payment configuration error")
	// ErrSignatureInvalid means a webhook failed signature verification.
	ErrSignatureInvalid = errors.New("invalid webhook signature")
	// ErrProvider wraps failures of the vendor API itself.
	ErrProvider = errors.New("payment provider error")
	// ErrNotFound means the vendor has no such entity or no portal for it.
	ErrNotFound = errors.New("not found")
)
