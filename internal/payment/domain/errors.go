package domain

import "errors"

var (
	ErrPaymentNotFound   = errors.New("payment_not_found")
	ErrInvalidStatus     = errors.New("invalid_status")
	ErrInvalidMethod     = errors.New("invalid_method")
	ErrInvalidTransition = errors.New("invalid_transition")
	// ErrImmutableState rejects edits to amount, discount or fine once the
	// payment is PAID or REFUNDED.
	ErrImmutableState = errors.New("immutable_state")
	ErrAlreadyDeleted = errors.New("payment_already_deleted")
	ErrMissingTenant  = errors.New("missing_tenant")
	ErrMissingGateway = errors.New("missing_gateway")
)
