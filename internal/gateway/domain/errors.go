package domain

import "errors"

var (
	ErrInvalidProvider       = errors.New("invalid_provider")
	ErrProviderNotFound      = errors.New("provider_not_found")
	ErrInvalidConfig         = errors.New("invalid_gateway_config")
	ErrInvalidPayload        = errors.New("invalid_payload")
	ErrInvalidEvent          = errors.New("invalid_event")
	// ErrInvalidSignature rejects a webhook whose signature does not match.
	// No state changes; the caller logs and returns 403.
	ErrInvalidSignature      = errors.New("invalid_signature")
	ErrEventIgnored          = errors.New("event_ignored")
	ErrEventAlreadyProcessed = errors.New("event_already_processed")
	ErrUnknownTransaction    = errors.New("unknown_transaction")
	// ErrGatewayUnavailable wraps submission failures. The payment is left
	// FAILED; retries are an operator decision, not automatic.
	ErrGatewayUnavailable    = errors.New("gateway_unavailable")
)
