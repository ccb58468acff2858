package gcm

import "errors"

var (
	ErrMissingAPIKey     = errors.New("gcm: api key is required")
	ErrNoRecipients      = errors.New("gcm: at least one recipient is required")
	ErrTooManyRecipients = errors.New("gcm: too many recipients for one message")
	ErrInvalidResponse   = errors.New("gcm: invalid gateway response")
	ErrCircuitOpen       = errors.New("gcm: circuit breaker is open")
	ErrTemporaryFailure  = errors.New("gcm: temporary delivery failure")
)
