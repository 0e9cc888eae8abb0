package ports

import (
	"errors"
	"fmt"
)

// Standard application-level errors.
// Adapters wrap underlying infrastructure errors with these so the core can
// classify failures without importing adapter packages.
var (
	// General errors
	ErrUnknown            = errors.New("unknown error occurred")
	ErrInvalidRequest     = errors.New("invalid request parameters or format")
	ErrNotFound           = errors.New("resource not found")
	ErrTimeout            = errors.New("operation timed out")
	ErrContextCanceled    = errors.New("operation canceled via context")
	ErrConfigurationError = errors.New("invalid or missing configuration")

	// Broker and feed errors
	ErrBrokerUnavailable    = errors.New("broker API is unavailable")
	ErrConnectionFailed     = errors.New("failed to connect")
	ErrRateLimited          = errors.New("API rate limit exceeded")
	ErrAuthenticationFailed = errors.New("session authentication failed")
	ErrOrderRejected        = errors.New("order rejected by broker")
	ErrOrderPlacementFailed = errors.New("failed to place order")
	ErrOrderCancelFailed    = errors.New("failed to cancel order")
	ErrOrderNotFound        = errors.New("order not found")
	ErrInvalidInterval      = errors.New("unsupported historical interval")
	ErrReconnectExhausted   = errors.New("reconnect attempts exhausted")

	// Database errors
	ErrDuplicateEntry = errors.New("database record already exists")
	ErrDBConnection   = errors.New("database connection error")
	ErrQueryFailed    = errors.New("database query failed")
	ErrUpdateFailed   = errors.New("database update failed")
)

// APIError carries the HTTP status of a failed broker call so callers can
// distinguish transient failures (429, 5xx) from permanent ones.
type APIError struct {
	StatusCode int
	Body       []byte
}

func (e *APIError) Error() string {
	return fmt.Sprintf("broker API error: status=%d body=%s", e.StatusCode, string(e.Body))
}

// Transient reports whether the status code is worth a single retry.
func (e *APIError) Transient() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500
}
