package integration

import (
	"errors"
	"fmt"
)

// ---------------------------------------------------------------------------
// Sync Errors
// ---------------------------------------------------------------------------

var (
	// Upstream call classification
	ErrUnauthenticated = errors.New("integration: unauthenticated")
	ErrForbidden       = errors.New("integration: forbidden by upstream")
	ErrRateLimited     = errors.New("integration: rate limited by upstream")
	ErrBatchTooLarge   = errors.New("integration: batch too large")
	ErrTimeout         = errors.New("integration: upstream timeout")
	ErrNotFound        = errors.New("integration: not found upstream")
	ErrUpstream        = errors.New("integration: upstream error")

	// Payload and storage errors
	ErrAggregation   = errors.New("integration: malformed billing payload")
	ErrPersistence   = errors.New("integration: persistence failure")
	ErrInvalidFilter = errors.New("integration: invalid store filter")

	// Credential errors
	ErrCredentialNotFound = errors.New("integration: store credential not found")
	ErrInvalidCredential  = errors.New("integration: invalid store credential")

	// Request errors
	ErrUnsupportedMarketplace = errors.New("integration: unsupported marketplace")
	ErrInvalidSyncRequest     = errors.New("integration: invalid sync request")
	ErrInvalidTimeWindow      = errors.New("integration: invalid time window")
)

// UpstreamError is a non-2xx response that is not retried.
type UpstreamError struct {
	Code    int
	Message string
}

// NewUpstreamError creates an UpstreamError for the given status code
func NewUpstreamError(code int, message string) *UpstreamError {
	return &UpstreamError{Code: code, Message: message}
}

func (e *UpstreamError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("integration: upstream error (HTTP %d)", e.Code)
	}
	return fmt.Sprintf("integration: upstream error (HTTP %d): %s", e.Code, e.Message)
}

// Unwrap lets errors.Is(err, ErrUpstream) match any UpstreamError
func (e *UpstreamError) Unwrap() error {
	return ErrUpstream
}

// PartialError reports items of a batch response that could not be used.
// Records returned alongside it are still valid.
type PartialError struct {
	Failures []ItemFailure
}

func (e *PartialError) Error() string {
	if len(e.Failures) == 1 {
		return fmt.Sprintf("integration: 1 item failed: %s", e.Failures[0].Reason)
	}
	return fmt.Sprintf("integration: %d items failed", len(e.Failures))
}

// AsPartial returns the failures of a PartialError, or false for any other error
func AsPartial(err error) ([]ItemFailure, bool) {
	var partial *PartialError
	if errors.As(err, &partial) {
		return partial.Failures, true
	}
	return nil, false
}

// IsRetryable reports whether the error class may succeed on a later run
// without operator action.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrRateLimited) ||
		errors.Is(err, ErrForbidden) ||
		errors.Is(err, ErrTimeout)
}
