package collaborator

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrorCategory is the normalized failure taxonomy shared by all collaborator clients.
type ErrorCategory string

const (
	ErrorTimeout          ErrorCategory = "timeout"
	ErrorBadData          ErrorCategory = "bad_data"
	ErrorAuthentication   ErrorCategory = "authentication"
	ErrorProviderOutage   ErrorCategory = "provider_outage"
	ErrorContractMismatch ErrorCategory = "contract_mismatch"
	ErrorNotFound         ErrorCategory = "not_found"
	ErrorRateLimited      ErrorCategory = "rate_limited"
	ErrorCircuitOpen      ErrorCategory = "circuit_open"
	ErrorInternal         ErrorCategory = "internal"
)

// Error wraps a collaborator failure with its normalized category.
type Error struct {
	Category     ErrorCategory
	Collaborator string
	Message      string
	Underlying   error
	Retryable    bool
}

func (e *Error) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("collaborator %s [%s]: %s: %v", e.Collaborator, e.Category, e.Message, e.Underlying)
	}
	return fmt.Sprintf("collaborator %s [%s]: %s", e.Collaborator, e.Category, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Underlying
}

// NewError creates a categorized collaborator error. Nothing in this service
// retries, but Retryable is kept so callers can tell transient failures apart.
func NewError(category ErrorCategory, collaborator, message string, underlying error) *Error {
	retryable := category == ErrorTimeout ||
		category == ErrorProviderOutage ||
		category == ErrorRateLimited ||
		category == ErrorCircuitOpen

	return &Error{
		Category:     category,
		Collaborator: collaborator,
		Message:      message,
		Underlying:   underlying,
		Retryable:    retryable,
	}
}

func IsRetryable(err error) bool {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Retryable
	}
	return false
}

// CategoryOf extracts the error category, defaulting to ErrorInternal.
func CategoryOf(err error) ErrorCategory {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Category
	}
	return ErrorInternal
}

// IsUnavailable reports whether err means the collaborator could not be
// reached or did not answer in time, as opposed to answering with bad data.
func IsUnavailable(err error) bool {
	switch CategoryOf(err) {
	case ErrorTimeout, ErrorProviderOutage, ErrorRateLimited, ErrorCircuitOpen:
		return true
	}
	return false
}

// classifyTransportError maps an error from http.Client.Do to a category.
func classifyTransportError(ctx context.Context, err error) ErrorCategory {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return ErrorTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrorTimeout
	}
	return ErrorProviderOutage
}

// classifyStatus maps a non-2xx HTTP status to a category.
func classifyStatus(status int) ErrorCategory {
	switch {
	case status == 401 || status == 403:
		return ErrorAuthentication
	case status == 404:
		return ErrorNotFound
	case status == 408 || status == 504:
		return ErrorTimeout
	case status == 429:
		return ErrorRateLimited
	case status >= 500:
		return ErrorProviderOutage
	default:
		return ErrorBadData
	}
}
