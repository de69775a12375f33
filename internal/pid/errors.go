package pid

import (
	"errors"
	"fmt"
)

// ErrorCategory normalizes provider failures so the job runner can decide
// what to retry without knowing provider internals.
type ErrorCategory string

const (
	// ErrorTimeout indicates the registration authority took too long.
	ErrorTimeout ErrorCategory = "timeout"

	// ErrorBadPayload indicates the authority rejected the metadata.
	ErrorBadPayload ErrorCategory = "bad_payload"

	// ErrorAuthentication indicates credential or permission issues.
	ErrorAuthentication ErrorCategory = "authentication"

	// ErrorOutage indicates the authority is unavailable.
	ErrorOutage ErrorCategory = "outage"

	// ErrorNotFound indicates the identifier is unknown to the authority.
	ErrorNotFound ErrorCategory = "not_found"

	// ErrorRateLimited indicates too many requests.
	ErrorRateLimited ErrorCategory = "rate_limited"

	// ErrorInternal indicates an unexpected internal failure.
	ErrorInternal ErrorCategory = "internal"
)

// ProviderError wraps registration-authority failures with a normalized
// category and retry hint.
type ProviderError struct {
	Category   ErrorCategory
	Provider   string
	Scheme     string
	Identifier string
	Message    string
	Underlying error
	Retryable  bool
}

func (e *ProviderError) Error() string {
	base := fmt.Sprintf("provider %s [%s] %s/%s: %s",
		e.Provider, e.Category, e.Scheme, e.Identifier, e.Message)
	if e.Underlying != nil {
		return fmt.Sprintf("%s: %v", base, e.Underlying)
	}
	return base
}

func (e *ProviderError) Unwrap() error {
	return e.Underlying
}

// NewProviderError builds a normalized provider error. Timeouts, outages,
// and rate limits are marked retryable.
func NewProviderError(category ErrorCategory, provider, scheme, identifier, message string, underlying error) *ProviderError {
	retryable := category == ErrorTimeout ||
		category == ErrorOutage ||
		category == ErrorRateLimited

	return &ProviderError{
		Category:   category,
		Provider:   provider,
		Scheme:     scheme,
		Identifier: identifier,
		Message:    message,
		Underlying: underlying,
		Retryable:  retryable,
	}
}

// IsRetryable reports whether the error is worth retrying.
func IsRetryable(err error) bool {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Retryable
	}
	return false
}

// CategoryOf extracts the category from an error.
func CategoryOf(err error) ErrorCategory {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Category
	}
	return ErrorInternal
}

// Sentinel errors for manager-level facts.
var (
	ErrNoProvider = errors.New("no provider for scheme")
	ErrNoPID      = errors.New("no pid for scheme")
)
