// Package transport implements the LLM provider abstraction: a typed
// error taxonomy, retry with exponential backoff+jitter, and a failover
// chain across providers. Grounded on the teacher's internal/retry
// (backoff/jitter shape) and internal/agent/failover.go (circuit-breaker
// structure), but classification is by Go type, never by string-matching
// error text — spec.md §7/§8 require this explicitly, and it is a
// deliberate redesign relative to the teacher's classifyProviderError.
package transport

import (
	"errors"
	"fmt"
	"time"
)

// HTTPError wraps a transport-level failure (connection refused, DNS,
// reset, etc.) that isn't a well-formed API response.
type HTTPError struct {
	Underlying error
}

func (e *HTTPError) Error() string { return fmt.Sprintf("transport: http error: %v", e.Underlying) }
func (e *HTTPError) Unwrap() error { return e.Underlying }

// APIError is a well-formed error response from the provider.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("transport: api error: status=%d body=%s", e.Status, e.Body)
}

// AuthFailedError indicates invalid or missing credentials. Not
// retryable, not failover-eligible: a bad key is unlikely to be fixed by
// trying the next provider in most deployments, so transport returns it
// immediately (spec.md §4.5).
type AuthFailedError struct {
	Provider string
}

func (e *AuthFailedError) Error() string {
	return fmt.Sprintf("transport: auth failed for provider %q", e.Provider)
}

// NotConfiguredError indicates the provider has no usable configuration
// (missing API key, empty base URL). Failover-eligible.
type NotConfiguredError struct {
	Provider string
}

func (e *NotConfiguredError) Error() string {
	return fmt.Sprintf("transport: provider %q not configured", e.Provider)
}

// ModelNotFoundError indicates the requested model is unknown to the
// provider. Failover-eligible, not retryable on the same provider.
type ModelNotFoundError struct {
	Model string
}

func (e *ModelNotFoundError) Error() string {
	return fmt.Sprintf("transport: model %q not found", e.Model)
}

// RateLimitedError carries an optional provider-supplied retry-after
// hint in milliseconds.
type RateLimitedError struct {
	RetryAfterMS int64
}

func (e *RateLimitedError) Error() string {
	if e.RetryAfterMS > 0 {
		return fmt.Sprintf("transport: rate limited, retry after %dms", e.RetryAfterMS)
	}
	return "transport: rate limited"
}

// InvalidResponseError indicates the provider returned a response that
// could not be parsed into the expected shape. Not retryable and not
// failover-eligible: the chain returns it immediately (see IsIneligible).
type InvalidResponseError struct {
	Reason string
}

func (e *InvalidResponseError) Error() string {
	return fmt.Sprintf("transport: invalid response: %s", e.Reason)
}

// TimeoutError indicates the request exceeded its deadline.
type TimeoutError struct {
	Elapsed time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("transport: timeout after %s", e.Elapsed)
}

// AllProvidersExhaustedError is returned when the failover chain runs out
// of candidates. PerProviderErrors preserves the failure from each
// provider tried, in order.
type AllProvidersExhaustedError struct {
	PerProviderErrors map[string]error
}

func (e *AllProvidersExhaustedError) Error() string {
	return fmt.Sprintf("transport: all %d providers exhausted", len(e.PerProviderErrors))
}

// IsRetryable reports whether err should be retried against the *same*
// provider: Http (5xx/429/timeout/network), Timeout, and RateLimited.
// Classification is exclusively by errors.As — never by inspecting
// err.Error() text.
func IsRetryable(err error) bool {
	var httpErr *HTTPError
	var timeoutErr *TimeoutError
	var rateLimitedErr *RateLimitedError
	var apiErr *APIError
	switch {
	case errors.As(err, &httpErr):
		return true
	case errors.As(err, &timeoutErr):
		return true
	case errors.As(err, &rateLimitedErr):
		return true
	case errors.As(err, &apiErr):
		return apiErr.Status >= 500 || apiErr.Status == 429
	default:
		return false
	}
}

// IsFailoverEligible reports whether err should cause the failover chain
// to try the next provider: NotConfigured, ModelNotFound, or a retryable
// error whose retries were exhausted on the current provider.
func IsFailoverEligible(err error) bool {
	var notConfigured *NotConfiguredError
	var modelNotFound *ModelNotFoundError
	if errors.As(err, &notConfigured) || errors.As(err, &modelNotFound) {
		return true
	}
	return IsRetryable(err)
}

// IsIneligible reports whether err should abort the failover chain
// immediately: AuthFailed or InvalidResponse. Treating InvalidResponse
// as an immediate abort follows the failover-chain rule; a malformed
// response usually means the request itself is wrong for this API
// shape, and replaying it against every provider in the chain would
// multiply the same failure. See DESIGN.md's release notes.
func IsIneligible(err error) bool {
	var authFailed *AuthFailedError
	var invalidResponse *InvalidResponseError
	return errors.As(err, &authFailed) || errors.As(err, &invalidResponse)
}

// RetryAfter extracts the provider-supplied retry-after hint, if any.
func RetryAfter(err error) (time.Duration, bool) {
	var rl *RateLimitedError
	if errors.As(err, &rl) && rl.RetryAfterMS > 0 {
		return time.Duration(rl.RetryAfterMS) * time.Millisecond, true
	}
	return 0, false
}
