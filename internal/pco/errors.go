package pco

import (
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// AuthError means the provider rejected the credential pair. It is
// terminal: the orchestrator fails the job immediately instead of
// retrying.
type AuthError struct {
	Status int
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("pco: authentication rejected (status %d)", e.Status)
}

// RateLimitError is a 429 from the provider. It is retried inside the
// client honoring the Retry-After hint and only escapes once the try
// budget is exhausted.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("pco: rate limited, retry after %s", e.RetryAfter)
}

// Unwrap exposes the provider hint to the retry loop.
func (e *RateLimitError) Unwrap() error {
	return &backoff.RetryAfterError{Duration: e.RetryAfter}
}

// APIError is an unexpected provider response (a 4xx other than auth
// or rate limiting). Terminal: retrying the same request would get the
// same answer, so it fails the job without spending retries.
type APIError struct {
	Op     string
	Status int
}

func (e *APIError) Error() string {
	return fmt.Sprintf("pco: unexpected response on %s (status %d)", e.Op, e.Status)
}

// TransientError is a network failure or provider 5xx. Retried with
// exponential backoff; escapes once the try budget is exhausted.
type TransientError struct {
	Op     string
	Status int
	Err    error
}

func (e *TransientError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("pco: transient failure on %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("pco: transient failure on %s (status %d)", e.Op, e.Status)
}

func (e *TransientError) Unwrap() error { return e.Err }
