package domain

import (
	"errors"
	"fmt"
	"time"
)

// Failure classes. Adapters wrap their errors with one of these so the
// orchestrator and rate limiter can classify outcomes without knowing
// upstream specifics.
var (
	// ErrTransient marks recoverable failures: network errors, 5xx
	// responses. Transient failures count toward upstream backoff.
	ErrTransient = errors.New("transient failure")

	// ErrPermanent marks non-recoverable failures: malformed targets,
	// unresolvable content, schema mismatches. They pass through the
	// rate limiter untouched.
	ErrPermanent = errors.New("permanent failure")
)

// Transient wraps err so that errors.Is(err, ErrTransient) holds.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrTransient, err)
}

// Permanent wraps err so that errors.Is(err, ErrPermanent) holds.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrPermanent, err)
}

// RateLimitError signals that an upstream capped throughput (HTTP 429 or
// equivalent). RetryAfter carries the upstream's explicit wait hint and
// is zero when none was supplied.
type RateLimitError struct {
	Upstream   string
	RetryAfter time.Duration
	Err        error
}

// Error implements the error interface.
func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%s rate limited, retry after %s", e.Upstream, e.RetryAfter)
	}
	return fmt.Sprintf("%s rate limited", e.Upstream)
}

// Unwrap returns the underlying error.
func (e *RateLimitError) Unwrap() error {
	return e.Err
}

// AsRateLimit extracts a RateLimitError from err's chain.
func AsRateLimit(err error) (*RateLimitError, bool) {
	var rle *RateLimitError
	if errors.As(err, &rle) {
		return rle, true
	}
	return nil, false
}

// IsRateLimited reports whether err carries a rate-limit signal.
func IsRateLimited(err error) bool {
	_, ok := AsRateLimit(err)
	return ok
}

// Extraction stages, used for failure attribution. The halt policy cares
// about structure-stage failures specifically.
const (
	StageResolve   = "resolve"
	StageFetch     = "fetch"
	StageStructure = "structure"
)

// ExtractError tags a failure with the extraction stage it occurred in.
type ExtractError struct {
	Stage string
	Err   error
}

// Error implements the error interface.
func (e *ExtractError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

// Unwrap returns the underlying error.
func (e *ExtractError) Unwrap() error {
	return e.Err
}

// StageOf returns the extraction stage recorded in err's chain, or the
// empty string when none is present.
func StageOf(err error) string {
	var ee *ExtractError
	if errors.As(err, &ee) {
		return ee.Stage
	}
	return ""
}

// LLMAttributable reports whether err is attributable to the structuring
// collaborator rather than fetch or resolution.
func LLMAttributable(err error) bool {
	return StageOf(err) == StageStructure
}
