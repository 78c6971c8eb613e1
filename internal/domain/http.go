package domain

import (
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// ClassifyStatus maps an HTTP response status onto the failure
// taxonomy: 429 is a rate-limit signal carrying the upstream's
// retry-after hint, 5xx is transient, any other non-success status is
// permanent. Success statuses return nil.
func ClassifyStatus(upstream string, status int, retryAfter time.Duration) error {
	switch {
	case status >= http.StatusOK && status < http.StatusMultipleChoices:
		return nil

	case status == http.StatusTooManyRequests:
		return &RateLimitError{
			Upstream:   upstream,
			RetryAfter: retryAfter,
			Err:        fmt.Errorf("%s returned status %d", upstream, status),
		}

	case status >= http.StatusInternalServerError:
		return Transient(fmt.Errorf("%s returned status %d", upstream, status))

	default:
		return Permanent(fmt.Errorf("%s returned status %d", upstream, status))
	}
}

// ParseRetryAfter interprets a Retry-After header value as a duration.
// Both the delay-seconds and the HTTP-date forms are accepted; an empty
// or unparsable value yields zero, meaning no explicit hint.
func ParseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}

	if secs, err := strconv.Atoi(value); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}

	if at, err := http.ParseTime(value); err == nil {
		if wait := time.Until(at); wait > 0 {
			return wait
		}
	}

	return 0
}
