package domain

import (
	"errors"
	"net/http"
	"testing"
	"time"
)

func TestClassifyStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		status int
		check  func(t *testing.T, err error)
	}{
		{
			name:   "200 is success",
			status: http.StatusOK,
			check: func(t *testing.T, err error) {
				t.Helper()
				if err != nil {
					t.Errorf("error = %v, want nil", err)
				}
			},
		},
		{
			name:   "429 is a rate limit",
			status: http.StatusTooManyRequests,
			check: func(t *testing.T, err error) {
				t.Helper()
				rle, ok := AsRateLimit(err)
				if !ok {
					t.Fatalf("error = %v, want rate limit", err)
				}
				if rle.Upstream != "ph" {
					t.Errorf("Upstream = %q, want ph", rle.Upstream)
				}
				if rle.RetryAfter != 30*time.Second {
					t.Errorf("RetryAfter = %s, want 30s", rle.RetryAfter)
				}
			},
		},
		{
			name:   "503 is transient",
			status: http.StatusServiceUnavailable,
			check: func(t *testing.T, err error) {
				t.Helper()
				if !errors.Is(err, ErrTransient) {
					t.Errorf("error = %v, want transient", err)
				}
			},
		},
		{
			name:   "403 is permanent",
			status: http.StatusForbidden,
			check: func(t *testing.T, err error) {
				t.Helper()
				if !errors.Is(err, ErrPermanent) {
					t.Errorf("error = %v, want permanent", err)
				}
				if IsRateLimited(err) {
					t.Error("non-429 4xx must not carry a rate-limit signal")
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			tt.check(t, ClassifyStatus("ph", tt.status, 30*time.Second))
		})
	}
}

func TestParseRetryAfter(t *testing.T) {
	t.Parallel()

	if got := ParseRetryAfter("45"); got != 45*time.Second {
		t.Errorf("seconds form = %s, want 45s", got)
	}
	if got := ParseRetryAfter(""); got != 0 {
		t.Errorf("empty value = %s, want 0", got)
	}
	if got := ParseRetryAfter("soon"); got != 0 {
		t.Errorf("garbage value = %s, want 0", got)
	}
	if got := ParseRetryAfter("-5"); got != 0 {
		t.Errorf("negative value = %s, want 0", got)
	}

	at := time.Now().Add(90 * time.Second).UTC().Format(http.TimeFormat)
	got := ParseRetryAfter(at)
	if got < 80*time.Second || got > 90*time.Second {
		t.Errorf("http-date form = %s, want about 90s", got)
	}

	past := time.Now().Add(-time.Minute).UTC().Format(http.TimeFormat)
	if got := ParseRetryAfter(past); got != 0 {
		t.Errorf("past http-date = %s, want 0", got)
	}
}
