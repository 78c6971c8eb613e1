package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonesrussell/gointel/internal/domain"
	"github.com/jonesrussell/gointel/internal/logger"
)

// newTestLimiter returns a limiter with a controllable clock.
func newTestLimiter(t *testing.T, cfg Config, overrides map[string]Config) (*Limiter, *time.Time) {
	t.Helper()

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	l := New(cfg, overrides, logger.NewNoOp())
	l.nowFn = func() time.Time { return now }

	return l, &now
}

// stateOf finds the snapshot entry for one upstream.
func stateOf(t *testing.T, l *Limiter, upstream string) State {
	t.Helper()

	for _, s := range l.Snapshot() {
		if s.Upstream == upstream {
			return s
		}
	}
	t.Fatalf("no state for upstream %q", upstream)
	return State{}
}

func guardErr(l *Limiter, upstream string, err error) error {
	return l.Guard(context.Background(), upstream, func() error { return err })
}

func TestGuard_BackoffDoublesAndResets(t *testing.T) {
	t.Parallel()

	l, now := newTestLimiter(t, Config{Base: time.Second, Ceiling: 60 * time.Second}, nil)

	rateLimited := &domain.RateLimitError{Upstream: "feed"}

	// Three consecutive failures without retry-after pause for the
	// current backoff: 1s, 2s, 4s.
	wantPauses := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}
	for i, want := range wantPauses {
		if err := guardErr(l, "feed", rateLimited); !domain.IsRateLimited(err) {
			t.Fatalf("failure %d: Guard should return the call's error", i+1)
		}

		s := stateOf(t, l, "feed")
		if got := s.PausedUntil.Sub(*now); got != want {
			t.Errorf("failure %d: pause window = %s, want %s", i+1, got, want)
		}
		if s.ConsecutiveFailures != i+1 {
			t.Errorf("failure %d: consecutive failures = %d, want %d", i+1, s.ConsecutiveFailures, i+1)
		}

		// Advance past the pause so the next Guard does not sleep.
		*now = s.PausedUntil.Add(time.Millisecond)
	}

	// One success resets counter and backoff.
	if err := guardErr(l, "feed", nil); err != nil {
		t.Fatalf("successful guard returned error: %v", err)
	}

	s := stateOf(t, l, "feed")
	if s.ConsecutiveFailures != 0 {
		t.Errorf("consecutive failures after success = %d, want 0", s.ConsecutiveFailures)
	}
	if s.Backoff != time.Second {
		t.Errorf("backoff after success = %s, want 1s", s.Backoff)
	}
}

func TestGuard_RetryAfterOverridesBackoff(t *testing.T) {
	t.Parallel()

	l, now := newTestLimiter(t, Config{Base: time.Second, Ceiling: 60 * time.Second}, nil)

	err := guardErr(l, "llm", &domain.RateLimitError{Upstream: "llm", RetryAfter: 30 * time.Second})
	if !domain.IsRateLimited(err) {
		t.Fatal("Guard should surface the rate-limit error")
	}

	s := stateOf(t, l, "llm")
	if got := s.PausedUntil.Sub(*now); got != 30*time.Second {
		t.Errorf("pause window = %s, want 30s from retry-after", got)
	}
	if s.Backoff != 2*time.Second {
		t.Errorf("backoff = %s, want 2s (doubled once)", s.Backoff)
	}
}

func TestGuard_BackoffClampedToCeiling(t *testing.T) {
	t.Parallel()

	l, now := newTestLimiter(t, Config{Base: time.Second, Ceiling: 4 * time.Second}, nil)

	for range 5 {
		_ = guardErr(l, "feed", domain.Transient(errors.New("http status 502")))
		*now = stateOf(t, l, "feed").PausedUntil.Add(time.Millisecond)
	}

	if got := stateOf(t, l, "feed").Backoff; got != 4*time.Second {
		t.Errorf("backoff = %s, want ceiling 4s", got)
	}
}

func TestGuard_TransientCountsTowardBackoff(t *testing.T) {
	t.Parallel()

	l, now := newTestLimiter(t, Config{Base: time.Second, Ceiling: 60 * time.Second}, nil)

	err := guardErr(l, "web", domain.Transient(errors.New("dial tcp: timeout")))
	if !errors.Is(err, domain.ErrTransient) {
		t.Fatal("Guard should surface the transient error")
	}

	s := stateOf(t, l, "web")
	if got := s.PausedUntil.Sub(*now); got != time.Second {
		t.Errorf("pause window = %s, want base 1s", got)
	}
	if s.ConsecutiveFailures != 1 {
		t.Errorf("consecutive failures = %d, want 1", s.ConsecutiveFailures)
	}
}

func TestGuard_PermanentPassesThroughUntouched(t *testing.T) {
	t.Parallel()

	l, _ := newTestLimiter(t, Config{Base: time.Second, Ceiling: 60 * time.Second}, nil)

	permanent := domain.Permanent(errors.New("http status 403"))
	if err := guardErr(l, "web", permanent); !errors.Is(err, domain.ErrPermanent) {
		t.Fatal("Guard should surface the permanent error")
	}

	s := stateOf(t, l, "web")
	if s.ConsecutiveFailures != 0 {
		t.Errorf("consecutive failures = %d, want 0 (no mutation)", s.ConsecutiveFailures)
	}
	if !s.PausedUntil.IsZero() {
		t.Errorf("paused until = %s, want zero (no pause)", s.PausedUntil)
	}
	if s.Backoff != time.Second {
		t.Errorf("backoff = %s, want base 1s (no mutation)", s.Backoff)
	}
}

func TestGuard_UpstreamsAreIndependent(t *testing.T) {
	t.Parallel()

	l, _ := newTestLimiter(t, Config{Base: time.Second, Ceiling: 60 * time.Second}, nil)

	_ = guardErr(l, "producthunt", &domain.RateLimitError{Upstream: "producthunt"})

	// A healthy upstream is never throttled: the guarded call runs
	// immediately even while another upstream is paused.
	called := false
	if err := l.Guard(context.Background(), "llm", func() error {
		called = true
		return nil
	}); err != nil {
		t.Fatalf("Guard on healthy upstream returned error: %v", err)
	}
	if !called {
		t.Fatal("call on healthy upstream did not run")
	}

	if s := stateOf(t, l, "llm"); s.ConsecutiveFailures != 0 {
		t.Errorf("llm consecutive failures = %d, want 0", s.ConsecutiveFailures)
	}
}

func TestGuard_WaitsOutPause(t *testing.T) {
	t.Parallel()

	// Real clock, short pauses: after a failure, the next guarded call
	// must not run before the pause expires.
	l := New(Config{Base: 30 * time.Millisecond, Ceiling: time.Second}, nil, logger.NewNoOp())

	_ = guardErr(l, "feed", &domain.RateLimitError{Upstream: "feed"})

	start := time.Now()
	err := l.Guard(context.Background(), "feed", func() error { return nil })
	if err != nil {
		t.Fatalf("Guard returned error: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 30*time.Millisecond {
		t.Errorf("guarded call ran after %s, want >= 30ms pause", elapsed)
	}
}

func TestGuard_ContextCancelledDuringPause(t *testing.T) {
	t.Parallel()

	l := New(Config{Base: time.Minute, Ceiling: time.Hour}, nil, logger.NewNoOp())

	_ = guardErr(l, "feed", &domain.RateLimitError{Upstream: "feed"})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	called := false
	err := l.Guard(ctx, "feed", func() error {
		called = true
		return nil
	})

	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Guard error = %v, want context deadline", err)
	}
	if called {
		t.Error("call ran despite cancelled context")
	}
}

func TestGuard_PerUpstreamOverrides(t *testing.T) {
	t.Parallel()

	overrides := map[string]Config{
		"llm": {Base: 5 * time.Second, Ceiling: 10 * time.Second},
	}
	l, now := newTestLimiter(t, Config{Base: time.Second, Ceiling: 60 * time.Second}, overrides)

	_ = guardErr(l, "llm", &domain.RateLimitError{Upstream: "llm"})

	s := stateOf(t, l, "llm")
	if got := s.PausedUntil.Sub(*now); got != 5*time.Second {
		t.Errorf("pause window = %s, want override base 5s", got)
	}
	if s.Backoff != 10*time.Second {
		t.Errorf("backoff = %s, want override ceiling 10s", s.Backoff)
	}
}

func TestSetOverride(t *testing.T) {
	t.Parallel()

	l, now := newTestLimiter(t, Config{Base: time.Second, Ceiling: 60 * time.Second}, nil)

	l.SetOverride("saashub", Config{Base: 5 * time.Second})

	_ = guardErr(l, "saashub", &domain.RateLimitError{Upstream: "saashub"})

	s := stateOf(t, l, "saashub")
	if got := s.PausedUntil.Sub(*now); got != 5*time.Second {
		t.Errorf("pause window = %s, want override base 5s", got)
	}
}

func TestSetOverrideRebasesSeenUpstream(t *testing.T) {
	t.Parallel()

	l, now := newTestLimiter(t, Config{Base: time.Second, Ceiling: 60 * time.Second}, nil)

	// A healthy call creates the state under the default bounds.
	if err := guardErr(l, "saashub", nil); err != nil {
		t.Fatalf("successful guard returned error: %v", err)
	}

	l.SetOverride("saashub", Config{Base: 8 * time.Second})

	_ = guardErr(l, "saashub", &domain.RateLimitError{Upstream: "saashub"})

	s := stateOf(t, l, "saashub")
	if got := s.PausedUntil.Sub(*now); got != 8*time.Second {
		t.Errorf("pause window = %s, want rebased 8s", got)
	}
}

func TestConfigWithDefaults(t *testing.T) {
	t.Parallel()

	cfg := Config{}.WithDefaults()
	if cfg.Base != DefaultBase {
		t.Errorf("Base = %s, want %s", cfg.Base, DefaultBase)
	}
	if cfg.Ceiling != DefaultCeiling {
		t.Errorf("Ceiling = %s, want %s", cfg.Ceiling, DefaultCeiling)
	}

	flipped := Config{Base: 10 * time.Second, Ceiling: time.Second}.WithDefaults()
	if flipped.Ceiling != 10*time.Second {
		t.Errorf("Ceiling = %s, want raised to Base", flipped.Ceiling)
	}
}
