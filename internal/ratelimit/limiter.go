// Package ratelimit implements reactive per-upstream rate limiting.
// The limiter never throttles a healthy upstream; pacing is purely a
// response to observed rate-limit and transient failures, which
// maximizes throughput under normal conditions.
package ratelimit

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jonesrussell/gointel/internal/domain"
	"github.com/jonesrussell/gointel/internal/logger"
)

// Default backoff bounds.
const (
	DefaultBase    = time.Second
	DefaultCeiling = 60 * time.Second
)

// Config holds backoff bounds for one upstream.
type Config struct {
	// Base is the first pause applied after a failure with no explicit
	// retry-after hint. Backoff doubles from here.
	Base time.Duration `mapstructure:"base" yaml:"base"`
	// Ceiling clamps the backoff growth.
	Ceiling time.Duration `mapstructure:"ceiling" yaml:"ceiling"`
}

// WithDefaults returns the config with zero fields replaced by defaults.
func (c Config) WithDefaults() Config {
	if c.Base <= 0 {
		c.Base = DefaultBase
	}
	if c.Ceiling <= 0 {
		c.Ceiling = DefaultCeiling
	}
	if c.Ceiling < c.Base {
		c.Ceiling = c.Base
	}
	return c
}

// State is a read-only snapshot of one upstream's limiter state.
type State struct {
	Upstream            string        `json:"upstream"`
	PausedUntil         time.Time     `json:"paused_until,omitzero"`
	ConsecutiveFailures int           `json:"consecutive_failures"`
	Backoff             time.Duration `json:"backoff"`
}

// Paused reports whether the upstream is paused as of now.
func (s State) Paused(now time.Time) bool {
	return now.Before(s.PausedUntil)
}

// upstreamState tracks the mutable backoff state for one upstream.
type upstreamState struct {
	cfg                 Config
	pausedUntil         time.Time
	consecutiveFailures int
	backoff             time.Duration
}

// Limiter gates calls to rate-limited upstreams and records their
// outcomes. All workers of a phase share one Limiter; a pause suspends
// only callers targeting the paused upstream.
type Limiter struct {
	mu        sync.Mutex
	defaults  Config
	overrides map[string]Config
	states    map[string]*upstreamState
	log       logger.Interface
	nowFn     func() time.Time
}

// New creates a limiter with the given default bounds. Per-upstream
// overrides take precedence over the defaults.
func New(defaults Config, overrides map[string]Config, log logger.Interface) *Limiter {
	if log == nil {
		log = logger.NewNoOp()
	}
	return &Limiter{
		defaults:  defaults.WithDefaults(),
		overrides: overrides,
		states:    make(map[string]*upstreamState),
		log:       log.WithComponent("ratelimit"),
		nowFn:     time.Now,
	}
}

// SetOverride installs backoff bounds for one upstream, replacing the
// defaults. An upstream the limiter has already seen picks up the new
// bounds immediately; its idle backoff is rebased so the next failure
// pauses from the override's base.
func (l *Limiter) SetOverride(upstream string, cfg Config) {
	l.mu.Lock()
	defer l.mu.Unlock()

	cfg = cfg.WithDefaults()
	if l.overrides == nil {
		l.overrides = make(map[string]Config)
	}
	l.overrides[upstream] = cfg

	if s, ok := l.states[upstream]; ok {
		s.cfg = cfg
		if s.consecutiveFailures == 0 {
			s.backoff = cfg.Base
		}
	}
}

// Guard executes call subject to the upstream's current pause window.
// If the upstream is paused, Guard sleeps (context-aware) until the
// pause expires, then executes call exactly once and records its
// outcome:
//
//   - rate-limit signal: pause for the explicit retry-after when given,
//     else the current backoff; double the backoff up to the ceiling.
//   - transient failure: same mutation, no retry-after hint.
//   - any other failure: passed through untouched.
//   - success: failures and backoff reset.
//
// The call's error is returned unchanged so callers can classify it.
func (l *Limiter) Guard(ctx context.Context, upstream string, call func() error) error {
	if err := l.waitReady(ctx, upstream); err != nil {
		return err
	}

	err := call()
	l.observe(upstream, err)

	return err
}

// waitReady blocks until the upstream's pause window has expired or the
// context is done. It re-checks in a loop because concurrent failures
// may extend the pause while this caller sleeps.
func (l *Limiter) waitReady(ctx context.Context, upstream string) error {
	for {
		l.mu.Lock()
		state := l.state(upstream)
		wait := state.pausedUntil.Sub(l.nowFn())
		l.mu.Unlock()

		if wait <= 0 {
			return nil
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// observe applies the state transition for one observed outcome.
func (l *Limiter) observe(upstream string, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	state := l.state(upstream)

	switch {
	case err == nil:
		if state.consecutiveFailures > 0 {
			l.log.Debug("upstream recovered",
				"upstream", upstream,
				"failures", state.consecutiveFailures,
			)
		}
		state.consecutiveFailures = 0
		state.backoff = state.cfg.Base

	case domain.IsRateLimited(err):
		rle, _ := domain.AsRateLimit(err)
		pause := state.backoff
		if rle.RetryAfter > 0 {
			pause = rle.RetryAfter
		}
		l.applyPause(upstream, state, pause)

	case isTransient(err):
		l.applyPause(upstream, state, state.backoff)

	default:
		// Permanent failures pass through: no pause, no backoff mutation.
	}
}

// applyPause sets the pause window and advances the backoff.
func (l *Limiter) applyPause(upstream string, state *upstreamState, pause time.Duration) {
	state.pausedUntil = l.nowFn().Add(pause)
	state.consecutiveFailures++
	state.backoff = min(state.backoff*2, state.cfg.Ceiling)

	l.log.Warn("upstream paused",
		"upstream", upstream,
		"pause", pause,
		"consecutive_failures", state.consecutiveFailures,
		"next_backoff", state.backoff,
	)
}

// state returns the upstream's state, creating it lazily. Callers hold mu.
func (l *Limiter) state(upstream string) *upstreamState {
	if s, ok := l.states[upstream]; ok {
		return s
	}

	cfg := l.defaults
	if override, ok := l.overrides[upstream]; ok {
		cfg = override.WithDefaults()
	}

	s := &upstreamState{cfg: cfg, backoff: cfg.Base}
	l.states[upstream] = s

	return s
}

// Snapshot returns the current state of every upstream the limiter has
// seen, for status and API surfaces.
func (l *Limiter) Snapshot() []State {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]State, 0, len(l.states))
	for name, s := range l.states {
		out = append(out, State{
			Upstream:            name,
			PausedUntil:         s.pausedUntil,
			ConsecutiveFailures: s.consecutiveFailures,
			Backoff:             s.backoff,
		})
	}

	return out
}

func isTransient(err error) bool {
	return err != nil && errors.Is(err, domain.ErrTransient)
}
