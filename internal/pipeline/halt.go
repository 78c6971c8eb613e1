package pipeline

import (
	"fmt"
	"sync"

	"github.com/jonesrussell/gointel/internal/domain"
)

// HaltState is the halt policy's whole state: a consecutive count of
// structuring failures. Fetch and resolution outcomes leave it
// untouched so a flaky site can never halt the model.
type HaltState struct {
	Consecutive int
}

// NextHaltState is the pure transition applied after one processed
// target. A success resets the count, a failure attributable to the
// structuring collaborator increments it, anything else is neutral.
func NextHaltState(s HaltState, err error) HaltState {
	switch {
	case err == nil:
		return HaltState{Consecutive: 0}
	case domain.LLMAttributable(err):
		return HaltState{Consecutive: s.Consecutive + 1}
	default:
		return s
	}
}

// haltTracker applies NextHaltState under a lock for the worker pool.
type haltTracker struct {
	mu        sync.Mutex
	state     HaltState
	threshold int
}

func newHaltTracker(threshold int) *haltTracker {
	return &haltTracker{threshold: threshold}
}

// observe records one outcome and reports whether it tripped the halt.
func (h *haltTracker) observe(err error) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.state = NextHaltState(h.state, err)

	return h.state.Consecutive >= h.threshold
}

// halted reports whether the threshold has been reached.
func (h *haltTracker) halted() bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.state.Consecutive >= h.threshold
}

// reason describes the halt for the phase summary.
func (h *haltTracker) reason() string {
	h.mu.Lock()
	defer h.mu.Unlock()

	return fmt.Sprintf("%d consecutive structuring failures", h.state.Consecutive)
}
