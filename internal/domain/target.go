package domain

import "time"

// Target status constants.
const (
	StatusPending    = "pending"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Statuses lists every valid target status in lifecycle order.
var Statuses = []string{StatusPending, StatusInProgress, StatusCompleted, StatusFailed}

// ValidStatus reports whether s is a known target status.
func ValidStatus(s string) bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted, StatusFailed:
		return true
	default:
		return false
	}
}

// Target represents one discovered unit of extraction work. Targets are
// created during the build phase, mutated during the extract phase, and
// persist in the ledger as the pipeline's source of truth.
type Target struct {
	// Identity
	ID        string `json:"id"`
	Name      string `json:"name"`
	SourceURL string `json:"source_url"`

	// Resolution
	ResolvedHomepageURL string `json:"resolved_homepage_url,omitempty"`

	// Lifecycle
	Status        string `json:"status"`
	AttemptCount  int    `json:"attempt_count"`
	FailureReason string `json:"failure_reason,omitempty"`

	// Timestamps
	DiscoveredAt    time.Time  `json:"discovered_at"`
	LastAttemptedAt *time.Time `json:"last_attempted_at,omitempty"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`

	// Metadata carries the opaque discovery bag (votes, topics, tagline).
	// It is stored and surfaced, never interpreted.
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Clone returns a deep copy of the target. Metadata values are copied
// shallowly; callers treat the bag as immutable.
func (t *Target) Clone() *Target {
	if t == nil {
		return nil
	}
	clone := *t
	if t.LastAttemptedAt != nil {
		at := *t.LastAttemptedAt
		clone.LastAttemptedAt = &at
	}
	if t.CompletedAt != nil {
		at := *t.CompletedAt
		clone.CompletedAt = &at
	}
	if t.Metadata != nil {
		clone.Metadata = make(map[string]any, len(t.Metadata))
		for k, v := range t.Metadata {
			clone.Metadata[k] = v
		}
	}
	return &clone
}

// Terminal reports whether the target is in a terminal status.
// Failed targets leave the terminal set only through an explicit reset.
func (t *Target) Terminal() bool {
	return t.Status == StatusCompleted || t.Status == StatusFailed
}
