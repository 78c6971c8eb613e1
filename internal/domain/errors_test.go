package domain

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestTransientPermanentWrapping(t *testing.T) {
	t.Parallel()

	base := errors.New("connection reset")

	tr := Transient(base)
	if !errors.Is(tr, ErrTransient) {
		t.Error("Transient() result should match ErrTransient")
	}
	if !errors.Is(tr, base) {
		t.Error("Transient() should preserve the wrapped error")
	}
	if errors.Is(tr, ErrPermanent) {
		t.Error("transient error must not match ErrPermanent")
	}

	pe := Permanent(base)
	if !errors.Is(pe, ErrPermanent) {
		t.Error("Permanent() result should match ErrPermanent")
	}

	if Transient(nil) != nil {
		t.Error("Transient(nil) should be nil")
	}
	if Permanent(nil) != nil {
		t.Error("Permanent(nil) should be nil")
	}
}

func TestAsRateLimit(t *testing.T) {
	t.Parallel()

	rle := &RateLimitError{Upstream: "producthunt", RetryAfter: 30 * time.Second}
	wrapped := fmt.Errorf("fetch page: %w", rle)

	got, ok := AsRateLimit(wrapped)
	if !ok {
		t.Fatal("AsRateLimit should find the error in the chain")
	}
	if got.Upstream != "producthunt" {
		t.Errorf("Upstream = %q, want producthunt", got.Upstream)
	}
	if got.RetryAfter != 30*time.Second {
		t.Errorf("RetryAfter = %s, want 30s", got.RetryAfter)
	}

	if IsRateLimited(errors.New("plain")) {
		t.Error("plain error should not be rate limited")
	}
}

func TestStageAttribution(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		err      error
		stage    string
		llmBlame bool
	}{
		{
			name:     "structure stage",
			err:      &ExtractError{Stage: StageStructure, Err: errors.New("bad json")},
			stage:    StageStructure,
			llmBlame: true,
		},
		{
			name:     "fetch stage",
			err:      &ExtractError{Stage: StageFetch, Err: errors.New("timeout")},
			stage:    StageFetch,
			llmBlame: false,
		},
		{
			name: "wrapped structure stage",
			err: fmt.Errorf("process: %w",
				&ExtractError{Stage: StageStructure, Err: errors.New("429")}),
			stage:    StageStructure,
			llmBlame: true,
		},
		{
			name:     "untagged error",
			err:      errors.New("boom"),
			stage:    "",
			llmBlame: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := StageOf(tt.err); got != tt.stage {
				t.Errorf("StageOf = %q, want %q", got, tt.stage)
			}
			if got := LLMAttributable(tt.err); got != tt.llmBlame {
				t.Errorf("LLMAttributable = %v, want %v", got, tt.llmBlame)
			}
		})
	}
}

func TestTargetClone(t *testing.T) {
	t.Parallel()

	now := time.Now()
	orig := &Target{
		ID:              "producthunt:42",
		Name:            "Acme",
		Status:          StatusInProgress,
		LastAttemptedAt: &now,
		Metadata:        map[string]any{"votes": 80},
	}

	clone := orig.Clone()
	clone.Status = StatusCompleted
	clone.Metadata["votes"] = 99
	*clone.LastAttemptedAt = now.Add(time.Hour)

	if orig.Status != StatusInProgress {
		t.Error("clone mutation leaked into original status")
	}
	if orig.Metadata["votes"] != 80 {
		t.Error("clone mutation leaked into original metadata")
	}
	if !orig.LastAttemptedAt.Equal(now) {
		t.Error("clone mutation leaked into original timestamp")
	}
}
