// Package helpers provides testing utilities for integration tests.
package helpers

import (
	"fmt"
	"time"

	"github.com/jonesrussell/gointel/internal/domain"
)

// RecordOption is a function that modifies a sink record fixture.
type RecordOption func(*domain.SinkRecord)

// TestSinkRecord creates a successful sink record for the given slug,
// shaped like a real extract-phase output line.
func TestSinkRecord(slug string, opts ...RecordOption) *domain.SinkRecord {
	rec := &domain.SinkRecord{
		ExtractionResult: domain.ExtractionResult{
			TargetID: "producthunt:" + slug,
			Success:  true,
			Data: map[string]any{
				"product_name":  slug,
				"pricing_model": "freemium",
				"category":      "developer-tools",
			},
			ResolvedURL: fmt.Sprintf("https://%s.io/", slug),
			ExtractedAt: time.Now().UTC(),
		},
		Name:        slug,
		HomepageURL: fmt.Sprintf("https://%s.io/", slug),
		Metadata: map[string]any{
			"slug":  slug,
			"votes": 100,
		},
		RunID: "test-run",
	}

	for _, opt := range opts {
		opt(rec)
	}

	return rec
}

// WithRunID sets the record's run id.
func WithRunID(runID string) RecordOption {
	return func(rec *domain.SinkRecord) {
		rec.RunID = runID
	}
}

// WithData replaces the structured payload.
func WithData(data map[string]any) RecordOption {
	return func(rec *domain.SinkRecord) {
		rec.Data = data
	}
}
