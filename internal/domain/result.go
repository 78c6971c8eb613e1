package domain

import "time"

// ExtractionResult is the structured outcome of processing one target.
type ExtractionResult struct {
	TargetID string         `json:"target_id"`
	Success  bool           `json:"success"`
	Data     map[string]any `json:"data,omitempty"`
	Error    string         `json:"error,omitempty"`
	// ResolvedURL carries homepage resolution progress even when a
	// later stage fails, so a retry can skip resolution.
	ResolvedURL string    `json:"resolved_url,omitempty"`
	ExtractedAt time.Time `json:"extracted_at"`
}

// SinkRecord is one output-sink line: an extraction result plus the
// target context an analyst needs without re-joining against the ledger.
type SinkRecord struct {
	ExtractionResult

	Name        string         `json:"name"`
	HomepageURL string         `json:"homepage_url,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	RunID       string         `json:"run_id,omitempty"`
}

// NewSinkRecord builds a sink record from a result and its target.
func NewSinkRecord(res *ExtractionResult, t *Target, runID string) *SinkRecord {
	homepage := res.ResolvedURL
	if homepage == "" {
		homepage = t.ResolvedHomepageURL
	}

	return &SinkRecord{
		ExtractionResult: *res,
		Name:             t.Name,
		HomepageURL:      homepage,
		Metadata:         t.Metadata,
		RunID:            runID,
	}
}
