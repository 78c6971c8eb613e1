package exporter

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/gointel/internal/domain"
)

func TestBuildDocument(t *testing.T) {
	t.Parallel()

	rec := domain.NewSinkRecord(&domain.ExtractionResult{
		TargetID:    "producthunt:acme",
		Success:     true,
		Data:        map[string]any{"name": "Acme", "pricing_model": "freemium"},
		ResolvedURL: "https://acme.io/",
		ExtractedAt: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	}, &domain.Target{
		ID:       "producthunt:acme",
		Name:     "Acme",
		Metadata: map[string]any{"slug": "acme", "votes": 412},
	}, "run-1")

	docID, body, err := BuildDocument(rec)
	require.NoError(t, err)
	assert.Equal(t, "producthunt:acme", docID)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(body, &decoded))
	assert.Equal(t, "producthunt:acme", decoded["target_id"])
	assert.Equal(t, true, decoded["success"])
	assert.Equal(t, "https://acme.io/", decoded["homepage_url"])
	assert.Equal(t, "run-1", decoded["run_id"])

	data, ok := decoded["data"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "freemium", data["pricing_model"])
}

func TestBuildDocumentRequiresTargetID(t *testing.T) {
	t.Parallel()

	_, _, err := BuildDocument(&domain.SinkRecord{})
	assert.Error(t, err)

	_, _, err = BuildDocument(nil)
	assert.Error(t, err)
}

func TestResultsMappingTypesPipelineFields(t *testing.T) {
	t.Parallel()

	raw, err := json.Marshal(resultsMapping())
	require.NoError(t, err)

	var decoded struct {
		Mappings struct {
			Properties map[string]json.RawMessage `json:"properties"`
		} `json:"mappings"`
	}
	require.NoError(t, json.Unmarshal(raw, &decoded))

	for _, field := range []string{
		"target_id", "run_id", "success", "resolved_url",
		"homepage_url", "extracted_at", "name", "data",
	} {
		assert.Contains(t, decoded.Mappings.Properties, field)
	}
}
