package config_test

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/gointel/internal/config"
)

// loadFromViper resets global Viper state, applies overrides and loads.
// Tests here share Viper so they must not run in parallel.
func loadFromViper(t *testing.T, overrides map[string]any) *config.Config {
	t.Helper()

	viper.Reset()
	t.Cleanup(viper.Reset)

	for key, value := range overrides {
		viper.Set(key, value)
	}

	cfg, err := config.LoadConfig()
	require.NoError(t, err)

	return cfg
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg := loadFromViper(t, nil)

	assert.Equal(t, config.DefaultWorkers, cfg.Pipeline.Workers)
	assert.Equal(t, config.DefaultHaltThreshold, cfg.Pipeline.HaltThreshold)
	assert.Equal(t, config.DefaultStaleLeaseAfter, cfg.Pipeline.StaleLeaseAfter)
	assert.Equal(t, config.DefaultLedgerPath, cfg.Pipeline.LedgerPath)
	assert.Equal(t, config.DefaultRateBase, cfg.RateLimit.Base)
	assert.Equal(t, config.DefaultRateCeiling, cfg.RateLimit.Ceiling)
	assert.Equal(t, []string{"trending", "popular", "topic"}, cfg.Discovery.Axes)
	assert.Equal(t, config.DefaultPerPage, cfg.Discovery.PerPage)
	assert.Equal(t, config.DefaultLLMModel, cfg.LLM.Model)
	assert.Equal(t, []string{config.DefaultESAddress}, cfg.Elasticsearch.Addresses)
	assert.Equal(t, config.DefaultServerAddress, cfg.Server.Address)
}

func TestLoadConfigOverrides(t *testing.T) {
	cfg := loadFromViper(t, map[string]any{
		"pipeline.workers":        8,
		"pipeline.ledger_path":    "/var/lib/gointel/targets.jsonl",
		"rate_limit.base":         "2s",
		"rate_limit.ceiling":      "2m",
		"discovery.per_page":      25,
		"llm.model":               "gpt-4o",
		"elasticsearch.addresses": []string{"http://es1:9200", "http://es2:9200"},
	})

	assert.Equal(t, 8, cfg.Pipeline.Workers)
	assert.Equal(t, "/var/lib/gointel/targets.jsonl", cfg.Pipeline.LedgerPath)
	assert.Equal(t, "2s", cfg.RateLimit.Base.String())
	assert.Equal(t, "2m0s", cfg.RateLimit.Ceiling.String())
	assert.Equal(t, 25, cfg.Discovery.PerPage)
	assert.Equal(t, "gpt-4o", cfg.LLM.Model)
	assert.Len(t, cfg.Elasticsearch.Addresses, 2)
}

func TestValidatePipeline(t *testing.T) {
	cfg := loadFromViper(t, nil)
	require.NoError(t, cfg.ValidatePipeline())

	cfg.Pipeline.Workers = 0
	err := cfg.ValidatePipeline()
	require.Error(t, err)
	assert.ErrorIs(t, err, config.ErrInvalidConfig)

	var verr *config.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "pipeline.workers", verr.Field)
}

func TestValidateExtractRequiresAPIKey(t *testing.T) {
	cfg := loadFromViper(t, nil)

	err := cfg.ValidateExtract()
	require.Error(t, err)
	assert.ErrorIs(t, err, config.ErrInvalidConfig)

	cfg.LLM.APIKey = "sk-test"
	assert.NoError(t, cfg.ValidateExtract())
}

func TestValidateBuildRejectsUnknownAxis(t *testing.T) {
	cfg := loadFromViper(t, map[string]any{
		"discovery.axes": []string{"trending", "alphabetical"},
	})

	err := cfg.ValidateBuild()
	require.Error(t, err)

	var verr *config.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "discovery.axes", verr.Field)
}

func TestValidateRateLimitOrdering(t *testing.T) {
	cfg := loadFromViper(t, map[string]any{
		"rate_limit.base":    "10s",
		"rate_limit.ceiling": "1s",
	})

	err := cfg.ValidatePipeline()
	require.Error(t, err)

	var verr *config.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "rate_limit.ceiling", verr.Field)
}

func TestParseAddresses(t *testing.T) {
	got := config.ParseAddresses(" http://es1:9200 , http://es2:9200,,")
	assert.Equal(t, []string{"http://es1:9200", "http://es2:9200"}, got)
}
