package common

import (
	"fmt"

	"github.com/jonesrussell/gointel/internal/config"
	"github.com/jonesrussell/gointel/internal/discovery"
	"github.com/jonesrussell/gointel/internal/extraction"
	"github.com/jonesrussell/gointel/internal/logger"
	"github.com/jonesrussell/gointel/internal/pipeline"
	"github.com/jonesrussell/gointel/internal/ratelimit"
	"github.com/jonesrussell/gointel/internal/sources"
)

// NewLimiter builds the shared reactive rate limiter from config.
func NewLimiter(cfg config.Interface, log logger.Interface) *ratelimit.Limiter {
	rl := cfg.GetRateLimitConfig()

	defaults := ratelimit.Config{Base: rl.Base, Ceiling: rl.Ceiling}
	overrides := make(map[string]ratelimit.Config, len(rl.Overrides))
	for upstream, o := range rl.Overrides {
		overrides[upstream] = ratelimit.Config{Base: o.Base, Ceiling: o.Ceiling}
	}

	return ratelimit.New(defaults, overrides, log)
}

// PipelineConfig maps the application config onto orchestrator settings.
func PipelineConfig(cfg config.Interface) pipeline.Config {
	pc := cfg.GetPipelineConfig()
	dc := cfg.GetDiscoveryConfig()

	return pipeline.Config{
		Workers:         pc.Workers,
		HaltThreshold:   pc.HaltThreshold,
		StaleLeaseAfter: pc.StaleLeaseAfter,
		Axes:            dc.Axes,
		Topics:          dc.Topics,
		PerPage:         dc.PerPage,
		MaxPages:        dc.MaxPages,
		MinScore:        dc.MinScore,
	}
}

// LoadAdapters loads source definitions and builds one discovery
// adapter per source. A source carrying a rate_limit becomes a limiter
// override for its upstream, so operators can slow a fragile directory
// from sources.yml alone.
func LoadAdapters(cfg config.Interface, limiter *ratelimit.Limiter, log logger.Interface) ([]discovery.Adapter, error) {
	srcs, err := sources.Load(cfg.GetDiscoveryConfig().SourceFile)
	if err != nil {
		return nil, fmt.Errorf("load sources: %w", err)
	}

	pc := cfg.GetPipelineConfig()
	opts := discovery.Options{
		Log:          log,
		UserAgent:    pc.UserAgent,
		Timeout:      pc.FetchTimeout,
		MaxBodyBytes: pc.MaxBodyBytes,
	}

	adapters := make([]discovery.Adapter, 0, len(srcs))
	for _, src := range srcs {
		adapter, adapterErr := discovery.New(src, opts)
		if adapterErr != nil {
			return nil, fmt.Errorf("source %s: %w", src.ID, adapterErr)
		}
		if limiter != nil && src.RateLimit > 0 {
			limiter.SetOverride(src.Upstream, ratelimit.Config{Base: src.RateLimit})
		}
		adapters = append(adapters, adapter)
	}

	return adapters, nil
}

// NewProcessor wires the three-stage extraction processor.
func NewProcessor(cfg config.Interface, limiter extraction.Guarder, log logger.Interface) *extraction.Extractor {
	pc := cfg.GetPipelineConfig()
	lc := cfg.GetLLMConfig()

	return extraction.New(extraction.Config{
		UserAgent:      pc.UserAgent,
		FetchTimeout:   pc.FetchTimeout,
		MaxBodyBytes:   pc.MaxBodyBytes,
		LLMBaseURL:     lc.BaseURL,
		LLMAPIKey:      lc.APIKey,
		LLMModel:       lc.Model,
		LLMMaxTokens:   lc.MaxTokens,
		LLMTemperature: lc.Temperature,
		LLMTimeout:     lc.Timeout,
	}, limiter, log)
}
