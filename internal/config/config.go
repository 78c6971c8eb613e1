// Package config provides configuration management for the gointel
// pipeline. Values come from config.yaml, environment variables and
// defaults, in that order of precedence, all through Viper.
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Interface defines read access to the application configuration.
type Interface interface {
	// GetAppConfig returns application identity settings.
	GetAppConfig() *AppConfig
	// GetPipelineConfig returns orchestrator settings.
	GetPipelineConfig() *PipelineConfig
	// GetRateLimitConfig returns upstream rate limiter settings.
	GetRateLimitConfig() *RateLimitConfig
	// GetDiscoveryConfig returns discovery phase settings.
	GetDiscoveryConfig() *DiscoveryConfig
	// GetLLMConfig returns extraction model settings.
	GetLLMConfig() *LLMConfig
	// GetElasticsearchConfig returns export index settings.
	GetElasticsearchConfig() *ElasticsearchConfig
	// GetServerConfig returns the status API server settings.
	GetServerConfig() *ServerConfig
	// GetScheduleConfig returns cron schedule settings.
	GetScheduleConfig() *ScheduleConfig
}

// Ensure Config implements Interface.
var _ Interface = (*Config)(nil)

// Config represents the application configuration.
type Config struct {
	App           AppConfig           `mapstructure:"app"           yaml:"app"`
	Pipeline      PipelineConfig      `mapstructure:"pipeline"      yaml:"pipeline"`
	RateLimit     RateLimitConfig     `mapstructure:"rate_limit"    yaml:"rate_limit"`
	Discovery     DiscoveryConfig     `mapstructure:"discovery"     yaml:"discovery"`
	LLM           LLMConfig           `mapstructure:"llm"           yaml:"llm"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch" yaml:"elasticsearch"`
	Server        ServerConfig        `mapstructure:"server"        yaml:"server"`
	Schedule      ScheduleConfig      `mapstructure:"schedule"      yaml:"schedule"`
}

// AppConfig holds application identity settings.
type AppConfig struct {
	Name        string `mapstructure:"name"        yaml:"name"`
	Version     string `mapstructure:"version"     yaml:"version"`
	Environment string `mapstructure:"environment" yaml:"environment"`
	Debug       bool   `mapstructure:"debug"       yaml:"debug"`
}

// PipelineConfig holds orchestrator settings shared by the build and
// extract phases.
type PipelineConfig struct {
	// Workers bounds concurrent extraction attempts.
	Workers int `mapstructure:"workers" yaml:"workers"`
	// HaltThreshold is the number of consecutive model failures that
	// stops the extract phase.
	HaltThreshold int `mapstructure:"halt_threshold" yaml:"halt_threshold"`
	// StaleLeaseAfter returns abandoned in_progress targets to pending
	// at the start of an extract run. Zero disables reclaiming.
	StaleLeaseAfter time.Duration `mapstructure:"stale_lease_after" yaml:"stale_lease_after"`
	// FetchTimeout bounds a single page fetch.
	FetchTimeout time.Duration `mapstructure:"fetch_timeout" yaml:"fetch_timeout"`
	// MaxBodyBytes bounds a fetched response body.
	MaxBodyBytes int64  `mapstructure:"max_body_bytes" yaml:"max_body_bytes"`
	UserAgent    string `mapstructure:"user_agent"     yaml:"user_agent"`
	// LedgerPath is the JSONL target ledger location.
	LedgerPath string `mapstructure:"ledger_path" yaml:"ledger_path"`
	// ResultsPath is the JSONL extraction results location.
	ResultsPath string `mapstructure:"results_path" yaml:"results_path"`
}

// UpstreamRateConfig overrides limiter settings for one upstream.
type UpstreamRateConfig struct {
	Base    time.Duration `mapstructure:"base"    yaml:"base"`
	Ceiling time.Duration `mapstructure:"ceiling" yaml:"ceiling"`
}

// RateLimitConfig holds reactive rate limiter settings.
type RateLimitConfig struct {
	Base      time.Duration                 `mapstructure:"base"      yaml:"base"`
	Ceiling   time.Duration                 `mapstructure:"ceiling"   yaml:"ceiling"`
	Overrides map[string]UpstreamRateConfig `mapstructure:"overrides" yaml:"overrides"`
}

// DiscoveryConfig holds discovery phase settings.
type DiscoveryConfig struct {
	// SourceFile points at the YAML catalog source definitions.
	SourceFile string `mapstructure:"source_file" yaml:"source_file"`
	// Axes names the listing dimensions to walk, e.g. trending.
	Axes []string `mapstructure:"axes" yaml:"axes"`
	// Topics are category slugs walked by the topic axis.
	Topics  []string `mapstructure:"topics"   yaml:"topics"`
	PerPage int      `mapstructure:"per_page" yaml:"per_page"`
	// MaxPages bounds pagination per axis.
	MaxPages int `mapstructure:"max_pages" yaml:"max_pages"`
	// MinScore is the inclusion threshold for scored candidates.
	MinScore int `mapstructure:"min_score" yaml:"min_score"`
}

// LLMConfig holds extraction model settings.
type LLMConfig struct {
	BaseURL     string        `mapstructure:"base_url"    yaml:"base_url"`
	APIKey      string        `mapstructure:"api_key"     yaml:"api_key"`
	Model       string        `mapstructure:"model"       yaml:"model"`
	MaxTokens   int           `mapstructure:"max_tokens"  yaml:"max_tokens"`
	Temperature float64       `mapstructure:"temperature" yaml:"temperature"`
	Timeout     time.Duration `mapstructure:"timeout"     yaml:"timeout"`
}

// ElasticsearchConfig holds export index settings.
type ElasticsearchConfig struct {
	Addresses          []string      `mapstructure:"addresses"            yaml:"addresses"`
	APIKey             string        `mapstructure:"api_key"              yaml:"api_key"`
	Username           string        `mapstructure:"username"             yaml:"username"`
	Password           string        `mapstructure:"password"             yaml:"password"`
	IndexName          string        `mapstructure:"index_name"           yaml:"index_name"`
	FlushBytes         int           `mapstructure:"flush_bytes"          yaml:"flush_bytes"`
	FlushInterval      time.Duration `mapstructure:"flush_interval"       yaml:"flush_interval"`
	InsecureSkipVerify bool          `mapstructure:"insecure_skip_verify" yaml:"insecure_skip_verify"`
}

// ServerConfig holds the status API server settings.
type ServerConfig struct {
	Address      string        `mapstructure:"address"       yaml:"address"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"  yaml:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"  yaml:"idle_timeout"`
}

// ScheduleConfig holds cron specs for the schedule command.
type ScheduleConfig struct {
	Build   string `mapstructure:"build"   yaml:"build"`
	Extract string `mapstructure:"extract" yaml:"extract"`
	// ExtractMax caps targets per scheduled extract run. Zero means
	// no cap.
	ExtractMax int `mapstructure:"extract_max" yaml:"extract_max"`
}

// LoadConfig unmarshals the current Viper state into a Config.
// InitializeViper must have run first.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, invalidField("root", "cannot be decoded: "+err.Error())
	}

	applyDefaults(&cfg)

	return &cfg, nil
}

// applyDefaults fills fields that neither the config file nor the
// environment provided.
func applyDefaults(cfg *Config) {
	p := &cfg.Pipeline
	if p.Workers == 0 {
		p.Workers = DefaultWorkers
	}
	if p.HaltThreshold == 0 {
		p.HaltThreshold = DefaultHaltThreshold
	}
	if p.StaleLeaseAfter == 0 {
		p.StaleLeaseAfter = DefaultStaleLeaseAfter
	}
	if p.FetchTimeout == 0 {
		p.FetchTimeout = DefaultFetchTimeout
	}
	if p.MaxBodyBytes == 0 {
		p.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if p.UserAgent == "" {
		p.UserAgent = DefaultUserAgent
	}
	if p.LedgerPath == "" {
		p.LedgerPath = DefaultLedgerPath
	}
	if p.ResultsPath == "" {
		p.ResultsPath = DefaultResultsPath
	}

	if cfg.RateLimit.Base == 0 {
		cfg.RateLimit.Base = DefaultRateBase
	}
	if cfg.RateLimit.Ceiling == 0 {
		cfg.RateLimit.Ceiling = DefaultRateCeiling
	}

	d := &cfg.Discovery
	if d.SourceFile == "" {
		d.SourceFile = DefaultSourceFile
	}
	if len(d.Axes) == 0 {
		d.Axes = []string{"trending", "popular", "topic"}
	}
	if d.PerPage == 0 {
		d.PerPage = DefaultPerPage
	}
	if d.MaxPages == 0 {
		d.MaxPages = DefaultMaxPages
	}
	if d.MinScore == 0 {
		d.MinScore = DefaultMinScore
	}

	l := &cfg.LLM
	if l.BaseURL == "" {
		l.BaseURL = DefaultLLMBaseURL
	}
	if l.Model == "" {
		l.Model = DefaultLLMModel
	}
	if l.MaxTokens == 0 {
		l.MaxTokens = DefaultLLMMaxTokens
	}
	if l.Timeout == 0 {
		l.Timeout = DefaultLLMTimeout
	}

	es := &cfg.Elasticsearch
	// Addresses bound from a single env var arrive comma-separated.
	if len(es.Addresses) == 1 && strings.Contains(es.Addresses[0], ",") {
		es.Addresses = ParseAddresses(es.Addresses[0])
	}
	if len(es.Addresses) == 0 {
		es.Addresses = []string{DefaultESAddress}
	}
	if es.IndexName == "" {
		es.IndexName = DefaultESIndexName
	}
	if es.FlushBytes == 0 {
		es.FlushBytes = DefaultESFlushBytes
	}
	if es.FlushInterval == 0 {
		es.FlushInterval = DefaultESFlushInterval
	}

	s := &cfg.Server
	if s.Address == "" {
		s.Address = DefaultServerAddress
	}
	if s.ReadTimeout == 0 {
		s.ReadTimeout = DefaultServerReadTimeout
	}
	if s.WriteTimeout == 0 {
		s.WriteTimeout = DefaultServerWriteTimeout
	}
	if s.IdleTimeout == 0 {
		s.IdleTimeout = DefaultServerIdleTimeout
	}

	sch := &cfg.Schedule
	if sch.Build == "" {
		sch.Build = DefaultBuildSchedule
	}
	if sch.Extract == "" {
		sch.Extract = DefaultExtractSchedule
	}
}

// ValidatePipeline checks settings shared by build and extract.
func (c *Config) ValidatePipeline() error {
	if c.Pipeline.Workers < 1 {
		return invalidField("pipeline.workers", "must be at least 1")
	}
	if c.Pipeline.HaltThreshold < 1 {
		return invalidField("pipeline.halt_threshold", "must be at least 1")
	}
	if c.Pipeline.LedgerPath == "" {
		return invalidField("pipeline.ledger_path", "is required")
	}
	if c.RateLimit.Base <= 0 {
		return invalidField("rate_limit.base", "must be positive")
	}
	if c.RateLimit.Ceiling < c.RateLimit.Base {
		return invalidField("rate_limit.ceiling", "must be at least rate_limit.base")
	}
	return nil
}

// ValidateBuild checks settings the build command needs.
func (c *Config) ValidateBuild() error {
	if err := c.ValidatePipeline(); err != nil {
		return err
	}
	if c.Discovery.PerPage < 1 {
		return invalidField("discovery.per_page", "must be at least 1")
	}
	if c.Discovery.MaxPages < 1 {
		return invalidField("discovery.max_pages", "must be at least 1")
	}
	for _, axis := range c.Discovery.Axes {
		switch axis {
		case "trending", "popular", "topic":
		default:
			return invalidField("discovery.axes", "unknown axis "+axis)
		}
	}
	return nil
}

// ValidateExtract checks settings the extract command needs. The model
// key is required here and nowhere else, so status and reset work
// without credentials.
func (c *Config) ValidateExtract() error {
	if err := c.ValidatePipeline(); err != nil {
		return err
	}
	if c.LLM.APIKey == "" {
		return invalidField("llm.api_key", "is required (set LLM_API_KEY)")
	}
	if c.LLM.BaseURL == "" {
		return invalidField("llm.base_url", "is required")
	}
	if c.Pipeline.ResultsPath == "" {
		return invalidField("pipeline.results_path", "is required")
	}
	return nil
}

// ValidateExport checks settings the export command needs.
func (c *Config) ValidateExport() error {
	if len(c.Elasticsearch.Addresses) == 0 {
		return invalidField("elasticsearch.addresses", "at least one address is required")
	}
	if c.Elasticsearch.IndexName == "" {
		return invalidField("elasticsearch.index_name", "is required")
	}
	if c.Elasticsearch.FlushBytes < 1 {
		return invalidField("elasticsearch.flush_bytes", "must be at least 1")
	}
	return nil
}

// ValidateServe checks settings the serve command needs.
func (c *Config) ValidateServe() error {
	if c.Server.Address == "" {
		return invalidField("server.address", "is required")
	}
	return nil
}

// GetAppConfig returns application identity settings.
func (c *Config) GetAppConfig() *AppConfig {
	return &c.App
}

// GetPipelineConfig returns orchestrator settings.
func (c *Config) GetPipelineConfig() *PipelineConfig {
	return &c.Pipeline
}

// GetRateLimitConfig returns upstream rate limiter settings.
func (c *Config) GetRateLimitConfig() *RateLimitConfig {
	return &c.RateLimit
}

// GetDiscoveryConfig returns discovery phase settings.
func (c *Config) GetDiscoveryConfig() *DiscoveryConfig {
	return &c.Discovery
}

// GetLLMConfig returns extraction model settings.
func (c *Config) GetLLMConfig() *LLMConfig {
	return &c.LLM
}

// GetElasticsearchConfig returns export index settings.
func (c *Config) GetElasticsearchConfig() *ElasticsearchConfig {
	return &c.Elasticsearch
}

// GetServerConfig returns the status API server settings.
func (c *Config) GetServerConfig() *ServerConfig {
	return &c.Server
}

// GetScheduleConfig returns cron schedule settings.
func (c *Config) GetScheduleConfig() *ScheduleConfig {
	return &c.Schedule
}

// ParseAddresses splits a comma-separated address list, trimming
// whitespace and dropping empties.
func ParseAddresses(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
