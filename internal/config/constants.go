package config

import "time"

// Pipeline defaults.
const (
	DefaultWorkers         = 4
	DefaultHaltThreshold   = 3
	DefaultStaleLeaseAfter = 30 * time.Minute
	DefaultFetchTimeout    = 30 * time.Second
	DefaultMaxBodyBytes    = 2 << 20 // 2 MB per fetched page
	DefaultUserAgent       = "gointel/1.0 (+https://github.com/jonesrussell/gointel)"
	DefaultLedgerPath      = "data/targets.jsonl"
	DefaultResultsPath     = "data/results.jsonl"
)

// Rate limiter defaults.
const (
	DefaultRateBase    = 1 * time.Second
	DefaultRateCeiling = 60 * time.Second
)

// Discovery defaults.
const (
	DefaultSourceFile = "sources.yml"
	DefaultPerPage    = 50
	DefaultMaxPages   = 3
	DefaultMinScore   = 20
)

// LLM defaults.
const (
	DefaultLLMBaseURL     = "https://api.openai.com/v1"
	DefaultLLMModel       = "gpt-4o-mini"
	DefaultLLMMaxTokens   = 2048
	DefaultLLMTemperature = 0.0
	DefaultLLMTimeout     = 120 * time.Second
)

// Elasticsearch defaults.
const (
	DefaultESAddress       = "http://127.0.0.1:9200"
	DefaultESIndexName     = "gointel-results"
	DefaultESFlushBytes    = 5 << 20 // 5 MB per bulk flush
	DefaultESFlushInterval = 5 * time.Second
)

// Server defaults.
const (
	DefaultServerAddress      = ":8060"
	DefaultServerReadTimeout  = 15 * time.Second
	DefaultServerWriteTimeout = 15 * time.Second
	DefaultServerIdleTimeout  = 60 * time.Second
)

// Schedule defaults. Discovery is cheap so it runs more often than
// extraction, which burns LLM quota.
const (
	DefaultBuildSchedule   = "0 6 * * *"
	DefaultExtractSchedule = "30 6 * * *"
)
