// Package extraction turns a leased target into a structured market
// intelligence record. Processing runs three stages: resolve the real
// homepage behind the discovery URL, fetch and distill the page, then
// structure the content with a language model. Each stage is guarded
// by the shared rate limiter under its own upstream so web and model
// pauses never block each other.
package extraction

import (
	"context"
	"net/http"
	"time"

	"github.com/jonesrussell/gointel/internal/domain"
	"github.com/jonesrussell/gointel/internal/logger"
)

// Rate limiter upstream keys. Resolve and fetch share the web domain;
// the model has its own.
const (
	UpstreamWeb = "web"
	UpstreamLLM = "llm"
)

// Processor handles one target end to end.
type Processor interface {
	// Process returns a result for the target. On failure the result
	// still carries the failure description and any resolution
	// progress; the error is stage-tagged for classification.
	Process(ctx context.Context, t *domain.Target) (*domain.ExtractionResult, error)
}

// Guarder gates upstream calls through the reactive rate limiter.
type Guarder interface {
	Guard(ctx context.Context, upstream string, call func() error) error
}

// HomepageResolver finds the product homepage behind a discovery URL.
type HomepageResolver interface {
	Resolve(ctx context.Context, t *domain.Target) (string, error)
}

// PageFetcher fetches and distills one page.
type PageFetcher interface {
	Fetch(ctx context.Context, pageURL string) (*PageContent, error)
}

// Structurer turns page content into the structured record.
type Structurer interface {
	Structure(ctx context.Context, t *domain.Target, page *PageContent) (map[string]any, error)
}

// Config holds extraction stage settings.
type Config struct {
	UserAgent    string
	FetchTimeout time.Duration
	MaxBodyBytes int64
	// AcceptScore is the homepage validation threshold. Zero means the
	// default.
	AcceptScore int

	LLMBaseURL     string
	LLMAPIKey      string
	LLMModel       string
	LLMMaxTokens   int
	LLMTemperature float64
	LLMTimeout     time.Duration
}

// New wires the concrete three-stage processor.
func New(cfg Config, limiter Guarder, log logger.Interface) *Extractor {
	if log == nil {
		log = logger.NewNoOp()
	}

	webClient := &http.Client{Timeout: cfg.FetchTimeout}

	resolver := NewRedirectResolver(webClient, cfg.UserAgent, cfg.AcceptScore, log)
	fetcher := NewHTTPFetcher(webClient, cfg.UserAgent, cfg.MaxBodyBytes, log)
	structurer := NewLLMStructurer(LLMOptions{
		BaseURL:     cfg.LLMBaseURL,
		APIKey:      cfg.LLMAPIKey,
		Model:       cfg.LLMModel,
		MaxTokens:   cfg.LLMMaxTokens,
		Temperature: cfg.LLMTemperature,
		Timeout:     cfg.LLMTimeout,
	}, log)

	return NewExtractor(resolver, fetcher, structurer, limiter, log)
}
