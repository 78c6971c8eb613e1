package extraction

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jonesrussell/gointel/internal/domain"
	"github.com/jonesrussell/gointel/internal/logger"
)

const (
	defaultLLMTimeout   = 2 * time.Minute
	maxLLMResponseBytes = 4 << 20
)

// structureInstruction steers the model toward the product-intelligence
// record. The schema is enforced by prompt rather than wire contract so
// provider-side schema support is not required.
const structureInstruction = `You extract market intelligence about a SaaS product from its homepage content.

Respond with a single JSON object using exactly these fields, leaving a field empty ("" / [] / false / null) when the page does not support it. Never guess.

{
  "name": "official product name",
  "tagline": "product tagline or slogan",
  "description": "1-2 sentence product description",
  "value_proposition": "the main problem solved and for whom",
  "pricing_model": "one of: free, freemium, free_trial, subscription, one_time, usage_based, per_seat, tiered, custom, unknown",
  "has_free_tier": false,
  "has_free_trial": false,
  "starting_price": "lowest paid price as displayed, e.g. $5/month",
  "pricing_tiers": [{"name": "", "price": "", "billing_period": ""}],
  "key_features": ["main features, top 10 at most"],
  "ai_features": ["AI or ML powered capabilities"],
  "security_features": ["SSO, SOC2, encryption and similar"],
  "integrations": ["named integrations like Slack, Zapier"],
  "api_available": false,
  "platforms": ["Web", "iOS", "Android", "Desktop"],
  "target_audience": "primary audience",
  "use_cases": ["primary use cases mentioned"],
  "mentioned_competitors": ["competitors named or compared against"],
  "notable_customers": ["customer names mentioned"]
}`

// LLMOptions configures the structuring client.
type LLMOptions struct {
	BaseURL     string
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
	// Client overrides the HTTP client, mainly for tests.
	Client *http.Client
}

// LLMStructurer turns distilled page content into the structured record
// through an OpenAI-compatible chat completions endpoint.
type LLMStructurer struct {
	endpoint    string
	apiKey      string
	model       string
	maxTokens   int
	temperature float64
	client      *http.Client
	log         logger.Interface
}

// NewLLMStructurer builds the structuring client.
func NewLLMStructurer(opts LLMOptions, log logger.Interface) *LLMStructurer {
	client := opts.Client
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = defaultLLMTimeout
		}
		client = &http.Client{Timeout: timeout}
	}
	if log == nil {
		log = logger.NewNoOp()
	}

	return &LLMStructurer{
		endpoint:    strings.TrimRight(opts.BaseURL, "/") + "/chat/completions",
		apiKey:      opts.APIKey,
		model:       opts.Model,
		maxTokens:   opts.MaxTokens,
		temperature: opts.Temperature,
		client:      client,
		log:         log,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	Temperature    float64         `json:"temperature"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Structure sends the page to the model and decodes the JSON object it
// returns. Provider throttling surfaces as a rate limit on the llm
// upstream; malformed model output is a permanent failure.
func (s *LLMStructurer) Structure(ctx context.Context, t *domain.Target, page *PageContent) (map[string]any, error) {
	payload, err := json.Marshal(chatRequest{
		Model: s.model,
		Messages: []chatMessage{
			{Role: "system", Content: structureInstruction},
			{Role: "user", Content: userPrompt(t, page)},
		},
		MaxTokens:      s.maxTokens,
		Temperature:    s.temperature,
		ResponseFormat: &responseFormat{Type: "json_object"},
	})
	if err != nil {
		return nil, domain.Permanent(fmt.Errorf("encode request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, domain.Permanent(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, domain.Transient(fmt.Errorf("call model: %w", err))
	}
	defer resp.Body.Close()

	retryAfter := domain.ParseRetryAfter(resp.Header.Get("Retry-After"))
	if err := domain.ClassifyStatus(UpstreamLLM, resp.StatusCode, retryAfter); err != nil {
		return nil, err
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxLLMResponseBytes))
	if err != nil {
		return nil, domain.Transient(fmt.Errorf("read response: %w", err))
	}

	var decoded chatResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, domain.Permanent(fmt.Errorf("decode response: %w", err))
	}

	if decoded.Error != nil {
		if isQuotaError(decoded.Error.Type) {
			return nil, &domain.RateLimitError{
				Upstream: UpstreamLLM,
				Err:      errors.New(decoded.Error.Message),
			}
		}
		return nil, domain.Permanent(fmt.Errorf("model error: %s", decoded.Error.Message))
	}

	if len(decoded.Choices) == 0 {
		return nil, domain.Permanent(errors.New("model returned no choices"))
	}

	content := stripFences(decoded.Choices[0].Message.Content)
	if content == "" {
		return nil, domain.Permanent(errors.New("model returned empty content"))
	}

	var data map[string]any
	if err := json.Unmarshal([]byte(content), &data); err != nil {
		return nil, domain.Permanent(fmt.Errorf("unparsable model output: %w", err))
	}

	s.log.Debug("target structured",
		"target", t.ID,
		"fields", len(data),
		"finish_reason", decoded.Choices[0].FinishReason)

	return data, nil
}

// userPrompt assembles the page context handed to the model. Discovery
// metadata rides along so the model can cross-check the product name.
func userPrompt(t *domain.Target, page *PageContent) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Product: %s\n", t.Name)
	if tagline, ok := t.Metadata["tagline"].(string); ok && tagline != "" {
		fmt.Fprintf(&b, "Listed tagline: %s\n", tagline)
	}
	fmt.Fprintf(&b, "Homepage: %s\n", page.URL)
	if page.Title != "" {
		fmt.Fprintf(&b, "Page title: %s\n", page.Title)
	}
	if page.Description != "" {
		fmt.Fprintf(&b, "Meta description: %s\n", page.Description)
	}
	b.WriteString("\nPage content:\n")
	b.WriteString(page.Text)

	return b.String()
}

// isQuotaError identifies provider errors that signal throttling rather
// than a bad request.
func isQuotaError(errType string) bool {
	switch errType {
	case "rate_limit_exceeded", "insufficient_quota", "tokens", "requests":
		return true
	default:
		return false
	}
}

// stripFences removes a markdown code fence around a JSON payload.
// Models add one occasionally despite the response format hint.
func stripFences(content string) string {
	content = strings.TrimSpace(content)
	if !strings.HasPrefix(content, "```") {
		return content
	}

	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(strings.TrimSpace(content), "```")

	return strings.TrimSpace(content)
}
