package extraction_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/jonesrussell/gointel/internal/domain"
	"github.com/jonesrussell/gointel/internal/extraction"
)

const structurerTestKey = "sk-test"

func testPage() *extraction.PageContent {
	return &extraction.PageContent{
		URL:         "https://acme.io/",
		Title:       "Acme - Ship faster",
		Description: "Acme helps engineering teams ship faster.",
		Text:        "Acme is the all-in-one workspace for engineering teams.",
	}
}

func newStructurer(server *httptest.Server) *extraction.LLMStructurer {
	return extraction.NewLLMStructurer(extraction.LLMOptions{
		BaseURL:   server.URL + "/v1",
		APIKey:    structurerTestKey,
		Model:     "gpt-4o-mini",
		MaxTokens: 2048,
		Client:    server.Client(),
	}, nil)
}

func completionBody(content string) string {
	msg, _ := json.Marshal(content)
	return `{"choices":[{"message":{"content":` + string(msg) + `},"finish_reason":"stop"}]}`
}

func TestStructureParsesModelOutput(t *testing.T) {
	t.Parallel()

	var (
		gotPath string
		gotAuth string
		gotBody map[string]any
	)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&gotBody)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(completionBody(`{"name":"Acme","pricing_model":"freemium","has_free_trial":true}`)))
	}))
	defer server.Close()

	target := testTarget("producthunt:acme", "Acme", "https://discovery.test/acme")
	target.Metadata = map[string]any{"tagline": "Ship faster"}

	data, err := newStructurer(server).Structure(context.Background(), target, testPage())
	if err != nil {
		t.Fatalf("Structure() error = %v", err)
	}

	if gotPath != "/v1/chat/completions" {
		t.Errorf("path = %q, want /v1/chat/completions", gotPath)
	}
	if gotAuth != "Bearer "+structurerTestKey {
		t.Errorf("Authorization = %q, want bearer token", gotAuth)
	}
	if gotBody["model"] != "gpt-4o-mini" {
		t.Errorf("model = %v, want gpt-4o-mini", gotBody["model"])
	}

	format, _ := gotBody["response_format"].(map[string]any)
	if format["type"] != "json_object" {
		t.Errorf("response_format = %v, want json_object", gotBody["response_format"])
	}

	messages, _ := gotBody["messages"].([]any)
	if len(messages) != 2 {
		t.Fatalf("messages = %d, want system and user", len(messages))
	}
	user, _ := messages[1].(map[string]any)
	content, _ := user["content"].(string)
	if !strings.Contains(content, "Ship faster") || !strings.Contains(content, "all-in-one workspace") {
		t.Errorf("user content missing page context: %q", content)
	}

	if data["name"] != "Acme" {
		t.Errorf("data[name] = %v, want Acme", data["name"])
	}
	if data["has_free_trial"] != true {
		t.Errorf("data[has_free_trial] = %v, want true", data["has_free_trial"])
	}
}

func TestStructureStripsFences(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(completionBody("```json\n{\"name\":\"Acme\"}\n```")))
	}))
	defer server.Close()

	target := testTarget("producthunt:acme", "Acme", "https://discovery.test/acme")

	data, err := newStructurer(server).Structure(context.Background(), target, testPage())
	if err != nil {
		t.Fatalf("Structure() error = %v", err)
	}
	if data["name"] != "Acme" {
		t.Errorf("data[name] = %v, want fenced JSON decoded", data["name"])
	}
}

func TestStructureClassifiesStatuses(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		status     int
		retryAfter string
		check      func(t *testing.T, err error)
	}{
		{
			name:       "429 is a rate limit on the llm upstream",
			status:     http.StatusTooManyRequests,
			retryAfter: "45",
			check: func(t *testing.T, err error) {
				t.Helper()
				rle, ok := domain.AsRateLimit(err)
				if !ok {
					t.Fatalf("error = %v, want rate limit", err)
				}
				if rle.Upstream != extraction.UpstreamLLM {
					t.Errorf("Upstream = %q, want %q", rle.Upstream, extraction.UpstreamLLM)
				}
				if rle.RetryAfter.Seconds() != 45 {
					t.Errorf("RetryAfter = %v, want 45s", rle.RetryAfter)
				}
			},
		},
		{
			name:   "502 is transient",
			status: http.StatusBadGateway,
			check: func(t *testing.T, err error) {
				t.Helper()
				if !errors.Is(err, domain.ErrTransient) {
					t.Errorf("error = %v, want transient", err)
				}
			},
		},
		{
			name:   "401 is permanent",
			status: http.StatusUnauthorized,
			check: func(t *testing.T, err error) {
				t.Helper()
				if !errors.Is(err, domain.ErrPermanent) {
					t.Errorf("error = %v, want permanent", err)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				if tt.retryAfter != "" {
					w.Header().Set("Retry-After", tt.retryAfter)
				}
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			target := testTarget("producthunt:acme", "Acme", "https://discovery.test/acme")

			_, err := newStructurer(server).Structure(context.Background(), target, testPage())
			if err == nil {
				t.Fatal("Structure() error = nil, want classified failure")
			}
			tt.check(t, err)
		})
	}
}

func TestStructureQuotaErrorIsRateLimit(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"error":{"message":"quota exhausted for the month","type":"insufficient_quota"}}`))
	}))
	defer server.Close()

	target := testTarget("producthunt:acme", "Acme", "https://discovery.test/acme")

	_, err := newStructurer(server).Structure(context.Background(), target, testPage())

	rle, ok := domain.AsRateLimit(err)
	if !ok {
		t.Fatalf("Structure() error = %v, want rate limit", err)
	}
	if rle.Upstream != extraction.UpstreamLLM {
		t.Errorf("Upstream = %q, want %q", rle.Upstream, extraction.UpstreamLLM)
	}
}

func TestStructureRejectsMalformedContent(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
	}{
		{"content is not json", completionBody("the page describes a product")},
		{"no choices", `{"choices":[]}`},
		{"empty content", completionBody("")},
		{"provider error", `{"error":{"message":"model not found","type":"invalid_request_error"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			target := testTarget("producthunt:acme", "Acme", "https://discovery.test/acme")

			_, err := newStructurer(server).Structure(context.Background(), target, testPage())
			if !errors.Is(err, domain.ErrPermanent) {
				t.Errorf("Structure() error = %v, want permanent", err)
			}
		})
	}
}

func TestStructureNetworkErrorIsTransient(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.NotFoundHandler())
	server.Close()

	target := testTarget("producthunt:acme", "Acme", "https://discovery.test/acme")

	_, err := newStructurer(server).Structure(context.Background(), target, testPage())
	if !errors.Is(err, domain.ErrTransient) {
		t.Errorf("Structure() error = %v, want transient", err)
	}
}
