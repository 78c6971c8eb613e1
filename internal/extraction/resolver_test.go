package extraction_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/jonesrussell/gointel/internal/domain"
	"github.com/jonesrussell/gointel/internal/extraction"
)

const resolverTestAgent = "TestBot/1.0"

// rewriteTransport sends every request to the test server regardless of
// the request host, while responses keep the logical URL. Resolution
// semantics depend on hostnames, which httptest cannot serve directly.
type rewriteTransport struct {
	server *httptest.Server
}

func (rt rewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())
	clone.URL.Scheme = "http"
	clone.URL.Host = strings.TrimPrefix(rt.server.URL, "http://")

	resp, err := rt.server.Client().Transport.RoundTrip(clone)
	if resp != nil {
		resp.Request = req
	}

	return resp, err
}

func resolverClient(server *httptest.Server) *http.Client {
	return &http.Client{Transport: rewriteTransport{server: server}}
}

func testTarget(id, name, sourceURL string) *domain.Target {
	return &domain.Target{
		ID:        id,
		Name:      name,
		SourceURL: sourceURL,
		Status:    domain.StatusInProgress,
	}
}

func TestResolveFollowsRedirects(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/launch/acme", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "https://www.acme.io/home?utm_source=ph", http.StatusFound)
	})
	mux.HandleFunc("/home", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("<html><body>Acme</body></html>"))
	})

	server := httptest.NewServer(mux)
	defer server.Close()

	resolver := extraction.NewRedirectResolver(resolverClient(server), resolverTestAgent, 0, nil)

	target := testTarget("producthunt:acme", "Acme", "https://discovery.test/launch/acme")

	homepage, err := resolver.Resolve(context.Background(), target)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	want := "https://acme.io/"
	if homepage != want {
		t.Errorf("Resolve() = %q, want %q", homepage, want)
	}
}

func TestResolveRejectsAggregator(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/launch/acme", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "https://twitter.com/acmehq", http.StatusFound)
	})
	mux.HandleFunc("/acmehq", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("<html><body>profile</body></html>"))
	})

	server := httptest.NewServer(mux)
	defer server.Close()

	resolver := extraction.NewRedirectResolver(resolverClient(server), resolverTestAgent, 0, nil)

	target := testTarget("producthunt:acme", "Acme", "https://discovery.test/launch/acme")

	_, err := resolver.Resolve(context.Background(), target)
	if !errors.Is(err, domain.ErrPermanent) {
		t.Fatalf("Resolve() error = %v, want permanent", err)
	}
	if !strings.Contains(err.Error(), "aggregator") {
		t.Errorf("Resolve() error = %v, want aggregator rejection", err)
	}
}

func TestResolveRejectsUnrelatedDomain(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/launch/acme", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "https://totally-unrelated.example/", http.StatusFound)
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("<html><body>something else</body></html>"))
	})

	server := httptest.NewServer(mux)
	defer server.Close()

	resolver := extraction.NewRedirectResolver(resolverClient(server), resolverTestAgent, 0, nil)

	target := testTarget("producthunt:acme", "Acme", "https://discovery.test/launch/acme")

	_, err := resolver.Resolve(context.Background(), target)
	if !errors.Is(err, domain.ErrPermanent) {
		t.Fatalf("Resolve() error = %v, want permanent", err)
	}
	if !strings.Contains(err.Error(), "scored") {
		t.Errorf("Resolve() error = %v, want validation score rejection", err)
	}
}

func TestResolveClassifiesStatuses(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		status     int
		retryAfter string
		check      func(t *testing.T, err error)
	}{
		{
			name:       "429 is a rate limit with hint",
			status:     http.StatusTooManyRequests,
			retryAfter: "30",
			check: func(t *testing.T, err error) {
				t.Helper()
				rle, ok := domain.AsRateLimit(err)
				if !ok {
					t.Fatalf("error = %v, want rate limit", err)
				}
				if rle.Upstream != extraction.UpstreamWeb {
					t.Errorf("Upstream = %q, want %q", rle.Upstream, extraction.UpstreamWeb)
				}
				if rle.RetryAfter.Seconds() != 30 {
					t.Errorf("RetryAfter = %v, want 30s", rle.RetryAfter)
				}
			},
		},
		{
			name:   "503 is transient",
			status: http.StatusServiceUnavailable,
			check: func(t *testing.T, err error) {
				t.Helper()
				if !errors.Is(err, domain.ErrTransient) {
					t.Errorf("error = %v, want transient", err)
				}
			},
		},
		{
			name:   "410 is permanent",
			status: http.StatusGone,
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

			resolver := extraction.NewRedirectResolver(server.Client(), resolverTestAgent, 0, nil)

			target := testTarget("producthunt:acme", "Acme", server.URL+"/launch/acme")

			_, err := resolver.Resolve(context.Background(), target)
			if err == nil {
				t.Fatal("Resolve() error = nil, want classified failure")
			}
			tt.check(t, err)
		})
	}
}

func TestResolveNetworkErrorIsTransient(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.NotFoundHandler())
	server.Close()

	resolver := extraction.NewRedirectResolver(server.Client(), resolverTestAgent, 0, nil)

	target := testTarget("producthunt:acme", "Acme", server.URL+"/launch/acme")

	_, err := resolver.Resolve(context.Background(), target)
	if !errors.Is(err, domain.ErrTransient) {
		t.Errorf("Resolve() error = %v, want transient", err)
	}
}

func TestResolveRequiresSourceURL(t *testing.T) {
	t.Parallel()

	resolver := extraction.NewRedirectResolver(http.DefaultClient, resolverTestAgent, 0, nil)

	_, err := resolver.Resolve(context.Background(), testTarget("producthunt:acme", "Acme", ""))
	if !errors.Is(err, domain.ErrPermanent) {
		t.Errorf("Resolve() error = %v, want permanent", err)
	}
}

func TestValidationScore(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		domainLabel string
		slug        string
		productName string
		want        int
	}{
		{"exact slug match", "acme", "acme", "Acme", 1000},
		{"separators ignored", "pagedoctor", "page-doctor", "Page Doctor", 1000},
		{"digits stripped", "acme2", "acme", "Acme", 900},
		{"slug inside domain", "getacme", "acme", "Acme", 500},
		{"name inside domain", "tryacmeapp", "acme-3", "AcmeApp", 400},
		{"domain inside slug", "acme", "acme-analytics", "Acme Analytics", 200},
		{"domain inside name only", "linear", "lnr", "Linear for Teams", 150},
		{"no relation", "example", "acme", "Acme", 0},
		{"short fragments ignored", "ab", "xy", "Z", 0},
		{"empty label", "", "acme", "Acme", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := extraction.ValidationScore(tt.domainLabel, tt.slug, tt.productName)
			if got != tt.want {
				t.Errorf("ValidationScore(%q, %q, %q) = %d, want %d",
					tt.domainLabel, tt.slug, tt.productName, got, tt.want)
			}
		})
	}
}

func TestTargetSlug(t *testing.T) {
	t.Parallel()

	withMeta := testTarget("producthunt:acme-app", "Acme", "https://x.test")
	withMeta.Metadata = map[string]any{"slug": "acme"}

	if got := extraction.TargetSlug(withMeta); got != "acme" {
		t.Errorf("TargetSlug() = %q, want metadata slug", got)
	}

	fromID := testTarget("producthunt:acme-app", "Acme", "https://x.test")
	if got := extraction.TargetSlug(fromID); got != "acme-app" {
		t.Errorf("TargetSlug() = %q, want id tail", got)
	}

	bare := testTarget("acme", "Acme", "https://x.test")
	if got := extraction.TargetSlug(bare); got != "acme" {
		t.Errorf("TargetSlug() = %q, want bare id", got)
	}
}
