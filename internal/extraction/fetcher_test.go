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

const fetcherTestAgent = "TestBot/1.0"

const productPageHTML = `<!DOCTYPE html>
<html>
<head>
<title>Acme - Ship faster</title>
<meta name="description" content="Acme helps engineering teams ship faster.">
</head>
<body>
<nav>Home Pricing Docs Login</nav>
<main>
<h1>Ship faster with Acme</h1>
<p>Acme is the all-in-one workspace for engineering teams. Plan, track,
and ship work without leaving your editor. Start free and upgrade when
your team grows past five seats.</p>
<p>Trusted by over 10,000 teams worldwide. Integrates with Slack, GitHub,
and Linear out of the box. SOC2 compliant with SSO included on every
plan, no enterprise tier required.</p>
</main>
<footer>Copyright Acme Inc</footer>
</body>
</html>`

func newFetcher(server *httptest.Server) *extraction.HTTPFetcher {
	return extraction.NewHTTPFetcher(server.Client(), fetcherTestAgent, 1<<20, nil)
}

func TestFetchDistillsPage(t *testing.T) {
	t.Parallel()

	var gotAgent string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAgent = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(productPageHTML))
	}))
	defer server.Close()

	page, err := newFetcher(server).Fetch(context.Background(), server.URL+"/")
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}

	if gotAgent != fetcherTestAgent {
		t.Errorf("User-Agent = %q, want %q", gotAgent, fetcherTestAgent)
	}
	if page.Title != "Acme - Ship faster" {
		t.Errorf("Title = %q, want page title", page.Title)
	}
	if page.Description != "Acme helps engineering teams ship faster." {
		t.Errorf("Description = %q, want meta description", page.Description)
	}
	if !strings.Contains(page.Text, "all-in-one workspace") {
		t.Errorf("Text = %q, want main content present", page.Text)
	}
	if strings.Contains(page.Text, "\n") {
		t.Error("Text contains newlines, want normalized whitespace")
	}
	if page.URL != server.URL+"/" {
		t.Errorf("URL = %q, want request URL", page.URL)
	}
}

func TestFetchEmptyPageIsPermanent(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><head><title>x</title></head><body> </body></html>`))
	}))
	defer server.Close()

	_, err := newFetcher(server).Fetch(context.Background(), server.URL+"/")
	if !errors.Is(err, domain.ErrPermanent) {
		t.Fatalf("Fetch() error = %v, want permanent", err)
	}
	if !strings.Contains(err.Error(), "no extractable text") {
		t.Errorf("Fetch() error = %v, want empty-page rejection", err)
	}
}

func TestFetchClassifiesStatuses(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		status     int
		retryAfter string
		check      func(t *testing.T, err error)
	}{
		{
			name:       "429 is a rate limit on the web upstream",
			status:     http.StatusTooManyRequests,
			retryAfter: "12",
			check: func(t *testing.T, err error) {
				t.Helper()
				rle, ok := domain.AsRateLimit(err)
				if !ok {
					t.Fatalf("error = %v, want rate limit", err)
				}
				if rle.Upstream != extraction.UpstreamWeb {
					t.Errorf("Upstream = %q, want %q", rle.Upstream, extraction.UpstreamWeb)
				}
				if rle.RetryAfter.Seconds() != 12 {
					t.Errorf("RetryAfter = %v, want 12s", rle.RetryAfter)
				}
			},
		},
		{
			name:   "500 is transient",
			status: http.StatusInternalServerError,
			check: func(t *testing.T, err error) {
				t.Helper()
				if !errors.Is(err, domain.ErrTransient) {
					t.Errorf("error = %v, want transient", err)
				}
			},
		},
		{
			name:   "404 is permanent",
			status: http.StatusNotFound,
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

			_, err := newFetcher(server).Fetch(context.Background(), server.URL+"/")
			if err == nil {
				t.Fatal("Fetch() error = nil, want classified failure")
			}
			tt.check(t, err)
		})
	}
}

func TestFetchNetworkErrorIsTransient(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.NotFoundHandler())
	server.Close()

	_, err := newFetcher(server).Fetch(context.Background(), server.URL+"/")
	if !errors.Is(err, domain.ErrTransient) {
		t.Errorf("Fetch() error = %v, want transient", err)
	}
}
