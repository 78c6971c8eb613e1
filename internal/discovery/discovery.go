// Package discovery finds SaaS product candidates by walking upstream
// directory listings. Each adapter speaks one directory's protocol and
// yields pages of candidates; pagination state lives in an opaque
// cursor so the build phase can walk axes without knowing the source.
package discovery

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/jonesrussell/gointel/internal/logger"
	"github.com/jonesrussell/gointel/internal/sources"
)

// Listing axes. The trending axis surfaces recent risers, popular the
// all-time leaders, topic one category slug at a time.
const (
	AxisTrending = "trending"
	AxisPopular  = "popular"
	AxisTopic    = "topic"
)

// Candidate is one discovered product before it becomes a target.
type Candidate struct {
	// Slug uniquely names the product within its source.
	Slug      string
	Name      string
	SourceURL string
	Tagline   string
	// Score is the source's popularity measure, zero when the source
	// has none. The build phase applies the inclusion threshold to
	// scored candidates only.
	Score    int
	Topics   []string
	Metadata map[string]any
}

// Query asks an adapter for one listing page.
type Query struct {
	Axis string
	// Topic is the category slug, set only for the topic axis.
	Topic string
	// Cursor is the adapter-opaque pagination token. Empty means the
	// first page.
	Cursor  string
	PerPage int
}

// Page is one listing page of candidates.
type Page struct {
	Candidates []Candidate
	NextCursor string
	HasMore    bool
}

// Adapter walks one upstream directory.
type Adapter interface {
	// Name identifies the adapter in logs and target metadata.
	Name() string
	// Upstream is the rate limiter key for this adapter's calls.
	Upstream() string
	// FetchPage returns one listing page. Errors follow the shared
	// taxonomy so the caller can classify them.
	FetchPage(ctx context.Context, q Query) (*Page, error)
}

// Options carries adapter construction dependencies.
type Options struct {
	Log       logger.Interface
	UserAgent string
	Timeout   time.Duration
	// MaxBodyBytes bounds fetched listing pages.
	MaxBodyBytes int64
	// Client overrides the HTTP client, mainly for tests.
	Client *http.Client
}

// New builds the adapter for one source definition.
func New(src sources.Source, opts Options) (Adapter, error) {
	if opts.Log == nil {
		opts.Log = logger.NewNoOp()
	}

	switch src.Kind {
	case sources.KindAPI:
		return NewProductHunt(src, opts)
	case sources.KindCatalog:
		return NewCatalog(src, opts)
	default:
		return nil, fmt.Errorf("%w: %q", sources.ErrUnknownKind, src.Kind)
	}
}
