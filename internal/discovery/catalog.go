package discovery

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	colly "github.com/gocolly/colly/v2"

	"github.com/jonesrussell/gointel/internal/domain"
	"github.com/jonesrussell/gointel/internal/logger"
	"github.com/jonesrussell/gointel/internal/sources"
	"github.com/jonesrussell/gointel/internal/urlnorm"
)

// Catalog discovers candidates by scraping a directory's listing
// pages with the source's CSS selectors. Pagination cursors are page
// numbers.
type Catalog struct {
	name      string
	upstream  string
	baseURL   string
	selectors sources.CatalogSelectors
	headers   map[string]string
	userAgent string
	maxBody   int64
	log       logger.Interface
}

// NewCatalog builds a scraping adapter for a catalog source.
func NewCatalog(src sources.Source, opts Options) (*Catalog, error) {
	if src.Selectors.Card == "" || src.Selectors.Name == "" {
		return nil, fmt.Errorf("%w: selectors.card and selectors.name", sources.ErrMissingRequiredField)
	}

	return &Catalog{
		name:      src.ID,
		upstream:  src.Upstream,
		baseURL:   strings.TrimRight(src.URL, "/"),
		selectors: src.Selectors,
		headers:   src.Headers,
		userAgent: opts.UserAgent,
		maxBody:   opts.MaxBodyBytes,
		log:       opts.Log.WithComponent("discovery." + src.ID),
	}, nil
}

// Name identifies the adapter.
func (c *Catalog) Name() string { return c.name }

// Upstream is the rate limiter key.
func (c *Catalog) Upstream() string { return c.upstream }

// FetchPage scrapes one listing page. A fresh collector per call keeps
// pagination state out of colly's visited-URL tracking.
func (c *Catalog) FetchPage(ctx context.Context, q Query) (*Page, error) {
	pageNum := 1
	if q.Cursor != "" {
		n, err := strconv.Atoi(q.Cursor)
		if err != nil {
			return nil, domain.Permanent(fmt.Errorf("bad cursor %q: %w", q.Cursor, err))
		}
		pageNum = n
	}

	listURL := c.listingURL(q, pageNum)

	opts := []colly.CollectorOption{
		colly.StdlibContext(ctx),
		colly.UserAgent(c.userAgent),
	}
	if c.maxBody > 0 {
		opts = append(opts, colly.MaxBodySize(int(c.maxBody)))
	}
	collector := colly.NewCollector(opts...)

	page := &Page{}
	var fetchErr error

	collector.OnRequest(func(r *colly.Request) {
		for key, value := range c.headers {
			r.Headers.Set(key, value)
		}
	})

	collector.OnHTML(c.selectors.Card, func(e *colly.HTMLElement) {
		candidate := c.candidateFromCard(e)
		if candidate.Slug == "" || candidate.Name == "" {
			return
		}
		page.Candidates = append(page.Candidates, candidate)
	})

	if c.selectors.NextPage != "" {
		collector.OnHTML(c.selectors.NextPage, func(*colly.HTMLElement) {
			page.HasMore = true
		})
	}

	collector.OnError(func(r *colly.Response, visitErr error) {
		if r != nil && r.StatusCode > 0 {
			fetchErr = domain.ClassifyStatus(
				c.upstream,
				r.StatusCode,
				domain.ParseRetryAfter(r.Headers.Get("Retry-After")),
			)
			return
		}
		fetchErr = domain.Transient(fmt.Errorf("fetch listing: %w", visitErr))
	})

	if err := collector.Visit(listURL); err != nil {
		return nil, domain.Transient(fmt.Errorf("visit listing %s: %w", listURL, err))
	}
	collector.Wait()

	if fetchErr != nil {
		return nil, fetchErr
	}

	if page.HasMore {
		page.NextCursor = strconv.Itoa(pageNum + 1)
	}

	c.log.Debug("scraped listing page",
		"url", listURL,
		"candidates", len(page.Candidates),
		"has_more", page.HasMore,
	)

	return page, nil
}

// candidateFromCard extracts one candidate from a listing card.
func (c *Catalog) candidateFromCard(e *colly.HTMLElement) Candidate {
	name := strings.TrimSpace(e.ChildText(c.selectors.Name))

	link := e.ChildAttr(c.selectors.Link, "href")
	if link != "" {
		link = e.Request.AbsoluteURL(link)
	}

	var topics []string
	if c.selectors.Topics != "" {
		e.ForEach(c.selectors.Topics, func(_ int, t *colly.HTMLElement) {
			if topic := strings.TrimSpace(t.Text); topic != "" {
				topics = append(topics, topic)
			}
		})
	}

	candidate := Candidate{
		Slug:      slugFromLink(link, name),
		Name:      name,
		SourceURL: link,
		Topics:    topics,
		Metadata:  map[string]any{"listing": c.baseURL},
	}
	if c.selectors.Tagline != "" {
		candidate.Tagline = strings.TrimSpace(e.ChildText(c.selectors.Tagline))
	}

	return candidate
}

// listingURL expands the list path template for an axis, topic and
// page number.
func (c *Catalog) listingURL(q Query, pageNum int) string {
	path := c.selectors.ListPath
	if path == "" {
		path = "/{axis}?page={page}"
	}

	replacer := strings.NewReplacer(
		"{axis}", q.Axis,
		"{topic}", q.Topic,
		"{page}", strconv.Itoa(pageNum),
	)
	path = replacer.Replace(path)

	// A topic template with no topic leaves double slashes behind.
	path = strings.ReplaceAll(path, "//", "/")
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	return c.baseURL + path
}

// slugFromLink derives a stable slug, preferring the product page path
// over the display name.
func slugFromLink(link, name string) string {
	if link != "" {
		normalized, err := urlnorm.Normalize(link)
		if err == nil {
			parts := strings.Split(strings.Trim(normalized, "/"), "/")
			if last := parts[len(parts)-1]; last != "" && !strings.Contains(last, ".") {
				return last
			}
		}
	}

	slug := strings.ToLower(strings.TrimSpace(name))
	slug = strings.ReplaceAll(slug, " ", "-")

	return slug
}

var _ Adapter = (*Catalog)(nil)
