package extraction

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"

	"github.com/jonesrussell/gointel/internal/domain"
	"github.com/jonesrussell/gointel/internal/logger"
)

// maxPageText caps the distilled text handed to the structuring stage.
// Marketing homepages rarely carry useful copy past this point and
// model context is the expensive resource.
const maxPageText = 12000

// PageContent is the distilled view of one fetched page.
type PageContent struct {
	URL         string
	Title       string
	Description string
	SiteName    string
	Text        string
}

// HTTPFetcher fetches a homepage and distills it into PageContent using
// readability extraction with a structural fallback.
type HTTPFetcher struct {
	client    *http.Client
	userAgent string
	maxBody   int64
	log       logger.Interface
}

// NewHTTPFetcher builds a fetcher. maxBody zero or negative disables the
// body cap.
func NewHTTPFetcher(client *http.Client, userAgent string, maxBody int64, log logger.Interface) *HTTPFetcher {
	if client == nil {
		client = http.DefaultClient
	}
	if log == nil {
		log = logger.NewNoOp()
	}

	return &HTTPFetcher{
		client:    client,
		userAgent: userAgent,
		maxBody:   maxBody,
		log:       log,
	}
}

// Fetch downloads pageURL and returns its distilled content. Network
// errors are transient; pages with no extractable text are permanent
// failures.
func (f *HTTPFetcher) Fetch(ctx context.Context, pageURL string) (*PageContent, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, http.NoBody)
	if err != nil {
		return nil, domain.Permanent(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, domain.Transient(fmt.Errorf("fetch %s: %w", pageURL, err))
	}
	defer resp.Body.Close()

	retryAfter := domain.ParseRetryAfter(resp.Header.Get("Retry-After"))
	if err := domain.ClassifyStatus(UpstreamWeb, resp.StatusCode, retryAfter); err != nil {
		return nil, err
	}

	reader := io.Reader(resp.Body)
	if f.maxBody > 0 {
		reader = io.LimitReader(resp.Body, f.maxBody)
	}

	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, domain.Transient(fmt.Errorf("read %s: %w", pageURL, err))
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, domain.Permanent(fmt.Errorf("parse %s: %w", pageURL, err))
	}

	page := &PageContent{
		URL:         pageURL,
		Title:       pageTitle(doc),
		Description: metaDescription(doc),
	}

	f.distill(resp, body, doc, page)

	if page.Text == "" && page.Description == "" {
		return nil, domain.Permanent(fmt.Errorf("no extractable text at %s", pageURL))
	}

	f.log.Debug("page fetched",
		"url", pageURL,
		"title", page.Title,
		"text_len", len(page.Text))

	return page, nil
}

// distill runs readability over the body and falls back to stripped
// body text when the page defeats it.
func (f *HTTPFetcher) distill(resp *http.Response, body []byte, doc *goquery.Document, page *PageContent) {
	parser := readability.NewParser()

	article, err := parser.Parse(bytes.NewReader(body), resp.Request.URL)
	if err == nil && strings.TrimSpace(article.TextContent) != "" {
		if page.Title == "" {
			page.Title = article.Title
		}
		page.SiteName = article.SiteName
		if page.Description == "" {
			page.Description = article.Excerpt
		}
		page.Text = clip(normalizeText(article.TextContent), maxPageText)
		return
	}

	if err != nil {
		f.log.Debug("readability failed, using body text", "url", page.URL, "error", err.Error())
	}

	page.Text = clip(bodyText(doc), maxPageText)
}

func pageTitle(doc *goquery.Document) string {
	title := strings.TrimSpace(doc.Find("title").First().Text())
	if title == "" {
		title = strings.TrimSpace(doc.Find(`meta[property="og:title"]`).AttrOr("content", ""))
	}

	return title
}

func metaDescription(doc *goquery.Document) string {
	desc := strings.TrimSpace(doc.Find(`meta[name="description"]`).AttrOr("content", ""))
	if desc == "" {
		desc = strings.TrimSpace(doc.Find(`meta[property="og:description"]`).AttrOr("content", ""))
	}

	return desc
}

// bodyText extracts readable text from the document body with chrome
// elements removed.
func bodyText(doc *goquery.Document) string {
	working := doc.Clone()
	working.Find("script, style, noscript, nav, header, footer, iframe, svg").Remove()

	root := working.Find("main, article").First()
	if root.Length() == 0 {
		root = working.Find("body")
	}

	return normalizeText(root.Text())
}

// normalizeText collapses runs of whitespace into single spaces while
// keeping line boundaries as separators.
func normalizeText(raw string) string {
	var b strings.Builder

	scanner := bufio.NewScanner(strings.NewReader(raw))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.Join(strings.Fields(scanner.Text()), " ")
		if line == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(line)
	}

	return b.String()
}

// clip truncates s to at most n bytes on a rune boundary.
func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}

	cut := n
	for cut > 0 && !isRuneStart(s[cut]) {
		cut--
	}

	return s[:cut]
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
