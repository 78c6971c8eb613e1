package extraction

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/jonesrussell/gointel/internal/domain"
	"github.com/jonesrussell/gointel/internal/logger"
	"github.com/jonesrussell/gointel/internal/urlnorm"
)

// DefaultAcceptScore is the minimum validation score for a resolved
// homepage to be accepted as belonging to the target.
const DefaultAcceptScore = 100

// Validation score weights, strongest signal first. A domain label that
// reproduces the target slug is near-certain; a label merely contained
// in the name is weak but still above noise.
const (
	scoreExactSlug     = 1000
	scoreStrippedSlug  = 900
	scoreSlugInDomain  = 500
	scoreNameInDomain  = 400
	scoreDomainInSlug  = 200
	scoreDomainInName  = 150
	minContainmentSize = 3
)

// aggregatorDomains never count as a product homepage. Redirects landing
// on one of these mean the listing had no real site behind it.
var aggregatorDomains = []string{
	"producthunt.com",
	"saashub.com",
	"linktr.ee",
	"twitter.com",
	"x.com",
	"facebook.com",
	"instagram.com",
	"linkedin.com",
	"youtube.com",
	"github.com",
	"gitlab.com",
	"apps.apple.com",
	"play.google.com",
	"chrome.google.com",
	"chromewebstore.google.com",
	"medium.com",
	"substack.com",
	"notion.site",
	"figma.com",
	"discord.gg",
	"discord.com",
	"t.me",
	"bit.ly",
	"t.co",
}

// RedirectResolver resolves a discovery URL to the product homepage by
// following redirects, then validates that the landing domain actually
// belongs to the target before accepting it.
type RedirectResolver struct {
	client      *http.Client
	userAgent   string
	acceptScore int
	log         logger.Interface
}

// NewRedirectResolver builds a resolver. acceptScore zero selects
// DefaultAcceptScore.
func NewRedirectResolver(client *http.Client, userAgent string, acceptScore int, log logger.Interface) *RedirectResolver {
	if client == nil {
		client = http.DefaultClient
	}
	if acceptScore <= 0 {
		acceptScore = DefaultAcceptScore
	}
	if log == nil {
		log = logger.NewNoOp()
	}

	return &RedirectResolver{
		client:      client,
		userAgent:   userAgent,
		acceptScore: acceptScore,
		log:         log,
	}
}

// Resolve follows the target's source URL to its final destination and
// returns the canonical homepage. Landing on an aggregator domain or a
// domain that fails validation is a permanent failure; network errors
// are transient.
func (r *RedirectResolver) Resolve(ctx context.Context, t *domain.Target) (string, error) {
	if t.SourceURL == "" {
		return "", domain.Permanent(errors.New("target has no source url"))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.SourceURL, http.NoBody)
	if err != nil {
		return "", domain.Permanent(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("User-Agent", r.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := r.client.Do(req)
	if err != nil {
		return "", domain.Transient(fmt.Errorf("follow %s: %w", t.SourceURL, err))
	}
	defer resp.Body.Close()
	// Drain a sliver so the connection can be reused.
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	retryAfter := domain.ParseRetryAfter(resp.Header.Get("Retry-After"))
	if err := domain.ClassifyStatus(UpstreamWeb, resp.StatusCode, retryAfter); err != nil {
		return "", err
	}

	final := t.SourceURL
	if resp.Request != nil && resp.Request.URL != nil {
		final = resp.Request.URL.String()
	}

	homepage, err := urlnorm.CanonicalHomepage(final)
	if err != nil {
		return "", domain.Permanent(fmt.Errorf("canonicalize %s: %w", final, err))
	}

	host, err := urlnorm.Host(homepage)
	if err != nil {
		return "", domain.Permanent(fmt.Errorf("parse host of %s: %w", homepage, err))
	}

	if isAggregator(host) {
		return "", domain.Permanent(fmt.Errorf("resolved to aggregator %s", host))
	}

	score := ValidationScore(urlnorm.DomainLabel(host), TargetSlug(t), t.Name)
	if score < r.acceptScore {
		return "", domain.Permanent(fmt.Errorf("homepage %s scored %d, below %d", homepage, score, r.acceptScore))
	}

	r.log.Debug("homepage resolved",
		"target", t.ID,
		"homepage", homepage,
		"score", score)

	return homepage, nil
}

// ValidationScore rates how plausibly a domain label belongs to a
// target identified by slug and display name. Comparison runs on
// compacted forms with separators removed.
func ValidationScore(domainLabel, slug, name string) int {
	label := compact(domainLabel)
	cslug := compact(slug)
	cname := compact(name)

	if label == "" {
		return 0
	}

	switch {
	case cslug != "" && label == cslug:
		return scoreExactSlug
	case cslug != "" && stripDigits(label) != "" && stripDigits(label) == stripDigits(cslug):
		return scoreStrippedSlug
	case len(cslug) >= minContainmentSize && strings.Contains(label, cslug):
		return scoreSlugInDomain
	case len(cname) >= minContainmentSize && strings.Contains(label, cname):
		return scoreNameInDomain
	case len(label) >= minContainmentSize && strings.Contains(cslug, label):
		return scoreDomainInSlug
	case len(label) >= minContainmentSize && strings.Contains(cname, label):
		return scoreDomainInName
	default:
		return 0
	}
}

// TargetSlug recovers the discovery slug from a target. Build writes it
// into metadata; the tail of the composite ID is the fallback.
func TargetSlug(t *domain.Target) string {
	if s, ok := t.Metadata["slug"].(string); ok && s != "" {
		return s
	}
	if _, after, found := strings.Cut(t.ID, ":"); found {
		return after
	}
	return t.ID
}

func isAggregator(host string) bool {
	for _, d := range aggregatorDomains {
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

// compact lowercases and strips separators so "Page Doctor", "page-doctor"
// and "pagedoctor" compare equal.
func compact(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		}
	}
	return b.String()
}

func stripDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r < '0' || r > '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
