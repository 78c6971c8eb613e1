// Package urlnorm provides URL normalization helpers shared by discovery
// and homepage resolution. URLs are normalized before comparison so the
// same site expressed differently matches consistently.
package urlnorm

import (
	"errors"
	"fmt"
	"net/url"
	"path"
	"sort"
	"strings"
)

// trackingParams lists query parameters that are stripped during
// normalization. These are advertising and analytics trackers that do
// not affect page content.
var trackingParams = map[string]struct{}{
	"utm_source":   {},
	"utm_medium":   {},
	"utm_campaign": {},
	"utm_term":     {},
	"utm_content":  {},
	"ref":          {},
	"fbclid":       {},
	"gclid":        {},
	"msclkid":      {},
}

// defaultPorts maps schemes to their default port strings.
var defaultPorts = map[string]string{
	"http":  "80",
	"https": "443",
}

// homepageSuffixes are path suffixes that alias a site root. A homepage
// link ending in one of these is equivalent to the bare origin.
var homepageSuffixes = []string{"/en", "/home", "/index", "/index.html", "/index.php"}

var (
	errEmptyInput          = errors.New("normalize url: empty input")
	errMissingSchemeOrHost = errors.New("normalize url: missing scheme or host")
)

// Normalize applies deterministic transformations to a raw URL so that
// equivalent URLs produce identical strings: lowercased scheme and host,
// http upgraded to https, "www." stripped, default ports removed,
// dot-segments resolved, trailing slashes removed, fragments dropped,
// query parameters sorted and tracking parameters stripped.
func Normalize(rawURL string) (string, error) {
	if rawURL == "" {
		return "", errEmptyInput
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("normalize url: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return "", errMissingSchemeOrHost
	}

	originalScheme := strings.ToLower(parsed.Scheme)
	parsed.Scheme = "https"
	parsed.Host = normalizeHost(parsed, originalScheme)
	parsed.Fragment = ""
	parsed.RawQuery = buildCleanQuery(parsed.Query())
	parsed.Path = normalizePath(parsed.Path)

	return parsed.String(), nil
}

// CanonicalHomepage normalizes a URL and additionally strips path
// suffixes that alias the site root, reducing homepage candidates to a
// comparable canonical form.
func CanonicalHomepage(rawURL string) (string, error) {
	normalized, err := Normalize(rawURL)
	if err != nil {
		return "", err
	}

	parsed, err := url.Parse(normalized)
	if err != nil {
		return "", fmt.Errorf("canonical homepage: %w", err)
	}

	p := strings.ToLower(parsed.Path)
	for _, suffix := range homepageSuffixes {
		if p == suffix {
			parsed.Path = "/"
			break
		}
	}
	parsed.RawQuery = ""

	return parsed.String(), nil
}

// Host returns the hostname (without port) from a URL, lowercased and
// with any "www." prefix removed.
func Host(rawURL string) (string, error) {
	if rawURL == "" {
		return "", errEmptyInput
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("extract host: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return "", errMissingSchemeOrHost
	}

	return stripWWW(strings.ToLower(parsed.Hostname())), nil
}

// DomainLabel returns the registrable label of a hostname: "acme" for
// acme.com, app.acme.io or www.acme.co.uk (best effort, no PSL lookup).
func DomainLabel(host string) string {
	host = stripWWW(strings.ToLower(host))
	labels := strings.Split(host, ".")
	if len(labels) < 2 {
		return host
	}

	// Step over common second-level registry labels (co.uk, com.au).
	idx := len(labels) - 2
	switch labels[idx] {
	case "co", "com", "net", "org", "ac", "gov":
		if idx > 0 {
			idx--
		}
	}

	return labels[idx]
}

func stripWWW(host string) string {
	return strings.TrimPrefix(host, "www.")
}

// normalizeHost lowercases the hostname, strips "www." and removes
// default ports. originalScheme identifies default ports before the
// https upgrade.
func normalizeHost(u *url.URL, originalScheme string) string {
	hostname := stripWWW(strings.ToLower(u.Hostname()))
	port := u.Port()

	if port == "" {
		return hostname
	}

	for _, scheme := range []string{originalScheme, u.Scheme} {
		if defaultPort, ok := defaultPorts[scheme]; ok && port == defaultPort {
			return hostname
		}
	}

	return hostname + ":" + port
}

// buildCleanQuery strips tracking parameters, sorts the remaining keys
// alphabetically, and returns the encoded query string.
func buildCleanQuery(values url.Values) string {
	keys := make([]string, 0, len(values))

	for key := range values {
		if _, isTracking := trackingParams[key]; !isTracking {
			keys = append(keys, key)
		}
	}

	if len(keys) == 0 {
		return ""
	}

	sort.Strings(keys)

	var b strings.Builder

	for i, key := range keys {
		if i > 0 {
			b.WriteByte('&')
		}

		vals := values[key]
		for j, val := range vals {
			if j > 0 {
				b.WriteByte('&')
			}

			b.WriteString(url.QueryEscape(key))
			b.WriteByte('=')
			b.WriteString(url.QueryEscape(val))
		}
	}

	return b.String()
}

// normalizePath resolves dot-segments and removes trailing slashes while
// preserving the root "/".
func normalizePath(p string) string {
	if p == "" || p == "/" {
		return "/"
	}

	cleaned := path.Clean(p)

	return strings.TrimRight(cleaned, "/")
}
