// Package sources loads discovery source definitions. A source names
// an upstream directory of SaaS products and how to walk its listings,
// either through a JSON API or by scraping catalog pages.
package sources

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

var (
	// ErrNoSources indicates no usable sources were found.
	ErrNoSources = errors.New("no sources found in configuration")
	// ErrMissingRequiredField indicates a required field is missing.
	ErrMissingRequiredField = errors.New("missing required field")
	// ErrUnknownKind indicates an unsupported source kind.
	ErrUnknownKind = errors.New("unknown source kind")
)

// Source kinds.
const (
	KindAPI     = "api"
	KindCatalog = "catalog"
)

// Source describes one upstream product directory.
type Source struct {
	ID   string `mapstructure:"id"`
	Name string `mapstructure:"name"`
	// Kind selects the adapter: api or catalog.
	Kind string `mapstructure:"kind"`
	// URL is the API base URL or the catalog site root.
	URL string `mapstructure:"url"`
	// Upstream is the rate limiter key. Defaults to ID.
	Upstream string `mapstructure:"upstream"`
	// Axes this source supports. Defaults to trending only.
	Axes []string `mapstructure:"axes"`
	// RateLimit overrides the limiter's base backoff for this source's
	// upstream when set.
	RateLimit time.Duration     `mapstructure:"rate_limit"`
	Headers   map[string]string `mapstructure:"headers"`
	// APIKeyEnv names the environment variable holding this source's
	// API token, kept out of the YAML itself.
	APIKeyEnv string `mapstructure:"api_key_env"`
	// Selectors drive catalog page scraping. Ignored for api sources.
	Selectors CatalogSelectors `mapstructure:"selectors"`
}

// CatalogSelectors defines the CSS selectors for catalog listing pages.
type CatalogSelectors struct {
	// ListPath is the listing path template. {axis}, {topic} and
	// {page} are substituted per query.
	ListPath string `mapstructure:"list_path"`
	Card     string `mapstructure:"card"`
	Name     string `mapstructure:"name"`
	Link     string `mapstructure:"link"`
	Tagline  string `mapstructure:"tagline"`
	Topics   string `mapstructure:"topics"`
	NextPage string `mapstructure:"next_page"`
}

// sourcesFile is the on-disk YAML shape.
type sourcesFile struct {
	Sources []map[string]any `yaml:"sources"`
}

// Load reads source definitions from path. A missing file yields the
// built-in defaults so a fresh checkout can discover immediately.
func Load(path string) ([]Source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Defaults(), nil
		}
		return nil, fmt.Errorf("read sources file %s: %w", path, err)
	}

	var file sourcesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse sources file %s: %w", path, err)
	}
	if len(file.Sources) == 0 {
		return nil, ErrNoSources
	}

	sources := make([]Source, 0, len(file.Sources))
	for i, raw := range file.Sources {
		src, err := decodeSource(raw)
		if err != nil {
			return nil, fmt.Errorf("source %d: %w", i, err)
		}
		applySourceDefaults(&src)
		if err := validateSource(&src); err != nil {
			return nil, fmt.Errorf("source %s: %w", src.ID, err)
		}
		sources = append(sources, src)
	}

	return sources, nil
}

// decodeSource converts one raw YAML mapping into a Source.
func decodeSource(raw map[string]any) (Source, error) {
	var src Source

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &src,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return Source{}, fmt.Errorf("create decoder: %w", err)
	}

	if err := decoder.Decode(raw); err != nil {
		return Source{}, fmt.Errorf("decode source: %w", err)
	}

	return src, nil
}

func applySourceDefaults(src *Source) {
	if src.Upstream == "" {
		src.Upstream = src.ID
	}
	if len(src.Axes) == 0 {
		src.Axes = []string{"trending"}
	}
}

func validateSource(src *Source) error {
	if src.ID == "" {
		return fmt.Errorf("%w: id", ErrMissingRequiredField)
	}
	if src.Name == "" {
		return fmt.Errorf("%w: name", ErrMissingRequiredField)
	}
	if src.URL == "" {
		return fmt.Errorf("%w: url", ErrMissingRequiredField)
	}

	parsed, err := url.Parse(src.URL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("invalid url %q", src.URL)
	}

	switch src.Kind {
	case KindAPI:
	case KindCatalog:
		if src.Selectors.Card == "" || src.Selectors.Name == "" {
			return fmt.Errorf("%w: selectors.card and selectors.name", ErrMissingRequiredField)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownKind, src.Kind)
	}

	return nil
}

// Defaults returns the built-in source set used when no sources file
// exists.
func Defaults() []Source {
	return []Source{
		{
			ID:        "producthunt",
			Name:      "Product Hunt",
			Kind:      KindAPI,
			URL:       "https://api.producthunt.com/v2/api/graphql",
			Upstream:  "producthunt",
			Axes:      []string{"trending", "popular", "topic"},
			APIKeyEnv: "PRODUCTHUNT_API_TOKEN",
		},
		{
			ID:       "saashub",
			Name:     "SaaSHub",
			Kind:     KindCatalog,
			URL:      "https://www.saashub.com",
			Upstream: "saashub",
			Axes:     []string{"trending", "topic"},
			Selectors: CatalogSelectors{
				ListPath: "/best/{topic}?page={page}",
				Card:     "div.service-card",
				Name:     "h3.service-card__name",
				Link:     "a.service-card__link",
				Tagline:  "div.service-card__tagline",
				Topics:   "a.tag",
				NextPage: "a.pagination__next",
			},
		},
	}
}
