package discovery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/jonesrussell/gointel/internal/domain"
	"github.com/jonesrussell/gointel/internal/logger"
	"github.com/jonesrussell/gointel/internal/sources"
)

// maxAPIResponseBytes bounds a GraphQL response body.
const maxAPIResponseBytes = 4 << 20 // 4 MB

// postsQuery walks Product Hunt's posts connection. Ordering by
// RANKING gives the trending axis, VOTES the popular one; the topic
// axis passes a topic slug alongside VOTES ordering.
const postsQuery = `query Posts($order: PostsOrder!, $topic: String, $first: Int!, $after: String) {
  posts(order: $order, topic: $topic, first: $first, after: $after) {
    pageInfo { endCursor hasNextPage }
    edges {
      node {
        slug
        name
        tagline
        website
        votesCount
        topics(first: 5) { edges { node { slug } } }
      }
    }
  }
}`

// ProductHunt discovers candidates through the Product Hunt GraphQL
// API.
type ProductHunt struct {
	name     string
	upstream string
	endpoint string
	token    string
	client   *http.Client
	log      logger.Interface
}

// NewProductHunt builds the API adapter for a source definition. The
// API token comes from the environment variable the source names, so
// credentials never live in the sources file.
func NewProductHunt(src sources.Source, opts Options) (*ProductHunt, error) {
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}

	token := ""
	if src.APIKeyEnv != "" {
		token = os.Getenv(src.APIKeyEnv)
	}

	return &ProductHunt{
		name:     src.ID,
		upstream: src.Upstream,
		endpoint: src.URL,
		token:    token,
		client:   client,
		log:      opts.Log.WithComponent("discovery." + src.ID),
	}, nil
}

// Name identifies the adapter.
func (p *ProductHunt) Name() string { return p.name }

// Upstream is the rate limiter key.
func (p *ProductHunt) Upstream() string { return p.upstream }

// graphqlRequest is the POST body shape.
type graphqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

// graphqlResponse is the subset of the posts response we read.
type graphqlResponse struct {
	Data struct {
		Posts struct {
			PageInfo struct {
				EndCursor   string `json:"endCursor"`
				HasNextPage bool   `json:"hasNextPage"`
			} `json:"pageInfo"`
			Edges []struct {
				Node struct {
					Slug       string `json:"slug"`
					Name       string `json:"name"`
					Tagline    string `json:"tagline"`
					Website    string `json:"website"`
					VotesCount int    `json:"votesCount"`
					Topics     struct {
						Edges []struct {
							Node struct {
								Slug string `json:"slug"`
							} `json:"node"`
						} `json:"edges"`
					} `json:"topics"`
				} `json:"node"`
			} `json:"edges"`
		} `json:"posts"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// FetchPage requests one page of posts for the query's axis.
func (p *ProductHunt) FetchPage(ctx context.Context, q Query) (*Page, error) {
	variables := map[string]any{
		"order": orderForAxis(q.Axis),
		"first": q.PerPage,
	}
	if q.Topic != "" {
		variables["topic"] = q.Topic
	}
	if q.Cursor != "" {
		variables["after"] = q.Cursor
	}

	body, err := json.Marshal(graphqlRequest{Query: postsQuery, Variables: variables})
	if err != nil {
		return nil, fmt.Errorf("marshal posts query: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create posts request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if p.token != "" {
		req.Header.Set("Authorization", "Bearer "+p.token)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, domain.Transient(fmt.Errorf("posts request: %w", err))
	}
	defer resp.Body.Close()

	if clsErr := domain.ClassifyStatus(
		p.upstream,
		resp.StatusCode,
		domain.ParseRetryAfter(resp.Header.Get("Retry-After")),
	); clsErr != nil {
		return nil, clsErr
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxAPIResponseBytes))
	if err != nil {
		return nil, domain.Transient(fmt.Errorf("read posts response: %w", err))
	}

	var parsed graphqlResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, domain.Transient(fmt.Errorf("decode posts response: %w", err))
	}

	if err := p.graphqlError(parsed); err != nil {
		return nil, err
	}

	page := &Page{
		Candidates: make([]Candidate, 0, len(parsed.Data.Posts.Edges)),
		NextCursor: parsed.Data.Posts.PageInfo.EndCursor,
		HasMore:    parsed.Data.Posts.PageInfo.HasNextPage,
	}

	for _, edge := range parsed.Data.Posts.Edges {
		node := edge.Node
		if node.Slug == "" {
			continue
		}

		topics := make([]string, 0, len(node.Topics.Edges))
		for _, t := range node.Topics.Edges {
			topics = append(topics, t.Node.Slug)
		}

		page.Candidates = append(page.Candidates, Candidate{
			Slug:      node.Slug,
			Name:      node.Name,
			SourceURL: node.Website,
			Tagline:   node.Tagline,
			Score:     node.VotesCount,
			Topics:    topics,
			Metadata: map[string]any{
				"votes": node.VotesCount,
			},
		})
	}

	p.log.Debug("fetched posts page",
		"axis", q.Axis,
		"topic", q.Topic,
		"candidates", len(page.Candidates),
		"has_more", page.HasMore,
	)

	return page, nil
}

// graphqlError maps GraphQL-level errors onto the taxonomy. The API
// reports query complexity exhaustion inside a 200 response, which is
// still a rate limit for our purposes.
func (p *ProductHunt) graphqlError(parsed graphqlResponse) error {
	if len(parsed.Errors) == 0 {
		return nil
	}

	msg := parsed.Errors[0].Message
	if strings.Contains(strings.ToLower(msg), "rate limit") {
		return &domain.RateLimitError{
			Upstream: p.upstream,
			Err:      fmt.Errorf("graphql: %s", msg),
		}
	}

	return domain.Permanent(fmt.Errorf("graphql: %s", msg))
}

// orderForAxis maps a listing axis onto the API's PostsOrder enum.
func orderForAxis(axis string) string {
	if axis == AxisTrending {
		return "RANKING"
	}
	return "VOTES"
}

var _ Adapter = (*ProductHunt)(nil)
