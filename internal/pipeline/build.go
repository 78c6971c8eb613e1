package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jonesrussell/gointel/internal/discovery"
	"github.com/jonesrussell/gointel/internal/domain"
	"github.com/jonesrussell/gointel/internal/worker"
)

// BuildStats summarizes one build phase.
type BuildStats struct {
	Sources        int `json:"sources"`
	Pages          int `json:"pages"`
	Candidates     int `json:"candidates"`
	BelowThreshold int `json:"below_threshold"`
	New            int `json:"new"`
	Updated        int `json:"updated"`
	PageFailures   int `json:"page_failures"`
}

// add folds the counts of one sweep into the summary.
func (s *BuildStats) add(o *BuildStats) {
	s.Pages += o.Pages
	s.Candidates += o.Candidates
	s.BelowThreshold += o.BelowThreshold
	s.New += o.New
	s.Updated += o.Updated
	s.PageFailures += o.PageFailures
}

// maxPageAttempts bounds fetches of a single listing page. Rate-limit
// and transient failures retry the same cursor after the limiter's
// pause; the sweep gives up on the page once the attempts are spent.
const maxPageAttempts = 3

// sweepSpec is one adapter/axis/topic combination to page through.
type sweepSpec struct {
	adapter discovery.Adapter
	axis    string
	topic   string
}

func (s sweepSpec) name() string {
	if s.topic == "" {
		return s.adapter.Name() + "/" + s.axis
	}
	return s.adapter.Name() + "/" + s.axis + "/" + s.topic
}

// Build sweeps every adapter across the configured axes, running the
// sweeps through a bounded task pool, and records each accepted
// candidate as a pending target. Re-running build is idempotent: known
// targets are merged without regressing status. Discovery failures
// truncate the affected sweep but never fail the phase; the summary
// carries the failure count.
func (p *Pipeline) Build(ctx context.Context, adapters []discovery.Adapter) (*BuildStats, error) {
	p.log.Info("build phase starting",
		"sources", len(adapters),
		"axes", p.cfg.Axes,
		"workers", p.cfg.Workers,
		"min_score", p.cfg.MinScore)

	poolCfg := worker.DefaultConfig()
	poolCfg.PoolSize = p.cfg.Workers

	pool, err := worker.NewPool(poolCfg, p.log)
	if err != nil {
		return &BuildStats{Sources: len(adapters)}, fmt.Errorf("build pool: %w", err)
	}
	if err := pool.Start(); err != nil {
		return &BuildStats{Sources: len(adapters)}, err
	}

	var (
		mu    sync.Mutex
		stats = BuildStats{Sources: len(adapters)}
	)
	snapshot := func() *BuildStats {
		mu.Lock()
		defer mu.Unlock()

		out := stats
		return &out
	}

	for _, spec := range p.planSweeps(adapters) {
		if ctx.Err() != nil {
			break
		}

		task := worker.Task{
			Name: spec.name(),
			Run: func(taskCtx context.Context) error {
				var local BuildStats
				serr := p.sweep(taskCtx, spec, &local)

				mu.Lock()
				stats.add(&local)
				mu.Unlock()

				return serr
			},
		}

		if err := pool.Submit(ctx, task); err != nil && ctx.Err() == nil {
			pool.Wait()
			_ = pool.Stop(context.Background())

			out := snapshot()
			p.logBuildSummary(out, "aborted")
			return out, fmt.Errorf("submit sweep %s: %w", spec.name(), err)
		}
	}

	pool.Wait()
	_ = pool.Stop(context.Background())

	out := snapshot()

	if ctx.Err() != nil {
		p.logBuildSummary(out, "cancelled")
		return out, ctx.Err()
	}

	p.logBuildSummary(out, "completed")

	return out, nil
}

// planSweeps expands the adapter/axis grid into one task per
// combination. Only the topic axis fans out across topics.
func (p *Pipeline) planSweeps(adapters []discovery.Adapter) []sweepSpec {
	var specs []sweepSpec
	for _, adapter := range adapters {
		for _, axis := range p.cfg.Axes {
			for _, topic := range p.sweepTopics(axis) {
				specs = append(specs, sweepSpec{adapter: adapter, axis: axis, topic: topic})
			}
		}
	}
	return specs
}

// sweepTopics returns the topic list for one axis. Only the topic axis
// fans out; the others run a single untopiced sweep.
func (p *Pipeline) sweepTopics(axis string) []string {
	if axis == discovery.AxisTopic {
		return p.cfg.Topics
	}
	return []string{""}
}

// sweep pages through one adapter/axis/topic combination until the
// adapter reports no further pages, the page cap is reached, or a page
// fails for good. Rate-limited and transient pages are retried on the
// same cursor; a page that stays broken truncates the sweep and
// candidates from earlier pages are kept.
func (p *Pipeline) sweep(ctx context.Context, spec sweepSpec, stats *BuildStats) error {
	cursor := ""

	for pageNum := 0; pageNum < p.cfg.MaxPages; pageNum++ {
		page, err := p.fetchPage(ctx, spec, cursor, pageNum)
		if err != nil {
			if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
				stats.PageFailures++
			}
			return fmt.Errorf("page %d: %w", pageNum, err)
		}

		stats.Pages++
		p.ingest(spec.adapter.Name(), spec.axis, spec.topic, page, stats)

		if !page.HasMore || page.NextCursor == "" {
			return nil
		}
		cursor = page.NextCursor
	}

	return nil
}

// fetchPage fetches one listing page through the limiter, retrying the
// same cursor after rate-limit and transient failures. The limiter's
// pause window supplies the delay between attempts, so a 429 with a
// retry-after hint waits exactly that long before the next try.
// Permanent errors and exhausted attempts abort the sweep.
func (p *Pipeline) fetchPage(
	ctx context.Context, spec sweepSpec, cursor string, pageNum int,
) (*discovery.Page, error) {
	var lastErr error

	for attempt := 1; attempt <= maxPageAttempts; attempt++ {
		var page *discovery.Page

		err := p.limiter.Guard(ctx, spec.adapter.Upstream(), func() error {
			fetched, ferr := spec.adapter.FetchPage(ctx, discovery.Query{
				Axis:    spec.axis,
				Topic:   spec.topic,
				Cursor:  cursor,
				PerPage: p.cfg.PerPage,
			})
			if ferr != nil {
				return ferr
			}
			page = fetched
			return nil
		})
		if err == nil {
			return page, nil
		}
		if !domain.IsRateLimited(err) && !errors.Is(err, domain.ErrTransient) {
			return nil, err
		}

		lastErr = err
		p.log.Warn("page fetch failed, retrying",
			"sweep", spec.name(),
			"page", pageNum,
			"attempt", attempt,
			"error", err.Error())
	}

	return nil, fmt.Errorf("retries exhausted: %w", lastErr)
}

// ingest applies the inclusion threshold and upserts survivors.
func (p *Pipeline) ingest(sourceID, axis, topic string, page *discovery.Page, stats *BuildStats) {
	for _, c := range page.Candidates {
		stats.Candidates++

		if c.Score > 0 && c.Score < p.cfg.MinScore {
			stats.BelowThreshold++
			continue
		}

		inserted, err := p.store.Upsert(targetFromCandidate(sourceID, axis, topic, c))
		if err != nil {
			p.log.Warn("upsert failed", "source", sourceID, "slug", c.Slug, "error", err.Error())
			continue
		}

		if inserted {
			stats.New++
		} else {
			stats.Updated++
		}
	}
}

// targetFromCandidate maps a discovered candidate onto the ledger
// shape. The discovery bag rides along in metadata, uninterpreted
// beyond the slug used later for homepage validation.
func targetFromCandidate(sourceID, axis, topic string, c discovery.Candidate) *domain.Target {
	md := make(map[string]any, len(c.Metadata)+6)
	for k, v := range c.Metadata {
		md[k] = v
	}

	md["source"] = sourceID
	md["slug"] = c.Slug
	md["axis"] = axis
	if topic != "" {
		md["topic"] = topic
	}
	if c.Tagline != "" {
		md["tagline"] = c.Tagline
	}
	if len(c.Topics) > 0 {
		md["topics"] = c.Topics
	}
	if c.Score > 0 {
		md["score"] = c.Score
	}

	return &domain.Target{
		ID:        sourceID + ":" + c.Slug,
		Name:      c.Name,
		SourceURL: c.SourceURL,
		Metadata:  md,
	}
}

func (p *Pipeline) logBuildSummary(stats *BuildStats, outcome string) {
	p.log.Info("build phase "+outcome,
		"pages", stats.Pages,
		"candidates", stats.Candidates,
		"below_threshold", stats.BelowThreshold,
		"new", stats.New,
		"updated", stats.Updated,
		"page_failures", stats.PageFailures)
}
