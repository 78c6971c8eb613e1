package extraction

import (
	"context"
	"time"

	"github.com/jonesrussell/gointel/internal/domain"
	"github.com/jonesrussell/gointel/internal/logger"
)

// Extractor drives one target through resolve, fetch and structure.
// Every upstream call goes through the guard so a pause declared by one
// worker shields the rest.
type Extractor struct {
	resolver   HomepageResolver
	fetcher    PageFetcher
	structurer Structurer
	limiter    Guarder
	log        logger.Interface
	nowFn      func() time.Time
}

// NewExtractor wires an extractor from its stages. Tests substitute
// fakes for any of them.
func NewExtractor(
	resolver HomepageResolver,
	fetcher PageFetcher,
	structurer Structurer,
	limiter Guarder,
	log logger.Interface,
) *Extractor {
	if log == nil {
		log = logger.NewNoOp()
	}

	return &Extractor{
		resolver:   resolver,
		fetcher:    fetcher,
		structurer: structurer,
		limiter:    limiter,
		log:        log,
		nowFn:      time.Now,
	}
}

// Process runs the stages in order. A target that already carries a
// resolved homepage skips resolution, so retries don't repeat work that
// succeeded on an earlier attempt. The returned result is non-nil in
// both outcomes; on failure it describes the error and preserves any
// resolution progress while the returned error carries the stage tag.
func (e *Extractor) Process(ctx context.Context, t *domain.Target) (*domain.ExtractionResult, error) {
	homepage := t.ResolvedHomepageURL

	if homepage == "" {
		err := e.limiter.Guard(ctx, UpstreamWeb, func() error {
			resolved, rerr := e.resolver.Resolve(ctx, t)
			if rerr != nil {
				return rerr
			}
			homepage = resolved
			return nil
		})
		if err != nil {
			return e.failed(t, homepage, domain.StageResolve, err)
		}
	}

	var page *PageContent
	err := e.limiter.Guard(ctx, UpstreamWeb, func() error {
		fetched, ferr := e.fetcher.Fetch(ctx, homepage)
		if ferr != nil {
			return ferr
		}
		page = fetched
		return nil
	})
	if err != nil {
		return e.failed(t, homepage, domain.StageFetch, err)
	}

	var data map[string]any
	err = e.limiter.Guard(ctx, UpstreamLLM, func() error {
		structured, serr := e.structurer.Structure(ctx, t, page)
		if serr != nil {
			return serr
		}
		data = structured
		return nil
	})
	if err != nil {
		return e.failed(t, homepage, domain.StageStructure, err)
	}

	e.log.Info("target extracted", "target", t.ID, "homepage", homepage)

	return &domain.ExtractionResult{
		TargetID:    t.ID,
		Success:     true,
		Data:        data,
		ResolvedURL: homepage,
		ExtractedAt: e.nowFn().UTC(),
	}, nil
}

func (e *Extractor) failed(t *domain.Target, homepage, stage string, err error) (*domain.ExtractionResult, error) {
	staged := &domain.ExtractError{Stage: stage, Err: err}

	e.log.Warn("target extraction failed",
		"target", t.ID,
		"stage", stage,
		"error", err.Error())

	return &domain.ExtractionResult{
		TargetID:    t.ID,
		Success:     false,
		Error:       staged.Error(),
		ResolvedURL: homepage,
		ExtractedAt: e.nowFn().UTC(),
	}, staged
}
