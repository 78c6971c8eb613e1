// Package pipeline orchestrates the two phases of a collection run.
// Build discovers candidates and records them as pending targets;
// extract leases pending targets and drives them through the extraction
// processor. The phases are independently invocable and share only the
// target store and the rate limiter.
package pipeline

import (
	"context"
	"time"

	"github.com/jonesrussell/gointel/internal/domain"
	"github.com/jonesrussell/gointel/internal/logger"
	"github.com/jonesrussell/gointel/internal/store"
)

// TargetStore is the slice of the ledger the orchestrator drives.
type TargetStore interface {
	Upsert(t *domain.Target) (bool, error)
	LeasePending(limit int) ([]*domain.Target, error)
	MarkCompleted(id string) error
	MarkFailed(id, reason string) error
	SetResolvedURL(id, url string) error
	Release(id string) error
	ReclaimStale(olderThan time.Duration) (int, error)
	Stats() store.Stats
}

// ResultSink receives one record per successful extraction.
type ResultSink interface {
	Write(rec *domain.SinkRecord) error
}

// Guarder gates upstream calls through the shared rate limiter.
type Guarder interface {
	Guard(ctx context.Context, upstream string, call func() error) error
}

// Processor turns one leased target into an extraction result.
type Processor interface {
	Process(ctx context.Context, t *domain.Target) (*domain.ExtractionResult, error)
}

// Config holds orchestrator settings shared by both phases.
type Config struct {
	// Workers bounds concurrency in both phases: discovery sweeps in
	// flight during build, and in-flight extractions. It also sets the
	// extract lease batch size so a halt never strands more than one
	// batch in progress.
	Workers int
	// HaltThreshold is the number of consecutive structuring failures
	// that stops the extract phase.
	HaltThreshold int
	// StaleLeaseAfter reverts in_progress targets older than this before
	// extraction begins. Zero disables reclaim.
	StaleLeaseAfter time.Duration

	// Discovery sweep bounds.
	Axes     []string
	Topics   []string
	PerPage  int
	MaxPages int
	// MinScore is the inclusion threshold for scored candidates.
	// Unscored candidates always pass.
	MinScore int
}

// Pipeline drives both phases against shared collaborators.
type Pipeline struct {
	store     TargetStore
	sink      ResultSink
	limiter   Guarder
	processor Processor
	cfg       Config
	log       logger.Interface
	nowFn     func() time.Time
}

// New builds an orchestrator. The processor may be nil when only the
// build phase will run.
func New(
	targets TargetStore,
	sink ResultSink,
	limiter Guarder,
	processor Processor,
	cfg Config,
	log logger.Interface,
) *Pipeline {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.HaltThreshold < 1 {
		cfg.HaltThreshold = 1
	}
	if log == nil {
		log = logger.NewNoOp()
	}

	return &Pipeline{
		store:     targets,
		sink:      sink,
		limiter:   limiter,
		processor: processor,
		cfg:       cfg,
		log:       log.WithComponent("pipeline"),
		nowFn:     time.Now,
	}
}
