package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/jonesrussell/gointel/internal/domain"
)

// ExtractStats summarizes one extract phase.
type ExtractStats struct {
	RunID      string `json:"run_id"`
	Reclaimed  int    `json:"reclaimed"`
	Leased     int    `json:"leased"`
	Completed  int    `json:"completed"`
	Failed     int    `json:"failed"`
	Reverted   int    `json:"reverted"`
	Stranded   int    `json:"stranded"`
	Remaining  int    `json:"remaining"`
	Halted     bool   `json:"halted"`
	HaltReason string `json:"halt_reason,omitempty"`
}

// outcomeKind classifies how one leased target left the batch.
type outcomeKind int

const (
	outcomeCompleted outcomeKind = iota
	outcomeFailed
	// outcomeReverted: lease returned to pending after cancellation.
	outcomeReverted
	// outcomeStranded: left in_progress by a halt, per the halt policy.
	outcomeStranded
)

// Extract leases pending targets in worker-sized batches and processes
// them until the ledger runs dry, max targets have been leased, the
// halt policy trips, or ctx is cancelled. Cancellation reverts leases
// that never started; a halt strands already-leased targets in_progress
// for the operator to reclaim or reset.
func (p *Pipeline) Extract(ctx context.Context, max int) (*ExtractStats, error) {
	stats := &ExtractStats{RunID: uuid.NewString()}

	if p.cfg.StaleLeaseAfter > 0 {
		reclaimed, err := p.store.ReclaimStale(p.cfg.StaleLeaseAfter)
		if err != nil {
			return stats, fmt.Errorf("reclaim stale leases: %w", err)
		}
		stats.Reclaimed = reclaimed
		if reclaimed > 0 {
			p.log.Info("stale leases reclaimed", "count", reclaimed)
		}
	}

	p.log.Info("extract phase starting",
		"run_id", stats.RunID,
		"workers", p.cfg.Workers,
		"halt_threshold", p.cfg.HaltThreshold,
		"max", max)

	halt := newHaltTracker(p.cfg.HaltThreshold)

	for ctx.Err() == nil && !halt.halted() {
		batchSize := p.cfg.Workers
		if max > 0 {
			remaining := max - stats.Leased
			if remaining <= 0 {
				break
			}
			if remaining < batchSize {
				batchSize = remaining
			}
		}

		batch, err := p.store.LeasePending(batchSize)
		if err != nil {
			return stats, fmt.Errorf("lease pending: %w", err)
		}
		if len(batch) == 0 {
			break
		}
		stats.Leased += len(batch)

		p.processBatch(ctx, stats, batch, halt)
	}

	if halt.halted() {
		stats.Halted = true
		stats.HaltReason = halt.reason()
	}

	ledger := p.store.Stats()
	stats.Remaining = ledger.Pending + ledger.InProgress

	outcome := "completed"
	switch {
	case stats.Halted:
		outcome = "halted"
	case ctx.Err() != nil:
		outcome = "cancelled"
	}

	p.log.Info("extract phase "+outcome,
		"run_id", stats.RunID,
		"completed", stats.Completed,
		"failed", stats.Failed,
		"remaining", stats.Remaining,
		"halt_reason", stats.HaltReason)

	return stats, ctx.Err()
}

// processBatch fans one batch out to the worker pool and folds the
// outcomes into stats. Exactly one outcome is produced per leased
// target, whether it was processed, reverted, or stranded.
func (p *Pipeline) processBatch(ctx context.Context, stats *ExtractStats, batch []*domain.Target, halt *haltTracker) {
	jobs := make(chan *domain.Target)
	results := make(chan outcomeKind, len(batch))

	workers := p.cfg.Workers
	if workers > len(batch) {
		workers = len(batch)
	}

	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for t := range jobs {
				results <- p.processOne(ctx, stats.RunID, t, halt)
			}
		}()
	}

	go func() {
		defer close(jobs)
		for i, t := range batch {
			if halt.halted() {
				for range batch[i:] {
					results <- outcomeStranded
				}
				return
			}
			select {
			case <-ctx.Done():
				for _, rest := range batch[i:] {
					p.revert(rest)
					results <- outcomeReverted
				}
				return
			case jobs <- t:
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	for kind := range results {
		switch kind {
		case outcomeCompleted:
			stats.Completed++
		case outcomeFailed:
			stats.Failed++
		case outcomeReverted:
			stats.Reverted++
		case outcomeStranded:
			stats.Stranded++
		}
	}
}

// processOne drives a single leased target through the processor and
// applies the matching ledger transition.
func (p *Pipeline) processOne(ctx context.Context, runID string, t *domain.Target, halt *haltTracker) outcomeKind {
	if halt.halted() {
		return outcomeStranded
	}

	res, err := p.processor.Process(ctx, t)

	if err != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		p.revert(t)
		return outcomeReverted
	}

	if res != nil && res.ResolvedURL != "" && res.ResolvedURL != t.ResolvedHomepageURL {
		if serr := p.store.SetResolvedURL(t.ID, res.ResolvedURL); serr != nil {
			p.log.Error("record resolved homepage failed", "target", t.ID, "error", serr.Error())
		}
	}

	if err != nil {
		if merr := p.store.MarkFailed(t.ID, err.Error()); merr != nil {
			p.log.Error("mark failed rejected", "target", t.ID, "error", merr.Error())
		}
		if halt.observe(err) {
			p.log.Warn("halt threshold reached",
				"run_id", runID,
				"target", t.ID,
				"threshold", p.cfg.HaltThreshold)
		}
		return outcomeFailed
	}

	halt.observe(nil)

	if werr := p.sink.Write(domain.NewSinkRecord(res, t, runID)); werr != nil {
		// The record is lost, so fail the target to make a later run
		// reprocess it.
		if merr := p.store.MarkFailed(t.ID, "sink append: "+werr.Error()); merr != nil {
			p.log.Error("mark failed rejected", "target", t.ID, "error", merr.Error())
		}
		p.log.Error("sink append failed", "target", t.ID, "error", werr.Error())
		return outcomeFailed
	}

	if merr := p.store.MarkCompleted(t.ID); merr != nil {
		p.log.Error("mark completed rejected", "target", t.ID, "error", merr.Error())
	}

	return outcomeCompleted
}

// revert returns a lease to pending without recording an attempt.
func (p *Pipeline) revert(t *domain.Target) {
	if err := p.store.Release(t.ID); err != nil {
		p.log.Error("release lease failed", "target", t.ID, "error", err.Error())
	}
}
