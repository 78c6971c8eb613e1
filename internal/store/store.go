// Package store implements the durable target ledger. The ledger is a
// JSONL file with one complete target snapshot per line; mutations
// append a new snapshot and the latest line for an id wins on reload,
// so a restarted run sees exactly the state of the last completed
// mutation.
package store

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"time"

	"github.com/jonesrussell/gointel/internal/domain"
	"github.com/jonesrussell/gointel/internal/logger"
)

// maxLineBytes bounds a single ledger line during reload.
const maxLineBytes = 1 << 20 // 1 MB

// compactionFactor triggers a rewrite on Close once the file holds this
// many times more lines than live records.
const compactionFactor = 2

// Stats holds per-status target counts.
type Stats struct {
	Pending    int `json:"pending"`
	InProgress int `json:"in_progress"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
	Total      int `json:"total"`
}

// Store is the target ledger. All operations are safe for concurrent
// use; LeasePending is atomic with respect to concurrent leasers.
type Store struct {
	mu      sync.Mutex
	path    string
	log     logger.Interface
	file    *os.File
	targets map[string]*domain.Target
	order   []string // first-seen id order
	lines   int      // snapshots currently in the file
	nowFn   func() time.Time
}

// Open loads the ledger at path, creating it (and parent directories)
// when absent. Unparsable lines are skipped with a warning; at most the
// in-flight mutation of a killed process is lost.
func Open(path string, log logger.Interface) (*Store, error) {
	if log == nil {
		log = logger.NewNoOp()
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create ledger directory: %w", err)
	}

	s := &Store{
		path:    path,
		log:     log.WithComponent("store"),
		targets: make(map[string]*domain.Target),
		nowFn:   time.Now,
	}

	if err := s.load(); err != nil {
		return nil, err
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open ledger %s: %w", path, err)
	}
	s.file = file

	return s, nil
}

// load replays the ledger file into memory, last line per id winning.
func (s *Store) load() error {
	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read ledger %s: %w", s.path, err)
	}
	defer f.Close()

	var skipped int

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		s.lines++

		var t domain.Target
		if err := json.Unmarshal(line, &t); err != nil || t.ID == "" {
			skipped++
			continue
		}

		if _, seen := s.targets[t.ID]; !seen {
			s.order = append(s.order, t.ID)
		}
		s.targets[t.ID] = &t
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scan ledger %s: %w", s.path, err)
	}

	if skipped > 0 {
		s.log.Warn("skipped unparsable ledger lines",
			"path", s.path,
			"skipped", skipped,
		)
	}

	return nil
}

// Upsert inserts the target as pending when its id is unseen. For a
// known id it merges name, source URL and metadata into the existing
// record without touching status, attempts or discovery time, so
// re-running discovery never regresses a completed target. It reports
// whether a new record was created.
func (s *Store) Upsert(t *domain.Target) (bool, error) {
	if t == nil || t.ID == "" {
		return false, ErrMissingID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.targets[t.ID]
	if !ok {
		fresh := t.Clone()
		fresh.Status = domain.StatusPending
		fresh.AttemptCount = 0
		fresh.FailureReason = ""
		fresh.LastAttemptedAt = nil
		fresh.CompletedAt = nil
		if fresh.DiscoveredAt.IsZero() {
			fresh.DiscoveredAt = s.nowFn()
		}

		s.targets[fresh.ID] = fresh
		s.order = append(s.order, fresh.ID)

		return true, s.persist(fresh)
	}

	changed := false
	if t.Name != "" && t.Name != existing.Name {
		existing.Name = t.Name
		changed = true
	}
	if t.SourceURL != "" && t.SourceURL != existing.SourceURL {
		existing.SourceURL = t.SourceURL
		changed = true
	}
	if len(t.Metadata) > 0 && !reflect.DeepEqual(t.Metadata, existing.Metadata) {
		if existing.Metadata == nil {
			existing.Metadata = make(map[string]any, len(t.Metadata))
		}
		for k, v := range t.Metadata {
			existing.Metadata[k] = v
		}
		changed = true
	}

	if !changed {
		return false, nil
	}

	return false, s.persist(existing)
}

// LeasePending atomically transitions up to limit pending targets to
// in_progress and returns copies of them. No two concurrent callers can
// lease the same target.
func (s *Store) LeasePending(limit int) ([]*domain.Target, error) {
	if limit <= 0 {
		return nil, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	leased := make([]*domain.Target, 0, limit)
	now := s.nowFn()

	for _, id := range s.order {
		if len(leased) == limit {
			break
		}

		t := s.targets[id]
		if t.Status != domain.StatusPending {
			continue
		}

		t.Status = domain.StatusInProgress
		at := now
		t.LastAttemptedAt = &at

		if err := s.persist(t); err != nil {
			return leased, err
		}
		leased = append(leased, t.Clone())
	}

	return leased, nil
}

// MarkCompleted records a successful extraction attempt. Completing an
// already-completed target is a no-op.
func (s *Store) MarkCompleted(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.targets[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	switch t.Status {
	case domain.StatusCompleted:
		return nil
	case domain.StatusFailed:
		return fmt.Errorf("%w: %s is failed, reset it first", ErrInvalidTransition, id)
	}

	now := s.nowFn()
	t.Status = domain.StatusCompleted
	t.AttemptCount++
	t.FailureReason = ""
	t.LastAttemptedAt = &now
	t.CompletedAt = &now

	return s.persist(t)
}

// MarkFailed records a failed extraction attempt with its reason.
// Completed targets cannot fail.
func (s *Store) MarkFailed(id, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.targets[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	if t.Status == domain.StatusCompleted {
		return fmt.Errorf("%w: %s is completed", ErrInvalidTransition, id)
	}

	now := s.nowFn()
	t.Status = domain.StatusFailed
	t.AttemptCount++
	t.FailureReason = reason
	t.LastAttemptedAt = &now

	return s.persist(t)
}

// SetResolvedURL records the target's resolved homepage without
// touching its status, so a failed attempt still keeps resolution
// progress for the next one.
func (s *Store) SetResolvedURL(id, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.targets[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	if t.ResolvedHomepageURL == url {
		return nil
	}
	t.ResolvedHomepageURL = url

	return s.persist(t)
}

// Release returns a leased target to pending without counting an
// attempt. It is the graceful-cancellation path for leases that were
// never processed.
func (s *Store) Release(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.targets[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	if t.Status != domain.StatusInProgress {
		return fmt.Errorf("%w: %s is %s, not in_progress", ErrInvalidTransition, id, t.Status)
	}

	t.Status = domain.StatusPending

	return s.persist(t)
}

// ReclaimStale returns in_progress targets whose lease is older than
// olderThan to pending, preserving attempts. A non-positive duration
// disables reclaiming. It reports how many targets were reclaimed.
func (s *Store) ReclaimStale(olderThan time.Duration) (int, error) {
	if olderThan <= 0 {
		return 0, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.nowFn().Add(-olderThan)
	reclaimed := 0

	for _, id := range s.order {
		t := s.targets[id]
		if t.Status != domain.StatusInProgress {
			continue
		}
		if t.LastAttemptedAt == nil || t.LastAttemptedAt.After(cutoff) {
			continue
		}

		t.Status = domain.StatusPending
		if err := s.persist(t); err != nil {
			return reclaimed, err
		}
		reclaimed++
	}

	return reclaimed, nil
}

// Reset moves all failed targets back to pending when failedOnly is
// true, preserving attempt counts. Otherwise it clears the entire
// ledger. It reports how many targets were affected.
func (s *Store) Reset(failedOnly bool) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if failedOnly {
		reset := 0
		for _, id := range s.order {
			t := s.targets[id]
			if t.Status != domain.StatusFailed {
				continue
			}

			t.Status = domain.StatusPending
			t.FailureReason = ""
			if err := s.persist(t); err != nil {
				return reset, err
			}
			reset++
		}
		return reset, nil
	}

	removed := len(s.targets)

	if err := s.file.Close(); err != nil {
		return 0, fmt.Errorf("close ledger for reset: %w", err)
	}
	if err := writeAtomic(s.path, nil); err != nil {
		return 0, err
	}

	file, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return 0, fmt.Errorf("reopen ledger: %w", err)
	}

	s.file = file
	s.targets = make(map[string]*domain.Target)
	s.order = nil
	s.lines = 0

	return removed, nil
}

// Stats returns per-status counts for operator visibility.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	var st Stats
	for _, t := range s.targets {
		switch t.Status {
		case domain.StatusPending:
			st.Pending++
		case domain.StatusInProgress:
			st.InProgress++
		case domain.StatusCompleted:
			st.Completed++
		case domain.StatusFailed:
			st.Failed++
		}
	}
	st.Total = len(s.targets)

	return st
}

// List returns copies of targets in ledger order, optionally filtered
// by status. A non-positive limit returns all matches.
func (s *Store) List(status string, limit int) []*domain.Target {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*domain.Target, 0, len(s.order))
	for _, id := range s.order {
		t := s.targets[id]
		if status != "" && t.Status != status {
			continue
		}
		out = append(out, t.Clone())
		if limit > 0 && len(out) == limit {
			break
		}
	}

	return out
}

// Get returns a copy of the target with the given id.
func (s *Store) Get(id string) (*domain.Target, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.targets[id]
	if !ok {
		return nil, false
	}

	return t.Clone(), true
}

// Close compacts the ledger when appends have outgrown the live record
// count, then closes the file handle.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.lines > compactionFactor*len(s.targets) && len(s.targets) > 0 {
		if err := s.compact(); err != nil {
			s.log.Error("ledger compaction failed", "error", err)
		}
	}

	return s.file.Close()
}

// compact rewrites the ledger with one snapshot per live target.
// Callers hold mu.
func (s *Store) compact() error {
	var buf []byte
	for _, id := range s.order {
		line, err := json.Marshal(s.targets[id])
		if err != nil {
			return fmt.Errorf("marshal target %s: %w", id, err)
		}
		buf = append(buf, line...)
		buf = append(buf, '\n')
	}

	if err := s.file.Close(); err != nil {
		return fmt.Errorf("close ledger for compaction: %w", err)
	}
	if err := writeAtomic(s.path, buf); err != nil {
		return err
	}

	file, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("reopen ledger: %w", err)
	}

	s.file = file
	s.lines = len(s.targets)
	s.log.Debug("ledger compacted", "records", len(s.targets))

	return nil
}

// persist appends the target's snapshot to the ledger and syncs.
// Callers hold mu.
func (s *Store) persist(t *domain.Target) error {
	line, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshal target %s: %w", t.ID, err)
	}

	if _, err := s.file.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("append target %s: %w", t.ID, err)
	}
	if err := s.file.Sync(); err != nil {
		return fmt.Errorf("sync ledger: %w", err)
	}
	s.lines++

	return nil
}

// writeAtomic replaces the file at path via a temp file and rename.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)

	tmp, err := os.CreateTemp(dir, ".ledger-*")
	if err != nil {
		return fmt.Errorf("create temp ledger: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temp ledger: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("sync temp ledger: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp ledger: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("replace ledger: %w", err)
	}

	return nil
}
