// Package sink appends successful extraction results to a JSONL file.
// Extraction is resumable, so the sink only ever appends; consumers
// deduplicate by target id if a target is reset and re-extracted.
package sink

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/jonesrussell/gointel/internal/domain"
	"github.com/jonesrussell/gointel/internal/logger"
)

// Writer appends one record per line. Safe for concurrent use.
type Writer struct {
	mu   sync.Mutex
	path string
	file *os.File
	log  logger.Interface
}

// Open opens the results file at path for appending, creating it and
// its parent directories when absent.
func Open(path string, log logger.Interface) (*Writer, error) {
	if log == nil {
		log = logger.NewNoOp()
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create results directory: %w", err)
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open results %s: %w", path, err)
	}

	return &Writer{
		path: path,
		file: file,
		log:  log.WithComponent("sink"),
	}, nil
}

// Write appends the record and syncs so a crash cannot lose an
// acknowledged result.
func (w *Writer) Write(rec *domain.SinkRecord) error {
	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal result %s: %w", rec.TargetID, err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if _, err := w.file.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("append result %s: %w", rec.TargetID, err)
	}
	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("sync results: %w", err)
	}

	return nil
}

// Close closes the underlying file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.file.Close()
}

// Read loads every record from the results file at path. Used by the
// export command to replay results into a search index.
func Read(path string) ([]*domain.SinkRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read results %s: %w", path, err)
	}

	var records []*domain.SinkRecord

	dec := json.NewDecoder(bytes.NewReader(data))
	for dec.More() {
		var rec domain.SinkRecord
		if err := dec.Decode(&rec); err != nil {
			return nil, fmt.Errorf("decode results %s: %w", path, err)
		}
		records = append(records, &rec)
	}

	return records, nil
}
