// Package exporter ships sink records into Elasticsearch for analysis.
// Export is idempotent: documents are keyed by target id, so re-running
// an export overwrites rather than duplicates.
package exporter

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	es "github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esutil"

	"github.com/jonesrussell/gointel/internal/domain"
	"github.com/jonesrussell/gointel/internal/logger"
)

// Default bulk flush bounds.
const (
	DefaultFlushBytes    = 5 << 20
	DefaultFlushInterval = 5 * time.Second
)

// Options holds the Elasticsearch connection and index settings.
type Options struct {
	Addresses          []string
	APIKey             string
	Username           string
	Password           string
	IndexName          string
	FlushBytes         int
	FlushInterval      time.Duration
	InsecureSkipVerify bool
	// Transport overrides the HTTP transport, mainly for tests.
	Transport http.RoundTripper
}

// Stats summarizes one export.
type Stats struct {
	Read    int   `json:"read"`
	Indexed int64 `json:"indexed"`
	Failed  int64 `json:"failed"`
}

// Exporter writes sink records to one Elasticsearch index.
type Exporter struct {
	client        *es.Client
	index         string
	flushBytes    int
	flushInterval time.Duration
	log           logger.Interface
}

// New connects to Elasticsearch and verifies the connection with a
// ping before returning.
func New(opts Options, log logger.Interface) (*Exporter, error) {
	if opts.IndexName == "" {
		return nil, errors.New("exporter: index name is required")
	}
	if log == nil {
		log = logger.NewNoOp()
	}
	log = log.WithComponent("exporter")

	transport := opts.Transport
	if transport == nil {
		t := &http.Transport{}
		if opts.InsecureSkipVerify {
			t.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // operator-configured for development clusters
		}
		transport = t
	}

	cfg := es.Config{
		Addresses: opts.Addresses,
		Transport: transport,
	}
	if opts.APIKey != "" {
		cfg.APIKey = opts.APIKey
	} else if opts.Username != "" && opts.Password != "" {
		cfg.Username = opts.Username
		cfg.Password = opts.Password
	}

	client, err := es.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("create elasticsearch client: %w", err)
	}

	res, err := client.Ping()
	if err != nil {
		return nil, fmt.Errorf("ping elasticsearch: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, fmt.Errorf("ping elasticsearch: %s", res.String())
	}

	flushBytes := opts.FlushBytes
	if flushBytes <= 0 {
		flushBytes = DefaultFlushBytes
	}
	flushInterval := opts.FlushInterval
	if flushInterval <= 0 {
		flushInterval = DefaultFlushInterval
	}

	log.Debug("connected to elasticsearch", "addresses", opts.Addresses, "index", opts.IndexName)

	return &Exporter{
		client:        client,
		index:         opts.IndexName,
		flushBytes:    flushBytes,
		flushInterval: flushInterval,
		log:           log,
	}, nil
}

// EnsureIndex creates the results index with its mapping when it does
// not exist yet.
func (e *Exporter) EnsureIndex(ctx context.Context) error {
	res, err := e.client.Indices.Exists(
		[]string{e.index},
		e.client.Indices.Exists.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("check index %s: %w", e.index, err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusOK {
		return nil
	}
	if res.StatusCode != http.StatusNotFound {
		return fmt.Errorf("check index %s: %s", e.index, res.String())
	}

	mapping, err := json.Marshal(resultsMapping())
	if err != nil {
		return fmt.Errorf("marshal index mapping: %w", err)
	}

	createRes, err := e.client.Indices.Create(
		e.index,
		e.client.Indices.Create.WithBody(bytes.NewReader(mapping)),
		e.client.Indices.Create.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("create index %s: %w", e.index, err)
	}
	defer createRes.Body.Close()

	if createRes.IsError() {
		return fmt.Errorf("create index %s: %s", e.index, createRes.String())
	}

	e.log.Info("created results index", "index", e.index)

	return nil
}

// Export bulk-indexes the records. Records that fail to index are
// logged and counted; the export itself fails only when the bulk
// machinery does.
func (e *Exporter) Export(ctx context.Context, records []*domain.SinkRecord) (*Stats, error) {
	stats := &Stats{Read: len(records)}

	if len(records) == 0 {
		return stats, nil
	}

	indexer, err := esutil.NewBulkIndexer(esutil.BulkIndexerConfig{
		Index:         e.index,
		Client:        e.client,
		FlushBytes:    e.flushBytes,
		FlushInterval: e.flushInterval,
	})
	if err != nil {
		return stats, fmt.Errorf("create bulk indexer: %w", err)
	}

	for _, rec := range records {
		docID, body, err := BuildDocument(rec)
		if err != nil {
			e.log.Error("skip unencodable record", "target", rec.TargetID, "error", err.Error())
			continue
		}

		err = indexer.Add(ctx, esutil.BulkIndexerItem{
			Action:     "index",
			DocumentID: docID,
			Body:       bytes.NewReader(body),
			OnFailure: func(_ context.Context, item esutil.BulkIndexerItem, res esutil.BulkIndexerResponseItem, err error) {
				reason := res.Error.Reason
				if err != nil {
					reason = err.Error()
				}
				e.log.Error("index document failed", "document_id", item.DocumentID, "reason", reason)
			},
		})
		if err != nil {
			_ = indexer.Close(ctx)
			return stats, fmt.Errorf("add document %s: %w", docID, err)
		}
	}

	if err := indexer.Close(ctx); err != nil {
		return stats, fmt.Errorf("flush bulk indexer: %w", err)
	}

	biStats := indexer.Stats()
	stats.Indexed = int64(biStats.NumFlushed)
	stats.Failed = int64(biStats.NumFailed)

	e.log.Info("export finished",
		"index", e.index,
		"read", stats.Read,
		"indexed", stats.Indexed,
		"failed", stats.Failed)

	return stats, nil
}

// BuildDocument renders one sink record as an index request body. The
// target id keys the document so repeated exports stay idempotent.
func BuildDocument(rec *domain.SinkRecord) (string, []byte, error) {
	if rec == nil || rec.TargetID == "" {
		return "", nil, errors.New("record has no target id")
	}

	body, err := json.Marshal(rec)
	if err != nil {
		return "", nil, fmt.Errorf("encode record %s: %w", rec.TargetID, err)
	}

	return rec.TargetID, body, nil
}

// resultsMapping is the index schema for exported records. The
// extracted data object stays dynamic; everything the pipeline controls
// is typed.
func resultsMapping() map[string]any {
	return map[string]any{
		"mappings": map[string]any{
			"properties": map[string]any{
				"target_id":    map[string]string{"type": "keyword"},
				"run_id":       map[string]string{"type": "keyword"},
				"success":      map[string]string{"type": "boolean"},
				"error":        map[string]string{"type": "text"},
				"resolved_url": map[string]string{"type": "keyword"},
				"homepage_url": map[string]string{"type": "keyword"},
				"extracted_at": map[string]string{"type": "date"},
				"name": map[string]any{
					"type": "text",
					"fields": map[string]any{
						"keyword": map[string]any{"type": "keyword", "ignore_above": 256},
					},
				},
				"data":     map[string]any{"type": "object", "dynamic": true},
				"metadata": map[string]any{"type": "object", "dynamic": true},
			},
		},
		"settings": map[string]any{
			"number_of_shards":   1,
			"number_of_replicas": 0,
		},
	}
}
