// Package helpers provides testing utilities for integration tests.
package helpers

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/elasticsearch"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	// ElasticsearchImage is the container image used for integration tests.
	ElasticsearchImage = "docker.elastic.co/elasticsearch/elasticsearch:8.11.0"
	// ElasticsearchUsername is the built-in superuser of the test cluster.
	ElasticsearchUsername = "elastic"
	// ElasticsearchPassword is the password configured for the test cluster.
	ElasticsearchPassword = "changeme"
	// DefaultStartupTimeout bounds how long Elasticsearch may take to start.
	DefaultStartupTimeout = 60 * time.Second
	// DefaultHTTPClientTimeout bounds individual helper requests.
	DefaultHTTPClientTimeout = 5 * time.Second
	// DefaultMaxRetries bounds the cluster health polling loop.
	DefaultMaxRetries = 30
)

// ElasticsearchContainer manages a test Elasticsearch instance.
type ElasticsearchContainer struct {
	Container testcontainers.Container
	Address   string
}

// StartElasticsearch starts an Elasticsearch container for testing.
// The returned container should be stopped with Stop().
func StartElasticsearch(ctx context.Context) (*ElasticsearchContainer, error) {
	esContainer, err := elasticsearch.Run(
		ctx,
		ElasticsearchImage,
		elasticsearch.WithPassword(ElasticsearchPassword),
		testcontainers.WithWaitStrategy(
			wait.ForHTTP("/").WithPort("9200/tcp").WithStartupTimeout(DefaultStartupTimeout),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start Elasticsearch container: %w", err)
	}

	host, err := esContainer.Host(ctx)
	if err != nil {
		_ = esContainer.Terminate(ctx)
		return nil, fmt.Errorf("failed to get container host: %w", err)
	}

	mappedPort, err := esContainer.MappedPort(ctx, "9200")
	if err != nil {
		_ = esContainer.Terminate(ctx)
		return nil, fmt.Errorf("failed to get container port: %w", err)
	}

	address := fmt.Sprintf("http://%s", net.JoinHostPort(host, mappedPort.Port()))

	if waitErr := waitForElasticsearch(ctx, address); waitErr != nil {
		_ = esContainer.Terminate(ctx)
		return nil, fmt.Errorf("failed to wait for Elasticsearch: %w", waitErr)
	}

	return &ElasticsearchContainer{
		Container: esContainer,
		Address:   address,
	}, nil
}

// Stop stops and removes the Elasticsearch container.
func (e *ElasticsearchContainer) Stop(ctx context.Context) error {
	if e.Container == nil {
		return nil
	}
	return e.Container.Terminate(ctx)
}

// Addresses returns the cluster addresses in the format the exporter
// config expects.
func (e *ElasticsearchContainer) Addresses() []string {
	return []string{e.Address}
}

// RefreshIndex makes all index operations performed so far visible to
// search, so assertions do not race the refresh interval.
func (e *ElasticsearchContainer) RefreshIndex(ctx context.Context, index string) error {
	res, err := e.do(ctx, http.MethodPost, fmt.Sprintf("/%s/_refresh", index))
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("refresh %s: unexpected status %d", index, res.StatusCode)
	}
	return nil
}

// CountDocuments returns the number of documents in the index.
func (e *ElasticsearchContainer) CountDocuments(ctx context.Context, index string) (int, error) {
	res, err := e.do(ctx, http.MethodGet, fmt.Sprintf("/%s/_count", index))
	if err != nil {
		return 0, err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("count %s: unexpected status %d", index, res.StatusCode)
	}

	var body struct {
		Count int `json:"count"`
	}
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		return 0, fmt.Errorf("decode count response: %w", err)
	}
	return body.Count, nil
}

// GetDocument fetches one document's source by id.
func (e *ElasticsearchContainer) GetDocument(ctx context.Context, index, id string) (map[string]any, error) {
	res, err := e.do(ctx, http.MethodGet, fmt.Sprintf("/%s/_doc/%s", index, id))
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("get %s/%s: unexpected status %d", index, id, res.StatusCode)
	}

	var body struct {
		Source map[string]any `json:"_source"`
	}
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode document response: %w", err)
	}
	return body.Source, nil
}

// do issues one authenticated request against the test cluster.
func (e *ElasticsearchContainer) do(ctx context.Context, method, path string) (*http.Response, error) {
	client := &http.Client{Timeout: DefaultHTTPClientTimeout}

	req, err := http.NewRequestWithContext(ctx, method, e.Address+path, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.SetBasicAuth(ElasticsearchUsername, ElasticsearchPassword)

	res, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s %s: %w", method, path, err)
	}
	return res, nil
}

// waitForElasticsearch waits for the cluster to answer health checks.
func waitForElasticsearch(ctx context.Context, address string) error {
	client := &http.Client{Timeout: DefaultHTTPClientTimeout}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, address+"/_cluster/health", http.NoBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.SetBasicAuth(ElasticsearchUsername, ElasticsearchPassword)

	for range DefaultMaxRetries {
		res, doErr := client.Do(req)
		if doErr == nil {
			res.Body.Close()
			if res.StatusCode == http.StatusOK {
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(1 * time.Second):
		}
	}

	return fmt.Errorf("elasticsearch did not become ready within %d seconds", DefaultMaxRetries)
}
