// Package retrieval is the optional web-search collaborator (
// `Retrieval.search(query) -> [text-chunk]`). internal/repair consults it
// before each rewrite prompt and appends any returned chunks as advisory
// context; catalog normalization (planner.Normalize) does not use it. It
// is never a blocking dependency: a nil Collaborator or a failed Search
// simply means the prompt is sent without external context.
package retrieval

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// Collaborator is the search boundary. Implementations must treat
// queries as advisory: callers never fail a rewrite because Search
// returned an error or no results.
type Collaborator interface {
	Search(ctx context.Context, query string) ([]string, error)
}

const (
	defaultRetryMax = 2
	defaultTimeout  = 30 * time.Second
)

// Client is a JSON-over-HTTP Collaborator, the same shape as
// internal/llm.Client: POST {"query": "..."} to endpoint, decode
// {"chunks": [...]}.
type Client struct {
	Endpoint   string
	APIKey     string
	HTTPClient *retryablehttp.Client
}

// NewClient returns a Client posting search queries to endpoint.
func NewClient(endpoint, apiKey string) *Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = defaultRetryMax
	rc.Logger = nil
	rc.HTTPClient.Timeout = defaultTimeout
	return &Client{Endpoint: endpoint, APIKey: apiKey, HTTPClient: rc}
}

type searchRequest struct {
	Query string `json:"query"`
}

type searchResponse struct {
	Chunks []string `json:"chunks"`
}

// Search implements Collaborator.
func (c *Client) Search(ctx context.Context, query string) ([]string, error) {
	body, err := json.Marshal(searchRequest{Query: query})
	if err != nil {
		return nil, fmt.Errorf("retrieval: marshaling request: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint+"/search", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("retrieval: building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("retrieval: calling search: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("retrieval: search returned HTTP status %d", resp.StatusCode)
	}

	var out searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("retrieval: decoding search response: %w", err)
	}
	return out.Chunks, nil
}

var _ Collaborator = (*Client)(nil)

// Mock is a scripted Collaborator for tests.
type Mock struct {
	Chunks []string
	Err    error
	Calls  []string
}

// Search implements Collaborator.
func (m *Mock) Search(ctx context.Context, query string) ([]string, error) {
	m.Calls = append(m.Calls, query)
	return m.Chunks, m.Err
}

var _ Collaborator = (*Mock)(nil)
