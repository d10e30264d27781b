// Package llm is the default implementation of the LLM collaborator
// capabilities this system delegates to an external collaborator: analyze_and_patch,
// select_test, and normalize_catalog. Client posts an assembled prompt to
// a configurable JSON endpoint and decodes a structured response; it
// satisfies analyzer.Collaborator so the orchestrator can wire it in
// directly. Each call uses a short-lived retryablehttp client with a
// bounded retry count, checks the status-code range, then decodes JSON
// into the destination type.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/schmitthub/envrepair/internal/analyzer"
	"github.com/schmitthub/envrepair/internal/state"
)

// defaultRetryMax allows three attempts total (the initial try plus two
// retries) before the call is treated as failed.
const defaultRetryMax = 2

// defaultTimeout bounds a single HTTP round-trip, independent of
// retryablehttp's own backoff schedule.
const defaultTimeout = 60 * time.Second

// Client is a JSON-over-HTTP collaborator. It is not bound to any vendor
// SDK: the endpoint is expected to accept {"prompt": "..."} and return one
// of the three response shapes below, matching whichever method was
// called.
type Client struct {
	Endpoint   string
	APIKey     string
	HTTPClient *retryablehttp.Client
}

// NewClient returns a Client posting to endpoint, authenticating with
// apiKey via a bearer Authorization header when non-empty.
func NewClient(endpoint, apiKey string) *Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = defaultRetryMax
	rc.Logger = nil
	rc.HTTPClient.Timeout = defaultTimeout
	return &Client{Endpoint: endpoint, APIKey: apiKey, HTTPClient: rc}
}

type promptRequest struct {
	Prompt string `json:"prompt"`
}

// patchWire is the wire shape of an analyzer.Patch: exactly one of
// new_body or text is populated, selected by kind.
type patchWire struct {
	Kind    string `json:"kind"`
	NewBody string `json:"new_body,omitempty"`
	Text    string `json:"text,omitempty"`
}

func (p patchWire) toPatch() (analyzer.Patch, error) {
	switch p.Kind {
	case "rewrite":
		return analyzer.Rewrite{NewBody: p.NewBody}, nil
	case "single_command":
		return analyzer.SingleCmd{Text: p.Text}, nil
	default:
		return nil, fmt.Errorf("llm: unrecognized patch kind %q", p.Kind)
	}
}

type analyzeAndPatchResponse struct {
	Analysis string    `json:"analysis"`
	Patch    patchWire `json:"patch"`
}

// AnalyzeAndPatch satisfies analyzer.Collaborator: the
// `LLM.analyze_and_patch(prompt) -> {analysis, patch}`.
func (c *Client) AnalyzeAndPatch(ctx context.Context, prompt string) (analyzer.Patch, string, error) {
	var resp analyzeAndPatchResponse
	if err := c.post(ctx, "analyze_and_patch", prompt, &resp); err != nil {
		return nil, "", err
	}
	patch, err := resp.Patch.toPatch()
	if err != nil {
		return nil, "", fmt.Errorf("llm: malformed analyze_and_patch response: %w", err)
	}
	return patch, resp.Analysis, nil
}

// SelectionResponse mirrors the `LLM.select_test(prompt) ->
// {command, level, reasoning}`. Unlike the analyzer, internal/planner's
// Select is fully deterministic (see planner.go's doc comment), so no
// shipped caller invokes this today; it exists so the Client's shape
// matches the collaborator surface exactly, and so an
// orchestrator that opts into LLM-assisted selection has somewhere to
// call.
type SelectionResponse struct {
	Command   string `json:"command"`
	Level     string `json:"level"`
	Reasoning string `json:"reasoning"`
}

// SelectTest calls the select_test capability.
func (c *Client) SelectTest(ctx context.Context, prompt string) (SelectionResponse, error) {
	var resp SelectionResponse
	err := c.post(ctx, "select_test", prompt, &resp)
	return resp, err
}

// NormalizationResponse mirrors the `LLM.normalize_catalog(prompt)
// -> {build: [string], 1..4: [string], reasoning}`.
type NormalizationResponse struct {
	Build     []string `json:"build"`
	Level1    []string `json:"1"`
	Level2    []string `json:"2"`
	Level3    []string `json:"3"`
	Level4    []string `json:"4"`
	Reasoning string   `json:"reasoning"`
}

// NormalizeCatalog calls the normalize_catalog capability.
func (c *Client) NormalizeCatalog(ctx context.Context, prompt string) (NormalizationResponse, error) {
	var resp NormalizationResponse
	err := c.post(ctx, "normalize_catalog", prompt, &resp)
	return resp, err
}

// ToCatalog converts a NormalizationResponse into the map shape the rest
// of the codebase uses.
func (n NormalizationResponse) ToCatalog() map[state.Level][]state.TestCommand {
	out := map[state.Level][]state.TestCommand{}
	add := func(level state.Level, texts []string) {
		for _, t := range texts {
			out[level] = append(out[level], state.TestCommand{Text: t, Level: level})
		}
	}
	add(state.LevelBuild, n.Build)
	add(state.Level1Entry, n.Level1)
	add(state.Level2Integration, n.Level2)
	add(state.Level3Smoke, n.Level3)
	add(state.Level4Unit, n.Level4)
	return out
}

// post is the shared request/response plumbing for all three
// capabilities: marshal {"prompt": ...}, POST to endpoint+"/"+capability,
// check the status range, decode the JSON body into dest.
func (c *Client) post(ctx context.Context, capability, prompt string, dest interface{}) error {
	body, err := json.Marshal(promptRequest{Prompt: prompt})
	if err != nil {
		return fmt.Errorf("llm: marshaling request: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint+"/"+capability, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("llm: building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("llm: calling %s: %w", capability, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("llm: %s returned HTTP status %d: %s", capability, resp.StatusCode, snippet)
	}

	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("llm: decoding %s response: %w", capability, err)
	}
	return nil
}

var _ analyzer.Collaborator = (*Client)(nil)
