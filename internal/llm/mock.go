package llm

import (
	"context"
	"fmt"

	"github.com/schmitthub/envrepair/internal/analyzer"
)

// Mock is a scripted analyzer.Collaborator for tests that don't want a
// live HTTP endpoint. Responses are consumed in order; once exhausted the
// last entry repeats, matching scriptedCollaborator's behavior in
// internal/analyzer/analyzer_test.go.
type Mock struct {
	Responses []MockResponse
	Calls     []string

	calls int
}

// MockResponse is one scripted AnalyzeAndPatch result.
type MockResponse struct {
	Patch    analyzer.Patch
	Analysis string
	Err      error
}

// AnalyzeAndPatch implements analyzer.Collaborator.
func (m *Mock) AnalyzeAndPatch(ctx context.Context, prompt string) (analyzer.Patch, string, error) {
	m.Calls = append(m.Calls, prompt)
	if len(m.Responses) == 0 {
		return nil, "", fmt.Errorf("llm: mock has no scripted responses")
	}
	i := m.calls
	if i >= len(m.Responses) {
		i = len(m.Responses) - 1
	}
	m.calls++
	r := m.Responses[i]
	return r.Patch, r.Analysis, r.Err
}

var _ analyzer.Collaborator = (*Mock)(nil)
