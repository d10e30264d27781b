// Package analyzer implements ErrorAnalyzer: given a failing
// round plus trailing history, produce a patch (full rewrite or a single
// targeted command) plus a human-readable analysis, and enforce that the
// patch isn't an equivalent repeat of a prior one.
package analyzer

import (
	"context"
	"fmt"
	"strings"
)

// Patch is a Go sum type: exactly one of Rewrite or SingleCmd, matching
// the analyzer's two possible outputs.
type Patch interface {
	isPatch()
}

// Rewrite replaces the installer script body wholesale.
type Rewrite struct {
	NewBody string
}

func (Rewrite) isPatch() {}

// SingleCmd is a targeted one-liner, used when PatchStrategy is configured
// for the "repair command" variant of GenerateRewrite.
type SingleCmd struct {
	Text string
}

func (SingleCmd) isPatch() {}

// Collaborator is the LLM boundary: given an assembled prompt, produce a
// patch plus the analysis text explaining it. A default HTTP-backed
// implementation lives in internal/llm; tests use a scripted mock.
type Collaborator interface {
	AnalyzeAndPatch(ctx context.Context, prompt string) (Patch, string, error)
}

// rewriteEquivalenceThreshold is the ">=90% trigram overlap" bar for two
// Rewrite bodies to count as the same patch.
const rewriteEquivalenceThreshold = 0.90

// Analyzer wraps a Collaborator, enforcing the "must vary strategy" rule:
// if the collaborator's first patch is equivalent to the previous one
// applied for this track, it is asked once to reconsider before the
// caller accepts a repeat.
type Analyzer struct {
	Collaborator Collaborator
}

// New returns an Analyzer backed by the given Collaborator.
func New(c Collaborator) *Analyzer {
	return &Analyzer{Collaborator: c}
}

// Analyze asks the collaborator for a patch given prompt, retrying once
// with an amended prompt if the result is equivalent to previous (the
// analyzer's own output from the prior round on this track, or nil if
// there isn't one yet).
func (a *Analyzer) Analyze(ctx context.Context, prompt string, previous Patch) (Patch, string, error) {
	patch, analysis, err := a.Collaborator.AnalyzeAndPatch(ctx, prompt)
	if err != nil {
		return nil, "", fmt.Errorf("analyzer: collaborator call failed: %w", err)
	}

	if previous != nil && Equivalent(patch, previous) {
		retryPrompt := prompt + "\n\nYour previous patch was equivalent to one already tried and failed. You must adopt a materially different strategy this time.\n"
		retried, retriedAnalysis, err := a.Collaborator.AnalyzeAndPatch(ctx, retryPrompt)
		if err != nil {
			return nil, "", fmt.Errorf("analyzer: collaborator retry failed: %w", err)
		}
		patch, analysis = retried, retriedAnalysis
	}

	return patch, analysis, nil
}

// Equivalent reports whether two patches count as the same fix under
// exact string equality for SingleCmd, >=90% trigram overlap
// for Rewrite. Patches of different concrete types are never equivalent.
func Equivalent(a, b Patch) bool {
	switch av := a.(type) {
	case SingleCmd:
		bv, ok := b.(SingleCmd)
		return ok && av.Text == bv.Text
	case Rewrite:
		bv, ok := b.(Rewrite)
		return ok && TrigramOverlap(av.NewBody, bv.NewBody) >= rewriteEquivalenceThreshold
	default:
		return false
	}
}

// TrigramOverlap returns the Jaccard similarity of two strings' character
// trigram sets: |A∩B| / |A∪B|. Whitespace is collapsed first so formatting
// differences (indentation, line endings) don't depress the score.
func TrigramOverlap(a, b string) float64 {
	ta := trigrams(normalize(a))
	tb := trigrams(normalize(b))
	if len(ta) == 0 && len(tb) == 0 {
		return 1.0
	}
	if len(ta) == 0 || len(tb) == 0 {
		return 0.0
	}

	intersection := 0
	union := make(map[string]struct{}, len(ta)+len(tb))
	for t := range ta {
		union[t] = struct{}{}
		if _, ok := tb[t]; ok {
			intersection++
		}
	}
	for t := range tb {
		union[t] = struct{}{}
	}
	return float64(intersection) / float64(len(union))
}

func normalize(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func trigrams(s string) map[string]struct{} {
	runes := []rune(s)
	out := make(map[string]struct{})
	if len(runes) < 3 {
		if len(runes) > 0 {
			out[string(runes)] = struct{}{}
		}
		return out
	}
	for i := 0; i+3 <= len(runes); i++ {
		out[string(runes[i:i+3])] = struct{}{}
	}
	return out
}
