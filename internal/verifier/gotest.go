package verifier

import (
	"regexp"
	"strings"

	"github.com/schmitthub/envrepair/internal/state"
)

// GoTestParser is a second ImportScanParser, demonstrating pluggability
// against `go build ./...`/`go vet
// ./...`-shaped output rather than pytest's collection errors. It extracts
// one issue per "file:line:col: message" line and recognizes Go's own
// missing-dependency message shape.
type GoTestParser struct{}

var (
	goBuildFailedLine = regexp.MustCompile(`^(\S+):(\d+):(\d+):\s*(.+)$`)
	goMissingPackage  = regexp.MustCompile(`no required module provides package (\S+)`)
)

// Parse implements ImportScanParser for `go vet`/`go build` output: each
// "file:line:col: message" line becomes one issue; a "no required module
// provides package" message is tagged MissingModule the same way a Python
// ModuleNotFoundError is, so the analyzer's special equivalence rule
// applies uniformly across ecosystems.
func (GoTestParser) Parse(exitCode int, stdout, stderr string) []state.VerificationIssue {
	combined := stdout
	if stderr != "" {
		combined += "\n" + stderr
	}

	var issues []state.VerificationIssue
	for _, line := range strings.Split(combined, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if m := goMissingPackage.FindStringSubmatch(line); m != nil {
			pkg := m[1]
			issues = append(issues, state.VerificationIssue{
				ErrorKind:     "MissingModule",
				MissingModule: &pkg,
				Message:       line,
			})
			continue
		}
		if m := goBuildFailedLine.FindStringSubmatch(line); m != nil {
			issues = append(issues, state.VerificationIssue{
				File:      m[1],
				ErrorKind: "BuildError",
				Message:   m[4],
			})
		}
	}
	return issues
}
