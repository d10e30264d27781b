package verifier

import (
	"regexp"
	"sort"
	"strings"

	"github.com/schmitthub/envrepair/internal/state"
)

// PytestParser parses `pytest --collect-only` output: split on
// "ERROR collecting" blocks, extract the offending file, error type, and
// (for ModuleNotFoundError) the missing module name.
type PytestParser struct{}

var (
	errorBlockSplit  = regexp.MustCompile(`_{2,}\s+ERROR collecting\s+`)
	fileNameTrailing = regexp.MustCompile(`_{2,}.*$`)
	errorTypeLine    = regexp.MustCompile(`^(\w+Error)\s+while\s+importing`)
	errorMessageLine = regexp.MustCompile(`^E\s+(.+)$`)
	missingModule    = regexp.MustCompile(`No module named ['"](.+?)['"]`)
	pytestNotFound   = "pytest command not found"
)

// Parse implements ImportScanParser. A "pytest command not found" stdout is
// represented as a single issue with ErrorKind "PytestNotInstalled" so
// internal/repair can recognize the environment problem without string
// matching stdout a second time.
func (PytestParser) Parse(exitCode int, stdout, stderr string) []state.VerificationIssue {
	if strings.Contains(stdout, pytestNotFound) {
		return []state.VerificationIssue{{
			ErrorKind: "PytestNotInstalled",
			Message:   "pytest is not installed in your environment. Please install the latest version of pytest using `pip install pytest`.",
		}}
	}

	var issues []state.VerificationIssue
	blocks := errorBlockSplit.Split(stdout, -1)
	if len(blocks) > 1 {
		blocks = blocks[1:]
	} else {
		blocks = nil
	}

	for _, block := range blocks {
		lines := strings.Split(block, "\n")
		if len(lines) == 0 {
			continue
		}
		testFile := strings.TrimSpace(fileNameTrailing.ReplaceAllString(lines[0], ""))
		if testFile == "" {
			continue
		}

		var errorType, errorMessage, moduleError string
		for _, line := range lines {
			if strings.Contains(line, "short test summary info") {
				break
			}
			if m := errorTypeLine.FindStringSubmatch(line); m != nil {
				errorType = m[1]
			}
			if m := errorMessageLine.FindStringSubmatch(line); m != nil {
				errorMessage = strings.TrimSpace(m[1])
				if strings.Contains(errorMessage, "ModuleNotFoundError") {
					if mm := missingModule.FindStringSubmatch(errorMessage); mm != nil {
						moduleError = mm[1]
					}
				}
			}
		}

		issue := state.VerificationIssue{
			File:      testFile,
			ErrorKind: errorType,
			Message:   errorMessage,
		}
		if moduleError != "" {
			issue.MissingModule = &moduleError
		}
		issues = append(issues, issue)
	}

	return issues
}

// MissingModules returns the sorted, deduplicated set of missing module
// names across issues.
func MissingModules(issues []state.VerificationIssue) []string {
	set := map[string]struct{}{}
	for _, i := range issues {
		if i.MissingModule != nil {
			set[*i.MissingModule] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for m := range set {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}
