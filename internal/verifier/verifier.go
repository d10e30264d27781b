// Package verifier implements VerificationExecutor: running
// the selected test command and turning its outcome into a state.TestResult
// under one of two modes fixed at construction.
package verifier

import (
	"context"
	"time"

	"github.com/schmitthub/envrepair/internal/container"
	"github.com/schmitthub/envrepair/internal/state"
)

// noTestsCollectedExitCode is pytest's reserved exit code for "the
// collection phase ran and found zero tests" — a pass, not a failure.
const noTestsCollectedExitCode = 5

// ImportScanParser turns one verification run's raw stdout into structured
// issues. Pluggable per ecosystem; PytestParser is the
// bundled default.
type ImportScanParser interface {
	Parse(exitCode int, stdout, stderr string) []state.VerificationIssue
}

// Executor runs the selected command via a container.Adapter and produces
// a state.TestResult shaped by Mode.
type Executor struct {
	Adapter container.Adapter
	Mode    state.VerificationMode
	Parser  ImportScanParser
	Timeout time.Duration
}

// New constructs an Executor. parser may be nil in ModeExec (unused).
func New(adapter container.Adapter, mode state.VerificationMode, parser ImportScanParser) *Executor {
	return &Executor{Adapter: adapter, Mode: mode, Parser: parser, Timeout: 30 * time.Minute}
}

// Run executes cmd and returns the TestResult for the executor's fixed
// mode, plus the raw ExecResult for history/analyzer truncation.
func (e *Executor) Run(ctx context.Context, cmd string) (state.TestResult, state.ExecResult, error) {
	res, err := e.Adapter.Exec(ctx, cmd, e.Timeout)
	if err != nil {
		return nil, state.ExecResult{}, err
	}

	switch e.Mode {
	case state.ModeImportScan:
		return e.importScanResult(res), res, nil
	default:
		return state.ExecTestResult{Exec: res}, res, nil
	}
}

func (e *Executor) importScanResult(res state.ExecResult) state.TestResult {
	switch {
	case res.ExitCode == noTestsCollectedExitCode:
		return state.IssueTestResult{Issues: nil}
	case res.ExitCode == 0:
		return state.IssueTestResult{Issues: nil}
	case e.Parser == nil:
		return state.IssueTestResult{Issues: []state.VerificationIssue{{
			ErrorKind: "ParseError",
			Message:   "import-scan mode has no configured parser",
		}}}
	default:
		return state.IssueTestResult{Issues: e.Parser.Parse(res.ExitCode, res.Stdout, res.Stderr)}
	}
}
