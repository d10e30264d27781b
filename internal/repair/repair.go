// Package repair is the state machine that drives
// execute -> check -> analyze -> patch -> re-execute cycles to either
// success or budget exhaustion. Stagnation (the same error recurring
// across rounds) is handled by the analyzer's own vary-strategy rule
// rather than a separate circuit breaker.
package repair

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/schmitthub/envrepair/internal/analyzer"
	"github.com/schmitthub/envrepair/internal/container"
	"github.com/schmitthub/envrepair/internal/planner"
	"github.com/schmitthub/envrepair/internal/promptctx"
	"github.com/schmitthub/envrepair/internal/retrieval"
	"github.com/schmitthub/envrepair/internal/scriptstore"
	"github.com/schmitthub/envrepair/internal/state"
	"github.com/schmitthub/envrepair/internal/verifier"
)

// PatchStrategy selects GenerateRewrite's output shape, a
// deployment option fixed for the run, never a runtime decision.
type PatchStrategy int

const (
	PatchSingleCommand PatchStrategy = iota
	PatchRewriteFull
)

// decision is the Router's routing verdict, evaluated fresh every tick.
type decision int

const (
	decideExecuteScript decision = iota
	decideGenerateRewrite
	decideSelectTest
	decideExecuteTest
	decideTerminateSuccess
	decideTerminateExhausted
)

// route implements the Router transition table. Budget
// exhaustion is checked first since it overrides every other condition
// ("any budget = 0"); the remaining rows are then evaluated in the table's
// own priority order, which is what lets a just-passed test re-enter
// SelectTest instead of terminating prematurely — see (*Machine).executeTest.
func route(s *state.State) decision {
	if s.Budget.Exhausted() {
		return decideTerminateExhausted
	}
	switch {
	case s.LastInstallerResult == nil:
		return decideExecuteScript
	case !s.Check.InstallerOK:
		return decideGenerateRewrite
	case s.SelectedTest == nil:
		return decideSelectTest
	case s.LastTestResult == nil:
		return decideExecuteTest
	case !s.Check.TestOK:
		return decideGenerateRewrite
	default:
		return decideTerminateSuccess
	}
}

// Machine wires the subsystems a tick needs and holds the small amount of
// run-scoped context (script path, in-container workdir, patch strategy)
// that isn't part of state.State itself.
type Machine struct {
	Adapter  container.Adapter
	Scripts  *scriptstore.Store
	Analyzer *analyzer.Analyzer
	Verifier *verifier.Executor
	Prompts  *promptctx.Assembler

	// Retrieval is the optional web-search collaborator consulted before
	// each rewrite prompt is sent; nil disables it entirely, and a failed
	// or empty Search never blocks generateRewrite.
	Retrieval retrieval.Collaborator

	// ScriptPath is the installer's relative path as returned by
	// Scripts.Save; ExecuteScript runs "bash <Workdir>/<ScriptPath>".
	ScriptPath string
	Workdir    string

	PatchStrategy    PatchStrategy
	InstallerTimeout time.Duration

	// CommandTimeout bounds single-command invocations (a CurrentInstaller
	// with no FileContent — the short-op case); zero falls back to
	// InstallerTimeout.
	CommandTimeout time.Duration

	// OnTick, if set, is called after every completed tick (Recheck
	// included) with the tick's decision and the now-current state, for a
	// caller to snapshot, log, or update a progress view. A single
	// post-tick callback is enough: the router itself, not an outer loop,
	// decides what happened each tick.
	OnTick func(tick int, s *state.State)

	// lastPatch is the most recent patch GenerateRewrite applied, fed back
	// into Analyzer.Analyze's equivalence check. It is run-scoped, not
	// part of State: a snapshot restored after a crash restarts the
	// "must vary strategy" memory along with the process, which only
	// affects the run's own analyzer prompts, never its on-disk artifacts.
	lastPatch analyzer.Patch
}

// New constructs a Machine. InstallerTimeout defaults to 1800s
// (the long-op default) when zero; Workdir defaults to "/app".
func New(adapter container.Adapter, scripts *scriptstore.Store, az *analyzer.Analyzer, v *verifier.Executor, prompts *promptctx.Assembler, scriptPath string) *Machine {
	return &Machine{
		Adapter:          adapter,
		Scripts:          scripts,
		Analyzer:         az,
		Verifier:         v,
		Prompts:          prompts,
		ScriptPath:       scriptPath,
		Workdir:          "/app",
		PatchStrategy:    PatchSingleCommand,
		InstallerTimeout: 1800 * time.Second,
	}
}

// Result is the outcome of Run.
type Result struct {
	Done      bool
	Success   bool
	Cancelled bool
	Err       error
}

// Run drives Router ticks against s until termination, an aborting error,
// or ctx is cancelled. The catalog is normalized once up front (refined
// once, then read-only) rather than on every SelectTest.
func (m *Machine) Run(ctx context.Context, s *state.State) Result {
	s.TestCatalog = planner.Normalize(s.TestCatalog)

	tick := 0
	for {
		if err := ctx.Err(); err != nil {
			return Result{Done: true, Cancelled: true, Err: err}
		}
		tick++

		s.Budget.TickGlobal()
		switch route(s) {
		case decideTerminateSuccess:
			return Result{Done: true, Success: true}
		case decideTerminateExhausted:
			return Result{Done: true, Err: &BudgetExhausted{Message: "repair budget exhausted without success"}}
		case decideExecuteScript:
			if err := m.executeScript(ctx, s); err != nil {
				return Result{Done: true, Err: err}
			}
		case decideGenerateRewrite:
			s.Budget.TickRewrite()
			if err := m.generateRewrite(ctx, s); err != nil {
				var llmErr *LLMError
				if !errors.As(err, &llmErr) {
					return Result{Done: true, Err: err}
				}
				// A flaky collaborator gets one same-tick retry; a second
				// failure just consumes this rewrite round and lets Router
				// re-enter GenerateRewrite against the remaining budget.
				if err := m.generateRewrite(ctx, s); err != nil && !errors.As(err, &llmErr) {
					return Result{Done: true, Err: err}
				}
			}
		case decideSelectTest:
			if err := m.selectTest(s); err != nil {
				return Result{Done: true, Err: err}
			}
		case decideExecuteTest:
			s.Budget.TickTest()
			if err := m.executeTest(ctx, s); err != nil {
				return Result{Done: true, Err: err}
			}
		}
		s.Recheck()
		if m.OnTick != nil {
			m.OnTick(tick, s)
		}
	}
}

// executeScript runs the current installer invocation as-is. Script-backed
// invocations get the long InstallerTimeout; bare repair one-liners get the
// shorter CommandTimeout.
func (m *Machine) executeScript(ctx context.Context, s *state.State) error {
	timeout := m.InstallerTimeout
	if s.CurrentInstaller.FileContent == nil && m.CommandTimeout > 0 {
		timeout = m.CommandTimeout
	}
	res, err := m.Adapter.Exec(ctx, s.CurrentInstaller.Invocation, timeout)
	if err != nil {
		return err
	}
	s.LastInstallerResult = &res
	s.AppendInstallerRound(state.RoundEntry{Command: s.CurrentInstaller, Result: res})
	return nil
}

// generateRewrite asks the analyzer for a patch (full rewrite or single
// command, per PatchStrategy), applies it, and resets everything
// downstream of the installer so Router starts a fresh execute/select/test
// cycle against the patched installer.
func (m *Machine) generateRewrite(ctx context.Context, s *state.State) error {
	var prompt string
	if m.PatchStrategy == PatchRewriteFull {
		prompt = m.Prompts.RewritePrompt(s, m.ScriptPath)
	} else {
		prompt = m.Prompts.InstallerFailurePrompt(s)
	}
	prompt += m.retrievalContext(ctx, s)

	patch, analysis, err := m.Analyzer.Analyze(ctx, prompt, m.lastPatch)
	if err != nil {
		return &LLMError{Op: "analyze_and_patch", Err: err, Message: "analyzer call failed"}
	}

	if !s.Check.InstallerOK {
		s.AnnotateLastInstallerAnalysis(analysis)
	} else {
		s.AnnotateLastTestAnalysis(analysis)
	}
	s.ErrorAnalysis = analysis
	m.lastPatch = patch

	switch p := patch.(type) {
	case analyzer.Rewrite:
		if _, ok := scriptstore.Shebang(p.NewBody); !ok {
			return &LLMError{Op: "rewrite_save", Message: "analyzer emitted a rewrite body without a shebang line"}
		}
		path, err := m.Scripts.Save(m.ScriptPath, p.NewBody)
		if err != nil {
			return &LLMError{Op: "rewrite_save", Err: err, Message: "analyzer emitted an invalid installer script"}
		}
		m.ScriptPath = path
		body := p.NewBody
		s.CurrentInstaller = state.CommandRecord{Invocation: m.installerInvocation(path), FileContent: &body}
		if err := m.Adapter.PutFiles(ctx, []container.FileWrite{{Path: path, Bytes: []byte(body)}}); err != nil {
			return err
		}
	case analyzer.SingleCmd:
		s.CurrentInstaller = state.CommandRecord{Invocation: p.Text}
	default:
		return &InvariantViolation{Op: "generate_rewrite", Message: "analyzer returned an unrecognized patch type"}
	}

	s.LastInstallerResult = nil
	s.SelectedTest = nil
	s.SelectedTestLevel = nil
	s.LastTestResult = nil
	return nil
}

// retrievalContext consults the optional retrieval collaborator using the
// latest failure's tail output as the search query and renders any
// returned chunks as an advisory block appended to the analyzer prompt.
// A nil Retrieval, an empty result, or a failed Search all return "" —
// retrieval never blocks or alters patch generation, only informs it.
func (m *Machine) retrievalContext(ctx context.Context, s *state.State) string {
	if m.Retrieval == nil {
		return ""
	}

	var tail string
	switch {
	case !s.Check.InstallerOK && s.LastInstallerResult != nil:
		tail = promptctx.TailTruncate(s.LastInstallerResult.Stdout+s.LastInstallerResult.Stderr, 500)
	case s.LastTestResult != nil:
		switch tr := s.LastTestResult.(type) {
		case state.ExecTestResult:
			tail = promptctx.TailTruncate(tr.Exec.Stdout+tr.Exec.Stderr, 500)
		case state.IssueTestResult:
			var msgs []string
			for _, issue := range tr.Issues {
				msgs = append(msgs, issue.Message)
			}
			tail = promptctx.TailTruncate(strings.Join(msgs, "\n"), 500)
		}
	default:
		return ""
	}
	if tail == "" {
		return ""
	}

	chunks, err := m.Retrieval.Search(ctx, tail)
	if err != nil || len(chunks) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("\nEXTERNAL CONTEXT (advisory, from web search):\n")
	for _, c := range chunks {
		b.WriteString("- ")
		b.WriteString(c)
		b.WriteString("\n")
	}
	return b.String()
}

func (m *Machine) installerInvocation(scriptPath string) string {
	return fmt.Sprintf("bash %s/%s", m.Workdir, scriptPath)
}

// selectTest asks the planner for the next command. If nothing is
// eligible (the catalog has been exhausted at every level the current
// tier needs), there is nothing left to verify; treated as a vacuous pass
// so Router can still reach Terminate(success) once installer_ok holds.
func (m *Machine) selectTest(s *state.State) error {
	sel, ok := planner.Select(s.TestCatalog, s.TestHistory)
	if !ok {
		empty := ""
		s.SelectedTest = &empty
		s.LastTestResult = state.ExecTestResult{Exec: state.ExecResult{ExitCode: 0}}
		return nil
	}
	level := sel.Level
	command := sel.Command
	s.SelectedTest = &command
	s.SelectedTestLevel = &level
	return nil
}

// executeTest runs the selected command through the VerificationExecutor
// and, on a pass that hasn't yet reached Runnable, clears the selection so
// Router re-enters SelectTest for the next necessary level — see route's
// doc comment for why this ordering matters.
func (m *Machine) executeTest(ctx context.Context, s *state.State) error {
	cmd := *s.SelectedTest
	if cmd == "" {
		s.AppendTestRound(state.RoundEntry{Command: state.CommandRecord{Invocation: "(no further tests required)"}, Result: state.ExecResult{ExitCode: 0}})
		return nil
	}

	result, raw, err := m.Verifier.Run(ctx, cmd)
	if err != nil {
		return err
	}
	s.LastTestResult = result
	s.AppendTestRound(state.RoundEntry{Command: state.CommandRecord{Invocation: cmd}, Result: raw})

	if testPassed(result) && planner.CurrentTier(s.TestHistory, s.TestCatalog) != planner.TierRunnable {
		s.SelectedTest = nil
		s.SelectedTestLevel = nil
		s.LastTestResult = nil
	}
	return nil
}

func testPassed(r state.TestResult) bool {
	switch tr := r.(type) {
	case state.ExecTestResult:
		return tr.Exec.ExitCode == 0
	case state.IssueTestResult:
		return len(tr.Issues) == 0
	default:
		return false
	}
}
