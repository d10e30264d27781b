// Package orchestrator is the single driver that wires the container
// adapter, script store, repair state machine, and snapshot store together,
// enforces budgets, and produces the exit code the CLI returns. One
// repository per run; state is snapshotted after every tick so a killed run
// can be inspected or resumed.
package orchestrator

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/schmitthub/envrepair/internal/analyzer"
	"github.com/schmitthub/envrepair/internal/config"
	"github.com/schmitthub/envrepair/internal/container"
	"github.com/schmitthub/envrepair/internal/logger"
	"github.com/schmitthub/envrepair/internal/project"
	"github.com/schmitthub/envrepair/internal/promptctx"
	"github.com/schmitthub/envrepair/internal/repair"
	"github.com/schmitthub/envrepair/internal/retrieval"
	"github.com/schmitthub/envrepair/internal/scriptstore"
	"github.com/schmitthub/envrepair/internal/state"
	"github.com/schmitthub/envrepair/internal/statestore"
	"github.com/schmitthub/envrepair/internal/tui"
	"github.com/schmitthub/envrepair/internal/verifier"
)

// Exit codes, returned in Result.ExitCode.
const (
	ExitSuccess         = 0
	ExitBudgetExhausted = 2
	ExitInfraError      = 3
	ExitCancelled       = 4
	ExitInvariant       = 5
)

// Dependencies are the collaborators Entry wires into a repair.Machine. A
// cmdutil.Factory assembles these for the CLI; tests construct them
// directly against fakes.
type Dependencies struct {
	Adapter      container.Adapter
	Collaborator analyzer.Collaborator
	Parser       verifier.ImportScanParser
	Retrieval    retrieval.Collaborator // nil -> no web-search context in analyzer prompts
	Logs         *logger.Factory        // nil -> Entry logs to a discarding logger

	// Dash, if set, receives one tui.RepairDashEvent per tick plus a
	// Start/Complete pair bracketing the run, for internal/tui.RunRepairDashboard
	// to render live. Run closes it after the Complete event is sent.
	Dash chan<- tui.RepairDashEvent
}

// Entry is the single logical driver: it owns State for the run's
// lifetime and advances repair.Machine one tick at a time, snapshotting
// after each tick and stopping as soon as Config.Budget is exhausted or
// ctx is cancelled (ticks never overlap — Run is
// never called concurrently with itself on the same Entry).
type Entry struct {
	RunID   string
	Config  config.Config
	Repo    *project.Repo
	Scripts *scriptstore.Store
	States  *statestore.Store

	machine      *repair.Machine
	log          zerolog.Logger
	dash         chan<- tui.RepairDashEvent
	snapshotPath string
}

// Result is the outcome of a full run.
type Result struct {
	ExitCode int
	State    *state.State
	Err      error

	// SnapshotPath is the on-disk path of the final state snapshot, empty
	// if no tick was ever persisted.
	SnapshotPath string
}

// New wires deps into a repair.Machine and returns an Entry ready to Run.
// installerScript is the initial installer script's relative ScriptStore
// path; scriptsDir/statesDir are the on-disk roots ScriptStore and the
// snapshot Store write under.
func New(cfg config.Config, repo *project.Repo, deps Dependencies, scriptsDir, statesDir, installerScript string) (*Entry, error) {
	if deps.Adapter == nil {
		return nil, errors.New("orchestrator: Dependencies.Adapter is required")
	}

	mode := state.ModeExec
	if cfg.Mode == "import_scan" {
		mode = state.ModeImportScan
	}

	scripts := scriptstore.New(scriptsDir)
	v := verifier.New(deps.Adapter, mode, deps.Parser)
	v.Timeout = cfg.Timeout.Test()
	az := analyzer.New(deps.Collaborator)
	prompts := promptctx.New()
	if cfg.HistoryWindow > 0 {
		prompts.HistoryWindow = cfg.HistoryWindow
	}
	if cfg.StdoutTruncateChars > 0 {
		prompts.StdoutBudget = cfg.StdoutTruncateChars
	}

	m := repair.New(deps.Adapter, scripts, az, v, prompts, installerScript)
	m.InstallerTimeout = cfg.Timeout.Test()
	m.CommandTimeout = cfg.Timeout.Default()
	m.Retrieval = deps.Retrieval
	if cfg.PatchStrategy == "rewrite_full" {
		m.PatchStrategy = repair.PatchRewriteFull
	} else {
		m.PatchStrategy = repair.PatchSingleCommand
	}

	log := zerolog.Nop()
	if deps.Logs != nil {
		log = deps.Logs.For("orchestrator")
	}

	return &Entry{
		RunID:   uuid.NewString(),
		Config:  cfg,
		Repo:    repo,
		Scripts: scripts,
		States:  statestore.New(statesDir),
		machine: m,
		log:     log,
		dash:    deps.Dash,
	}, nil
}

// Run executes installer against catalog until RepairStateMachine
// terminates or ctx is cancelled, persisting a snapshot after every tick
// (the tick counter repair.Machine.OnTick reports is the snapshot's key).
func (e *Entry) Run(ctx context.Context, installer state.CommandRecord, catalog map[state.Level][]state.TestCommand) Result {
	budget := state.Budget{
		GlobalTicksLeft:   e.Config.Budget.GlobalTicks,
		RewriteRoundsLeft: e.Config.Budget.RewriteRounds,
		TestRoundsLeft:    e.Config.Budget.TestRounds,
	}
	mode := state.ModeExec
	if e.Config.Mode == "import_scan" {
		mode = state.ModeImportScan
	}
	s := state.New(installer, catalog, mode, budget)

	e.log.Info().Str("run_id", e.RunID).Msg("starting repair run")

	repoName := ""
	if e.Repo != nil {
		repoName = e.Repo.Root()
	}
	e.sendDash(tui.RepairDashEvent{Kind: tui.RepairDashEventStart, RunID: e.RunID, Repo: repoName, MaxTick: budget.GlobalTicksLeft})

	lastTick := time.Now()
	e.machine.OnTick = func(tick int, s *state.State) {
		now := time.Now()
		tickDuration := now.Sub(lastTick)
		lastTick = now

		path, err := e.States.Save(tick, s)
		if err != nil {
			// A lost snapshot doesn't change the repair outcome, only
			// resumability after a crash — log and keep driving.
			e.log.Warn().Err(err).Int("tick", tick).Msg("failed to persist state snapshot")
		} else {
			e.snapshotPath = path
		}
		e.sendDash(tui.RepairDashEvent{
			Kind:              tui.RepairDashEventTickEnd,
			Tick:              tick,
			Phase:             phaseFor(s),
			InstallerOK:       s.Check.InstallerOK,
			TestOK:            s.Check.TestOK,
			GlobalTicksLeft:   s.Budget.GlobalTicksLeft,
			RewriteRoundsLeft: s.Budget.RewriteRoundsLeft,
			TestRoundsLeft:    s.Budget.TestRoundsLeft,
			TickDuration:      tickDuration,
		})
	}

	result := e.machine.Run(ctx, s)
	code := exitCode(result)

	e.log.Info().Str("run_id", e.RunID).Bool("success", result.Success).Int("exit_code", code).Msg("repair run finished")

	reason := "success"
	if result.Cancelled {
		reason = "cancelled"
	} else if result.Err != nil {
		reason = result.Err.Error()
	}
	e.sendDash(tui.RepairDashEvent{Kind: tui.RepairDashEventComplete, ExitReason: reason, Error: result.Err})
	if e.dash != nil {
		close(e.dash)
	}

	return Result{ExitCode: code, State: s, Err: result.Err, SnapshotPath: e.snapshotPath}
}

func (e *Entry) sendDash(ev tui.RepairDashEvent) {
	if e.dash == nil {
		return
	}
	e.dash <- ev
}

// phaseFor names the decision RepairStateMachine.Router would make from s's
// current shape, for dashboard display — mirrors repair.route's read-only
// checks without importing that package's unexported decision type.
func phaseFor(s *state.State) string {
	switch {
	case s.LastInstallerResult == nil:
		return "execute_script"
	case !s.Check.InstallerOK:
		return "generate_rewrite"
	case s.SelectedTest == nil:
		return "select_test"
	case s.LastTestResult == nil:
		return "execute_test"
	case !s.Check.TestOK:
		return "generate_rewrite"
	default:
		return "done"
	}
}

// exitCode maps a repair.Result to one of this package's exit codes
// (error-taxonomy -> process exit code mapping).
func exitCode(r repair.Result) int {
	switch {
	case r.Success:
		return ExitSuccess
	case r.Cancelled:
		return ExitCancelled
	case r.Err == nil:
		return ExitSuccess
	}

	var budgetErr *repair.BudgetExhausted
	var invariantErr *repair.InvariantViolation
	var infraErr *container.InfraError
	switch {
	case errors.As(r.Err, &budgetErr):
		return ExitBudgetExhausted
	case errors.As(r.Err, &invariantErr):
		return ExitInvariant
	case errors.As(r.Err, &infraErr):
		return ExitInfraError
	default:
		return ExitInfraError
	}
}

// FormatUserError renders err for the CLI's terminal failure report,
// dispatching to whichever package's FormatUserError-shaped method the
// concrete error implements, falling back to repair.FormatUserError's
// generic rendering.
func FormatUserError(err error) string {
	if err == nil {
		return ""
	}
	if uf, ok := err.(interface{ FormatUserError() string }); ok {
		return uf.FormatUserError()
	}
	return repair.FormatUserError(err)
}
