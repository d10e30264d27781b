// Package state defines the data model shared by every component of the
// repair loop: the installer/test history, the test catalog, the running
// budget, and the derived check flags. State is created and owned by
// internal/orchestrator, which hands the live *State to repair.Machine.Run;
// the packages it reaches read or update it in place without keeping the
// pointer.
package state

import "encoding/json"

// CommandRecord is a shell invocation and, when the invocation executes a
// file, the body of that file. Immutable once constructed.
type CommandRecord struct {
	Invocation  string  `json:"invocation"`
	FileContent *string `json:"file_content,omitempty"`
}

// ExecResult is the outcome of one ContainerAdapter.Exec call.
type ExecResult struct {
	ExitCode int    `json:"exit_code"`
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
}

// OK reports whether the command exited zero.
func (r *ExecResult) OK() bool {
	return r != nil && r.ExitCode == 0
}

// RoundTag marks which half of the loop a RoundEntry belongs to.
type RoundTag int

const (
	RoundInstaller RoundTag = iota
	RoundTest
)

func (t RoundTag) String() string {
	switch t {
	case RoundInstaller:
		return "installer"
	case RoundTest:
		return "test"
	default:
		return "unknown"
	}
}

// RoundEntry is one execute -> observe -> (optionally) analyze cycle.
// History arrays are append-only; entries are never mutated once a later
// entry has been appended, except to backfill Analysis for the most recent
// entry.
type RoundEntry struct {
	Command  CommandRecord `json:"command"`
	Result   ExecResult    `json:"result"`
	Analysis *string       `json:"analysis,omitempty"`
	Tag      RoundTag      `json:"tag"`
}

// Level classifies a TestCommand's position in the funnel-defense order.
type Level int

const (
	LevelBuild Level = iota
	Level1Entry
	Level2Integration
	Level3Smoke
	Level4Unit
)

func (l Level) String() string {
	switch l {
	case LevelBuild:
		return "build"
	case Level1Entry:
		return "1"
	case Level2Integration:
		return "2"
	case Level3Smoke:
		return "3"
	case Level4Unit:
		return "4"
	default:
		return "unknown"
	}
}

// AllLevels enumerates every catalog bucket, build first.
var AllLevels = []Level{LevelBuild, Level1Entry, Level2Integration, Level3Smoke, Level4Unit}

// TestCommand is one catalog entry: literal shell text plus its level.
type TestCommand struct {
	Text  string `json:"text"`
	Level Level  `json:"level"`
}

// Phase classifies an ExecutionStep's role in the sequenced plan.
type Phase int

const (
	PhasePreflight Phase = iota
	PhasePrimary
	PhaseFallback
	PhaseDiagnostic
)

// ExecutionStep is one entry of the planner's ordered execution plan.
type ExecutionStep struct {
	Order         int    `json:"order"`
	Command       string `json:"command"`
	Level         Level  `json:"level"`
	Phase         Phase  `json:"phase"`
	StopOnSuccess bool   `json:"stop_on_success"`
	IsBlocking    bool   `json:"is_blocking"`
}

// VerificationIssue is one parsed failure from import-scan mode.
type VerificationIssue struct {
	File          string  `json:"file"`
	ErrorKind     string  `json:"error_kind"`
	MissingModule *string `json:"missing_module,omitempty"`
	Message       string  `json:"message"`
}

// Budget tracks the three retry counters the RepairStateMachine decrements.
// All three are monotonically non-increasing and clamp at zero.
type Budget struct {
	GlobalTicksLeft   int `json:"global_ticks_left"`
	RewriteRoundsLeft int `json:"rewrite_rounds_left"`
	TestRoundsLeft    int `json:"test_rounds_left"`
}

// Exhausted reports whether any counter has reached zero.
func (b Budget) Exhausted() bool {
	return b.GlobalTicksLeft <= 0 || b.RewriteRoundsLeft <= 0 || b.TestRoundsLeft <= 0
}

func decrement(n int) int {
	if n <= 0 {
		return 0
	}
	return n - 1
}

// TickGlobal decrements GlobalTicksLeft, clamping at zero.
func (b *Budget) TickGlobal() { b.GlobalTicksLeft = decrement(b.GlobalTicksLeft) }

// TickRewrite decrements RewriteRoundsLeft, clamping at zero.
func (b *Budget) TickRewrite() { b.RewriteRoundsLeft = decrement(b.RewriteRoundsLeft) }

// TickTest decrements TestRoundsLeft, clamping at zero.
func (b *Budget) TickTest() { b.TestRoundsLeft = decrement(b.TestRoundsLeft) }

// DefaultBudget returns the recommended 200/10/20 defaults.
func DefaultBudget() Budget {
	return Budget{GlobalTicksLeft: 200, RewriteRoundsLeft: 10, TestRoundsLeft: 20}
}

// CheckStatus is derived, never set directly — see State.Recheck.
type CheckStatus struct {
	InstallerOK bool `json:"installer_ok"`
	TestOK      bool `json:"test_ok"`
}

// VerificationMode fixes which shape LastTestResult holds for the lifetime
// of a run. Chosen once at orchestrator construction.
type VerificationMode int

const (
	ModeExec VerificationMode = iota
	ModeImportScan
)

// TestResult is a sum type: exactly one of ExecTestResult or
// IssueTestResult is ever produced by a given VerificationExecutor, fixed
// by its Mode at construction.
type TestResult interface {
	isTestResult()
}

// ExecTestResult is the direct-exec mode's result shape.
type ExecTestResult struct {
	Exec ExecResult
}

func (ExecTestResult) isTestResult() {}

// IssueTestResult is the import-scan mode's result shape.
type IssueTestResult struct {
	Issues []VerificationIssue
}

func (IssueTestResult) isTestResult() {}

// State aggregates every mutable fact the repair loop depends on. It is
// owned exclusively by the orchestrator's driver goroutine — no other
// package stores a reference to a *State across a suspension point.
type State struct {
	CurrentInstaller    CommandRecord          `json:"current_installer"`
	LastInstallerResult *ExecResult            `json:"last_installer_result,omitempty"`
	InstallerHistory    []RoundEntry           `json:"installer_history"`
	TestCatalog         map[Level][]TestCommand `json:"test_catalog"`
	SelectedTest        *string                `json:"selected_test,omitempty"`
	SelectedTestLevel   *Level                 `json:"selected_test_level,omitempty"`
	Mode                VerificationMode       `json:"mode"`
	LastTestResult      TestResult             `json:"-"`
	TestHistory         []RoundEntry           `json:"test_history"`
	ErrorAnalysis       string                 `json:"error_analysis"`
	Budget              Budget                 `json:"budget"`
	Check               CheckStatus            `json:"check"`
}

// New constructs a State seeded with the initial installer and catalog,
// the "cold generation" handoff produced upstream.
func New(installer CommandRecord, catalog map[Level][]TestCommand, mode VerificationMode, budget Budget) *State {
	if catalog == nil {
		catalog = map[Level][]TestCommand{}
	}
	return &State{
		CurrentInstaller: installer,
		TestCatalog:      catalog,
		Mode:             mode,
		Budget:           budget,
	}
}

// Recheck recomputes Check from the latest results only. It never consults
// InstallerHistory/TestHistory beyond the last result, so mutating
// CurrentInstaller without re-executing can never flip a flag.
func (s *State) Recheck() {
	s.Check.InstallerOK = s.LastInstallerResult.OK()
	switch tr := s.LastTestResult.(type) {
	case nil:
		s.Check.TestOK = false
	case ExecTestResult:
		s.Check.TestOK = tr.Exec.ExitCode == 0
	case IssueTestResult:
		s.Check.TestOK = len(tr.Issues) == 0
	default:
		s.Check.TestOK = false
	}
}

// Terminal reports whether the loop should stop: both checks pass, or any
// budget counter is exhausted.
func (s *State) Terminal() (done bool, success bool) {
	if s.Check.InstallerOK && s.Check.TestOK {
		return true, true
	}
	if s.Budget.Exhausted() {
		return true, false
	}
	return false, false
}

// AppendInstallerRound appends to InstallerHistory, never mutating a prior
// entry.
func (s *State) AppendInstallerRound(e RoundEntry) {
	e.Tag = RoundInstaller
	s.InstallerHistory = append(s.InstallerHistory, e)
}

// AppendTestRound appends to TestHistory, never mutating a prior entry.
func (s *State) AppendTestRound(e RoundEntry) {
	e.Tag = RoundTest
	s.TestHistory = append(s.TestHistory, e)
}

// AnnotateLastInstallerAnalysis backfills Analysis on the most recent
// installer round without rewriting history: an analysis lands no later
// than the tick after the result it explains.
func (s *State) AnnotateLastInstallerAnalysis(analysis string) {
	if len(s.InstallerHistory) == 0 {
		return
	}
	last := len(s.InstallerHistory) - 1
	s.InstallerHistory[last].Analysis = &analysis
}

// AnnotateLastTestAnalysis is the test-history analogue.
func (s *State) AnnotateLastTestAnalysis(analysis string) {
	if len(s.TestHistory) == 0 {
		return
	}
	last := len(s.TestHistory) - 1
	s.TestHistory[last].Analysis = &analysis
}

// LastSuccessfulInstaller returns the CommandRecord of the last installer
// history entry whose exit code was 0; on a successful run this is exactly
// the current installer.
func (s *State) LastSuccessfulInstaller() (CommandRecord, bool) {
	for i := len(s.InstallerHistory) - 1; i >= 0; i-- {
		if s.InstallerHistory[i].Result.ExitCode == 0 {
			return s.InstallerHistory[i].Command, true
		}
	}
	return CommandRecord{}, false
}

// stateAlias has State's fields but none of its methods, breaking the
// MarshalJSON/UnmarshalJSON recursion the snapshot type would otherwise hit.
type stateAlias State

// snapshot is the JSON-serializable projection of State used by
// internal/statestore. LastTestResult needs explicit tagging since
// TestResult is an interface.
type snapshot struct {
	stateAlias
	LastTestResultMode string          `json:"last_test_result_mode,omitempty"`
	LastTestResult     json.RawMessage `json:"last_test_result,omitempty"`
}

// MarshalJSON tags the concrete TestResult type so snapshots round-trip.
func (s *State) MarshalJSON() ([]byte, error) {
	out := snapshot{stateAlias: stateAlias(*s)}
	switch tr := s.LastTestResult.(type) {
	case ExecTestResult:
		out.LastTestResultMode = "exec"
		b, err := json.Marshal(tr.Exec)
		if err != nil {
			return nil, err
		}
		out.LastTestResult = b
	case IssueTestResult:
		out.LastTestResultMode = "issues"
		b, err := json.Marshal(tr.Issues)
		if err != nil {
			return nil, err
		}
		out.LastTestResult = b
	}
	return json.Marshal(out)
}

// UnmarshalJSON restores the concrete TestResult type from its tag.
func (s *State) UnmarshalJSON(data []byte) error {
	var in snapshot
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*s = State(in.stateAlias)
	switch in.LastTestResultMode {
	case "exec":
		var r ExecResult
		if len(in.LastTestResult) > 0 {
			if err := json.Unmarshal(in.LastTestResult, &r); err != nil {
				return err
			}
		}
		s.LastTestResult = ExecTestResult{Exec: r}
	case "issues":
		var issues []VerificationIssue
		if len(in.LastTestResult) > 0 {
			if err := json.Unmarshal(in.LastTestResult, &issues); err != nil {
				return err
			}
		}
		s.LastTestResult = IssueTestResult{Issues: issues}
	}
	return nil
}
