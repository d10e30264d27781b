// Package promptctx builds the textual inputs handed to the analyzer's LLM
// collaborator: the installer-failure prompt, the
// test-selection prompt, and the rewrite-specific prompt, all under a
// shared truncation budget.
package promptctx

import (
	"fmt"
	"strings"

	"github.com/schmitthub/envrepair/internal/state"
	"github.com/schmitthub/envrepair/internal/text"
)

// Defaults: the current round gets the full char window, older rounds in
// the history window get half that.
const (
	defaultStdoutBudget  = 1500
	defaultHistoryWindow = 3
)

// TailTruncate keeps the trailing budget runes of s — the opposite of
// internal/text.Truncate's head-keeping policy, since an installer/test
// failure's most useful signal is almost always its last lines (the actual
// error), not its first. Reuses text.StripANSI so embedded terminal codes
// from a captured shell session don't count against the budget.
func TailTruncate(s string, budget int) string {
	if budget <= 0 {
		return ""
	}
	plain := text.StripANSI(s)
	runes := []rune(plain)
	if len(runes) <= budget {
		return plain
	}
	return "...(truncated)\n" + string(runes[len(runes)-budget:])
}

// Assembler builds prompts from State.
type Assembler struct {
	// HistoryWindow is how many prior rounds each prompt includes.
	HistoryWindow int
	// StdoutBudget is the per-round character budget for the current
	// round's output; older rounds get half of it.
	StdoutBudget int
}

// New returns an Assembler with the default K=3 history window and
// 1,500-char stdout budget.
func New() *Assembler {
	return &Assembler{HistoryWindow: defaultHistoryWindow, StdoutBudget: defaultStdoutBudget}
}

func (a *Assembler) currentBudget() int {
	if a.StdoutBudget > 0 {
		return a.StdoutBudget
	}
	return defaultStdoutBudget
}

func (a *Assembler) historyBudget() int {
	return a.currentBudget() / 2
}

// failureContext renders the shared portion of both repair prompts: the
// installer body, truncated latest stdout, the selected test command(s),
// and up to K prior installer rounds with their own truncated output and
// previous analysis.
func (a *Assembler) failureContext(s *state.State) string {
	var b strings.Builder
	fmt.Fprintf(&b, "ENV IMPLEMENT COMMAND:\n%s\n\n", s.CurrentInstaller.Invocation)
	if s.CurrentInstaller.FileContent != nil {
		fmt.Fprintf(&b, "INSTALLER SCRIPT BODY:\n%s\n\n", *s.CurrentInstaller.FileContent)
	}
	if s.LastInstallerResult != nil {
		fmt.Fprintf(&b, "ENV IMPLEMENT OUTPUT (Latest):\nexit_code=%d\n%s\n\n",
			s.LastInstallerResult.ExitCode, TailTruncate(s.LastInstallerResult.Stdout+s.LastInstallerResult.Stderr, a.currentBudget()))
	}
	if s.SelectedTest != nil {
		fmt.Fprintf(&b, "TEST COMMAND:\n%s\n\n", *s.SelectedTest)
	}

	if rounds := a.priorRounds(s.InstallerHistory); rounds != "" {
		b.WriteString("PREVIOUS ROUNDS HISTORY:\n")
		b.WriteString(rounds)
	}
	return b.String()
}

// classificationRules is shared by both prompts: the special handling of
// missing shared libraries vs. missing language packages applies whether
// the analyzer answers with a full rewrite or a single repair command.
const classificationRules = "\nCLASSIFICATION RULES:\n" +
	"- \"cannot open shared object file\" errors are missing SYSTEM libraries: install via the detected OS package manager, never a language package.\n" +
	"- ModuleNotFoundError targets the same interpreter that will run verification: use its explicit path, not a bare pip/npm invocation.\n"

// InstallerFailurePrompt builds the analyzer's single-command repair
// prompt: the shared failure context, the classification rules, and the
// single-command post-conditions.
func (a *Assembler) InstallerFailurePrompt(s *state.State) string {
	var b strings.Builder
	b.WriteString(a.failureContext(s))
	b.WriteString(classificationRules)
	b.WriteString("\nAnswer with ONE non-interactive shell command (package-manager -y flags where applicable). Chain with && only when strictly necessary.\n")
	return b.String()
}

// priorRounds renders up to HistoryWindow entries preceding the most recent
// one (the current round is rendered separately by the caller), each with
// its truncated output and, if backfilled, its previous analysis — so the
// analyzer can see its own prior reasoning and avoid repeating it.
func (a *Assembler) priorRounds(history []state.RoundEntry) string {
	if len(history) <= 1 {
		return ""
	}
	end := len(history) - 1
	start := end - a.HistoryWindow
	if start < 0 {
		start = 0
	}

	var b strings.Builder
	for i := start; i < end; i++ {
		e := history[i]
		fmt.Fprintf(&b, "Round %d:\nCommand: %s\nExit Code: %d\nOutput: %s\n",
			i, e.Command.Invocation, e.Result.ExitCode, TailTruncate(e.Result.Stdout+e.Result.Stderr, a.historyBudget()))
		if e.Analysis != nil && *e.Analysis != "" {
			fmt.Fprintf(&b, "Previous Analysis: %s\n", *e.Analysis)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// TestSelectionPrompt builds the planner-facing prompt: the full catalog
// grouped by level with per-command pass/fail counts, plus the last
// failure's tail output.
func (a *Assembler) TestSelectionPrompt(s *state.State) string {
	var b strings.Builder
	b.WriteString("TEST CATALOG:\n")
	for _, level := range state.AllLevels {
		cmds := s.TestCatalog[level]
		if len(cmds) == 0 {
			continue
		}
		fmt.Fprintf(&b, "Level %s:\n", level)
		for _, c := range cmds {
			passes, fails := countOutcomes(s.TestHistory, c.Text)
			fmt.Fprintf(&b, "  - %s (passes=%d, fails=%d)\n", c.Text, passes, fails)
		}
	}

	if last := lastEntry(s.TestHistory); last != nil && last.Result.ExitCode != 0 {
		fmt.Fprintf(&b, "\nLAST FAILURE OUTPUT:\n%s\n", TailTruncate(last.Result.Stdout+last.Result.Stderr, a.currentBudget()))
	}
	return b.String()
}

func countOutcomes(history []state.RoundEntry, command string) (passes, fails int) {
	for _, e := range history {
		if e.Command.Invocation != command {
			continue
		}
		if e.Result.ExitCode == 0 {
			passes++
		} else {
			fails++
		}
	}
	return
}

func lastEntry(history []state.RoundEntry) *state.RoundEntry {
	if len(history) == 0 {
		return nil
	}
	return &history[len(history)-1]
}

// RewritePrompt extends the shared failure context with the
// rewrite-specific contract: the target script path, the missing-system-library vs.
// missing-language-package classification rules, and the guarantee that the
// response is written to disk verbatim.
func (a *Assembler) RewritePrompt(s *state.State, scriptPath string) string {
	var b strings.Builder
	b.WriteString(a.failureContext(s))
	fmt.Fprintf(&b, "\nTARGET SCRIPT PATH: %s\n", scriptPath)
	b.WriteString(classificationRules)
	b.WriteString("\nYour response will be written to disk verbatim as the new installer script body. It must begin with a shebang line, exit on first error, log its steps, and be safe to re-run.\n")
	return b.String()
}
