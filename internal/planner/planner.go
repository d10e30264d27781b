// Package planner curates and orders the verification command catalog
// deduplicating entries, sequencing them in funnel-defense
// order, and selecting the single next command to run given the current
// maturity tier. Selection is fully deterministic; the maturity tiers and
// priority order are documented on Select.
package planner

import (
	"strings"

	"github.com/google/shlex"

	"github.com/schmitthub/envrepair/internal/state"
)

// Tier classifies how far the environment has matured, along the
// Unknown/Installable/Testable/Runnable ladder.
type Tier int

const (
	TierUnknown Tier = iota
	TierInstallable
	TierTestable
	TierRunnable
)

func (t Tier) String() string {
	switch t {
	case TierUnknown:
		return "unknown"
	case TierInstallable:
		return "installable"
	case TierTestable:
		return "testable"
	case TierRunnable:
		return "runnable"
	default:
		return "unknown"
	}
}

// failureSwitchThreshold is the ">= 5 failures with a cheaper peer available"
// exception to the usual ordering rule.
const failureSwitchThreshold = 5

// Normalize deduplicates catalog entries by a whitespace/argv-normalized
// key, dropping empty or comment-only lines, and resolves a command that
// appears at more than one level by keeping it only at its first (lowest
// enum value) level — the most appropriate single bucket. Map iteration
// order is irrelevant since AllLevels fixes the pass order.
func Normalize(catalog map[state.Level][]state.TestCommand) map[state.Level][]state.TestCommand {
	seen := make(map[string]state.Level)
	out := make(map[state.Level][]state.TestCommand)

	for _, level := range state.AllLevels {
		for _, cmd := range catalog[level] {
			key := normalizeKey(cmd.Text)
			if key == "" {
				continue
			}
			if existing, ok := seen[key]; ok && existing <= level {
				continue
			}
			if existing, ok := seen[key]; ok {
				out[existing] = removeByKey(out[existing], key)
			}
			seen[key] = level
			out[level] = append(out[level], state.TestCommand{Text: cmd.Text, Level: level})
		}
	}
	return out
}

func removeByKey(cmds []state.TestCommand, key string) []state.TestCommand {
	out := cmds[:0]
	for _, c := range cmds {
		if normalizeKey(c.Text) != key {
			out = append(out, c)
		}
	}
	return out
}

// normalizeKey lower-cases and re-joins the argv split of text, so "pytest
// -q" and "pytest   -q" collapse to the same dedup key. Falls back to a
// collapsed-whitespace string if the text isn't valid shell (e.g. an
// unterminated quote slipped into the catalog).
func normalizeKey(text string) string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" || strings.HasPrefix(trimmed, "#") {
		return ""
	}
	argv, err := shlex.Split(trimmed)
	if err != nil || len(argv) == 0 {
		return strings.ToLower(strings.Join(strings.Fields(trimmed), " "))
	}
	return strings.ToLower(strings.Join(argv, " "))
}

// Sequence produces the funnel-defense ordered execution plan: Level 3
// (blocking smoke tests) first, then Level 1 (stop on success), then Level
// 2, then Level 4. Build-level commands are not sequenced here — Select
// handles them directly as the Tier-Unknown gate.
func Sequence(catalog map[state.Level][]state.TestCommand) []state.ExecutionStep {
	order := []struct {
		level   state.Level
		phase   state.Phase
		blocks  bool
		success bool
	}{
		{state.Level3Smoke, state.PhasePreflight, true, false},
		{state.Level1Entry, state.PhasePrimary, false, true},
		{state.Level2Integration, state.PhasePrimary, false, false},
		{state.Level4Unit, state.PhaseDiagnostic, false, false},
	}

	var steps []state.ExecutionStep
	n := 0
	seen := make(map[string]bool)
	for _, o := range order {
		for _, cmd := range catalog[o.level] {
			key := normalizeKey(cmd.Text)
			if key == "" || seen[key] {
				continue
			}
			seen[key] = true
			n++
			steps = append(steps, state.ExecutionStep{
				Order:         n,
				Command:       cmd.Text,
				Level:         o.level,
				Phase:         o.phase,
				StopOnSuccess: o.success,
				IsBlocking:    o.blocks,
			})
		}
	}
	return steps
}

// Tally counts how a command has performed across test history.
type tally struct {
	executions int
	failures   int
}

func tallyByCommand(history []state.RoundEntry) map[string]tally {
	out := make(map[string]tally)
	for _, e := range history {
		key := normalizeKey(e.Command.Invocation)
		t := out[key]
		t.executions++
		if e.Result.ExitCode != 0 {
			t.failures++
		}
		out[key] = t
	}
	return out
}

// Selection is the result of Select: the chosen command plus the maturity
// context the caller (RepairStateMachine) needs to log/report.
type Selection struct {
	Command   string
	Level     state.Level
	Tier      Tier
	Reasoning string
}

// CurrentTier derives the maturity tier from test history alone, per
// the level ladder's definition.
func CurrentTier(history []state.RoundEntry, catalog map[state.Level][]state.TestCommand) Tier {
	buildPassed := false
	levelPassed := map[state.Level]bool{}
	for _, e := range history {
		if e.Result.ExitCode != 0 {
			continue
		}
		if e.Tag != state.RoundTest {
			continue
		}
		lvl := levelOf(e.Command.Invocation, catalog)
		if lvl == state.LevelBuild {
			buildPassed = true
		} else {
			levelPassed[lvl] = true
		}
	}
	switch {
	case !buildPassed:
		return TierUnknown
	case levelPassed[state.Level1Entry] || levelPassed[state.Level2Integration]:
		return TierRunnable
	case levelPassed[state.Level3Smoke] || levelPassed[state.Level4Unit]:
		return TierTestable
	default:
		return TierInstallable
	}
}

func levelOf(invocation string, catalog map[state.Level][]state.TestCommand) state.Level {
	key := normalizeKey(invocation)
	for _, level := range state.AllLevels {
		for _, cmd := range catalog[level] {
			if normalizeKey(cmd.Text) == key {
				return level
			}
		}
	}
	return state.LevelBuild
}

// Select chooses the next command to execute, applying the
// priority order:
//  1. No build command has passed yet → select from Level build.
//  2. Otherwise pick the most necessary level for the next maturity tier.
//  3. Tie-break toward unexecuted commands, then toward fewest failures.
//  4. A command with >= 5 failures yields to a less-failed peer in the
//     same level, if one exists.
func Select(catalog map[state.Level][]state.TestCommand, history []state.RoundEntry) (Selection, bool) {
	tier := CurrentTier(history, catalog)
	counts := tallyByCommand(history)

	targetLevel := state.LevelBuild
	if tier != TierUnknown {
		targetLevel = nextNecessaryLevel(tier, catalog)
	}

	cmds := catalog[targetLevel]
	if len(cmds) == 0 {
		return Selection{}, false
	}

	best := pickWithinLevel(cmds, counts)
	return Selection{
		Command:   best.Text,
		Level:     targetLevel,
		Tier:      tier,
		Reasoning: reasoningFor(tier, targetLevel),
	}, true
}

// candidatesFor lists, in priority order, the levels that would advance a
// given tier: Installable prefers smoke, then unit, falling back to
// entry/integration if the catalog has no smoke/unit commands at all (a
// project with no dedicated smoke suite can still progress straight to its
// entry point). Testable/Runnable both need an entry/integration pass to
// reach or confirm Runnable, the success target.
func candidatesFor(tier Tier) []state.Level {
	switch tier {
	case TierInstallable:
		return []state.Level{state.Level3Smoke, state.Level4Unit, state.Level1Entry, state.Level2Integration}
	case TierTestable, TierRunnable:
		return []state.Level{state.Level1Entry, state.Level2Integration}
	default:
		return []state.Level{state.LevelBuild}
	}
}

// nextNecessaryLevel returns the first candidate level (per candidatesFor)
// that actually has catalog entries, so an empty bucket never stalls
// progression toward the next tier. If none of the candidates have any
// commands, it returns the first candidate anyway so Select's empty-catalog
// check can report "nothing eligible".
func nextNecessaryLevel(tier Tier, catalog map[state.Level][]state.TestCommand) state.Level {
	candidates := candidatesFor(tier)
	for _, lvl := range candidates {
		if len(catalog[lvl]) > 0 {
			return lvl
		}
	}
	return candidates[0]
}

func pickWithinLevel(cmds []state.TestCommand, counts map[string]tally) state.TestCommand {
	best := cmds[0]
	bestTally := counts[normalizeKey(best.Text)]

	for _, cmd := range cmds[1:] {
		t := counts[normalizeKey(cmd.Text)]
		if better(t, bestTally) {
			best, bestTally = cmd, t
		}
	}

	if bestTally.failures >= failureSwitchThreshold {
		for _, cmd := range cmds {
			t := counts[normalizeKey(cmd.Text)]
			if t.failures < failureSwitchThreshold && t.failures < bestTally.failures {
				return cmd
			}
		}
	}
	return best
}

// better reports whether candidate beats current under the tie-break
// order: unexecuted first, then fewest failures.
func better(candidate, current tally) bool {
	if candidate.executions == 0 && current.executions > 0 {
		return true
	}
	if candidate.executions > 0 && current.executions == 0 {
		return false
	}
	return candidate.failures < current.failures
}

func reasoningFor(tier Tier, level state.Level) string {
	if tier == TierUnknown {
		return "no build command has passed yet; build is the only eligible level"
	}
	return "level " + level.String() + " is required to advance from " + tier.String()
}
