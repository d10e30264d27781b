package planner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schmitthub/envrepair/internal/state"
)

func catalogFixture() map[state.Level][]state.TestCommand {
	return map[state.Level][]state.TestCommand{
		state.LevelBuild:         {{Text: "npm run build", Level: state.LevelBuild}},
		state.Level1Entry:        {{Text: "npm start", Level: state.Level1Entry}},
		state.Level2Integration:  {{Text: "npm run test:integration", Level: state.Level2Integration}},
		state.Level3Smoke:        {{Text: "npm run --version", Level: state.Level3Smoke}},
		state.Level4Unit:         {{Text: "npm test", Level: state.Level4Unit}},
	}
}

func TestNormalize_DedupesByArgvKey(t *testing.T) {
	catalog := map[state.Level][]state.TestCommand{
		state.Level4Unit: {
			{Text: "pytest -q", Level: state.Level4Unit},
			{Text: "pytest   -q", Level: state.Level4Unit},
			{Text: "  ", Level: state.Level4Unit},
			{Text: "# a comment", Level: state.Level4Unit},
		},
	}
	out := Normalize(catalog)
	require.Len(t, out[state.Level4Unit], 1)
	assert.Equal(t, "pytest -q", out[state.Level4Unit][0].Text)
}

func TestNormalize_KeepsOnlyFirstLevelOnCollision(t *testing.T) {
	catalog := map[state.Level][]state.TestCommand{
		state.Level3Smoke: {{Text: "make check", Level: state.Level3Smoke}},
		state.Level4Unit:  {{Text: "make check", Level: state.Level4Unit}},
	}
	out := Normalize(catalog)
	assert.Len(t, out[state.Level3Smoke], 1)
	assert.Empty(t, out[state.Level4Unit])
}

func TestSequence_EmptyCatalogProducesEmptyPlan(t *testing.T) {
	steps := Sequence(map[state.Level][]state.TestCommand{})
	assert.Empty(t, steps)
}

func TestSequence_FunnelDefenseOrder(t *testing.T) {
	steps := Sequence(catalogFixture())
	require.Len(t, steps, 4)
	assert.Equal(t, state.Level3Smoke, steps[0].Level)
	assert.True(t, steps[0].IsBlocking)
	assert.Equal(t, state.Level1Entry, steps[1].Level)
	assert.True(t, steps[1].StopOnSuccess)
	assert.Equal(t, state.Level2Integration, steps[2].Level)
	assert.Equal(t, state.Level4Unit, steps[3].Level)
}

func TestSelect_RequiresBuildFirst(t *testing.T) {
	catalog := catalogFixture()
	sel, ok := Select(catalog, nil)
	require.True(t, ok)
	assert.Equal(t, state.LevelBuild, sel.Level)
	assert.Equal(t, TierUnknown, sel.Tier)
}

func TestSelect_AdvancesToSmokeAfterBuildPasses(t *testing.T) {
	catalog := catalogFixture()
	history := []state.RoundEntry{
		{Tag: state.RoundTest, Command: state.CommandRecord{Invocation: "npm run build"}, Result: state.ExecResult{ExitCode: 0}},
	}
	sel, ok := Select(catalog, history)
	require.True(t, ok)
	assert.Equal(t, state.Level3Smoke, sel.Level)
	assert.Equal(t, TierInstallable, sel.Tier)
}

func TestSelect_SwitchesToPeerAfterFiveFailures(t *testing.T) {
	catalog := map[state.Level][]state.TestCommand{
		state.LevelBuild: {{Text: "npm run build", Level: state.LevelBuild}},
		state.Level3Smoke: {
			{Text: "npm run --version", Level: state.Level3Smoke},
			{Text: "make check", Level: state.Level3Smoke},
		},
	}
	history := []state.RoundEntry{
		{Tag: state.RoundTest, Command: state.CommandRecord{Invocation: "npm run build"}, Result: state.ExecResult{ExitCode: 0}},
	}
	for i := 0; i < 5; i++ {
		history = append(history, state.RoundEntry{
			Tag:     state.RoundTest,
			Command: state.CommandRecord{Invocation: "npm run --version"},
			Result:  state.ExecResult{ExitCode: 1},
		})
	}
	sel, ok := Select(catalog, history)
	require.True(t, ok)
	assert.Equal(t, "make check", sel.Command)
}

func TestSelect_FallsBackToEntryWhenNoSmokeOrUnitCommands(t *testing.T) {
	catalog := map[state.Level][]state.TestCommand{
		state.LevelBuild:  {{Text: "make", Level: state.LevelBuild}},
		state.Level1Entry: {{Text: "./server", Level: state.Level1Entry}},
	}
	history := []state.RoundEntry{
		{Tag: state.RoundTest, Command: state.CommandRecord{Invocation: "make"}, Result: state.ExecResult{ExitCode: 0}},
	}
	sel, ok := Select(catalog, history)
	require.True(t, ok)
	assert.Equal(t, state.Level1Entry, sel.Level)
	assert.Equal(t, "./server", sel.Command)
}

func TestSelect_NoEligibleCommandsReturnsFalse(t *testing.T) {
	_, ok := Select(map[state.Level][]state.TestCommand{}, nil)
	assert.False(t, ok)
}

func TestCurrentTier_RunnableAfterEntryPass(t *testing.T) {
	catalog := catalogFixture()
	history := []state.RoundEntry{
		{Tag: state.RoundTest, Command: state.CommandRecord{Invocation: "npm run build"}, Result: state.ExecResult{ExitCode: 0}},
		{Tag: state.RoundTest, Command: state.CommandRecord{Invocation: "npm start"}, Result: state.ExecResult{ExitCode: 0}},
	}
	assert.Equal(t, TierRunnable, CurrentTier(history, catalog))
}
