package run

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schmitthub/envrepair/internal/cmdutil"
	"github.com/schmitthub/envrepair/internal/config"
	"github.com/schmitthub/envrepair/internal/container"
	"github.com/schmitthub/envrepair/internal/container/fake"
	"github.com/schmitthub/envrepair/internal/iostreams"
	"github.com/schmitthub/envrepair/internal/orchestrator"
	"github.com/schmitthub/envrepair/internal/scriptstore"
	"github.com/schmitthub/envrepair/internal/state"
)

func TestNewCmdRun_RegistersFlags(t *testing.T) {
	f := cmdutil.New("1.0.0", "abc123")
	cmd := NewCmdRun(f, nil)

	assert.Equal(t, "run", cmd.Use)
	assert.NotNil(t, cmd.Flags().Lookup("installer"))
	assert.NotNil(t, cmd.Flags().Lookup("catalog"))
	assert.NotNil(t, cmd.Flags().Lookup("watch"))
	assert.NotNil(t, cmd.Flags().Lookup("json"))
}

func TestNewCmdRun_RunE_DispatchesToRunFWithParsedFlags(t *testing.T) {
	f := cmdutil.New("1.0.0", "abc123")

	var captured *RunOptions
	cmd := NewCmdRun(f, func(ctx context.Context, factory *cmdutil.Factory, opts *RunOptions) error {
		captured = opts
		return nil
	})

	cmd.SetArgs([]string{"--installer", "setup.sh", "--catalog", "catalog.json", "--json"})
	require.NoError(t, cmd.Execute())

	require.NotNil(t, captured)
	assert.Equal(t, "setup.sh", captured.InstallerScriptBody)
	assert.Equal(t, "catalog.json", captured.TestCatalogPath)
	assert.True(t, captured.JSON)
	assert.False(t, captured.Watch)
}

func writeCatalogFile(t *testing.T, manifest string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "catalog.json")
	require.NoError(t, os.WriteFile(path, []byte(manifest), 0644))
	return path
}

func TestLoadCatalog_ParsesAllLevels(t *testing.T) {
	path := writeCatalogFile(t, `{"build": ["make"], "1": ["./server"], "3": ["make smoketest"]}`)

	catalog, err := loadCatalog(path)
	require.NoError(t, err)

	require.Contains(t, catalog, state.LevelBuild)
	assert.Equal(t, []state.TestCommand{{Text: "make", Level: state.LevelBuild}}, catalog[state.LevelBuild])

	require.Contains(t, catalog, state.Level1Entry)
	assert.Equal(t, "./server", catalog[state.Level1Entry][0].Text)

	require.Contains(t, catalog, state.Level3Smoke)
	assert.NotContains(t, catalog, state.Level2Integration)
	assert.NotContains(t, catalog, state.Level4Unit)
}

func TestLoadCatalog_EmptyManifestProducesEmptyCatalog(t *testing.T) {
	path := writeCatalogFile(t, `{}`)

	catalog, err := loadCatalog(path)
	require.NoError(t, err)
	assert.Empty(t, catalog)
}

func TestLoadCatalog_ErrorsOnMissingFile(t *testing.T) {
	_, err := loadCatalog(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestLoadCatalog_ErrorsOnMalformedJSON(t *testing.T) {
	path := writeCatalogFile(t, `{not json`)
	_, err := loadCatalog(path)
	assert.Error(t, err)
}

func TestBootstrapContainer_BuildsStartsAndStagesInstallerScript(t *testing.T) {
	var built, started bool
	var putFiles []container.FileWrite

	adapter := &fake.Adapter{
		BuildImageFn: func(ctx context.Context, dockerfile string) error {
			built = true
			assert.Contains(t, dockerfile, "FROM ubuntu:24.04")
			return nil
		},
		StartFn: func(ctx context.Context, bindHostProject bool) error {
			started = true
			return nil
		},
		PutFilesFn: func(ctx context.Context, files []container.FileWrite) error {
			putFiles = files
			return nil
		},
		ExecFn: func(ctx context.Context, cmd string, timeout time.Duration) (state.ExecResult, error) {
			return state.ExecResult{ExitCode: 0}, nil
		},
	}

	cfg := config.DefaultConfig()
	dir := t.TempDir()

	tio := iostreams.NewTestIOStreams()
	saved, err := bootstrapContainer(context.Background(), adapter, scriptstore.New(filepath.Join(dir, "scripts")), cfg, "#!/bin/bash\nmake\n", tio.IOStreams, false)
	require.NoError(t, err)
	assert.Equal(t, cfg.InstallerScriptPath, saved)

	assert.True(t, built)
	assert.True(t, started)
	require.Len(t, putFiles, 1)
	assert.Contains(t, putFiles[0].Path, cfg.InstallerScriptPath)
	assert.Equal(t, "#!/bin/bash\nmake\n", string(putFiles[0].Bytes))
}

func TestCatalogManifest_RoundTripsThroughJSON(t *testing.T) {
	m := catalogManifest{Build: []string{"make"}, L1: []string{"./app"}}
	data, err := json.Marshal(m)
	require.NoError(t, err)

	path := writeCatalogFile(t, string(data))
	catalog, err := loadCatalog(path)
	require.NoError(t, err)
	assert.Equal(t, "make", catalog[state.LevelBuild][0].Text)
	assert.Equal(t, "./app", catalog[state.Level1Entry][0].Text)
}

func TestPrintFailureReport_ListsFailingCommandsAndSnapshot(t *testing.T) {
	tio := iostreams.NewTestIOStreams()

	s := state.New(state.CommandRecord{Invocation: "bash /app/setup.sh"}, nil, state.ModeExec, state.DefaultBudget())
	s.ErrorAnalysis = "libEGL.so.1 is a system library; install libegl1"
	s.AppendInstallerRound(state.RoundEntry{
		Command: state.CommandRecord{Invocation: "bash /app/setup.sh"},
		Result:  state.ExecResult{ExitCode: 1},
	})
	s.AppendTestRound(state.RoundEntry{
		Command: state.CommandRecord{Invocation: "make"},
		Result:  state.ExecResult{ExitCode: 2},
	})
	s.AppendTestRound(state.RoundEntry{
		Command: state.CommandRecord{Invocation: "./server"},
		Result:  state.ExecResult{ExitCode: 0},
	})

	result := orchestrator.Result{
		ExitCode:     orchestrator.ExitBudgetExhausted,
		State:        s,
		SnapshotPath: "/tmp/states/state_0000000007.json",
	}
	printFailureReport(tio.IOStreams, result, ".envrepair/scripts/envrepair_setup.sh")

	out := tio.OutBuf.String()
	assert.Contains(t, out, "libEGL.so.1 is a system library")
	assert.Contains(t, out, ".envrepair/scripts/envrepair_setup.sh")
	assert.Contains(t, out, "bash /app/setup.sh")
	assert.Contains(t, out, "make")
	assert.Contains(t, out, "state_0000000007.json")
	// Passing commands stay out of the failing-command table.
	assert.NotContains(t, out, "./server")
}

func TestPrintFailureReport_NilStateIsANoOp(t *testing.T) {
	tio := iostreams.NewTestIOStreams()
	printFailureReport(tio.IOStreams, orchestrator.Result{}, "x.sh")
	assert.Empty(t, tio.OutBuf.String())
}
