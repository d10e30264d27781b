// Package run provides the envrepair run command: the CLI entrypoint that
// wires the command Factory's collaborators into orchestrator.Entry and
// drives one repair run, against a single repository and container, to
// completion.
package run

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/schmitthub/envrepair/internal/cmdutil"
	"github.com/schmitthub/envrepair/internal/config"
	"github.com/schmitthub/envrepair/internal/container"
	"github.com/schmitthub/envrepair/internal/iostreams"
	"github.com/schmitthub/envrepair/internal/logger"
	"github.com/schmitthub/envrepair/internal/orchestrator"
	"github.com/schmitthub/envrepair/internal/retrieval"
	"github.com/schmitthub/envrepair/internal/scriptstore"
	"github.com/schmitthub/envrepair/internal/state"
	"github.com/schmitthub/envrepair/internal/tui"
	"github.com/schmitthub/envrepair/internal/verifier"
)

// RunOptions holds the run command's resolved flag values. runF in tests
// substitutes a fake runner entirely, so RunOptions carries only what the
// command line contributes — collaborators are resolved from *cmdutil.Factory
// directly inside runRun, the way loop/run.go's runRun reads opts.Client.
type RunOptions struct {
	IOStreams *iostreams.IOStreams

	InstallerScriptBody string
	TestCatalogPath     string
	Watch               bool
	JSON                bool
}

func NewCmdRun(f *cmdutil.Factory, runF func(context.Context, *cmdutil.Factory, *RunOptions) error) *cobra.Command {
	opts := &RunOptions{IOStreams: f.IOStreams}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Build and iteratively repair a runnable environment for this repository",
		Long: `Run builds a container image, executes the installer script, and drives
the repair loop (execute -> check -> analyze -> patch) until the installer
and test catalog both pass, or the configured budget is exhausted.

The installer script body and initial test catalog are produced upstream
by the cold script-generation stage; run only consumes them (see
--installer and --catalog, or the equivalent envrepair.yaml keys).`,
		Example: `  # Run with an installer script and catalog on disk
  envrepair run --installer ./setup.sh --catalog ./catalog.json

  # Watch the live repair dashboard
  envrepair run --installer ./setup.sh --catalog ./catalog.json --watch`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if runF != nil {
				return runF(cmd.Context(), f, opts)
			}
			return runRun(cmd.Context(), f, opts)
		},
	}

	cmd.Flags().StringVar(&opts.InstallerScriptBody, "installer", "", "Path to the installer script's source file (overrides envrepair.yaml's installer_script_body)")
	cmd.Flags().StringVar(&opts.TestCatalogPath, "catalog", "", "Path to the initial test-catalog JSON file (overrides envrepair.yaml's test_catalog_path)")
	cmd.Flags().BoolVar(&opts.Watch, "watch", false, "Render the live repair dashboard instead of structured log lines")
	cmd.Flags().BoolVar(&opts.JSON, "json", false, "Print the final Result as JSON instead of a human-readable summary")
	cmd.MarkFlagsMutuallyExclusive("watch", "json")

	return cmd
}

// catalogManifest is the on-disk shape of the cold-generation stage's
// catalog handoff: level name -> ordered command strings.
type catalogManifest struct {
	Build []string `json:"build"`
	L1    []string `json:"1"`
	L2    []string `json:"2"`
	L3    []string `json:"3"`
	L4    []string `json:"4"`
}

func loadCatalog(path string) (map[state.Level][]state.TestCommand, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("run: reading test catalog %s: %w", path, err)
	}
	var m catalogManifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("run: parsing test catalog %s: %w", path, err)
	}

	buckets := map[state.Level][]string{
		state.LevelBuild:        m.Build,
		state.Level1Entry:       m.L1,
		state.Level2Integration: m.L2,
		state.Level3Smoke:       m.L3,
		state.Level4Unit:        m.L4,
	}
	catalog := make(map[state.Level][]state.TestCommand)
	for _, level := range state.AllLevels {
		texts := buckets[level]
		if len(texts) == 0 {
			continue
		}
		cmds := make([]state.TestCommand, len(texts))
		for i, text := range texts {
			cmds[i] = state.TestCommand{Text: text, Level: level}
		}
		catalog[level] = cmds
	}
	return catalog, nil
}

func runRun(ctx context.Context, f *cmdutil.Factory, opts *RunOptions) error {
	ios := opts.IOStreams
	cs := ios.ColorScheme()

	cfg, err := f.Config()
	if err != nil {
		return fmt.Errorf("run: loading config: %w", err)
	}

	installerPath := opts.InstallerScriptBody
	if installerPath == "" {
		installerPath = cfg.InstallerScriptBody
	}
	if installerPath == "" {
		return cmdutil.FlagErrorf("--installer (or envrepair.yaml's installer_script_body) is required")
	}
	catalogPath := opts.TestCatalogPath
	if catalogPath == "" {
		catalogPath = cfg.TestCatalogPath
	}
	if catalogPath == "" {
		return cmdutil.FlagErrorf("--catalog (or envrepair.yaml's test_catalog_path) is required")
	}

	body, err := os.ReadFile(installerPath)
	if err != nil {
		return fmt.Errorf("run: reading installer script %s: %w", installerPath, err)
	}
	catalog, err := loadCatalog(catalogPath)
	if err != nil {
		return err
	}

	repo, err := f.Repo()
	if err != nil {
		return fmt.Errorf("run: resolving repository: %w", err)
	}
	logs, err := f.Logger()
	if err != nil {
		return fmt.Errorf("run: initializing logger: %w", err)
	}
	llmClient, err := f.LLM()
	if err != nil {
		return fmt.Errorf("run: initializing llm collaborator: %w", err)
	}
	dockerAdapter, err := f.Adapter(ctx)
	if err != nil {
		return fmt.Errorf("run: connecting to container backend: %w", err)
	}
	var adapter container.Adapter = dockerAdapter

	deps := orchestrator.Dependencies{
		Adapter:      adapter,
		Collaborator: llmClient,
		Logs:         logs,
	}
	if cfg.Mode == "import_scan" {
		deps.Parser = verifier.PytestParser{}
	}
	if cfg.Retrieval.Enabled && cfg.Retrieval.Endpoint != "" {
		deps.Retrieval = retrieval.NewClient(cfg.Retrieval.Endpoint, "")
	}

	var dash chan tui.RepairDashEvent
	if opts.Watch {
		dash = make(chan tui.RepairDashEvent, 16)
		deps.Dash = dash
	}

	scriptsDir := ".envrepair/scripts"
	statesDir := ".envrepair/states"

	// Bootstrap first: Save may suffix the script name, and the saved path is
	// what both the orchestrator and the initial invocation must refer to.
	saved, err := bootstrapContainer(ctx, adapter, scriptstore.New(scriptsDir), cfg, string(body), ios, !opts.JSON)
	if err != nil {
		return err
	}

	entry, err := orchestrator.New(cfg, repo, deps, scriptsDir, statesDir, saved)
	if err != nil {
		return fmt.Errorf("run: constructing orchestrator: %w", err)
	}

	logger.SetContext(repo.Root(), entry.RunID)
	defer logger.ClearContext()

	if !opts.JSON && !opts.Watch {
		fmt.Fprintf(ios.ErrOut, "%s starting repair run %s\n", cs.Bold(cs.Cyan("envrepair")), entry.RunID)
	}

	installerBody := string(body)
	installer := state.CommandRecord{Invocation: "bash " + saved, FileContent: &installerBody}

	var result orchestrator.Result
	if opts.Watch {
		done := make(chan orchestrator.Result, 1)
		go func() {
			done <- entry.Run(ctx, installer, catalog)
		}()
		tui.RunRepairDashboard(ios, tui.RepairDashboardConfig{RunID: entry.RunID, Repo: repo.Root()}, dash)
		result = <-done
	} else {
		result = entry.Run(ctx, installer, catalog)
	}

	if opts.JSON {
		enc := json.NewEncoder(ios.Out)
		enc.SetIndent("", "  ")
		out := map[string]any{
			"run_id":    entry.RunID,
			"exit_code": result.ExitCode,
			"success":   result.ExitCode == orchestrator.ExitSuccess,
		}
		if result.Err != nil {
			out["error"] = result.Err.Error()
		}
		if err := enc.Encode(out); err != nil {
			return fmt.Errorf("run: encoding json result: %w", err)
		}
	} else if result.Err != nil {
		fmt.Fprint(ios.ErrOut, orchestrator.FormatUserError(result.Err))
		printFailureReport(ios, result, filepath.Join(scriptsDir, saved))
	} else {
		fmt.Fprintf(ios.ErrOut, "%s repair run finished successfully\n", cs.SuccessIcon())
	}

	if result.ExitCode != orchestrator.ExitSuccess {
		return &cmdutil.ExitError{Code: result.ExitCode}
	}
	return nil
}

// bootstrapContainer builds the run image, starts the container, and
// mirrors the initial installer script in before the first tick — the CLI's
// responsibility, since repair.Machine only ever rewrites an already-seeded
// script. Returns the saved script's relative path, which may carry a
// deduplication suffix when the target name already exists.
func bootstrapContainer(ctx context.Context, adapter container.Adapter, scripts *scriptstore.Store, cfg config.Config, body string, ios *iostreams.IOStreams, showProgress bool) (string, error) {
	if err := buildRunImage(ctx, adapter, cfg, ios, showProgress); err != nil {
		return "", err
	}
	if err := adapter.Start(ctx, cfg.BindMount); err != nil {
		return "", fmt.Errorf("run: starting container: %w", err)
	}

	saved, err := scripts.Save(cfg.InstallerScriptPath, body)
	if err != nil {
		return "", fmt.Errorf("run: saving installer script: %w", err)
	}
	if err := adapter.PutFiles(ctx, []container.FileWrite{{Path: saved, Bytes: []byte(body)}}); err != nil {
		return "", fmt.Errorf("run: staging installer script into container: %w", err)
	}
	return saved, nil
}

// buildRunImage builds the run image, rendering a live step-by-step
// progress display for the legacy builder's output stream. The BuildKit
// path and non-Docker adapters build without a progress surface.
func buildRunImage(ctx context.Context, adapter container.Adapter, cfg config.Config, ios *iostreams.IOStreams, showProgress bool) error {
	dockerfile := fmt.Sprintf("FROM %s\n", cfg.Image)
	da, isDocker := adapter.(*container.DockerAdapter)

	if isDocker && cfg.Buildkit {
		if err := da.BuildImageKit(ctx, dockerfile); err != nil {
			return fmt.Errorf("run: building image via buildkit: %w", err)
		}
		return nil
	}
	if !showProgress || !isDocker {
		if err := adapter.BuildImage(ctx, dockerfile); err != nil {
			return fmt.Errorf("run: building image: %w", err)
		}
		return nil
	}

	steps := make(chan tui.ProgressStep, 64)
	da.OnBuildProgress(func(ev container.BuildProgressEvent) {
		steps <- buildProgressStep(ev)
	})
	defer da.OnBuildProgress(nil)

	errCh := make(chan error, 1)
	go func() {
		errCh <- da.BuildImage(ctx, dockerfile)
		close(steps)
	}()

	display := tui.RunProgress(ios, "auto", tui.ProgressDisplayConfig{
		Title:          "Building image",
		Subtitle:       cfg.Image,
		CompletionVerb: "Built",
	}, steps)

	if err := <-errCh; err != nil {
		return fmt.Errorf("run: building image: %w", err)
	}
	if display.Err != nil {
		return fmt.Errorf("run: rendering build progress: %w", display.Err)
	}
	return nil
}

// printFailureReport renders the terminal non-success report: the last
// analyzer text, the final installer script path, every failing command
// with its exit code, and the final state snapshot path.
func printFailureReport(ios *iostreams.IOStreams, result orchestrator.Result, installerPath string) {
	cs := ios.ColorScheme()
	s := result.State
	if s == nil {
		return
	}

	if s.ErrorAnalysis != "" {
		fmt.Fprintf(ios.Out, "\n%s %s\n", cs.Bold("Last analysis:"), s.ErrorAnalysis)
	}
	fmt.Fprintf(ios.Out, "%s %s\n", cs.Bold("Installer script:"), installerPath)

	tp := ios.NewTablePrinter("ROUND", "COMMAND", "EXIT")
	for _, e := range s.InstallerHistory {
		if e.Result.ExitCode != 0 {
			tp.AddRow(e.Tag.String(), e.Command.Invocation, strconv.Itoa(e.Result.ExitCode))
		}
	}
	for _, e := range s.TestHistory {
		if e.Result.ExitCode != 0 {
			tp.AddRow(e.Tag.String(), e.Command.Invocation, strconv.Itoa(e.Result.ExitCode))
		}
	}
	if tp.Len() > 0 {
		fmt.Fprintf(ios.Out, "%s\n", cs.Bold("Failing commands:"))
		if err := tp.Render(); err != nil {
			fmt.Fprintf(ios.ErrOut, "failed to render failing-command table: %v\n", err)
		}
	}

	if result.SnapshotPath != "" {
		fmt.Fprintf(ios.Out, "%s %s\n", cs.Bold("State snapshot:"), result.SnapshotPath)
	}
}

// buildProgressStep maps a container build event onto the progress
// display's step vocabulary.
func buildProgressStep(ev container.BuildProgressEvent) tui.ProgressStep {
	step := tui.ProgressStep{
		ID:      ev.StepID,
		Name:    ev.StepName,
		LogLine: ev.LogLine,
	}
	switch ev.Status {
	case container.BuildStepComplete:
		step.Status = tui.StepComplete
	case container.BuildStepError:
		step.Status = tui.StepError
		step.Error = ev.LogLine
	default:
		step.Status = tui.StepRunning
	}
	return step
}
