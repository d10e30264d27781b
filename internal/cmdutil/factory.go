package cmdutil

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/docker/go-units"

	"github.com/schmitthub/envrepair/internal/config"
	"github.com/schmitthub/envrepair/internal/container"
	"github.com/schmitthub/envrepair/internal/credentials"
	"github.com/schmitthub/envrepair/internal/iostreams"
	"github.com/schmitthub/envrepair/internal/llm"
	"github.com/schmitthub/envrepair/internal/logger"
	"github.com/schmitthub/envrepair/internal/project"
)

// Factory provides shared dependencies for the envrepair CLI. It uses lazy
// initialization for expensive resources (Docker engine connection, log
// file handles) the same way a cobra-based CLI's Factory typically does, narrowed to the
// single-run collaborators this CLI needs instead of a multi-project
// registry.
type Factory struct {
	// WorkDir is the repository to repair; defaults to the process cwd.
	WorkDir string
	// ConfigPath is an explicit --config flag value; when empty, Config()
	// looks for "envrepair.yaml" under WorkDir.
	ConfigPath string
	Debug      bool

	Version string
	Commit  string

	IOStreams *iostreams.IOStreams

	configOnce sync.Once
	configData config.Config
	configErr  error

	loggerOnce    sync.Once
	loggerFactory *logger.Factory
	loggerErr     error

	repoOnce sync.Once
	repo     *project.Repo
	repoErr  error

	credentialsOnce sync.Once
	credentialsRes  *credentials.Resolver

	adapterOnce sync.Once
	adapter     *container.DockerAdapter
	adapterErr  error

	llmOnce   sync.Once
	llmClient *llm.Client
	llmErr    error
}

// New creates a Factory with the given version information.
func New(version, commit string) *Factory {
	ios := iostreams.NewIOStreams()
	if !ios.IsOutputTTY() {
		ios.SetColorEnabled(false)
	}
	if os.Getenv("CI") != "" {
		ios.SetNeverPrompt(true)
	}

	wd, err := os.Getwd()
	if err != nil {
		wd = "."
	}

	return &Factory{
		Version:   version,
		Commit:    commit,
		WorkDir:   wd,
		IOStreams: ios,
	}
}

// Config returns the loaded configuration (loads on first call).
func (f *Factory) Config() (config.Config, error) {
	f.configOnce.Do(func() {
		path := f.ConfigPath
		if path == "" {
			path = filepath.Join(f.WorkDir, "envrepair.yaml")
		}
		f.configData, f.configErr = config.Load(path)
	})
	return f.configData, f.configErr
}

// ResetConfig clears the cached configuration, forcing a reload.
func (f *Factory) ResetConfig() {
	f.configOnce = sync.Once{}
	f.configData = config.Config{}
	f.configErr = nil
}

// Logger returns the run's component-scoped logger factory (lazily
// initialized). The orchestrator scopes its own zerolog.Logger from it via
// Factory.For; the business-logic packages (repair, analyzer, planner,
// verifier) take no logger and never use the package-level
// internal/logger.Log global.
func (f *Factory) Logger() (*logger.Factory, error) {
	f.loggerOnce.Do(func() {
		if _, err := f.Config(); err != nil {
			f.loggerErr = fmt.Errorf("cmdutil: loading config for logger: %w", err)
			return
		}
		logsDir := filepath.Join(f.WorkDir, ".envrepair", "logs")
		f.loggerFactory, f.loggerErr = logger.NewFactory(&logger.Options{
			LogsDir:    logsDir,
			FileConfig: &logger.LoggingConfig{},
		})
	})
	return f.loggerFactory, f.loggerErr
}

// Repo returns read-only git HEAD info for WorkDir (lazily initialized).
func (f *Factory) Repo() (*project.Repo, error) {
	f.repoOnce.Do(func() {
		f.repo, f.repoErr = project.Open(f.WorkDir)
	})
	return f.repo, f.repoErr
}

// Credentials returns the LLM API key resolver (lazily initialized).
func (f *Factory) Credentials() *credentials.Resolver {
	f.credentialsOnce.Do(func() {
		f.credentialsRes = credentials.NewResolver(filepath.Join(f.WorkDir, ".env"))
	})
	return f.credentialsRes
}

// Adapter returns the Docker-backed container.Adapter (lazily initialized;
// connects to the daemon on first call).
func (f *Factory) Adapter(ctx context.Context) (*container.DockerAdapter, error) {
	f.adapterOnce.Do(func() {
		cfg, err := f.Config()
		if err != nil {
			f.adapterErr = fmt.Errorf("cmdutil: loading config for adapter: %w", err)
			return
		}
		opts := container.Options{
			ImageTag:       cfg.Image,
			HostProjectDir: f.WorkDir,
			Platform:       cfg.Container.Platform,
		}
		if cfg.Container.Memory != "" {
			memBytes, err := units.RAMInBytes(cfg.Container.Memory)
			if err != nil {
				f.adapterErr = fmt.Errorf("cmdutil: parsing container.memory %q: %w", cfg.Container.Memory, err)
				return
			}
			opts.MemoryBytes = memBytes
		}
		f.adapter, f.adapterErr = container.NewDockerAdapter(ctx, opts)
	})
	return f.adapter, f.adapterErr
}

// LLM returns the default HTTP-backed analyzer.Collaborator (lazily
// initialized; resolves the API key via Credentials().Resolve).
func (f *Factory) LLM() (*llm.Client, error) {
	f.llmOnce.Do(func() {
		cfg, err := f.Config()
		if err != nil {
			f.llmErr = fmt.Errorf("cmdutil: loading config for llm client: %w", err)
			return
		}
		key, err := f.Credentials().Resolve()
		if err != nil {
			f.llmErr = err
			return
		}
		f.llmClient = llm.NewClient(cfg.LLM.Endpoint, key)
	})
	return f.llmClient, f.llmErr
}
