// Package config loads envrepair's run configuration (the
// enumerated configuration keys) from a project-local envrepair.yaml plus
// ENVREPAIR_* environment overrides. Narrowed from a multi-project
// multi-scope Project/Settings/Registry config system (internal/config/
// schema.go, load.go, write.go) down to the single flat Config this tool
// needs — one run, one repository, no project registry.
package config

import "time"

// Config is the root of envrepair.yaml: the "Configuration keys
// (enumerated)" plus the ambient LLM/retrieval/log settings a full run needs.
type Config struct {
	Mode          string `yaml:"mode" mapstructure:"mode"`
	PatchStrategy string `yaml:"patch_strategy" mapstructure:"patch_strategy"`

	Budget  BudgetConfig  `yaml:"budget" mapstructure:"budget"`
	Timeout TimeoutConfig `yaml:"timeout" mapstructure:"timeout"`

	HistoryWindow       int  `yaml:"history_window" mapstructure:"history_window"`
	StdoutTruncateChars int  `yaml:"stdout_truncate_chars" mapstructure:"stdout_truncate_chars"`
	BindMount           bool `yaml:"bind_mount" mapstructure:"bind_mount"`

	Image               string `yaml:"image" mapstructure:"image"`
	Buildkit            bool   `yaml:"buildkit" mapstructure:"buildkit"`

	Container ContainerConfig `yaml:"container" mapstructure:"container"`
	InstallerScriptPath string `yaml:"installer_script_path" mapstructure:"installer_script_path"`

	// InstallerScriptBody is the host path of the prior-generated installer
	// script's source file (the handoff from the
	// non-core cold-generation stage). InstallerScriptPath is where that
	// body is re-homed inside ScriptStore/the container.
	InstallerScriptBody string `yaml:"installer_script_body" mapstructure:"installer_script_body"`

	// TestCatalogPath is the host path of the initial test-command catalog
	// JSON handed off by the same cold-generation stage: an object keyed by
	// level name ("build", "1", "2", "3", "4") to an array of command strings.
	TestCatalogPath string `yaml:"test_catalog_path" mapstructure:"test_catalog_path"`

	LLM       LLMConfig       `yaml:"llm" mapstructure:"llm"`
	Retrieval RetrievalConfig `yaml:"retrieval" mapstructure:"retrieval"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// BudgetConfig is state.Budget's initial value: 200/10/20.
type BudgetConfig struct {
	GlobalTicks   int `yaml:"global_ticks" mapstructure:"global_ticks"`
	RewriteRounds int `yaml:"rewrite_rounds" mapstructure:"rewrite_rounds"`
	TestRounds    int `yaml:"test_rounds" mapstructure:"test_rounds"`
}

// TimeoutConfig bounds ContainerAdapter.Exec calls: DefaultSecs for short
// one-liner commands, TestSecs for installer scripts and test suites.
type TimeoutConfig struct {
	DefaultSecs int `yaml:"default_secs" mapstructure:"default_secs"`
	TestSecs    int `yaml:"test_secs" mapstructure:"test_secs"`
}

func (t TimeoutConfig) Default() time.Duration {
	return time.Duration(t.DefaultSecs) * time.Second
}

func (t TimeoutConfig) Test() time.Duration {
	return time.Duration(t.TestSecs) * time.Second
}

// ContainerConfig bounds the verification container itself.
type ContainerConfig struct {
	// Memory is a human-readable cap like "2g" or "512m"; empty means
	// unlimited.
	Memory string `yaml:"memory" mapstructure:"memory"`
	// Platform pins "os/arch" (e.g. "linux/amd64"); empty lets the daemon
	// pick.
	Platform string `yaml:"platform" mapstructure:"platform"`
}

// LLMConfig points at the default HTTP-backed analyzer collaborator
// (internal/llm.Client). The API key is never stored here — it is
// resolved at startup via internal/credentials.Resolver.
type LLMConfig struct {
	Endpoint string `yaml:"endpoint" mapstructure:"endpoint"`
}

// RetrievalConfig is the optional web-search collaborator.
type RetrievalConfig struct {
	Enabled  bool   `yaml:"enabled" mapstructure:"enabled"`
	Endpoint string `yaml:"endpoint" mapstructure:"endpoint"`
}

// LogConfig drives internal/logger's zerolog factory.
type LogConfig struct {
	Level string `yaml:"level" mapstructure:"level"`
	File  string `yaml:"file,omitempty" mapstructure:"file"`
}
