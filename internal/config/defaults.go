package config

// DefaultConfig returns the recommended defaults.
func DefaultConfig() Config {
	return Config{
		Mode:          "exec",
		PatchStrategy: "single_command",
		Budget: BudgetConfig{
			GlobalTicks:   200,
			RewriteRounds: 10,
			TestRounds:    20,
		},
		Timeout: TimeoutConfig{
			DefaultSecs: 120,
			TestSecs:    1800,
		},
		HistoryWindow:       3,
		StdoutTruncateChars: 1500,
		BindMount:           false,
		Image:               "ubuntu:24.04",
		Buildkit:            false,
		InstallerScriptPath: "envrepair_setup.sh",
		InstallerScriptBody: "",
		TestCatalogPath:     "",
		LLM: LLMConfig{
			Endpoint: "http://localhost:8080",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// DefaultConfigYAML is the scaffolded envrepair.yaml, documenting every key
// DefaultConfig sets.
const DefaultConfigYAML = `# envrepair configuration
# Documentation: see the Configuration keys section of the design docs.

mode: "exec" # exec | import_scan
patch_strategy: "single_command" # single_command | rewrite_full

budget:
  global_ticks: 200
  rewrite_rounds: 10
  test_rounds: 20

timeout:
  default_secs: 120
  test_secs: 1800

history_window: 3
stdout_truncate_chars: 1500
bind_mount: false

image: "ubuntu:24.04"
buildkit: false # solve the image through the daemon's embedded buildkitd instead of the legacy builder

container:
  memory: "" # e.g. "2g"; empty means unlimited
  platform: "" # e.g. "linux/amd64"; empty lets the daemon pick
installer_script_path: "envrepair_setup.sh"
# installer_script_body: "" # host path to the cold-generation stage's installer script source
# test_catalog_path: "" # host path to the cold-generation stage's test-catalog JSON

llm:
  endpoint: "http://localhost:8080"
  # API key is never stored here — see internal/credentials.Resolver.

retrieval:
  enabled: false
  endpoint: ""

log:
  level: "info"
  # file: "" # defaults to stderr when empty
`
