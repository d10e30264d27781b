// Package root assembles envrepair's command tree: a single run command
// behind shared --debug/--workdir/--config persistent flags, with the
// logger resolved lazily through the command Factory rather than a
// package-global initializer.
package root

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/schmitthub/envrepair/internal/cmd/run"
	"github.com/schmitthub/envrepair/internal/cmdutil"
)

// NewCmdRoot creates the root command for the envrepair CLI.
func NewCmdRoot(f *cmdutil.Factory) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "envrepair",
		Short: "Build and iteratively repair a runnable environment for a repository",
		Long: `envrepair builds a container image for a target repository, runs its
installer script, and drives a bounded execute -> check -> analyze -> patch
loop until the installer and test catalog both pass, or the configured
budget runs out.

  envrepair run --installer ./setup.sh --catalog ./catalog.json`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if f.WorkDir == "" {
				var err error
				f.WorkDir, err = os.Getwd()
				if err != nil {
					return fmt.Errorf("failed to get working directory: %w", err)
				}
			}

			logs, err := f.Logger()
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			rootLog := logs.For("root")
			rootLog.Debug().
				Str("version", f.Version).
				Str("workdir", f.WorkDir).
				Bool("debug", f.Debug).
				Msg("envrepair starting")

			return nil
		},
		Version: f.Version,
	}

	cmd.PersistentFlags().BoolVarP(&f.Debug, "debug", "D", false, "Enable debug logging")
	cmd.PersistentFlags().StringVarP(&f.WorkDir, "workdir", "w", "", "Repository to repair (default: current directory)")
	cmd.PersistentFlags().StringVarP(&f.ConfigPath, "config", "c", "", "Path to envrepair.yaml (default: <workdir>/envrepair.yaml)")

	cmd.SetVersionTemplate(fmt.Sprintf("envrepair %s (commit: %s)\n", f.Version, f.Commit))

	cmd.AddCommand(run.NewCmdRun(f, nil))

	return cmd
}
