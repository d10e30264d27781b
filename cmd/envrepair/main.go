// Command envrepair builds a container environment for a target repository
// and iteratively repairs it until its installer script and test catalog
// both pass. See internal/cmd/root for the command tree.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/schmitthub/envrepair/internal/cmd/root"
	"github.com/schmitthub/envrepair/internal/cmdutil"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	f := cmdutil.New(version, commit)
	rootCmd := root.NewCmdRoot(f)

	if _, err := rootCmd.ExecuteC(); err != nil {
		var exitErr *cmdutil.ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.Code)
		}

		fmt.Fprintf(f.IOStreams.ErrOut, "Error: %s\n", err)
		os.Exit(1)
	}
}
