// Command harmonix drives a harmony-format session execution engine: it
// registers scripts, starts and steps sessions through them, and reports on
// session status and history.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	if err := buildRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:           "harmonix",
		Short:         "Run and inspect harmony-format session scripts",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	cmd.PersistentFlags().StringVar(&configPath, "config", "", "path to harmonix.yaml (defaults to ./harmonix.yaml)")

	cmd.AddCommand(
		buildRegisterCmd(&configPath),
		buildStartCmd(&configPath),
		buildExecuteCmd(&configPath),
		buildStatusCmd(&configPath),
		buildHistoryCmd(&configPath),
		buildListCmd(&configPath),
		buildDeleteCmd(&configPath),
		buildDoctorCmd(&configPath),
	)
	return cmd
}
