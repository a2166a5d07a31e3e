package cmd

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprint(cmd.OutOrStdout(), versionString())
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

func versionString() string {
	return fmt.Sprintf("renderstack %s\n  commit:  %s\n  built:   %s\n  go:      %s\n",
		versionInfo.Version, versionInfo.Commit, versionInfo.BuildDate, runtime.Version())
}
