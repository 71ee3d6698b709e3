package cmd

import (
	"fmt"

	"github.com/chainaudit/chainaudit/pkg/app/vars"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", vars.Name, vars.Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
