package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rickchristie/sqlgate/internal/meta"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the sqlgate version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "sqlgate %s\n", meta.Version)
	},
}
