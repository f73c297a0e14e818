package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const defaultConfigPath = ".sqlgate/config.json"

var configPath string

var rootCmd = &cobra.Command{
	Use:           "sqlgate",
	Short:         "sqlgate: guarded SQL gateway",
	Long:          "sqlgate accepts SQL over HTTP, admits only allow-listed statements and runs them against one database.",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"Path to configuration file (default $SQLGATE_CONFIG_PATH or "+defaultConfigPath+")")
	rootCmd.AddCommand(serveCmd, configureCmd, doctorCmd, secretCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// resolveConfigPath picks --config, then SQLGATE_CONFIG_PATH, then the default.
func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	if p := os.Getenv("SQLGATE_CONFIG_PATH"); p != "" {
		return p
	}
	return defaultConfigPath
}
