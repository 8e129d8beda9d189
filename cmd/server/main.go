package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const (
	configFlagName = "config"
	envFlagName    = "env-file"
)

var rootCmd = &cobra.Command{
	Use:          "engine",
	Short:        "Matching engine with envelope store",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := cmd.Flags().GetString(configFlagName)
		if err != nil {
			return err
		}
		envPath, err := cmd.Flags().GetString(envFlagName)
		if err != nil {
			return err
		}
		return run(cmd.Context(), path, envPath)
	},
}

func init() {
	rootCmd.Flags().String(configFlagName, "config.yaml", "Path to the YAML config file")
	rootCmd.Flags().String(envFlagName, "", "Optional .env file applied over the config")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
