package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/titanics/rxpse/pkg/config"
)

var (
	configPath string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "rxpse",
	Short: "rxpse - RXP accelerator pattern toolkit",
	Long: `rxpse manages pattern sets for the RXP regex accelerator.
It generates and compiles rule definition files, and can scan files against
a pattern set using the software device when no hardware is present.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")

	rootCmd.AddCommand(compileCmd)
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadConfig resolves the engine configuration from --config or defaults.
func loadConfig() (config.Config, error) {
	if configPath == "" {
		return config.Default(), nil
	}
	return config.Load(configPath)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
