package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"github.com/AaronLay10/pcassist/internal/config"
	"github.com/AaronLay10/pcassist/internal/events"
)

const defaultConfigPath = "pcassist.yaml"

var (
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:           "pcassist",
	Short:         "Perfect-clear assistant: watches a running game and overlays the next placement",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		events.SetOutput(os.Stdout, logLevel)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfigPath, "config file path")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "minimum event level written to stdout (debug, info, warning, error)")
}

// loadConfig reads the config file. A missing file at the default path
// means defaults; a missing file the user named is an error.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if errors.Is(err, fs.ErrNotExist) && !cmd.Flags().Changed("config") {
		return config.Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
