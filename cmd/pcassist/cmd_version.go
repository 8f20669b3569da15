package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/AaronLay10/pcassist/internal/version"
)

func init() {
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), "pcassist", version.Version)
	},
}
