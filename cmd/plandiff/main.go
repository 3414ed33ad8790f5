package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "plandiff",
	Short: "Inspect venture plan documents from the command line",
	Long: `plandiff compares business-plan snapshots the same way the server does
and mints development tokens for calling the API.`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
