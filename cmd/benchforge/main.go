package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string
	rootCmd    = &cobra.Command{
		Use:   "benchforge",
		Short: "Benchforge - benchmark task collection pipeline",
		Long: `Benchforge harvests merged pull requests from GitHub repositories,
filters them into benchmark task instances (issue + fix patch + test patch),
and grades each candidate with an LLM judge to decide whether it is suitable
for benchmark inclusion.`,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
