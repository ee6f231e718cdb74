package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

var noColor bool

var rootCmd = &cobra.Command{
	Use:   "botforge",
	Short: "botforge — build chatbot agents, feed them knowledge, and talk to them",
	Long: `botforge manages chatbot agents backed by a remote assistant provider.

Feed an agent text, files, Q&A pairs or whole websites; botforge keeps the
agent's retrieval index and remote assistant in sync and answers questions
over the ingested knowledge.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	Version:       version,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")

	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(agentsCmd)
	rootCmd.AddCommand(sourcesCmd)
	rootCmd.AddCommand(crawlCmd)
	rootCmd.AddCommand(retrainCmd)
	rootCmd.AddCommand(fixMissingCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
