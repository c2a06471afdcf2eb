package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/teranos/ldschema/cmd/ldschema/commands"
	"github.com/teranos/ldschema/logger"
)

var rootCmd = &cobra.Command{
	Use:   "ldschema",
	Short: "ldschema - structured-data validation, repair and review",
	Long: `ldschema - JSON-LD / schema.org structured-data pipeline.

Validates structured data against a catalog of schema.org types, repairs
invalid documents with a chat-completions service, scores the result and
parks doubtful output for human review.

Available commands:
  validate - Validate a JSON-LD document
  repair   - Repair a document or a content item's stored schema
  generate - Generate structured data for a content item
  inspect  - Fetch a live page and validate its JSON-LD
  review   - List, approve or discard results awaiting review
  history  - List, diff or restore schema versions
  stats    - Show validation health and completion usage
  cache    - Manage the result cache
  serve    - Start the HTTP API
  am       - Manage configuration

Examples:
  ldschema validate page.jsonld      # Validate a document
  ldschema repair --all              # Repair every content item
  ldschema review ls                 # Show the review queue
  ldschema serve                     # Start the HTTP API`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		verbosity, _ := cmd.Flags().GetCount("verbose")
		// The server logs JSON; everything else logs for humans on stderr
		jsonLogs := cmd.Name() == "serve"
		if jsonLogs && verbosity == 0 {
			verbosity = logger.VerbosityInfo
		}
		if err := logger.Initialize(jsonLogs, verbosity); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Cleanup()
	},
}

func init() {
	rootCmd.PersistentFlags().CountP("verbose", "v", "Increase output verbosity (repeat for more detail: -v, -vv, -vvv)")
	rootCmd.PersistentFlags().String("config", "", "Config file (default: am.toml found upward from the working directory)")
	rootCmd.PersistentFlags().String("actor", "cli", "User id recorded in schema history")

	rootCmd.AddCommand(commands.ValidateCmd)
	rootCmd.AddCommand(commands.RepairCmd)
	rootCmd.AddCommand(commands.GenerateCmd)
	rootCmd.AddCommand(commands.InspectCmd)
	rootCmd.AddCommand(commands.ReviewCmd)
	rootCmd.AddCommand(commands.HistoryCmd)
	rootCmd.AddCommand(commands.StatsCmd)
	rootCmd.AddCommand(commands.CacheCmd)
	rootCmd.AddCommand(commands.ServeCmd)
	rootCmd.AddCommand(commands.AmCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
