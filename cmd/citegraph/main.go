package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/teranos/citegraph/cmd/citegraph/commands"
	"github.com/teranos/citegraph/logger"
)

var rootCmd = &cobra.Command{
	Use:   "citegraph",
	Short: "citegraph - staged bibliographic ETL into a property graph",
	Long: `citegraph - Staged, idempotent ETL for bibliographic corpora.

Moves a relational bibliographic source into flat CSV extractions and a
SQLite property graph, through a catalog of dependency-ordered, re-runnable
load stages.

Available commands:
  run     - Execute the pipeline (or one stage)
  extract - Write per-stage CSV extractions
  verify  - Health report against the current graph
  stages  - List and validate the stage catalog
  runs    - Show persisted run records
  db      - Graph database operations
  config  - Configuration management

Examples:
  citegraph run                     # Full pipeline with the configured catalog
  citegraph run --stage works       # One stage only
  citegraph run --dry-run           # Preflight without loading
  citegraph extract                 # CSV extraction + summary
  citegraph stages --watch          # Revalidate the catalog on change`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		verbosity, _ := cmd.Flags().GetCount("verbose")
		jsonOutput, _ := cmd.Flags().GetBool("json")

		if jsonOutput {
			if err := logger.Initialize(true); err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			return nil
		}
		if err := logger.InitializeAtLevel(logger.VerbosityToLevel(verbosity)); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().CountP("verbose", "v", "Increase output verbosity (repeat for more detail: -v, -vv, -vvv)")
	rootCmd.PersistentFlags().Bool("json", false, "Machine-readable JSON output")

	rootCmd.AddCommand(commands.RunCmd)
	rootCmd.AddCommand(commands.ExtractCmd)
	rootCmd.AddCommand(commands.VerifyCmd)
	rootCmd.AddCommand(commands.StagesCmd)
	rootCmd.AddCommand(commands.RunsCmd)
	rootCmd.AddCommand(commands.DbCmd)
	rootCmd.AddCommand(commands.ConfigCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	defer logger.Cleanup()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
