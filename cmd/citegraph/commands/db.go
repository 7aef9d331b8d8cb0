package commands

import (
	"database/sql"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/teranos/citegraph/config"
	"github.com/teranos/citegraph/display"
	"github.com/teranos/citegraph/errors"
	"github.com/teranos/citegraph/sym"
)

// DbCmd represents the db (database) command
var DbCmd = &cobra.Command{
	Use:   "db",
	Short: sym.DB + " Manage the graph database",
	Long: sym.DB + ` db — Graph database operations

Inspect the graph database: node and relationship counts by label
and type, plus recorded run history totals.

Examples:
  citegraph db stats              # Show graph statistics
  citegraph db stats --json       # Machine-readable statistics`,
}

var dbStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show graph database statistics",
	Long:  "Display node counts per label, relationship counts per type, and run history totals",
	RunE:  runDbStats,
}

func init() {
	DbCmd.AddCommand(dbStatsCmd)
	dbStatsCmd.Flags().Bool("json", false, "Output statistics as JSON")
}

type dbStats struct {
	Path          string           `json:"path"`
	Nodes         map[string]int64 `json:"nodes"`
	Relationships map[string]int64 `json:"relationships"`
	Runs          int64            `json:"runs"`
}

func runDbStats(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load configuration")
	}

	store, graphDB, err := openGraph(cfg)
	if err != nil {
		return err
	}
	defer graphDB.Close()

	ctx := cmd.Context()

	stats := dbStats{Path: cfg.GetGraphPath()}
	if stats.Nodes, err = store.LabelCounts(ctx); err != nil {
		return errors.Wrap(err, "failed to query node counts")
	}
	if stats.Relationships, err = store.RelTypeCounts(ctx); err != nil {
		return errors.Wrap(err, "failed to query relationship counts")
	}
	err = graphDB.QueryRowContext(ctx, `SELECT COUNT(*) FROM runs`).Scan(&stats.Runs)
	if err != nil && err != sql.ErrNoRows {
		return errors.Wrap(err, "failed to query run count")
	}

	if display.ShouldOutputJSON(cmd) {
		return display.OutputJSON(stats)
	}

	var totalNodes, totalRels int64
	for _, n := range stats.Nodes {
		totalNodes += n
	}
	for _, n := range stats.Relationships {
		totalRels += n
	}

	fmt.Printf("%s Graph Statistics\n", sym.DB)
	fmt.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")
	fmt.Printf("Database Path: %s\n", stats.Path)
	fmt.Printf("Nodes:         %d\n", totalNodes)
	fmt.Printf("Relationships: %d\n", totalRels)
	fmt.Printf("Recorded Runs: %d\n", stats.Runs)
	fmt.Println()

	fmt.Printf("Nodes by label:\n")
	for _, label := range sortedStatKeys(stats.Nodes) {
		fmt.Printf("  %-16s %d\n", label, stats.Nodes[label])
	}
	fmt.Println()

	fmt.Printf("Relationships by type:\n")
	for _, relType := range sortedStatKeys(stats.Relationships) {
		fmt.Printf("  %-16s %d\n", relType, stats.Relationships[relType])
	}

	return nil
}

func sortedStatKeys(m map[string]int64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
