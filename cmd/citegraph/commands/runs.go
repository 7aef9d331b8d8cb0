package commands

import (
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/citegraph/config"
	"github.com/teranos/citegraph/display"
	"github.com/teranos/citegraph/errors"
	"github.com/teranos/citegraph/pipeline"
	"github.com/teranos/citegraph/sym"
)

// RunsCmd represents the runs command
var RunsCmd = &cobra.Command{
	Use:   "runs",
	Short: sym.Run + " List recent pipeline runs",
	Long: sym.Run + ` runs — Run history

Shows recent pipeline runs recorded in the graph database, newest first.

Examples:
  citegraph runs
  citegraph runs --limit 50
  citegraph runs --json`,
	RunE: runRuns,
}

var runsLimitFlag int

func init() {
	RunsCmd.Flags().IntVar(&runsLimitFlag, "limit", 20, "Maximum number of runs to show")
	RunsCmd.Flags().Bool("json", false, "Output run history as JSON")
}

func runRuns(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load configuration")
	}

	store, graphDB, err := openGraph(cfg)
	if err != nil {
		return err
	}
	defer graphDB.Close()

	runs, err := pipeline.ListRuns(store, runsLimitFlag)
	if err != nil {
		return err
	}

	if display.ShouldOutputJSON(cmd) {
		return display.OutputJSON(runs)
	}

	if len(runs) == 0 {
		pterm.Info.Println("No runs recorded yet")
		return nil
	}

	data := pterm.TableData{{"", "Run", "Status", "Started", "Ended", "Warn"}}
	for _, r := range runs {
		data = append(data, []string{
			sym.StatusSymbol(r.Status),
			r.RunID,
			r.Status,
			r.StartedAt,
			r.EndedAt,
			pterm.Sprintf("%d", r.Warnings),
		})
	}
	pterm.DefaultTable.WithHasHeader().WithData(data).Render()
	return nil
}
