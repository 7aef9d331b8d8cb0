package commands

import (
	"github.com/spf13/cobra"

	"github.com/teranos/citegraph/config"
	"github.com/teranos/citegraph/display"
	"github.com/teranos/citegraph/errors"
	"github.com/teranos/citegraph/logger"
	"github.com/teranos/citegraph/pipeline"
	"github.com/teranos/citegraph/sym"
	"github.com/teranos/citegraph/verify"
)

// VerifyCmd represents the verify command
var VerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: sym.Verify + " Health report against the current graph",
	Long: sym.Verify + ` verify — Graph health report

Reads the graph back and reports node/relationship counts, connectivity
ratios, quality predicates and top-N listings from the catalog's health
section. Read-only; never mutates the graph.

Examples:
  citegraph verify
  citegraph verify --json`,
	RunE: runVerify,
}

func init() {
	VerifyCmd.Flags().Bool("json", false, "Output the health report as JSON")
}

func runVerify(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load configuration")
	}

	catalog, err := pipeline.LoadCatalog(cfg.Pipeline.Catalog, logger.Logger)
	if err != nil {
		return err
	}

	store, graphConn, err := openGraph(cfg)
	if err != nil {
		return err
	}
	defer graphConn.Close()

	verifier := verify.NewGraphVerifier(store, logger.Logger)
	report, err := verifier.BuildReport(cmd.Context(), catalog.Health)
	if err != nil {
		return err
	}

	if display.ShouldOutputJSON(cmd) {
		return display.OutputJSON(report)
	}

	report.Render()
	return nil
}
