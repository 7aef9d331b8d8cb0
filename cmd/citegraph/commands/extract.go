package commands

import (
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/citegraph/config"
	"github.com/teranos/citegraph/display"
	"github.com/teranos/citegraph/errors"
	"github.com/teranos/citegraph/extract"
	"github.com/teranos/citegraph/logger"
	"github.com/teranos/citegraph/pipeline"
	"github.com/teranos/citegraph/sym"
)

// ExtractCmd represents the extract command
var ExtractCmd = &cobra.Command{
	Use:   "extract",
	Short: sym.Extract + " Write per-stage CSV extractions",
	Long: sym.Extract + ` extract — Flat-file extraction

Runs each catalog stage's extraction against the relational source and
writes the primary result to <ordinal>_<id>.csv, with xxh3 checksums
recorded in EXTRACTION_SUMMARY.txt.

Examples:
  citegraph extract                 # Into the configured output directory
  citegraph extract --out ./dump    # Elsewhere`,
	RunE: runExtract,
}

var extractOutFlag string

func init() {
	ExtractCmd.Flags().StringVar(&extractOutFlag, "out", "", "Output directory (default: configured extract.output_dir)")
	ExtractCmd.Flags().Bool("json", false, "Output the extraction result as JSON")
}

func runExtract(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load configuration")
	}

	catalog, err := pipeline.LoadCatalog(cfg.Pipeline.Catalog, logger.Logger)
	if err != nil {
		return err
	}

	executor, sourceConn, err := openSource(cfg)
	if err != nil {
		return err
	}
	defer sourceConn.Close()

	outDir := extractOutFlag
	if outDir == "" {
		outDir = cfg.Extract.OutputDir
	}

	exporter := extract.NewExporter(executor, outDir, cfg.Pipeline.ScriptsDir, logger.Logger)
	result, runErr := exporter.Run(cmd.Context(), catalog)

	if display.ShouldOutputJSON(cmd) {
		if err := display.OutputJSON(result); err != nil {
			return err
		}
		return runErr
	}

	for _, s := range result.Steps {
		if s.Err != "" {
			pterm.Printf("%s %-20s %s\n", sym.Fail, s.StageID, s.Err)
			continue
		}
		pterm.Printf("%s %-20s %-24s %d rows  xxh3 %s\n", sym.Pass, s.StageID, s.File, s.Rows, s.Checksum)
	}

	if failed := result.FailedSteps(); failed > 0 {
		pterm.Warning.Printf("%d of %d steps failed\n", failed, len(result.Steps))
	} else {
		pterm.Success.Printf("%d extractions written to %s\n", len(result.Steps), outDir)
	}

	return runErr
}
