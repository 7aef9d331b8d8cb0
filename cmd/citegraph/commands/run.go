package commands

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/citegraph/config"
	"github.com/teranos/citegraph/display"
	"github.com/teranos/citegraph/errors"
	"github.com/teranos/citegraph/logger"
	"github.com/teranos/citegraph/pipeline"
	"github.com/teranos/citegraph/sym"
)

// RunCmd represents the run command
var RunCmd = &cobra.Command{
	Use:   "run",
	Short: sym.Run + " Execute the pipeline",
	Long: sym.Run + ` run — Execute the staged load pipeline

Runs every catalog stage in ordinal order: extract from the relational
source, merge into the property graph, verify. Merges are idempotent:
re-running converges instead of duplicating.

Exit status is non-zero only when the run aborts; a run that completes with
warnings exits zero and prints them.

Examples:
  citegraph run                       # Full pipeline
  citegraph run --stage authored      # One stage (resumption/debugging)
  citegraph run --catalog ./my.yaml   # Alternate catalog (path or URL)
  citegraph run --dry-run             # Preflight only, no loading
  citegraph run --json                # Emit the run record as JSON`,
	RunE: runPipeline,
}

var (
	runStageFlag   string
	runCatalogFlag string
	runDryRunFlag  bool
)

func init() {
	RunCmd.Flags().StringVar(&runStageFlag, "stage", "", "Run a single stage by id")
	RunCmd.Flags().StringVar(&runCatalogFlag, "catalog", "", "Catalog path or URL (default: configured or embedded)")
	RunCmd.Flags().BoolVar(&runDryRunFlag, "dry-run", false, "Preflight checks only, load nothing")
	RunCmd.Flags().Bool("json", false, "Output the run record as JSON")
}

func runPipeline(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load configuration")
	}

	catalogRef := runCatalogFlag
	if catalogRef == "" {
		catalogRef = cfg.Pipeline.Catalog
	}
	catalog, err := pipeline.LoadCatalog(catalogRef, logger.Logger)
	if err != nil {
		return err
	}

	executor, sourceConn, err := openSource(cfg)
	if err != nil {
		return err
	}
	defer sourceConn.Close()

	store, graphConn, err := openGraph(cfg)
	if err != nil {
		return err
	}
	defer graphConn.Close()

	rc := pipeline.NewRunContext(executor, store, catalog, cfg, logger.Logger)

	if watcher := setupConfigWatcher(rc); watcher != nil {
		defer watcher.Stop()
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if runDryRunFlag {
		if err := rc.Preflight(ctx); err != nil {
			return err
		}
		pterm.Success.Printf("Preflight passed: %d stages ready\n", len(catalog.Stages))
		return nil
	}

	var record *pipeline.RunRecord
	var runErr error
	if runStageFlag != "" {
		record, runErr = rc.RunStage(ctx, runStageFlag)
	} else {
		record, runErr = rc.Run(ctx)
	}

	if display.ShouldOutputJSON(cmd) {
		if err := display.OutputJSON(record); err != nil {
			return err
		}
		return runErr
	}

	renderRunRecord(record)
	return runErr
}

// setupConfigWatcher watches the active config file for the duration of a
// run so load tuning (chunk size, failure rate, throttle) edited mid-run
// applies to the remaining stages. Citation-scale stages run for hours;
// retuning the throttle must not cost a restart.
func setupConfigWatcher(rc *pipeline.RunContext) *config.ConfigWatcher {
	configPath := config.ActiveConfigFile()
	if configPath == "" {
		logger.Debugw("No config file in use, live reload disabled")
		return nil
	}

	watcher, err := config.NewConfigWatcher(configPath)
	if err != nil {
		logger.Warnw("Failed to create config watcher, config changes need a rerun",
			"error", err)
		return nil
	}

	// Global so config set during a run doesn't trigger a reload loop.
	config.SetGlobalWatcher(watcher)

	watcher.OnReload(func(newCfg *config.Config) error {
		logger.Infow("Config reloaded, load tuning applies from the next stage",
			"chunk_size", newCfg.GetChunkSize(),
			"failure_rate_limit", newCfg.GetFailureRateLimit(),
			"throttle_chunks_per_second", newCfg.Load.ThrottleChunksPerSecond)
		rc.ApplyLoadTuning(newCfg.Load)
		return nil
	})
	watcher.Start()

	return watcher
}

func renderRunRecord(record *pipeline.RunRecord) {
	for _, s := range record.Stages {
		mark := sym.StatusSymbol(string(s.Status))
		pterm.Printf("%s %2d. %-16s %-10s rows %d/%d  chunks %d  %s\n",
			mark, s.Ordinal, s.StageID, s.Status,
			s.RowsSucceeded, s.RowsAttempted, s.Chunks, s.Elapsed.Round(time.Millisecond))
	}

	switch record.Status {
	case pipeline.RunStatusCompleted:
		pterm.Success.Printf("Run %s completed\n", record.RunID)
	case pipeline.RunStatusCompletedWithWarnings:
		pterm.Warning.Printf("Run %s completed with %d warnings\n", record.RunID, len(record.Warnings))
		for _, w := range record.Warnings {
			pterm.Printf("  %s %s\n", sym.Warn, w)
		}
	case pipeline.RunStatusAborted:
		pterm.Error.Printf("Run %s aborted\n", record.RunID)
		for _, w := range record.Warnings {
			pterm.Printf("  %s %s\n", sym.Fail, w)
		}
	}

	if record.Health != nil {
		record.Health.Render()
	}

	fmt.Println()
	pterm.Printf("Report: %s\n", record.ReportFileName())
}
