package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/citegraph/config"
	"github.com/teranos/citegraph/errors"
	"github.com/teranos/citegraph/graph"
	"github.com/teranos/citegraph/source"
	"github.com/teranos/citegraph/sym"
	"github.com/teranos/citegraph/verify"
)

// RunContext carries everything one run needs, explicitly. One source
// executor and one graph store, held for the run's lifetime; two concurrent
// runs against one target are unsupported.
type RunContext struct {
	RunID   string
	Source  *source.Executor
	Graph   *graph.Store
	Catalog *Catalog
	Config  *config.Config
	Logger  *zap.SugaredLogger

	// tuneMu guards Config.Load, which a config reload may replace while
	// a stage is running.
	tuneMu sync.Mutex
}

// NewRunContext assembles a run context with a fresh run ID.
func NewRunContext(src *source.Executor, store *graph.Store, catalog *Catalog, cfg *config.Config, logger *zap.SugaredLogger) *RunContext {
	return &RunContext{
		RunID:   NewRunID(),
		Source:  src,
		Graph:   store,
		Catalog: catalog,
		Config:  cfg,
		Logger:  logger,
	}
}

// ApplyLoadTuning replaces the load settings for stages that have not
// started yet. Loaders are built per stage, so the chunks of a running
// stage keep the settings they started with.
func (rc *RunContext) ApplyLoadTuning(load config.LoadConfig) {
	rc.tuneMu.Lock()
	defer rc.tuneMu.Unlock()
	rc.Config.Load = load
}

func (rc *RunContext) newLoader() *graph.Loader {
	rc.tuneMu.Lock()
	defer rc.tuneMu.Unlock()
	return graph.NewLoader(
		rc.Graph,
		rc.Config.GetChunkSize(),
		rc.Config.GetFailureRateLimit(),
		rc.Config.Load.ThrottleChunksPerSecond,
		rc.Logger,
	)
}

func (rc *RunContext) defaultStageTimeout() time.Duration {
	if rc.Catalog.Defaults.TimeoutSeconds > 0 {
		return time.Duration(rc.Catalog.Defaults.TimeoutSeconds) * time.Second
	}
	if rc.Config.Pipeline.DefaultStageTimeoutSeconds > 0 {
		return time.Duration(rc.Config.Pipeline.DefaultStageTimeoutSeconds) * time.Second
	}
	return 10 * time.Minute
}

// StageScript resolves a stage's statements against the configured scripts
// directory.
func (rc *RunContext) StageScript(stage *Stage) (*source.Script, error) {
	return stage.LoadScript(rc.Config.Pipeline.ScriptsDir)
}

// Preflight verifies the run can start: both stores reachable, catalog
// valid, every stage's source resolvable and its declared primary statement
// a query in range. Any failure aborts before a single stage runs.
func (rc *RunContext) Preflight(ctx context.Context) error {
	if err := rc.Source.Ping(ctx); err != nil {
		return err
	}
	if err := rc.Graph.Ping(ctx); err != nil {
		return err
	}
	if err := rc.Catalog.Validate(); err != nil {
		return err
	}

	for _, stage := range rc.Catalog.Stages {
		script, err := rc.StageScript(stage)
		if err != nil {
			return err
		}
		if len(script.Statements) == 0 {
			return errors.NewCatalogError("stage %q: source has no statements", stage.ID)
		}
		if p := stage.Source.PrimaryStatement; p > 0 {
			if p > len(script.Statements) {
				return errors.NewCatalogError(
					"stage %q: primary_statement %d out of range (%d statements)",
					stage.ID, p, len(script.Statements))
			}
			if script.Statements[p-1].Kind == source.KindCommand {
				return errors.NewCatalogError(
					"stage %q: primary_statement %d is a command, not a query", stage.ID, p)
			}
		}
	}

	rc.Logger.Infow("Preflight passed",
		"symbol", sym.Run,
		"run_id", rc.RunID,
		"stages", len(rc.Catalog.Stages))

	return nil
}

// Run executes the whole catalog in ordinal order. Stage N completes
// entirely, verification included, before stage N+1 starts. The first
// (foundational) stage failing aborts the run; later failures are warnings
// and the run continues. There is no automatic retry: merges are idempotent,
// the operator re-runs.
//
// A RunRecord is always produced and always persisted, aborted runs
// included.
func (rc *RunContext) Run(ctx context.Context) (*RunRecord, error) {
	record := &RunRecord{
		RunID:     rc.RunID,
		StartedAt: time.Now(),
		Status:    RunStatusRunning,
	}

	rc.Logger.Infow("Run started",
		"symbol", sym.Run,
		"run_id", rc.RunID)

	if err := rc.Preflight(ctx); err != nil {
		record.Status = RunStatusAborted
		record.Warnings = append(record.Warnings, fmt.Sprintf("preflight: %v", err))
		rc.finalize(record)
		return record, err
	}

	var abortErr error

	for _, stage := range rc.Catalog.Stages {
		if err := ctx.Err(); err != nil {
			// Interrupted: the target is valid and idempotently resumable.
			abortErr = errors.Wrap(err, "run interrupted")
			record.Warnings = append(record.Warnings, abortErr.Error())
			break
		}

		stageRec, err := rc.runStage(ctx, stage)
		record.Stages = append(record.Stages, stageRec)

		if err == nil {
			if n := len(stageRec.FailedMatches); n > 0 {
				record.Warnings = append(record.Warnings,
					fmt.Sprintf("stage %s: %d failed endpoint matches", stage.ID, n))
			}
			if n := len(stageRec.ChunkErrors); n > 0 {
				record.Warnings = append(record.Warnings,
					fmt.Sprintf("stage %s: %d chunks rolled back", stage.ID, n))
			}
		}

		if err != nil {
			if stage.Foundational(rc.Catalog) {
				abortErr = errors.Wrapf(err, "foundational stage %s failed", stage.ID)
				break
			}
			record.Warnings = append(record.Warnings,
				fmt.Sprintf("stage %s: %v", stage.ID, err))
			rc.Logger.Warnw("Stage failed, continuing",
				"symbol", sym.Stage,
				"stage_id", stage.ID,
				"error", err)
		}
	}

	if abortErr != nil {
		record.Status = RunStatusAborted
	} else {
		health, err := verify.NewGraphVerifier(rc.Graph, rc.Logger).BuildReport(ctx, rc.Catalog.Health)
		if err != nil {
			record.Warnings = append(record.Warnings, fmt.Sprintf("health report: %v", err))
		} else {
			record.Health = health
		}
		if len(record.Warnings) > 0 {
			record.Status = RunStatusCompletedWithWarnings
		} else {
			record.Status = RunStatusCompleted
		}
	}

	rc.finalize(record)

	rc.Logger.Infow("Run finished",
		"symbol", sym.Run,
		"run_id", rc.RunID,
		"status", record.Status,
		"warnings", len(record.Warnings))

	return record, abortErr
}

// RunStage executes a single catalog stage, for resumption and debugging.
// The stage's dependencies are assumed satisfied by earlier runs; merges are
// idempotent so over-running is safe.
func (rc *RunContext) RunStage(ctx context.Context, stageID string) (*RunRecord, error) {
	record := &RunRecord{
		RunID:     rc.RunID,
		StartedAt: time.Now(),
		Status:    RunStatusRunning,
	}

	stage := rc.Catalog.StageByID(stageID)
	if stage == nil {
		err := errors.Wrapf(errors.ErrNotFound, "stage %q not in catalog", stageID)
		record.Status = RunStatusAborted
		record.Warnings = append(record.Warnings, err.Error())
		rc.finalize(record)
		return record, err
	}

	if err := rc.Source.Ping(ctx); err != nil {
		record.Status = RunStatusAborted
		record.Warnings = append(record.Warnings, err.Error())
		rc.finalize(record)
		return record, err
	}
	if err := rc.Graph.Ping(ctx); err != nil {
		record.Status = RunStatusAborted
		record.Warnings = append(record.Warnings, err.Error())
		rc.finalize(record)
		return record, err
	}

	stageRec, err := rc.runStage(ctx, stage)
	record.Stages = append(record.Stages, stageRec)

	if err != nil {
		record.Status = RunStatusAborted
	} else {
		record.Status = RunStatusCompleted
	}

	rc.finalize(record)
	return record, err
}

// runStage runs one stage under its timeout: extract, load, verify.
func (rc *RunContext) runStage(ctx context.Context, stage *Stage) (StageRecord, error) {
	stage.Start()
	rec := StageRecord{
		StageID: stage.ID,
		Ordinal: stage.Ordinal,
		Kind:    stage.Kind,
	}

	stageCtx, cancel := context.WithTimeout(ctx, stage.Timeout(rc.defaultStageTimeout()))
	defer cancel()

	rc.Logger.Infow("Stage started",
		"symbol", sym.Stage,
		"stage_id", stage.ID,
		"kind", string(stage.Kind))

	err := rc.executeStage(stageCtx, stage, &rec)
	if err != nil {
		stage.Fail(err)
	} else {
		stage.Verified()
	}

	rec.Status = stage.Status
	rec.Error = stage.Error
	rec.Elapsed = stage.Elapsed()

	rc.Logger.Infow("Stage finished",
		"symbol", sym.Stage,
		"stage_id", stage.ID,
		"status", string(stage.Status),
		"rows", rec.RowsSucceeded,
		"chunks", rec.Chunks)

	return rec, err
}

func (rc *RunContext) executeStage(ctx context.Context, stage *Stage, rec *StageRecord) error {
	script, err := rc.StageScript(stage)
	if err != nil {
		return err
	}

	scriptResult, err := rc.Source.RunScript(ctx, script, stage.Source.PrimaryStatement)
	if err != nil {
		return err
	}
	if scriptResult.Primary == nil {
		return errors.Newf("stage %s: script produced no result set to load", stage.ID)
	}

	loader := rc.newLoader()
	var loadResult *graph.LoadResult
	switch stage.Kind {
	case StageKindNode:
		loadResult, err = loader.LoadNodes(ctx, scriptResult.Primary, stage.Node)
	case StageKindRelationship:
		loadResult, err = loader.LoadRelationships(ctx, scriptResult.Primary, stage.Rel)
	default:
		return errors.Newf("stage %s: unknown kind %q", stage.ID, stage.Kind)
	}
	if loadResult != nil {
		rec.RowsAttempted = loadResult.RowsAttempted
		rec.RowsSucceeded = loadResult.RowsSucceeded
		rec.Chunks = loadResult.Chunks
		rec.FailedMatches = loadResult.FailedMatches
		rec.ChunkErrors = loadResult.ChunkErrors
	}
	if err != nil {
		return err
	}

	if len(stage.Verify) > 0 {
		results, err := verify.NewGraphVerifier(rc.Graph, rc.Logger).Evaluate(ctx, stage.Verify)
		rec.VerifyResults = results
		if err != nil {
			return err
		}
	}

	return nil
}

// finalize writes the report, persists the run row, and fires the
// completion hook. Failures here are logged, not returned: the run's
// outcome is already decided.
func (rc *RunContext) finalize(record *RunRecord) {
	record.EndedAt = time.Now()
	record.Resources = SnapshotResources()

	reportPath, err := record.WriteReport(rc.Config.Pipeline.ReportsDir)
	if err != nil {
		rc.Logger.Errorw("Failed to write run report",
			"run_id", record.RunID,
			"error", err)
	}

	if err := record.Persist(rc.Graph, reportPath); err != nil {
		rc.Logger.Errorw("Failed to persist run record",
			"run_id", record.RunID,
			"error", err)
	}

	RunCompletionHook(rc.Config.Hooks.OnComplete, record, reportPath, rc.Logger)
}
