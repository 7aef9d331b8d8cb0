// Package extract writes the pipeline's other output: flat CSV extractions,
// one file per catalog stage, with a checksummed summary.
package extract

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/zeebo/xxh3"
	"go.uber.org/zap"

	"github.com/teranos/citegraph/errors"
	"github.com/teranos/citegraph/pipeline"
	"github.com/teranos/citegraph/source"
	"github.com/teranos/citegraph/sym"
)

// StepResult is one stage's extraction outcome.
type StepResult struct {
	StageID  string        `json:"stage_id"`
	File     string        `json:"file,omitempty"`
	Rows     int           `json:"rows"`
	Checksum string        `json:"checksum,omitempty"`
	Elapsed  time.Duration `json:"elapsed"`
	Err      string        `json:"error,omitempty"`
}

// ExportResult aggregates a whole extraction.
type ExportResult struct {
	Steps   []StepResult `json:"steps"`
	Started time.Time    `json:"started"`
	Ended   time.Time    `json:"ended"`
}

// FailedSteps counts steps that did not produce a file.
func (r *ExportResult) FailedSteps() int {
	n := 0
	for _, s := range r.Steps {
		if s.Err != "" {
			n++
		}
	}
	return n
}

// Exporter runs each catalog stage's extraction and writes the primary
// result as CSV. It shares the source executor with the pipeline but never
// touches the graph.
type Exporter struct {
	executor   *source.Executor
	outputDir  string
	scriptsDir string
	logger     *zap.SugaredLogger
}

func NewExporter(executor *source.Executor, outputDir, scriptsDir string, logger *zap.SugaredLogger) *Exporter {
	return &Exporter{
		executor:   executor,
		outputDir:  outputDir,
		scriptsDir: scriptsDir,
		logger:     logger,
	}
}

// Run extracts every stage in ordinal order to <ordinal>_<id>.csv. A
// critical query failing marks that step failed and continues with the
// next; the first (foundational) step failing aborts. The summary is
// written either way.
func (e *Exporter) Run(ctx context.Context, catalog *pipeline.Catalog) (*ExportResult, error) {
	if err := os.MkdirAll(e.outputDir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "creating output directory %s", e.outputDir)
	}

	result := &ExportResult{Started: time.Now()}
	defer func() { result.Ended = time.Now() }()

	var abortErr error

	for i, stage := range catalog.Stages {
		step := e.exportStage(ctx, stage)
		result.Steps = append(result.Steps, step)

		if step.Err != "" && i == 0 {
			abortErr = errors.Newf("foundational step %s failed: %s", stage.ID, step.Err)
			break
		}
	}

	if err := e.WriteSummary(result); err != nil {
		e.logger.Errorw("Failed to write extraction summary", "error", err)
	}

	e.logger.Infow("Extraction finished",
		"symbol", sym.Extract,
		"steps", len(result.Steps),
		"failed", result.FailedSteps())

	return result, abortErr
}

func (e *Exporter) exportStage(ctx context.Context, stage *pipeline.Stage) StepResult {
	step := StepResult{StageID: stage.ID}
	started := time.Now()
	defer func() { step.Elapsed = time.Since(started) }()

	script, err := stage.LoadScript(e.scriptsDir)
	if err != nil {
		step.Err = err.Error()
		return step
	}

	scriptResult, err := e.executor.RunScript(ctx, script, stage.Source.PrimaryStatement)
	if err != nil {
		step.Err = err.Error()
		e.logger.Warnw("Extraction step failed",
			"symbol", sym.Extract,
			"stage_id", stage.ID,
			"error", err)
		return step
	}
	if scriptResult.Primary == nil {
		step.Err = "script produced no result set"
		return step
	}

	name := fmt.Sprintf("%02d_%s.csv", stage.Ordinal, stage.ID)
	path := filepath.Join(e.outputDir, name)
	checksum, rows, err := writeCSV(path, scriptResult.Primary)
	if err != nil {
		step.Err = err.Error()
		return step
	}

	step.File = name
	step.Rows = rows
	step.Checksum = checksum

	e.logger.Infow("Extraction step written",
		"symbol", sym.Extract,
		"stage_id", stage.ID,
		"file", name,
		"rows", rows)

	return step
}

// writeCSV writes header plus rows and returns the file's xxh3 checksum.
// Stable for identical content: the checksum covers exactly the bytes
// written.
func writeCSV(path string, rs *source.ResultSet) (string, int, error) {
	f, err := os.Create(path)
	if err != nil {
		return "", 0, errors.Wrapf(err, "creating %s", path)
	}
	defer f.Close()

	hash := xxh3.New()
	w := csv.NewWriter(io.MultiWriter(f, hash))

	if err := w.Write(rs.Columns); err != nil {
		return "", 0, errors.Wrap(err, "writing header")
	}

	record := make([]string, len(rs.Columns))
	for _, row := range rs.Rows {
		for i, v := range row {
			record[i] = cellString(v)
		}
		if err := w.Write(record); err != nil {
			return "", 0, errors.Wrap(err, "writing row")
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return "", 0, errors.Wrap(err, "flushing csv")
	}
	if err := f.Close(); err != nil {
		return "", 0, errors.Wrapf(err, "closing %s", path)
	}

	return fmt.Sprintf("%016x", hash.Sum64()), len(rs.Rows), nil
}

func cellString(v interface{}) string {
	switch c := v.(type) {
	case nil:
		return ""
	case string:
		return c
	case []byte:
		return string(c)
	default:
		return fmt.Sprint(c)
	}
}
