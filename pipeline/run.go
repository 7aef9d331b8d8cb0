package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mr-tron/base58"

	"github.com/teranos/citegraph/errors"
	"github.com/teranos/citegraph/graph"
	"github.com/teranos/citegraph/verify"
)

// RunStatus is the pipeline state machine:
// Idle -> Running -> {Completed, CompletedWithWarnings, Aborted}.
type RunStatus string

const (
	RunStatusIdle                  RunStatus = "idle"
	RunStatusRunning               RunStatus = "running"
	RunStatusCompleted             RunStatus = "completed"
	RunStatusCompletedWithWarnings RunStatus = "completed_with_warnings"
	RunStatusAborted               RunStatus = "aborted"
)

// NewRunID generates a filesystem-friendly run identifier:
// base58-encoded UUID bytes, no slashes, no padding.
func NewRunID() string {
	id := uuid.New()
	return base58.Encode(id[:])
}

// StageRecord is the immutable outcome of one stage within a run.
type StageRecord struct {
	StageID       string               `json:"stage_id"`
	Ordinal       int                  `json:"ordinal"`
	Kind          StageKind            `json:"kind"`
	Status        StageStatus          `json:"status"`
	Error         string               `json:"error,omitempty"`
	RowsAttempted int                  `json:"rows_attempted"`
	RowsSucceeded int                  `json:"rows_succeeded"`
	Chunks        int                  `json:"chunks"`
	FailedMatches []graph.FailedMatch  `json:"failed_matches,omitempty"`
	ChunkErrors   []graph.ChunkError   `json:"chunk_errors,omitempty"`
	VerifyResults []verify.CheckResult `json:"verify_results,omitempty"`
	Elapsed       time.Duration        `json:"elapsed"`
}

// RunRecord is the full account of one pipeline run. Created at start,
// appended as stages finish, persisted exactly once at run end (report file
// plus runs table row), never mutated afterwards.
type RunRecord struct {
	RunID     string               `json:"run_id"`
	StartedAt time.Time            `json:"started_at"`
	EndedAt   time.Time            `json:"ended_at"`
	Status    RunStatus            `json:"status"`
	Warnings  []string             `json:"warnings,omitempty"`
	Stages    []StageRecord        `json:"stages"`
	Health    *verify.HealthReport `json:"health,omitempty"`
	Resources ResourceUsage        `json:"resources"`
}

// ReportFileName is the plain-text report written to the reports directory.
func (r *RunRecord) ReportFileName() string {
	return fmt.Sprintf("run-%s.txt", r.RunID)
}

// WriteReport renders the plain-text summary and writes it to dir. A run
// always produces a report, aborted runs included.
func (r *RunRecord) WriteReport(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.Wrapf(err, "creating reports directory %s", dir)
	}
	path := filepath.Join(dir, r.ReportFileName())
	if err := os.WriteFile(path, []byte(r.renderText()), 0o644); err != nil {
		return "", errors.Wrapf(err, "writing report %s", path)
	}
	return path, nil
}

func (r *RunRecord) renderText() string {
	var b strings.Builder

	fmt.Fprintf(&b, "citegraph run %s\n", r.RunID)
	fmt.Fprintf(&b, "status:   %s\n", r.Status)
	fmt.Fprintf(&b, "started:  %s\n", r.StartedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "ended:    %s\n", r.EndedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "duration: %s\n\n", r.EndedAt.Sub(r.StartedAt).Round(time.Millisecond))

	fmt.Fprintf(&b, "stages:\n")
	for _, s := range r.Stages {
		fmt.Fprintf(&b, "  %2d. %-16s %-10s rows %d/%d  chunks %d  %s\n",
			s.Ordinal, s.StageID, s.Status, s.RowsSucceeded, s.RowsAttempted,
			s.Chunks, s.Elapsed.Round(time.Millisecond))
		if s.Error != "" {
			fmt.Fprintf(&b, "      error: %s\n", s.Error)
		}
		if n := len(s.FailedMatches); n > 0 {
			fmt.Fprintf(&b, "      failed matches: %d\n", n)
		}
		for _, ce := range s.ChunkErrors {
			fmt.Fprintf(&b, "      chunk @%d (%d rows): %s\n", ce.Offset, ce.Size, ce.Message)
		}
		for _, v := range s.VerifyResults {
			mark := "pass"
			if !v.Passed {
				mark = "FAIL"
			}
			fmt.Fprintf(&b, "      check %-24s %s  value %g (%s)\n", v.Name, mark, v.Value, v.Threshold)
		}
	}

	if len(r.Warnings) > 0 {
		fmt.Fprintf(&b, "\nwarnings:\n")
		for _, w := range r.Warnings {
			fmt.Fprintf(&b, "  - %s\n", w)
		}
	}

	if r.Health != nil {
		fmt.Fprintf(&b, "\nhealth:\n")
		for _, label := range sortedCountKeys(r.Health.NodeCounts) {
			fmt.Fprintf(&b, "  nodes %-16s %d\n", label, r.Health.NodeCounts[label])
		}
		for _, relType := range sortedCountKeys(r.Health.RelationshipCounts) {
			fmt.Fprintf(&b, "  edges %-16s %d\n", relType, r.Health.RelationshipCounts[relType])
		}
		for _, c := range r.Health.Connectivity {
			fmt.Fprintf(&b, "  ratio %-24s %d/%d (%.1f%%)\n", c.Name, c.Connected, c.Total, c.Ratio*100)
		}
		for _, q := range r.Health.Quality {
			mark := "pass"
			if !q.Passed {
				mark = "FAIL"
			}
			fmt.Fprintf(&b, "  check %-24s %s  value %g (%s)\n", q.Name, mark, q.Value, q.Threshold)
		}
		for _, top := range r.Health.Top {
			fmt.Fprintf(&b, "  %s:\n", top.Name)
			for _, e := range top.Entries {
				fmt.Fprintf(&b, "    %-40s %g\n", e.Key, e.Value)
			}
		}
	}

	fmt.Fprintf(&b, "\nresources:\n")
	fmt.Fprintf(&b, "  process rss:   %s\n", formatBytes(r.Resources.ProcessRSSBytes))
	fmt.Fprintf(&b, "  system memory: %s used of %s (%.1f%%)\n",
		formatBytes(r.Resources.SystemUsedBytes), formatBytes(r.Resources.SystemTotalBytes),
		r.Resources.SystemUsedPercent)

	return b.String()
}

// Persist writes the run row into the runs table of the graph database.
func (r *RunRecord) Persist(store *graph.Store, reportPath string) error {
	recordJSON, err := json.Marshal(r)
	if err != nil {
		return errors.Wrap(err, "marshaling run record")
	}
	_, err = store.DB().Exec(`
		INSERT INTO runs (id, status, started_at, ended_at, warnings, record, report_path)
		VALUES (?, ?, ?, ?, ?, json(?), ?)`,
		r.RunID, string(r.Status),
		r.StartedAt.Format(time.RFC3339), r.EndedAt.Format(time.RFC3339),
		len(r.Warnings), string(recordJSON), reportPath)
	if err != nil {
		return errors.Wrapf(err, "persisting run %s", r.RunID)
	}
	return nil
}

// RunSummary is one row of `citegraph runs`.
type RunSummary struct {
	RunID      string `json:"run_id"`
	Status     string `json:"status"`
	StartedAt  string `json:"started_at"`
	EndedAt    string `json:"ended_at,omitempty"`
	Warnings   int    `json:"warnings"`
	ReportPath string `json:"report_path,omitempty"`
}

// ListRuns returns the most recent persisted runs, newest first.
func ListRuns(store *graph.Store, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := store.DB().Query(`
		SELECT id, status, started_at, COALESCE(ended_at, ''), warnings, COALESCE(report_path, '')
		FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "listing runs")
	}
	defer rows.Close()

	var runs []RunSummary
	for rows.Next() {
		var r RunSummary
		if err := rows.Scan(&r.RunID, &r.Status, &r.StartedAt, &r.EndedAt, &r.Warnings, &r.ReportPath); err != nil {
			return nil, errors.Wrap(err, "scanning run row")
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

func sortedCountKeys(m map[string]int64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func formatBytes(n uint64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := uint64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
