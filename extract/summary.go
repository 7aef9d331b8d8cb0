package extract

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/teranos/citegraph/errors"
)

// SummaryFileName is written next to the extractions, always, even when
// steps failed.
const SummaryFileName = "EXTRACTION_SUMMARY.txt"

// WriteSummary renders the extraction summary into the output directory.
func (e *Exporter) WriteSummary(result *ExportResult) error {
	var b strings.Builder

	fmt.Fprintf(&b, "citegraph extraction\n")
	fmt.Fprintf(&b, "started:  %s\n", result.Started.Format(time.RFC3339))
	fmt.Fprintf(&b, "ended:    %s\n", result.Ended.Format(time.RFC3339))
	fmt.Fprintf(&b, "duration: %s\n\n", result.Ended.Sub(result.Started).Round(time.Millisecond))

	fmt.Fprintf(&b, "%-20s %-24s %10s  %-16s %s\n", "stage", "file", "rows", "xxh3", "elapsed")
	for _, s := range result.Steps {
		if s.Err != "" {
			fmt.Fprintf(&b, "%-20s FAILED: %s\n", s.StageID, s.Err)
			continue
		}
		fmt.Fprintf(&b, "%-20s %-24s %10d  %-16s %s\n",
			s.StageID, s.File, s.Rows, s.Checksum, s.Elapsed.Round(time.Millisecond))
	}

	if failed := result.FailedSteps(); failed > 0 {
		fmt.Fprintf(&b, "\n%d of %d steps failed\n", failed, len(result.Steps))
	}

	path := filepath.Join(e.outputDir, SummaryFileName)
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return errors.Wrapf(err, "writing %s", path)
	}
	return nil
}
