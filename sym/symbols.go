// Package sym defines canonical symbols for citegraph subsystems and CLI markers.
// These symbols are stable across CLI output, logs, and run reports.
package sym

// Subsystem glyphs — shown in command help, log lines, and reports.
const (
	Run     = "✦" // a pipeline run — the top-level unit of work
	Stage   = "◆" // one ordered load stage
	Source  = "⌬" // relational source side
	Graph   = "⊙" // property-graph target side
	Extract = "⨳" // flat-file extraction
	Verify  = "⊨" // verification/health checks
	DB      = "⊔" // database/storage layer
	Catalog = "≡" // stage catalog / configuration
)

// Status glyphs — stable markers for stage and run outcomes.
const (
	Pass = "✓"
	Fail = "✗"
	Warn = "△"
	Skip = "○"
)

// SymbolToCommand maps subsystem glyphs to the CLI command that owns them.
var SymbolToCommand = map[string]string{
	Run:     "run",
	Extract: "extract",
	Verify:  "verify",
	Catalog: "stages",
	DB:      "db",
}

// CommandToSymbol maps CLI commands to their canonical glyphs.
var CommandToSymbol = map[string]string{
	"run":     Run,
	"extract": Extract,
	"verify":  Verify,
	"stages":  Catalog,
	"db":      DB,
}

// CommandDescriptions provides human-readable explanations for command help.
var CommandDescriptions = map[string]string{
	"run":     "Run — Execute the staged load pipeline",
	"extract": "Extract — Write source extractions to flat files",
	"verify":  "Verify — Health-check the graph store",
	"stages":  "Stages — Inspect and validate the stage catalog",
	"db":      "DB — Graph database statistics and maintenance",
}

// StatusSymbol returns the glyph for a stage or run status string.
// Unknown statuses get the warn marker rather than an empty string so
// report columns stay aligned.
func StatusSymbol(status string) string {
	switch status {
	case "verified", "completed":
		return Pass
	case "failed", "aborted":
		return Fail
	case "completed_with_warnings":
		return Warn
	case "pending", "idle":
		return Skip
	default:
		return Warn
	}
}
