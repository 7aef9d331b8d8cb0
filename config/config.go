package config

// Config represents the core citegraph configuration
type Config struct {
	Source   SourceConfig   `mapstructure:"source"`
	Graph    GraphConfig    `mapstructure:"graph"`
	Load     LoadConfig     `mapstructure:"load"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Extract  ExtractConfig  `mapstructure:"extract"`
	Hooks    HooksConfig    `mapstructure:"hooks"`
}

// SourceConfig configures the relational source connection
type SourceConfig struct {
	Driver string `mapstructure:"driver"` // "pgx" (production) or "sqlite3" (local/testing)
	DSN    string `mapstructure:"dsn"`    // connection string; prefer CITEGRAPH_SOURCE_DSN over the file
}

// GraphConfig configures the graph store target
type GraphConfig struct {
	Path string `mapstructure:"path"` // SQLite database path (default: citegraph.db)
}

// LoadConfig configures the batch upsert engine
type LoadConfig struct {
	ChunkSize               int     `mapstructure:"chunk_size"`                 // rows per merge transaction (default: 1000, valid 1-10000)
	FailureRateLimit        float64 `mapstructure:"failure_rate_limit"`         // hard-stop threshold in (0,1] (default: 0.5)
	ThrottleChunksPerSecond float64 `mapstructure:"throttle_chunks_per_second"` // 0 = unthrottled
}

// PipelineConfig configures the stage sequencer
type PipelineConfig struct {
	Catalog                    string `mapstructure:"catalog"`                       // catalog path or URL; empty = embedded default
	ScriptsDir                 string `mapstructure:"scripts_dir"`                   // directory stage script paths resolve against
	DefaultStageTimeoutSeconds int    `mapstructure:"default_stage_timeout_seconds"` // per-stage timeout when the catalog sets none
	ReportsDir                 string `mapstructure:"reports_dir"`                   // where run reports are written
}

// ExtractConfig configures flat-file extraction
type ExtractConfig struct {
	OutputDir string `mapstructure:"output_dir"` // where CSV extractions and the summary are written
}

// HooksConfig configures optional post-run commands
type HooksConfig struct {
	OnComplete string `mapstructure:"on_complete"` // shell command run after the report is written ("" = disabled)
}

// Chunk size bounds for the batch upsert engine. One chunk is one
// transaction against the graph store; too small thrashes commits,
// too large holds the write lock for the whole merge.
const (
	MinChunkSize     = 1
	MaxChunkSize     = 10000
	DefaultChunkSize = 1000
)

// File system constants
const (
	DefaultDirPermissions  = 0755 // Standard directory permissions (rwxr-xr-x)
	DefaultFilePermissions = 0644 // Standard file permissions (rw-r--r--)
)

// GetGraphPath returns the configured graph database path
func (c *Config) GetGraphPath() string {
	if c.Graph.Path == "" {
		return "citegraph.db" // Fallback default
	}
	return c.Graph.Path
}

// GetChunkSize returns the configured chunk size, clamped to valid bounds
func (c *Config) GetChunkSize() int {
	if c.Load.ChunkSize <= 0 {
		return DefaultChunkSize
	}
	if c.Load.ChunkSize > MaxChunkSize {
		return MaxChunkSize
	}
	return c.Load.ChunkSize
}

// GetFailureRateLimit returns the hard-stop threshold, defaulting to 0.5
func (c *Config) GetFailureRateLimit() float64 {
	if c.Load.FailureRateLimit <= 0 {
		return 0.5
	}
	return c.Load.FailureRateLimit
}
