package config

import (
	"github.com/spf13/viper"
)

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	// Source defaults: local SQLite so a checkout works without a warehouse
	v.SetDefault("source.driver", "sqlite3")
	v.SetDefault("source.dsn", "source.db")

	// Graph target defaults
	v.SetDefault("graph.path", "citegraph.db")

	// Batch upsert engine defaults
	v.SetDefault("load.chunk_size", DefaultChunkSize)
	v.SetDefault("load.failure_rate_limit", 0.5)
	v.SetDefault("load.throttle_chunks_per_second", 0.0) // unthrottled

	// Pipeline defaults
	v.SetDefault("pipeline.catalog", "") // empty = embedded bibliographic catalog
	v.SetDefault("pipeline.scripts_dir", "sql")
	v.SetDefault("pipeline.default_stage_timeout_seconds", 600)
	v.SetDefault("pipeline.reports_dir", "reports")

	// Extraction defaults
	v.SetDefault("extract.output_dir", "exports")

	// Hooks: disabled unless configured
	v.SetDefault("hooks.on_complete", "")
}

// BindSensitiveEnvVars explicitly binds sensitive configuration to environment variables
func BindSensitiveEnvVars(v *viper.Viper) {
	// Source credentials never belong in a checked-in TOML file
	v.BindEnv("source.dsn", "CITEGRAPH_SOURCE_DSN")
	v.BindEnv("source.driver", "CITEGRAPH_SOURCE_DRIVER")

	// Graph path override for scratch runs
	v.BindEnv("graph.path", "CITEGRAPH_GRAPH_PATH")
}
