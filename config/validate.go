package config

import "github.com/teranos/citegraph/errors"

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	// Source driver must be one this binary registers
	switch c.Source.Driver {
	case "", "pgx", "sqlite3":
	default:
		return errors.Newf("source.driver must be \"pgx\" or \"sqlite3\", got %q", c.Source.Driver)
	}

	// Chunk size: 0 = use default, out of bounds = invalid
	if c.Load.ChunkSize < 0 {
		return errors.Newf("load.chunk_size must be >= 0, got %d", c.Load.ChunkSize)
	}
	if c.Load.ChunkSize > MaxChunkSize {
		return errors.Newf("load.chunk_size must be <= %d, got %d", MaxChunkSize, c.Load.ChunkSize)
	}

	// Failure rate limit: 0 = use default, otherwise must be in (0, 1]
	if c.Load.FailureRateLimit < 0 || c.Load.FailureRateLimit > 1 {
		return errors.Newf("load.failure_rate_limit must be in (0, 1], got %f", c.Load.FailureRateLimit)
	}

	// Throttle: 0 = unthrottled, negative = invalid
	if c.Load.ThrottleChunksPerSecond < 0 {
		return errors.Newf("load.throttle_chunks_per_second must be >= 0, got %f", c.Load.ThrottleChunksPerSecond)
	}

	// Stage timeout: 0 = no timeout is not allowed, every stage carries one
	if c.Pipeline.DefaultStageTimeoutSeconds < 0 {
		return errors.Newf("pipeline.default_stage_timeout_seconds must be >= 0, got %d", c.Pipeline.DefaultStageTimeoutSeconds)
	}

	return nil
}
