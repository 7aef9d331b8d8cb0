// Package graph is the property-graph store and its batch upsert engine.
// Nodes are addressed by (label, natural key); relationships by
// (type, from, to). Merges are idempotent: re-running a load converges
// instead of duplicating.
package graph

import (
	"time"
)

// FoldKind selects how an accumulating relationship property combines with
// the value already stored on the edge.
type FoldKind string

const (
	FoldMin FoldKind = "min"
	FoldMax FoldKind = "max"
)

// Fold maps a source column onto an accumulating relationship property.
type Fold struct {
	Column   string   `yaml:"column" json:"column"`
	Property string   `yaml:"property" json:"property"`
	Fold     FoldKind `yaml:"fold" json:"fold"`
}

// NodeTarget describes how source rows become nodes of one label.
// KeyColumn names the source column carrying the natural key; Properties
// maps source columns to node property names.
type NodeTarget struct {
	Label      string            `yaml:"label" json:"label"`
	KeyColumn  string            `yaml:"key_column" json:"key_column"`
	Properties map[string]string `yaml:"properties" json:"properties"`
}

// Endpoint identifies one side of a relationship by node label and the
// source column carrying that node's natural key.
type Endpoint struct {
	Label     string `yaml:"label" json:"label"`
	KeyColumn string `yaml:"key_column" json:"key_column"`
}

// RelationshipTarget describes how source rows become edges of one type.
// Symmetric edges canonicalize their endpoint order before merge so a
// single edge exists regardless of which direction the source emits.
type RelationshipTarget struct {
	Type       string            `yaml:"type" json:"type"`
	From       Endpoint          `yaml:"from" json:"from"`
	To         Endpoint          `yaml:"to" json:"to"`
	Symmetric  bool              `yaml:"symmetric,omitempty" json:"symmetric,omitempty"`
	Properties map[string]string `yaml:"properties,omitempty" json:"properties,omitempty"`
	Accumulate []Fold            `yaml:"accumulate,omitempty" json:"accumulate,omitempty"`
}

// ChunkError records a chunk-level failure (begin/commit/SQL); the chunk was
// rolled back and the load continued.
type ChunkError struct {
	Offset  int    `json:"offset"`
	Size    int    `json:"size"`
	Message string `json:"message"`
}

// FailedMatch records a relationship row whose endpoints did not resolve to
// existing nodes. Not an error: ordering gaps and source dirt both land here.
type FailedMatch struct {
	RowKey  string `json:"row_key"`
	Message string `json:"message"`
}

// LoadResult aggregates one stage's load. Immutable once the load returns;
// stage totals are sums over chunks.
type LoadResult struct {
	RowsAttempted int           `json:"rows_attempted"`
	RowsSucceeded int           `json:"rows_succeeded"`
	Chunks        int           `json:"chunks"`
	ChunkErrors   []ChunkError  `json:"chunk_errors,omitempty"`
	FailedMatches []FailedMatch `json:"failed_matches,omitempty"`
	Elapsed       time.Duration `json:"elapsed"`
}

// FailureRate is the fraction of attempted rows that did not merge, counting
// both rolled-back chunks and failed endpoint matches.
func (r *LoadResult) FailureRate() float64 {
	if r.RowsAttempted == 0 {
		return 0
	}
	return float64(r.RowsAttempted-r.RowsSucceeded) / float64(r.RowsAttempted)
}
