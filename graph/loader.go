package graph

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/teranos/citegraph/errors"
	"github.com/teranos/citegraph/source"
	"github.com/teranos/citegraph/sym"
)

const (
	// MinChunkSize and MaxChunkSize bound the configurable chunk size.
	MinChunkSize = 1
	MaxChunkSize = 10000

	// DefaultChunkSize is used when the configuration does not set one.
	DefaultChunkSize = 1000

	// DefaultFailureRateLimit is the hard-stop threshold: a load whose
	// cumulative failure rate exceeds it aborts rather than grinding
	// through a broken source.
	DefaultFailureRateLimit = 0.5
)

// Loader merges materialized result sets into the store in fixed-size
// chunks, one transaction per chunk, strictly sequentially. A failed chunk
// rolls back and the load continues; the failure-rate hard stop is the only
// thing that aborts it.
type Loader struct {
	store            *Store
	chunkSize        int
	failureRateLimit float64
	limiter          *rate.Limiter
	logger           *zap.SugaredLogger
}

// NewLoader builds a loader. chunkSize is clamped into [MinChunkSize,
// MaxChunkSize] (0 means default); failureRateLimit of 0 means default;
// chunksPerSecond of 0 disables throttling.
func NewLoader(store *Store, chunkSize int, failureRateLimit float64, chunksPerSecond float64, logger *zap.SugaredLogger) *Loader {
	if chunkSize == 0 {
		chunkSize = DefaultChunkSize
	}
	if chunkSize < MinChunkSize {
		chunkSize = MinChunkSize
	}
	if chunkSize > MaxChunkSize {
		chunkSize = MaxChunkSize
	}
	if failureRateLimit == 0 {
		failureRateLimit = DefaultFailureRateLimit
	}

	var limiter *rate.Limiter
	if chunksPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(chunksPerSecond), 1)
	}

	return &Loader{
		store:            store,
		chunkSize:        chunkSize,
		failureRateLimit: failureRateLimit,
		limiter:          limiter,
		logger:           logger,
	}
}

// ChunkSize reports the effective chunk size after clamping.
func (l *Loader) ChunkSize() int {
	return l.chunkSize
}

// LoadNodes merges every row of rs as a node per spec. Each chunk is one
// transaction; re-running converges on the same nodes with latest property
// values.
func (l *Loader) LoadNodes(ctx context.Context, rs *source.ResultSet, spec *NodeTarget) (*LoadResult, error) {
	cols, err := columnIndex(rs, spec.KeyColumn)
	if err != nil {
		return nil, err
	}

	result := &LoadResult{}
	started := time.Now()
	defer func() { result.Elapsed = time.Since(started) }()

	for offset := 0; offset < len(rs.Rows); offset += l.chunkSize {
		if err := l.waitThrottle(ctx); err != nil {
			return result, err
		}

		end := offset + l.chunkSize
		if end > len(rs.Rows) {
			end = len(rs.Rows)
		}
		chunk := rs.Rows[offset:end]
		result.Chunks++
		result.RowsAttempted += len(chunk)

		merged, err := l.loadNodeChunk(ctx, chunk, cols, spec)
		if err != nil {
			result.ChunkErrors = append(result.ChunkErrors, ChunkError{
				Offset:  offset,
				Size:    len(chunk),
				Message: err.Error(),
			})
			l.logger.Warnw("Chunk rolled back",
				"symbol", sym.Graph,
				"label", spec.Label,
				"offset", offset,
				"size", len(chunk),
				"error", err)
		} else {
			result.RowsSucceeded += merged
		}

		if stopErr := l.checkFailureRate(result, spec.Label); stopErr != nil {
			return result, stopErr
		}
	}

	l.logger.Infow("Nodes loaded",
		"symbol", sym.Graph,
		"label", spec.Label,
		"rows", result.RowsSucceeded,
		"chunks", result.Chunks)

	return result, nil
}

func (l *Loader) loadNodeChunk(ctx context.Context, chunk [][]interface{}, cols map[string]int, spec *NodeTarget) (int, error) {
	tx, err := l.store.DB().BeginTx(ctx, nil)
	if err != nil {
		return 0, errors.WrapChunkMerge(err, "beginning chunk transaction")
	}
	defer tx.Rollback()

	for _, row := range chunk {
		key := keyString(row[cols[spec.KeyColumn]])
		if key == "" {
			continue
		}
		props := rowProperties(row, cols, spec.Properties)
		if err := l.store.UpsertNode(ctx, tx, spec.Label, key, props); err != nil {
			return 0, errors.WrapChunkMerge(err, fmt.Sprintf("node %s %q", spec.Label, key))
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, errors.WrapChunkMerge(err, "committing chunk")
	}
	return len(chunk), nil
}

// LoadRelationships merges every row of rs as an edge per spec. Rows whose
// endpoints do not resolve to existing nodes are recorded as failed matches,
// not errors: running a relationship stage before its node stages simply
// yields no edges and a full failed-match list.
func (l *Loader) LoadRelationships(ctx context.Context, rs *source.ResultSet, spec *RelationshipTarget) (*LoadResult, error) {
	cols, err := columnIndex(rs, spec.From.KeyColumn, spec.To.KeyColumn)
	if err != nil {
		return nil, err
	}

	result := &LoadResult{}
	started := time.Now()
	defer func() { result.Elapsed = time.Since(started) }()

	for offset := 0; offset < len(rs.Rows); offset += l.chunkSize {
		if err := l.waitThrottle(ctx); err != nil {
			return result, err
		}

		end := offset + l.chunkSize
		if end > len(rs.Rows) {
			end = len(rs.Rows)
		}
		chunk := rs.Rows[offset:end]
		result.Chunks++
		result.RowsAttempted += len(chunk)

		merged, matches, err := l.loadRelationshipChunk(ctx, chunk, cols, spec)
		if err != nil {
			result.ChunkErrors = append(result.ChunkErrors, ChunkError{
				Offset:  offset,
				Size:    len(chunk),
				Message: err.Error(),
			})
			l.logger.Warnw("Chunk rolled back",
				"symbol", sym.Graph,
				"type", spec.Type,
				"offset", offset,
				"size", len(chunk),
				"error", err)
		} else {
			result.RowsSucceeded += merged
			result.FailedMatches = append(result.FailedMatches, matches...)
		}

		if stopErr := l.checkFailureRate(result, spec.Type); stopErr != nil {
			return result, stopErr
		}
	}

	l.logger.Infow("Relationships loaded",
		"symbol", sym.Graph,
		"type", spec.Type,
		"rows", result.RowsSucceeded,
		"chunks", result.Chunks,
		"failed_matches", len(result.FailedMatches))

	return result, nil
}

func (l *Loader) loadRelationshipChunk(ctx context.Context, chunk [][]interface{}, cols map[string]int, spec *RelationshipTarget) (int, []FailedMatch, error) {
	tx, err := l.store.DB().BeginTx(ctx, nil)
	if err != nil {
		return 0, nil, errors.WrapChunkMerge(err, "beginning chunk transaction")
	}
	defer tx.Rollback()

	merged := 0
	var matches []FailedMatch

	for _, row := range chunk {
		fromKey := keyString(row[cols[spec.From.KeyColumn]])
		toKey := keyString(row[cols[spec.To.KeyColumn]])
		rowKey := fmt.Sprintf("%s -> %s", fromKey, toKey)

		if fromKey == "" || toKey == "" {
			matches = append(matches, FailedMatch{RowKey: rowKey, Message: "empty endpoint key"})
			continue
		}

		// Symmetric types canonicalize endpoint order by natural key so a
		// single edge exists regardless of which direction the row came in.
		if spec.Symmetric && toKey < fromKey {
			fromKey, toKey = toKey, fromKey
		}

		fromID, ok, err := l.store.ResolveNode(ctx, tx, spec.From.Label, fromKey)
		if err != nil {
			return 0, nil, errors.WrapChunkMerge(err, fmt.Sprintf("row %s", rowKey))
		}
		if !ok {
			matches = append(matches, FailedMatch{
				RowKey:  rowKey,
				Message: fmt.Sprintf("no %s node with key %q", spec.From.Label, fromKey),
			})
			continue
		}

		toID, ok, err := l.store.ResolveNode(ctx, tx, spec.To.Label, toKey)
		if err != nil {
			return 0, nil, errors.WrapChunkMerge(err, fmt.Sprintf("row %s", rowKey))
		}
		if !ok {
			matches = append(matches, FailedMatch{
				RowKey:  rowKey,
				Message: fmt.Sprintf("no %s node with key %q", spec.To.Label, toKey),
			})
			continue
		}

		props := rowProperties(row, cols, spec.Properties)
		folds := rowFolds(row, cols, spec.Accumulate)
		if err := l.store.UpsertRelationship(ctx, tx, spec.Type, fromID, toID, props, folds); err != nil {
			return 0, nil, errors.WrapChunkMerge(err, fmt.Sprintf("row %s", rowKey))
		}
		merged++
	}

	if err := tx.Commit(); err != nil {
		return 0, nil, errors.WrapChunkMerge(err, "committing chunk")
	}
	return merged, matches, nil
}

func (l *Loader) waitThrottle(ctx context.Context) error {
	if l.limiter == nil {
		return nil
	}
	return l.limiter.Wait(ctx)
}

func (l *Loader) checkFailureRate(result *LoadResult, target string) error {
	if result.FailureRate() > l.failureRateLimit {
		return errors.Wrapf(errors.ErrFailureRateExceeded,
			"%s: %.0f%% of %d rows failed (limit %.0f%%)",
			target, result.FailureRate()*100, result.RowsAttempted, l.failureRateLimit*100)
	}
	return nil
}

// columnIndex maps result columns to positions and verifies the required
// columns are present.
func columnIndex(rs *source.ResultSet, required ...string) (map[string]int, error) {
	cols := make(map[string]int, len(rs.Columns))
	for i, c := range rs.Columns {
		cols[c] = i
	}
	for _, r := range required {
		if _, ok := cols[r]; !ok {
			return nil, errors.Newf("result set missing required column %q (have %v)", r, rs.Columns)
		}
	}
	return cols, nil
}

// rowProperties extracts the mapped, non-nil property values from a row.
// Unmapped columns are ignored; missing columns are skipped silently so a
// catalog can map optional columns.
func rowProperties(row []interface{}, cols map[string]int, mapping map[string]string) map[string]interface{} {
	props := make(map[string]interface{}, len(mapping))
	for column, property := range mapping {
		idx, ok := cols[column]
		if !ok {
			continue
		}
		if row[idx] == nil {
			continue
		}
		props[property] = row[idx]
	}
	return props
}

func rowFolds(row []interface{}, cols map[string]int, accumulate []Fold) []FoldValue {
	var folds []FoldValue
	for _, f := range accumulate {
		idx, ok := cols[f.Column]
		if !ok || row[idx] == nil {
			continue
		}
		folds = append(folds, FoldValue{Property: f.Property, Kind: f.Fold, Value: row[idx]})
	}
	return folds
}

// keyString normalizes a natural-key value to its string form.
func keyString(v interface{}) string {
	switch k := v.(type) {
	case nil:
		return ""
	case string:
		return k
	case []byte:
		return string(k)
	default:
		return fmt.Sprint(k)
	}
}
