package graph

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/teranos/citegraph/errors"
	qt "github.com/teranos/citegraph/internal/testing"
	"github.com/teranos/citegraph/source"
)

func workRows(n int) *source.ResultSet {
	rs := &source.ResultSet{Columns: []string{"id", "display_name", "publication_year"}}
	for i := 0; i < n; i++ {
		rs.Rows = append(rs.Rows, []interface{}{
			fmt.Sprintf("W%d", i+1),
			fmt.Sprintf("Work %d", i+1),
			int64(2000 + i%25),
		})
	}
	return rs
}

var workSpec = &NodeTarget{
	Label:     "Work",
	KeyColumn: "id",
	Properties: map[string]string{
		"display_name":     "display_name",
		"publication_year": "publication_year",
	},
}

func TestLoadNodesChunkAggregation(t *testing.T) {
	store := newTestStore(t)
	loader := NewLoader(store, 1000, 0, 0, zap.NewNop().Sugar())

	result, err := loader.LoadNodes(context.Background(), workRows(2500), workSpec)
	require.NoError(t, err)

	assert.Equal(t, 2500, result.RowsAttempted)
	assert.Equal(t, 2500, result.RowsSucceeded)
	assert.Equal(t, 3, result.Chunks, "2500 rows at chunk size 1000 is exactly 3 chunks")
	assert.Empty(t, result.ChunkErrors)
	assert.Zero(t, result.FailureRate())

	count, err := store.NodeCount(context.Background(), "Work")
	require.NoError(t, err)
	assert.Equal(t, int64(2500), count)
}

func TestLoadNodesIdempotent(t *testing.T) {
	store := newTestStore(t)
	loader := NewLoader(store, 100, 0, 0, zap.NewNop().Sugar())
	rs := workRows(250)

	_, err := loader.LoadNodes(context.Background(), rs, workSpec)
	require.NoError(t, err)
	result, err := loader.LoadNodes(context.Background(), rs, workSpec)
	require.NoError(t, err)
	assert.Equal(t, 250, result.RowsSucceeded)

	count, err := store.NodeCount(context.Background(), "Work")
	require.NoError(t, err)
	assert.Equal(t, int64(250), count, "re-running a load creates no duplicates")
}

func TestLoadNodesMissingKeyColumn(t *testing.T) {
	store := newTestStore(t)
	loader := NewLoader(store, 0, 0, 0, zap.NewNop().Sugar())

	rs := &source.ResultSet{Columns: []string{"name"}, Rows: [][]interface{}{{"x"}}}
	_, err := loader.LoadNodes(context.Background(), rs, workSpec)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `missing required column "id"`)
}

func TestLoadNodesChunkSizeClamping(t *testing.T) {
	store := newTestStore(t)
	logger := zap.NewNop().Sugar()

	assert.Equal(t, DefaultChunkSize, NewLoader(store, 0, 0, 0, logger).ChunkSize())
	assert.Equal(t, MinChunkSize, NewLoader(store, -5, 0, 0, logger).ChunkSize())
	assert.Equal(t, MaxChunkSize, NewLoader(store, 99999, 0, 0, logger).ChunkSize())
}

func seedAuthorsAndWorks(t *testing.T, store *Store, loader *Loader) {
	t.Helper()
	ctx := context.Background()

	_, err := loader.LoadNodes(ctx, workRows(5), workSpec)
	require.NoError(t, err)

	authors := &source.ResultSet{
		Columns: []string{"id", "display_name"},
		Rows: [][]interface{}{
			{"A1", "Lovelace"},
			{"A2", "Hopper"},
			{"A3", "Hamilton"},
		},
	}
	_, err = loader.LoadNodes(ctx, authors, &NodeTarget{
		Label:      "Author",
		KeyColumn:  "id",
		Properties: map[string]string{"display_name": "display_name"},
	})
	require.NoError(t, err)
}

var authoredSpec = &RelationshipTarget{
	Type: "AUTHORED",
	From: Endpoint{Label: "Author", KeyColumn: "author_id"},
	To:   Endpoint{Label: "Work", KeyColumn: "work_id"},
}

func authoredRows(pairs [][2]string) *source.ResultSet {
	rs := &source.ResultSet{Columns: []string{"author_id", "work_id"}}
	for _, p := range pairs {
		rs.Rows = append(rs.Rows, []interface{}{p[0], p[1]})
	}
	return rs
}

func TestLoadRelationships(t *testing.T) {
	store := newTestStore(t)
	loader := NewLoader(store, 0, 0, 0, zap.NewNop().Sugar())
	seedAuthorsAndWorks(t, store, loader)

	rs := authoredRows([][2]string{
		{"A1", "W1"}, {"A1", "W2"}, {"A2", "W1"}, {"A3", "W4"},
		{"A9", "W1"}, // no such author
	})
	result, err := loader.LoadRelationships(context.Background(), rs, authoredSpec)
	require.NoError(t, err)

	assert.Equal(t, 5, result.RowsAttempted)
	assert.Equal(t, 4, result.RowsSucceeded)
	require.Len(t, result.FailedMatches, 1)
	assert.Equal(t, "A9 -> W1", result.FailedMatches[0].RowKey)
	assert.Contains(t, result.FailedMatches[0].Message, `no Author node`)

	count, err := store.RelationshipCount(context.Background(), "AUTHORED")
	require.NoError(t, err)
	assert.Equal(t, int64(4), count)
}

func TestLoadRelationshipsBeforeNodeStage(t *testing.T) {
	store := newTestStore(t)
	loader := NewLoader(store, 0, 1.0, 0, zap.NewNop().Sugar())

	// No node stage has run: every row is a failed match, never a crash.
	rs := authoredRows([][2]string{{"A1", "W1"}, {"A2", "W2"}})
	result, err := loader.LoadRelationships(context.Background(), rs, authoredSpec)
	require.NoError(t, err)

	assert.Equal(t, 0, result.RowsSucceeded)
	assert.Len(t, result.FailedMatches, 2)

	count, err := store.RelationshipCount(context.Background(), "")
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestLoadRelationshipsSymmetricCanonicalization(t *testing.T) {
	store := newTestStore(t)
	loader := NewLoader(store, 0, 0, 0, zap.NewNop().Sugar())
	seedAuthorsAndWorks(t, store, loader)

	spec := &RelationshipTarget{
		Type:      "RELATED_TO",
		From:      Endpoint{Label: "Work", KeyColumn: "a"},
		To:        Endpoint{Label: "Work", KeyColumn: "b"},
		Symmetric: true,
	}
	rs := &source.ResultSet{
		Columns: []string{"a", "b"},
		Rows: [][]interface{}{
			{"W1", "W2"},
			{"W2", "W1"}, // same pair, opposite order
		},
	}
	result, err := loader.LoadRelationships(context.Background(), rs, spec)
	require.NoError(t, err)
	assert.Equal(t, 2, result.RowsSucceeded)

	count, err := store.RelationshipCount(context.Background(), "RELATED_TO")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count, "either row order merges into one edge")
}

func TestLoadRelationshipsFailureRateHardStop(t *testing.T) {
	store := newTestStore(t)
	loader := NewLoader(store, 1, 0.5, 0, zap.NewNop().Sugar())

	// Every endpoint is unresolvable; with chunk size 1 the rate hits 100%
	// after the first chunk and the load aborts instead of grinding on.
	rs := authoredRows([][2]string{{"A1", "W1"}, {"A2", "W2"}, {"A3", "W3"}})
	result, err := loader.LoadRelationships(context.Background(), rs, authoredSpec)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrFailureRateExceeded))
	assert.Less(t, result.RowsAttempted, 3, "load stopped before consuming every chunk")
}

func TestLoadNodesFailureRateHardStopOnChunkErrors(t *testing.T) {
	// A store without bootstrap: every chunk fails at the SQL level.
	store := NewStore(qt.CreateTestDB(t), zap.NewNop().Sugar())
	loader := NewLoader(store, 100, 0.5, 0, zap.NewNop().Sugar())

	result, err := loader.LoadNodes(context.Background(), workRows(300), workSpec)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrFailureRateExceeded))
	require.NotEmpty(t, result.ChunkErrors)
	assert.Equal(t, 0, result.ChunkErrors[0].Offset)
	assert.Contains(t, result.ChunkErrors[0].Message, "chunk merge failed")
}

func TestLoadRelationshipsAccumulate(t *testing.T) {
	store := newTestStore(t)
	loader := NewLoader(store, 0, 0, 0, zap.NewNop().Sugar())
	seedAuthorsAndWorks(t, store, loader)

	spec := &RelationshipTarget{
		Type: "CITED",
		From: Endpoint{Label: "Work", KeyColumn: "citing"},
		To:   Endpoint{Label: "Work", KeyColumn: "cited"},
		Accumulate: []Fold{
			{Column: "year", Property: "first_cited_year", Fold: FoldMin},
			{Column: "year", Property: "last_cited_year", Fold: FoldMax},
		},
	}
	rs := &source.ResultSet{
		Columns: []string{"citing", "cited", "year"},
		Rows: [][]interface{}{
			{"W1", "W2", int64(2010)},
			{"W1", "W2", int64(2003)},
			{"W1", "W2", int64(2021)},
		},
	}
	_, err := loader.LoadRelationships(context.Background(), rs, spec)
	require.NoError(t, err)

	var first, last int
	err = store.DB().QueryRow(`
		SELECT json_extract(properties, '$.first_cited_year'),
		       json_extract(properties, '$.last_cited_year')
		FROM relationships WHERE rel_type = 'CITED'`).Scan(&first, &last)
	require.NoError(t, err)
	assert.Equal(t, 2003, first)
	assert.Equal(t, 2021, last)
}
