package verify

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/teranos/citegraph/db"
	"github.com/teranos/citegraph/errors"
	"github.com/teranos/citegraph/graph"
	qt "github.com/teranos/citegraph/internal/testing"
	"github.com/teranos/citegraph/internal/util"
)

func newTestVerifier(t *testing.T) (*GraphVerifier, *graph.Store) {
	t.Helper()
	conn := qt.CreateTestDB(t)
	require.NoError(t, db.Migrate(conn, zap.NewNop().Sugar()))
	store := graph.NewStore(conn, zap.NewNop().Sugar())
	return NewGraphVerifier(store, zap.NewNop().Sugar()), store
}

func seedGraph(t *testing.T, store *graph.Store) {
	t.Helper()
	ctx := context.Background()

	for _, n := range []struct {
		label, key string
		props      map[string]interface{}
	}{
		{"Work", "W1", map[string]interface{}{"display_name": "First", "cited_by_count": 30, "publication_year": 2019}},
		{"Work", "W2", map[string]interface{}{"display_name": "Second", "cited_by_count": 5}},
		{"Work", "W3", nil},
		{"Author", "A1", map[string]interface{}{"display_name": "Curie"}},
		{"Author", "A2", map[string]interface{}{"display_name": "Meitner"}},
	} {
		require.NoError(t, store.UpsertNode(ctx, store.DB(), n.label, n.key, n.props))
	}

	pair := func(relType, fromLabel, fromKey, toLabel, toKey string) {
		fromID, ok, err := store.ResolveNode(ctx, store.DB(), fromLabel, fromKey)
		require.NoError(t, err)
		require.True(t, ok)
		toID, ok, err := store.ResolveNode(ctx, store.DB(), toLabel, toKey)
		require.NoError(t, err)
		require.True(t, ok)
		require.NoError(t, store.UpsertRelationship(ctx, store.DB(), relType, fromID, toID, nil, nil))
	}
	pair("AUTHORED", "Author", "A1", "Work", "W1")
	pair("AUTHORED", "Author", "A2", "Work", "W1")
	pair("AUTHORED", "Author", "A1", "Work", "W2")
}

func TestCheckValidate(t *testing.T) {
	tests := []struct {
		name    string
		check   Check
		wantErr string
	}{
		{"valid node count", Check{Name: "works", Metric: MetricNodeCount, Label: "Work", AtLeast: util.Ptr(1.0)}, ""},
		{"valid rel count", Check{Name: "authored", Metric: MetricRelationshipCount, Type: "AUTHORED", Equals: util.Ptr(3.0)}, ""},
		{"missing name", Check{Metric: MetricNodeCount, AtLeast: util.Ptr(1.0)}, "without a name"},
		{"unknown metric", Check{Name: "x", Metric: "median", AtLeast: util.Ptr(1.0)}, "unknown metric"},
		{"rel count without type", Check{Name: "x", Metric: MetricRelationshipCount, AtLeast: util.Ptr(1.0)}, "requires type"},
		{"ratio without relationship", Check{Name: "x", Metric: MetricConnectedRatio, Label: "Work", AtLeast: util.Ptr(0.5)}, "requires label and relationship"},
		{"property without property", Check{Name: "x", Metric: MetricPropertyPresent, Label: "Work", AtLeast: util.Ptr(1.0)}, "requires label and property"},
		{"no bound", Check{Name: "x", Metric: MetricNodeCount, Label: "Work"}, "no bound"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.check.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				assert.True(t, errors.Is(err, errors.ErrCatalogInvalid))
			}
		})
	}
}

func TestEvaluate(t *testing.T) {
	verifier, store := newTestVerifier(t)
	seedGraph(t, store)

	results, err := verifier.Evaluate(context.Background(), []Check{
		{Name: "total_works", Metric: MetricNodeCount, Label: "Work", Equals: util.Ptr(3.0)},
		{Name: "total_authorships", Metric: MetricRelationshipCount, Type: "AUTHORED", Equals: util.Ptr(3.0)},
		{Name: "works_cited", Metric: MetricPropertyPresent, Label: "Work", Property: "cited_by_count", AtLeast: util.Ptr(2.0)},
	})
	require.NoError(t, err)
	require.Len(t, results, 3)
	for _, r := range results {
		assert.True(t, r.Passed, r.Name)
	}
}

func TestEvaluateConnectedRatio(t *testing.T) {
	verifier, store := newTestVerifier(t)
	seedGraph(t, store)

	// W1 and W2 have authors, W3 does not: 2/3.
	results, err := verifier.Evaluate(context.Background(), []Check{
		{Name: "works_with_authors", Metric: MetricConnectedRatio, Label: "Work", Relationship: "AUTHORED", AtLeast: util.Ptr(0.5)},
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.InDelta(t, 2.0/3.0, results[0].Value, 1e-9)
	assert.True(t, results[0].Passed)
}

func TestEvaluateFailureWrapsSentinel(t *testing.T) {
	verifier, store := newTestVerifier(t)
	seedGraph(t, store)

	results, err := verifier.Evaluate(context.Background(), []Check{
		{Name: "too_many_works", Metric: MetricNodeCount, Label: "Work", AtLeast: util.Ptr(100.0)},
		{Name: "authorships", Metric: MetricRelationshipCount, Type: "AUTHORED", AtLeast: util.Ptr(1.0)},
	})
	require.Error(t, err)
	assert.True(t, errors.IsVerificationError(err))
	require.Len(t, results, 2, "results are complete even when checks fail")
	assert.False(t, results[0].Passed)
	assert.True(t, results[1].Passed)
}

func TestEvaluateEmptyGraphRatio(t *testing.T) {
	verifier, _ := newTestVerifier(t)

	results, err := verifier.Evaluate(context.Background(), []Check{
		{Name: "ratio", Metric: MetricConnectedRatio, Label: "Work", Relationship: "AUTHORED", AtMost: util.Ptr(1.0)},
	})
	require.NoError(t, err)
	assert.Zero(t, results[0].Value, "empty label yields ratio 0, not division by zero")
}

func TestBuildReport(t *testing.T) {
	verifier, store := newTestVerifier(t)
	seedGraph(t, store)

	report, err := verifier.BuildReport(context.Background(), HealthSpec{
		Connectivity: []RatioSpec{
			{Name: "works_with_authors", Label: "Work", Relationship: "AUTHORED"},
		},
		Quality: []Check{
			{Name: "works_named", Metric: MetricPropertyPresent, Label: "Work", Property: "display_name", AtLeast: util.Ptr(2.0)},
		},
		Top: []TopSpec{
			{Name: "most_cited_works", Label: "Work", Property: "cited_by_count", Limit: 5},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, map[string]int64{"Work": 3, "Author": 2}, report.NodeCounts)
	assert.Equal(t, map[string]int64{"AUTHORED": 3}, report.RelationshipCounts)

	require.Len(t, report.Connectivity, 1)
	assert.Equal(t, int64(2), report.Connectivity[0].Connected)
	assert.Equal(t, int64(3), report.Connectivity[0].Total)

	require.Len(t, report.Quality, 1)
	assert.True(t, report.Quality[0].Passed)

	require.Len(t, report.Top, 1)
	require.Len(t, report.Top[0].Entries, 2)
	assert.Equal(t, "First", report.Top[0].Entries[0].Key)
}

func TestBuildReportFailingQualityIsContent(t *testing.T) {
	verifier, store := newTestVerifier(t)
	seedGraph(t, store)

	report, err := verifier.BuildReport(context.Background(), HealthSpec{
		Quality: []Check{
			{Name: "impossible", Metric: MetricNodeCount, Label: "Work", AtLeast: util.Ptr(1e6)},
		},
	})
	require.NoError(t, err, "a failing quality predicate is report content, not an error")
	require.Len(t, report.Quality, 1)
	assert.False(t, report.Quality[0].Passed)
}
