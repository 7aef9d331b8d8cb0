package graph

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/teranos/citegraph/db"
	qt "github.com/teranos/citegraph/internal/testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	conn := qt.CreateTestDB(t)
	require.NoError(t, db.Migrate(conn, zap.NewNop().Sugar()))
	return NewStore(conn, zap.NewNop().Sugar())
}

func TestUpsertNodeIdempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	props := map[string]interface{}{"display_name": "Attention Is All You Need", "publication_year": 2017}
	require.NoError(t, store.UpsertNode(ctx, store.DB(), "Work", "W1", props))
	require.NoError(t, store.UpsertNode(ctx, store.DB(), "Work", "W1", props))

	count, err := store.NodeCount(ctx, "Work")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestUpsertNodeOverwritesWithLatest(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertNode(ctx, store.DB(), "Work", "W1",
		map[string]interface{}{"cited_by_count": 10, "type": "article"}))
	require.NoError(t, store.UpsertNode(ctx, store.DB(), "Work", "W1",
		map[string]interface{}{"cited_by_count": 12}))

	var cited int
	var typ string
	err := store.DB().QueryRow(`
		SELECT json_extract(properties, '$.cited_by_count'),
		       json_extract(properties, '$.type')
		FROM nodes WHERE label = 'Work' AND natural_key = 'W1'`).Scan(&cited, &typ)
	require.NoError(t, err)
	assert.Equal(t, 12, cited, "repeat merge overwrites with latest value")
	assert.Equal(t, "article", typ, "properties absent from the later merge survive")
}

func TestResolveNode(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertNode(ctx, store.DB(), "Author", "A1", nil))

	id, ok, err := store.ResolveNode(ctx, store.DB(), "Author", "A1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Greater(t, id, int64(0))

	_, ok, err = store.ResolveNode(ctx, store.DB(), "Author", "A404")
	require.NoError(t, err)
	assert.False(t, ok, "missing node is not an error")

	_, ok, err = store.ResolveNode(ctx, store.DB(), "Work", "A1")
	require.NoError(t, err)
	assert.False(t, ok, "natural keys are scoped per label")
}

func TestUpsertRelationshipIdempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertNode(ctx, store.DB(), "Author", "A1", nil))
	require.NoError(t, store.UpsertNode(ctx, store.DB(), "Work", "W1", nil))
	aID, _, _ := store.ResolveNode(ctx, store.DB(), "Author", "A1")
	wID, _, _ := store.ResolveNode(ctx, store.DB(), "Work", "W1")

	props := map[string]interface{}{"author_position": "first"}
	require.NoError(t, store.UpsertRelationship(ctx, store.DB(), "AUTHORED", aID, wID, props, nil))
	require.NoError(t, store.UpsertRelationship(ctx, store.DB(), "AUTHORED", aID, wID, props, nil))

	count, err := store.RelationshipCount(ctx, "AUTHORED")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestUpsertRelationshipFolds(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertNode(ctx, store.DB(), "Work", "W1", nil))
	require.NoError(t, store.UpsertNode(ctx, store.DB(), "Work", "W2", nil))
	w1, _, _ := store.ResolveNode(ctx, store.DB(), "Work", "W1")
	w2, _, _ := store.ResolveNode(ctx, store.DB(), "Work", "W2")

	merge := func(year int) {
		require.NoError(t, store.UpsertRelationship(ctx, store.DB(), "CITED", w1, w2, nil, []FoldValue{
			{Property: "first_cited_year", Kind: FoldMin, Value: year},
			{Property: "last_cited_year", Kind: FoldMax, Value: year},
		}))
	}
	merge(2005)
	merge(2001)
	merge(2019)

	var first, last int
	err := store.DB().QueryRow(`
		SELECT json_extract(properties, '$.first_cited_year'),
		       json_extract(properties, '$.last_cited_year')
		FROM relationships WHERE rel_type = 'CITED'`).Scan(&first, &last)
	require.NoError(t, err)
	assert.Equal(t, 2001, first, "min fold keeps the smallest value seen")
	assert.Equal(t, 2019, last, "max fold keeps the largest value seen")
}

func TestReadSideHelpers(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, n := range []struct {
		label, key string
		props      map[string]interface{}
	}{
		{"Work", "W1", map[string]interface{}{"display_name": "Paper One", "cited_by_count": 50}},
		{"Work", "W2", map[string]interface{}{"display_name": "Paper Two", "cited_by_count": 10}},
		{"Work", "W3", nil},
		{"Author", "A1", map[string]interface{}{"display_name": "Noether"}},
	} {
		require.NoError(t, store.UpsertNode(ctx, store.DB(), n.label, n.key, n.props))
	}

	a1, _, _ := store.ResolveNode(ctx, store.DB(), "Author", "A1")
	w1, _, _ := store.ResolveNode(ctx, store.DB(), "Work", "W1")
	require.NoError(t, store.UpsertRelationship(ctx, store.DB(), "AUTHORED", a1, w1, nil, nil))

	total, err := store.NodeCount(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, int64(4), total)

	works, err := store.NodeCount(ctx, "Work")
	require.NoError(t, err)
	assert.Equal(t, int64(3), works)

	connected, err := store.ConnectedNodeCount(ctx, "Work", "AUTHORED")
	require.NoError(t, err)
	assert.Equal(t, int64(1), connected)

	present, err := store.PropertyPresentCount(ctx, "Work", "cited_by_count")
	require.NoError(t, err)
	assert.Equal(t, int64(2), present)

	top, err := store.TopNodesByProperty(ctx, "Work", "cited_by_count", 10)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, "Paper One", top[0].Key)
	assert.Equal(t, float64(50), top[0].Value)

	labels, err := store.LabelCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"Work": 3, "Author": 1}, labels)

	types, err := store.RelTypeCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"AUTHORED": 1}, types)
}
