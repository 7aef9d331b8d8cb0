package graph

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/teranos/citegraph/errors"
)

// execer is satisfied by both *sql.DB and *sql.Tx. Write operations take it
// explicitly so the loader can scope a chunk to one transaction.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Store is the property-graph target. One Store per run; the verifier and
// loader share it.
type Store struct {
	db     *sql.DB
	logger *zap.SugaredLogger
}

// NewStore wraps an open, migrated graph database.
func NewStore(db *sql.DB, logger *zap.SugaredLogger) *Store {
	return &Store{db: db, logger: logger}
}

// DB exposes the underlying handle for transaction control.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Ping verifies the target is reachable and writable enough to run against.
// A failure wraps ErrGraphConnection and aborts the run before any stage.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return errors.Wrap(errors.ErrGraphConnection, err.Error())
	}
	return nil
}

// UpsertNode merges one node by (label, natural key). Properties are
// json_patch-ed over whatever a previous run stored, so repeat runs converge
// on the latest values without duplicating the node.
func (s *Store) UpsertNode(ctx context.Context, tx execer, label, key string, props map[string]interface{}) error {
	propsJSON, err := json.Marshal(props)
	if err != nil {
		return errors.Wrapf(err, "marshaling properties for %s %q", label, key)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO nodes (label, natural_key, properties)
		VALUES (?, ?, json(?))
		ON CONFLICT (label, natural_key) DO UPDATE SET
			properties = json_patch(nodes.properties, excluded.properties),
			updated_at = datetime('now')`,
		label, key, string(propsJSON))
	if err != nil {
		return errors.Wrapf(err, "upserting node %s %q", label, key)
	}
	return nil
}

// ResolveNode looks up a node id by (label, natural key). The second return
// is false when no such node exists; the loader records that as a failed
// match rather than an error.
func (s *Store) ResolveNode(ctx context.Context, tx execer, label, key string) (int64, bool, error) {
	var id int64
	err := tx.QueryRowContext(ctx,
		`SELECT id FROM nodes WHERE label = ? AND natural_key = ?`,
		label, key).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, errors.Wrapf(err, "resolving node %s %q", label, key)
	}
	return id, true, nil
}

// FoldValue is one accumulating property value for a single row.
type FoldValue struct {
	Property string
	Kind     FoldKind
	Value    interface{}
}

// UpsertRelationship merges one edge by (type, from, to). Overwrite
// properties patch over the stored edge; accumulating properties fold with
// MIN/MAX in SQL, so a re-run or a repeat pairing converges on the extreme
// value rather than the last one seen.
func (s *Store) UpsertRelationship(ctx context.Context, tx execer, relType string, fromID, toID int64, props map[string]interface{}, folds []FoldValue) error {
	// The initial insert carries fold values too; the conflict patch does
	// not, so folds are never plainly overwritten on merge.
	initial := make(map[string]interface{}, len(props)+len(folds))
	for k, v := range props {
		initial[k] = v
	}
	for _, f := range folds {
		initial[f.Property] = f.Value
	}

	initialJSON, err := json.Marshal(initial)
	if err != nil {
		return errors.Wrapf(err, "marshaling properties for %s %d->%d", relType, fromID, toID)
	}
	overwriteJSON, err := json.Marshal(props)
	if err != nil {
		return errors.Wrapf(err, "marshaling properties for %s %d->%d", relType, fromID, toID)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO relationships (rel_type, from_id, to_id, properties)
		VALUES (?, ?, ?, json(?))
		ON CONFLICT (rel_type, from_id, to_id) DO UPDATE SET
			properties = json_patch(relationships.properties, json(?)),
			updated_at = datetime('now')`,
		relType, fromID, toID, string(initialJSON), string(overwriteJSON))
	if err != nil {
		return errors.Wrapf(err, "upserting relationship %s %d->%d", relType, fromID, toID)
	}

	for _, f := range folds {
		fn := "MAX"
		if f.Kind == FoldMin {
			fn = "MIN"
		}
		path := "$." + f.Property
		query := fmt.Sprintf(`
			UPDATE relationships
			SET properties = json_set(properties, ?, %s(COALESCE(json_extract(properties, ?), ?), ?)),
			    updated_at = datetime('now')
			WHERE rel_type = ? AND from_id = ? AND to_id = ?`, fn)
		if _, err := tx.ExecContext(ctx, query,
			path, path, f.Value, f.Value, relType, fromID, toID); err != nil {
			return errors.Wrapf(err, "folding %s on %s %d->%d", f.Property, relType, fromID, toID)
		}
	}

	return nil
}

// NodeCount counts nodes, optionally restricted to one label.
func (s *Store) NodeCount(ctx context.Context, label string) (int64, error) {
	var count int64
	var err error
	if label == "" {
		err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM nodes`).Scan(&count)
	} else {
		err = s.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM nodes WHERE label = ?`, label).Scan(&count)
	}
	if err != nil {
		return 0, errors.Wrap(err, "counting nodes")
	}
	return count, nil
}

// RelationshipCount counts edges, optionally restricted to one type.
func (s *Store) RelationshipCount(ctx context.Context, relType string) (int64, error) {
	var count int64
	var err error
	if relType == "" {
		err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM relationships`).Scan(&count)
	} else {
		err = s.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM relationships WHERE rel_type = ?`, relType).Scan(&count)
	}
	if err != nil {
		return 0, errors.Wrap(err, "counting relationships")
	}
	return count, nil
}

// ConnectedNodeCount counts nodes of a label that participate in at least
// one relationship of the given type, on either end.
func (s *Store) ConnectedNodeCount(ctx context.Context, label, relType string) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(DISTINCT n.id)
		FROM nodes n
		JOIN relationships r ON (r.from_id = n.id OR r.to_id = n.id) AND r.rel_type = ?
		WHERE n.label = ?`,
		relType, label).Scan(&count)
	if err != nil {
		return 0, errors.Wrapf(err, "counting %s nodes connected by %s", label, relType)
	}
	return count, nil
}

// PropertyPresentCount counts nodes of a label where the property is
// present and non-null.
func (s *Store) PropertyPresentCount(ctx context.Context, label, property string) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM nodes
		WHERE label = ? AND json_extract(properties, ?) IS NOT NULL`,
		label, "$."+property).Scan(&count)
	if err != nil {
		return 0, errors.Wrapf(err, "counting %s nodes with %s", label, property)
	}
	return count, nil
}

// TopEntry is one row of a top-N listing.
type TopEntry struct {
	Key   string  `json:"key"`
	Value float64 `json:"value"`
}

// TopNodesByProperty returns the top-N nodes of a label ordered by a numeric
// property, keyed by display_name when present, natural key otherwise.
func (s *Store) TopNodesByProperty(ctx context.Context, label, property string, limit int) ([]TopEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT COALESCE(json_extract(properties, '$.display_name'), natural_key),
		       CAST(json_extract(properties, ?) AS REAL)
		FROM nodes
		WHERE label = ? AND json_extract(properties, ?) IS NOT NULL
		ORDER BY 2 DESC
		LIMIT ?`,
		"$."+property, label, "$."+property, limit)
	if err != nil {
		return nil, errors.Wrapf(err, "listing top %s by %s", label, property)
	}
	defer rows.Close()

	var entries []TopEntry
	for rows.Next() {
		var e TopEntry
		if err := rows.Scan(&e.Key, &e.Value); err != nil {
			return nil, errors.Wrap(err, "scanning top entry")
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// LabelCounts returns node counts grouped by label.
func (s *Store) LabelCounts(ctx context.Context) (map[string]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT label, COUNT(*) FROM nodes GROUP BY label`)
	if err != nil {
		return nil, errors.Wrap(err, "counting nodes by label")
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var label string
		var count int64
		if err := rows.Scan(&label, &count); err != nil {
			return nil, errors.Wrap(err, "scanning label count")
		}
		counts[label] = count
	}
	return counts, rows.Err()
}

// RelTypeCounts returns relationship counts grouped by type.
func (s *Store) RelTypeCounts(ctx context.Context) (map[string]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT rel_type, COUNT(*) FROM relationships GROUP BY rel_type`)
	if err != nil {
		return nil, errors.Wrap(err, "counting relationships by type")
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var relType string
		var count int64
		if err := rows.Scan(&relType, &count); err != nil {
			return nil, errors.Wrap(err, "scanning relationship count")
		}
		counts[relType] = count
	}
	return counts, rows.Err()
}
