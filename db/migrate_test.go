package db

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenWithMigrations(t *testing.T) {
	t.Run("applies graph schema bootstrap", func(t *testing.T) {
		tmpDir := t.TempDir()
		dbPath := filepath.Join(tmpDir, "test.db")

		db, err := OpenWithMigrations(dbPath, nil)
		require.NoError(t, err)
		require.NotNil(t, db)
		defer db.Close()

		for _, table := range []string{"schema_migrations", "nodes", "relationships", "runs"} {
			var count int
			err = db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&count)
			require.NoError(t, err)
			assert.Equal(t, 1, count, "table %s should exist after migrations", table)
		}
	})

	t.Run("natural key uniqueness is enforced", func(t *testing.T) {
		tmpDir := t.TempDir()
		db, err := OpenWithMigrations(filepath.Join(tmpDir, "test.db"), nil)
		require.NoError(t, err)
		defer db.Close()

		_, err = db.Exec(`INSERT INTO nodes (label, natural_key) VALUES ('Work', 'W1')`)
		require.NoError(t, err)

		_, err = db.Exec(`INSERT INTO nodes (label, natural_key) VALUES ('Work', 'W1')`)
		assert.Error(t, err, "duplicate (label, natural_key) must violate the uniqueness constraint")

		// Same key under another label is a different node
		_, err = db.Exec(`INSERT INTO nodes (label, natural_key) VALUES ('Author', 'W1')`)
		assert.NoError(t, err)
	})

	t.Run("re-applying migrations is a no-op", func(t *testing.T) {
		tmpDir := t.TempDir()
		dbPath := filepath.Join(tmpDir, "test.db")

		db, err := OpenWithMigrations(dbPath, nil)
		require.NoError(t, err)

		_, err = db.Exec(`INSERT INTO nodes (label, natural_key) VALUES ('Work', 'W1')`)
		require.NoError(t, err)
		db.Close()

		// Second open must skip already-applied migrations and keep data
		db, err = OpenWithMigrations(dbPath, nil)
		require.NoError(t, err)
		defer db.Close()

		var count int
		require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM nodes").Scan(&count))
		assert.Equal(t, 1, count)

		var applied int
		require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&applied))
		assert.Equal(t, 3, applied, "one row per migration file")
	})

	t.Run("relationships require existing endpoints", func(t *testing.T) {
		tmpDir := t.TempDir()
		db, err := OpenWithMigrations(filepath.Join(tmpDir, "test.db"), nil)
		require.NoError(t, err)
		defer db.Close()

		_, err = db.Exec(`INSERT INTO relationships (rel_type, from_id, to_id) VALUES ('CITED', 999, 998)`)
		assert.Error(t, err, "foreign keys must reject dangling endpoints")
	})
}
