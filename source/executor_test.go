package source

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/teranos/citegraph/errors"
	qt "github.com/teranos/citegraph/internal/testing"
)

func newTestExecutor(t *testing.T, seed ...string) *Executor {
	t.Helper()
	db := qt.CreateTestSource(t, seed...)
	return NewExecutor(db, zap.NewNop().Sugar())
}

func TestRunScriptLargestResultWins(t *testing.T) {
	exec := newTestExecutor(t)

	// A 3-row diagnostic query followed by a 1000-row extraction query:
	// the extraction must be retained as the primary result.
	text := `
VALUES (1), (2), (3);
WITH RECURSIVE cnt(x) AS (SELECT 1 UNION ALL SELECT x+1 FROM cnt WHERE x < 1000)
SELECT x FROM cnt;
`
	script := ParseScript("extraction.sql", text)
	require.Len(t, script.Statements, 2)

	result, err := exec.RunScript(context.Background(), script, 0)
	require.NoError(t, err)
	require.NotNil(t, result.Primary)
	assert.Equal(t, 1000, result.Primary.Len())
	assert.Equal(t, 2, result.Primary.StatementIndex)
	assert.Equal(t, 2, result.QueryCount())
}

func TestRunScriptExplicitPrimaryOverridesLargest(t *testing.T) {
	exec := newTestExecutor(t)

	text := `
VALUES (1), (2), (3);
WITH RECURSIVE cnt(x) AS (SELECT 1 UNION ALL SELECT x+1 FROM cnt WHERE x < 100)
SELECT x FROM cnt;
`
	script := ParseScript("extraction.sql", text)

	result, err := exec.RunScript(context.Background(), script, 1)
	require.NoError(t, err)
	require.NotNil(t, result.Primary)
	assert.Equal(t, 3, result.Primary.Len(), "declared primary wins even when smaller")
	assert.Equal(t, 1, result.Primary.StatementIndex)
}

func TestRunScriptPrimaryOutOfRange(t *testing.T) {
	exec := newTestExecutor(t)
	script := ParseScript("s.sql", "SELECT 1;")

	_, err := exec.RunScript(context.Background(), script, 5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of range")
}

func TestRunScriptCriticalQueryAborts(t *testing.T) {
	exec := newTestExecutor(t)

	script := ParseScript("s.sql", `
SELECT * FROM no_such_table;
SELECT 1;
`)
	result, err := exec.RunScript(context.Background(), script, 0)
	require.Error(t, err)
	assert.True(t, errors.IsCriticalQueryError(err))

	require.Len(t, result.Outcomes, 2)
	assert.Error(t, result.Outcomes[0].Err)
	assert.True(t, result.Outcomes[1].Skipped, "statements after a critical failure are skipped")
}

func TestRunScriptNonCriticalCommandContinues(t *testing.T) {
	exec := newTestExecutor(t)

	script := ParseScript("s.sql", `
CREATE INDEX idx_missing ON no_such_table(x);
SELECT 42 AS answer;
`)
	result, err := exec.RunScript(context.Background(), script, 0)
	require.NoError(t, err, "a failed command must not abort the script")

	require.Len(t, result.Outcomes, 2)
	assert.True(t, errors.Is(result.Outcomes[0].Err, errors.ErrNonCriticalCommand))
	require.NotNil(t, result.Primary)
	assert.Equal(t, 1, result.Primary.Len())
	assert.Equal(t, []string{"answer"}, result.Primary.Columns)
}

func TestRunScriptCommandsCommitIndividually(t *testing.T) {
	db := qt.CreateTestSource(t)
	exec := NewExecutor(db, zap.NewNop().Sugar())

	// The CREATE and INSERT commit before the critical failure; their
	// effects must survive it.
	script := ParseScript("s.sql", `
CREATE TABLE staging (id TEXT);
INSERT INTO staging VALUES ('W1');
SELECT * FROM no_such_table;
`)
	_, err := exec.RunScript(context.Background(), script, 0)
	require.Error(t, err)

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM staging").Scan(&count))
	assert.Equal(t, 1, count, "committed commands survive a later critical failure")
}

func TestRunScriptUnknownDualAttempt(t *testing.T) {
	exec := newTestExecutor(t)

	// "garbage" fails both attempts: classification error recorded, script continues.
	script := ParseScript("s.sql", `
garbage;
SELECT 7;
`)
	result, err := exec.RunScript(context.Background(), script, 0)
	require.NoError(t, err, "an unclassifiable statement must not abort the script")

	require.Len(t, result.Outcomes, 2)
	assert.True(t, errors.Is(result.Outcomes[0].Err, errors.ErrStatementUnclassifiable))
	require.NotNil(t, result.Primary)
	assert.Equal(t, 1, result.Primary.Len())
}

func TestRunScriptUnknownResolvesAsQuery(t *testing.T) {
	exec := newTestExecutor(t, "CREATE TABLE t (x INTEGER)", "INSERT INTO t VALUES (1)")

	// PRAGMA is unknown to the classifier but succeeds as a query in SQLite.
	script := ParseScript("s.sql", "PRAGMA table_info(t);")
	result, err := exec.RunScript(context.Background(), script, 0)
	require.NoError(t, err)

	require.Len(t, result.Outcomes, 1)
	assert.NoError(t, result.Outcomes[0].Err)
	assert.Equal(t, KindQuery, result.Outcomes[0].Kind, "dual attempt reclassifies the statement")
}

func TestRunScriptByteSlicesNormalizedToStrings(t *testing.T) {
	exec := newTestExecutor(t,
		"CREATE TABLE works (id TEXT, title TEXT)",
		"INSERT INTO works VALUES ('W1', 'On the Electrodynamics')")

	script := ParseScript("s.sql", "SELECT id, title FROM works;")
	result, err := exec.RunScript(context.Background(), script, 0)
	require.NoError(t, err)

	require.Equal(t, 1, result.Primary.Len())
	for _, v := range result.Primary.Rows[0] {
		_, isBytes := v.([]byte)
		assert.False(t, isBytes, "[]byte values must be normalized to string")
	}
}

func TestPingWrapsSourceConnection(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectPing().WillReturnError(fmt.Errorf("dial tcp: connection refused"))

	exec := NewExecutor(db, zap.NewNop().Sugar())
	err = exec.Ping(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrSourceConnection))
	assert.Contains(t, err.Error(), "connection refused")
}

func TestRunScriptDriverLevelQueryFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT id FROM works").
		WillReturnError(fmt.Errorf("server closed the connection unexpectedly"))

	exec := NewExecutor(db, zap.NewNop().Sugar())
	script := ParseScript("works.sql", "SELECT id FROM works;")

	_, err = exec.RunScript(context.Background(), script, 0)
	require.Error(t, err)
	assert.True(t, errors.IsCriticalQueryError(err))
	// Error context carries the statement prefix for manual re-runs
	assert.True(t, strings.Contains(err.Error(), "SELECT id FROM works"))
}

func TestOpenUnsupportedDriver(t *testing.T) {
	_, err := Open("oracle", "dsn", zap.NewNop().Sugar())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported source driver")
}

func TestOpenSQLite(t *testing.T) {
	db, err := Open("sqlite3", ":memory:", zap.NewNop().Sugar())
	require.NoError(t, err)
	defer db.Close()
	assert.NoError(t, db.Ping())
}
