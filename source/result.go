package source

import (
	"time"
)

// ResultSet is a fully materialized query result.
type ResultSet struct {
	Columns        []string
	Rows           [][]interface{}
	StatementIndex int // 1-based index of the producing statement
}

// Len returns the number of rows.
func (rs *ResultSet) Len() int {
	if rs == nil {
		return 0
	}
	return len(rs.Rows)
}

// StatementOutcome records what happened to one statement of a script.
type StatementOutcome struct {
	Index        int           `json:"index"`
	Kind         StatementKind `json:"kind"`
	RowsReturned int           `json:"rows_returned,omitempty"`
	RowsAffected int64         `json:"rows_affected,omitempty"`
	Skipped      bool          `json:"skipped,omitempty"`
	Err          error         `json:"-"`
	ErrMessage   string        `json:"error,omitempty"`
}

// ScriptResult aggregates a script run: per-statement outcomes plus the
// primary extraction result. A script legitimately mixes small diagnostic
// queries with one large extraction query; only the primary is persisted.
type ScriptResult struct {
	Script   *Script
	Primary  *ResultSet
	Outcomes []StatementOutcome
	Started  time.Time
	Ended    time.Time
}

// QueryCount returns how many statements produced a result set.
func (sr *ScriptResult) QueryCount() int {
	n := 0
	for _, o := range sr.Outcomes {
		if o.Kind == KindQuery && o.Err == nil && !o.Skipped {
			n++
		}
	}
	return n
}

// FailedCount returns how many statements recorded an error.
func (sr *ScriptResult) FailedCount() int {
	n := 0
	for _, o := range sr.Outcomes {
		if o.Err != nil {
			n++
		}
	}
	return n
}
