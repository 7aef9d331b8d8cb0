// Package source executes batches of SQL statements against the relational
// source and classifies each as a data-producing query or a side-effecting
// command. The classifier is a heuristic over statement text, not a parser;
// statements it cannot place are attempted both ways with the fallback
// logged explicitly.
package source

import (
	"strings"
)

// StatementKind is the classifier's verdict for one statement.
type StatementKind string

const (
	// KindQuery is a result-producing statement (SELECT, WITH, VALUES).
	KindQuery StatementKind = "query"
	// KindCommand is a side-effecting statement (DDL/DML), committed individually.
	KindCommand StatementKind = "command"
	// KindUnknown matched neither heuristic. Executed with a dual attempt:
	// query first, command second.
	KindUnknown StatementKind = "unknown"
)

// Statement is one classified fragment of a script.
type Statement struct {
	Text  string
	Index int // 1-based position within the script
	Kind  StatementKind
}

// Script is a named, ordered batch of statements.
type Script struct {
	Name       string
	Statements []Statement
}

// ParseScript splits a script on semicolons, drops blank and comment-only
// fragments, and classifies each remaining statement.
func ParseScript(name, text string) *Script {
	script := &Script{Name: name}

	for _, fragment := range strings.Split(text, ";") {
		trimmed := strings.TrimSpace(fragment)
		if trimmed == "" {
			continue
		}
		if firstContentLine(trimmed) == "" {
			// Comment-only fragment
			continue
		}
		script.Statements = append(script.Statements, Statement{
			Text:  trimmed,
			Index: len(script.Statements) + 1,
			Kind:  Classify(trimmed),
		})
	}

	return script
}

// Classify inspects a statement's first non-comment, non-blank line and
// returns its kind. Case-insensitive keyword match:
//
//   - SELECT/WITH/VALUES-led statements are queries
//   - CREATE/DROP/INSERT/UPDATE/DELETE/ALTER/TRUNCATE-led statements, and any
//     statement containing CREATE TEMP TABLE / CREATE TEMPORARY TABLE /
//     CREATE INDEX, are commands
//   - everything else is KindUnknown
func Classify(text string) StatementKind {
	line := firstContentLine(text)
	if line == "" {
		return KindUnknown
	}

	keyword := strings.ToUpper(firstWord(line))
	switch keyword {
	case "SELECT", "WITH", "VALUES":
		return KindQuery
	case "CREATE", "DROP", "INSERT", "UPDATE", "DELETE", "ALTER", "TRUNCATE":
		return KindCommand
	}

	// Temp-table and index creation can hide behind other leading tokens
	// in warehouse dialects ("IF NOT EXISTS" wrappers and the like).
	upper := strings.ToUpper(text)
	if strings.Contains(upper, "CREATE TEMP TABLE") ||
		strings.Contains(upper, "CREATE TEMPORARY TABLE") ||
		strings.Contains(upper, "CREATE INDEX") {
		return KindCommand
	}

	return KindUnknown
}

// firstContentLine returns the first line that is neither blank nor a
// line comment, or "" when the text is all comments and whitespace.
func firstContentLine(text string) string {
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "--") {
			continue
		}
		return trimmed
	}
	return ""
}

func firstWord(line string) string {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return ""
	}
	// Strip trailing punctuation like "SELECT(" from compact SQL
	return strings.TrimFunc(fields[0], func(r rune) bool {
		return r == '(' || r == ';'
	})
}
