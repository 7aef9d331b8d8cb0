package logger

import (
	"github.com/teranos/citegraph/sym"
)

// Symbol-aware logging helpers.
// These functions log with the glyph as a structured field, not in the message.
//
// Usage:
//
//	// Instead of:
//	logger.Infow(sym.Stage + " Stage started", "stage_id", id)
//
//	// Use:
//	logger.StageInfow("Stage started", "stage_id", id)
//
// This makes logs queryable by symbol and keeps messages clean.

// RunInfow logs an info message with the Run symbol (✦)
func RunInfow(msg string, keysAndValues ...interface{}) {
	if Logger != nil {
		fields := append([]interface{}{FieldSymbol, sym.Run}, keysAndValues...)
		Logger.Infow(msg, fields...)
	}
}

// StageInfow logs an info message with the Stage symbol (◆)
func StageInfow(msg string, keysAndValues ...interface{}) {
	if Logger != nil {
		fields := append([]interface{}{FieldSymbol, sym.Stage}, keysAndValues...)
		Logger.Infow(msg, fields...)
	}
}

// StageWarnw logs a warning message with the Stage symbol (◆)
func StageWarnw(msg string, keysAndValues ...interface{}) {
	if Logger != nil {
		fields := append([]interface{}{FieldSymbol, sym.Stage}, keysAndValues...)
		Logger.Warnw(msg, fields...)
	}
}

// DBInfow logs an info message with the DB symbol (⊔)
func DBInfow(msg string, keysAndValues ...interface{}) {
	if Logger != nil {
		fields := append([]interface{}{FieldSymbol, sym.DB}, keysAndValues...)
		Logger.Infow(msg, fields...)
	}
}

// VerifyInfow logs an info message with the Verify symbol (⊨)
func VerifyInfow(msg string, keysAndValues ...interface{}) {
	if Logger != nil {
		fields := append([]interface{}{FieldSymbol, sym.Verify}, keysAndValues...)
		Logger.Infow(msg, fields...)
	}
}
