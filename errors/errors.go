// Package errors provides error handling for citegraph.
//
// This package re-exports github.com/cockroachdb/errors, providing:
//   - Stack traces for debugging
//   - Error wrapping and context
//   - PII-safe error formatting
//
// Usage:
//
//	// Create new error
//	err := errors.New("something went wrong")
//
//	// Wrap with context
//	if err := doSomething(); err != nil {
//	    return errors.Wrap(err, "failed to do something")
//	}
//
//	// Add hints for users
//	return errors.WithHint(err, "try increasing the stage timeout")
//
//	// Check errors
//	if errors.Is(err, errors.ErrCriticalQuery) {
//	    // abort the remaining statements
//	}
//
// For full documentation see: https://pkg.go.dev/github.com/cockroachdb/errors
package errors

import (
	crdb "github.com/cockroachdb/errors"
)

// Core error creation and wrapping
var (
	New          = crdb.New
	Newf         = crdb.Newf
	Wrap         = crdb.Wrap
	Wrapf        = crdb.Wrapf
	WithStack    = crdb.WithStack
	WithMessage  = crdb.WithMessage
	WithMessagef = crdb.WithMessagef
)

// User-facing messages and details
var (
	WithHint           = crdb.WithHint
	WithHintf          = crdb.WithHintf
	WithDetail         = crdb.WithDetail
	WithDetailf        = crdb.WithDetailf
	WithSafeDetails    = crdb.WithSafeDetails
	WithSecondaryError = crdb.WithSecondaryError
)

// Error inspection
var (
	Is             = crdb.Is
	IsAny          = crdb.IsAny
	As             = crdb.As
	Unwrap         = crdb.Unwrap
	UnwrapOnce     = crdb.UnwrapOnce
	UnwrapAll      = crdb.UnwrapAll
	GetAllHints    = crdb.GetAllHints
	GetAllDetails  = crdb.GetAllDetails
	FlattenHints   = crdb.FlattenHints
	FlattenDetails = crdb.FlattenDetails
)

// Advanced features
var (
	Handled            = crdb.Handled
	HandledWithMessage = crdb.HandledWithMessage
	Mark               = crdb.Mark
	CombineErrors      = crdb.CombineErrors
)

// Assertions and panics
var (
	AssertionFailedf                 = crdb.AssertionFailedf
	NewAssertionErrorWithWrappedErrf = crdb.NewAssertionErrorWithWrappedErrf
)

// Sentinel errors for the pipeline failure taxonomy.
// Use these with errors.Is() for type-safe error checking.
// Wrap these with errors.Wrap() to add context while preserving the type.
var (
	// ErrNotFound indicates the requested resource does not exist
	ErrNotFound = New("not found")

	// ErrSourceConnection indicates the relational source is unreachable.
	// Fatal: a run aborts before any stage executes.
	ErrSourceConnection = New("source connection failed")

	// ErrGraphConnection indicates the graph store is unreachable.
	// Fatal: a run aborts before any stage executes.
	ErrGraphConnection = New("graph connection failed")

	// ErrStatementUnclassifiable indicates a statement matched neither the
	// query nor the command heuristic and both execution attempts failed.
	// The statement is skipped and the script continues.
	ErrStatementUnclassifiable = New("statement could not be classified")

	// ErrCriticalQuery indicates a data-producing query failed. The remaining
	// statements of that script are aborted.
	ErrCriticalQuery = New("critical query failed")

	// ErrNonCriticalCommand indicates a side-effecting statement failed,
	// often because the constraint or index already exists. Logged, ignored.
	ErrNonCriticalCommand = New("non-critical command failed")

	// ErrChunkMerge indicates one chunk's merges failed. Recorded per chunk;
	// the stage continues with the next chunk.
	ErrChunkMerge = New("chunk merge failed")

	// ErrFailureRateExceeded indicates the cumulative chunk failure rate
	// crossed the configured hard-stop threshold. Fatal for the stage.
	ErrFailureRateExceeded = New("failure rate exceeded hard-stop threshold")

	// ErrVerificationFailed indicates a post-load verification predicate did
	// not hold. The stage is marked failed; only a foundational-stage
	// verification failure aborts the whole run.
	ErrVerificationFailed = New("stage verification failed")

	// ErrCatalogInvalid indicates the stage catalog failed validation.
	ErrCatalogInvalid = New("stage catalog invalid")

	// ErrCatalogIncompatible indicates the catalog declares a version outside
	// the range this binary supports.
	ErrCatalogIncompatible = New("stage catalog version incompatible")

	// ErrMissingScript indicates a stage's declared extraction source could
	// not be resolved during preflight.
	ErrMissingScript = New("stage source script not resolvable")
)

// IsNotFoundError checks if an error is or wraps ErrNotFound.
// Also provides backward compatibility with string-based "not found" errors.
func IsNotFoundError(err error) bool {
	if err == nil {
		return false
	}
	if Is(err, ErrNotFound) {
		return true
	}
	errMsg := err.Error()
	return len(errMsg) >= 9 && (errMsg == "not found" ||
		errMsg[len(errMsg)-9:] == "not found" ||
		len(errMsg) > 10 && errMsg[:10] == "not found:")
}

// IsCriticalQueryError checks if an error is or wraps ErrCriticalQuery
func IsCriticalQueryError(err error) bool {
	return err != nil && Is(err, ErrCriticalQuery)
}

// IsVerificationError checks if an error is or wraps ErrVerificationFailed
func IsVerificationError(err error) bool {
	return err != nil && Is(err, ErrVerificationFailed)
}

// IsConnectionError checks if an error wraps either connection sentinel
func IsConnectionError(err error) bool {
	return err != nil && (Is(err, ErrSourceConnection) || Is(err, ErrGraphConnection))
}

// WrapCriticalQuery wraps an error as a critical query failure with context
func WrapCriticalQuery(err error, context string) error {
	return Wrap(Wrap(ErrCriticalQuery, err.Error()), context)
}

// WrapChunkMerge wraps an error as a chunk merge failure with context
func WrapChunkMerge(err error, context string) error {
	return Wrap(Wrap(ErrChunkMerge, err.Error()), context)
}

// NewCatalogError creates a catalog validation error with a formatted message
func NewCatalogError(format string, args ...interface{}) error {
	return Wrap(ErrCatalogInvalid, Newf(format, args...).Error())
}

// NewVerificationError creates a verification failure with a formatted message
func NewVerificationError(format string, args ...interface{}) error {
	return Wrap(ErrVerificationFailed, Newf(format, args...).Error())
}
