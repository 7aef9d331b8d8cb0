package errors

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSentinelWrappingPreservesIdentity(t *testing.T) {
	err := Wrap(ErrCriticalQuery, "statement 3 of 01_works.sql")
	assert.True(t, Is(err, ErrCriticalQuery))
	assert.False(t, Is(err, ErrNonCriticalCommand))
}

func TestIsCriticalQueryError(t *testing.T) {
	assert.False(t, IsCriticalQueryError(nil))
	assert.False(t, IsCriticalQueryError(New("unrelated")))
	assert.True(t, IsCriticalQueryError(ErrCriticalQuery))
	assert.True(t, IsCriticalQueryError(Wrap(ErrCriticalQuery, "context")))
}

func TestIsVerificationError(t *testing.T) {
	assert.False(t, IsVerificationError(nil))
	assert.True(t, IsVerificationError(NewVerificationError("check %s failed", "works_loaded")))
}

func TestIsConnectionError(t *testing.T) {
	assert.True(t, IsConnectionError(Wrap(ErrSourceConnection, "dial tcp")))
	assert.True(t, IsConnectionError(Wrap(ErrGraphConnection, "open db")))
	assert.False(t, IsConnectionError(ErrChunkMerge))
}

func TestWrapCriticalQuery(t *testing.T) {
	cause := New("relation \"works\" does not exist")
	err := WrapCriticalQuery(cause, "statement 2")

	assert.True(t, Is(err, ErrCriticalQuery))
	assert.Contains(t, err.Error(), "statement 2")
	assert.Contains(t, err.Error(), "does not exist")
}

func TestWrapChunkMerge(t *testing.T) {
	cause := New("UNIQUE constraint failed")
	err := WrapChunkMerge(cause, "chunk offset 2000")

	assert.True(t, Is(err, ErrChunkMerge))
	assert.Contains(t, err.Error(), "chunk offset 2000")
}

func TestNewCatalogError(t *testing.T) {
	err := NewCatalogError("stage %q ordinal %d duplicated", "01_works", 1)
	assert.True(t, Is(err, ErrCatalogInvalid))
	assert.Contains(t, err.Error(), "01_works")
}

func TestIsNotFoundError(t *testing.T) {
	assert.False(t, IsNotFoundError(nil))
	assert.True(t, IsNotFoundError(ErrNotFound))
	assert.True(t, IsNotFoundError(Wrap(ErrNotFound, "stage lookup")))
	// String-based fallback for errors from outside this package
	assert.True(t, IsNotFoundError(New("run r8Kq not found")))
}
