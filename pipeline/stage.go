// Package pipeline sequences the staged, idempotent load: catalog parsing,
// stage state, preflight, the run loop, and the persisted run record.
package pipeline

import (
	"os"
	"path/filepath"
	"time"

	"github.com/teranos/citegraph/errors"
	"github.com/teranos/citegraph/graph"
	"github.com/teranos/citegraph/source"
	"github.com/teranos/citegraph/verify"
)

// StageKind says what a stage merges: nodes or relationships.
type StageKind string

const (
	StageKindNode         StageKind = "node"
	StageKindRelationship StageKind = "relationship"
)

// StageStatus is the per-stage state machine:
// Pending -> Running -> {Verified, Failed}.
type StageStatus string

const (
	StageStatusPending  StageStatus = "pending"
	StageStatusRunning  StageStatus = "running"
	StageStatusVerified StageStatus = "verified"
	StageStatusFailed   StageStatus = "failed"
)

// IsValidStageStatus returns true if the status string is a valid StageStatus.
func IsValidStageStatus(s string) bool {
	switch StageStatus(s) {
	case StageStatusPending, StageStatusRunning, StageStatusVerified, StageStatusFailed:
		return true
	default:
		return false
	}
}

// StageSource says where a stage's statements come from: a script file
// resolved against the scripts directory, or inline SQL in the catalog.
// PrimaryStatement optionally pins the 1-based statement whose result feeds
// the load; 0 means largest result wins.
type StageSource struct {
	Script           string `yaml:"script,omitempty" json:"script,omitempty"`
	SQL              string `yaml:"sql,omitempty" json:"sql,omitempty"`
	PrimaryStatement int    `yaml:"primary_statement,omitempty" json:"primary_statement,omitempty"`
}

// Stage is one catalog entry: an extraction source plus a merge target.
type Stage struct {
	ID          string                    `yaml:"id" json:"id"`
	Ordinal     int                       `yaml:"ordinal" json:"ordinal"`
	Kind        StageKind                 `yaml:"kind" json:"kind"`
	Description string                    `yaml:"description,omitempty" json:"description,omitempty"`
	Source      StageSource               `yaml:"source" json:"source"`
	Node        *graph.NodeTarget         `yaml:"node,omitempty" json:"node,omitempty"`
	Rel         *graph.RelationshipTarget `yaml:"rel,omitempty" json:"rel,omitempty"`
	DependsOn   []string                  `yaml:"depends_on,omitempty" json:"depends_on,omitempty"`
	Verify      []verify.Check            `yaml:"verify,omitempty" json:"verify,omitempty"`

	// TimeoutSeconds overrides the catalog default for heavy stages
	// (citations). Zero means the default applies.
	TimeoutSeconds int `yaml:"timeout,omitempty" json:"timeout,omitempty"`

	Status    StageStatus `yaml:"-" json:"status"`
	Error     string      `yaml:"-" json:"error,omitempty"`
	StartedAt *time.Time  `yaml:"-" json:"started_at,omitempty"`
	EndedAt   *time.Time  `yaml:"-" json:"ended_at,omitempty"`
}

// LoadScript resolves the stage's statements: a script file read against
// scriptsDir (absolute paths taken as-is), or the catalog's inline SQL.
func (s *Stage) LoadScript(scriptsDir string) (*source.Script, error) {
	if s.Source.Script != "" {
		path := s.Source.Script
		if !filepath.IsAbs(path) {
			path = filepath.Join(scriptsDir, path)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(errors.ErrMissingScript, "stage %s: %s: %v", s.ID, path, err)
		}
		return source.ParseScript(s.ID, string(data)), nil
	}
	return source.ParseScript(s.ID, s.Source.SQL), nil
}

// Start marks the stage as running.
func (s *Stage) Start() {
	now := time.Now()
	s.Status = StageStatusRunning
	s.StartedAt = &now
}

// Verified marks the stage as loaded and verified.
func (s *Stage) Verified() {
	now := time.Now()
	s.Status = StageStatusVerified
	s.EndedAt = &now
}

// Fail marks the stage as failed with its error.
func (s *Stage) Fail(err error) {
	now := time.Now()
	s.Status = StageStatusFailed
	s.Error = err.Error()
	s.EndedAt = &now
}

// Elapsed is the stage's wall time, zero until it has both timestamps.
func (s *Stage) Elapsed() time.Duration {
	if s.StartedAt == nil || s.EndedAt == nil {
		return 0
	}
	return s.EndedAt.Sub(*s.StartedAt)
}

// Timeout resolves the stage's effective timeout against the catalog default.
func (s *Stage) Timeout(defaultTimeout time.Duration) time.Duration {
	if s.TimeoutSeconds > 0 {
		return time.Duration(s.TimeoutSeconds) * time.Second
	}
	return defaultTimeout
}

// Foundational reports whether this is the first stage by ordinal. A
// foundational failure aborts the pipeline; later failures are warnings.
func (s *Stage) Foundational(c *Catalog) bool {
	return len(c.Stages) > 0 && c.Stages[0].ID == s.ID
}
