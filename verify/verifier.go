// Package verify reads the graph back and judges it: per-stage verification
// checks and the end-of-run health report. Everything here is read-only.
package verify

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/teranos/citegraph/errors"
	"github.com/teranos/citegraph/graph"
)

// Metric names a measurable quantity of the graph.
type Metric string

const (
	MetricNodeCount         Metric = "node_count"
	MetricRelationshipCount Metric = "relationship_count"
	MetricConnectedRatio    Metric = "connected_ratio"
	MetricPropertyPresent   Metric = "property_present"
)

// Check is one verification predicate: a metric, its scope, and a bound.
// At least one of AtLeast/AtMost/Equals must be set.
type Check struct {
	Name         string   `yaml:"name" json:"name"`
	Metric       Metric   `yaml:"metric" json:"metric"`
	Label        string   `yaml:"label,omitempty" json:"label,omitempty"`
	Type         string   `yaml:"type,omitempty" json:"type,omitempty"`
	Property     string   `yaml:"property,omitempty" json:"property,omitempty"`
	Relationship string   `yaml:"relationship,omitempty" json:"relationship,omitempty"`
	AtLeast      *float64 `yaml:"at_least,omitempty" json:"at_least,omitempty"`
	AtMost       *float64 `yaml:"at_most,omitempty" json:"at_most,omitempty"`
	Equals       *float64 `yaml:"equals,omitempty" json:"equals,omitempty"`
}

// Validate reports whether the check is well-formed.
func (c Check) Validate() error {
	if c.Name == "" {
		return errors.NewCatalogError("check without a name")
	}
	switch c.Metric {
	case MetricNodeCount:
	case MetricRelationshipCount:
		if c.Type == "" {
			return errors.NewCatalogError("check %q: relationship_count requires type", c.Name)
		}
	case MetricConnectedRatio:
		if c.Label == "" || c.Relationship == "" {
			return errors.NewCatalogError("check %q: connected_ratio requires label and relationship", c.Name)
		}
	case MetricPropertyPresent:
		if c.Label == "" || c.Property == "" {
			return errors.NewCatalogError("check %q: property_present requires label and property", c.Name)
		}
	default:
		return errors.NewCatalogError("check %q: unknown metric %q", c.Name, c.Metric)
	}
	if c.AtLeast == nil && c.AtMost == nil && c.Equals == nil {
		return errors.NewCatalogError("check %q: no bound (at_least/at_most/equals)", c.Name)
	}
	return nil
}

// Threshold renders the bound for reports.
func (c Check) Threshold() string {
	switch {
	case c.Equals != nil:
		return fmt.Sprintf("== %g", *c.Equals)
	case c.AtLeast != nil && c.AtMost != nil:
		return fmt.Sprintf(">= %g, <= %g", *c.AtLeast, *c.AtMost)
	case c.AtLeast != nil:
		return fmt.Sprintf(">= %g", *c.AtLeast)
	case c.AtMost != nil:
		return fmt.Sprintf("<= %g", *c.AtMost)
	}
	return "(none)"
}

// CheckResult is one evaluated check.
type CheckResult struct {
	Name      string  `json:"name"`
	Metric    Metric  `json:"metric"`
	Value     float64 `json:"value"`
	Threshold string  `json:"threshold"`
	Passed    bool    `json:"passed"`
}

// GraphVerifier evaluates checks and builds health reports against a store.
// It never mutates the graph.
type GraphVerifier struct {
	store  *graph.Store
	logger *zap.SugaredLogger
}

func NewGraphVerifier(store *graph.Store, logger *zap.SugaredLogger) *GraphVerifier {
	return &GraphVerifier{store: store, logger: logger}
}

// Evaluate runs each check in order. The returned error wraps
// ErrVerificationFailed when any check fails; results are complete either way.
func (v *GraphVerifier) Evaluate(ctx context.Context, checks []Check) ([]CheckResult, error) {
	results := make([]CheckResult, 0, len(checks))
	failed := 0

	for _, check := range checks {
		value, err := v.measure(ctx, check)
		if err != nil {
			return results, err
		}

		result := CheckResult{
			Name:      check.Name,
			Metric:    check.Metric,
			Value:     value,
			Threshold: check.Threshold(),
			Passed:    passes(check, value),
		}
		results = append(results, result)
		if !result.Passed {
			failed++
			v.logger.Warnw("Verification check failed",
				"check", check.Name,
				"value", value,
				"threshold", result.Threshold)
		}
	}

	if failed > 0 {
		return results, errors.NewVerificationError("%d of %d checks failed", failed, len(checks))
	}
	return results, nil
}

func (v *GraphVerifier) measure(ctx context.Context, check Check) (float64, error) {
	switch check.Metric {
	case MetricNodeCount:
		n, err := v.store.NodeCount(ctx, check.Label)
		return float64(n), err

	case MetricRelationshipCount:
		n, err := v.store.RelationshipCount(ctx, check.Type)
		return float64(n), err

	case MetricConnectedRatio:
		total, err := v.store.NodeCount(ctx, check.Label)
		if err != nil {
			return 0, err
		}
		if total == 0 {
			return 0, nil
		}
		connected, err := v.store.ConnectedNodeCount(ctx, check.Label, check.Relationship)
		if err != nil {
			return 0, err
		}
		return float64(connected) / float64(total), nil

	case MetricPropertyPresent:
		n, err := v.store.PropertyPresentCount(ctx, check.Label, check.Property)
		return float64(n), err
	}
	return 0, errors.NewCatalogError("check %q: unknown metric %q", check.Name, check.Metric)
}

func passes(check Check, value float64) bool {
	if check.Equals != nil && value != *check.Equals {
		return false
	}
	if check.AtLeast != nil && value < *check.AtLeast {
		return false
	}
	if check.AtMost != nil && value > *check.AtMost {
		return false
	}
	return true
}
