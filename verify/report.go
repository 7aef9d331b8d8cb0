package verify

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/teranos/citegraph/errors"
	"github.com/teranos/citegraph/graph"
)

// RatioSpec asks what fraction of a label's nodes participate in a
// relationship type.
type RatioSpec struct {
	Name         string `yaml:"name" json:"name"`
	Label        string `yaml:"label" json:"label"`
	Relationship string `yaml:"relationship" json:"relationship"`
}

// TopSpec asks for the top-N nodes of a label by a numeric property.
type TopSpec struct {
	Name     string `yaml:"name" json:"name"`
	Label    string `yaml:"label" json:"label"`
	Property string `yaml:"property" json:"property"`
	Limit    int    `yaml:"limit,omitempty" json:"limit,omitempty"`
}

// HealthSpec is the health section of the catalog: what the end-of-run
// report measures.
type HealthSpec struct {
	Connectivity []RatioSpec `yaml:"connectivity,omitempty" json:"connectivity,omitempty"`
	Quality      []Check     `yaml:"quality,omitempty" json:"quality,omitempty"`
	Top          []TopSpec   `yaml:"top,omitempty" json:"top,omitempty"`
}

// RatioResult is one evaluated connectivity ratio.
type RatioResult struct {
	Name      string  `json:"name"`
	Label     string  `json:"label"`
	Connected int64   `json:"connected"`
	Total     int64   `json:"total"`
	Ratio     float64 `json:"ratio"`
}

// TopList is one evaluated top-N listing.
type TopList struct {
	Name    string           `json:"name"`
	Entries []graph.TopEntry `json:"entries"`
}

// HealthReport is the end-of-run summary of the graph's shape.
type HealthReport struct {
	NodeCounts         map[string]int64 `json:"node_counts"`
	RelationshipCounts map[string]int64 `json:"relationship_counts"`
	Connectivity       []RatioResult    `json:"connectivity,omitempty"`
	Quality            []CheckResult    `json:"quality,omitempty"`
	Top                []TopList        `json:"top,omitempty"`
}

// BuildReport measures everything the health spec asks for. The count
// queries are independent and read-only, so they fan out concurrently; this
// is the only concurrency in the system.
func (v *GraphVerifier) BuildReport(ctx context.Context, health HealthSpec) (*HealthReport, error) {
	report := &HealthReport{
		Connectivity: make([]RatioResult, len(health.Connectivity)),
		Top:          make([]TopList, len(health.Top)),
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		counts, err := v.store.LabelCounts(gctx)
		if err != nil {
			return err
		}
		report.NodeCounts = counts
		return nil
	})

	g.Go(func() error {
		counts, err := v.store.RelTypeCounts(gctx)
		if err != nil {
			return err
		}
		report.RelationshipCounts = counts
		return nil
	})

	for i, spec := range health.Connectivity {
		i, spec := i, spec
		g.Go(func() error {
			total, err := v.store.NodeCount(gctx, spec.Label)
			if err != nil {
				return err
			}
			connected, err := v.store.ConnectedNodeCount(gctx, spec.Label, spec.Relationship)
			if err != nil {
				return err
			}
			ratio := 0.0
			if total > 0 {
				ratio = float64(connected) / float64(total)
			}
			report.Connectivity[i] = RatioResult{
				Name:      spec.Name,
				Label:     spec.Label,
				Connected: connected,
				Total:     total,
				Ratio:     ratio,
			}
			return nil
		})
	}

	for i, spec := range health.Top {
		i, spec := i, spec
		g.Go(func() error {
			limit := spec.Limit
			if limit <= 0 {
				limit = 10
			}
			entries, err := v.store.TopNodesByProperty(gctx, spec.Label, spec.Property, limit)
			if err != nil {
				return err
			}
			report.Top[i] = TopList{Name: spec.Name, Entries: entries}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Quality checks reuse Evaluate; a failing quality predicate is report
	// content, not an error.
	if len(health.Quality) > 0 {
		results, err := v.Evaluate(ctx, health.Quality)
		if err != nil && !errors.IsVerificationError(err) {
			return nil, err
		}
		report.Quality = results
	}

	return report, nil
}
