package pipeline

import (
	_ "embed"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	getter "github.com/hashicorp/go-getter"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/teranos/citegraph/errors"
	"github.com/teranos/citegraph/sym"
	"github.com/teranos/citegraph/verify"
)

// SupportedCatalogConstraint gates catalog versions this binary understands.
const SupportedCatalogConstraint = "^1.0"

//go:embed catalog_default.yaml
var defaultCatalogYAML []byte

// CatalogDefaults carries catalog-wide knobs stages inherit.
type CatalogDefaults struct {
	// TimeoutSeconds is the per-stage timeout when a stage declares none.
	TimeoutSeconds int `yaml:"timeout" json:"timeout"`
}

// Catalog is the data-driven stage plan: what to extract, in what order,
// how to merge it, and what the final health report measures.
type Catalog struct {
	Version     string            `yaml:"version" json:"version"`
	Description string            `yaml:"description,omitempty" json:"description,omitempty"`
	Defaults    CatalogDefaults   `yaml:"defaults" json:"defaults"`
	Stages      []*Stage          `yaml:"stages" json:"stages"`
	Health      verify.HealthSpec `yaml:"health,omitempty" json:"health,omitempty"`
}

// DefaultTimeout resolves the catalog-wide stage timeout.
func (c *Catalog) DefaultTimeout() time.Duration {
	if c.Defaults.TimeoutSeconds > 0 {
		return time.Duration(c.Defaults.TimeoutSeconds) * time.Second
	}
	return 10 * time.Minute
}

// StageByID finds a stage, or nil.
func (c *Catalog) StageByID(id string) *Stage {
	for _, s := range c.Stages {
		if s.ID == id {
			return s
		}
	}
	return nil
}

// DefaultCatalog parses the embedded bibliographic catalog shipped with the
// binary. Panics only if the embedded file is broken, which a test catches.
func DefaultCatalog() (*Catalog, error) {
	return ParseCatalog(defaultCatalogYAML)
}

// LoadCatalog resolves a catalog from a path or URL. Empty means the
// embedded default. Local paths are expanded (tilde, relative); URL schemes
// are fetched via go-getter to a temp file.
func LoadCatalog(pathOrURL string, logger *zap.SugaredLogger) (*Catalog, error) {
	if pathOrURL == "" {
		return DefaultCatalog()
	}

	path, remote, err := resolveCatalogPath(pathOrURL)
	if err != nil {
		return nil, err
	}

	if remote {
		tmp, err := os.MkdirTemp("", "citegraph-catalog-")
		if err != nil {
			return nil, errors.Wrap(err, "creating temp dir for catalog fetch")
		}
		defer os.RemoveAll(tmp)

		dst := filepath.Join(tmp, "catalog.yaml")
		if err := getter.GetFile(dst, pathOrURL); err != nil {
			return nil, errors.Wrapf(err, "fetching catalog from %s", pathOrURL)
		}
		logger.Infow("Catalog fetched",
			"symbol", sym.Catalog,
			"source", pathOrURL)
		path = dst
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading catalog %s", path)
	}

	catalog, err := ParseCatalog(data)
	if err != nil {
		return nil, err
	}

	logger.Infow("Catalog loaded",
		"symbol", sym.Catalog,
		"version", catalog.Version,
		"stages", len(catalog.Stages))

	return catalog, nil
}

// resolveCatalogPath expands a local path (tilde, relative) or flags a URL
// scheme for fetching.
func resolveCatalogPath(pathOrURL string) (string, bool, error) {
	if strings.HasPrefix(pathOrURL, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", false, errors.Wrap(err, "resolving home directory")
		}
		return filepath.Join(home, pathOrURL[2:]), false, nil
	}

	pwd, err := os.Getwd()
	if err != nil {
		pwd = "."
	}

	detected, err := getter.Detect(pathOrURL, pwd, getter.Detectors)
	if err != nil {
		return "", false, errors.Wrapf(err, "invalid catalog location %q", pathOrURL)
	}

	u, err := url.Parse(detected)
	if err != nil {
		return "", false, errors.Wrapf(err, "parsing catalog location %q", pathOrURL)
	}
	if u.Scheme == "file" || u.Scheme == "" {
		abs, err := filepath.Abs(strings.TrimPrefix(detected, "file://"))
		if err != nil {
			return "", false, errors.Wrap(err, "resolving catalog path")
		}
		return abs, false, nil
	}
	return "", true, nil
}

// ParseCatalog unmarshals, version-gates, and validates a catalog.
func ParseCatalog(data []byte) (*Catalog, error) {
	var catalog Catalog
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		return nil, errors.Wrap(errors.ErrCatalogInvalid, err.Error())
	}

	if err := catalog.checkVersion(); err != nil {
		return nil, err
	}
	if err := catalog.Validate(); err != nil {
		return nil, err
	}

	sort.SliceStable(catalog.Stages, func(i, j int) bool {
		return catalog.Stages[i].Ordinal < catalog.Stages[j].Ordinal
	})
	for _, s := range catalog.Stages {
		s.Status = StageStatusPending
	}

	return &catalog, nil
}

func (c *Catalog) checkVersion() error {
	if c.Version == "" {
		return errors.NewCatalogError("catalog missing version")
	}
	ver, err := semver.NewVersion(c.Version)
	if err != nil {
		return errors.Wrapf(errors.ErrCatalogIncompatible, "invalid catalog version %q: %v", c.Version, err)
	}
	constraint, err := semver.NewConstraint(SupportedCatalogConstraint)
	if err != nil {
		return errors.Wrapf(err, "invalid supported constraint %s", SupportedCatalogConstraint)
	}
	if !constraint.Check(ver) {
		return errors.Wrapf(errors.ErrCatalogIncompatible,
			"catalog version %s does not satisfy %s", c.Version, SupportedCatalogConstraint)
	}
	return nil
}

// Validate enforces the catalog's structural rules: unique IDs, strictly
// positive unique ordinals, dependencies pointing backwards, relationship
// endpoints backed by node stages the edge stage depends on, complete merge
// specs, and well-formed checks.
func (c *Catalog) Validate() error {
	if len(c.Stages) == 0 {
		return errors.NewCatalogError("catalog has no stages")
	}

	byID := make(map[string]*Stage, len(c.Stages))
	byOrdinal := make(map[int]string, len(c.Stages))
	labelStage := make(map[string]*Stage)

	for _, s := range c.Stages {
		if s.ID == "" {
			return errors.NewCatalogError("stage without an id")
		}
		if _, dup := byID[s.ID]; dup {
			return errors.NewCatalogError("duplicate stage id %q", s.ID)
		}
		byID[s.ID] = s

		if s.Ordinal <= 0 {
			return errors.NewCatalogError("stage %q: ordinal must be positive, got %d", s.ID, s.Ordinal)
		}
		if other, dup := byOrdinal[s.Ordinal]; dup {
			return errors.NewCatalogError("stages %q and %q share ordinal %d", other, s.ID, s.Ordinal)
		}
		byOrdinal[s.Ordinal] = s.ID

		if s.Source.Script == "" && strings.TrimSpace(s.Source.SQL) == "" {
			return errors.NewCatalogError("stage %q: source needs a script or inline sql", s.ID)
		}
		if s.Source.Script != "" && strings.TrimSpace(s.Source.SQL) != "" {
			return errors.NewCatalogError("stage %q: source declares both script and inline sql", s.ID)
		}
		if s.Source.PrimaryStatement < 0 {
			return errors.NewCatalogError("stage %q: primary_statement must be positive", s.ID)
		}

		switch s.Kind {
		case StageKindNode:
			if s.Node == nil {
				return errors.NewCatalogError("stage %q: node stage without a node spec", s.ID)
			}
			if s.Rel != nil {
				return errors.NewCatalogError("stage %q: node stage with a rel spec", s.ID)
			}
			if s.Node.Label == "" || s.Node.KeyColumn == "" {
				return errors.NewCatalogError("stage %q: node spec needs label and key_column", s.ID)
			}
			labelStage[s.Node.Label] = s
		case StageKindRelationship:
			if s.Rel == nil {
				return errors.NewCatalogError("stage %q: relationship stage without a rel spec", s.ID)
			}
			if s.Node != nil {
				return errors.NewCatalogError("stage %q: relationship stage with a node spec", s.ID)
			}
			if s.Rel.Type == "" {
				return errors.NewCatalogError("stage %q: rel spec needs a type", s.ID)
			}
			for _, ep := range []struct {
				side  string
				label string
				key   string
			}{
				{"from", s.Rel.From.Label, s.Rel.From.KeyColumn},
				{"to", s.Rel.To.Label, s.Rel.To.KeyColumn},
			} {
				if ep.label == "" || ep.key == "" {
					return errors.NewCatalogError("stage %q: %s endpoint needs label and key_column", s.ID, ep.side)
				}
			}
			for _, f := range s.Rel.Accumulate {
				if f.Fold != "min" && f.Fold != "max" {
					return errors.NewCatalogError("stage %q: unknown fold %q", s.ID, f.Fold)
				}
				if f.Column == "" || f.Property == "" {
					return errors.NewCatalogError("stage %q: fold needs column and property", s.ID)
				}
			}
		default:
			return errors.NewCatalogError("stage %q: unknown kind %q", s.ID, s.Kind)
		}

		for _, check := range s.Verify {
			if err := check.Validate(); err != nil {
				return errors.Wrapf(err, "stage %q", s.ID)
			}
		}
	}

	for _, s := range c.Stages {
		for _, dep := range s.DependsOn {
			depStage, ok := byID[dep]
			if !ok {
				return errors.NewCatalogError("stage %q depends on unknown stage %q", s.ID, dep)
			}
			if depStage.Ordinal >= s.Ordinal {
				return errors.NewCatalogError(
					"stage %q (ordinal %d) depends on %q (ordinal %d): dependencies must run earlier",
					s.ID, s.Ordinal, dep, depStage.Ordinal)
			}
		}

		if s.Kind != StageKindRelationship {
			continue
		}
		for _, label := range endpointLabels(s) {
			nodeStage, ok := labelStage[label]
			if !ok {
				return errors.NewCatalogError("stage %q: no node stage loads label %q", s.ID, label)
			}
			if !contains(s.DependsOn, nodeStage.ID) {
				return errors.NewCatalogError(
					"stage %q must depend on %q: it references label %q as an endpoint",
					s.ID, nodeStage.ID, label)
			}
		}
	}

	for _, check := range c.Health.Quality {
		if err := check.Validate(); err != nil {
			return errors.Wrap(err, "health section")
		}
	}

	return nil
}

func endpointLabels(s *Stage) []string {
	labels := []string{s.Rel.From.Label}
	if s.Rel.To.Label != s.Rel.From.Label {
		labels = append(labels, s.Rel.To.Label)
	}
	return labels
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
