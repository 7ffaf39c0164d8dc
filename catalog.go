package aicore

import (
	"sort"
	"strings"
)

// ModelCatalog is the ordered list of models the rotator may choose among.
type ModelCatalog struct {
	models []ModelSpec
}

// NewModelCatalog validates specs and keeps them in configuration order.
func NewModelCatalog(specs []ModelSpec) (*ModelCatalog, error) {
	if len(specs) == 0 {
		return nil, configErrorf("at least one model is required")
	}

	names := make(map[string]bool, len(specs))
	for i, m := range specs {
		if m.Name == "" {
			return nil, configErrorf("models[%d]: name is required", i)
		}
		if names[m.Name] {
			return nil, configErrorf("duplicate model %q", m.Name)
		}
		names[m.Name] = true
		if m.ConcurrencyLimit < 1 {
			return nil, configErrorf("model %q: concurrency limit must be positive, got %d", m.Name, m.ConcurrencyLimit)
		}
	}

	models := make([]ModelSpec, len(specs))
	copy(models, specs)
	return &ModelCatalog{models: models}, nil
}

// Candidates returns the models whose name contains filter (case-insensitive),
// cheapest first. Ties keep configuration order. An empty filter matches all.
func (c *ModelCatalog) Candidates(filter string) ([]ModelSpec, error) {
	needle := strings.ToLower(filter)

	var out []ModelSpec
	for _, m := range c.models {
		if needle == "" || strings.Contains(strings.ToLower(m.Name), needle) {
			out = append(out, m)
		}
	}
	if len(out) == 0 {
		return nil, configErrorf("no configured model matches %q", filter)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CostRank < out[j].CostRank
	})
	return out, nil
}

// Lookup returns the spec for an exact model name.
func (c *ModelCatalog) Lookup(name string) (ModelSpec, bool) {
	for _, m := range c.models {
		if m.Name == name {
			return m, true
		}
	}
	return ModelSpec{}, false
}

// Len returns the number of configured models.
func (c *ModelCatalog) Len() int { return len(c.models) }

// DefaultCostRank ranks a model by its family name when the configuration
// does not say otherwise.
func DefaultCostRank(name string) int {
	n := strings.ToLower(name)
	switch {
	case strings.Contains(n, "ultra"):
		return 100
	case strings.Contains(n, "pro"):
		return 80
	case strings.Contains(n, "flash"):
		return 10
	default:
		return 50
	}
}
