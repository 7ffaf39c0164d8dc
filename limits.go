package aicore

import (
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ParseModelLimits parses per-model concurrency limits. Two syntaxes are
// accepted, both preserving declaration order:
//
//	gemini-2.5-pro=4,gemini-2.5-flash=10
//	{"gemini-2.5-pro": 4, "gemini-2.5-flash": 10}
//
// An empty string yields no models. Blank items are skipped; any other item
// must be name=limit.
func ParseModelLimits(s string) ([]ModelConfig, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if strings.HasPrefix(s, "{") {
		return parseLimitsObject(s)
	}

	var out []ModelConfig
	for _, item := range strings.Split(s, ",") {
		if strings.TrimSpace(item) == "" {
			continue
		}
		name, value, ok := strings.Cut(item, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, configErrorf("model limits: %q: expected name=limit", strings.TrimSpace(item))
		}
		limit, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return nil, configErrorf("model limits: %q: invalid limit %q", name, strings.TrimSpace(value))
		}
		out = append(out, ModelConfig{Name: name, Limit: limit})
	}
	return out, nil
}

// parseLimitsObject reads a JSON object through a YAML node so that key
// order survives decoding.
func parseLimitsObject(s string) ([]ModelConfig, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(s), &doc); err != nil {
		return nil, configErrorf("model limits: invalid JSON: %v", err)
	}
	if len(doc.Content) != 1 || doc.Content[0].Kind != yaml.MappingNode {
		return nil, configErrorf("model limits: expected a JSON object")
	}

	m := doc.Content[0]
	out := make([]ModelConfig, 0, len(m.Content)/2)
	for i := 0; i+1 < len(m.Content); i += 2 {
		name := m.Content[i].Value
		var limit int
		if err := m.Content[i+1].Decode(&limit); err != nil {
			return nil, configErrorf("model limits: %q: invalid limit %q", name, m.Content[i+1].Value)
		}
		out = append(out, ModelConfig{Name: name, Limit: limit})
	}
	return out, nil
}
