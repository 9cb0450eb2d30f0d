package config

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"dark-forest/internal/sim"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// LoadParams returns engine params from the embedded defaults, overlaid with
// the YAML file at path when path is non-empty. Only keys present in the file
// change. The result is validated.
func LoadParams(path string) (sim.Params, error) {
	var p sim.Params
	if err := yaml.Unmarshal(defaultsYAML, &p); err != nil {
		return sim.Params{}, fmt.Errorf("parsing embedded defaults: %w", err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return sim.Params{}, fmt.Errorf("reading params file: %w", err)
		}
		if err := yaml.Unmarshal(data, &p); err != nil {
			return sim.Params{}, fmt.Errorf("parsing params file: %w", err)
		}
	}

	if err := p.Validate(); err != nil {
		return sim.Params{}, fmt.Errorf("params %q: %w", path, err)
	}
	return p, nil
}

// WriteParams writes p as YAML to path
func WriteParams(p sim.Params, path string) error {
	data, err := yaml.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshaling params: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing params file: %w", err)
	}
	return nil
}
