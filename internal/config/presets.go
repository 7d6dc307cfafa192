package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/Gotti0/kimum-trade-sub000/internal/scoring"
)

type presetFile struct {
	Presets []scoring.Preset `yaml:"presets"`
}

// LoadPresets returns the compiled-in risk ladders, overlaid with any presets
// from the YAML file at path. An empty path keeps the defaults. A preset in
// the file replaces the default of the same name; new names are added.
func LoadPresets(path string) (map[string]scoring.Preset, error) {
	presets := scoring.DefaultPresets()
	if path == "" {
		return presets, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read presets file %s: %w", path, err)
	}

	var file presetFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse presets file %s: %w", path, err)
	}

	for _, preset := range file.Presets {
		if err := preset.Validate(); err != nil {
			return nil, err
		}
		presets[preset.Name] = preset
	}
	return presets, nil
}
