package store

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Seed is the YAML document preloaded into a fresh server:
//
//	entries:
//	  config.round: 1
//	  config.map: {name: harbor, size: [64, 64]}
type Seed struct {
	Entries map[string]any `yaml:"entries"`
}

// LoadSeed reads the seed file at path.
func LoadSeed(path string) (map[string]any, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read seed file failed")
	}
	return ParseSeed(raw)
}

// ParseSeed decodes a seed document.
func ParseSeed(raw []byte) (map[string]any, error) {
	var seed Seed
	if err := yaml.Unmarshal(raw, &seed); err != nil {
		return nil, errors.Wrap(err, "decode seed failed")
	}
	if seed.Entries == nil {
		return map[string]any{}, nil
	}
	return seed.Entries, nil
}
