package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/tidwall/jsonc"
)

// Load reads, parses, and normalizes a configuration file. The file
// may contain JSONC comments and trailing commas.
func Load(path string) (*Configuration, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(b)
}

// Parse decodes a configuration document from JSONC bytes.
func Parse(b []byte) (*Configuration, error) {
	var cfg Configuration
	if err := json.Unmarshal(jsonc.ToJSON(b), &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	if err := cfg.Normalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
