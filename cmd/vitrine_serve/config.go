package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// serveConfig is the serve command's slice of vitrine.yaml: where the
// resources and the ledger live, plus what the MCP pipeline tools need.
// The recorder reads its own keys from the same file. API keys never live
// in the file; it names the environment variables that hold them.
type serveConfig struct {
	ResourcesRoot string `yaml:"resources_root"`
	LedgerPath    string `yaml:"ledger_path"`

	// Discovery.
	PlacesBaseURL string `yaml:"places_base_url"`
	PlacesKeyEnv  string `yaml:"places_key_env"` // default PLACES_API_KEY
	MinWords      int    `yaml:"min_words"`
	MinSections   int    `yaml:"min_sections"`

	// Drafting.
	GeminiModel  string `yaml:"gemini_model"`
	GeminiKeyEnv string `yaml:"gemini_key_env"` // default GEMINI_API_KEY

	// Rendering.
	PhotoBase  string `yaml:"photo_base"`
	PhotoCount int    `yaml:"photo_count"`
}

func loadServeConfig(path string) (serveConfig, error) {
	var cfg serveConfig
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	}
	if cfg.PlacesKeyEnv == "" {
		cfg.PlacesKeyEnv = "PLACES_API_KEY"
	}
	if cfg.GeminiKeyEnv == "" {
		cfg.GeminiKeyEnv = "GEMINI_API_KEY"
	}
	return cfg, nil
}
