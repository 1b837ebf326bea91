//-------------------------------------------------------------------------
//
// pgEdge Librarian Server
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	// ConfigFileName is the default configuration file name.
	ConfigFileName = "pgedge-librarian-server.yaml"

	// SystemConfigPath is the system-wide configuration path.
	SystemConfigPath = "/etc/pgedge/" + ConfigFileName
)

// Load loads the configuration from the specified path, or searches
// default locations if path is empty.
//
// Search order:
//  1. Explicit path (if provided)
//  2. /etc/pgedge/pgedge-librarian-server.yaml
//  3. pgedge-librarian-server.yaml in the binary's directory
func Load(path string) (*Config, error) {
	configPath, err := findConfigFile(path)
	if err != nil {
		return nil, err
	}

	return loadFromFile(configPath)
}

// findConfigFile finds the configuration file using the search order.
func findConfigFile(explicitPath string) (string, error) {
	if explicitPath != "" {
		if _, err := os.Stat(explicitPath); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicitPath)
		}
		return explicitPath, nil
	}

	searchPaths := []string{
		SystemConfigPath,
		getBinaryDirConfigPath(),
	}

	for _, p := range searchPaths {
		if p == "" {
			continue
		}
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no configuration file found; searched: %v", searchPaths)
}

// getBinaryDirConfigPath returns the path to config file in the binary's
// directory.
func getBinaryDirConfigPath() string {
	executable, err := os.Executable()
	if err != nil {
		return ""
	}

	executable, err = filepath.EvalSymlinks(executable)
	if err != nil {
		return ""
	}

	return filepath.Join(filepath.Dir(executable), ConfigFileName)
}

// loadFromFile loads and parses the configuration from a YAML file.
func loadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

// Parse decodes YAML configuration data on top of DefaultConfig, applies
// derived defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := DefaultConfig()

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// applyDefaults fills in values that were left empty or explicitly zeroed.
func applyDefaults(cfg *Config) {
	def := DefaultConfig()

	if cfg.Database.Port == 0 {
		cfg.Database.Port = def.Database.Port
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = def.Database.SSLMode
	}

	lib := &cfg.Library
	if lib.Table == "" {
		lib.Table = def.Library.Table
	}
	fillColumn(&lib.Columns.ID, def.Library.Columns.ID)
	fillColumn(&lib.Columns.Title, def.Library.Columns.Title)
	fillColumn(&lib.Columns.SummaryShort, def.Library.Columns.SummaryShort)
	fillColumn(&lib.Columns.SummaryLong, def.Library.Columns.SummaryLong)
	fillColumn(&lib.Columns.Themes, def.Library.Columns.Themes)
	fillColumn(&lib.Columns.Embedding, def.Library.Columns.Embedding)
	if lib.Dimensions == 0 {
		lib.Dimensions = def.Library.Dimensions
	}
	if lib.TopK == 0 {
		lib.TopK = def.Library.TopK
	}
	if lib.SearchTopK == 0 {
		lib.SearchTopK = def.Library.SearchTopK
	}
	if lib.Hybrid.RRFConstant == 0 {
		lib.Hybrid.RRFConstant = def.Library.Hybrid.RRFConstant
	}

	// The image model usually lives on the same account as the chat model.
	if cfg.Image.Provider == "" {
		cfg.Image.Provider = cfg.ChatLLM.Provider
	}
	if cfg.Image.BaseURL == "" && strings.EqualFold(cfg.Image.Provider, cfg.ChatLLM.Provider) {
		cfg.Image.BaseURL = cfg.ChatLLM.BaseURL
	}
	if cfg.Image.APIVersion == "" {
		cfg.Image.APIVersion = "2024-02-01"
	}
	if cfg.Image.Quality == "" {
		cfg.Image.Quality = def.Image.Quality
	}
	if cfg.Image.SquareSize == "" {
		cfg.Image.SquareSize = def.Image.SquareSize
	}
	if cfg.Image.WideSize == "" {
		cfg.Image.WideSize = def.Image.WideSize
	}

	if cfg.ChatLLM.APIVersion == "" {
		cfg.ChatLLM.APIVersion = "2024-10-21"
	}
	if cfg.EmbeddingLLM.APIVersion == "" {
		cfg.EmbeddingLLM.APIVersion = cfg.ChatLLM.APIVersion
	}
	if cfg.EmbeddingLLM.BaseURL == "" && strings.EqualFold(cfg.EmbeddingLLM.Provider, cfg.ChatLLM.Provider) {
		cfg.EmbeddingLLM.BaseURL = cfg.ChatLLM.BaseURL
	}

	if cfg.Moderation.APIVersion == "" {
		cfg.Moderation.APIVersion = def.Moderation.APIVersion
	}

	if cfg.Speech.TokenTTL == 0 {
		cfg.Speech.TokenTTL = def.Speech.TokenTTL
	}
	if cfg.Speech.RefreshBefore == 0 {
		cfg.Speech.RefreshBefore = def.Speech.RefreshBefore
	}
}

func fillColumn(col *string, def string) {
	if *col == "" {
		*col = def
	}
}
