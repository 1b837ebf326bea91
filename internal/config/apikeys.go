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
)

// Environment variable names for API keys.
const (
	EnvOpenAIAPIKey     = "OPENAI_API_KEY"
	EnvAzureAPIKey      = "AZURE_OPENAI_API_KEY"
	EnvAnthropicAPIKey  = "ANTHROPIC_API_KEY"
	EnvVoyageAPIKey     = "VOYAGE_API_KEY"
	EnvContentSafetyKey = "CONTENT_SAFETY_KEY"
	EnvSpeechKey        = "AZURE_SPEECH_KEY"
)

// Service identifies a credentialed upstream.
type Service string

// Credentialed services.
const (
	ServiceOpenAI        Service = "openai"
	ServiceAzure         Service = "azure"
	ServiceAnthropic     Service = "anthropic"
	ServiceVoyage        Service = "voyage"
	ServiceContentSafety Service = "content_safety"
	ServiceSpeech        Service = "speech"
)

// keySource describes where a service's key may come from.
type keySource struct {
	name        string
	envVar      string
	defaultFile string // relative to the home directory
	configured  func(APIKeysConfig) string
}

var keySources = map[Service]keySource{
	ServiceOpenAI: {
		name: "OpenAI", envVar: EnvOpenAIAPIKey, defaultFile: ".openai-api-key",
		configured: func(c APIKeysConfig) string { return c.OpenAI },
	},
	ServiceAzure: {
		name: "Azure OpenAI", envVar: EnvAzureAPIKey, defaultFile: ".azure-openai-api-key",
		configured: func(c APIKeysConfig) string { return c.Azure },
	},
	ServiceAnthropic: {
		name: "Anthropic", envVar: EnvAnthropicAPIKey, defaultFile: ".anthropic-api-key",
		configured: func(c APIKeysConfig) string { return c.Anthropic },
	},
	ServiceVoyage: {
		name: "Voyage", envVar: EnvVoyageAPIKey, defaultFile: ".voyage-api-key",
		configured: func(c APIKeysConfig) string { return c.Voyage },
	},
	ServiceContentSafety: {
		name: "Content Safety", envVar: EnvContentSafetyKey, defaultFile: ".content-safety-key",
		configured: func(c APIKeysConfig) string { return c.ContentSafety },
	},
	ServiceSpeech: {
		name: "Speech", envVar: EnvSpeechKey, defaultFile: ".azure-speech-key",
		configured: func(c APIKeysConfig) string { return c.Speech },
	},
}

// LoadedKeys holds all loaded API keys, indexed by service.
type LoadedKeys map[Service]string

// Get returns the key for a service, or "" when none was loaded.
func (k LoadedKeys) Get(s Service) string {
	return k[s]
}

// APIKeyLoader handles loading API keys from configured paths, environment
// variables, or default file locations.
type APIKeyLoader struct {
	config APIKeysConfig
}

// NewAPIKeyLoader creates a new API key loader with the given configuration.
func NewAPIKeyLoader(cfg APIKeysConfig) *APIKeyLoader {
	return &APIKeyLoader{config: cfg}
}

// LoadKey loads the key for one service with the following priority:
// 1. Configured file path (if specified in config)
// 2. Environment variable
// 3. Default file location (~/.service-api-key)
func (l *APIKeyLoader) LoadKey(s Service) (string, error) {
	src, ok := keySources[s]
	if !ok {
		return "", fmt.Errorf("unknown service: %s", s)
	}

	if configPath := src.configured(l.config); configPath != "" {
		return readKeyFile(expandPath(configPath), src.name)
	}

	if key := os.Getenv(src.envVar); key != "" {
		return key, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	path := filepath.Join(homeDir, src.defaultFile)

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return "", fmt.Errorf(
			"%s API key not found: set %s environment variable or create %s",
			src.name, src.envVar, path)
	}

	return readKeyFile(path, src.name)
}

// readKeyFile reads an API key from a file.
func readKeyFile(path, providerName string) (string, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return "", fmt.Errorf("%s API key file not found: %s", providerName, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read %s API key: %w", providerName, err)
	}

	key := strings.TrimSpace(string(data))
	if key == "" {
		return "", fmt.Errorf("%s API key file is empty: %s", providerName, path)
	}

	return key, nil
}

// RequiredServices lists the services whose keys the configuration needs.
// Ollama doesn't require an API key.
func RequiredServices(cfg *Config) []Service {
	seen := make(map[Service]bool)
	var out []Service
	add := func(s Service) {
		if _, ok := keySources[s]; ok && !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}

	add(Service(strings.ToLower(cfg.EmbeddingLLM.Provider)))
	add(Service(strings.ToLower(cfg.ChatLLM.Provider)))
	add(Service(strings.ToLower(cfg.Image.Provider)))
	add(ServiceContentSafety)
	if cfg.Speech.Enabled {
		add(ServiceSpeech)
	}
	return out
}

// LoadRequiredKeys loads only the API keys required by the configuration.
func (l *APIKeyLoader) LoadRequiredKeys(cfg *Config) (LoadedKeys, error) {
	keys := make(LoadedKeys)
	for _, s := range RequiredServices(cfg) {
		key, err := l.LoadKey(s)
		if err != nil {
			return nil, err
		}
		keys[s] = key
	}
	return keys, nil
}
