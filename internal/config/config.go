//-------------------------------------------------------------------------
//
// pgEdge Librarian Server
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package config handles configuration loading and validation for the
// pgEdge Librarian Server.
package config

import "time"

// Config is the root configuration structure for the server.
type Config struct {
	Server       ServerConfig     `yaml:"server"`
	Logging      LoggingConfig    `yaml:"logging"`
	APIKeys      APIKeysConfig    `yaml:"api_keys"`
	Database     DatabaseConfig   `yaml:"database"`
	Library      LibraryConfig    `yaml:"library"`
	EmbeddingLLM LLMConfig        `yaml:"embedding_llm"`
	ChatLLM      ChatConfig       `yaml:"chat_llm"`
	Image        ImageConfig      `yaml:"image"`
	Moderation   ModerationConfig `yaml:"moderation"`
	Speech       SpeechConfig     `yaml:"speech"`
}

// APIKeysConfig contains paths to files containing API keys.
// If not specified, keys are loaded from environment variables or default
// file locations (~/.openai-api-key and friends).
type APIKeysConfig struct {
	OpenAI        string `yaml:"openai"`         // Path to file containing OpenAI API key
	Azure         string `yaml:"azure"`          // Path to file containing Azure OpenAI API key
	Anthropic     string `yaml:"anthropic"`      // Path to file containing Anthropic API key
	Voyage        string `yaml:"voyage"`         // Path to file containing Voyage API key
	ContentSafety string `yaml:"content_safety"` // Path to file containing Content Safety key
	Speech        string `yaml:"speech"`         // Path to file containing Speech key
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	ListenAddress string     `yaml:"listen_address"`
	Port          int        `yaml:"port"`
	TLS           TLSConfig  `yaml:"tls"`
	CORS          CORSConfig `yaml:"cors"`
}

// CORSConfig contains CORS (Cross-Origin Resource Sharing) settings.
type CORSConfig struct {
	Enabled        bool     `yaml:"enabled"`
	AllowedOrigins []string `yaml:"allowed_origins"` // Origins to allow, or ["*"] for all
}

// TLSConfig contains TLS/HTTPS settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// LoggingConfig controls the process logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json or console
	File   string `yaml:"file"`   // Optional rotated log file
}

// DatabaseConfig contains PostgreSQL connection settings.
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int32  `yaml:"max_conns"`

	// Certificate-based authentication
	SSLCert   string `yaml:"ssl_cert"`
	SSLKey    string `yaml:"ssl_key"`
	SSLRootCA string `yaml:"ssl_root_ca"`
}

// LibraryConfig describes the book table and retrieval behaviour.
type LibraryConfig struct {
	Table      string         `yaml:"table"`
	Columns    LibraryColumns `yaml:"columns"`
	Dimensions int            `yaml:"dimensions"`   // Embedding dimension shared by corpus and queries
	TopK       int            `yaml:"top_k"`        // Candidates used to ground a chat answer
	SearchTopK int            `yaml:"search_top_k"` // Default hits for the search endpoint
	Hybrid     HybridConfig   `yaml:"hybrid"`
}

// LibraryColumns maps logical book fields to column names.
type LibraryColumns struct {
	ID           string `yaml:"id"`
	Title        string `yaml:"title"`
	SummaryShort string `yaml:"summary_short"`
	SummaryLong  string `yaml:"summary_long"`
	Themes       string `yaml:"themes"`
	Embedding    string `yaml:"embedding"`
}

// HybridConfig contains settings for combining vector and keyword ranking.
type HybridConfig struct {
	Enabled     *bool   `yaml:"enabled"`      // Enable BM25 fusion (default: true)
	RRFConstant float64 `yaml:"rrf_constant"` // k in 1/(k+rank) (default: 60)
}

// IsEnabled reports whether keyword fusion is on.
func (h HybridConfig) IsEnabled() bool {
	return h.Enabled == nil || *h.Enabled
}

// LLMConfig contains settings for an LLM provider.
type LLMConfig struct {
	Provider   string `yaml:"provider"`
	Model      string `yaml:"model"`
	BaseURL    string `yaml:"base_url"`    // Endpoint override; required for azure
	APIVersion string `yaml:"api_version"` // Azure OpenAI api-version
	Timeout    int    `yaml:"timeout"`     // Seconds
}

// ChatConfig contains settings for the chat model.
type ChatConfig struct {
	LLMConfig    `yaml:",inline"`
	Temperature  *float64 `yaml:"temperature"` // Default 0.4
	MaxTokens    int      `yaml:"max_tokens"`
	SystemPrompt string   `yaml:"system_prompt"`
}

// ImageConfig contains settings for the illustration pipeline.
type ImageConfig struct {
	LLMConfig  `yaml:",inline"`
	Quality    string `yaml:"quality"`     // Default "hd"
	SquareSize string `yaml:"square_size"` // Default "1024x1024"
	WideSize   string `yaml:"wide_size"`   // Default "1792x1024", used for scenes
	TablesFile string `yaml:"tables_file"` // Optional override for denylist/theme tables
}

// ModerationConfig contains settings for the content safety service.
type ModerationConfig struct {
	Endpoint   string `yaml:"endpoint"`
	APIVersion string `yaml:"api_version"`
	Timeout    int    `yaml:"timeout"` // Seconds
}

// SpeechConfig contains settings for the speech token exchange.
type SpeechConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Region        string        `yaml:"region"`
	Endpoint      string        `yaml:"endpoint"`       // Optional override of the regional STS endpoint
	TokenTTL      time.Duration `yaml:"token_ttl"`      // Lifetime of issued tokens (default 10m)
	RefreshBefore time.Duration `yaml:"refresh_before"` // Refresh margin before expiry (default 1m)
}

// Default values used when the configuration does not set them.
const (
	DefaultDimensions   = 1536
	DefaultTopK         = 4
	DefaultSearchTopK   = 5
	DefaultRRFConstant  = 60
	DefaultTemperature  = 0.4
	DefaultImageQuality = "hd"
	DefaultSquareSize   = "1024x1024"
	DefaultWideSize     = "1792x1024"
	DefaultTokenTTL     = 10 * time.Minute
	DefaultRefresh      = time.Minute
)

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddress: "0.0.0.0",
			Port:          8080,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Database: DatabaseConfig{
			Port:    5432,
			SSLMode: "prefer",
		},
		Library: LibraryConfig{
			Table: "books",
			Columns: LibraryColumns{
				ID:           "id",
				Title:        "title",
				SummaryShort: "summary_short",
				SummaryLong:  "summary_long",
				Themes:       "themes",
				Embedding:    "embedding",
			},
			Dimensions: DefaultDimensions,
			TopK:       DefaultTopK,
			SearchTopK: DefaultSearchTopK,
			Hybrid: HybridConfig{
				RRFConstant: DefaultRRFConstant,
			},
		},
		Image: ImageConfig{
			Quality:    DefaultImageQuality,
			SquareSize: DefaultSquareSize,
			WideSize:   DefaultWideSize,
		},
		Moderation: ModerationConfig{
			APIVersion: "2024-09-01",
		},
		Speech: SpeechConfig{
			TokenTTL:      DefaultTokenTTL,
			RefreshBefore: DefaultRefresh,
		},
	}
}

// ChatTemperature returns the configured sampling temperature.
func (c ChatConfig) ChatTemperature() float64 {
	if c.Temperature == nil {
		return DefaultTemperature
	}
	return *c.Temperature
}
