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
	"regexp"
	"slices"
	"strings"
)

// Providers accepted for each model role.
var (
	EmbeddingProviders = []string{"openai", "azure", "voyage", "ollama"}
	ChatProviders      = []string{"openai", "azure", "anthropic", "ollama"}
	ImageProviders     = []string{"openai", "azure"}
)

var imageSizePattern = regexp.MustCompile(`^\d+x\d+$`)

// expandPath expands ~ to the user's home directory.
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(homeDir, path[2:])
	}
	return path
}

// ValidationError represents a single configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}

	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate checks the configuration for errors and returns all validation
// errors found.
func (c *Config) Validate() error {
	var errs ValidationErrors

	errs = append(errs, c.validateServer()...)
	errs = append(errs, c.validateLogging()...)
	errs = append(errs, c.validateDatabase()...)
	errs = append(errs, c.validateLibrary()...)
	errs = append(errs, validateLLM("embedding_llm", c.EmbeddingLLM, EmbeddingProviders)...)
	errs = append(errs, validateLLM("chat_llm", c.ChatLLM.LLMConfig, ChatProviders)...)
	errs = append(errs, c.validateChat()...)
	errs = append(errs, c.validateImage()...)
	errs = append(errs, c.validateModeration()...)
	errs = append(errs, c.validateSpeech()...)

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// validateServer validates server configuration.
func (c *Config) validateServer() ValidationErrors {
	var errs ValidationErrors

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, ValidationError{
			Field:   "server.port",
			Message: "must be between 1 and 65535",
		})
	}

	if c.Server.TLS.Enabled {
		errs = append(errs, requireFile("server.tls.cert_file", c.Server.TLS.CertFile)...)
		errs = append(errs, requireFile("server.tls.key_file", c.Server.TLS.KeyFile)...)
	}

	return errs
}

func requireFile(field, path string) ValidationErrors {
	if path == "" {
		return ValidationErrors{{Field: field, Message: "required when TLS is enabled"}}
	}
	if _, err := os.Stat(expandPath(path)); err != nil {
		return ValidationErrors{{Field: field, Message: fmt.Sprintf("file not found: %s", path)}}
	}
	return nil
}

func (c *Config) validateLogging() ValidationErrors {
	var errs ValidationErrors

	if c.Logging.Level != "" && !slices.Contains([]string{"debug", "info", "warn", "error"}, strings.ToLower(c.Logging.Level)) {
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Message: "must be one of: debug, info, warn, error",
		})
	}
	if c.Logging.Format != "" && c.Logging.Format != "json" && c.Logging.Format != "console" {
		errs = append(errs, ValidationError{
			Field:   "logging.format",
			Message: "must be one of: json, console",
		})
	}

	return errs
}

// validateDatabase validates database configuration.
func (c *Config) validateDatabase() ValidationErrors {
	var errs ValidationErrors
	db := c.Database

	if db.Host == "" {
		errs = append(errs, ValidationError{Field: "database.host", Message: "required"})
	}

	if db.Database == "" {
		errs = append(errs, ValidationError{Field: "database.database", Message: "required"})
	}

	if db.Port < 1 || db.Port > 65535 {
		errs = append(errs, ValidationError{
			Field:   "database.port",
			Message: "must be between 1 and 65535",
		})
	}

	validSSLModes := []string{"disable", "allow", "prefer", "require", "verify-ca", "verify-full"}
	if db.SSLMode != "" && !slices.Contains(validSSLModes, db.SSLMode) {
		errs = append(errs, ValidationError{
			Field:   "database.ssl_mode",
			Message: "must be one of: " + strings.Join(validSSLModes, ", "),
		})
	}

	if db.MaxConns < 0 {
		errs = append(errs, ValidationError{Field: "database.max_conns", Message: "must be non-negative"})
	}

	return errs
}

// validateLibrary validates the book table and retrieval settings.
func (c *Config) validateLibrary() ValidationErrors {
	var errs ValidationErrors
	lib := c.Library

	if lib.Dimensions < 1 {
		errs = append(errs, ValidationError{Field: "library.dimensions", Message: "must be positive"})
	}
	if lib.TopK < 1 {
		errs = append(errs, ValidationError{Field: "library.top_k", Message: "must be positive"})
	}
	if lib.SearchTopK < 1 {
		errs = append(errs, ValidationError{Field: "library.search_top_k", Message: "must be positive"})
	}
	if lib.Hybrid.RRFConstant < 0 {
		errs = append(errs, ValidationError{Field: "library.hybrid.rrf_constant", Message: "must be non-negative"})
	}

	return errs
}

// validateLLM validates provider configuration (required fields).
func validateLLM(prefix string, llm LLMConfig, validProviders []string) ValidationErrors {
	var errs ValidationErrors

	provider := strings.ToLower(llm.Provider)
	switch {
	case provider == "":
		errs = append(errs, ValidationError{Field: prefix + ".provider", Message: "required"})
	case !slices.Contains(validProviders, provider):
		errs = append(errs, ValidationError{
			Field:   prefix + ".provider",
			Message: fmt.Sprintf("must be one of: %s", strings.Join(validProviders, ", ")),
		})
	}

	if llm.Model == "" {
		errs = append(errs, ValidationError{Field: prefix + ".model", Message: "required"})
	}

	// Azure deployments are addressed through the resource endpoint.
	if provider == "azure" && llm.BaseURL == "" {
		errs = append(errs, ValidationError{
			Field:   prefix + ".base_url",
			Message: "required for azure provider",
		})
	}

	if llm.Timeout < 0 {
		errs = append(errs, ValidationError{Field: prefix + ".timeout", Message: "must be non-negative"})
	}

	return errs
}

func (c *Config) validateChat() ValidationErrors {
	var errs ValidationErrors

	if t := c.ChatLLM.Temperature; t != nil && (*t < 0 || *t > 2) {
		errs = append(errs, ValidationError{Field: "chat_llm.temperature", Message: "must be between 0 and 2"})
	}
	if c.ChatLLM.MaxTokens < 0 {
		errs = append(errs, ValidationError{Field: "chat_llm.max_tokens", Message: "must be non-negative"})
	}

	return errs
}

func (c *Config) validateImage() ValidationErrors {
	errs := validateLLM("image", c.Image.LLMConfig, ImageProviders)

	for field, size := range map[string]string{
		"image.square_size": c.Image.SquareSize,
		"image.wide_size":   c.Image.WideSize,
	} {
		if !imageSizePattern.MatchString(size) {
			errs = append(errs, ValidationError{Field: field, Message: "must look like WIDTHxHEIGHT"})
		}
	}

	if c.Image.TablesFile != "" {
		if _, err := os.Stat(expandPath(c.Image.TablesFile)); err != nil {
			errs = append(errs, ValidationError{
				Field:   "image.tables_file",
				Message: fmt.Sprintf("file not found: %s", c.Image.TablesFile),
			})
		}
	}

	return errs
}

// validateModeration requires an endpoint: moderation fails closed, so a
// missing endpoint would block every request.
func (c *Config) validateModeration() ValidationErrors {
	if c.Moderation.Endpoint == "" {
		return ValidationErrors{{Field: "moderation.endpoint", Message: "required"}}
	}
	return nil
}

func (c *Config) validateSpeech() ValidationErrors {
	var errs ValidationErrors

	if !c.Speech.Enabled {
		return nil
	}
	if c.Speech.Region == "" && c.Speech.Endpoint == "" {
		errs = append(errs, ValidationError{
			Field:   "speech.region",
			Message: "required when speech is enabled",
		})
	}
	if c.Speech.RefreshBefore >= c.Speech.TokenTTL {
		errs = append(errs, ValidationError{
			Field:   "speech.refresh_before",
			Message: "must be shorter than speech.token_ttl",
		})
	}

	return errs
}

// ExpandPath expands ~ in a configured file path.
func ExpandPath(path string) string {
	return expandPath(path)
}
