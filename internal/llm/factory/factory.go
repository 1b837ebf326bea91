//-------------------------------------------------------------------------
//
// pgEdge Librarian Server
//
// Copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package factory provides functions to create LLM providers from configuration.
package factory

import (
	"fmt"
	"strings"

	"github.com/pgEdge/pgedge-librarian-server/internal/config"
	"github.com/pgEdge/pgedge-librarian-server/internal/llm"
	"github.com/pgEdge/pgedge-librarian-server/internal/llm/anthropic"
	"github.com/pgEdge/pgedge-librarian-server/internal/llm/ollama"
	"github.com/pgEdge/pgedge-librarian-server/internal/llm/openai"
	"github.com/pgEdge/pgedge-librarian-server/internal/llm/voyage"
)

// Provider constants for matching configuration values.
const (
	ProviderOpenAI    = "openai"
	ProviderAzure     = "azure"
	ProviderAnthropic = "anthropic"
	ProviderVoyage    = "voyage"
	ProviderOllama    = "ollama"
)

// openAIClient builds the shared OpenAI-protocol client for the openai and
// azure providers.
func openAIClient(cfg config.LLMConfig, keys config.LoadedKeys) (*openai.Client, error) {
	provider := strings.ToLower(cfg.Provider)

	service := config.ServiceOpenAI
	if provider == ProviderAzure {
		service = config.ServiceAzure
	}
	key := keys.Get(service)
	if key == "" {
		return nil, fmt.Errorf("%s API key not configured", provider)
	}

	var opts []openai.ClientOption
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, openai.WithTimeout(cfg.Timeout))
	}
	if provider == ProviderAzure {
		opts = append(opts, openai.WithAzure(cfg.APIVersion))
	}
	return openai.NewClient(key, opts...), nil
}

func ollamaClient(cfg config.LLMConfig) *ollama.Client {
	var opts []ollama.ClientOption
	if cfg.BaseURL != "" {
		opts = append(opts, ollama.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, ollama.WithTimeout(cfg.Timeout))
	}
	return ollama.NewClient(opts...)
}

// NewEmbeddingProvider creates an embedding provider based on configuration.
// dims is the corpus dimension the provider is expected to produce.
func NewEmbeddingProvider(
	cfg config.LLMConfig,
	dims int,
	keys config.LoadedKeys,
) (llm.EmbeddingProvider, error) {
	switch strings.ToLower(cfg.Provider) {
	case ProviderOpenAI, ProviderAzure:
		client, err := openAIClient(cfg, keys)
		if err != nil {
			return nil, err
		}
		return openai.NewEmbeddingProvider(client.APIKey(),
			openai.WithEmbeddingClient(client),
			openai.WithEmbeddingModel(cfg.Model),
			openai.WithDimensions(dims),
		), nil

	case ProviderVoyage:
		key := keys.Get(config.ServiceVoyage)
		if key == "" {
			return nil, fmt.Errorf("Voyage API key not configured")
		}
		opts := []voyage.EmbeddingOption{voyage.WithModel(cfg.Model), voyage.WithDimensions(dims)}
		if cfg.BaseURL != "" {
			opts = append(opts, voyage.WithBaseURL(cfg.BaseURL))
		}
		if cfg.Timeout > 0 {
			opts = append(opts, voyage.WithTimeout(cfg.Timeout))
		}
		return voyage.NewEmbeddingProvider(key, opts...), nil

	case ProviderOllama:
		return ollama.NewEmbeddingProvider(
			ollama.WithEmbeddingClient(ollamaClient(cfg)),
			ollama.WithEmbeddingModel(cfg.Model),
			ollama.WithDimensions(dims),
		), nil

	case ProviderAnthropic:
		return nil, fmt.Errorf("Anthropic does not provide an embedding API")

	default:
		return nil, fmt.Errorf("unknown embedding provider: %s", cfg.Provider)
	}
}

// NewChatProvider creates a chat provider based on configuration.
func NewChatProvider(cfg config.ChatConfig, keys config.LoadedKeys) (llm.ChatProvider, error) {
	temperature := cfg.ChatTemperature()

	switch strings.ToLower(cfg.Provider) {
	case ProviderOpenAI, ProviderAzure:
		client, err := openAIClient(cfg.LLMConfig, keys)
		if err != nil {
			return nil, err
		}
		opts := []openai.ChatOption{
			openai.WithChatClient(client),
			openai.WithChatModel(cfg.Model),
			openai.WithTemperature(temperature),
		}
		if cfg.MaxTokens > 0 {
			opts = append(opts, openai.WithMaxTokens(cfg.MaxTokens))
		}
		return openai.NewChatProvider(client.APIKey(), opts...), nil

	case ProviderAnthropic:
		key := keys.Get(config.ServiceAnthropic)
		if key == "" {
			return nil, fmt.Errorf("Anthropic API key not configured")
		}
		var clientOpts []anthropic.ClientOption
		if cfg.BaseURL != "" {
			clientOpts = append(clientOpts, anthropic.WithBaseURL(cfg.BaseURL))
		}
		if cfg.Timeout > 0 {
			clientOpts = append(clientOpts, anthropic.WithTimeout(cfg.Timeout))
		}
		opts := []anthropic.ChatOption{
			anthropic.WithChatClient(anthropic.NewClient(key, clientOpts...)),
			anthropic.WithChatModel(cfg.Model),
			anthropic.WithTemperature(temperature),
		}
		if cfg.MaxTokens > 0 {
			opts = append(opts, anthropic.WithMaxTokens(cfg.MaxTokens))
		}
		return anthropic.NewChatProvider(key, opts...), nil

	case ProviderOllama:
		return ollama.NewChatProvider(
			ollama.WithChatClient(ollamaClient(cfg.LLMConfig)),
			ollama.WithChatModel(cfg.Model),
			ollama.WithTemperature(temperature),
		), nil

	case ProviderVoyage:
		return nil, fmt.Errorf("Voyage does not provide a chat API")

	default:
		return nil, fmt.Errorf("unknown chat provider: %s", cfg.Provider)
	}
}

// NewImageProvider creates an image provider based on configuration.
func NewImageProvider(cfg config.ImageConfig, keys config.LoadedKeys) (llm.ImageProvider, error) {
	switch strings.ToLower(cfg.Provider) {
	case ProviderOpenAI, ProviderAzure:
		client, err := openAIClient(cfg.LLMConfig, keys)
		if err != nil {
			return nil, err
		}
		return openai.NewImageProvider(client.APIKey(),
			openai.WithImageClient(client),
			openai.WithImageModel(cfg.Model),
		), nil

	default:
		return nil, fmt.Errorf("unknown image provider: %s", cfg.Provider)
	}
}
