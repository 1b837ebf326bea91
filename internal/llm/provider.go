//-------------------------------------------------------------------------
//
// pgEdge Librarian Server
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package llm provides interfaces and implementations for LLM providers.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// EmbeddingProvider generates vector embeddings from text.
type EmbeddingProvider interface {
	// Embed generates an embedding vector for the given text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts.
	// Returns embeddings in the same order as input texts.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the dimensionality of embeddings produced.
	Dimensions() int

	// ModelName returns the name of the model being used.
	ModelName() string
}

// ChatProvider runs chat completions with optional tool calling.
type ChatProvider interface {
	// Chat sends the conversation and returns the model's choices. An empty
	// choice list is returned as-is; callers decide what it means.
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)

	// ModelName returns the name of the model being used.
	ModelName() string
}

// ImageProvider generates images from a text prompt.
type ImageProvider interface {
	GenerateImage(ctx context.Context, req ImageRequest) (*ImageResponse, error)
	ModelName() string
}

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message represents a message in the conversation.
type Message struct {
	Role    string
	Content string

	// ToolCalls is set on assistant messages that request tool execution.
	ToolCalls []ToolCall

	// ToolCallID links a tool message to the call it answers.
	ToolCallID string
}

// ToolCall is a single tool invocation requested by the model.
type ToolCall struct {
	ID        string
	Name      string
	Arguments json.RawMessage
}

// ToolDefinition describes a tool offered to the model. Parameters is a JSON
// schema object.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// ToolChoice controls whether the model may call tools.
type ToolChoice string

// Tool choice modes.
const (
	ToolChoiceAuto ToolChoice = "auto"
	ToolChoiceNone ToolChoice = "none"
)

// ChatRequest represents a request to an LLM for a chat completion.
type ChatRequest struct {
	// Messages is the conversation history, including system messages.
	Messages []Message

	// Tools are offered to the model. Nil means no tools.
	Tools []ToolDefinition

	// ToolChoice is only sent when Tools is non-empty.
	ToolChoice ToolChoice

	// MaxTokens is the maximum number of tokens to generate.
	// If 0, uses the provider's default.
	MaxTokens int

	// Temperature controls randomness (0.0 = deterministic, 1.0+ = creative).
	// If negative, uses the provider's default.
	Temperature float64
}

// Choice is one candidate reply.
type Choice struct {
	Message      Message
	FinishReason string
}

// ChatResponse represents a chat completion response.
type ChatResponse struct {
	Choices []Choice
	Usage   TokenUsage
}

// TokenUsage represents token consumption for a request.
type TokenUsage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// ImageRequest asks for one or more generated images.
type ImageRequest struct {
	Prompt         string
	Size           string // e.g. "1024x1024"
	Quality        string
	Count          int
	ResponseFormat string // "b64_json"
}

// GeneratedImage is one image returned by the provider.
type GeneratedImage struct {
	B64JSON       string
	RevisedPrompt string
}

// ImageResponse contains generated images.
type ImageResponse struct {
	Images []GeneratedImage
}

// Error is an upstream API error.
type Error struct {
	Code       string
	Message    string
	StatusCode int
	Retryable  bool
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("API error (status %d, %s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("API error (status %d): %s", e.StatusCode, e.Message)
}

// Common error codes
const (
	ErrCodeRateLimit     = "rate_limit"
	ErrCodeInvalidKey    = "invalid_api_key"
	ErrCodeQuotaExceed   = "quota_exceeded"
	ErrCodeModelError    = "model_error"
	ErrCodeContentPolicy = "content_policy_violation"
)

// NewAPIError builds an Error for an HTTP status, marking rate limits and
// server errors as retryable.
func NewAPIError(status int, code, message string) *Error {
	return &Error{
		Code:       code,
		Message:    message,
		StatusCode: status,
		Retryable:  status == 429 || status >= 500,
	}
}

// IsRetryable returns true if the error can be retried.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}
