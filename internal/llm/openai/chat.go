//-------------------------------------------------------------------------
//
// pgEdge Librarian Server
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package openai

import (
	"context"
	"encoding/json"

	"github.com/pgEdge/pgedge-librarian-server/internal/llm"
)

// ChatProvider implements the llm.ChatProvider interface.
type ChatProvider struct {
	client      *Client
	model       string
	maxTokens   int
	temperature float64
}

// NewChatProvider creates a new OpenAI chat provider.
func NewChatProvider(apiKey string, opts ...ChatOption) *ChatProvider {
	p := &ChatProvider{
		client:      NewClient(apiKey),
		model:       defaultChatModel,
		maxTokens:   1024,
		temperature: 0.4,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ChatOption configures the chat provider.
type ChatOption func(*ChatProvider)

// WithChatModel sets the chat model (the deployment name on Azure).
func WithChatModel(model string) ChatOption {
	return func(p *ChatProvider) {
		p.model = model
	}
}

// WithMaxTokens sets the default max tokens.
func WithMaxTokens(tokens int) ChatOption {
	return func(p *ChatProvider) {
		p.maxTokens = tokens
	}
}

// WithTemperature sets the default temperature.
func WithTemperature(temp float64) ChatOption {
	return func(p *ChatProvider) {
		p.temperature = temp
	}
}

// WithChatClient sets a custom client.
func WithChatClient(client *Client) ChatOption {
	return func(p *ChatProvider) {
		p.client = client
	}
}

type functionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type toolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function functionCall `json:"function"`
}

// chatMessage represents a message in the chat format.
type chatMessage struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []toolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

type toolFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

type tool struct {
	Type     string       `json:"type"`
	Function toolFunction `json:"function"`
}

// chatRequest is the request format for the chat completions API.
type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Tools       []tool        `json:"tools,omitempty"`
	ToolChoice  string        `json:"tool_choice,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature"`
}

type chatChoice struct {
	Message struct {
		Content   *string    `json:"content"`
		ToolCalls []toolCall `json:"tool_calls"`
	} `json:"message"`
	FinishReason string `json:"finish_reason"`
}

// chatResponse is the response format from the chat completions API.
type chatResponse struct {
	Choices []chatChoice `json:"choices"`
	Usage   struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// Chat generates a chat completion, optionally offering tools.
func (p *ChatProvider) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	chatReq := p.buildRequest(req)

	var chatResp chatResponse
	if err := p.client.do(ctx, p.model, "/chat/completions", chatReq, &chatResp); err != nil {
		return nil, err
	}

	out := &llm.ChatResponse{
		Choices: make([]llm.Choice, 0, len(chatResp.Choices)),
		Usage: llm.TokenUsage{
			PromptTokens:     chatResp.Usage.PromptTokens,
			CompletionTokens: chatResp.Usage.CompletionTokens,
			TotalTokens:      chatResp.Usage.TotalTokens,
		},
	}
	for _, c := range chatResp.Choices {
		msg := llm.Message{Role: llm.RoleAssistant}
		if c.Message.Content != nil {
			msg.Content = *c.Message.Content
		}
		for _, tc := range c.Message.ToolCalls {
			msg.ToolCalls = append(msg.ToolCalls, llm.ToolCall{
				ID:        tc.ID,
				Name:      tc.Function.Name,
				Arguments: json.RawMessage(tc.Function.Arguments),
			})
		}
		out.Choices = append(out.Choices, llm.Choice{Message: msg, FinishReason: c.FinishReason})
	}

	return out, nil
}

// buildRequest converts a provider-neutral request to the wire format.
func (p *ChatProvider) buildRequest(req llm.ChatRequest) chatRequest {
	maxTokens := p.maxTokens
	if req.MaxTokens > 0 {
		maxTokens = req.MaxTokens
	}

	temperature := p.temperature
	if req.Temperature >= 0 {
		temperature = req.Temperature
	}

	chatReq := chatRequest{
		Model:       p.model,
		Messages:    make([]chatMessage, 0, len(req.Messages)),
		MaxTokens:   maxTokens,
		Temperature: temperature,
	}

	for _, m := range req.Messages {
		cm := chatMessage{Role: m.Role, Content: m.Content, ToolCallID: m.ToolCallID}
		for _, tc := range m.ToolCalls {
			cm.ToolCalls = append(cm.ToolCalls, toolCall{
				ID:   tc.ID,
				Type: "function",
				Function: functionCall{
					Name:      tc.Name,
					Arguments: string(tc.Arguments),
				},
			})
		}
		chatReq.Messages = append(chatReq.Messages, cm)
	}

	for _, t := range req.Tools {
		chatReq.Tools = append(chatReq.Tools, tool{
			Type: "function",
			Function: toolFunction{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}
	if len(chatReq.Tools) > 0 {
		choice := req.ToolChoice
		if choice == "" {
			choice = llm.ToolChoiceAuto
		}
		chatReq.ToolChoice = string(choice)
	}

	return chatReq
}

// ModelName returns the model name.
func (p *ChatProvider) ModelName() string {
	return p.model
}

// Ensure ChatProvider implements the interface.
var _ llm.ChatProvider = (*ChatProvider)(nil)
