//-------------------------------------------------------------------------
//
// pgEdge Librarian Server
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package ollama

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/pgEdge/pgedge-librarian-server/internal/llm"
)

// ChatProvider implements the llm.ChatProvider interface on /api/chat.
type ChatProvider struct {
	client      *Client
	model       string
	temperature float64
}

// NewChatProvider creates a new Ollama chat provider.
func NewChatProvider(opts ...ChatOption) *ChatProvider {
	p := &ChatProvider{
		client:      NewClient(),
		model:       defaultChatModel,
		temperature: 0.4,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ChatOption configures the chat provider.
type ChatOption func(*ChatProvider)

// WithChatModel sets the model.
func WithChatModel(model string) ChatOption {
	return func(p *ChatProvider) {
		p.model = model
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

type toolCall struct {
	Function struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	} `json:"function"`
}

// chatMessage represents a message in Ollama's format.
type chatMessage struct {
	Role      string     `json:"role"`
	Content   string     `json:"content"`
	ToolCalls []toolCall `json:"tool_calls,omitempty"`
}

type tool struct {
	Type     string `json:"type"`
	Function struct {
		Name        string         `json:"name"`
		Description string         `json:"description,omitempty"`
		Parameters  map[string]any `json:"parameters,omitempty"`
	} `json:"function"`
}

type chatOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

// chatRequest is the request format for the chat API.
type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Tools    []tool        `json:"tools,omitempty"`
	Stream   bool          `json:"stream"`
	Options  chatOptions   `json:"options"`
}

// chatResponse is the non-streaming response format.
type chatResponse struct {
	Message         chatMessage `json:"message"`
	DoneReason      string      `json:"done_reason"`
	PromptEvalCount int         `json:"prompt_eval_count"`
	EvalCount       int         `json:"eval_count"`
}

// Chat generates a completion. Ollama does not assign tool call ids, so ids
// are synthesized here; they only need to be unique within the conversation.
func (p *ChatProvider) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	var apiResp chatResponse
	if err := p.client.do(ctx, "/api/chat", p.buildRequest(req), &apiResp); err != nil {
		return nil, err
	}

	msg := llm.Message{Role: llm.RoleAssistant, Content: apiResp.Message.Content}
	for _, tc := range apiResp.Message.ToolCalls {
		msg.ToolCalls = append(msg.ToolCalls, llm.ToolCall{
			ID:        "call_" + uuid.NewString(),
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}

	return &llm.ChatResponse{
		Choices: []llm.Choice{{Message: msg, FinishReason: apiResp.DoneReason}},
		Usage: llm.TokenUsage{
			PromptTokens:     apiResp.PromptEvalCount,
			CompletionTokens: apiResp.EvalCount,
			TotalTokens:      apiResp.PromptEvalCount + apiResp.EvalCount,
		},
	}, nil
}

func (p *ChatProvider) buildRequest(req llm.ChatRequest) chatRequest {
	temperature := p.temperature
	if req.Temperature >= 0 {
		temperature = req.Temperature
	}

	apiReq := chatRequest{
		Model:    p.model,
		Messages: make([]chatMessage, 0, len(req.Messages)),
		Options:  chatOptions{Temperature: temperature, NumPredict: req.MaxTokens},
	}

	for _, m := range req.Messages {
		cm := chatMessage{Role: m.Role, Content: m.Content}
		for _, tc := range m.ToolCalls {
			var call toolCall
			call.Function.Name = tc.Name
			call.Function.Arguments = tc.Arguments
			if !json.Valid(call.Function.Arguments) {
				call.Function.Arguments = json.RawMessage(`{}`)
			}
			cm.ToolCalls = append(cm.ToolCalls, call)
		}
		apiReq.Messages = append(apiReq.Messages, cm)
	}

	// Ollama has no tool_choice; "none" is expressed by not offering tools.
	if req.ToolChoice != llm.ToolChoiceNone {
		for _, t := range req.Tools {
			var spec tool
			spec.Type = "function"
			spec.Function.Name = t.Name
			spec.Function.Description = t.Description
			spec.Function.Parameters = t.Parameters
			apiReq.Tools = append(apiReq.Tools, spec)
		}
	}

	return apiReq
}

// ModelName returns the model name.
func (p *ChatProvider) ModelName() string {
	return p.model
}

// Ensure ChatProvider implements the interface.
var _ llm.ChatProvider = (*ChatProvider)(nil)
