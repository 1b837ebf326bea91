//-------------------------------------------------------------------------
//
// pgEdge Librarian Server
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package anthropic

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/pgEdge/pgedge-librarian-server/internal/llm"
)

// ChatProvider implements the llm.ChatProvider interface on the messages API.
type ChatProvider struct {
	client      *Client
	model       string
	maxTokens   int
	temperature float64
}

// NewChatProvider creates a new Anthropic chat provider.
func NewChatProvider(apiKey string, opts ...ChatOption) *ChatProvider {
	p := &ChatProvider{
		client:      NewClient(apiKey),
		model:       defaultModel,
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

// WithChatModel sets the model.
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

// contentBlock is one block of message content.
type contentBlock struct {
	Type string `json:"type"`

	// text
	Text string `json:"text,omitempty"`

	// tool_use
	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`

	// tool_result
	ToolUseID string `json:"tool_use_id,omitempty"`
	Content   string `json:"content,omitempty"`
}

// message represents a message in Anthropic's format.
type message struct {
	Role    string         `json:"role"`
	Content []contentBlock `json:"content"`
}

type toolSpec struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"input_schema"`
}

type toolChoice struct {
	Type string `json:"type"`
}

// messagesRequest is the request format for the messages API.
type messagesRequest struct {
	Model       string      `json:"model"`
	MaxTokens   int         `json:"max_tokens"`
	System      string      `json:"system,omitempty"`
	Messages    []message   `json:"messages"`
	Tools       []toolSpec  `json:"tools,omitempty"`
	ToolChoice  *toolChoice `json:"tool_choice,omitempty"`
	Temperature float64     `json:"temperature"`
}

// messagesResponse is the response format from the messages API.
type messagesResponse struct {
	Content    []contentBlock `json:"content"`
	StopReason string         `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// Chat generates a completion. The messages API returns a single message, so
// the response always carries exactly one choice.
func (p *ChatProvider) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	apiReq := p.buildRequest(req)

	var apiResp messagesResponse
	if err := p.client.do(ctx, "/messages", apiReq, &apiResp); err != nil {
		return nil, err
	}

	msg := llm.Message{Role: llm.RoleAssistant}
	var text strings.Builder
	for _, block := range apiResp.Content {
		switch block.Type {
		case "text":
			text.WriteString(block.Text)
		case "tool_use":
			msg.ToolCalls = append(msg.ToolCalls, llm.ToolCall{
				ID:        block.ID,
				Name:      block.Name,
				Arguments: block.Input,
			})
		}
	}
	msg.Content = text.String()

	return &llm.ChatResponse{
		Choices: []llm.Choice{{Message: msg, FinishReason: apiResp.StopReason}},
		Usage: llm.TokenUsage{
			PromptTokens:     apiResp.Usage.InputTokens,
			CompletionTokens: apiResp.Usage.OutputTokens,
			TotalTokens:      apiResp.Usage.InputTokens + apiResp.Usage.OutputTokens,
		},
	}, nil
}

// buildRequest converts the conversation. System messages are lifted into
// the top-level system prompt and consecutive tool results are merged into
// one user message, as the messages API requires.
func (p *ChatProvider) buildRequest(req llm.ChatRequest) messagesRequest {
	maxTokens := p.maxTokens
	if req.MaxTokens > 0 {
		maxTokens = req.MaxTokens
	}

	temperature := p.temperature
	if req.Temperature >= 0 {
		temperature = req.Temperature
	}

	var system []string
	var messages []message

	for _, m := range req.Messages {
		switch m.Role {
		case llm.RoleSystem:
			system = append(system, m.Content)

		case llm.RoleTool:
			block := contentBlock{Type: "tool_result", ToolUseID: m.ToolCallID, Content: m.Content}
			if n := len(messages); n > 0 && messages[n-1].Role == llm.RoleUser &&
				isToolResults(messages[n-1].Content) {
				messages[n-1].Content = append(messages[n-1].Content, block)
				continue
			}
			messages = append(messages, message{Role: llm.RoleUser, Content: []contentBlock{block}})

		case llm.RoleAssistant:
			var blocks []contentBlock
			if m.Content != "" {
				blocks = append(blocks, contentBlock{Type: "text", Text: m.Content})
			}
			for _, tc := range m.ToolCalls {
				input := tc.Arguments
				if !json.Valid(input) {
					input = json.RawMessage(`{}`)
				}
				blocks = append(blocks, contentBlock{Type: "tool_use", ID: tc.ID, Name: tc.Name, Input: input})
			}
			messages = append(messages, message{Role: llm.RoleAssistant, Content: blocks})

		default:
			messages = append(messages, message{
				Role:    llm.RoleUser,
				Content: []contentBlock{{Type: "text", Text: m.Content}},
			})
		}
	}

	apiReq := messagesRequest{
		Model:       p.model,
		MaxTokens:   maxTokens,
		System:      strings.Join(system, "\n\n"),
		Messages:    messages,
		Temperature: temperature,
	}

	for _, t := range req.Tools {
		schema := t.Parameters
		if schema == nil {
			schema = map[string]any{"type": "object"}
		}
		apiReq.Tools = append(apiReq.Tools, toolSpec{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: schema,
		})
	}
	if len(apiReq.Tools) > 0 {
		choice := req.ToolChoice
		if choice == "" {
			choice = llm.ToolChoiceAuto
		}
		apiReq.ToolChoice = &toolChoice{Type: string(choice)}
	}

	return apiReq
}

func isToolResults(blocks []contentBlock) bool {
	return len(blocks) > 0 && blocks[0].Type == "tool_result"
}

// ModelName returns the model name.
func (p *ChatProvider) ModelName() string {
	return p.model
}

// Ensure ChatProvider implements the interface.
var _ llm.ChatProvider = (*ChatProvider)(nil)
