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
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgEdge/pgedge-librarian-server/internal/llm"
)

func TestChatProvider_ToolUse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		assert.Equal(t, apiVersion, r.Header.Get("anthropic-version"))

		var req messagesRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "instructions\n\nCONTEXT:\nbooks", req.System)
		assert.Len(t, req.Messages, 1)
		if assert.NotNil(t, req.ToolChoice) {
			assert.Equal(t, "auto", req.ToolChoice.Type)
		}

		_, _ = w.Write([]byte(`{
			"content":[
				{"type":"text","text":"Let me check."},
				{"type":"tool_use","id":"toolu_1","name":"get_summary_by_title","input":{"title":"1984"}}
			],
			"stop_reason":"tool_use",
			"usage":{"input_tokens":20,"output_tokens":7}}`))
	}))
	defer server.Close()

	provider := NewChatProvider("test-key",
		WithChatClient(NewClient("test-key", WithBaseURL(server.URL))))

	resp, err := provider.Chat(context.Background(), llm.ChatRequest{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: "instructions"},
			{Role: llm.RoleSystem, Content: "CONTEXT:\nbooks"},
			{Role: llm.RoleUser, Content: "something dystopian"},
		},
		Tools: []llm.ToolDefinition{{Name: "get_summary_by_title"}},
	})
	require.NoError(t, err)

	require.Len(t, resp.Choices, 1)
	msg := resp.Choices[0].Message
	assert.Equal(t, "Let me check.", msg.Content)
	require.Len(t, msg.ToolCalls, 1)
	assert.Equal(t, "toolu_1", msg.ToolCalls[0].ID)
	assert.JSONEq(t, `{"title":"1984"}`, string(msg.ToolCalls[0].Arguments))
	assert.Equal(t, 27, resp.Usage.TotalTokens)
}

func TestBuildRequest_MergesToolResults(t *testing.T) {
	p := NewChatProvider("k")

	req := p.buildRequest(llm.ChatRequest{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: "sys"},
			{Role: llm.RoleUser, Content: "q"},
			{Role: llm.RoleAssistant, ToolCalls: []llm.ToolCall{
				{ID: "a", Name: "get_summary_by_title", Arguments: json.RawMessage(`{"title":"A"}`)},
				{ID: "b", Name: "get_summary_by_title", Arguments: json.RawMessage(`not json`)},
			}},
			{Role: llm.RoleTool, ToolCallID: "a", Content: "summary A"},
			{Role: llm.RoleTool, ToolCallID: "b", Content: "summary B"},
		},
		Temperature: -1,
	})

	assert.Equal(t, "sys", req.System)
	assert.InDelta(t, 0.4, req.Temperature, 1e-9)
	assert.Nil(t, req.ToolChoice)
	require.Len(t, req.Messages, 3)

	assistant := req.Messages[1]
	require.Len(t, assistant.Content, 2)
	assert.Equal(t, "tool_use", assistant.Content[0].Type)
	assert.JSONEq(t, `{}`, string(assistant.Content[1].Input))

	results := req.Messages[2]
	assert.Equal(t, llm.RoleUser, results.Role)
	require.Len(t, results.Content, 2)
	assert.Equal(t, "a", results.Content[0].ToolUseID)
	assert.Equal(t, "summary B", results.Content[1].Content)
}

func TestChatProvider_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}`))
	}))
	defer server.Close()

	provider := NewChatProvider("test-key",
		WithChatClient(NewClient("test-key", WithBaseURL(server.URL))))

	_, err := provider.Chat(context.Background(), llm.ChatRequest{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Overloaded")
	assert.True(t, llm.IsRetryable(err))
}
