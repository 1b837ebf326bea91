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
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgEdge/pgedge-librarian-server/internal/llm"
)

func TestChatProvider_ToolCalls(t *testing.T) {
	var got chatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"choices":[{"message":{"content":null,"tool_calls":[
				{"id":"call_1","type":"function","function":{"name":"get_summary_by_title","arguments":"{\"title\":\"1984\"}"}}
			]},"finish_reason":"tool_calls"}],
			"usage":{"prompt_tokens":10,"completion_tokens":5,"total_tokens":15}}`))
	}))
	defer server.Close()

	provider := NewChatProvider("test-key",
		WithChatClient(NewClient("test-key", WithBaseURL(server.URL))))

	resp, err := provider.Chat(context.Background(), llm.ChatRequest{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: "be brief"},
			{Role: llm.RoleUser, Content: "dystopia please"},
		},
		Tools: []llm.ToolDefinition{{
			Name:       "get_summary_by_title",
			Parameters: map[string]any{"type": "object"},
		}},
		Temperature: 0.4,
	})
	require.NoError(t, err)

	assert.Equal(t, "auto", got.ToolChoice)
	require.Len(t, got.Tools, 1)
	assert.Equal(t, "function", got.Tools[0].Type)
	assert.InDelta(t, 0.4, got.Temperature, 1e-9)
	assert.Len(t, got.Messages, 2)

	require.Len(t, resp.Choices, 1)
	msg := resp.Choices[0].Message
	assert.Equal(t, llm.RoleAssistant, msg.Role)
	assert.Empty(t, msg.Content)
	require.Len(t, msg.ToolCalls, 1)
	assert.Equal(t, "call_1", msg.ToolCalls[0].ID)
	assert.JSONEq(t, `{"title":"1984"}`, string(msg.ToolCalls[0].Arguments))
	assert.Equal(t, 15, resp.Usage.TotalTokens)
}

func TestChatProvider_ToolHistoryRoundTrip(t *testing.T) {
	var got chatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"Read 1984."},"finish_reason":"stop"}]}`))
	}))
	defer server.Close()

	provider := NewChatProvider("test-key",
		WithChatClient(NewClient("test-key", WithBaseURL(server.URL))))

	resp, err := provider.Chat(context.Background(), llm.ChatRequest{
		Messages: []llm.Message{
			{Role: llm.RoleUser, Content: "q"},
			{Role: llm.RoleAssistant, ToolCalls: []llm.ToolCall{
				{ID: "call_1", Name: "get_summary_by_title", Arguments: json.RawMessage(`{"title":"1984"}`)},
			}},
			{Role: llm.RoleTool, ToolCallID: "call_1", Content: "long summary"},
		},
		Temperature: -1,
	})
	require.NoError(t, err)
	assert.Equal(t, "Read 1984.", resp.Choices[0].Message.Content)

	assert.Empty(t, got.Tools)
	assert.Empty(t, got.ToolChoice)
	require.Len(t, got.Messages, 3)
	assert.Equal(t, `{"title":"1984"}`, got.Messages[1].ToolCalls[0].Function.Arguments)
	assert.Equal(t, "call_1", got.Messages[2].ToolCallID)
}

func TestChatProvider_EmptyChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer server.Close()

	provider := NewChatProvider("test-key",
		WithChatClient(NewClient("test-key", WithBaseURL(server.URL))))

	resp, err := provider.Chat(context.Background(), llm.ChatRequest{})
	require.NoError(t, err)
	assert.Empty(t, resp.Choices)
}

func TestChatProvider_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"slow down","type":"requests","code":"rate_limit_exceeded"}}`))
	}))
	defer server.Close()

	provider := NewChatProvider("test-key",
		WithChatClient(NewClient("test-key", WithBaseURL(server.URL))))

	_, err := provider.Chat(context.Background(), llm.ChatRequest{})
	require.Error(t, err)

	var apiErr *llm.Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusTooManyRequests, apiErr.StatusCode)
	assert.Equal(t, "rate_limit_exceeded", apiErr.Code)
	assert.True(t, llm.IsRetryable(err))
	assert.Contains(t, err.Error(), "slow down")
}
