//-------------------------------------------------------------------------
//
// pgEdge Librarian Server
//
// Copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package pipeline

import (
	"context"
	"sync"

	"github.com/pgEdge/pgedge-librarian-server/internal/illustration"
	"github.com/pgEdge/pgedge-librarian-server/internal/llm"
	"github.com/pgEdge/pgedge-librarian-server/internal/moderation"
	"github.com/pgEdge/pgedge-librarian-server/internal/observe"
	"github.com/pgEdge/pgedge-librarian-server/internal/retrieval"
	"github.com/pgEdge/pgedge-librarian-server/internal/speech"
)

// mockModerator implements Moderator for testing.
type mockModerator struct {
	moderateFunc func(ctx context.Context, text string) (moderation.Decision, error)
	calls        int
}

func (m *mockModerator) Moderate(ctx context.Context, text string) (moderation.Decision, error) {
	m.calls++
	if m.moderateFunc != nil {
		return m.moderateFunc(ctx, text)
	}
	return moderation.Decision{Allowed: true}, nil
}

func blockingModerator(severity int) *mockModerator {
	return &mockModerator{moderateFunc: func(context.Context, string) (moderation.Decision, error) {
		return moderation.Decision{Allowed: false, MaxSeverity: severity}, nil
	}}
}

// mockRetriever implements Retriever for testing.
type mockRetriever struct {
	mu         sync.Mutex
	embedFunc  func(ctx context.Context, text string) ([]float32, error)
	searchFunc func(ctx context.Context, vector []float32, text string, k int, opts ...retrieval.SearchOption) ([]retrieval.Candidate, error)
	details    map[string]string
	embeds     int
	searches   []int
	lookups    []string
}

func (m *mockRetriever) Embed(ctx context.Context, text string) ([]float32, error) {
	m.mu.Lock()
	m.embeds++
	m.mu.Unlock()
	if m.embedFunc != nil {
		return m.embedFunc(ctx, text)
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

func (m *mockRetriever) Search(
	ctx context.Context,
	vector []float32,
	text string,
	k int,
	opts ...retrieval.SearchOption,
) ([]retrieval.Candidate, error) {
	m.mu.Lock()
	m.searches = append(m.searches, k)
	m.mu.Unlock()
	if m.searchFunc != nil {
		return m.searchFunc(ctx, vector, text, k, opts...)
	}
	hits := candidates()
	if k < len(hits) {
		hits = hits[:k]
	}
	return hits, nil
}

func (m *mockRetriever) LookupDetailByExactTitle(_ context.Context, title string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lookups = append(m.lookups, title)
	if d, ok := m.details[title]; ok {
		return d
	}
	return retrieval.NoDetailSentinel
}

func candidates() []retrieval.Candidate {
	return []retrieval.Candidate{
		{ID: "the-hobbit", Title: "The Hobbit", ShortSummary: "Bilbo joins a quest for dragon gold.", Themes: []string{"adventure", "friendship"}},
		{ID: "the-lord-of-the-rings", Title: "The Lord of the Rings", ShortSummary: "A fellowship sets out to destroy a ring.", Themes: []string{"friendship", "courage"}},
		{ID: "the-little-prince", Title: "The Little Prince", ShortSummary: "A small traveller learns what matters.", Themes: []string{"friendship"}},
		{ID: "1984", Title: "1984", ShortSummary: "A clerk rebels against total surveillance.", Themes: []string{"dystopia"}},
		{ID: "brave-new-world", Title: "Brave New World", ShortSummary: "Engineered happiness hides control.", Themes: []string{"dystopia"}},
	}
}

func newRetriever() *mockRetriever {
	return &mockRetriever{details: map[string]string{
		"The Hobbit": "Bilbo Baggins is swept into a quest to reclaim a dwarven kingdom.",
		"1984":       "Winston Smith works at the Ministry of Truth and falls in love.",
	}}
}

// mockChat implements llm.ChatProvider, answering each call with the next
// scripted response.
type mockChat struct {
	responses []*llm.ChatResponse
	errs      []error
	requests  []llm.ChatRequest
}

func (m *mockChat) Chat(_ context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	n := len(m.requests)
	m.requests = append(m.requests, req)
	if n < len(m.errs) && m.errs[n] != nil {
		return nil, m.errs[n]
	}
	if n < len(m.responses) {
		return m.responses[n], nil
	}
	return &llm.ChatResponse{}, nil
}

func (m *mockChat) ModelName() string { return "mock-chat" }

func reply(content string, calls ...llm.ToolCall) *llm.ChatResponse {
	return &llm.ChatResponse{Choices: []llm.Choice{{
		Message:      llm.Message{Role: llm.RoleAssistant, Content: content, ToolCalls: calls},
		FinishReason: "stop",
	}}}
}

func summaryCall(id, args string) llm.ToolCall {
	return llm.ToolCall{ID: id, Name: SummaryToolName, Arguments: []byte(args)}
}

// mockIllustrator implements Illustrator for testing.
type mockIllustrator struct {
	requests []illustration.Request
}

func (m *mockIllustrator) Generate(_ context.Context, req illustration.Request) (*illustration.Result, error) {
	m.requests = append(m.requests, req)
	return &illustration.Result{State: illustration.StateSuccess, Image: "data:image/png;base64,aW1n"}, nil
}

// mockIssuer implements TokenIssuer for testing.
type mockIssuer struct {
	token speech.Token
	err   error
}

func (m *mockIssuer) Token(context.Context) (speech.Token, error) {
	return m.token, m.err
}

// recorder collects reported events.
type recorder struct {
	mu     sync.Mutex
	events []observe.Event
}

func (r *recorder) Report(_ context.Context, ev observe.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) stages() []observe.Stage {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]observe.Stage, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Stage
	}
	return out
}
