//-------------------------------------------------------------------------
//
// pgEdge Librarian Server
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package pipeline

import (
	"context"
	"strings"

	"github.com/pgEdge/pgedge-librarian-server/internal/failure"
	"github.com/pgEdge/pgedge-librarian-server/internal/llm"
	"github.com/pgEdge/pgedge-librarian-server/internal/moderation"
	"github.com/pgEdge/pgedge-librarian-server/internal/observe"
	"github.com/pgEdge/pgedge-librarian-server/internal/retrieval"
)

// DefaultSystemPrompt instructs the model to pick one title from the context
// and fetch its long summary.
const DefaultSystemPrompt = "You are Smart Librarian: a precise, friendly book recommender.\n\n" +
	"Given the retrieved CONTEXT, do the following:\n" +
	"1) Pick exactly ONE book title from the CONTEXT (best thematic match).\n" +
	"2) Explain briefly (2–4 sentences) why it fits the request.\n" +
	"3) THEN, CALL the function get_summary_by_title with the exact title you chose.\n" +
	"Rules:\n" +
	"- Only choose a title that appears in the CONTEXT.\n" +
	"- If the request is vague, ask one clarifying question, but still propose a best guess.\n" +
	"- Keep the recommendation concise; the tool output will provide the long summary."

// Default retrieval sizes and sampling temperature.
const (
	DefaultTopK        = 4
	DefaultSearchTopK  = 5
	DefaultTemperature = 0.4
)

// Moderator decides whether a text may be processed.
type Moderator interface {
	Moderate(ctx context.Context, text string) (moderation.Decision, error)
}

// Retriever embeds queries and finds candidate books.
type Retriever interface {
	DetailLookup
	Embed(ctx context.Context, text string) ([]float32, error)
	Search(ctx context.Context, vector []float32, text string, k int, opts ...retrieval.SearchOption) ([]retrieval.Candidate, error)
}

// Orchestrator runs moderation, retrieval and the two-turn conversation.
type Orchestrator struct {
	moderator    Moderator
	retriever    Retriever
	chat         llm.ChatProvider
	tools        *ToolExecutor
	systemPrompt string
	temperature  float64
	topK         int
	searchTopK   int
	reporter     observe.Reporter
}

// OrchestratorConfig contains the configuration for creating an orchestrator.
type OrchestratorConfig struct {
	Moderator    Moderator
	Retriever    Retriever
	Chat         llm.ChatProvider
	Tools        *ToolExecutor // Defaults to get_summary_by_title over Retriever
	SystemPrompt string
	Temperature  *float64
	TopK         int
	SearchTopK   int
	Reporter     observe.Reporter
}

// NewOrchestrator creates a new orchestrator.
func NewOrchestrator(cfg OrchestratorConfig) *Orchestrator {
	reporter := cfg.Reporter
	if reporter == nil {
		reporter = observe.Nop()
	}

	o := &Orchestrator{
		moderator:    cfg.Moderator,
		retriever:    cfg.Retriever,
		chat:         cfg.Chat,
		tools:        cfg.Tools,
		systemPrompt: cfg.SystemPrompt,
		temperature:  DefaultTemperature,
		topK:         cfg.TopK,
		searchTopK:   cfg.SearchTopK,
		reporter:     reporter,
	}
	if o.tools == nil {
		o.tools = NewToolExecutor(reporter, 0, NewSummaryByTitle(cfg.Retriever))
	}
	if o.systemPrompt == "" {
		o.systemPrompt = DefaultSystemPrompt
	}
	if cfg.Temperature != nil {
		o.temperature = *cfg.Temperature
	}
	if o.topK <= 0 {
		o.topK = DefaultTopK
	}
	if o.searchTopK <= 0 {
		o.searchTopK = DefaultSearchTopK
	}
	return o
}

// Chat answers a recommendation request. A blocked query makes no further
// calls. When the first turn requests tools they are executed and a second
// turn produces the answer; otherwise the first turn's text is the answer.
func (o *Orchestrator) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, o.fail(ctx, failure.Newf(failure.InvalidRequest, "chat", "query is required"))
	}

	if err := o.moderate(ctx, query); err != nil {
		return nil, err
	}

	vec, err := o.retriever.Embed(ctx, query)
	if err != nil {
		return nil, o.fail(ctx, err)
	}

	hits, err := o.retriever.Search(ctx, vec, query, o.topK)
	if err != nil {
		return nil, o.fail(ctx, err)
	}

	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: o.systemPrompt},
		{Role: llm.RoleSystem, Content: contextMessage(hits)},
		{Role: llm.RoleUser, Content: query},
	}
	tools := o.tools.Definitions()

	first, err := o.turn(ctx, 1, llm.ChatRequest{
		Messages:    messages,
		Tools:       tools,
		ToolChoice:  llm.ToolChoiceAuto,
		Temperature: o.temperature,
	})
	if err != nil {
		return nil, err
	}

	if len(first.ToolCalls) == 0 {
		return &ChatResponse{Hits: hits, Answer: first.Content}, nil
	}

	messages = append(messages, llm.Message{
		Role:      llm.RoleAssistant,
		Content:   first.Content,
		ToolCalls: first.ToolCalls,
	})
	messages = append(messages, o.tools.Execute(ctx, first.ToolCalls)...)

	second, err := o.turn(ctx, 2, llm.ChatRequest{
		Messages:    messages,
		Tools:       tools,
		ToolChoice:  llm.ToolChoiceNone,
		Temperature: o.temperature,
	})
	if err != nil {
		return nil, err
	}

	return &ChatResponse{Hits: hits, Answer: second.Content}, nil
}

// Search runs moderation and retrieval only.
func (o *Orchestrator) Search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, o.fail(ctx, failure.Newf(failure.InvalidRequest, "search", "query is required"))
	}

	k := o.searchTopK
	if req.TopK > 0 {
		k = req.TopK
	}

	if err := o.moderate(ctx, query); err != nil {
		return nil, err
	}

	vec, err := o.retriever.Embed(ctx, query)
	if err != nil {
		return nil, o.fail(ctx, err)
	}

	var opts []retrieval.SearchOption
	if len(req.Themes) > 0 {
		opts = append(opts, retrieval.WithThemes(req.Themes...))
	}

	hits, err := o.retriever.Search(ctx, vec, query, k, opts...)
	if err != nil {
		return nil, o.fail(ctx, err)
	}
	if hits == nil {
		hits = []retrieval.Candidate{}
	}

	return &SearchResponse{Hits: hits}, nil
}

// moderate returns a ModerationBlocked failure unless text is allowed. The
// gate fails closed, so an unreachable service also blocks.
func (o *Orchestrator) moderate(ctx context.Context, text string) error {
	decision, err := o.moderator.Moderate(ctx, text)
	if decision.Allowed {
		return nil
	}
	if err == nil {
		return o.fail(ctx, failure.Newf(failure.ModerationBlocked, "moderate",
			"max severity %d", decision.MaxSeverity))
	}
	return o.fail(ctx, failure.New(failure.ModerationBlocked, "moderate", err))
}

// turn sends one chat request and returns the first choice's message.
func (o *Orchestrator) turn(ctx context.Context, n int, req llm.ChatRequest) (*llm.Message, error) {
	op := "turn1"
	if n == 2 {
		op = "turn2"
	}

	resp, err := o.chat.Chat(ctx, req)
	if err != nil {
		return nil, o.fail(ctx, failure.New(failure.GenerationFailed, op, err))
	}
	if len(resp.Choices) == 0 {
		return nil, o.fail(ctx, failure.Newf(failure.NoGenerationChoices, op, "model returned no choices"))
	}

	msg := resp.Choices[0].Message
	o.reporter.Report(ctx, observe.Event{
		Stage: observe.StageTurn,
		Attrs: map[string]any{
			"turn":          n,
			"model":         o.chat.ModelName(),
			"messages":      len(req.Messages),
			"tool_calls":    len(msg.ToolCalls),
			"finish_reason": resp.Choices[0].FinishReason,
			"total_tokens":  resp.Usage.TotalTokens,
		},
	})
	return &msg, nil
}

func (o *Orchestrator) fail(ctx context.Context, err error) error {
	o.reporter.Report(ctx, observe.Event{Stage: observe.StageFailure, Err: err})
	return err
}
