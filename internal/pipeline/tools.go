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
	"encoding/json"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/pgEdge/pgedge-librarian-server/internal/failure"
	"github.com/pgEdge/pgedge-librarian-server/internal/llm"
	"github.com/pgEdge/pgedge-librarian-server/internal/observe"
)

// SummaryToolName is the name the model calls to fetch a long summary.
const SummaryToolName = "get_summary_by_title"

// DefaultToolConcurrency bounds the tool calls run at once.
const DefaultToolConcurrency = 4

// Capability is a tool the model may call. The set is closed: only types in
// this package implement it.
type Capability interface {
	Definition() llm.ToolDefinition
	call(ctx context.Context, args json.RawMessage) (string, error)
}

// DetailLookup resolves an exact title to its long summary.
type DetailLookup interface {
	LookupDetailByExactTitle(ctx context.Context, title string) string
}

// SummaryByTitleArgs are the arguments of get_summary_by_title.
type SummaryByTitleArgs struct {
	Title string `json:"title"`
}

// SummaryByTitle returns the detailed summary for an exact book title.
type SummaryByTitle struct {
	lookup DetailLookup
}

// NewSummaryByTitle creates the summary capability.
func NewSummaryByTitle(lookup DetailLookup) *SummaryByTitle {
	return &SummaryByTitle{lookup: lookup}
}

// Definition describes the tool to the model.
func (s *SummaryByTitle) Definition() llm.ToolDefinition {
	return llm.ToolDefinition{
		Name:        SummaryToolName,
		Description: "Return the detailed summary for an exact book title.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"title": map[string]any{"type": "string"},
			},
			"required": []string{"title"},
		},
	}
}

// Invoke looks up the summary.
func (s *SummaryByTitle) Invoke(ctx context.Context, args SummaryByTitleArgs) string {
	return s.lookup.LookupDetailByExactTitle(ctx, args.Title)
}

// call decodes args and invokes the tool. Arguments that are not valid JSON
// are replaced by empty arguments; the parse error is returned alongside
// the result so it can be reported.
func (s *SummaryByTitle) call(ctx context.Context, raw json.RawMessage) (string, error) {
	var args SummaryByTitleArgs
	var parseErr error
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &args); err != nil {
			args = SummaryByTitleArgs{}
			parseErr = failure.New(failure.ToolArgumentParseError, SummaryToolName, err)
		}
	}
	return s.Invoke(ctx, args), parseErr
}

// ToolExecutor runs the tool calls of one model response.
type ToolExecutor struct {
	capabilities map[string]Capability
	order        []string
	concurrency  int
	reporter     observe.Reporter
}

// NewToolExecutor creates an executor over the given capabilities.
// concurrency <= 0 means DefaultToolConcurrency.
func NewToolExecutor(reporter observe.Reporter, concurrency int, capabilities ...Capability) *ToolExecutor {
	if reporter == nil {
		reporter = observe.Nop()
	}
	if concurrency <= 0 {
		concurrency = DefaultToolConcurrency
	}

	e := &ToolExecutor{
		capabilities: make(map[string]Capability, len(capabilities)),
		concurrency:  concurrency,
		reporter:     reporter,
	}
	for _, c := range capabilities {
		name := c.Definition().Name
		if _, dup := e.capabilities[name]; !dup {
			e.order = append(e.order, name)
		}
		e.capabilities[name] = c
	}
	return e
}

// Definitions returns the tool declarations offered to the model.
func (e *ToolExecutor) Definitions() []llm.ToolDefinition {
	defs := make([]llm.ToolDefinition, len(e.order))
	for i, name := range e.order {
		defs[i] = e.capabilities[name].Definition()
	}
	return defs
}

// Execute runs calls concurrently and returns one tool message per call, in
// call order, each tagged with its call id. Unknown tools produce an error
// result rather than no result.
func (e *ToolExecutor) Execute(ctx context.Context, calls []llm.ToolCall) []llm.Message {
	results := make([]llm.Message, len(calls))

	var g errgroup.Group
	g.SetLimit(e.concurrency)
	for i, tc := range calls {
		g.Go(func() error {
			results[i] = llm.Message{
				Role:       llm.RoleTool,
				ToolCallID: tc.ID,
				Content:    e.run(ctx, i, tc),
			}
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func (e *ToolExecutor) run(ctx context.Context, index int, tc llm.ToolCall) string {
	attrs := map[string]any{"tool": tc.Name, "call_id": tc.ID, "index": index}

	c, ok := e.capabilities[tc.Name]
	if !ok {
		e.reporter.Report(ctx, observe.Event{
			Stage: observe.StageToolCall,
			Attrs: attrs,
			Err:   fmt.Errorf("unknown tool %q", tc.Name),
		})
		return fmt.Sprintf("error: unknown tool %q", tc.Name)
	}

	out, err := c.call(ctx, tc.Arguments)
	e.reporter.Report(ctx, observe.Event{Stage: observe.StageToolCall, Attrs: attrs, Err: err})
	return out
}
