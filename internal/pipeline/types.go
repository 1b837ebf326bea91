//-------------------------------------------------------------------------
//
// pgEdge Librarian Server
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package pipeline runs the grounded recommendation pipeline: moderation,
// retrieval, context assembly and the two-turn tool-calling conversation.
// The Manager wires it, and the illustration generator, from configuration.
package pipeline

import (
	"github.com/pgEdge/pgedge-librarian-server/internal/retrieval"
)

// ChatRequest asks for a book recommendation.
type ChatRequest struct {
	Query string `json:"q"`
}

// ChatResponse is a grounded recommendation and the candidates it was
// grounded on, in retrieval order.
type ChatResponse struct {
	Hits   []retrieval.Candidate `json:"hits"`
	Answer string                `json:"answer"`
}

// SearchRequest runs retrieval only.
type SearchRequest struct {
	Query  string   `json:"q"`
	TopK   int      `json:"top_k,omitempty"`  // Override the configured default
	Themes []string `json:"themes,omitempty"` // Only books sharing one of these themes
}

// SearchResponse holds ranked search hits.
type SearchResponse struct {
	Hits []retrieval.Candidate `json:"hits"`
}

// IllustrateRequest asks for an illustration of a reading request.
type IllustrateRequest struct {
	Query string `json:"query"`
	Kind  string `json:"kind,omitempty"`  // "scene", "theme" or empty for a cover
	Style string `json:"style,omitempty"` // illustration, digital, oil, watercolor, photoreal, pixel
}
