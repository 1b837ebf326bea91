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
	"strings"

	"github.com/pgEdge/pgedge-librarian-server/internal/retrieval"
)

// contextPrefix starts the grounding message.
const contextPrefix = "CONTEXT:\n"

// BuildContext renders candidates, in the order given, as the block the
// model chooses a title from.
func BuildContext(candidates []retrieval.Candidate) string {
	blocks := make([]string, len(candidates))
	for i, c := range candidates {
		blocks[i] = strings.Join([]string{
			"---",
			"Title: " + c.Title,
			"Summary: " + c.ShortSummary,
			"Themes: " + strings.Join(c.Themes, ", "),
		}, "\n")
	}
	return strings.Join(blocks, "\n\n")
}

// contextMessage is the content of the system message carrying the context.
func contextMessage(candidates []retrieval.Candidate) string {
	return contextPrefix + BuildContext(candidates)
}
