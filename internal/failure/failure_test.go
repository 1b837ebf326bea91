//-------------------------------------------------------------------------
//
// pgEdge Librarian Server
//
// Copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package failure

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorIsKind(t *testing.T) {
	cause := errors.New("connection refused")
	err := fmt.Errorf("chat: %w", New(RetrievalFailed, "search", cause))

	assert.ErrorIs(t, err, RetrievalFailed)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, GenerationFailed)
	assert.Equal(t, RetrievalFailed, KindOf(err))
}

func TestErrorMessage(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{"kind only", New(ModerationBlocked, "", nil), "MODERATION_BLOCKED"},
		{"kind and op", New(NoGenerationChoices, "turn1", nil), "NO_GENERATION_CHOICES: turn1"},
		{"kind and cause", New(GenerationFailed, "", errors.New("boom")), "GENERATION_FAILED: boom"},
		{"all parts", Newf(EmbeddingUnavailable, "embed", "got %d dims", 3), "EMBEDDING_UNAVAILABLE: embed: got 3 dims"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestKindOfUnclassified(t *testing.T) {
	assert.Equal(t, Kind(""), KindOf(errors.New("plain")))
	assert.Equal(t, Kind(""), KindOf(nil))
}

func TestUserMessageHidesDetail(t *testing.T) {
	assert.Equal(t, "Request blocked by content safety.", UserMessage(ModerationBlocked))
	assert.Equal(t, "Internal error.", UserMessage(Kind("SOMETHING_ELSE")))
}
