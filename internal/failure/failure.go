//-------------------------------------------------------------------------
//
// pgEdge Librarian Server
//
// Copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package failure defines the error taxonomy shared by the chat and
// illustration pipelines.
//
// Every failure that leaves a pipeline is a *Error carrying a Kind. The kind
// decides the status code and the generic message shown to users; the wrapped
// cause is only ever logged.
package failure

import (
	"errors"
	"fmt"
)

// Kind classifies a pipeline failure.
type Kind string

// Failure kinds.
const (
	ModerationBlocked      Kind = "MODERATION_BLOCKED"
	EmbeddingUnavailable   Kind = "EMBEDDING_UNAVAILABLE"
	RetrievalFailed        Kind = "RETRIEVAL_FAILED"
	NoGenerationChoices    Kind = "NO_GENERATION_CHOICES"
	GenerationFailed       Kind = "GENERATION_FAILED"
	ToolArgumentParseError Kind = "TOOL_ARGUMENT_PARSE_ERROR"
	ImagePolicyBlocked     Kind = "IMAGE_POLICY_BLOCKED"
	ImageGenerationFailed  Kind = "IMAGE_GENERATION_FAILED"
	InvalidRequest         Kind = "INVALID_REQUEST"
)

// Error implements the error interface so a bare Kind can be used as an
// errors.Is target.
func (k Kind) Error() string {
	return string(k)
}

// Error is a classified pipeline failure.
type Error struct {
	Kind Kind
	Op   string // Operation that failed, e.g. "embed" or "turn1"
	Err  error  // Underlying cause; may be nil
}

// New creates a classified error.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Newf creates a classified error with a formatted cause.
func Newf(kind Kind, op string, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Op)
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is the same kind of failure.
func (e *Error) Is(target error) bool {
	switch t := target.(type) {
	case Kind:
		return e.Kind == t
	case *Error:
		return t != nil && e.Kind == t.Kind
	}
	return false
}

// KindOf returns the kind of the first *Error in err's chain, or an empty
// Kind when err is not classified.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ""
}

// userMessages holds the text that is safe to show to end users.
var userMessages = map[Kind]string{
	ModerationBlocked:     "Request blocked by content safety.",
	EmbeddingUnavailable:  "The search service is temporarily unavailable.",
	RetrievalFailed:       "The search service is temporarily unavailable.",
	NoGenerationChoices:   "No answer was returned. Please try again.",
	GenerationFailed:      "The assistant could not answer right now. Please try again.",
	ImagePolicyBlocked:    "This illustration could not be created because it conflicts with the image content policy. Try describing the mood or themes instead.",
	ImageGenerationFailed: "The illustration could not be created right now.",
	InvalidRequest:        "The request is invalid.",
}

// UserMessage returns a generic message for kind that carries no internal
// detail.
func UserMessage(kind Kind) string {
	if msg, ok := userMessages[kind]; ok {
		return msg
	}
	return "Internal error."
}
