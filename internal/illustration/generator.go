//-------------------------------------------------------------------------
//
// pgEdge Librarian Server
//
// Copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package illustration generates a cover or scene image for a reading
// request. A prompt built from the sanitized request is tried first; if the
// image service rejects it on policy grounds, one retry is made with a
// theme-only prompt.
package illustration

import (
	"context"
	"errors"
	"strings"

	"github.com/pgEdge/pgedge-librarian-server/internal/failure"
	"github.com/pgEdge/pgedge-librarian-server/internal/llm"
	"github.com/pgEdge/pgedge-librarian-server/internal/observe"
)

// State is a step of the cascade.
type State string

// Cascade states. Success, Blocked and Failed are terminal.
const (
	StateAttempt1 State = "attempt1"
	StateAttempt2 State = "attempt2"
	StateSuccess  State = "success"
	StateBlocked  State = "blocked"
	StateFailed   State = "failed"
)

// Outcome classifies a single image request.
type Outcome string

// Attempt outcomes.
const (
	OutcomeSuccess        Outcome = "success"
	OutcomePolicyRejected Outcome = "policy_rejected"
	OutcomeOtherFailure   Outcome = "other_failure"
)

// NoteGenericSoft marks a result produced by the fallback prompt.
const NoteGenericSoft = "generic-soft"

// Default image parameters.
const (
	DefaultQuality    = "hd"
	DefaultSquareSize = "1024x1024"
	DefaultWideSize   = "1792x1024"
)

// Request is an illustration request.
type Request struct {
	Query string
	Kind  Kind
	Style string
}

// Attempt records one call to the image service.
type Attempt struct {
	Number  int
	Prompt  string
	Size    string
	Outcome Outcome
	Err     error
}

// Result is the terminal state of a cascade.
type Result struct {
	State      State
	Image      string // data URL; empty unless State is StateSuccess
	PromptUsed string
	Size       string
	Model      string
	Attempt    int
	Note       string
	Message    string // user-facing text for Blocked and Failed
	Attempts   []Attempt
	Err        error // classified failure for Blocked and Failed
}

// OK reports whether an image was produced.
func (r *Result) OK() bool {
	return r.State == StateSuccess
}

// Config contains the dependencies of a Generator.
type Config struct {
	Provider   llm.ImageProvider
	Tables     *Tables
	Quality    string
	SquareSize string
	WideSize   string
	Reporter   observe.Reporter
}

// Generator runs the two-attempt illustration cascade.
type Generator struct {
	provider   llm.ImageProvider
	tables     *Tables
	quality    string
	squareSize string
	wideSize   string
	reporter   observe.Reporter
}

// NewGenerator creates a generator. Tables must be non-nil.
func NewGenerator(cfg Config) *Generator {
	g := &Generator{
		provider:   cfg.Provider,
		tables:     cfg.Tables,
		quality:    cfg.Quality,
		squareSize: cfg.SquareSize,
		wideSize:   cfg.WideSize,
		reporter:   cfg.Reporter,
	}
	if g.quality == "" {
		g.quality = DefaultQuality
	}
	if g.squareSize == "" {
		g.squareSize = DefaultSquareSize
	}
	if g.wideSize == "" {
		g.wideSize = DefaultWideSize
	}
	if g.reporter == nil {
		g.reporter = observe.Nop()
	}
	return g
}

// SizeFor returns the image size for kind. Scenes are wide.
func (g *Generator) SizeFor(kind Kind) string {
	if kind == KindScene {
		return g.wideSize
	}
	return g.squareSize
}

// Generate runs the cascade. The returned error is non-nil only for an
// invalid request; Blocked and Failed are reported through the Result.
func (g *Generator) Generate(ctx context.Context, req Request) (*Result, error) {
	if strings.TrimSpace(req.Query) == "" {
		return nil, failure.Newf(failure.InvalidRequest, "illustrate", "query is required")
	}

	style := NormalizeStyle(req.Style)
	themes := g.tables.InferThemes(req.Query)
	res := &Result{
		Size:  g.SizeFor(req.Kind),
		Model: g.provider.ModelName(),
	}

	state := StateAttempt1
	for {
		switch state {
		case StateAttempt1:
			prompt := queryPrompt(req.Kind, style, g.tables.Sanitize(req.Query), themes)
			image, outcome := g.attempt(ctx, res, 1, prompt)
			switch outcome {
			case OutcomeSuccess:
				return g.finish(ctx, res, StateSuccess, image, ""), nil
			case OutcomePolicyRejected:
				state = StateAttempt2
			default:
				state = StateFailed
			}

		case StateAttempt2:
			prompt := softPrompt(req.Kind, style, themes)
			image, outcome := g.attempt(ctx, res, 2, prompt)
			switch outcome {
			case OutcomeSuccess:
				return g.finish(ctx, res, StateSuccess, image, NoteGenericSoft), nil
			case OutcomePolicyRejected:
				state = StateBlocked
			default:
				state = StateFailed
			}

		case StateBlocked, StateFailed:
			return g.finish(ctx, res, state, "", ""), nil
		}
	}
}

// attempt calls the image service once and records the outcome.
func (g *Generator) attempt(ctx context.Context, res *Result, number int, prompt string) (string, Outcome) {
	res.Attempt = number
	res.PromptUsed = prompt

	a := Attempt{Number: number, Prompt: prompt, Size: res.Size}

	var image string
	resp, err := g.provider.GenerateImage(ctx, llm.ImageRequest{
		Prompt:         prompt,
		Size:           res.Size,
		Quality:        g.quality,
		Count:          1,
		ResponseFormat: "b64_json",
	})
	if err == nil {
		if len(resp.Images) == 0 || resp.Images[0].B64JSON == "" {
			err = errors.New("no image data returned")
		} else {
			image = "data:image/png;base64," + resp.Images[0].B64JSON
		}
	}

	switch {
	case err == nil:
		a.Outcome = OutcomeSuccess
	case g.tables.IsPolicyRejection(err.Error()):
		a.Outcome = OutcomePolicyRejected
	default:
		a.Outcome = OutcomeOtherFailure
	}
	a.Err = err
	res.Attempts = append(res.Attempts, a)

	g.reporter.Report(ctx, observe.Event{
		Stage: observe.StageImageAttempt,
		Attrs: map[string]any{
			"attempt": number,
			"size":    res.Size,
			"outcome": string(a.Outcome),
		},
		Err: err,
	})
	return image, a.Outcome
}

func (g *Generator) finish(ctx context.Context, res *Result, state State, image, note string) *Result {
	res.State = state
	res.Image = image
	res.Note = note

	var cause error
	if n := len(res.Attempts); n > 0 {
		cause = res.Attempts[n-1].Err
	}

	switch state {
	case StateBlocked:
		res.Err = failure.New(failure.ImagePolicyBlocked, "illustrate", cause)
		res.Message = failure.UserMessage(failure.ImagePolicyBlocked)
	case StateFailed:
		res.Err = failure.New(failure.ImageGenerationFailed, "illustrate", cause)
		res.Message = failure.UserMessage(failure.ImageGenerationFailed)
	}

	g.reporter.Report(ctx, observe.Event{
		Stage: observe.StageImageResult,
		Attrs: map[string]any{
			"state":   string(state),
			"attempt": res.Attempt,
			"note":    note,
		},
		Err: res.Err,
	})
	return res
}
