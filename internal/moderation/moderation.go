//-------------------------------------------------------------------------
//
// pgEdge Librarian Server
//
// Copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package moderation implements the safety gate that every user query passes
// before any retrieval or generation call is made.
package moderation

import (
	"context"
	"errors"
	"fmt"

	"github.com/pgEdge/pgedge-librarian-server/internal/observe"
)

// Category is a harm category scored by the moderation service.
type Category string

// The fixed set of categories sent with every request.
const (
	Hate     Category = "Hate"
	SelfHarm Category = "SelfHarm"
	Sexual   Category = "Sexual"
	Violence Category = "Violence"
)

// Categories lists the categories in the order they are requested.
var Categories = []Category{Hate, SelfHarm, Sexual, Violence}

// BlockSeverity is the lowest severity (the "High" tier on a 0-3 scale)
// that blocks a request.
const BlockSeverity = 3

// Decision is the outcome of moderating one text.
type Decision struct {
	Allowed     bool
	MaxSeverity int
	Severities  map[Category]int
}

// Analyzer scores text against the given categories on a 0-3 scale.
// Categories missing from the result count as 0.
type Analyzer interface {
	Analyze(ctx context.Context, text string, categories []Category) (map[Category]int, error)
}

// ErrNotConfigured is returned when the gate has no analyzer.
var ErrNotConfigured = errors.New("moderation service not configured")

// Gate applies the blocking policy on top of an Analyzer.
//
// The gate fails closed: if the analyzer cannot produce a result the text is
// treated as blocked and the error is returned alongside the decision.
type Gate struct {
	analyzer Analyzer
	reporter observe.Reporter
}

// NewGate creates a gate. A nil reporter discards events.
func NewGate(analyzer Analyzer, reporter observe.Reporter) *Gate {
	if reporter == nil {
		reporter = observe.Nop()
	}
	return &Gate{analyzer: analyzer, reporter: reporter}
}

// Moderate scores text and decides whether it may proceed.
func (g *Gate) Moderate(ctx context.Context, text string) (Decision, error) {
	if g == nil || g.analyzer == nil {
		return g.deny(ctx, ErrNotConfigured)
	}

	scores, err := g.analyzer.Analyze(ctx, text, Categories)
	if err != nil {
		return g.deny(ctx, fmt.Errorf("moderation analyze: %w", err))
	}

	d := Decision{Severities: make(map[Category]int, len(Categories))}
	for _, c := range Categories {
		s := scores[c]
		d.Severities[c] = s
		if s > d.MaxSeverity {
			d.MaxSeverity = s
		}
	}
	d.Allowed = d.MaxSeverity < BlockSeverity

	g.reporter.Report(ctx, observe.Event{
		Stage: observe.StageModeration,
		Attrs: map[string]any{"allowed": d.Allowed, "max_severity": d.MaxSeverity},
	})
	return d, nil
}

func (g *Gate) deny(ctx context.Context, err error) (Decision, error) {
	if g != nil && g.reporter != nil {
		g.reporter.Report(ctx, observe.Event{
			Stage: observe.StageModeration,
			Attrs: map[string]any{"allowed": false},
			Err:   err,
		})
	}
	return Decision{Allowed: false}, err
}
