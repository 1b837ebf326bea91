//-------------------------------------------------------------------------
//
// pgEdge Librarian Server
//
// Copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package observe provides the reporter that pipelines call at fixed
// checkpoints instead of logging inline.
package observe

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/pgEdge/pgedge-librarian-server/internal/failure"
)

// Stage identifies a pipeline checkpoint.
type Stage string

// Pipeline checkpoints.
const (
	StageModeration   Stage = "moderation"
	StageEmbedding    Stage = "embedding"
	StageRetrieval    Stage = "retrieval"
	StageTurn         Stage = "turn"
	StageToolCall     Stage = "tool_call"
	StageImageAttempt Stage = "image_attempt"
	StageImageResult  Stage = "image_result"
	StageFailure      Stage = "failure"
)

// Event is a single checkpoint report.
type Event struct {
	Stage Stage
	Attrs map[string]any
	Err   error
}

// Reporter receives checkpoint events from the pipelines.
type Reporter interface {
	Report(ctx context.Context, ev Event)
}

// Nop returns a Reporter that discards all events.
func Nop() Reporter {
	return nopReporter{}
}

type nopReporter struct{}

func (nopReporter) Report(context.Context, Event) {}

// requestIDKey is the context key for the request id set by the HTTP layer.
type requestIDKey struct{}

// WithRequestID returns a context carrying the request id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestID returns the request id carried by ctx, if any.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// ZapReporter writes events to a zap logger.
type ZapReporter struct {
	logger *zap.Logger
}

// NewZapReporter creates a reporter backed by logger.
func NewZapReporter(logger *zap.Logger) *ZapReporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ZapReporter{logger: logger.Named("pipeline")}
}

// Report logs the event. Events carrying an error are logged at warn level,
// except the final failure event which is logged at error level.
func (r *ZapReporter) Report(ctx context.Context, ev Event) {
	fields := make([]zap.Field, 0, len(ev.Attrs)+3)
	fields = append(fields, zap.String("stage", string(ev.Stage)))
	if id := RequestID(ctx); id != "" {
		fields = append(fields, zap.String("request_id", id))
	}
	for k, v := range ev.Attrs {
		fields = append(fields, zap.Any(k, v))
	}

	level := zapcore.DebugLevel
	if ev.Err != nil {
		fields = append(fields, zap.Error(ev.Err))
		if kind := failure.KindOf(ev.Err); kind != "" {
			fields = append(fields, zap.String("kind", string(kind)))
		}
		level = zapcore.WarnLevel
	}
	if ev.Stage == StageFailure {
		level = zapcore.ErrorLevel
	}

	if ce := r.logger.Check(level, "checkpoint"); ce != nil {
		ce.Write(fields...)
	}
}

// Ensure ZapReporter implements the interface.
var _ Reporter = (*ZapReporter)(nil)
