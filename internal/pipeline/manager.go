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
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/pgEdge/pgedge-librarian-server/internal/config"
	"github.com/pgEdge/pgedge-librarian-server/internal/database"
	"github.com/pgEdge/pgedge-librarian-server/internal/failure"
	"github.com/pgEdge/pgedge-librarian-server/internal/illustration"
	"github.com/pgEdge/pgedge-librarian-server/internal/llm/factory"
	"github.com/pgEdge/pgedge-librarian-server/internal/moderation"
	"github.com/pgEdge/pgedge-librarian-server/internal/observe"
	"github.com/pgEdge/pgedge-librarian-server/internal/retrieval"
	"github.com/pgEdge/pgedge-librarian-server/internal/speech"
)

// ErrSpeechDisabled is returned by SpeechToken when speech is not configured.
var ErrSpeechDisabled = errors.New("speech is not enabled")

// Illustrator runs the illustration cascade.
type Illustrator interface {
	Generate(ctx context.Context, req illustration.Request) (*illustration.Result, error)
}

// TokenIssuer issues speech tokens.
type TokenIssuer interface {
	Token(ctx context.Context) (speech.Token, error)
}

// Manager owns the wired pipeline components and their resources.
type Manager struct {
	orchestrator *Orchestrator
	illustrator  Illustrator
	speech       TokenIssuer
	closers      []func()
}

// Components are the collaborators of a Manager.
type Components struct {
	Orchestrator *Orchestrator
	Illustrator  Illustrator
	Speech       TokenIssuer // Optional
	Closers      []func()
}

// ManagerConfig contains configuration for creating a Manager.
type ManagerConfig struct {
	Config *config.Config
	Logger *zap.Logger
}

// New creates a manager from already constructed components.
func New(c Components) *Manager {
	return &Manager{
		orchestrator: c.Orchestrator,
		illustrator:  c.Illustrator,
		speech:       c.Speech,
		closers:      c.Closers,
	}
}

// NewManager connects to the database and builds every provider named by
// the configuration.
func NewManager(ctx context.Context, cfg ManagerConfig) (*Manager, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	c := cfg.Config
	reporter := observe.NewZapReporter(logger)

	// Load API keys from config file paths, environment variables, or defaults
	keys, err := config.NewAPIKeyLoader(c.APIKeys).LoadRequiredKeys(c)
	if err != nil {
		return nil, fmt.Errorf("failed to load API keys: %w", err)
	}

	tables, err := illustration.LoadTables(c.Image.TablesFile)
	if err != nil {
		return nil, err
	}

	embedder, err := factory.NewEmbeddingProvider(c.EmbeddingLLM, c.Library.Dimensions, keys)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding provider: %w", err)
	}

	chat, err := factory.NewChatProvider(c.ChatLLM, keys)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat provider: %w", err)
	}

	images, err := factory.NewImageProvider(c.Image, keys)
	if err != nil {
		return nil, fmt.Errorf("failed to create image provider: %w", err)
	}

	safetyOpts := []moderation.ClientOption{moderation.WithAPIVersion(c.Moderation.APIVersion)}
	if c.Moderation.Timeout > 0 {
		safetyOpts = append(safetyOpts, moderation.WithTimeout(c.Moderation.Timeout))
	}
	gate := moderation.NewGate(
		moderation.NewContentSafetyClient(c.Moderation.Endpoint, keys.Get(config.ServiceContentSafety), safetyOpts...),
		reporter,
	)

	var issuer TokenIssuer
	if c.Speech.Enabled {
		issuer = speech.NewIssuer(c.Speech.Region, keys.Get(config.ServiceSpeech),
			speech.WithEndpoint(c.Speech.Endpoint),
			speech.WithTokenTTL(c.Speech.TokenTTL, c.Speech.RefreshBefore))
	}

	pool, err := database.NewPool(ctx, c.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	engine := retrieval.NewEngine(retrieval.Config{
		Embedder:    embedder,
		Store:       database.NewBooks(pool, c.Library),
		Dimensions:  c.Library.Dimensions,
		Hybrid:      c.Library.Hybrid.IsEnabled(),
		RRFConstant: c.Library.Hybrid.RRFConstant,
		Reporter:    reporter,
	})

	temperature := c.ChatLLM.ChatTemperature()
	orchestrator := NewOrchestrator(OrchestratorConfig{
		Moderator:    gate,
		Retriever:    engine,
		Chat:         chat,
		SystemPrompt: c.ChatLLM.SystemPrompt,
		Temperature:  &temperature,
		TopK:         c.Library.TopK,
		SearchTopK:   c.Library.SearchTopK,
		Reporter:     reporter,
	})

	generator := illustration.NewGenerator(illustration.Config{
		Provider:   images,
		Tables:     tables,
		Quality:    c.Image.Quality,
		SquareSize: c.Image.SquareSize,
		WideSize:   c.Image.WideSize,
		Reporter:   reporter,
	})

	logger.Info("pipeline ready",
		zap.String("embedding_provider", c.EmbeddingLLM.Provider),
		zap.String("embedding_model", embedder.ModelName()),
		zap.String("chat_provider", c.ChatLLM.Provider),
		zap.String("chat_model", chat.ModelName()),
		zap.String("image_model", images.ModelName()),
		zap.Int("dimensions", c.Library.Dimensions),
		zap.Bool("hybrid", c.Library.Hybrid.IsEnabled()),
		zap.Bool("speech", c.Speech.Enabled),
	)

	return New(Components{
		Orchestrator: orchestrator,
		Illustrator:  generator,
		Speech:       issuer,
		Closers:      []func(){pool.Close},
	}), nil
}

// Chat answers a recommendation request.
func (m *Manager) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	return m.orchestrator.Chat(ctx, req)
}

// Search runs retrieval for a query.
func (m *Manager) Search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	return m.orchestrator.Search(ctx, req)
}

// Illustrate moderates the request and runs the illustration cascade.
func (m *Manager) Illustrate(ctx context.Context, req IllustrateRequest) (*illustration.Result, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, failure.Newf(failure.InvalidRequest, "illustrate", "query is required")
	}

	if err := m.orchestrator.moderate(ctx, query); err != nil {
		return nil, err
	}

	return m.illustrator.Generate(ctx, illustration.Request{
		Query: query,
		Kind:  illustration.ParseKind(req.Kind),
		Style: req.Style,
	})
}

// SpeechToken returns a short-lived speech token.
func (m *Manager) SpeechToken(ctx context.Context) (speech.Token, error) {
	if m.speech == nil {
		return speech.Token{}, ErrSpeechDisabled
	}
	return m.speech.Token(ctx)
}

// Close releases resources held by the manager.
func (m *Manager) Close() error {
	for _, c := range m.closers {
		c()
	}
	m.closers = nil
	return nil
}
