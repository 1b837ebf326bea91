//-------------------------------------------------------------------------
//
// pgEdge Librarian Server
//
// Copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package seed

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgEdge/pgedge-librarian-server/internal/database"
)

type mockStore struct {
	existing map[string]bool
	reset    bool
	dims     int
	upserts  [][]database.BookRecord
	failWith error
}

func (m *mockStore) EnsureSchema(_ context.Context, dims int, reset bool) error {
	m.dims, m.reset = dims, reset
	return nil
}

func (m *mockStore) ExistingIDs(context.Context) (map[string]bool, error) {
	return m.existing, nil
}

func (m *mockStore) UpsertBooks(_ context.Context, records []database.BookRecord) error {
	if m.failWith != nil {
		return m.failWith
	}
	m.upserts = append(m.upserts, records)
	return nil
}

type mockEmbedder struct {
	dims  int
	texts []string
	calls int
}

func (m *mockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	v, err := m.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return v[0], nil
}

func (m *mockEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	m.calls++
	m.texts = append(m.texts, texts...)
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = make([]float32, m.dims)
	}
	return out, nil
}

func (m *mockEmbedder) Dimensions() int   { return m.dims }
func (m *mockEmbedder) ModelName() string { return "mock" }

func books(ids ...string) []database.Book {
	out := make([]database.Book, len(ids))
	for i, id := range ids {
		out[i] = database.Book{ID: id, Title: "Title " + id, SummaryShort: "Short " + id, Themes: []string{"a", "b"}}
	}
	return out
}

func TestLoadBooks_Corpus(t *testing.T) {
	got, err := LoadBooks(filepath.Join("..", "..", "data", "book_summaries.json"))
	require.NoError(t, err)
	require.NotEmpty(t, got)

	for _, b := range got {
		assert.NotEmpty(t, b.SummaryShort, b.ID)
		assert.NotEmpty(t, b.SummaryLong, b.ID)
		assert.NotEmpty(t, b.Themes, b.ID)
	}
}

func TestLoadBooks_Validation(t *testing.T) {
	dir := t.TempDir()
	write := func(content string) string {
		path := filepath.Join(dir, "books.json")
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
		return path
	}

	got, err := LoadBooks(write(`[{"id":" x ","title":"X","themes":[" Magic ","", "QUEST"]}]`))
	require.NoError(t, err)
	assert.Equal(t, "x", got[0].ID)
	assert.Equal(t, []string{"magic", "quest"}, got[0].Themes)

	_, err = LoadBooks(write(`[{"id":"x"}]`))
	assert.ErrorContains(t, err, "needs an id and a title")

	_, err = LoadBooks(write(`[{"id":"x","title":"A"},{"id":"x","title":"B"}]`))
	assert.ErrorContains(t, err, "duplicate book id")

	_, err = LoadBooks(write(`{`))
	assert.ErrorContains(t, err, "failed to parse")

	_, err = LoadBooks(filepath.Join(dir, "missing.json"))
	assert.ErrorContains(t, err, "failed to read")
}

func TestEmbedContent(t *testing.T) {
	b := database.Book{Title: "1984", SummaryShort: "Big Brother.", Themes: []string{"dystopia", "freedom"}}
	assert.Equal(t, "Title: 1984\nSummary: Big Brother.\nThemes: dystopia, freedom", EmbedContent(b))
}

func TestRun_BatchesAndSkipsExisting(t *testing.T) {
	store := &mockStore{existing: map[string]bool{"b": true}}
	emb := &mockEmbedder{dims: 3}

	report, err := Run(context.Background(), store, emb, books("a", "b", "c", "d"), Options{
		Dimensions: 3,
		BatchSize:  2,
	})
	require.NoError(t, err)

	assert.Equal(t, &Report{Loaded: 4, Skipped: 1, Upserted: 3}, report)
	assert.Equal(t, 3, store.dims)
	assert.False(t, store.reset)
	assert.Equal(t, 2, emb.calls)
	require.Len(t, store.upserts, 2)
	assert.Equal(t, "a", store.upserts[0][0].ID)
	assert.Equal(t, "d", store.upserts[1][0].ID)
	assert.Equal(t, "Title: Title a\nSummary: Short a\nThemes: a, b", emb.texts[0])
}

func TestRun_ForceAndReset(t *testing.T) {
	for _, opts := range []Options{{Dimensions: 2, Force: true}, {Dimensions: 2, Reset: true}} {
		store := &mockStore{existing: map[string]bool{"a": true}}
		report, err := Run(context.Background(), store, &mockEmbedder{dims: 2}, books("a", "b"), opts)
		require.NoError(t, err)
		assert.Equal(t, 0, report.Skipped)
		assert.Equal(t, 2, report.Upserted)
		assert.Equal(t, opts.Reset, store.reset)
	}
}

func TestRun_DimensionMismatch(t *testing.T) {
	store := &mockStore{}
	_, err := Run(context.Background(), store, &mockEmbedder{dims: 4}, books("a"), Options{Dimensions: 3})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "4 dimensions, expected 3")
	assert.Empty(t, store.upserts)
}

func TestRun_UpsertFailure(t *testing.T) {
	store := &mockStore{failWith: errors.New("disk full")}
	report, err := Run(context.Background(), store, &mockEmbedder{dims: 1}, books("a"), Options{Dimensions: 1})
	require.Error(t, err)
	assert.Equal(t, 0, report.Upserted)
}
