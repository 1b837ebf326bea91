//-------------------------------------------------------------------------
//
// pgEdge Librarian Server
//
// Copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package moderation

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockAnalyzer struct {
	analyzeFunc func(ctx context.Context, text string, categories []Category) (map[Category]int, error)
}

func (m *mockAnalyzer) Analyze(ctx context.Context, text string, categories []Category) (map[Category]int, error) {
	return m.analyzeFunc(ctx, text, categories)
}

func scores(s map[Category]int) *mockAnalyzer {
	return &mockAnalyzer{analyzeFunc: func(context.Context, string, []Category) (map[Category]int, error) {
		return s, nil
	}}
}

func TestGate_Moderate(t *testing.T) {
	tests := []struct {
		name        string
		scores      map[Category]int
		wantAllowed bool
		wantMax     int
	}{
		{"clean", map[Category]int{}, true, 0},
		{"medium violence", map[Category]int{Violence: 2, Hate: 1}, true, 2},
		{"high self harm", map[Category]int{SelfHarm: 3}, false, 3},
		{"unknown category ignored", map[Category]int{"Other": 3}, true, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := NewGate(scores(tt.scores), nil).Moderate(context.Background(), "text")
			require.NoError(t, err)
			assert.Equal(t, tt.wantAllowed, d.Allowed)
			assert.Equal(t, tt.wantMax, d.MaxSeverity)
			assert.Len(t, d.Severities, len(Categories))
		})
	}
}

func TestGate_SendsFixedCategories(t *testing.T) {
	var got []Category
	a := &mockAnalyzer{analyzeFunc: func(_ context.Context, _ string, c []Category) (map[Category]int, error) {
		got = c
		return nil, nil
	}}

	_, err := NewGate(a, nil).Moderate(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []Category{Hate, SelfHarm, Sexual, Violence}, got)
}

func TestGate_FailsClosed(t *testing.T) {
	a := &mockAnalyzer{analyzeFunc: func(context.Context, string, []Category) (map[Category]int, error) {
		return nil, errors.New("connection refused")
	}}

	d, err := NewGate(a, nil).Moderate(context.Background(), "hello")
	require.Error(t, err)
	assert.False(t, d.Allowed)

	d, err = NewGate(nil, nil).Moderate(context.Background(), "hello")
	assert.ErrorIs(t, err, ErrNotConfigured)
	assert.False(t, d.Allowed)
}

func TestContentSafetyClient_Analyze(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/contentsafety/text:analyze", r.URL.Path)
		assert.Equal(t, "2024-09-01", r.URL.Query().Get("api-version"))
		assert.Equal(t, "cs-key", r.Header.Get("Ocp-Apim-Subscription-Key"))

		var req analyzeRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "FourSeverityLevels", req.OutputType)
		assert.Len(t, req.Categories, 4)

		_, _ = w.Write([]byte(`{"blocklistsMatch":[],"categoriesAnalysis":[
			{"category":"Hate","severity":0},
			{"category":"SelfHarm","severity":2},
			{"category":"Violence","severity":6}]}`))
	}))
	defer server.Close()

	c := NewContentSafetyClient(server.URL+"/", "cs-key")
	got, err := c.Analyze(context.Background(), "text", Categories)
	require.NoError(t, err)
	assert.Equal(t, map[Category]int{Hate: 0, SelfHarm: 1, Violence: 3}, got)

	d, err := NewGate(c, nil).Moderate(context.Background(), "text")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, 0, d.Severities[Sexual])
}

func TestContentSafetyClient_Non200(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"code":"401","message":"Access denied due to invalid subscription key."}}`))
	}))
	defer server.Close()

	_, err := NewContentSafetyClient(server.URL, "bad").Analyze(context.Background(), "t", Categories)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid subscription key")
}

func TestContentSafetyClient_NotConfigured(t *testing.T) {
	_, err := NewContentSafetyClient("", "").Analyze(context.Background(), "t", Categories)
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestNormalizeSeverity(t *testing.T) {
	for in, want := range map[int]int{0: 0, 1: 0, 2: 1, 4: 2, 6: 3, 7: 3, -2: 0} {
		assert.Equal(t, want, normalizeSeverity(in), "severity %d", in)
	}
}
