//-------------------------------------------------------------------------
//
// pgEdge Librarian Server
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/pgEdge/pgedge-librarian-server/internal/config"
	"github.com/pgEdge/pgedge-librarian-server/internal/failure"
	"github.com/pgEdge/pgedge-librarian-server/internal/illustration"
	"github.com/pgEdge/pgedge-librarian-server/internal/observe"
	"github.com/pgEdge/pgedge-librarian-server/internal/pipeline"
	"github.com/pgEdge/pgedge-librarian-server/internal/retrieval"
	"github.com/pgEdge/pgedge-librarian-server/internal/speech"
)

// mockService implements Service for testing.
type mockService struct {
	chatFunc       func(ctx context.Context, req pipeline.ChatRequest) (*pipeline.ChatResponse, error)
	searchFunc     func(ctx context.Context, req pipeline.SearchRequest) (*pipeline.SearchResponse, error)
	illustrateFunc func(ctx context.Context, req pipeline.IllustrateRequest) (*illustration.Result, error)
	speechFunc     func(ctx context.Context) (speech.Token, error)
}

func (m *mockService) Chat(ctx context.Context, req pipeline.ChatRequest) (*pipeline.ChatResponse, error) {
	return m.chatFunc(ctx, req)
}

func (m *mockService) Search(ctx context.Context, req pipeline.SearchRequest) (*pipeline.SearchResponse, error) {
	return m.searchFunc(ctx, req)
}

func (m *mockService) Illustrate(ctx context.Context, req pipeline.IllustrateRequest) (*illustration.Result, error) {
	return m.illustrateFunc(ctx, req)
}

func (m *mockService) SpeechToken(ctx context.Context) (speech.Token, error) {
	if m.speechFunc == nil {
		return speech.Token{}, pipeline.ErrSpeechDisabled
	}
	return m.speechFunc(ctx)
}

func (m *mockService) Close() error {
	return nil
}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			ListenAddress: "127.0.0.1",
			Port:          8080,
		},
	}
}

func hits() []retrieval.Candidate {
	return []retrieval.Candidate{
		{ID: "the-hobbit", Title: "The Hobbit", ShortSummary: "A quest for dragon gold.", Themes: []string{"adventure"}},
	}
}

func testServer(svc *mockService) *Server {
	if svc == nil {
		svc = &mockService{}
	}
	return New(testConfig(), svc, nil)
}

func do(srv *Server, method, path, body string) *httptest.ResponseRecorder {
	var reader *bytes.Buffer
	if body != "" {
		reader = bytes.NewBufferString(body)
	} else {
		reader = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorDetail {
	t.Helper()
	var resp ErrorResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	return resp.Error
}

func TestHealthEndpoint(t *testing.T) {
	w := do(testServer(nil), http.MethodGet, "/v1/health", "")

	if w.Code != http.StatusOK {
		t.Errorf("expected status %d, got %d", http.StatusOK, w.Code)
	}

	var resp HealthResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if resp.Status != "healthy" {
		t.Errorf("expected status 'healthy', got '%s'", resp.Status)
	}
}

func TestHealthEndpoint_MethodNotAllowed(t *testing.T) {
	w := do(testServer(nil), http.MethodPost, "/v1/health", "")

	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected status %d, got %d", http.StatusMethodNotAllowed, w.Code)
	}
}

func TestChatEndpoint(t *testing.T) {
	var got pipeline.ChatRequest
	var requestID string
	svc := &mockService{chatFunc: func(ctx context.Context, req pipeline.ChatRequest) (*pipeline.ChatResponse, error) {
		got = req
		requestID = observe.RequestID(ctx)
		return &pipeline.ChatResponse{Hits: hits(), Answer: "Try The Hobbit."}, nil
	}}

	w := do(testServer(svc), http.MethodPost, "/v1/chat", `{"q": "a cosy adventure"}`)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
	}
	if got.Query != "a cosy adventure" {
		t.Errorf("expected query to be passed through, got %q", got.Query)
	}
	if requestID == "" || requestID != w.Header().Get(RequestIDHeader) {
		t.Errorf("expected request id %q in context, got %q", w.Header().Get(RequestIDHeader), requestID)
	}

	var resp map[string]any
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp["answer"] != "Try The Hobbit." {
		t.Errorf("unexpected answer %v", resp["answer"])
	}
	hitList, ok := resp["hits"].([]any)
	if !ok || len(hitList) != 1 {
		t.Fatalf("expected one hit, got %v", resp["hits"])
	}
	if hitList[0].(map[string]any)["summary_short"] != "A quest for dragon gold." {
		t.Errorf("unexpected hit %v", hitList[0])
	}
}

func TestChatEndpoint_Failures(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"blocked", failure.Newf(failure.ModerationBlocked, "moderate", "max severity 3"), http.StatusBadRequest, "MODERATION_BLOCKED"},
		{"invalid", failure.Newf(failure.InvalidRequest, "chat", "query is required"), http.StatusBadRequest, "INVALID_REQUEST"},
		{"embedding", failure.Newf(failure.EmbeddingUnavailable, "embed", "dial tcp: refused"), http.StatusServiceUnavailable, "EMBEDDING_UNAVAILABLE"},
		{"retrieval", failure.Newf(failure.RetrievalFailed, "search", "relation does not exist"), http.StatusServiceUnavailable, "RETRIEVAL_FAILED"},
		{"generation", failure.Newf(failure.GenerationFailed, "turn1", "status 500"), http.StatusBadGateway, "GENERATION_FAILED"},
		{"no choices", failure.Newf(failure.NoGenerationChoices, "turn2", "empty"), http.StatusBadGateway, "NO_GENERATION_CHOICES"},
		{"unclassified", errors.New("secret internal detail"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockService{chatFunc: func(context.Context, pipeline.ChatRequest) (*pipeline.ChatResponse, error) {
				return nil, tt.err
			}}

			w := do(testServer(svc), http.MethodPost, "/v1/chat", `{"q": "anything"}`)
			if w.Code != tt.status {
				t.Errorf("expected status %d, got %d", tt.status, w.Code)
			}

			detail := decodeError(t, w)
			if detail.Code != tt.code {
				t.Errorf("expected code %s, got %s", tt.code, detail.Code)
			}
			if detail.Message != failure.UserMessage(failure.KindOf(tt.err)) {
				t.Errorf("expected safe message, got %q", detail.Message)
			}
			if strings.Contains(detail.Message, "refused") || strings.Contains(detail.Message, "secret") {
				t.Errorf("error message leaks the cause: %q", detail.Message)
			}
		})
	}
}

func TestChatEndpoint_InvalidJSON(t *testing.T) {
	svc := &mockService{chatFunc: func(context.Context, pipeline.ChatRequest) (*pipeline.ChatResponse, error) {
		t.Fatal("service must not be called")
		return nil, nil
	}}

	w := do(testServer(svc), http.MethodPost, "/v1/chat", `invalid json`)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status %d, got %d", http.StatusBadRequest, w.Code)
	}
	if code := decodeError(t, w).Code; code != "INVALID_REQUEST" {
		t.Errorf("expected INVALID_REQUEST, got %s", code)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		kind failure.Kind
		want int
	}{
		{failure.InvalidRequest, http.StatusBadRequest},
		{failure.ModerationBlocked, http.StatusBadRequest},
		{failure.EmbeddingUnavailable, http.StatusServiceUnavailable},
		{failure.RetrievalFailed, http.StatusServiceUnavailable},
		{failure.GenerationFailed, http.StatusBadGateway},
		{failure.NoGenerationChoices, http.StatusBadGateway},
		{failure.ImageGenerationFailed, http.StatusBadGateway},
		{"", http.StatusInternalServerError},
	}

	for _, tt := range tests {
		if got := statusFor(tt.kind); got != tt.want {
			t.Errorf("statusFor(%q) = %d, want %d", tt.kind, got, tt.want)
		}
	}
}

func TestSearchEndpoint(t *testing.T) {
	var got pipeline.SearchRequest
	svc := &mockService{searchFunc: func(_ context.Context, req pipeline.SearchRequest) (*pipeline.SearchResponse, error) {
		got = req
		return &pipeline.SearchResponse{Hits: hits()}, nil
	}}

	w := do(testServer(svc), http.MethodPost, "/v1/search", `{"q": "dragons", "top_k": 3, "themes": ["adventure"]}`)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
	}
	if got.Query != "dragons" || got.TopK != 3 || len(got.Themes) != 1 || got.Themes[0] != "adventure" {
		t.Errorf("unexpected request %+v", got)
	}

	var resp pipeline.SearchResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Hits) != 1 || resp.Hits[0].ID != "the-hobbit" {
		t.Errorf("unexpected hits %+v", resp.Hits)
	}
}

func TestSearchEndpoint_NegativeTopK(t *testing.T) {
	w := do(testServer(nil), http.MethodPost, "/v1/search", `{"q": "dragons", "top_k": -1}`)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status %d, got %d", http.StatusBadRequest, w.Code)
	}
}

func TestImageEndpoint(t *testing.T) {
	tests := []struct {
		name   string
		result *illustration.Result
		ok     bool
		state  string
	}{
		{
			name: "success",
			result: &illustration.Result{
				State: illustration.StateSuccess, Image: "data:image/png;base64,aW1n",
				PromptUsed: "cover art", Size: "1024x1024", Model: "dall-e-3", Attempt: 1,
			},
			ok:    true,
			state: "success",
		},
		{
			name: "blocked",
			result: &illustration.Result{
				State: illustration.StateBlocked, Attempt: 2, Note: illustration.NoteGenericSoft,
				Message: failure.UserMessage(failure.ImagePolicyBlocked),
				Err:     failure.Newf(failure.ImagePolicyBlocked, "attempt2", "policy"),
			},
			ok:    false,
			state: "blocked",
		},
		{
			name: "failed",
			result: &illustration.Result{
				State: illustration.StateFailed, Attempt: 1,
				Message: failure.UserMessage(failure.ImageGenerationFailed),
				Err:     failure.Newf(failure.ImageGenerationFailed, "attempt1", "timeout"),
			},
			ok:    false,
			state: "failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got pipeline.IllustrateRequest
			svc := &mockService{illustrateFunc: func(_ context.Context, req pipeline.IllustrateRequest) (*illustration.Result, error) {
				got = req
				return tt.result, nil
			}}

			w := do(testServer(svc), http.MethodPost, "/v1/image", `{"query": "a hobbit hole", "kind": "scene", "style": "oil"}`)
			if w.Code != http.StatusOK {
				t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
			}
			if got.Kind != "scene" || got.Style != "oil" {
				t.Errorf("unexpected request %+v", got)
			}

			var resp ImageResponse
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if resp.OK != tt.ok || resp.State != tt.state || resp.Attempt != tt.result.Attempt {
				t.Errorf("unexpected response %+v", resp)
			}
			if !tt.ok && resp.Image != "" {
				t.Errorf("expected no image, got %q", resp.Image)
			}
		})
	}
}

func TestImageEndpoint_ModerationBlocked(t *testing.T) {
	svc := &mockService{illustrateFunc: func(context.Context, pipeline.IllustrateRequest) (*illustration.Result, error) {
		return nil, failure.Newf(failure.ModerationBlocked, "moderate", "max severity 3")
	}}

	w := do(testServer(svc), http.MethodPost, "/v1/image", `{"query": "gore"}`)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status %d, got %d", http.StatusBadRequest, w.Code)
	}
}

func TestSpeechTokenEndpoint(t *testing.T) {
	svc := &mockService{speechFunc: func(context.Context) (speech.Token, error) {
		return speech.Token{Value: "tok", Region: "westeurope"}, nil
	}}
	srv := testServer(svc)

	for _, method := range []string{http.MethodGet, http.MethodPost} {
		w := do(srv, method, "/v1/speech/token", "")
		if w.Code != http.StatusOK {
			t.Fatalf("%s: expected status %d, got %d", method, http.StatusOK, w.Code)
		}
		if cc := w.Header().Get("Cache-Control"); cc != "no-store" {
			t.Errorf("%s: expected Cache-Control no-store, got %q", method, cc)
		}

		var resp SpeechTokenResponse
		if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if resp.Token != "tok" || resp.Region != "westeurope" {
			t.Errorf("unexpected response %+v", resp)
		}
	}
}

func TestSpeechTokenEndpoint_Errors(t *testing.T) {
	w := do(testServer(nil), http.MethodGet, "/v1/speech/token", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("expected status %d, got %d", http.StatusNotFound, w.Code)
	}

	svc := &mockService{speechFunc: func(context.Context) (speech.Token, error) {
		return speech.Token{}, errors.New("sts returned 401")
	}}
	w = do(testServer(svc), http.MethodGet, "/v1/speech/token", "")
	if w.Code != http.StatusBadGateway {
		t.Errorf("expected status %d, got %d", http.StatusBadGateway, w.Code)
	}
	if detail := decodeError(t, w); strings.Contains(detail.Message, "401") {
		t.Errorf("error message leaks the cause: %q", detail.Message)
	}
}

func TestRequestIDMiddleware(t *testing.T) {
	srv := testServer(nil)

	w := do(srv, http.MethodGet, "/v1/health", "")
	generated := w.Header().Get(RequestIDHeader)
	if len(generated) != 36 {
		t.Errorf("expected a generated uuid, got %q", generated)
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/health", nil)
	req.Header.Set(RequestIDHeader, "client-123")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if got := rec.Header().Get(RequestIDHeader); got != "client-123" {
		t.Errorf("expected client request id to be echoed, got %q", got)
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	svc := &mockService{chatFunc: func(context.Context, pipeline.ChatRequest) (*pipeline.ChatResponse, error) {
		panic("boom")
	}}

	w := do(testServer(svc), http.MethodPost, "/v1/chat", `{"q": "anything"}`)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("expected status %d, got %d", http.StatusInternalServerError, w.Code)
	}
}

func TestCORSMiddleware(t *testing.T) {
	cfg := testConfig()
	cfg.Server.CORS = config.CORSConfig{Enabled: true, AllowedOrigins: []string{"https://library.example"}}
	srv := New(cfg, &mockService{}, nil)

	req := httptest.NewRequest(http.MethodOptions, "/v1/chat", nil)
	req.Header.Set("Origin", "https://library.example")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("expected status %d, got %d", http.StatusNoContent, w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://library.example" {
		t.Errorf("unexpected allowed origin %q", got)
	}

	req = httptest.NewRequest(http.MethodOptions, "/v1/chat", nil)
	req.Header.Set("Origin", "https://elsewhere.example")
	w = httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("expected no allowed origin, got %q", got)
	}
}

func TestOpenAPIEndpoint(t *testing.T) {
	w := do(testServer(nil), http.MethodGet, "/v1/openapi.json", "")

	if w.Code != http.StatusOK {
		t.Errorf("expected status %d, got %d", http.StatusOK, w.Code)
	}

	// Check Content-Type
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected Content-Type 'application/json', got '%s'", ct)
	}

	var spec map[string]any
	if err := json.NewDecoder(w.Body).Decode(&spec); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if spec["openapi"] != "3.0.3" {
		t.Errorf("expected OpenAPI version '3.0.3', got '%v'", spec["openapi"])
	}

	paths, ok := spec["paths"].(map[string]any)
	if !ok {
		t.Fatal("OpenAPI spec missing 'paths' field")
	}
	for _, p := range []string{"/health", "/chat", "/search", "/image", "/speech/token"} {
		if paths[p] == nil {
			t.Errorf("OpenAPI spec missing path %s", p)
		}
	}
}

func TestOpenAPISchemaRefsResolve(t *testing.T) {
	spec := BuildOpenAPISpec()
	data, err := json.Marshal(spec)
	if err != nil {
		t.Fatalf("failed to marshal spec: %v", err)
	}

	const prefix = `"$ref":"#/components/schemas/`
	text := string(data)
	for {
		i := strings.Index(text, prefix)
		if i < 0 {
			break
		}
		text = text[i+len(prefix):]
		name := text[:strings.Index(text, `"`)]
		if _, ok := spec.Components.Schemas[name]; !ok {
			t.Errorf("unresolved schema reference %s", name)
		}
	}
}

func TestRFC8631LinkHeader(t *testing.T) {
	srv := testServer(nil)

	for _, path := range []string{"/v1/health", "/v1/openapi.json"} {
		w := do(srv, http.MethodGet, path, "")

		link := w.Header().Get("Link")
		if !strings.Contains(link, "</v1/openapi.json>") || !strings.Contains(link, `rel="service-desc"`) {
			t.Errorf("GET %s: unexpected Link header %q", path, link)
		}
	}
}
