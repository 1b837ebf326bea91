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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultAPIVersion = "2024-09-01"
	defaultTimeout    = 10
)

// ContentSafetyClient is an Analyzer backed by the Azure AI Content Safety
// text:analyze REST API.
type ContentSafetyClient struct {
	httpClient *http.Client
	endpoint   string
	apiKey     string
	apiVersion string
}

// ClientOption configures the client.
type ClientOption func(*ContentSafetyClient)

// WithAPIVersion overrides the api-version query parameter.
func WithAPIVersion(v string) ClientOption {
	return func(c *ContentSafetyClient) {
		if v != "" {
			c.apiVersion = v
		}
	}
}

// WithTimeout sets the HTTP timeout.
func WithTimeout(seconds int) ClientOption {
	return func(c *ContentSafetyClient) {
		if seconds > 0 {
			c.httpClient.Timeout = time.Duration(seconds) * time.Second
		}
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *ContentSafetyClient) {
		c.httpClient = client
	}
}

// NewContentSafetyClient creates a client for the resource at endpoint.
func NewContentSafetyClient(endpoint, apiKey string, opts ...ClientOption) *ContentSafetyClient {
	c := &ContentSafetyClient{
		httpClient: &http.Client{Timeout: defaultTimeout * time.Second},
		endpoint:   strings.TrimRight(endpoint, "/"),
		apiKey:     apiKey,
		apiVersion: defaultAPIVersion,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type analyzeRequest struct {
	Text       string     `json:"text"`
	Categories []Category `json:"categories"`
	OutputType string     `json:"outputType"`
}

type analyzeResponse struct {
	CategoriesAnalysis []struct {
		Category Category `json:"category"`
		Severity int      `json:"severity"`
	} `json:"categoriesAnalysis"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Analyze implements Analyzer. The service reports FourSeverityLevels as
// 0, 2, 4 and 6; they are halved onto the 0-3 scale.
func (c *ContentSafetyClient) Analyze(
	ctx context.Context,
	text string,
	categories []Category,
) (map[Category]int, error) {
	if c.endpoint == "" || c.apiKey == "" {
		return nil, ErrNotConfigured
	}

	body, err := json.Marshal(analyzeRequest{
		Text:       text,
		Categories: categories,
		OutputType: "FourSeverityLevels",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	u := fmt.Sprintf("%s/contentsafety/text:analyze?api-version=%s",
		c.endpoint, url.QueryEscape(c.apiVersion))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Ocp-Apim-Subscription-Key", c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errResp errorResponse
		if json.Unmarshal(data, &errResp) == nil && errResp.Error.Message != "" {
			return nil, fmt.Errorf("content safety error (status %d, %s): %s",
				resp.StatusCode, errResp.Error.Code, errResp.Error.Message)
		}
		return nil, fmt.Errorf("content safety error (status %d): %s",
			resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var out analyzeResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	scores := make(map[Category]int, len(out.CategoriesAnalysis))
	for _, a := range out.CategoriesAnalysis {
		scores[a.Category] = normalizeSeverity(a.Severity)
	}
	return scores, nil
}

// normalizeSeverity maps 0/2/4/6 onto 0-3, clamping anything out of range.
func normalizeSeverity(s int) int {
	s /= 2
	switch {
	case s < 0:
		return 0
	case s > BlockSeverity:
		return BlockSeverity
	}
	return s
}

// Ensure ContentSafetyClient implements the interface.
var _ Analyzer = (*ContentSafetyClient)(nil)
