//-------------------------------------------------------------------------
//
// pgEdge Librarian Server
//
// Copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package speech exchanges the speech service subscription key for
// short-lived browser tokens.
package speech

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"
)

const (
	defaultTokenTTL = 10 * time.Minute
	defaultRefresh  = time.Minute
	defaultTimeout  = 10 * time.Second
	tokenKey        = "token"
)

// Token is an issued speech token.
type Token struct {
	Value     string    `json:"token"`
	Region    string    `json:"region"`
	ExpiresAt time.Time `json:"-"`
}

// Issuer obtains tokens and caches them until shortly before they expire.
type Issuer struct {
	httpClient *http.Client
	endpoint   string
	region     string
	apiKey     string
	ttl        time.Duration
	refresh    time.Duration
	now        func() time.Time

	cache *cache.Cache
	group singleflight.Group
}

// Option configures the issuer.
type Option func(*Issuer)

// WithEndpoint overrides the regional token endpoint.
func WithEndpoint(url string) Option {
	return func(i *Issuer) {
		if url != "" {
			i.endpoint = strings.TrimRight(url, "/")
		}
	}
}

// WithTokenTTL sets how long issued tokens live and how long before expiry
// they are replaced.
func WithTokenTTL(ttl, refreshBefore time.Duration) Option {
	return func(i *Issuer) {
		if ttl > 0 {
			i.ttl = ttl
		}
		if refreshBefore >= 0 {
			i.refresh = refreshBefore
		}
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(i *Issuer) {
		i.httpClient = client
	}
}

// NewIssuer creates an issuer for region.
func NewIssuer(region, apiKey string, opts ...Option) *Issuer {
	i := &Issuer{
		httpClient: &http.Client{Timeout: defaultTimeout},
		endpoint:   fmt.Sprintf("https://%s.api.cognitive.microsoft.com/sts/v1.0/issueToken", region),
		region:     region,
		apiKey:     apiKey,
		ttl:        defaultTokenTTL,
		refresh:    defaultRefresh,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}
	// Configuration rejects refresh >= ttl; direct callers still get a
	// token replaced before it expires.
	if i.refresh >= i.ttl {
		i.refresh = i.ttl / 10
	}
	i.cache = cache.New(i.ttl-i.refresh, i.ttl)
	return i
}

// Token returns a cached token or issues a new one. Concurrent callers share
// a single exchange.
func (i *Issuer) Token(ctx context.Context) (Token, error) {
	if x, found := i.cache.Get(tokenKey); found {
		return x.(Token), nil
	}

	v, err, _ := i.group.Do(tokenKey, func() (any, error) {
		if x, found := i.cache.Get(tokenKey); found {
			return x.(Token), nil
		}

		// The exchange outlives any single waiter; the client timeout
		// bounds it.
		issued := i.now()
		value, err := i.issue(context.WithoutCancel(ctx))
		if err != nil {
			return Token{}, err
		}

		tok := Token{Value: value, Region: i.region, ExpiresAt: issued.Add(i.ttl)}
		i.cache.Set(tokenKey, tok, i.ttl-i.refresh)
		return tok, nil
	})
	if err != nil {
		return Token{}, err
	}
	return v.(Token), nil
}

// Invalidate drops the cached token.
func (i *Issuer) Invalidate() {
	i.cache.Delete(tokenKey)
}

func (i *Issuer) issue(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, i.endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Ocp-Apim-Subscription-Key", i.apiKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := i.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("token request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read token: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token exchange failed (status %d): %s",
			resp.StatusCode, strings.TrimSpace(string(body)))
	}

	token := strings.TrimSpace(string(body))
	if token == "" {
		return "", fmt.Errorf("token exchange returned an empty token")
	}
	return token, nil
}
