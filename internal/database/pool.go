//-------------------------------------------------------------------------
//
// pgEdge Librarian Server
//
// Copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package database provides PostgreSQL connectivity and the pgvector-backed
// book store.
package database

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/pgEdge/pgedge-librarian-server/internal/config"
)

const applicationName = "pgedge-librarian-server"

// Pool wraps a pgxpool connection pool whose connections know the pgvector
// types.
type Pool struct {
	pool   *pgxpool.Pool
	config config.DatabaseConfig
}

// NewPool connects to the book store and verifies the connection.
func NewPool(ctx context.Context, cfg config.DatabaseConfig) (*Pool, error) {
	poolCfg, err := poolConfig(cfg)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Pool{
		pool:   pool,
		config: cfg,
	}, nil
}

// poolConfig parses the connection settings and installs the per-connection
// vector type registration.
func poolConfig(cfg config.DatabaseConfig) (*pgxpool.Config, error) {
	poolCfg, err := pgxpool.ParseConfig(buildConnectionString(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	poolCfg.AfterConnect = registerVectorTypes
	return poolCfg, nil
}

// registerVectorTypes teaches a new connection the binary vector codecs.
// Before the seed command has created the extension there is nothing to
// register, and vectors fall back to their text encoding.
func registerVectorTypes(ctx context.Context, conn *pgx.Conn) error {
	var installed bool
	if err := conn.QueryRow(ctx,
		"SELECT to_regtype('vector') IS NOT NULL").Scan(&installed); err != nil {
		return fmt.Errorf("failed to look up vector type: %w", err)
	}
	if !installed {
		return nil
	}
	if err := pgxvec.RegisterTypes(ctx, conn); err != nil {
		return fmt.Errorf("failed to register vector types: %w", err)
	}
	return nil
}

// buildConnectionString renders cfg as a keyword/value connection string.
func buildConnectionString(cfg config.DatabaseConfig) string {
	var parts []string
	add := func(key, value string) {
		if value != "" {
			parts = append(parts, key+"="+quoteConnValue(value))
		}
	}

	add("host", cfg.Host)
	add("port", strconv.Itoa(cfg.Port))
	add("dbname", cfg.Database)

	// Username: config > PGUSER > USER
	username := cfg.Username
	if username == "" {
		username = os.Getenv("PGUSER")
	}
	if username == "" {
		username = os.Getenv("USER")
	}
	add("user", username)
	add("password", cfg.Password)
	add("sslmode", cfg.SSLMode)

	// Certificate-based authentication
	add("sslcert", cfg.SSLCert)
	add("sslkey", cfg.SSLKey)
	add("sslrootcert", cfg.SSLRootCA)

	add("application_name", applicationName)

	return strings.Join(parts, " ")
}

// quoteConnValue single-quotes values that would otherwise split the
// keyword/value string.
func quoteConnValue(v string) string {
	if !strings.ContainsAny(v, " '\\\t") {
		return v
	}
	r := strings.NewReplacer(`\`, `\\`, `'`, `\'`)
	return "'" + r.Replace(v) + "'"
}

// Ping verifies the database connection.
func (p *Pool) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// Close closes the connection pool.
func (p *Pool) Close() {
	if p.pool != nil {
		p.pool.Close()
	}
}

// Pool returns the underlying pgxpool.Pool for direct access.
func (p *Pool) Pool() *pgxpool.Pool {
	return p.pool
}
