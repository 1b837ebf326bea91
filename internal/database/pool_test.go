//-------------------------------------------------------------------------
//
// pgEdge Librarian Server
//
// Copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package database

import (
	"strings"
	"testing"

	"github.com/pgEdge/pgedge-librarian-server/internal/config"
)

func TestBuildConnectionString(t *testing.T) {
	cfg := config.DatabaseConfig{
		Host:      "db.internal",
		Port:      5433,
		Database:  "librarian",
		Username:  "reader",
		Password:  "it's a secret",
		SSLMode:   "verify-full",
		SSLRootCA: "/etc/ssl/root.crt",
	}

	got := buildConnectionString(cfg)
	for _, want := range []string{
		"host=db.internal",
		"port=5433",
		"dbname=librarian",
		"user=reader",
		`password='it\'s a secret'`,
		"sslmode=verify-full",
		"sslrootcert=/etc/ssl/root.crt",
		"application_name=pgedge-librarian-server",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("expected %q in %q", want, got)
		}
	}
	if strings.Contains(got, "sslcert=") || strings.Contains(got, "sslkey=") {
		t.Errorf("unset certificate fields should be omitted: %q", got)
	}
}

func TestBuildConnectionString_UserFromEnvironment(t *testing.T) {
	t.Setenv("PGUSER", "from-env")

	got := buildConnectionString(config.DatabaseConfig{Host: "localhost", Port: 5432, Database: "librarian"})
	if !strings.Contains(got, "user=from-env") {
		t.Errorf("expected PGUSER fallback, got %q", got)
	}
}

func TestPoolConfig(t *testing.T) {
	cfg := config.DatabaseConfig{
		Host:     "localhost",
		Port:     5432,
		Database: "librarian",
		Username: "reader",
		Password: `back\slash pass`,
		MaxConns: 7,
	}

	poolCfg, err := poolConfig(cfg)
	if err != nil {
		t.Fatalf("poolConfig failed: %v", err)
	}
	if poolCfg.MaxConns != 7 {
		t.Errorf("MaxConns = %d, want 7", poolCfg.MaxConns)
	}
	if poolCfg.AfterConnect == nil {
		t.Error("expected vector type registration on connect")
	}

	conn := poolCfg.ConnConfig
	if conn.Host != "localhost" || conn.Port != 5432 || conn.Database != "librarian" {
		t.Errorf("unexpected connection target %s:%d/%s", conn.Host, conn.Port, conn.Database)
	}
	if conn.User != "reader" || conn.Password != `back\slash pass` {
		t.Errorf("credentials not preserved: user=%q password=%q", conn.User, conn.Password)
	}
	if conn.RuntimeParams["application_name"] != "pgedge-librarian-server" {
		t.Errorf("unexpected application_name %q", conn.RuntimeParams["application_name"])
	}
}

func TestPoolConfig_DefaultMaxConns(t *testing.T) {
	poolCfg, err := poolConfig(config.DatabaseConfig{Host: "localhost", Port: 5432, Database: "librarian", Username: "u"})
	if err != nil {
		t.Fatalf("poolConfig failed: %v", err)
	}
	if poolCfg.MaxConns <= 0 {
		t.Errorf("expected pgxpool default MaxConns, got %d", poolCfg.MaxConns)
	}
}
