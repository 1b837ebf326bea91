//-------------------------------------------------------------------------
//
// pgEdge Librarian Server
//
// Copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package pipeline

import (
	"testing"

	"go.uber.org/goleak"
)

// Tool execution fans out goroutines; every one must finish before Execute
// returns.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}
