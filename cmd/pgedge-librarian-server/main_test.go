//-------------------------------------------------------------------------
//
// pgEdge Librarian Server
//
// Copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package main

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Chdir(t.TempDir())

	var out bytes.Buffer
	cmd := newRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "pgEdge Librarian Server")
	assert.Contains(t, out, "Version:    "+version)
}

func TestOpenAPICommand(t *testing.T) {
	out, err := execute(t, "openapi")
	require.NoError(t, err)

	var spec map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &spec))
	assert.Equal(t, "3.0.3", spec["openapi"])
}

func TestSeedCommand_Flags(t *testing.T) {
	cmd := newSeedCommand(new(string))
	for _, name := range []string{"data", "reset", "force", "batch-size"} {
		assert.NotNil(t, cmd.Flags().Lookup(name), name)
	}
}

func TestServeCommand_MissingConfig(t *testing.T) {
	_, err := execute(t, "serve", "--config", "does-not-exist.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config file not found")
}
