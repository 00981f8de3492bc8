package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mike1ife/RAGentFlow/internal/auth"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	root := newRootCommand(&stdout, &stderr)
	root.SetArgs(args)
	err := root.Execute()
	return stdout.String(), err
}

func TestCommandTree(t *testing.T) {
	root := newRootCommand(&bytes.Buffer{}, &bytes.Buffer{})
	for _, path := range [][]string{
		{"serve"}, {"migrate"}, {"validate"}, {"simulate"},
		{"graph", "export"}, {"graph", "reset"}, {"ingest"}, {"hash-key"}, {"gen-keys"},
	} {
		cmd, rest, err := root.Find(path)
		require.NoError(t, err, strings.Join(path, " "))
		assert.Empty(t, rest)
		assert.Equal(t, path[len(path)-1], cmd.Name())
	}
}

func TestHashKey(t *testing.T) {
	out, err := execute(t, "hash-key", "s3cret")
	require.NoError(t, err)

	encoded := strings.TrimSpace(out)
	ok, err := auth.VerifyAPIKey("s3cret", encoded)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestGenKeys(t *testing.T) {
	dir := t.TempDir()
	out, err := execute(t, "gen-keys", "--dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, filepath.Join(dir, "jwt_private.pem"))

	_, err = execute(t, "gen-keys", "--dir", dir)
	assert.ErrorIs(t, err, auth.ErrKeyExists)
}

func TestArgumentValidation(t *testing.T) {
	_, err := execute(t, "simulate")
	assert.Error(t, err)

	_, err = execute(t, "ingest")
	assert.Error(t, err)

	_, err = execute(t, "hash-key", "a", "b")
	assert.Error(t, err)
}

func TestGraphExportRejectsFormatBeforeConnecting(t *testing.T) {
	_, err := execute(t, "graph", "export", "--format", "dot")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported format: dot")
}
