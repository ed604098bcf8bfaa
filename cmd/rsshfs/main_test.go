package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoggerWritesToFile(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "rsshfs.log")

	logger, err := newLogger(logPath, "debug")
	require.NoError(t, err)

	logger.Info("hello")

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello")
}

func TestNewLoggerRejectsBadLevel(t *testing.T) {
	_, err := newLogger(filepath.Join(t.TempDir(), "x.log"), "not-a-level")
	assert.Error(t, err)
}

func TestDefaultKeyFileEndsInSSHDir(t *testing.T) {
	got := defaultKeyFile()
	assert.Contains(t, got, ".ssh/id_rsa")
}
