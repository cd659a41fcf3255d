package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrateCreatesDatabase(t *testing.T) {
	t.Chdir(t.TempDir())
	dbPath := filepath.Join(t.TempDir(), "db", "board.db")

	cmd := newRootCmd()
	cmd.SetArgs([]string{"migrate", "--db", dbPath})
	require.NoError(t, cmd.Execute())

	_, err := os.Stat(dbPath)
	assert.NoError(t, err)
}

func TestInvalidConfigFailsBeforeServing(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("SPRINTBOARD_LOG_FORMAT", "xml")

	cmd := newRootCmd()
	cmd.SetArgs([]string{"serve", "--addr", "127.0.0.1:0"})
	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "log_format")
}
