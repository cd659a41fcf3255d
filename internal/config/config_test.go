package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load(New(), "")
	require.NoError(t, err)
	assert.Equal(t, Config{
		Addr:        ":8080",
		DBPath:      "data/sprintboard.db",
		LogLevel:    "info",
		LogFormat:   "text",
		AuditBuffer: 256,
	}, cfg)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("SPRINTBOARD_ADDR", "127.0.0.1:9000")
	t.Setenv("SPRINTBOARD_DB_PATH", "/tmp/board.db")
	t.Setenv("SPRINTBOARD_LOG_FORMAT", "JSON")
	t.Setenv("SPRINTBOARD_AUDIT_BUFFER", "16")

	cfg, err := Load(New(), "")
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9000", cfg.Addr)
	assert.Equal(t, "/tmp/board.db", cfg.DBPath)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 16, cfg.AuditBuffer)
}

func TestLoad_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "board.yaml")
	require.NoError(t, os.WriteFile(path, []byte("addr: \":7070\"\nlog_level: debug\n"), 0o600))

	cfg, err := Load(New(), path)
	require.NoError(t, err)
	assert.Equal(t, ":7070", cfg.Addr)
	assert.Equal(t, "debug", cfg.LogLevel)

	t.Setenv("SPRINTBOARD_ADDR", ":6060")
	cfg, err = Load(New(), path)
	require.NoError(t, err)
	assert.Equal(t, ":6060", cfg.Addr)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(New(), filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := Config{Addr: "", DBPath: "", LogLevel: "loud", LogFormat: "xml", AuditBuffer: 0}
	err := cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{"addr", "db_path", "log_level", "log_format", "audit_buffer"} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestLogger_Format(t *testing.T) {
	var buf bytes.Buffer
	Config{LogLevel: "warn", LogFormat: "json"}.Logger(&buf).Info("hidden")
	assert.Empty(t, buf.String())

	Config{LogLevel: "warn", LogFormat: "json"}.Logger(&buf).Warn("shown")
	assert.Contains(t, buf.String(), `"msg":"shown"`)
}
