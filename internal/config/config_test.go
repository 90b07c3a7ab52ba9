package config

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var envKeys = []string{
	"CHIPCHIP_CONFIG", "CHIPCHIP_BACKEND", "CHIPCHIP_BACKEND_URL", "CHIPCHIP_STATELESS",
	"CHIPCHIP_TIMEOUT", "CHIPCHIP_DB", "CHIPCHIP_EXPORT_DIR", "CHIPCHIP_HISTORY_KEY",
	"CHIPCHIP_LEGACY_KEY", "OPENAI_API_KEY", "OPENAI_BASE_URL", "OPENAI_MODEL",
	"CHIPCHIP_LOG_FILE", "CHIPCHIP_LOG_LEVEL",
}

// cleanEnv isolates a test from the developer's environment and .env file
func cleanEnv(t *testing.T) {
	t.Helper()
	for _, key := range envKeys {
		t.Setenv(key, "")
	}
	t.Setenv("CHIPCHIP_ENV", "production")
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cleanEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, BackendAgent, cfg.Backend)
	assert.Equal(t, DefaultBackendURL, cfg.BackendURL)
	assert.False(t, cfg.Stateless)
	assert.Equal(t, 60*time.Second, cfg.Timeout)
	assert.Equal(t, "chipchip_chat_history", cfg.HistoryKey)
	assert.Equal(t, "chipchip_chat_memory", cfg.LegacyKey)
	assert.Equal(t, "history.db", filepath.Base(cfg.DBPath))
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
}

func TestLoadFileThenEnv(t *testing.T) {
	cleanEnv(t)
	path := writeFile(t, "chipchip.yaml", `
backend_url: http://localhost:8000
stateless: true
timeout: 15s
storage:
  db: /var/lib/chipchip/history.db
  export_dir: /tmp/exports
log:
  level: debug
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8000", cfg.BackendURL)
	assert.True(t, cfg.Stateless)
	assert.Equal(t, 15*time.Second, cfg.Timeout)
	assert.Equal(t, "/var/lib/chipchip/history.db", cfg.DBPath)
	assert.Equal(t, "/tmp/exports", cfg.ExportDir)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)

	t.Setenv("CHIPCHIP_BACKEND_URL", "http://agent.internal")
	t.Setenv("CHIPCHIP_STATELESS", "false")
	t.Setenv("CHIPCHIP_TIMEOUT", "2m")

	cfg, err = Load(path)
	require.NoError(t, err)
	assert.Equal(t, "http://agent.internal", cfg.BackendURL, "environment wins over file")
	assert.False(t, cfg.Stateless)
	assert.Equal(t, 2*time.Minute, cfg.Timeout)
	assert.Equal(t, "/var/lib/chipchip/history.db", cfg.DBPath)
}

func TestLoadConfigFromEnvPath(t *testing.T) {
	cleanEnv(t)
	path := writeFile(t, "chipchip.yaml", "storage:\n  history_key: custom_history\n")
	t.Setenv("CHIPCHIP_CONFIG", path)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "custom_history", cfg.HistoryKey)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		file string
		env  map[string]string
	}{
		{name: "missing file", file: "-"},
		{name: "bad yaml", file: "backend: [unclosed"},
		{name: "bad file timeout", file: "timeout: soon"},
		{name: "bad env timeout", env: map[string]string{"CHIPCHIP_TIMEOUT": "soon"}},
		{name: "bad stateless", env: map[string]string{"CHIPCHIP_STATELESS": "maybe"}},
		{name: "unknown backend", env: map[string]string{"CHIPCHIP_BACKEND": "carrier-pigeon"}},
		{name: "openai without key", env: map[string]string{"CHIPCHIP_BACKEND": "openai"}},
		{name: "zero timeout", env: map[string]string{"CHIPCHIP_TIMEOUT": "0s"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cleanEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			path := ""
			switch tt.file {
			case "":
			case "-":
				path = filepath.Join(t.TempDir(), "missing.yaml")
			default:
				path = writeFile(t, "chipchip.yaml", tt.file)
			}

			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestValidateOpenAI(t *testing.T) {
	cfg := Default()
	cfg.Backend = BackendOpenAI
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)

	cfg.OpenAIAPIKey = "sk-test"
	assert.NoError(t, cfg.Validate())

	cfg.OpenAIAPIKey = ""
	cfg.OpenAIBaseURL = "http://localhost:11434/v1"
	assert.NoError(t, cfg.Validate())
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(home, "chats.db"), expandHome("~/chats.db"))
	assert.Equal(t, "/abs/chats.db", expandHome("/abs/chats.db"))
	assert.Equal(t, "rel/~/x", expandHome("rel/~/x"))
}

func TestParseLogLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		"Warn":    slog.LevelWarn,
		"error":   slog.LevelError,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, parseLogLevel(in), in)
	}
}

func TestSetupLoggerWithWriters(t *testing.T) {
	var console, file bytes.Buffer
	logger := SetupLoggerWithWriters(&console, &file, slog.LevelInfo)

	logger.Debug("hidden")
	logger.Info("chat request failed", slog.String("session_id", "abc"))

	assert.Contains(t, console.String(), "msg=\"chat request failed\"")
	assert.Contains(t, console.String(), "session_id=abc")
	assert.NotContains(t, console.String(), "hidden")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(file.Bytes(), &entry))
	assert.Equal(t, "chat request failed", entry["msg"])
	assert.Equal(t, "abc", entry["session_id"])
}

func TestSetupLoggerWritesFile(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "nested", "chipchip.log")
	var console bytes.Buffer

	logger, cleanup := SetupLogger(logFile, slog.LevelInfo, &console)
	logger.Info("started")
	require.NoError(t, cleanup())

	data, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"started"`)
	assert.Contains(t, console.String(), "started")
}
