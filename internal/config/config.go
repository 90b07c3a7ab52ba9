// Package config loads chipchip settings from defaults, an optional YAML
// file, a .env file and the environment, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	BackendAgent  = "agent"
	BackendOpenAI = "openai"

	DefaultBackendURL  = "https://chipchip-ai-agent-backend.onrender.com"
	DefaultTimeout     = 60 * time.Second
	DefaultOpenAIModel = "gpt-4o-mini"
)

var ErrInvalidConfig = errors.New("invalid config")

// Config holds all configuration values.
type Config struct {
	// Transport
	Backend    string
	BackendURL string
	Stateless  bool
	Timeout    time.Duration

	// OpenAI-compatible backend
	OpenAIAPIKey  string
	OpenAIBaseURL string
	OpenAIModel   string

	// Storage
	DBPath     string
	HistoryKey string
	LegacyKey  string
	ExportDir  string

	// Logging
	LogFile  string
	LogLevel slog.Level
}

// fileConfig mirrors Config in the YAML file; empty fields keep the default
type fileConfig struct {
	Backend    string `yaml:"backend"`
	BackendURL string `yaml:"backend_url"`
	Stateless  *bool  `yaml:"stateless"`
	Timeout    string `yaml:"timeout"`

	OpenAI struct {
		APIKey  string `yaml:"api_key"`
		BaseURL string `yaml:"base_url"`
		Model   string `yaml:"model"`
	} `yaml:"openai"`

	Storage struct {
		DB         string `yaml:"db"`
		HistoryKey string `yaml:"history_key"`
		LegacyKey  string `yaml:"legacy_key"`
		ExportDir  string `yaml:"export_dir"`
	} `yaml:"storage"`

	Log struct {
		File  string `yaml:"file"`
		Level string `yaml:"level"`
	} `yaml:"log"`
}

// Default returns the built-in configuration
func Default() Config {
	dataDir := DefaultDataDir()
	return Config{
		Backend:     BackendAgent,
		BackendURL:  DefaultBackendURL,
		Timeout:     DefaultTimeout,
		OpenAIModel: DefaultOpenAIModel,
		DBPath:      filepath.Join(dataDir, "history.db"),
		HistoryKey:  "chipchip_chat_history",
		LegacyKey:   "chipchip_chat_memory",
		ExportDir:   ".",
		LogFile:     filepath.Join(dataDir, "chipchip.log"),
		LogLevel:    slog.LevelInfo,
	}
}

// DefaultDataDir is ~/.chipchip, or a temp directory when there is no home
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "chipchip")
	}
	return filepath.Join(home, ".chipchip")
}

// Load builds the configuration. path names an optional YAML file; when
// empty, CHIPCHIP_CONFIG is consulted. A .env file in the working directory
// is read unless CHIPCHIP_ENV=production.
func Load(path string) (Config, error) {
	if !strings.EqualFold(os.Getenv("CHIPCHIP_ENV"), "production") {
		if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
			slog.Warn("failed to read .env file", slog.Any("error", err))
		}
	}

	cfg := Default()

	if path == "" {
		path = os.Getenv("CHIPCHIP_CONFIG")
	}
	if path != "" {
		if err := cfg.applyFile(path); err != nil {
			return Config{}, err
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	c.Backend = orDefault(fc.Backend, c.Backend)
	c.BackendURL = orDefault(fc.BackendURL, c.BackendURL)
	if fc.Stateless != nil {
		c.Stateless = *fc.Stateless
	}
	if fc.Timeout != "" {
		d, err := time.ParseDuration(fc.Timeout)
		if err != nil {
			return fmt.Errorf("parse config %s: timeout: %w", path, err)
		}
		c.Timeout = d
	}

	c.OpenAIAPIKey = orDefault(fc.OpenAI.APIKey, c.OpenAIAPIKey)
	c.OpenAIBaseURL = orDefault(fc.OpenAI.BaseURL, c.OpenAIBaseURL)
	c.OpenAIModel = orDefault(fc.OpenAI.Model, c.OpenAIModel)

	c.DBPath = expandHome(orDefault(fc.Storage.DB, c.DBPath))
	c.HistoryKey = orDefault(fc.Storage.HistoryKey, c.HistoryKey)
	c.LegacyKey = orDefault(fc.Storage.LegacyKey, c.LegacyKey)
	c.ExportDir = expandHome(orDefault(fc.Storage.ExportDir, c.ExportDir))

	c.LogFile = expandHome(orDefault(fc.Log.File, c.LogFile))
	if fc.Log.Level != "" {
		c.LogLevel = parseLogLevel(fc.Log.Level)
	}
	return nil
}

func (c *Config) applyEnv() error {
	c.Backend = getEnv("CHIPCHIP_BACKEND", c.Backend)
	c.BackendURL = getEnv("CHIPCHIP_BACKEND_URL", c.BackendURL)
	if v := os.Getenv("CHIPCHIP_STATELESS"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("CHIPCHIP_STATELESS: %w", err)
		}
		c.Stateless = b
	}
	if v := os.Getenv("CHIPCHIP_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("CHIPCHIP_TIMEOUT: %w", err)
		}
		c.Timeout = d
	}

	c.OpenAIAPIKey = getEnv("OPENAI_API_KEY", c.OpenAIAPIKey)
	c.OpenAIBaseURL = getEnv("OPENAI_BASE_URL", c.OpenAIBaseURL)
	c.OpenAIModel = getEnv("OPENAI_MODEL", c.OpenAIModel)

	c.DBPath = expandHome(getEnv("CHIPCHIP_DB", c.DBPath))
	c.HistoryKey = getEnv("CHIPCHIP_HISTORY_KEY", c.HistoryKey)
	c.LegacyKey = getEnv("CHIPCHIP_LEGACY_KEY", c.LegacyKey)
	c.ExportDir = expandHome(getEnv("CHIPCHIP_EXPORT_DIR", c.ExportDir))

	c.LogFile = expandHome(getEnv("CHIPCHIP_LOG_FILE", c.LogFile))
	if v := os.Getenv("CHIPCHIP_LOG_LEVEL"); v != "" {
		c.LogLevel = parseLogLevel(v)
	}
	return nil
}

// Validate reports settings that cannot work together
func (c Config) Validate() error {
	switch c.Backend {
	case BackendAgent:
		if c.BackendURL == "" {
			return fmt.Errorf("%w: backend url is empty", ErrInvalidConfig)
		}
	case BackendOpenAI:
		// a custom base url may point at a local server without a key
		if c.OpenAIAPIKey == "" && c.OpenAIBaseURL == "" {
			return fmt.Errorf("%w: OPENAI_API_KEY is required for the openai backend", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown backend %q", ErrInvalidConfig, c.Backend)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("%w: timeout must be positive", ErrInvalidConfig)
	}
	if c.HistoryKey == "" {
		return fmt.Errorf("%w: history key is empty", ErrInvalidConfig)
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func orDefault(val, defaultVal string) string {
	if val != "" {
		return val
	}
	return defaultVal
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
