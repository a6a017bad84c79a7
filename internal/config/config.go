package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	BackendDynamoDB = "dynamodb"
	BackendSQLite   = "sqlite"
)

// Config holds everything main needs to wire the service. Values come from
// the environment, optionally seeded from a .env file.
type Config struct {
	// Completion endpoint
	Endpoint          string
	APIKey            string
	APIKeyParam       string
	Deployment        string
	APIVersion        string
	CompletionTimeout time.Duration

	// Message store
	StoreBackend string
	StateTable   string
	SQLitePath   string

	HistoryLimit     int
	RateLimitEnabled bool

	LocalAddr string
	LogLevel  slog.Level
}

// Error reports configuration that prevents the service from starting.
type Error struct {
	Missing []string
	Invalid []string
}

func (e *Error) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing required environment variables: "+strings.Join(e.Missing, ", "))
	}
	if len(e.Invalid) > 0 {
		parts = append(parts, "invalid environment variables: "+strings.Join(e.Invalid, ", "))
	}
	return "config: " + strings.Join(parts, "; ")
}

// Load reads the configuration. A missing .env file is not an error.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to load .env file", "err", err)
	}
	return FromEnv()
}

func FromEnv() (Config, error) {
	cfg := Config{
		Endpoint:          getEnv("AZURE_OPENAI_ENDPOINT", ""),
		APIKey:            getEnv("AZURE_OPENAI_API_KEY", ""),
		APIKeyParam:       getEnv("AZURE_OPENAI_API_KEY_PARAM", ""),
		Deployment:        getEnv("AZURE_OPENAI_DEPLOYMENT", ""),
		APIVersion:        getEnv("AZURE_OPENAI_API_VERSION", "2024-02-01"),
		CompletionTimeout: time.Duration(getEnvInt("COMPLETION_TIMEOUT_SECONDS", 30)) * time.Second,
		StoreBackend:      strings.ToLower(getEnv("STORE_BACKEND", BackendDynamoDB)),
		StateTable:        getEnv("STATE_TABLE", ""),
		SQLitePath:        getEnv("SQLITE_PATH", "data/chat.db"),
		HistoryLimit:      getEnvInt("HISTORY_LIMIT", 5),
		RateLimitEnabled:  getEnvBool("RATE_LIMIT_ENABLED", true),
		LocalAddr:         getEnv("LOCAL_ADDR", ""),
		LogLevel:          parseLevel(getEnv("LOG_LEVEL", "info")),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate collects every problem instead of stopping at the first one.
func (c Config) Validate() error {
	cfgErr := &Error{}

	if c.Endpoint == "" {
		cfgErr.Missing = append(cfgErr.Missing, "AZURE_OPENAI_ENDPOINT")
	}
	if c.APIKey == "" && c.APIKeyParam == "" {
		cfgErr.Missing = append(cfgErr.Missing, "AZURE_OPENAI_API_KEY")
	}
	if c.Deployment == "" {
		cfgErr.Missing = append(cfgErr.Missing, "AZURE_OPENAI_DEPLOYMENT")
	}

	switch c.StoreBackend {
	case BackendDynamoDB:
		if c.StateTable == "" {
			cfgErr.Missing = append(cfgErr.Missing, "STATE_TABLE")
		}
	case BackendSQLite:
		if c.SQLitePath == "" {
			cfgErr.Missing = append(cfgErr.Missing, "SQLITE_PATH")
		}
	default:
		cfgErr.Invalid = append(cfgErr.Invalid, fmt.Sprintf("STORE_BACKEND=%q", c.StoreBackend))
	}

	if c.CompletionTimeout <= 0 {
		cfgErr.Invalid = append(cfgErr.Invalid, "COMPLETION_TIMEOUT_SECONDS")
	}
	if c.HistoryLimit <= 0 {
		cfgErr.Invalid = append(cfgErr.Invalid, "HISTORY_LIMIT")
	}

	if len(cfgErr.Missing) > 0 || len(cfgErr.Invalid) > 0 {
		return cfgErr
	}
	return nil
}

// NeedsAWS reports whether any configured component talks to AWS.
func (c Config) NeedsAWS() bool {
	return c.StoreBackend == BackendDynamoDB || (c.APIKey == "" && c.APIKeyParam != "")
}

func getEnv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getEnvBool(key string, def bool) bool {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func parseLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return level
}
