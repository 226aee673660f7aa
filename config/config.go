// Package config resolves process settings from defaults, an optional YAML
// file and environment variables, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"sunnyflow/auth"
)

// Store backends.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"
	StoreRedis    = "redis"
	StoreMongo    = "mongo"
)

var ErrInvalidConfig = errors.New("config: invalid")

type Config struct {
	Store       string `yaml:"store"`
	DatabaseURL string `yaml:"database_url"`
	SQLitePath  string `yaml:"sqlite_path"`
	RedisAddr   string `yaml:"redis_addr"`
	RedisPrefix string `yaml:"redis_prefix"`
	MongoURI    string `yaml:"mongo_uri"`
	MongoDB     string `yaml:"mongo_db"`

	Owner       string `yaml:"owner"`
	TokenSecret string `yaml:"token_secret"`
	Outbox      bool   `yaml:"outbox"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// Credentials seed the keyring that mints witness tokens.
	Credentials []auth.Credential `yaml:"credentials"`
}

func Default() *Config {
	return &Config{
		Store:       StoreMemory,
		SQLitePath:  "sunnyflow.db",
		RedisPrefix: "sunnyflow:",
		MongoDB:     "sunnyflow",
		LogLevel:    "info",
		LogFormat:   "json",
	}
}

// Load reads SUNNY_CONFIG when set, then applies environment overrides.
func Load() (*Config, error) {
	cfg := Default()
	if path := os.Getenv("SUNNY_CONFIG"); path != "" {
		fileCfg, err := LoadFile(path)
		if err != nil {
			return nil, err
		}
		cfg = fileCfg
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile parses a YAML file on top of the defaults.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %q: %w", path, err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Store = getEnv("SUNNY_STORE", c.Store)
	c.DatabaseURL = getEnv("DATABASE_URL", c.DatabaseURL)
	c.SQLitePath = getEnv("SQLITE_PATH", c.SQLitePath)
	c.RedisAddr = getEnv("REDIS_ADDR", c.RedisAddr)
	c.RedisPrefix = getEnv("REDIS_PREFIX", c.RedisPrefix)
	c.MongoURI = getEnv("MONGO_URI", c.MongoURI)
	c.MongoDB = getEnv("MONGO_DB", c.MongoDB)
	c.Owner = getEnv("SUNNY_OWNER", c.Owner)
	c.TokenSecret = getEnv("SUNNY_TOKEN_SECRET", c.TokenSecret)
	c.Outbox = getEnvBool("SUNNY_OUTBOX", c.Outbox)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.LogFormat = getEnv("LOG_FORMAT", c.LogFormat)
}

// Validate checks that the selected backend has what it needs to connect.
func (c *Config) Validate() error {
	if c.Owner == "" {
		return fmt.Errorf("%w: owner identity (SUNNY_OWNER) is required", ErrInvalidConfig)
	}
	switch c.Store {
	case StoreMemory:
	case StorePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("%w: postgres store needs DATABASE_URL", ErrInvalidConfig)
		}
	case StoreSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("%w: sqlite store needs SQLITE_PATH", ErrInvalidConfig)
		}
	case StoreRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("%w: redis store needs REDIS_ADDR", ErrInvalidConfig)
		}
	case StoreMongo:
		if c.MongoURI == "" {
			return fmt.Errorf("%w: mongo store needs MONGO_URI", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown store %q", ErrInvalidConfig, c.Store)
	}
	if c.Outbox && c.DatabaseURL == "" {
		return fmt.Errorf("%w: outbox needs DATABASE_URL", ErrInvalidConfig)
	}
	return nil
}

// Logger builds the process logger for the configured level and format.
func (c *Config) Logger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(c.LogLevel)}
	if strings.EqualFold(c.LogFormat, "text") {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultValue
}
