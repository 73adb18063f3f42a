// Package config loads process configuration from the environment and an
// optional .env file.
package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/seehiong/micronaut-optimizer/pkg/serialization"
)

// Store kinds accepted by SNAPSHOT_STORE.
const (
	StoreMemory   = "memory"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
	StoreBadger   = "badger"
)

// Config holds all configuration for the editor backend.
type Config struct {
	OpenAI      OpenAIConfig
	LocalLLM    LocalLLMConfig
	Solver      SolverConfig
	Propagation PropagationConfig
	Snapshot    SnapshotConfig
	App         AppConfig
}

type OpenAIConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

type LocalLLMConfig struct {
	Endpoint string
	Model    string
	Timeout  time.Duration
}

type SolverConfig struct {
	BaseURL string
	// StreamTimeout bounds a whole streaming invocation; zero means none.
	StreamTimeout time.Duration
}

type PropagationConfig struct {
	MaxSteps     int
	RejectCycles bool
}

type SnapshotConfig struct {
	Store         string
	SQLitePath    string
	DatabaseURL   string
	BadgerPath    string
	Compression   string
	EncryptionKey string // hex encoded AES key
}

type AppConfig struct {
	ServerAddr      string
	LogLevel        string
	LogFormat       string
	MaxSessions     int // zero means unlimited
	ShutdownTimeout time.Duration
}

// Load reads .env (if present) and the environment, then validates.
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv builds a Config from the current environment only.
func FromEnv() (*Config, error) {
	cfg := build(os.Getenv)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Defaults returns the configuration used when no variable is set.
func Defaults() *Config {
	return build(func(string) string { return "" })
}

func build(lookup func(string) string) *Config {
	env := source(lookup)
	llmTimeout := env.duration("LLM_TIMEOUT", 60*time.Second)
	cfg := &Config{
		OpenAI: OpenAIConfig{
			BaseURL:     env.str("OPENAI_BASE_URL", "https://api.openai.com/v1"),
			APIKey:      env.str("OPENAI_API_KEY", ""),
			Model:       env.str("OPENAI_MODEL", "gpt-4o-mini"),
			Temperature: env.float("OPENAI_TEMPERATURE", 0.7),
			MaxTokens:   env.int("OPENAI_MAX_TOKENS", 200),
			Timeout:     llmTimeout,
		},
		LocalLLM: LocalLLMConfig{
			Endpoint: env.str("LOCAL_LLM_API_ENDPOINT", "http://localhost:11434/api/generate"),
			Model:    env.str("LOCAL_LLM_MODEL", "deepseek-r1:1.5b"),
			Timeout:  llmTimeout,
		},
		Solver: SolverConfig{
			BaseURL:       env.str("SOLVER_BASE_URL", "http://localhost:8080"),
			StreamTimeout: env.duration("INVOCATION_TIMEOUT", 0),
		},
		Propagation: PropagationConfig{
			MaxSteps:     env.int("PROPAGATION_MAX_STEPS", 10000),
			RejectCycles: env.bool("REJECT_CYCLES", true),
		},
		Snapshot: SnapshotConfig{
			Store:         strings.ToLower(env.str("SNAPSHOT_STORE", StoreMemory)),
			SQLitePath:    env.str("SQLITE_PATH", "flowgraph.db"),
			DatabaseURL:   env.str("DATABASE_URL", ""),
			BadgerPath:    env.str("BADGER_PATH", ""),
			Compression:   env.str("SNAPSHOT_COMPRESSION", string(serialization.CompressionZstd)),
			EncryptionKey: env.str("SNAPSHOT_ENCRYPTION_KEY", ""),
		},
		App: AppConfig{
			ServerAddr:      env.str("SERVER_ADDR", ":8080"),
			LogLevel:        env.str("LOG_LEVEL", "info"),
			LogFormat:       env.str("LOG_FORMAT", "text"),
			MaxSessions:     env.int("MAX_SESSIONS", 0),
			ShutdownTimeout: env.duration("SHUTDOWN_TIMEOUT", 10*time.Second),
		},
	}
	return cfg
}

// Validate checks if the configuration is valid. A missing OpenAI key is
// not an error here; the remote LLM mode reports it when invoked.
func (c *Config) Validate() error {
	if c.OpenAI.Temperature < 0 || c.OpenAI.Temperature > 2 {
		return fmt.Errorf("OPENAI_TEMPERATURE must be between 0 and 2")
	}
	if c.OpenAI.MaxTokens <= 0 {
		return fmt.Errorf("OPENAI_MAX_TOKENS must be positive")
	}
	if c.App.MaxSessions < 0 {
		return fmt.Errorf("MAX_SESSIONS cannot be negative")
	}
	if c.Propagation.MaxSteps <= 0 {
		return fmt.Errorf("PROPAGATION_MAX_STEPS must be positive")
	}
	switch c.Snapshot.Store {
	case StoreMemory, StoreSQLite, StoreBadger:
	case StorePostgres:
		if c.Snapshot.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres snapshot store")
		}
	default:
		return fmt.Errorf("SNAPSHOT_STORE must be one of memory, sqlite, postgres, badger; got %q", c.Snapshot.Store)
	}
	if _, err := serialization.ParseCompression(c.Snapshot.Compression); err != nil {
		return fmt.Errorf("SNAPSHOT_COMPRESSION: %w", err)
	}
	if _, err := c.encryptionKey(); err != nil {
		return err
	}
	switch strings.ToLower(c.App.LogFormat) {
	case "text", "json":
	default:
		return fmt.Errorf("LOG_FORMAT must be text or json")
	}
	return nil
}

// Serializer builds the snapshot serializer: msgpack with the configured
// compression and optional encryption.
func (c *Config) Serializer() (*serialization.Serializer, error) {
	compression, err := serialization.ParseCompression(c.Snapshot.Compression)
	if err != nil {
		return nil, err
	}
	key, err := c.encryptionKey()
	if err != nil {
		return nil, err
	}
	return serialization.NewSerializer(serialization.Config{
		Codec:       serialization.NewMsgPackCodec(),
		Compression: compression,
		EncryptKey:  key,
	})
}

func (c *Config) encryptionKey() ([]byte, error) {
	if c.Snapshot.EncryptionKey == "" {
		return nil, nil
	}
	key, err := hex.DecodeString(c.Snapshot.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("SNAPSHOT_ENCRYPTION_KEY must be hex: %w", err)
	}
	switch len(key) {
	case 16, 24, 32:
		return key, nil
	}
	return nil, fmt.Errorf("SNAPSHOT_ENCRYPTION_KEY must decode to 16, 24 or 32 bytes")
}

// source parses variables read through a lookup function. Unparseable
// values fall back to the default.
type source func(string) string

func (s source) str(key, defaultValue string) string {
	if value := s(key); value != "" {
		return value
	}
	return defaultValue
}

func (s source) int(key string, defaultValue int) int {
	if valueStr := s(key); valueStr != "" {
		if value, err := strconv.Atoi(valueStr); err == nil {
			return value
		}
	}
	return defaultValue
}

func (s source) float(key string, defaultValue float64) float64 {
	if valueStr := s(key); valueStr != "" {
		if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
			return value
		}
	}
	return defaultValue
}

func (s source) bool(key string, defaultValue bool) bool {
	if valueStr := s(key); valueStr != "" {
		if value, err := strconv.ParseBool(valueStr); err == nil {
			return value
		}
	}
	return defaultValue
}

func (s source) duration(key string, defaultValue time.Duration) time.Duration {
	if valueStr := s(key); valueStr != "" {
		if value, err := time.ParseDuration(valueStr); err == nil {
			return value
		}
	}
	return defaultValue
}
