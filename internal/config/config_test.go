package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var keys = []string{
	"OPENAI_BASE_URL", "OPENAI_API_KEY", "OPENAI_MODEL", "OPENAI_TEMPERATURE", "OPENAI_MAX_TOKENS",
	"LOCAL_LLM_API_ENDPOINT", "LOCAL_LLM_MODEL", "SOLVER_BASE_URL", "INVOCATION_TIMEOUT", "LLM_TIMEOUT",
	"PROPAGATION_MAX_STEPS", "REJECT_CYCLES", "SNAPSHOT_STORE", "SQLITE_PATH", "DATABASE_URL",
	"BADGER_PATH", "SNAPSHOT_COMPRESSION", "SNAPSHOT_ENCRYPTION_KEY", "SERVER_ADDR", "LOG_LEVEL", "LOG_FORMAT",
	"MAX_SESSIONS", "SHUTDOWN_TIMEOUT",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range keys {
		t.Setenv(k, "")
	}
}

func TestFromEnv_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o-mini", cfg.OpenAI.Model)
	assert.Equal(t, 0.7, cfg.OpenAI.Temperature)
	assert.Equal(t, 200, cfg.OpenAI.MaxTokens)
	assert.Equal(t, 60*time.Second, cfg.OpenAI.Timeout)
	assert.Equal(t, "http://localhost:11434/api/generate", cfg.LocalLLM.Endpoint)
	assert.Equal(t, "deepseek-r1:1.5b", cfg.LocalLLM.Model)
	assert.Equal(t, "http://localhost:8080", cfg.Solver.BaseURL)
	assert.Zero(t, cfg.Solver.StreamTimeout)
	assert.Equal(t, 10000, cfg.Propagation.MaxSteps)
	assert.True(t, cfg.Propagation.RejectCycles)
	assert.Equal(t, StoreMemory, cfg.Snapshot.Store)
	assert.Equal(t, ":8080", cfg.App.ServerAddr)
	assert.Zero(t, cfg.App.MaxSessions)
	assert.Equal(t, 10*time.Second, cfg.App.ShutdownTimeout)

	s, err := cfg.Serializer()
	require.NoError(t, err)
	assert.Equal(t, "msgpack+zstd", s.Name())
}

func TestDefaults_IgnoresEnvironment(t *testing.T) {
	t.Setenv("OPENAI_MODEL", "other")
	t.Setenv("SNAPSHOT_STORE", StoreSQLite)

	cfg := Defaults()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "gpt-4o-mini", cfg.OpenAI.Model)
	assert.Equal(t, StoreMemory, cfg.Snapshot.Store)
}

func TestFromEnv_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("OPENAI_TEMPERATURE", "1.2")
	t.Setenv("REJECT_CYCLES", "false")
	t.Setenv("LLM_TIMEOUT", "5s")
	t.Setenv("SNAPSHOT_STORE", "SQLite")
	t.Setenv("SNAPSHOT_ENCRYPTION_KEY", "000102030405060708090a0b0c0d0e0f")
	t.Setenv("PROPAGATION_MAX_STEPS", "not a number")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, 1.2, cfg.OpenAI.Temperature)
	assert.False(t, cfg.Propagation.RejectCycles)
	assert.Equal(t, 5*time.Second, cfg.LocalLLM.Timeout)
	assert.Equal(t, StoreSQLite, cfg.Snapshot.Store)
	assert.Equal(t, 10000, cfg.Propagation.MaxSteps, "unparsable values fall back to defaults")

	s, err := cfg.Serializer()
	require.NoError(t, err)
	assert.Equal(t, "msgpack+zstd+aes", s.Name())
}

func TestFromEnv_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantMsg string
	}{
		{"temperature", map[string]string{"OPENAI_TEMPERATURE": "3"}, "OPENAI_TEMPERATURE"},
		{"max tokens", map[string]string{"OPENAI_MAX_TOKENS": "-1"}, "OPENAI_MAX_TOKENS"},
		{"steps", map[string]string{"PROPAGATION_MAX_STEPS": "0"}, "PROPAGATION_MAX_STEPS"},
		{"store", map[string]string{"SNAPSHOT_STORE": "redis"}, "SNAPSHOT_STORE"},
		{"postgres url", map[string]string{"SNAPSHOT_STORE": "postgres"}, "DATABASE_URL"},
		{"compression", map[string]string{"SNAPSHOT_COMPRESSION": "lz4"}, "SNAPSHOT_COMPRESSION"},
		{"key", map[string]string{"SNAPSHOT_ENCRYPTION_KEY": "abcd"}, "SNAPSHOT_ENCRYPTION_KEY"},
		{"log format", map[string]string{"LOG_FORMAT": "xml"}, "LOG_FORMAT"},
		{"sessions", map[string]string{"MAX_SESSIONS": "-2"}, "MAX_SESSIONS"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := FromEnv()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}
