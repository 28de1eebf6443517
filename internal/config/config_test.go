package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Neural-Bridge/sql-analyst/internal/infrastructure/env"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(env.NewStaticEnv(map[string]string{
		"OPENAI_API_KEY": "sk-test",
		"DB_DSN":         "chinook.db",
	}))

	require.NoError(t, err)
	assert.Equal(t, ProviderOpenAI, cfg.LLM.Provider)
	assert.Equal(t, "gpt-4o", cfg.LLM.Model)
	assert.Equal(t, "sk-test", cfg.LLM.APIKey)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.True(t, cfg.Agent.EnableChart)
	assert.Equal(t, 10, cfg.Agent.MaxSteps)
	assert.Equal(t, 30*time.Second, cfg.Agent.QueryTimeout)
	assert.Equal(t, 200, cfg.Agent.MaxRows)
	assert.Equal(t, 20000, cfg.Agent.MaxObservationBytes)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Empty(t, cfg.Cache.Path)
	assert.Equal(t, 0, cfg.Cache.Size)
}

func TestLoad_Overrides(t *testing.T) {
	cfg, err := Load(env.NewStaticEnv(map[string]string{
		"LLM_PROVIDER":      "Anthropic",
		"ANTHROPIC_API_KEY": "key",
		"OPENAI_API_KEY":    "ignored",
		"DB_DRIVER":         "postgres",
		"DB_DSN":            "postgres://localhost/chinook",
		"ENABLE_CHART":      "false",
		"MAX_STEPS":         "4",
		"PLANNER_TIMEOUT":   "45",
		"QUERY_TIMEOUT":     "5s",
		"CACHE_PATH":        "/tmp/llm.db",
		"LLM_TEMPERATURE":   "0.2",
	}))

	require.NoError(t, err)
	assert.Equal(t, ProviderAnthropic, cfg.LLM.Provider)
	assert.Equal(t, "claude-3-5-sonnet-latest", cfg.LLM.Model)
	assert.Equal(t, "key", cfg.LLM.APIKey)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.False(t, cfg.Agent.EnableChart)
	assert.Equal(t, 4, cfg.Agent.MaxSteps)
	assert.Equal(t, 45*time.Second, cfg.Agent.PlannerTimeout)
	assert.Equal(t, 5*time.Second, cfg.Agent.QueryTimeout)
	assert.Equal(t, "/tmp/llm.db", cfg.Cache.Path)
	assert.Equal(t, []string{"anthropic", "claude-3-5-sonnet-latest", "", "0.2"}, cfg.LLM.CacheParams())
}

func TestLoad_OllamaNeedsNoKey(t *testing.T) {
	cfg, err := Load(env.NewStaticEnv(map[string]string{
		"LLM_PROVIDER": "ollama",
		"DB_DSN":       "chinook.db",
	}))

	require.NoError(t, err)
	assert.Equal(t, "llama3.1", cfg.LLM.Model)
	assert.Empty(t, cfg.LLM.APIKey)
}

func TestLoad_Invalid(t *testing.T) {
	cases := []struct {
		name string
		vars map[string]string
		want string
	}{
		{"unknown provider", map[string]string{"LLM_PROVIDER": "palm", "DB_DSN": "x"}, "LLM_PROVIDER"},
		{"missing key", map[string]string{"LLM_PROVIDER": "openrouter", "DB_DSN": "x"}, "OPENROUTER_API_KEY"},
		{"missing dsn", map[string]string{"OPENAI_API_KEY": "k"}, "DB_DSN"},
		{"bad driver", map[string]string{"OPENAI_API_KEY": "k", "DB_DSN": "x", "DB_DRIVER": "oracle"}, "DB_DRIVER"},
		{"zero steps", map[string]string{"OPENAI_API_KEY": "k", "DB_DSN": "x", "MAX_STEPS": "0"}, "MAX_STEPS"},
		{"temperature", map[string]string{"OPENAI_API_KEY": "k", "DB_DSN": "x", "LLM_TEMPERATURE": "3"}, "LLM_TEMPERATURE"},
		{"negative cache size", map[string]string{"OPENAI_API_KEY": "k", "DB_DSN": "x", "CACHE_SIZE": "-1"}, "CACHE_SIZE"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(env.NewStaticEnv(tc.vars))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}
