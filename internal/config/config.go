// Package config builds the application configuration from the environment.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/Neural-Bridge/sql-analyst/internal/application/port/output"
)

const (
	ProviderOpenAI     = "openai"
	ProviderOpenRouter = "openrouter"
	ProviderAnthropic  = "anthropic"
	ProviderOllama     = "ollama"
)

var defaultModels = map[string]string{
	ProviderOpenAI:     "gpt-4o",
	ProviderOpenRouter: "openai/gpt-4o",
	ProviderAnthropic:  "claude-3-5-sonnet-latest",
	ProviderOllama:     "llama3.1",
}

var apiKeyVars = map[string]string{
	ProviderOpenAI:     "OPENAI_API_KEY",
	ProviderOpenRouter: "OPENROUTER_API_KEY",
	ProviderAnthropic:  "ANTHROPIC_API_KEY",
}

var drivers = map[string]bool{"sqlite": true, "postgres": true, "mysql": true}

type Config struct {
	LLM      LLMConfig
	Database DatabaseConfig
	Agent    AgentConfig
	Cache    CacheConfig

	ChartDir   string
	HTTPAddr   string
	LogDir     string
	PromptFile string
}

type LLMConfig struct {
	Provider    string
	Model       string
	APIKey      string
	BaseURL     string
	Temperature float64
}

type DatabaseConfig struct {
	Driver string
	DSN    string
}

type AgentConfig struct {
	EnableChart         bool
	MaxSteps            int
	PlannerTimeout      time.Duration
	QueryTimeout        time.Duration
	MaxRows             int
	MaxObservationBytes int
}

type CacheConfig struct {
	// Path of the SQLite completion cache; empty keeps completions in
	// memory only.
	Path string
	Size int
	// Disabled turns completion caching off entirely.
	Disabled bool
}

// Load reads configuration through env and validates it.
func Load(env output.ConfigPort) (*Config, error) {
	provider := strings.ToLower(env.GetWithDefault("LLM_PROVIDER", ProviderOpenAI))

	cfg := &Config{
		LLM: LLMConfig{
			Provider:    provider,
			Model:       env.GetWithDefault("LLM_MODEL", defaultModels[provider]),
			BaseURL:     env.Get("LLM_BASE_URL"),
			Temperature: env.GetFloat("LLM_TEMPERATURE", 0),
		},
		Database: DatabaseConfig{
			Driver: strings.ToLower(env.GetWithDefault("DB_DRIVER", "sqlite")),
			DSN:    env.Get("DB_DSN"),
		},
		Agent: AgentConfig{
			EnableChart:         env.GetBool("ENABLE_CHART", true),
			MaxSteps:            env.GetInt("MAX_STEPS", 10),
			PlannerTimeout:      env.GetDuration("PLANNER_TIMEOUT", 2*time.Minute),
			QueryTimeout:        env.GetDuration("QUERY_TIMEOUT", 30*time.Second),
			MaxRows:             env.GetInt("MAX_ROWS", 200),
			MaxObservationBytes: env.GetInt("MAX_OBSERVATION_BYTES", 20000),
		},
		Cache: CacheConfig{
			Path:     env.Get("CACHE_PATH"),
			Size:     env.GetInt("CACHE_SIZE", 0),
			Disabled: env.GetBool("CACHE_DISABLED", false),
		},
		ChartDir:   env.GetWithDefault("CHART_DIR", "charts"),
		HTTPAddr:   env.GetWithDefault("HTTP_ADDR", ":8080"),
		LogDir:     env.GetWithDefault("LOG_DIR", "log"),
		PromptFile: env.Get("PROMPT_FILE"),
	}
	if key, ok := apiKeyVars[provider]; ok {
		cfg.LLM.APIKey = env.Get(key)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if _, ok := defaultModels[c.LLM.Provider]; !ok {
		return fmt.Errorf("LLM_PROVIDER %q is not one of openai, openrouter, anthropic, ollama", c.LLM.Provider)
	}
	if key, ok := apiKeyVars[c.LLM.Provider]; ok && c.LLM.APIKey == "" {
		return fmt.Errorf("%s cannot be empty for provider %s", key, c.LLM.Provider)
	}
	if c.LLM.Model == "" {
		return fmt.Errorf("LLM_MODEL cannot be empty")
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		return fmt.Errorf("LLM_TEMPERATURE must be between 0 and 2")
	}
	if !drivers[c.Database.Driver] {
		return fmt.Errorf("DB_DRIVER %q is not one of sqlite, postgres, mysql", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("DB_DSN cannot be empty")
	}
	if c.Agent.MaxSteps <= 0 {
		return fmt.Errorf("MAX_STEPS must be > 0")
	}
	if c.Agent.MaxRows <= 0 {
		return fmt.Errorf("MAX_ROWS must be > 0")
	}
	if c.Agent.PlannerTimeout < 0 || c.Agent.QueryTimeout < 0 {
		return fmt.Errorf("timeouts cannot be negative")
	}
	if c.Agent.MaxObservationBytes < 0 {
		return fmt.Errorf("MAX_OBSERVATION_BYTES cannot be negative")
	}
	if c.Cache.Size < 0 {
		return fmt.Errorf("CACHE_SIZE cannot be negative")
	}
	if c.HTTPAddr == "" {
		return fmt.Errorf("HTTP_ADDR cannot be empty")
	}
	return nil
}

// CacheParams identifies the model settings a cached completion depends on.
func (c LLMConfig) CacheParams() []string {
	return []string{c.Provider, c.Model, c.BaseURL, fmt.Sprintf("%g", c.Temperature)}
}
