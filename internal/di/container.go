package di

import (
	"context"
	"fmt"
	"io"

	"github.com/Neural-Bridge/sql-analyst/internal/adapter/tool"
	"github.com/Neural-Bridge/sql-analyst/internal/application/port/input"
	"github.com/Neural-Bridge/sql-analyst/internal/application/port/output"
	"github.com/Neural-Bridge/sql-analyst/internal/application/service"
	"github.com/Neural-Bridge/sql-analyst/internal/config"
	"github.com/Neural-Bridge/sql-analyst/internal/domain/chart"
	"github.com/Neural-Bridge/sql-analyst/internal/infrastructure/cache"
	"github.com/Neural-Bridge/sql-analyst/internal/infrastructure/database"
	"github.com/Neural-Bridge/sql-analyst/internal/infrastructure/httpapi"
	"github.com/Neural-Bridge/sql-analyst/internal/infrastructure/llm/anthropic"
	"github.com/Neural-Bridge/sql-analyst/internal/infrastructure/llm/cached"
	"github.com/Neural-Bridge/sql-analyst/internal/infrastructure/llm/langchain"
	"github.com/Neural-Bridge/sql-analyst/internal/infrastructure/llm/openrouter"
	"github.com/Neural-Bridge/sql-analyst/internal/infrastructure/logger"
	"github.com/Neural-Bridge/sql-analyst/internal/infrastructure/prompts"
	"github.com/Neural-Bridge/sql-analyst/internal/infrastructure/userinteraction"
	"github.com/Neural-Bridge/sql-analyst/internal/usecase/executor"
)

type Container struct {
	Config   *config.Config
	Logger   output.LoggerPort
	Database output.DatabasePort
	Planner  output.PlannerPort
	Tools    output.ToolRegistry
	Executor *executor.UseCase

	closers []io.Closer
}

// Options adjust a container for one entry point.
type Options struct {
	// LogName names the log file under the configured log directory.
	LogName string
	// Logger replaces the file logger, e.g. with a nop logger in tests.
	Logger   output.LoggerPort
	Renderer output.RendererPort
}

func NewContainer(ctx context.Context, cfg *config.Config, opts Options) (*Container, error) {
	c := &Container{Config: cfg}

	if opts.Logger != nil {
		c.Logger = opts.Logger
	} else {
		log, err := logger.NewLoggerAdapter(cfg.LogDir, opts.LogName)
		if err != nil {
			return nil, fmt.Errorf("failed to create logger: %w", err)
		}
		c.Logger = log
		c.closers = append(c.closers, log)
	}

	db, err := database.Open(ctx, cfg.Database.Driver, cfg.Database.DSN, c.Logger,
		database.WithMaxRows(cfg.Agent.MaxRows))
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	c.Database = db
	c.closers = append(c.closers, db)

	planner, err := c.newPlanner(cfg.LLM)
	if err != nil {
		c.Close()
		return nil, err
	}
	c.Planner, err = c.withCache(planner, cfg)
	if err != nil {
		c.Close()
		return nil, err
	}

	c.Tools = c.newTools(cfg)

	var override *prompts.Override
	if cfg.PromptFile != "" {
		override, err = prompts.LoadOverride(cfg.PromptFile)
		if err != nil {
			c.Close()
			return nil, err
		}
	}
	gen, err := prompts.NewGenerator(prompts.PlannerPrompt, override)
	if err != nil {
		c.Close()
		return nil, err
	}

	renderer := opts.Renderer
	if renderer == nil {
		renderer = userinteraction.NewRecorder()
	}
	c.Executor = executor.New(c.Planner, c.Tools, prompts.NewBuilder(gen, db.Dialect()), renderer, c.Logger,
		executor.Config{MaxSteps: cfg.Agent.MaxSteps, PlannerTimeout: cfg.Agent.PlannerTimeout})

	c.Logger.Info("container ready",
		"provider", cfg.LLM.Provider,
		"model", cfg.LLM.Model,
		"dialect", db.Dialect(),
		"chart", cfg.Agent.EnableChart,
	)
	return c, nil
}

func (c *Container) newPlanner(cfg config.LLMConfig) (output.PlannerPort, error) {
	switch cfg.Provider {
	case config.ProviderOpenAI, config.ProviderOpenRouter:
		baseURL := cfg.BaseURL
		if baseURL == "" && cfg.Provider == config.ProviderOpenAI {
			baseURL = openrouter.OpenAIBaseURL
		}
		llmCfg := openrouter.DefaultConfig(cfg.APIKey, cfg.Model)
		if baseURL != "" {
			llmCfg.BaseURL = baseURL
		}
		llmCfg.Temperature = float32(cfg.Temperature)
		llmCfg.Logger = c.Logger
		return openrouter.NewOpenRouterAdapter(llmCfg), nil
	case config.ProviderAnthropic:
		return anthropic.New(anthropic.Config{
			APIKey:      cfg.APIKey,
			Model:       cfg.Model,
			BaseURL:     cfg.BaseURL,
			Temperature: cfg.Temperature,
			Logger:      c.Logger,
		}), nil
	case config.ProviderOllama:
		return langchain.NewOllama(cfg.BaseURL, cfg.Model, cfg.Temperature, c.Logger)
	default:
		return nil, fmt.Errorf("unsupported LLM provider %q", cfg.Provider)
	}
}

func (c *Container) withCache(planner output.PlannerPort, cfg *config.Config) (output.PlannerPort, error) {
	if cfg.Cache.Disabled {
		return planner, nil
	}
	var store output.CompletionCache = cache.NewMemory(cfg.Cache.Size, 0)
	if cfg.Cache.Path != "" {
		disk, err := cache.OpenSQLite(cfg.Cache.Path, c.Logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open completion cache: %w", err)
		}
		c.closers = append(c.closers, disk)
		store = cache.NewTiered(store, disk)
	}
	return cached.New(planner, store, c.Logger, cfg.LLM.CacheParams()...).WithCallTimeout(cfg.Agent.PlannerTimeout), nil
}

func (c *Container) newTools(cfg *config.Config) *service.ToolRegistryImpl {
	registry := service.NewToolRegistry(c.Logger).WithMaxObservationBytes(cfg.Agent.MaxObservationBytes)
	query := tool.NewQueryDatabaseTool(c.Database, c.Logger, cfg.Agent.QueryTimeout, cfg.Agent.MaxRows)

	registry.Register(tool.NewListTablesTool(c.Database, c.Logger))
	registry.Register(tool.NewDescribeTablesTool(query, c.Logger))
	registry.Register(query)
	if cfg.Agent.EnableChart {
		registry.Register(tool.NewVisualizeDataTool(chart.NewSandbox(), c.Logger))
	}
	return registry
}

// Runner returns a runner that reports to renderer.
func (c *Container) Runner(renderer output.RendererPort) input.QueryRunner {
	return c.Executor.WithRenderer(renderer)
}

// HTTPServer builds the HTTP API over this container.
func (c *Container) HTTPServer(opts httpapi.Options) *httpapi.Server {
	return httpapi.NewServer(c.Runner, c.Tools.ListTools(), c.Logger, opts)
}

func (c *Container) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i].Close(); err != nil && c.Logger != nil {
			c.Logger.Warn("close failed", "error", err)
		}
	}
	c.closers = nil
}
