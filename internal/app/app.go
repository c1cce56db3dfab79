// Package app wires configuration into the running object graph shared by
// the binaries.
package app

import (
	"fmt"

	"clawderous/internal/config"
	"clawderous/internal/dispatch"
	"clawderous/internal/fetch"
	"clawderous/internal/handler"
	"clawderous/internal/pipeline"
	"clawderous/internal/provider"
	"clawderous/internal/redisstore"
	"clawderous/internal/summarize"
	"clawderous/internal/workflow"

	"go.uber.org/zap"
)

type App struct {
	Config    *config.Config
	Logger    *zap.Logger
	Store     *redisstore.Store
	Providers *provider.Registry
	Provider  provider.Provider
	Commands  *dispatch.Registry
	Processor *pipeline.Processor
}

// New connects to Redis, resolves the active provider and builds a frozen
// command registry behind a processor.
func New(cfg *config.Config, logger *zap.Logger) (*App, error) {
	store, err := redisstore.New(cfg.RedisURL, cfg.DedupeTTLSeconds)
	if err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	providers, active, err := provider.FromConfig(cfg, logger)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("email provider: %w", err)
	}

	commands, err := Commands(cfg, store, active, logger)
	if err != nil {
		store.Close()
		return nil, err
	}

	proc := pipeline.NewProcessor(dispatch.NewDispatcher(commands, logger), active, pipeline.Options{
		Seen:           store,
		Allowlist:      store,
		AllowedSenders: cfg.AllowedSenders,
		SendTimeout:    cfg.SendTimeout,
		Logger:         logger.Named("pipeline"),
	})

	return &App{
		Config:    cfg,
		Logger:    logger,
		Store:     store,
		Providers: providers,
		Provider:  active,
		Commands:  commands,
		Processor: proc,
	}, nil
}

// Commands registers the built-in handlers against the given collaborators
// and freezes the registry.
func Commands(cfg *config.Config, store *redisstore.Store, sender handler.Sender, logger *zap.Logger) (*dispatch.Registry, error) {
	var runner *workflow.HTTPRunner
	if cfg.WorkflowURL != "" {
		runner = workflow.NewHTTPRunner(cfg.WorkflowURL, cfg.WorkflowToken,
			provider.NewHTTPClient(cfg.FetchTimeout), logger.Named("workflow"))
	}

	deps := &handler.Deps{
		Sender:     sender,
		Fetcher:    fetch.NewHTTPFetcher(cfg.FetchTimeout, cfg.MaxFetchBytes, logger.Named("fetch")),
		Summarizer: Summarizer(cfg, runner, logger),
		BaseURL:    cfg.ArtifactBaseURL,
		Logger:     logger.Named("handler"),
	}
	if store != nil {
		deps.Store = store
		deps.Journal = store
	}
	if runner != nil {
		deps.Workflows = runner
	}

	reg := dispatch.NewRegistry()
	if err := handler.RegisterAll(reg, deps); err != nil {
		return nil, fmt.Errorf("register commands: %w", err)
	}
	reg.Freeze()
	return reg, nil
}

// Summarizer is the rule-based summarizer, fronted by the configured
// summarize workflow when there is one.
func Summarizer(cfg *config.Config, runner *workflow.HTTPRunner, logger *zap.Logger) summarize.Summarizer {
	if runner == nil || cfg.SummarizeWorkflow == "" {
		return summarize.Rules{}
	}
	return summarize.Chain{
		Primary: summarize.Workflow{Runner: runner, Name: cfg.SummarizeWorkflow},
		Logger:  logger.Named("summarize"),
	}
}

func (a *App) Close() error {
	return a.Store.Close()
}
