// Package app wires the engine components from configuration. Both the CLI
// runner and the API server build the same stack through it.
package app

import (
	"fmt"
	"time"

	"plan-agent/internal/config"
	"plan-agent/internal/tokens"
	"plan-agent/pkg/execution"
	"plan-agent/pkg/interp"
	"plan-agent/pkg/llm"
	"plan-agent/pkg/logger"
	"plan-agent/pkg/plan"
	"plan-agent/pkg/planner"
	"plan-agent/pkg/tools"
)

// App bundles the wired engine: planner, tool registry and the execution
// registry that launches interpreter runs.
type App struct {
	Config     config.Config
	Log        logger.Logger
	Tools      *tools.Registry
	Planner    *planner.Planner
	Executions *execution.Registry
}

// New builds the full stack: LLM client, tool registry with the built-in
// tools, token budgeter, interpreter, planner and execution registry.
func New(cfg config.Config, log logger.Logger) (*App, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("LLM_API_KEY is not set")
	}

	client, err := llm.NewOpenAI(llm.Config{
		APIKey:      cfg.APIKey,
		Model:       cfg.Model,
		BaseURL:     cfg.BaseURL,
		Temperature: cfg.Temperature,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create LLM client: %w", err)
	}

	registry := tools.NewRegistry(log)
	if err := registry.Register(tools.NewCurrentTimeTool()); err != nil {
		return nil, err
	}
	if err := registry.Register(tools.NewListFilesTool(cfg.ListFilesLimit)); err != nil {
		return nil, err
	}

	budget, err := tokens.NewBudgeter(cfg.MaxContextTokens, cfg.ContextTokenBuffer)
	if err != nil {
		return nil, fmt.Errorf("failed to create token budgeter: %w", err)
	}

	it := interp.New(client, registry, budget, log, interp.Config{
		DefaultIterations: cfg.MaxAgentIterations,
	})

	return &App{
		Config: cfg,
		Log:    log,
		Tools:  registry,
		Planner: planner.New(client, registry, log, planner.Config{
			SystemVars: []string{"user_query"},
		}),
		Executions: execution.NewRegistry(it, log, execution.Config{
			GracePeriod:      time.Duration(cfg.ExecutionGraceSeconds) * time.Second,
			SubscriberBuffer: cfg.SubscriberBuffer,
		}),
	}, nil
}

// ValidateOptions is the structural gate applied to client-supplied plans,
// identical to the one the planner applies to its own output.
func (a *App) ValidateOptions() plan.ValidateOptions {
	return plan.ValidateOptions{
		ToolCatalog:    a.Tools.Names(),
		SystemVars:     []string{"user_query"},
		CheckCondition: interp.CheckCondition,
	}
}
