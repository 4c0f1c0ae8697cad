package interp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"plan-agent/internal/tokens"
	"plan-agent/pkg/events"
	"plan-agent/pkg/llm"
	"plan-agent/pkg/logger"
	"plan-agent/pkg/plan"
	"plan-agent/pkg/tools"
)

// DefaultSystemPrompt frames each llm step as one focused task. Callers may
// override it through Config.
const DefaultSystemPrompt = `You are an AI assistant executing a single step of a larger plan.
Focus only on the instruction you are given. Produce the requested output
directly, without commentary about the plan or about other steps.`

// Failure reasons that do not originate in the LLM client or a tool.
const (
	ReasonIterationCap  = "iteration_cap_exceeded"
	ReasonDanglingGoto  = "dangling_goto"
	ReasonBadCondition  = "schema_violation"
	ReasonDuplicateBind = "duplicate_binding"
)

// Observer receives lifecycle events as the interpreter runs. The execution
// record implements it; tests use a slice collector.
type Observer interface {
	Publish(ev events.Event)
}

// Status is the terminal state of one run.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusStopped   Status = "stopped"
)

// Result describes how a run ended.
type Result struct {
	Status      Status
	FinalResult string
	Reason      string
	Err         error
}

// Config carries the interpreter's tunables.
type Config struct {
	// SystemPrompt frames llm steps as single-step executions.
	SystemPrompt string

	// IterationHardCap is the ceiling on any plan's max_iterations hint.
	// Zero means plan.DefaultIterationHardCap.
	IterationHardCap int

	// DefaultIterations applies when a plan carries no hint.
	DefaultIterations int
}

// Interpreter executes validated plans. One Interpreter is shared across
// executions; all per-run state lives in the arguments to Run.
type Interpreter struct {
	llm    llm.Client
	tools  *tools.Registry
	budget *tokens.Budgeter
	log    logger.Logger
	cfg    Config
}

// New creates an interpreter. budget may be nil to disable prompt clamping.
func New(client llm.Client, registry *tools.Registry, budget *tokens.Budgeter, log logger.Logger, cfg Config) *Interpreter {
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = DefaultSystemPrompt
	}
	return &Interpreter{
		llm:    client,
		tools:  registry,
		budget: budget,
		log:    log,
		cfg:    cfg,
	}
}

// Run executes p against env, publishing lifecycle events to obs. It runs
// on the caller's goroutine; callers wanting background execution spawn it
// themselves. Cancellation is checked between steps and propagated into
// in-flight LLM and tool calls through ctx.
func (it *Interpreter) Run(ctx context.Context, p *plan.Plan, env *Environment, obs Observer) Result {
	index := p.IndexByID()
	maxIterations := p.EffectiveMaxIterations(it.cfg.IterationHardCap, it.cfg.DefaultIterations)

	obs.Publish(events.NewExecutionStarted(time.Now().UTC()))
	it.log.Infof("executing plan: %d steps, max iterations %d", len(p.Steps), maxIterations)

	pc := 0
	iteration := 0
	finalResult := ""

	for {
		select {
		case <-ctx.Done():
			obs.Publish(events.NewExecutionStopped(time.Now().UTC()))
			return Result{Status: StatusStopped}
		default:
		}

		// Fall-off past the last step is an implicit end.
		if pc >= len(p.Steps) {
			obs.Publish(events.NewExecutionCompleted(finalResult, time.Now().UTC()))
			return Result{Status: StatusCompleted, FinalResult: finalResult}
		}

		if iteration >= maxIterations {
			err := fmt.Errorf("iteration cap %d exceeded", maxIterations)
			obs.Publish(events.NewExecutionFailed(ReasonIterationCap, err.Error(), time.Now().UTC()))
			return Result{Status: StatusFailed, Reason: ReasonIterationCap, Err: err}
		}

		step := p.Steps[pc]
		iteration++
		obs.Publish(events.NewStepStarted(step.ID, string(step.Type), step.Description))
		it.log.Infof("iteration %d: executing step %s (%s)", iteration, step.ID, step.Type)

		switch step.Type {
		case plan.StepLLM:
			output, err := it.runLLMStep(ctx, step, env)
			if err != nil {
				return it.failStep(ctx, obs, step, err, llm.KindOf(err))
			}
			if err := env.Bind(step.OutputName, output); err != nil {
				return it.failStep(ctx, obs, step, err, ReasonDuplicateBind)
			}
			finalResult = output
			obs.Publish(events.NewStepCompleted(step.ID, true, output, ""))
			pc++

		case plan.StepTool:
			output, err := it.runToolStep(ctx, step, env)
			if err != nil {
				return it.failStep(ctx, obs, step, err, tools.KindOf(err))
			}
			if err := env.Bind(step.OutputName, output); err != nil {
				return it.failStep(ctx, obs, step, err, ReasonDuplicateBind)
			}
			finalResult = output
			obs.Publish(events.NewStepCompleted(step.ID, true, output, ""))
			pc++

		case plan.StepIf:
			taken, warnings, err := EvalCondition(step.Condition, env)
			if err != nil {
				return it.failStep(ctx, obs, step, fmt.Errorf("condition %q: %w", step.Condition, err), ReasonBadCondition)
			}
			for _, w := range warnings {
				it.log.Warnf("step %s condition: %s", step.ID, w)
			}
			if taken {
				target, ok := index[step.GotoID]
				if !ok {
					return it.failStep(ctx, obs, step, fmt.Errorf("goto target %q not found", step.GotoID), ReasonDanglingGoto)
				}
				pc = target
				obs.Publish(events.NewStepCompleted(step.ID, true, "branch-taken", ""))
			} else {
				pc++
				obs.Publish(events.NewStepCompleted(step.ID, true, "branch-not-taken", ""))
			}

		case plan.StepGoto:
			target, ok := index[step.GotoID]
			if !ok {
				return it.failStep(ctx, obs, step, fmt.Errorf("goto target %q not found", step.GotoID), ReasonDanglingGoto)
			}
			pc = target
			obs.Publish(events.NewStepCompleted(step.ID, true, "", ""))

		case plan.StepEnd:
			obs.Publish(events.NewStepCompleted(step.ID, true, "", ""))
			obs.Publish(events.NewExecutionCompleted(finalResult, time.Now().UTC()))
			return Result{Status: StatusCompleted, FinalResult: finalResult}

		default:
			// Unreachable for validated plans.
			err := fmt.Errorf("unknown step type %q", step.Type)
			return it.failStep(ctx, obs, step, err, plan.KindUnknownStepType)
		}
	}
}

// runLLMStep renders the step prompt, clamps it to the context budget and
// calls the completion client.
func (it *Interpreter) runLLMStep(ctx context.Context, step plan.Step, env *Environment) (string, error) {
	rendered, _, missing := env.Render(step.Prompt)
	for _, name := range missing {
		it.log.Warnf("step %s: missing_ref %q substituted with empty string", step.ID, name)
	}

	clamped, truncated := it.budget.Clamp(rendered)
	if truncated {
		it.log.Warnf("step %s: prompt truncated to context budget", step.ID)
	}

	return it.llm.Complete(ctx, clamped, llm.Options{SystemPrompt: it.cfg.SystemPrompt})
}

// runToolStep renders templated argument values and dispatches. Rendering a
// template always yields a string; literal arguments pass through untouched.
func (it *Interpreter) runToolStep(ctx context.Context, step plan.Step, env *Environment) (string, error) {
	args := make(map[string]interface{}, len(step.Arguments))
	for key, value := range step.Arguments {
		if text, ok := value.(string); ok {
			rendered, _, missing := env.Render(text)
			for _, name := range missing {
				it.log.Warnf("step %s: missing_ref %q in argument %q", step.ID, name, key)
			}
			args[key] = rendered
		} else {
			args[key] = value
		}
	}
	return it.tools.Dispatch(ctx, step.ToolName, args)
}

// failStep closes the step and the execution. A cancellation surfacing
// through an in-flight call exits as stopped rather than failed.
func (it *Interpreter) failStep(ctx context.Context, obs Observer, step plan.Step, err error, reason string) Result {
	message := errorMessage(err)
	obs.Publish(events.NewStepCompleted(step.ID, false, "", message))

	if ctx.Err() != nil || errors.Is(err, context.Canceled) || reason == llm.KindCancelled {
		obs.Publish(events.NewExecutionStopped(time.Now().UTC()))
		return Result{Status: StatusStopped, Err: err}
	}

	it.log.Errorf("step %s failed (%s): %v", step.ID, reason, err)
	obs.Publish(events.NewExecutionFailed(reason, message, time.Now().UTC()))
	return Result{Status: StatusFailed, Reason: reason, Err: err}
}

// errorMessage strips the kind prefix wrappers add, keeping event payloads
// close to the underlying handler message.
func errorMessage(err error) string {
	var terr *tools.ToolError
	if errors.As(err, &terr) {
		return terr.Message
	}
	var lerr *llm.Error
	if errors.As(err, &lerr) {
		if lerr.Err != nil {
			return lerr.Err.Error()
		}
		return lerr.Message
	}
	return err.Error()
}
