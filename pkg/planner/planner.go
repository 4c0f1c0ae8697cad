// Package planner turns a natural-language query into a validated execution
// plan: one LLM call, JSON extraction, structural validation and a single
// structured repair round when the first attempt fails.
package planner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"plan-agent/pkg/interp"
	"plan-agent/pkg/llm"
	"plan-agent/pkg/logger"
	"plan-agent/pkg/plan"
	"plan-agent/pkg/tools"
)

// KindUnrecoverable is the stable kind for a planner that failed both the
// initial attempt and the repair round.
const KindUnrecoverable = "planner_unrecoverable"

// PlanError carries the diagnostics from the last failed attempt.
type PlanError struct {
	Kind        string
	Message     string
	Diagnostics []string
}

func (e *PlanError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Config tunes the planner.
type Config struct {
	// IterationHardCap is stated in the prompt and enforced at validation.
	IterationHardCap int

	// SystemVars are names the execution starter seeds (user_query).
	SystemVars []string
}

// Planner is the plan synthesizer.
type Planner struct {
	client   llm.Client
	registry *tools.Registry
	log      logger.Logger
	cfg      Config
}

// New creates a planner over the given completion client and tool registry.
func New(client llm.Client, registry *tools.Registry, log logger.Logger, cfg Config) *Planner {
	if cfg.IterationHardCap <= 0 {
		cfg.IterationHardCap = plan.DefaultIterationHardCap
	}
	if len(cfg.SystemVars) == 0 {
		cfg.SystemVars = []string{"user_query"}
	}
	return &Planner{
		client:   client,
		registry: registry,
		log:      log,
		cfg:      cfg,
	}
}

// Plan produces a validated plan for query. Extraction or validation
// failures trigger exactly one repair round carrying every diagnostic; a
// second failure surfaces as planner_unrecoverable. LLM transport errors
// are not repaired, they pass through.
func (p *Planner) Plan(ctx context.Context, query string) (*plan.Plan, error) {
	systemPrompt := BuildPlanningPrompt(p.registry.Catalog(), p.cfg.IterationHardCap)
	userPrompt := fmt.Sprintf("Create an execution plan for: %s", query)

	p.log.Infof("creating execution plan for query: %s", query)
	output, err := p.client.Complete(ctx, userPrompt, llm.Options{
		SystemPrompt: systemPrompt,
		JSONMode:     true,
	})
	if err != nil {
		return nil, err
	}

	parsed, diagnostics := p.parseAndValidate(output)
	if parsed != nil {
		p.log.Infof("plan created with %d steps", len(parsed.Steps))
		return parsed, nil
	}

	p.log.Warnf("plan rejected with %d diagnostics, attempting repair", len(diagnostics))
	repairPrompt := BuildRepairPrompt(output, diagnostics)
	output, err = p.client.Complete(ctx, repairPrompt, llm.Options{
		SystemPrompt: systemPrompt,
		JSONMode:     true,
	})
	if err != nil {
		return nil, err
	}

	parsed, diagnostics = p.parseAndValidate(output)
	if parsed != nil {
		p.log.Infof("repaired plan accepted with %d steps", len(parsed.Steps))
		return parsed, nil
	}

	p.log.Errorf("plan repair failed: %v", diagnostics)
	return nil, &PlanError{
		Kind:        KindUnrecoverable,
		Message:     "planner output failed validation after one repair round",
		Diagnostics: diagnostics,
	}
}

// parseAndValidate runs extraction, decoding and structural validation,
// returning either a plan or the full diagnostic list.
func (p *Planner) parseAndValidate(output string) (*plan.Plan, []string) {
	obj, err := ExtractJSONObject(output)
	if err != nil {
		return nil, []string{err.Error()}
	}

	raw, err := json.Marshal(obj)
	if err != nil {
		return nil, []string{fmt.Sprintf("malformed_json: %v", err)}
	}
	var parsed plan.Plan
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, []string{fmt.Sprintf("schema_violation: %v", err)}
	}

	errs := plan.Validate(&parsed, plan.ValidateOptions{
		ToolCatalog:    p.registry.Names(),
		SystemVars:     p.cfg.SystemVars,
		CheckCondition: interp.CheckCondition,
	})
	for _, warn := range errs {
		if warn.Warning {
			p.log.Warnf("plan warning: %v", warn)
		}
	}
	if fatal := plan.Fatal(errs); len(fatal) > 0 {
		return nil, plan.Messages(fatal)
	}

	// The iteration hint is a suggestion; the interpreter clamps it to the
	// configured ceiling, so an oversized value is not worth a repair round.
	if parsed.MaxIterations > p.cfg.IterationHardCap {
		p.log.Warnf("plan max_iterations %d exceeds the cap of %d, will be clamped",
			parsed.MaxIterations, p.cfg.IterationHardCap)
	}

	return &parsed, nil
}

// IsUnrecoverable reports whether err is a terminal planner failure.
func IsUnrecoverable(err error) bool {
	var perr *PlanError
	return errors.As(err, &perr) && perr.Kind == KindUnrecoverable
}
