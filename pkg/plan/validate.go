package plan

import (
	"fmt"
)

// Validation error kinds. These names are stable: they surface verbatim in
// API error payloads and in the planner's repair prompt.
const (
	KindDuplicateID          = "duplicate_id"
	KindDanglingGoto         = "dangling_goto"
	KindUnknownStepType      = "unknown_step_type"
	KindDuplicateOutputName  = "duplicate_output_name"
	KindMissingRequiredField = "missing_required_field"
	KindInvalidIterationCap  = "invalid_iteration_cap"
	KindUnknownTool          = "unknown_tool"
	KindSchemaViolation      = "schema_violation"
	KindMissingRef           = "missing_ref"
)

// ValidationError describes one structural problem in a plan. Warning errors
// (missing_ref) do not block execution; the runtime substitutes the empty
// string and records the miss.
type ValidationError struct {
	Kind    string `json:"kind"`
	StepID  string `json:"step_id,omitempty"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
	Warning bool   `json:"warning,omitempty"`
}

func (e ValidationError) Error() string {
	if e.StepID != "" {
		return fmt.Sprintf("%s: step %q: %s", e.Kind, e.StepID, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// ValidateOptions carries the context a structural check needs beyond the
// plan itself.
type ValidateOptions struct {
	// ToolCatalog lists the registered tool names. Empty disables the
	// unknown_tool check (used when validating in isolation).
	ToolCatalog []string

	// SystemVars are names seeded into the environment before execution
	// (user_query at minimum); input_refs may reference them freely.
	SystemVars []string

	// CheckCondition syntactically checks an if-step condition. Nil skips
	// the check. Injected by the caller to keep this package free of the
	// expression grammar.
	CheckCondition func(condition string) error
}

// Validate checks every structural invariant and returns the full list of
// violations. It deliberately does not short-circuit: the planner's repair
// prompt wants all diagnostics at once.
func Validate(p *Plan, opts ValidateOptions) []ValidationError {
	var errs []ValidationError

	if len(p.Steps) == 0 {
		errs = append(errs, ValidationError{
			Kind:    KindMissingRequiredField,
			Field:   "plan",
			Message: "plan has no steps",
		})
		return errs
	}

	if p.MaxIterations < 0 {
		errs = append(errs, ValidationError{
			Kind:    KindInvalidIterationCap,
			Field:   "max_iterations",
			Message: fmt.Sprintf("max_iterations must be positive, got %d", p.MaxIterations),
		})
	}

	catalog := make(map[string]bool, len(opts.ToolCatalog))
	for _, name := range opts.ToolCatalog {
		catalog[name] = true
	}

	seenIDs := make(map[string]bool, len(p.Steps))
	seenOutputs := make(map[string]string, len(p.Steps))
	for _, step := range p.Steps {
		if step.ID == "" {
			errs = append(errs, ValidationError{
				Kind:    KindMissingRequiredField,
				Field:   "id",
				Message: "step id must not be empty",
			})
		} else if seenIDs[step.ID] {
			errs = append(errs, ValidationError{
				Kind:    KindDuplicateID,
				StepID:  step.ID,
				Message: fmt.Sprintf("step id %q used more than once", step.ID),
			})
		}
		seenIDs[step.ID] = true

		errs = append(errs, validateStepFields(step, catalog, len(opts.ToolCatalog) > 0, opts.CheckCondition)...)

		if step.OutputName != "" {
			if !IsIdentifier(step.OutputName) {
				errs = append(errs, ValidationError{
					Kind:    KindMissingRequiredField,
					StepID:  step.ID,
					Field:   "output_name",
					Message: fmt.Sprintf("output_name %q is not a valid identifier", step.OutputName),
				})
			} else if prev, dup := seenOutputs[step.OutputName]; dup {
				errs = append(errs, ValidationError{
					Kind:    KindDuplicateOutputName,
					StepID:  step.ID,
					Field:   "output_name",
					Message: fmt.Sprintf("output_name %q already bound by step %q", step.OutputName, prev),
				})
			} else {
				seenOutputs[step.OutputName] = step.ID
			}
		}
	}

	// goto targets resolve against the full id set, forward or backward.
	for _, step := range p.Steps {
		if step.GotoID == "" {
			continue
		}
		if !seenIDs[step.GotoID] {
			errs = append(errs, ValidationError{
				Kind:    KindDanglingGoto,
				StepID:  step.ID,
				Field:   "goto_id",
				Message: fmt.Sprintf("goto target %q does not exist", step.GotoID),
			})
		}
	}

	errs = append(errs, checkInputRefs(p, opts.SystemVars)...)
	return errs
}

// validateStepFields checks per-type required fields.
func validateStepFields(step Step, catalog map[string]bool, haveCatalog bool, checkCondition func(string) error) []ValidationError {
	var errs []ValidationError

	missing := func(field string) {
		errs = append(errs, ValidationError{
			Kind:    KindMissingRequiredField,
			StepID:  step.ID,
			Field:   field,
			Message: fmt.Sprintf("%s step requires %s", step.Type, field),
		})
	}

	switch step.Type {
	case StepLLM:
		if step.Prompt == "" {
			missing("prompt")
		}
		if step.OutputName == "" {
			missing("output_name")
		}
	case StepTool:
		if step.ToolName == "" {
			missing("tool_name")
		} else if haveCatalog && !catalog[step.ToolName] {
			errs = append(errs, ValidationError{
				Kind:    KindUnknownTool,
				StepID:  step.ID,
				Field:   "tool_name",
				Message: fmt.Sprintf("tool %q is not in the catalog", step.ToolName),
			})
		}
		if step.OutputName == "" {
			missing("output_name")
		}
	case StepIf:
		if step.Condition == "" {
			missing("condition")
		} else if checkCondition != nil {
			if err := checkCondition(step.Condition); err != nil {
				errs = append(errs, ValidationError{
					Kind:    KindSchemaViolation,
					StepID:  step.ID,
					Field:   "condition",
					Message: fmt.Sprintf("invalid condition %q: %v", step.Condition, err),
				})
			}
		}
		if step.GotoID == "" {
			missing("goto_id")
		}
	case StepGoto:
		if step.GotoID == "" {
			missing("goto_id")
		}
	case StepEnd:
		// no extra fields
	default:
		errs = append(errs, ValidationError{
			Kind:    KindUnknownStepType,
			StepID:  step.ID,
			Message: fmt.Sprintf("unknown step type %q", step.Type),
		})
	}
	return errs
}

// checkInputRefs verifies that every declared reference is bound by an
// earlier step (in written order) or seeded by the system. Misses are
// warnings: the runtime tolerates them with an empty substitution.
func checkInputRefs(p *Plan, systemVars []string) []ValidationError {
	var errs []ValidationError

	available := make(map[string]bool, len(systemVars))
	for _, name := range systemVars {
		available[name] = true
	}

	for _, step := range p.Steps {
		for _, ref := range step.InputRefs {
			if !IsIdentifier(ref) {
				errs = append(errs, ValidationError{
					Kind:    KindMissingRequiredField,
					StepID:  step.ID,
					Field:   "input_refs",
					Message: fmt.Sprintf("input ref %q is not a valid identifier", ref),
				})
				continue
			}
			if !available[ref] {
				errs = append(errs, ValidationError{
					Kind:    KindMissingRef,
					StepID:  step.ID,
					Field:   "input_refs",
					Message: fmt.Sprintf("input ref %q is not bound by any earlier step", ref),
					Warning: true,
				})
			}
		}
		if step.OutputName != "" {
			available[step.OutputName] = true
		}
	}
	return errs
}

// Fatal filters out warnings, leaving the errors that block execution.
func Fatal(errs []ValidationError) []ValidationError {
	var fatal []ValidationError
	for _, e := range errs {
		if !e.Warning {
			fatal = append(fatal, e)
		}
	}
	return fatal
}

// Messages renders errors as plain strings for diagnostics payloads.
func Messages(errs []ValidationError) []string {
	msgs := make([]string, 0, len(errs))
	for _, e := range errs {
		msgs = append(msgs, e.Error())
	}
	return msgs
}
