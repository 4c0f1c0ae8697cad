// Package plan defines the typed execution plan produced by the planner and
// consumed by the interpreter, together with its structural validator.
package plan

import (
	"regexp"
)

// StepType discriminates the step variants. The set is closed; the validator
// rejects anything else so the interpreter can dispatch exhaustively.
type StepType string

const (
	StepLLM  StepType = "llm"
	StepTool StepType = "tool"
	StepIf   StepType = "if"
	StepGoto StepType = "goto"
	StepEnd  StepType = "end"
)

// DefaultIterationHardCap bounds the max_iterations a plan may request. The
// in-plan value is a planner hint; the configured cap is the hard ceiling.
const DefaultIterationHardCap = 50

// Step is one instruction of a plan. Only the fields of the step's type are
// meaningful; the rest stay at their zero value and are omitted on the wire.
type Step struct {
	ID          string   `json:"id"`
	Type        StepType `json:"type"`
	Description string   `json:"description,omitempty"`

	// llm steps
	Prompt string `json:"prompt,omitempty"`

	// tool steps. Argument values are either literal JSON values or template
	// strings rendered against the environment at execution time.
	ToolName  string                 `json:"tool_name,omitempty"`
	Arguments map[string]interface{} `json:"arguments,omitempty"`

	// if / goto steps
	Condition string `json:"condition,omitempty"`
	GotoID    string `json:"goto_id,omitempty"`

	// Variable flow. InputRefs declares the names a template reads;
	// OutputName binds the step result.
	InputRefs  []string `json:"input_refs,omitempty"`
	OutputName string   `json:"output_name,omitempty"`
}

// Plan is an ordered sequence of labelled steps plus an iteration hint. The
// JSON field names match the planner's output format, so a plan returned by
// the planning endpoint round-trips through the execute endpoint unchanged.
type Plan struct {
	Steps         []Step `json:"plan"`
	MaxIterations int    `json:"max_iterations"`
	Reasoning     string `json:"reasoning,omitempty"`
}

// IndexByID builds the label table used for goto resolution. Later
// duplicates lose; the validator rejects duplicate ids before execution.
func (p *Plan) IndexByID() map[string]int {
	index := make(map[string]int, len(p.Steps))
	for i, step := range p.Steps {
		if _, exists := index[step.ID]; !exists {
			index[step.ID] = i
		}
	}
	return index
}

// EffectiveMaxIterations clamps the plan's iteration hint to the configured
// hard cap. A missing or non-positive hint falls back to fallback.
func (p *Plan) EffectiveMaxIterations(hardCap, fallback int) int {
	if hardCap <= 0 {
		hardCap = DefaultIterationHardCap
	}
	limit := p.MaxIterations
	if limit <= 0 {
		limit = fallback
	}
	if limit <= 0 || limit > hardCap {
		limit = hardCap
	}
	return limit
}

var identifierRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// IsIdentifier reports whether name is a valid variable name.
func IsIdentifier(name string) bool {
	return identifierRe.MatchString(name)
}
