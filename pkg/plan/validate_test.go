package plan

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func kinds(errs []ValidationError) []string {
	out := make([]string, 0, len(errs))
	for _, e := range errs {
		out = append(out, e.Kind)
	}
	return out
}

func validPlan() *Plan {
	return &Plan{
		Steps: []Step{
			{ID: "L1", Type: StepLLM, Prompt: "write about {user_query}",
				InputRefs: []string{"user_query"}, OutputName: "draft"},
			{ID: "C1", Type: StepIf, Condition: "draft == 'ok'", GotoID: "END"},
			{ID: "T1", Type: StepTool, ToolName: "get_current_time", OutputName: "now"},
			{ID: "END", Type: StepEnd},
		},
		MaxIterations: 5,
	}
}

func testOptions() ValidateOptions {
	return ValidateOptions{
		ToolCatalog: []string{"get_current_time", "list_files"},
		SystemVars:  []string{"user_query"},
		CheckCondition: func(condition string) error {
			if condition == "not a condition ===" {
				return errors.New("parse error")
			}
			return nil
		},
	}
}

func TestValidateAcceptsWellFormedPlan(t *testing.T) {
	errs := Validate(validPlan(), testOptions())
	assert.Empty(t, Fatal(errs))
}

func TestValidateEmptyPlan(t *testing.T) {
	errs := Validate(&Plan{}, testOptions())
	require.Len(t, errs, 1)
	assert.Equal(t, KindMissingRequiredField, errs[0].Kind)
}

func TestValidateDuplicateIDs(t *testing.T) {
	p := validPlan()
	p.Steps[2].ID = "L1"
	errs := Validate(p, testOptions())
	assert.Contains(t, kinds(errs), KindDuplicateID)
}

func TestValidateDanglingGoto(t *testing.T) {
	p := validPlan()
	p.Steps[1].GotoID = "MISSING"
	errs := Validate(p, testOptions())
	assert.Contains(t, kinds(errs), KindDanglingGoto)
}

func TestValidateUnknownStepType(t *testing.T) {
	p := validPlan()
	p.Steps[0].Type = "shell"
	errs := Validate(p, testOptions())
	assert.Contains(t, kinds(errs), KindUnknownStepType)
}

func TestValidateDuplicateOutputName(t *testing.T) {
	p := validPlan()
	p.Steps[2].OutputName = "draft"
	errs := Validate(p, testOptions())
	assert.Contains(t, kinds(errs), KindDuplicateOutputName)
}

func TestValidateMissingRequiredFields(t *testing.T) {
	p := &Plan{Steps: []Step{
		{ID: "L1", Type: StepLLM},                   // no prompt, no output_name
		{ID: "T1", Type: StepTool},                  // no tool_name, no output_name
		{ID: "C1", Type: StepIf},                    // no condition, no goto_id
		{ID: "G1", Type: StepGoto},                  // no goto_id
		{ID: "E1", Type: StepEnd},
	}}
	errs := Validate(p, testOptions())
	count := 0
	for _, e := range errs {
		if e.Kind == KindMissingRequiredField {
			count++
		}
	}
	assert.Equal(t, 7, count)
}

func TestValidateUnknownTool(t *testing.T) {
	p := validPlan()
	p.Steps[2].ToolName = "launch_rockets"
	errs := Validate(p, testOptions())
	assert.Contains(t, kinds(errs), KindUnknownTool)
}

func TestValidateBadConditionIsSchemaViolation(t *testing.T) {
	p := validPlan()
	p.Steps[1].Condition = "not a condition ==="
	errs := Validate(p, testOptions())
	assert.Contains(t, kinds(errs), KindSchemaViolation)
}

func TestValidateNegativeIterationCap(t *testing.T) {
	p := validPlan()
	p.MaxIterations = -1
	errs := Validate(p, testOptions())
	assert.Contains(t, kinds(errs), KindInvalidIterationCap)
}

func TestValidateMissingRefIsWarning(t *testing.T) {
	p := validPlan()
	p.Steps[0].InputRefs = []string{"user_query", "later_output"}
	errs := Validate(p, testOptions())

	assert.Contains(t, kinds(errs), KindMissingRef)
	assert.Empty(t, Fatal(errs), "missing_ref must not block execution")
}

func TestValidateCollectsAllDiagnostics(t *testing.T) {
	p := &Plan{
		Steps: []Step{
			{ID: "A", Type: StepLLM, OutputName: "x"},
			{ID: "A", Type: StepGoto, GotoID: "NOWHERE"},
			{ID: "B", Type: "teleport"},
		},
		MaxIterations: -3,
	}
	errs := Validate(p, testOptions())
	got := kinds(errs)
	assert.Contains(t, got, KindInvalidIterationCap)
	assert.Contains(t, got, KindMissingRequiredField)
	assert.Contains(t, got, KindDuplicateID)
	assert.Contains(t, got, KindDanglingGoto)
	assert.Contains(t, got, KindUnknownStepType)
}

func TestEffectiveMaxIterations(t *testing.T) {
	cases := []struct {
		hint, hardCap, fallback, want int
	}{
		{5, 50, 10, 5},
		{0, 50, 10, 10},
		{200, 50, 10, 50},
		{0, 50, 0, 50},
		{7, 0, 10, 7}, // zero cap means the default cap
	}
	for _, tc := range cases {
		p := &Plan{MaxIterations: tc.hint}
		assert.Equal(t, tc.want, p.EffectiveMaxIterations(tc.hardCap, tc.fallback))
	}
}

func TestPlanJSONRoundTrip(t *testing.T) {
	p := validPlan()
	raw, err := json.Marshal(p)
	require.NoError(t, err)

	var decoded Plan
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, *p, decoded)

	// The wire field for steps is "plan", matching planner output.
	assert.Contains(t, string(raw), `"plan":[`)
}

func TestIsIdentifier(t *testing.T) {
	assert.True(t, IsIdentifier("draft"))
	assert.True(t, IsIdentifier("_x9"))
	assert.False(t, IsIdentifier("9lives"))
	assert.False(t, IsIdentifier("has space"))
	assert.False(t, IsIdentifier(""))
}
