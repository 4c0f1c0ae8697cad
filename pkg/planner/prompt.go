package planner

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/invopop/jsonschema"

	"plan-agent/pkg/plan"
	"plan-agent/pkg/tools"
)

const planningInstructions = `You are an AI planning assistant. Analyze the user's request and produce a structured execution plan.

The plan is a JSON object with a "plan" array of steps, a "max_iterations" estimate and a "reasoning" string.

Step types:

1. "llm" - a direct query to the language model.
   Fields: "prompt" (may reference earlier outputs as {name}), "input_refs", "output_name".
   Example: {"id": "L1", "type": "llm", "description": "Answer the question", "prompt": "Why is the sky blue?", "output_name": "answer"}

2. "tool" - invoke one of the available tools listed below.
   Fields: "tool_name", "arguments" (literal values or {name} templates), "input_refs", "output_name".
   Example: {"id": "T1", "type": "tool", "description": "List files", "tool_name": "list_files", "arguments": {"path": "."}, "output_name": "file_list"}

3. "if" - jump to "goto_id" when "condition" is true, otherwise fall through.
   Conditions compare variables with ==, !=, <, <=, >, >= and combine with &&, || and !.
   Example: {"id": "C1", "type": "if", "condition": "quality_score >= 8", "goto_id": "END"}

4. "goto" - unconditional jump, used for loops.
   Example: {"id": "LOOP", "type": "goto", "goto_id": "L2"}

5. "end" - marks completion. Always include one as the final step: {"id": "END", "type": "end"}

Rules:
- Every step id must be unique. Every goto_id must name an existing step.
- Every output_name must be unique; outputs are write-once.
- Declare every earlier output a prompt or argument references in "input_refs".
- Only use tools from the catalog below. Never invent a tool name.
- The seeded variable {user_query} holds the user's original request.

Example plan for "Write a short story and improve it once":

{
  "plan": [
    {"id": "L1", "type": "llm", "description": "Write the story", "prompt": "Write a short story about: {user_query}", "input_refs": ["user_query"], "output_name": "draft"},
    {"id": "L2", "type": "llm", "description": "Critique the story", "prompt": "Critique this story: {draft}", "input_refs": ["draft"], "output_name": "critique"},
    {"id": "L3", "type": "llm", "description": "Improve the story", "prompt": "Rewrite this story: {draft} addressing: {critique}", "input_refs": ["draft", "critique"], "output_name": "final"},
    {"id": "END", "type": "end"}
  ],
  "max_iterations": 5,
  "reasoning": "Draft, critique, improve, done."
}`

// planSchemaJSON reflects the Plan type into a JSON schema once so the
// planner prompt stays in lockstep with the Go types.
func planSchemaJSON() string {
	reflector := jsonschema.Reflector{DoNotReference: true}
	schema := reflector.Reflect(&plan.Plan{})
	raw, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		// Reflection over our own types cannot fail at runtime.
		return "{}"
	}
	return string(raw)
}

// BuildPlanningPrompt composes the system prompt: instructions, the plan
// schema, the tool catalog and the iteration ceiling.
func BuildPlanningPrompt(catalog []tools.Info, iterationHardCap int) string {
	var b strings.Builder
	b.WriteString(planningInstructions)

	b.WriteString("\n\nThe response must be a single JSON object matching this schema exactly:\n")
	b.WriteString(planSchemaJSON())

	b.WriteString("\n\nAvailable tools:\n")
	if len(catalog) == 0 {
		b.WriteString("(none - use only llm, if, goto and end steps)\n")
	} else {
		raw, err := json.MarshalIndent(catalog, "", "  ")
		if err == nil {
			b.Write(raw)
			b.WriteString("\n")
		}
	}

	fmt.Fprintf(&b, "\nmax_iterations must be a positive integer no greater than %d.\n", iterationHardCap)
	b.WriteString("Respond with ONLY the JSON object. No prose, no markdown fences.")
	return b.String()
}

// BuildRepairPrompt asks the model to fix its previous output, carrying the
// complete diagnostic list so one round can address every problem.
func BuildRepairPrompt(previousOutput string, diagnostics []string) string {
	var b strings.Builder
	b.WriteString("Your previous plan was rejected. Fix ALL of the problems listed below and return the corrected plan.\n\n")
	b.WriteString("Previous output:\n")
	b.WriteString(previousOutput)
	b.WriteString("\n\nProblems:\n")
	for _, d := range diagnostics {
		b.WriteString("- ")
		b.WriteString(d)
		b.WriteString("\n")
	}
	b.WriteString("\nRespond with ONLY the corrected JSON object. No prose, no markdown fences.")
	return b.String()
}
