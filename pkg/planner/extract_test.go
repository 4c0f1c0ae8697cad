package planner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractPlainObject(t *testing.T) {
	obj, err := ExtractJSONObject(`{"plan": [], "max_iterations": 5}`)
	require.NoError(t, err)
	assert.Equal(t, float64(5), obj["max_iterations"])
}

func TestExtractFencedObject(t *testing.T) {
	input := "```json\n{\"plan\": [{\"id\": \"A\"}]}\n```"
	obj, err := ExtractJSONObject(input)
	require.NoError(t, err)
	assert.Contains(t, obj, "plan")
}

func TestExtractObjectSurroundedByProse(t *testing.T) {
	input := `Here is the plan you asked for:

{"plan": [], "reasoning": "trivial"}

Let me know if you need changes.`
	obj, err := ExtractJSONObject(input)
	require.NoError(t, err)
	assert.Equal(t, "trivial", obj["reasoning"])
}

func TestExtractBracesInsideStringsDoNotConfuseSpan(t *testing.T) {
	input := `{"reasoning": "use {curly} braces :}", "plan": []}`
	obj, err := ExtractJSONObject(input)
	require.NoError(t, err)
	assert.Equal(t, "use {curly} braces :}", obj["reasoning"])
}

func TestExtractEscapedQuotes(t *testing.T) {
	input := `{"reasoning": "he said \"go\" {", "plan": []}`
	obj, err := ExtractJSONObject(input)
	require.NoError(t, err)
	assert.Equal(t, `he said "go" {`, obj["reasoning"])
}

func TestExtractNoObject(t *testing.T) {
	_, err := ExtractJSONObject("no json here at all")
	require.Error(t, err)

	var xerr *ExtractError
	require.ErrorAs(t, err, &xerr)
	assert.Contains(t, err.Error(), "malformed_json")
}

func TestExtractUnbalancedBraces(t *testing.T) {
	_, err := ExtractJSONObject(`{"plan": [`)
	require.Error(t, err)

	var xerr *ExtractError
	require.ErrorAs(t, err, &xerr)
}

func TestExtractInvalidJSONReportsOffset(t *testing.T) {
	_, err := ExtractJSONObject(`{"plan": [,]}`)
	require.Error(t, err)

	var xerr *ExtractError
	require.ErrorAs(t, err, &xerr)
	assert.Greater(t, xerr.Pos, 0)
}
