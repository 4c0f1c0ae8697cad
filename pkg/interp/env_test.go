package interp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvironmentBindIsWriteOnce(t *testing.T) {
	env := NewEnvironment()

	require.NoError(t, env.Bind("draft", "first"))
	err := env.Bind("draft", "second")
	require.Error(t, err)

	var dup *ErrDuplicateBinding
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "draft", dup.Name)

	v, ok := env.Lookup("draft")
	assert.True(t, ok)
	assert.Equal(t, "first", v)
}

func TestEnvironmentSeedOverwrites(t *testing.T) {
	env := NewEnvironment()
	env.Seed("user_query", "old")
	env.Seed("user_query", "new")

	v, _ := env.Lookup("user_query")
	assert.Equal(t, "new", v)
	assert.Equal(t, []string{"user_query"}, env.Names())
}

func TestRenderSubstitutesReferences(t *testing.T) {
	env := NewEnvironment()
	env.Seed("name", "world")
	env.Seed("greeting", "hello")

	text, used, missing := env.Render("{greeting}, {name}!")
	assert.Equal(t, "hello, world!", text)
	assert.ElementsMatch(t, []string{"greeting", "name"}, used)
	assert.Empty(t, missing)
}

func TestRenderMissingReferenceYieldsEmpty(t *testing.T) {
	env := NewEnvironment()

	text, used, missing := env.Render("hello {ghost}!")
	assert.Equal(t, "hello !", text)
	assert.Empty(t, used)
	assert.Equal(t, []string{"ghost"}, missing)
}

func TestRenderDoubledBracesAreLiteral(t *testing.T) {
	env := NewEnvironment()
	env.Seed("b", "X")

	text, _, missing := env.Render("a {{b}} c")
	assert.Equal(t, "a {b} c", text)
	assert.Empty(t, missing)
}

func TestRenderNonIdentifierBracesPassThrough(t *testing.T) {
	env := NewEnvironment()

	text, _, missing := env.Render(`{"json": 1} and {2x}`)
	assert.Equal(t, `{"json": 1} and {2x}`, text)
	assert.Empty(t, missing)
}

func TestRenderNoRecursiveExpansion(t *testing.T) {
	env := NewEnvironment()
	env.Seed("inner", "value")
	env.Seed("outer", "{inner}")

	text, used, missing := env.Render("{outer}")
	assert.Equal(t, "{inner}", text)
	assert.Equal(t, []string{"outer"}, used)
	assert.Empty(t, missing)
}

func TestRenderDeduplicatesNames(t *testing.T) {
	env := NewEnvironment()
	env.Seed("x", "1")

	_, used, missing := env.Render("{x} {x} {y} {y}")
	assert.Equal(t, []string{"x"}, used)
	assert.Equal(t, []string{"y"}, missing)
}
