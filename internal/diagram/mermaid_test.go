package diagram

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/stepwise/internal/store"
)

func TestRenderMermaid_Shapes(t *testing.T) {
	model, err := Build(parse(t, branchDoc), nil)
	require.NoError(t, err)

	out := RenderMermaid(model)
	assert.Contains(t, out, "graph TD\n")
	assert.Contains(t, out, "%% branching")
	assert.Contains(t, out, `begin(("begin"))`)
	assert.Contains(t, out, `check{"check"}`)
	assert.Contains(t, out, `big["big: Log"]`)
	assert.Contains(t, out, `done((("done")))`)
	assert.Contains(t, out, "check -->|x > 5| big")
	assert.Contains(t, out, "check -->|else| small")
	assert.Contains(t, out, "begin --> check")
	assert.NotContains(t, out, "class begin")
}

func TestRenderMermaid_StatusClasses(t *testing.T) {
	steps := []*store.StepSummary{{Step: "begin", Visits: 1}, {Step: "big", Visits: 1, Error: "x"}}
	model, err := Build(parse(t, branchDoc), steps)
	require.NoError(t, err)

	out := RenderMermaid(model)
	assert.Contains(t, out, "class begin visited")
	assert.Contains(t, out, "class big halted")
}

func TestMermaidSafeID(t *testing.T) {
	assert.Equal(t, "fetch_data", mermaidSafeID("fetch-data"))
	assert.Equal(t, "a_b_c", mermaidSafeID("a.b c"))
	assert.Equal(t, "s0", mermaidSafeID("0"))
}

func TestMermaidEscapeLabel(t *testing.T) {
	assert.Equal(t, "x == #quot;a#quot; #124;#124; y", mermaidEscapeLabel(`x == "a" || y`))
}

func TestRenderMermaid_Missing(t *testing.T) {
	doc := `{"name": "m", "steps": {"begin": {"type": "Start", "next": "ghost"}}}`
	model, err := Build(parse(t, doc), nil)
	require.NoError(t, err)
	assert.Contains(t, RenderMermaid(model), "class ghost missing")
}
