package engine

import (
	"strings"

	"github.com/rendis/stepwise/pkg/schema"
)

// cursor resolves step references of one workflow. References are checked
// lazily, the first time the run needs them, and the outcome is memoized.
type cursor struct {
	wf       *schema.Workflow
	resolved map[string]schema.Step
}

func newCursor(wf *schema.Workflow) *cursor {
	return &cursor{wf: wf, resolved: make(map[string]schema.Step)}
}

// start returns the reference of the single step tagged Start.
func (c *cursor) start() (string, error) {
	refs := c.wf.StartRefs()
	switch len(refs) {
	case 1:
		return refs[0], nil
	case 0:
		return "", schema.NewError(schema.ErrCodeUnresolvableStart, "workflow has no Start step")
	default:
		return "", schema.NewErrorf(schema.ErrCodeUnresolvableStart,
			"workflow has %d Start steps: %s", len(refs), strings.Join(refs, ", ")).
			WithDetails(map[string]any{"starts": refs})
	}
}

// resolve returns the step for ref. from names the step holding the
// reference and is used only for the error report.
func (c *cursor) resolve(from, ref string) (schema.Step, error) {
	if s, ok := c.resolved[ref]; ok {
		return s, nil
	}
	s, ok := c.wf.Step(ref)
	if !ok || s == nil {
		return nil, schema.NewErrorf(schema.ErrCodeDanglingReference,
			"next reference %q does not name a step", ref).
			WithStep(from).
			WithDetails(map[string]any{"reference": ref})
	}
	c.resolved[ref] = s
	return s, nil
}

// size is the number of distinct steps in the graph.
func (c *cursor) size() int {
	return len(c.wf.Steps)
}
