package validation

import (
	"fmt"

	"github.com/rendis/stepwise/pkg/schema"
)

// validateGraph walks the step graph from the Start step. Cycles are
// legal; a graph from which no End step can be reached is not.
func validateGraph(wf *schema.Workflow) *schema.ValidationResult {
	result := &schema.ValidationResult{}

	starts := wf.StartRefs()
	if len(starts) != 1 {
		return result // reported by the semantic stage
	}

	reachable := map[string]bool{starts[0]: true}
	queue := []string{starts[0]}
	endReachable := false
	for len(queue) > 0 {
		ref := queue[0]
		queue = queue[1:]

		step, ok := wf.Step(ref)
		if !ok {
			continue
		}
		if step.Kind() == schema.StepKindEnd {
			endReachable = true
		}
		for _, next := range step.Successors() {
			if _, exists := wf.Step(next); exists && !reachable[next] {
				reachable[next] = true
				queue = append(queue, next)
			}
		}
	}

	if !endReachable {
		result.AddError("steps", schema.ErrCodeValidation,
			fmt.Sprintf("no End step is reachable from Start step %q", starts[0]))
	}

	for _, ref := range wf.StepRefs() {
		if !reachable[ref] {
			result.AddStepWarning(ref, "", schema.ErrCodeValidation,
				fmt.Sprintf("step %q is unreachable from the Start step", ref))
		}
	}
	return result
}
