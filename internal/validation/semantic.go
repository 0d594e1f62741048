package validation

import (
	"fmt"
	"strings"

	"github.com/rendis/stepwise/pkg/schema"
)

// validateSemantic checks what the document schema cannot express:
// a single Start step, resolvable references, registered commands and
// their input contracts.
func validateSemantic(wf *schema.Workflow, lookup CommandLookup) *schema.ValidationResult {
	result := &schema.ValidationResult{}

	if strings.TrimSpace(wf.Name) == "" {
		result.AddError("name", schema.ErrCodeValidation, "workflow name is empty")
	}

	switch starts := wf.StartRefs(); len(starts) {
	case 0:
		result.AddError("steps", schema.ErrCodeUnresolvableStart, "workflow has no Start step")
	case 1:
	default:
		result.AddError("steps", schema.ErrCodeUnresolvableStart,
			fmt.Sprintf("workflow has %d Start steps: %s", len(starts), strings.Join(starts, ", ")))
	}

	for name, v := range wf.Inputs {
		switch v.(type) {
		case map[string]any, []any:
			result.AddWarning("inputs."+name, schema.ErrCodeInvalidInput,
				fmt.Sprintf("input %q is %T; only null, bool, number and string are bound", name, v))
		}
	}

	for _, ref := range wf.StepRefs() {
		validateStep(wf, ref, lookup, result)
	}
	return result
}

func validateStep(wf *schema.Workflow, ref string, lookup CommandLookup, result *schema.ValidationResult) {
	checkRef := func(field, target string) {
		if target == "" {
			result.AddStepError(ref, field, schema.ErrCodeDanglingReference, "missing next reference")
			return
		}
		if _, ok := wf.Step(target); !ok {
			result.AddStepError(ref, field, schema.ErrCodeDanglingReference,
				fmt.Sprintf("references non-existent step %q", target))
		}
	}

	switch s := wf.Steps[ref].(type) {
	case schema.StartStep:
		checkRef("next", s.Next)

	case schema.EndStep:

	case schema.ConditionStep:
		if len(s.Clauses) == 0 {
			result.AddStepError(ref, "conditions", schema.ErrCodeNoConditionMatched, "condition step has no clauses")
		}
		hasElse := false
		for i, c := range s.Clauses {
			field := fmt.Sprintf("conditions[%d]", i)
			checkRef(field, c.Next)
			if hasElse {
				result.AddStepWarning(ref, field, schema.ErrCodeValidation,
					fmt.Sprintf("clause %q follows an else clause and is never evaluated", c.Expression))
			}
			if c.IsElse() {
				hasElse = true
			}
		}
		if len(s.Clauses) > 0 && !hasElse {
			result.AddStepWarning(ref, "conditions", schema.ErrCodeNoConditionMatched,
				"no else clause; the run halts when no condition matches")
		}

	case schema.CommandStep:
		checkRef("next", s.Next)
		validateCommand(ref, s, lookup, result)
	}
}

func validateCommand(ref string, s schema.CommandStep, lookup CommandLookup, result *schema.ValidationResult) {
	if s.Command == "" {
		result.AddStepError(ref, "command", schema.ErrCodeUnknownCommand, "command name is empty")
		return
	}
	if lookup == nil {
		return
	}
	d, ok := lookup.Descriptor(s.Command)
	if !ok {
		result.AddStepError(ref, "command", schema.ErrCodeUnknownCommand,
			fmt.Sprintf("command %q not registered", s.Command))
		return
	}

	for _, req := range d.Required {
		if _, ok := s.Inputs[req]; !ok {
			result.AddStepError(ref, "inputs."+req, schema.ErrCodeMissingInput,
				fmt.Sprintf("command %s requires input %q", s.Command, req))
		}
	}
	for _, name := range s.InputNames() {
		if !d.Accepts(name) {
			result.AddStepWarning(ref, "inputs."+name, schema.ErrCodeInvalidInput,
				fmt.Sprintf("command %s does not use input %q", s.Command, name))
		}
	}
	if len(d.Outputs) > 0 {
		for output := range s.Outputs {
			if !contains(d.Outputs, output) {
				result.AddStepWarning(ref, "outputs."+output, schema.ErrCodeInvalidInput,
					fmt.Sprintf("command %s has no output %q", s.Command, output))
			}
		}
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
