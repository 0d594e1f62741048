package schema

import "sort"

type ValidationSeverity string

const (
	SeverityError   ValidationSeverity = "error"
	SeverityWarning ValidationSeverity = "warning"
)

// ValidationIssue is one problem found in a workflow document. Step is the
// ref of the step the issue belongs to and is empty for document-level
// issues. Field names the offending field inside that step, or inside the
// document when Step is empty.
type ValidationIssue struct {
	Step     string             `json:"step,omitempty"`
	Field    string             `json:"field,omitempty"`
	Code     string             `json:"code"`
	Message  string             `json:"message"`
	Severity ValidationSeverity `json:"severity"`
}

// Location renders the issue position as a dotted path such as
// "steps.fetch.inputs.url" or "inputs.who".
func (i ValidationIssue) Location() string {
	switch {
	case i.Step == "" && i.Field == "":
		return "/"
	case i.Step == "":
		return i.Field
	case i.Field == "":
		return "steps." + i.Step
	default:
		return "steps." + i.Step + "." + i.Field
	}
}

// ValidationResult collects the issues of every validation stage.
type ValidationResult struct {
	Errors   []ValidationIssue `json:"errors,omitempty"`
	Warnings []ValidationIssue `json:"warnings,omitempty"`
}

// Valid reports whether no errors were found. Warnings do not count.
func (r *ValidationResult) Valid() bool {
	return len(r.Errors) == 0
}

// AddError records a document-level error.
func (r *ValidationResult) AddError(field, code, message string) {
	r.AddStepError("", field, code, message)
}

// AddWarning records a document-level warning.
func (r *ValidationResult) AddWarning(field, code, message string) {
	r.AddStepWarning("", field, code, message)
}

// AddStepError records an error attributed to step.
func (r *ValidationResult) AddStepError(step, field, code, message string) {
	r.Errors = append(r.Errors, ValidationIssue{
		Step: step, Field: field, Code: code, Message: message, Severity: SeverityError,
	})
}

// AddStepWarning records a warning attributed to step.
func (r *ValidationResult) AddStepWarning(step, field, code, message string) {
	r.Warnings = append(r.Warnings, ValidationIssue{
		Step: step, Field: field, Code: code, Message: message, Severity: SeverityWarning,
	})
}

func (r *ValidationResult) Merge(other *ValidationResult) {
	if other == nil {
		return
	}
	r.Errors = append(r.Errors, other.Errors...)
	r.Warnings = append(r.Warnings, other.Warnings...)
}

// InvalidSteps returns the sorted refs of steps that carry at least one error.
func (r *ValidationResult) InvalidSteps() []string {
	seen := make(map[string]bool)
	var refs []string
	for _, issue := range r.Errors {
		if issue.Step != "" && !seen[issue.Step] {
			seen[issue.Step] = true
			refs = append(refs, issue.Step)
		}
	}
	sort.Strings(refs)
	return refs
}

// ToError converts an invalid result into a VALIDATION_ERROR. A single
// step-level error is attributed to its step.
func (r *ValidationResult) ToError() error {
	if r.Valid() {
		return nil
	}

	first := r.Errors[0]
	fe := NewError(ErrCodeValidation, first.Message)
	if len(r.Errors) > 1 {
		fe = NewErrorf(ErrCodeValidation, "validation failed with %d errors", len(r.Errors))
	} else if first.Step != "" {
		fe.WithStep(first.Step)
	}

	return fe.WithDetails(map[string]any{
		"error_count":   len(r.Errors),
		"warning_count": len(r.Warnings),
		"invalid_steps": r.InvalidSteps(),
		"errors":        r.Errors,
		"warnings":      r.Warnings,
	})
}

