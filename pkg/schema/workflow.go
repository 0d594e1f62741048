package schema

import "sort"

// Workflow is the in-memory workflow graph. Steps are always addressed by
// name; index-addressed documents are normalized so that step i is named
// strconv.Itoa(i).
type Workflow struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Language    string          `json:"language,omitempty"` // expression backend (default: expr)
	Inputs      map[string]any  `json:"inputs,omitempty"`
	Steps       map[string]Step `json:"-"`
	Order       []string        `json:"-"` // declaration order of Steps
	Indexed     bool            `json:"-"`
}

// StepKind enumerates the kinds of steps in a workflow.
type StepKind string

const (
	StepKindStart     StepKind = "Start"
	StepKindEnd       StepKind = "End"
	StepKindCondition StepKind = "Condition"
	StepKindCommand   StepKind = "Command"
)

// ElseExpression is the condition clause that always matches.
const ElseExpression = "else"

// Step is a closed sum of StartStep, EndStep, ConditionStep and CommandStep.
type Step interface {
	Kind() StepKind
	// Successors lists every step reference this step may transfer control to.
	Successors() []string
	sealed()
}

// StartStep is the unique entry point of a workflow.
type StartStep struct {
	Next string `json:"next"`
}

// EndStep terminates a run successfully.
type EndStep struct{}

// ConditionClause is one (expression, successor) pair of a ConditionStep.
type ConditionClause struct {
	Expression string `json:"expression"`
	Next       string `json:"next"`
}

// IsElse reports whether the clause is the wildcard clause.
func (c ConditionClause) IsElse() bool {
	return c.Expression == ElseExpression
}

// ConditionStep selects the successor of the first clause that evaluates to true.
type ConditionStep struct {
	Clauses []ConditionClause `json:"conditions"`
}

// CommandStep dispatches a registered command.
type CommandStep struct {
	Command string            `json:"command"`
	Inputs  map[string]string `json:"inputs,omitempty"`  // parameter name -> expression
	Outputs map[string]string `json:"outputs,omitempty"` // command output -> context variable
	Next    string            `json:"next"`
}

func (StartStep) Kind() StepKind     { return StepKindStart }
func (EndStep) Kind() StepKind       { return StepKindEnd }
func (ConditionStep) Kind() StepKind { return StepKindCondition }
func (CommandStep) Kind() StepKind   { return StepKindCommand }

func (s StartStep) Successors() []string { return []string{s.Next} }
func (EndStep) Successors() []string     { return nil }
func (s CommandStep) Successors() []string {
	return []string{s.Next}
}

func (s ConditionStep) Successors() []string {
	out := make([]string, 0, len(s.Clauses))
	for _, c := range s.Clauses {
		out = append(out, c.Next)
	}
	return out
}

func (StartStep) sealed()     {}
func (EndStep) sealed()       {}
func (ConditionStep) sealed() {}
func (CommandStep) sealed()   {}

// OutputVariable returns the context variable that receives the named
// command output.
func (s CommandStep) OutputVariable(output string) string {
	if v, ok := s.Outputs[output]; ok && v != "" {
		return v
	}
	return output
}

// InputNames returns the configured input parameter names, sorted.
func (s CommandStep) InputNames() []string {
	names := make([]string, 0, len(s.Inputs))
	for k := range s.Inputs {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Step returns the step with the given reference.
func (w *Workflow) Step(ref string) (Step, bool) {
	s, ok := w.Steps[ref]
	return s, ok
}

// StartRefs returns the references of every Start step in declaration order.
func (w *Workflow) StartRefs() []string {
	var refs []string
	for _, ref := range w.StepRefs() {
		if w.Steps[ref].Kind() == StepKindStart {
			refs = append(refs, ref)
		}
	}
	return refs
}

// StepRefs returns all step references in declaration order. Steps added
// programmatically without an Order entry are appended sorted by name.
func (w *Workflow) StepRefs() []string {
	seen := make(map[string]bool, len(w.Order))
	refs := make([]string, 0, len(w.Steps))
	for _, ref := range w.Order {
		if _, ok := w.Steps[ref]; ok && !seen[ref] {
			seen[ref] = true
			refs = append(refs, ref)
		}
	}
	var rest []string
	for ref := range w.Steps {
		if !seen[ref] {
			rest = append(rest, ref)
		}
	}
	sort.Strings(rest)
	return append(refs, rest...)
}
