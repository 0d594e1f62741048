package validation

import (
	"encoding/json"

	"github.com/rendis/stepwise/pkg/schema"
)

// WorkflowValidator runs the three-stage validation pipeline:
// 1. Structural (JSON Schema of the document)
// 2. Semantic (Start step, references, command contracts)
// 3. Graph (End reachability, unreachable steps)
type WorkflowValidator struct {
	jsonSchema *JSONSchemaValidator
	commands   CommandLookup
}

// NewWorkflowValidator creates a WorkflowValidator.
// lookup may be nil to skip command checks.
func NewWorkflowValidator(lookup CommandLookup) (*WorkflowValidator, error) {
	jsv, err := NewJSONSchemaValidator()
	if err != nil {
		return nil, err
	}
	return &WorkflowValidator{jsonSchema: jsv, commands: lookup}, nil
}

// ValidateDocument validates a workflow as loaded from raw. Structural
// errors short-circuit the later stages.
func (wv *WorkflowValidator) ValidateDocument(raw []byte, wf *schema.Workflow) *schema.ValidationResult {
	result := validateStructural(wv.jsonSchema, raw)
	if !result.Valid() {
		return result
	}
	if wf == nil {
		var parsed schema.Workflow
		if err := json.Unmarshal(raw, &parsed); err != nil {
			result.AddError("/", schema.ErrCodeLoad, err.Error())
			return result
		}
		wf = &parsed
	}
	result.Merge(wv.validateModel(wf))
	return result
}

// Validate validates an in-memory workflow. The structural stage runs
// against its JSON encoding.
func (wv *WorkflowValidator) Validate(wf *schema.Workflow) *schema.ValidationResult {
	if wf == nil {
		r := &schema.ValidationResult{}
		r.AddError("/", schema.ErrCodeValidation, "workflow is nil")
		return r
	}
	raw, err := json.Marshal(wf)
	if err != nil {
		r := &schema.ValidationResult{}
		r.AddError("/", schema.ErrCodeValidation, "failed to serialize workflow: "+err.Error())
		return r
	}
	return wv.ValidateDocument(raw, wf)
}

// ValidateWorkflow satisfies the Validator interface.
func (wv *WorkflowValidator) ValidateWorkflow(wf *schema.Workflow) error {
	return wv.Validate(wf).ToError()
}

func (wv *WorkflowValidator) validateModel(wf *schema.Workflow) *schema.ValidationResult {
	result := validateSemantic(wf, wv.commands)
	// Skip the graph stage on semantic errors: the graph may be invalid.
	if result.Valid() {
		result.Merge(validateGraph(wf))
	}
	return result
}

func validateStructural(v *JSONSchemaValidator, raw []byte) *schema.ValidationResult {
	result := &schema.ValidationResult{}

	err := v.ValidateDocument(raw)
	if err == nil {
		return result
	}

	fe, ok := err.(*schema.FlowError)
	if !ok {
		result.AddError("/", schema.ErrCodeValidation, err.Error())
		return result
	}
	if violations, ok := fe.Details["violations"].([]string); ok {
		for _, msg := range violations {
			result.AddError("/", schema.ErrCodeValidation, msg)
		}
		return result
	}
	result.AddError("/", schema.ErrCodeValidation, fe.Message)
	return result
}
