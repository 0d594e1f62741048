package validation

import (
	"bytes"
	"fmt"
	"strings"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/rendis/stepwise/pkg/schema"
)

const workflowSchemaURL = "https://stepwise.dev/schemas/workflow.json"

// workflowSchemaJSON describes both document forms: name-keyed steps
// (object) and index-addressed steps (array).
const workflowSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://stepwise.dev/schemas/workflow.json",
  "type": "object",
  "required": ["name", "steps"],
  "properties": {
    "name": { "type": "string", "minLength": 1 },
    "description": { "type": "string" },
    "language": { "type": "string", "minLength": 1 },
    "inputs": { "type": "object" },
    "steps": {
      "oneOf": [
        {
          "type": "object",
          "minProperties": 1,
          "additionalProperties": { "$ref": "#/$defs/step" }
        },
        {
          "type": "array",
          "minItems": 1,
          "items": { "$ref": "#/$defs/step" }
        }
      ]
    }
  },
  "additionalProperties": false,
  "$defs": {
    "ref": {
      "oneOf": [
        { "type": "string", "minLength": 1 },
        { "type": "integer", "minimum": 0 }
      ]
    },
    "clause": {
      "type": "object",
      "required": ["next"],
      "properties": {
        "expression": { "type": "string", "minLength": 1 },
        "exp": { "type": "string", "minLength": 1 },
        "next": { "$ref": "#/$defs/ref" }
      },
      "oneOf": [
        { "required": ["expression"] },
        { "required": ["exp"] }
      ],
      "additionalProperties": false
    },
    "step": {
      "type": "object",
      "required": ["type"],
      "properties": {
        "type": {
          "type": "string",
          "pattern": "^(?i)(start|end|condition|command)$"
        },
        "next": { "$ref": "#/$defs/ref" },
        "conditions": {
          "oneOf": [
            {
              "type": "object",
              "minProperties": 1,
              "additionalProperties": { "$ref": "#/$defs/ref" }
            },
            {
              "type": "array",
              "minItems": 1,
              "items": { "$ref": "#/$defs/clause" }
            }
          ]
        },
        "command": { "type": "string", "minLength": 1 },
        "inputs": {
          "type": "object",
          "additionalProperties": { "type": ["string", "number", "boolean", "null"] }
        },
        "outputs": {
          "type": "object",
          "additionalProperties": { "type": "string", "minLength": 1 }
        }
      },
      "allOf": [
        {
          "if": { "properties": { "type": { "pattern": "^(?i)command$" } } },
          "then": { "required": ["command"] }
        },
        {
          "if": { "properties": { "type": { "pattern": "^(?i)condition$" } } },
          "then": { "required": ["conditions"] }
        }
      ],
      "additionalProperties": false
    }
  }
}`

// JSONSchemaValidator checks the structure of workflow documents.
// It is safe for concurrent use.
type JSONSchemaValidator struct {
	workflowSchema *jsonschema.Schema
}

// NewJSONSchemaValidator compiles the workflow document schema.
func NewJSONSchemaValidator() (*JSONSchemaValidator, error) {
	c := jsonschema.NewCompiler()
	c.AssertFormat()

	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(workflowSchemaJSON))
	if err != nil {
		return nil, fmt.Errorf("unmarshal workflow schema: %w", err)
	}
	if err := c.AddResource(workflowSchemaURL, doc); err != nil {
		return nil, fmt.Errorf("add workflow schema resource: %w", err)
	}
	compiled, err := c.Compile(workflowSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile workflow schema: %w", err)
	}
	return &JSONSchemaValidator{workflowSchema: compiled}, nil
}

// ValidateDocument validates a raw JSON workflow document.
func (v *JSONSchemaValidator) ValidateDocument(raw []byte) error {
	if len(bytes.TrimSpace(raw)) == 0 {
		return schema.NewError(schema.ErrCodeValidation, "workflow document is empty")
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return schema.NewError(schema.ErrCodeValidation, "workflow document is not valid JSON").WithCause(err)
	}
	if err := v.workflowSchema.Validate(doc); err != nil {
		return toFlowError(err)
	}
	return nil
}

// toFlowError converts a jsonschema.ValidationError into a FlowError whose
// details list every leaf violation with its instance location.
func toFlowError(err error) *schema.FlowError {
	verr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return schema.NewError(schema.ErrCodeValidation, err.Error())
	}

	violations := collectViolations(verr)
	switch len(violations) {
	case 0:
		return schema.NewError(schema.ErrCodeValidation, verr.Error())
	case 1:
		return schema.NewError(schema.ErrCodeValidation, violations[0]).
			WithDetails(map[string]any{"violations": violations})
	default:
		return schema.NewErrorf(schema.ErrCodeValidation, "validation failed with %d errors", len(violations)).
			WithDetails(map[string]any{"violations": violations})
	}
}

func collectViolations(verr *jsonschema.ValidationError) []string {
	if len(verr.Causes) == 0 {
		loc := "/" + strings.Join(verr.InstanceLocation, "/")
		return []string{fmt.Sprintf("%s: %s", loc, verr.Error())}
	}
	var violations []string
	for _, cause := range verr.Causes {
		violations = append(violations, collectViolations(cause)...)
	}
	return violations
}
