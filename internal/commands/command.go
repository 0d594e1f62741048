package commands

import (
	"context"
	"log/slog"

	"github.com/rendis/stepwise/internal/expressions"
	"github.com/rendis/stepwise/pkg/schema"
)

// Command is a named unit of side-effecting work invoked from a Command step.
//
// Execute resolves its own inputs from Invocation.Inputs. A missing required
// input or an input that fails to evaluate is returned as an error and halts
// the run. Runtime I/O failures are not errors: they are reported through
// the "success" and "error" outputs so the workflow can branch on them.
type Command interface {
	Name() string
	Describe() Descriptor
	Execute(ctx context.Context, inv Invocation) (Outputs, error)
}

// Outputs maps declared output names to produced values.
type Outputs map[string]any

// Descriptor documents a command's input/output contract.
type Descriptor struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Required    []string `json:"required,omitempty"`
	Optional    []string `json:"optional,omitempty"`
	Outputs     []string `json:"outputs,omitempty"`
}

// Accepts reports whether input is a declared input name.
func (d Descriptor) Accepts(input string) bool {
	for _, n := range d.Required {
		if n == input {
			return true
		}
	}
	for _, n := range d.Optional {
		if n == input {
			return true
		}
	}
	return false
}

// Invocation is the data given to a command for one step execution.
type Invocation struct {
	Inputs   map[string]string // input name -> expression
	Scope    *expressions.Scope
	Step     string
	Sequence uint64
	Logger   *slog.Logger
	// Emit publishes an event for the current step. Never nil when
	// invoked by the engine.
	Emit func(kind schema.EventType, message string)
}

func (inv Invocation) logger() *slog.Logger {
	if inv.Logger != nil {
		return inv.Logger
	}
	return slog.Default()
}

func (inv Invocation) emit(kind schema.EventType, message string) {
	if inv.Emit != nil {
		inv.Emit(kind, message)
	}
}

// failure returns the outputs of a runtime failure.
func failure(err error, extra Outputs) Outputs {
	out := Outputs{"success": false, "error": err.Error()}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

func success(extra Outputs) Outputs {
	out := Outputs{"success": true, "error": ""}
	for k, v := range extra {
		out[k] = v
	}
	return out
}
