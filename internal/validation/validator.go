package validation

import (
	"github.com/rendis/stepwise/internal/commands"
	"github.com/rendis/stepwise/pkg/schema"
)

// Validator checks workflows for correctness before they are run.
type Validator interface {
	ValidateWorkflow(wf *schema.Workflow) error
}

// CommandLookup resolves command contracts by name. *commands.Registry
// satisfies it.
type CommandLookup interface {
	Descriptor(name string) (commands.Descriptor, bool)
}
