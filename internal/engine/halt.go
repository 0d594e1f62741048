package engine

import (
	"fmt"

	"github.com/rendis/stepwise/pkg/schema"
)

// HaltError reports a run that stopped before reaching an End step.
type HaltError struct {
	Reason   schema.HaltReason
	Step     string
	Sequence uint64
	Err      error
}

func (e *HaltError) Error() string {
	if e.Step == "" {
		return fmt.Sprintf("run halted (%s): %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("run halted (%s) at step %q #%d: %v", e.Reason, e.Step, e.Sequence, e.Err)
}

func (e *HaltError) Unwrap() error { return e.Err }

// newHalt classifies err by its top-level error code only.
func newHalt(step string, seq uint64, err error) *HaltError {
	return &HaltError{
		Reason:   schema.HaltReasonFor(schema.CodeOf(err)),
		Step:     step,
		Sequence: seq,
		Err:      err,
	}
}
