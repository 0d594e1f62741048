package schema

import "fmt"

// Error codes for structured error reporting.
const (
	ErrCodeValidation         = "VALIDATION_ERROR"
	ErrCodeLoad               = "LOAD_ERROR"
	ErrCodeEvaluation         = "EVALUATION_ERROR"
	ErrCodeMissingInput       = "MISSING_INPUT"
	ErrCodeInvalidInput       = "INVALID_INPUT"
	ErrCodeUnknownCommand     = "UNKNOWN_COMMAND"
	ErrCodeDanglingReference  = "DANGLING_REFERENCE"
	ErrCodeNoConditionMatched = "NO_CONDITION_MATCHED"
	ErrCodeCommandFailed      = "COMMAND_FAILED"
	ErrCodeUnresolvableStart  = "UNRESOLVABLE_START"
	ErrCodeLoopGuard          = "LOOP_GUARD"
	ErrCodeNotFound           = "NOT_FOUND"
	ErrCodeConflict           = "CONFLICT"
	ErrCodeStore              = "STORE_ERROR"
	ErrCodePathDenied         = "PATH_DENIED"
	ErrCodeInvalidTransition  = "INVALID_TRANSITION"
)

// FlowError is the structured error type shared by every stepwise package.
type FlowError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	Step    string         `json:"step,omitempty"`
	Cause   error          `json:"-"`
}

func (e *FlowError) Error() string {
	if e.Step != "" {
		return fmt.Sprintf("[%s] step %s: %s", e.Code, e.Step, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *FlowError) Unwrap() error {
	return e.Cause
}

// NewError creates a new FlowError.
func NewError(code, message string) *FlowError {
	return &FlowError{Code: code, Message: message}
}

// NewErrorf creates a new FlowError with a formatted message.
func NewErrorf(code, format string, args ...any) *FlowError {
	return &FlowError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithStep attaches a step name to the error.
func (e *FlowError) WithStep(step string) *FlowError {
	e.Step = step
	return e
}

// WithCause attaches an underlying cause.
func (e *FlowError) WithCause(err error) *FlowError {
	e.Cause = err
	return e
}

// WithDetails attaches key-value details.
func (e *FlowError) WithDetails(details map[string]any) *FlowError {
	e.Details = details
	return e
}

// CodeOf returns the code of the outermost FlowError in err's chain, or
// ErrCodeCommandFailed when err carries no code.
func CodeOf(err error) string {
	for err != nil {
		if fe, ok := err.(*FlowError); ok {
			return fe.Code
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return ErrCodeCommandFailed
}
