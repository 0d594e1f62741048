package expressions

import (
	"context"
	"sort"
	"strings"

	"github.com/rendis/stepwise/pkg/schema"
)

// Evaluator evaluates expressions against a set of named variables.
// Four implementations: Expr (default), CEL, GoJQ and Lua.
type Evaluator interface {
	Name() string
	Evaluate(ctx context.Context, expression string, vars map[string]any) (any, error)
}

// DefaultLanguage is used when a workflow does not name one.
const DefaultLanguage = "expr"

var factories = map[string]func() (Evaluator, error){
	"expr": func() (Evaluator, error) { return NewExprEvaluator(), nil },
	"cel":  func() (Evaluator, error) { return NewCELEvaluator() },
	"jq":   func() (Evaluator, error) { return NewGoJQEvaluator(), nil },
	"lua":  func() (Evaluator, error) { return NewLuaEvaluator(), nil },
}

// New returns a fresh evaluator for the named language.
func New(language string) (Evaluator, error) {
	if language == "" {
		language = DefaultLanguage
	}
	f, ok := factories[strings.ToLower(language)]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"unsupported expression language %q (supported: %s)", language, strings.Join(Languages(), ", "))
	}
	return f()
}

// Languages lists the supported expression languages.
func Languages() []string {
	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func evalError(backend, expression string, err error) *schema.FlowError {
	return schema.NewErrorf(schema.ErrCodeEvaluation,
		"%s evaluation failed for %q: %s", backend, expression, err.Error()).
		WithCause(err).
		WithDetails(map[string]any{"expression": expression})
}

func compileError(backend, expression string, err error) *schema.FlowError {
	return schema.NewErrorf(schema.ErrCodeEvaluation,
		"%s compile error in %q: %s", backend, expression, err.Error()).
		WithCause(err).
		WithDetails(map[string]any{"expression": expression})
}
