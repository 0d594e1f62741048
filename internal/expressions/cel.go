package expressions

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/rendis/stepwise/pkg/schema"
)

var celIdentifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// CELEvaluator implements Evaluator using Google's Common Expression Language.
// Every context variable with a valid identifier name is declared as dyn.
// Thread-safe: programs are cached per (expression, declared variables).
type CELEvaluator struct {
	env *cel.Env

	mu    sync.RWMutex
	cache map[string]cel.Program
}

// NewCELEvaluator creates a new CEL evaluator.
func NewCELEvaluator() (*CELEvaluator, error) {
	env, err := cel.NewEnv(cel.CrossTypeNumericComparisons(true))
	if err != nil {
		return nil, fmt.Errorf("create CEL environment: %w", err)
	}
	return &CELEvaluator{
		env:   env,
		cache: make(map[string]cel.Program),
	}, nil
}

// Name returns the evaluator identifier.
func (e *CELEvaluator) Name() string {
	return "cel"
}

// Evaluate compiles (or retrieves from cache) a CEL expression and evaluates it
// with vars as the activation.
func (e *CELEvaluator) Evaluate(_ context.Context, expression string, vars map[string]any) (any, error) {
	if expression == "" {
		return nil, schema.NewError(schema.ErrCodeEvaluation, "empty CEL expression")
	}

	names := celNames(vars)
	prg, err := e.getOrCompile(expression, names)
	if err != nil {
		return nil, err
	}

	activation := make(map[string]any, len(names))
	for _, n := range names {
		activation[n] = vars[n]
	}

	out, _, err := prg.Eval(activation)
	if err != nil {
		return nil, evalError("CEL", expression, err)
	}
	if out == types.NullValue {
		return nil, nil
	}
	return out.Value(), nil
}

func (e *CELEvaluator) getOrCompile(expression string, names []string) (cel.Program, error) {
	key := expression + "\x00" + strings.Join(names, ",")

	e.mu.RLock()
	if prg, ok := e.cache[key]; ok {
		e.mu.RUnlock()
		return prg, nil
	}
	e.mu.RUnlock()

	e.mu.Lock()
	defer e.mu.Unlock()

	// Double-check after acquiring write lock.
	if prg, ok := e.cache[key]; ok {
		return prg, nil
	}

	opts := make([]cel.EnvOption, 0, len(names))
	for _, n := range names {
		opts = append(opts, cel.Variable(n, cel.DynType))
	}
	env, err := e.env.Extend(opts...)
	if err != nil {
		return nil, compileError("CEL", expression, err)
	}

	ast, issues := env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, compileError("CEL", expression, issues.Err())
	}

	prg, err := env.Program(ast)
	if err != nil {
		return nil, compileError("CEL", expression, err)
	}

	e.cache[key] = prg
	return prg, nil
}

// celNames returns the sorted variable names that CEL can declare.
func celNames(vars map[string]any) []string {
	names := make([]string, 0, len(vars))
	for k := range vars {
		if celIdentifier.MatchString(k) {
			names = append(names, k)
		}
	}
	sort.Strings(names)
	return names
}

var _ Evaluator = (*CELEvaluator)(nil)
