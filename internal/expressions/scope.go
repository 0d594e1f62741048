package expressions

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"sync"

	"github.com/rendis/stepwise/pkg/schema"
)

// Scope is the expression context of one run: a mapping from variable name
// to a primitive value (nil, bool, int, float64 or string) bound to an
// Evaluator. A variable bound to nil is present; GetVariable distinguishes
// it from an unbound name. Scope is owned by a single run.
type Scope struct {
	evaluator Evaluator

	mu   sync.RWMutex
	vars map[string]any
}

// NewScope creates an empty scope over evaluator.
func NewScope(evaluator Evaluator) *Scope {
	return &Scope{
		evaluator: evaluator,
		vars:      make(map[string]any),
	}
}

// Language returns the name of the underlying evaluator.
func (s *Scope) Language() string {
	return s.evaluator.Name()
}

// Seed binds workflow inputs. Arrays and objects are outside the value
// domain: they are skipped and reported as warnings, one per variable,
// in name order.
func (s *Scope) Seed(inputs map[string]any) []string {
	names := make([]string, 0, len(inputs))
	for k := range inputs {
		names = append(names, k)
	}
	sort.Strings(names)

	var warnings []string
	for _, name := range names {
		v, ok := normalize(inputs[name])
		if !ok {
			warnings = append(warnings, fmt.Sprintf("input %q has unsupported type %T and was not bound", name, inputs[name]))
			continue
		}
		s.mu.Lock()
		s.vars[name] = v
		s.mu.Unlock()
	}
	return warnings
}

// SetVariable binds name, replacing any previous binding. Composite values
// are stored as their JSON text.
func (s *Scope) SetVariable(name string, value any) {
	v, ok := normalize(value)
	if !ok {
		b, err := json.Marshal(value)
		if err != nil {
			v = fmt.Sprintf("%v", value)
		} else {
			v = string(b)
		}
	}
	s.mu.Lock()
	s.vars[name] = v
	s.mu.Unlock()
}

// GetVariable returns the value bound to name.
func (s *Scope) GetVariable(name string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.vars[name]
	return v, ok
}

// Variables returns a copy of every binding.
func (s *Scope) Variables() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]any, len(s.vars))
	for k, v := range s.vars {
		out[k] = v
	}
	return out
}

// Evaluate evaluates expression against the current bindings.
func (s *Scope) Evaluate(ctx context.Context, expression string) (any, error) {
	return s.evaluator.Evaluate(ctx, expression, s.Variables())
}

// EvaluateBool evaluates expression and requires a boolean result.
func (s *Scope) EvaluateBool(ctx context.Context, expression string) (bool, error) {
	v, err := s.Evaluate(ctx, expression)
	if err != nil {
		return false, err
	}
	b, ok := v.(bool)
	if !ok {
		return false, schema.NewErrorf(schema.ErrCodeEvaluation,
			"expression %q produced %T, want bool", expression, v).
			WithDetails(map[string]any{"expression": expression})
	}
	return b, nil
}

// EvaluateString evaluates expression and renders the result with ToString.
func (s *Scope) EvaluateString(ctx context.Context, expression string) (string, error) {
	v, err := s.Evaluate(ctx, expression)
	if err != nil {
		return "", err
	}
	return ToString(v), nil
}

// ToString renders a value as text. nil renders as the empty string,
// whole floats without a fractional part.
func ToString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case uint64:
		return strconv.FormatUint(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case []byte:
		return string(val)
	default:
		if b, err := json.Marshal(val); err == nil {
			return string(b)
		}
		return fmt.Sprintf("%v", val)
	}
}

// normalize maps v into the value domain. Integral numbers become int so that
// every backend sees the same type for `3` whether it came from JSON or YAML.
func normalize(v any) (any, bool) {
	switch val := v.(type) {
	case nil, bool, string, int:
		return val, true
	case int8:
		return int(val), true
	case int16:
		return int(val), true
	case int32:
		return int(val), true
	case int64:
		return int(val), true
	case uint:
		return int(val), true
	case uint8:
		return int(val), true
	case uint16:
		return int(val), true
	case uint32:
		return int(val), true
	case uint64:
		return int(val), true
	case float32:
		return normalizeFloat(float64(val)), true
	case float64:
		return normalizeFloat(val), true
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return int(i), true
		}
		f, err := val.Float64()
		if err != nil {
			return val.String(), true
		}
		return normalizeFloat(f), true
	default:
		return nil, false
	}
}

func normalizeFloat(f float64) any {
	if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
		return int(f)
	}
	return f
}
