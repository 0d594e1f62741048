package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/rendis/stepwise/internal/expressions"
	"github.com/rendis/stepwise/pkg/schema"
)

// value evaluates the named input. ok is false when the input is not configured.
func (inv Invocation) value(ctx context.Context, name string) (any, bool, error) {
	src, ok := inv.Inputs[name]
	if !ok {
		return nil, false, nil
	}
	if inv.Scope == nil {
		return nil, true, schema.NewErrorf(schema.ErrCodeEvaluation, "no expression context for input %q", name)
	}
	v, err := inv.Scope.Evaluate(ctx, src)
	if err != nil {
		return nil, true, schema.NewErrorf(schema.ErrCodeEvaluation,
			"input %q: %s", name, err.Error()).WithCause(err)
	}
	return v, true, nil
}

// RequireString evaluates a required input and renders it as text.
func (inv Invocation) RequireString(ctx context.Context, name string) (string, error) {
	v, ok, err := inv.value(ctx, name)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", schema.NewErrorf(schema.ErrCodeMissingInput, "missing required input %q", name)
	}
	return expressions.ToString(v), nil
}

// OptionalString evaluates an optional input, returning def when it is not configured.
func (inv Invocation) OptionalString(ctx context.Context, name, def string) (string, error) {
	v, ok, err := inv.value(ctx, name)
	if err != nil {
		return "", err
	}
	if !ok {
		return def, nil
	}
	return expressions.ToString(v), nil
}

// OptionalMap evaluates an optional input into a string map. The expression
// may yield a map, a JSON object text, or text in "k=v&k2=v2" or "K: V" lines.
func (inv Invocation) OptionalMap(ctx context.Context, name string) (map[string]string, error) {
	v, ok, err := inv.value(ctx, name)
	if err != nil || !ok {
		return nil, err
	}
	m, err := toStringMap(v)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeInvalidInput, "input %q: %s", name, err.Error())
	}
	return m, nil
}

func toStringMap(v any) (map[string]string, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case map[string]any:
		out := make(map[string]string, len(val))
		for k, x := range val {
			out[k] = expressions.ToString(x)
		}
		return out, nil
	case map[string]string:
		return val, nil
	case string:
		return parseStringMap(val)
	default:
		return nil, fmt.Errorf("expected an object or key/value text, got %T", v)
	}
}

func parseStringMap(s string) (map[string]string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if strings.HasPrefix(s, "{") {
		var m map[string]any
		if err := json.Unmarshal([]byte(s), &m); err != nil {
			return nil, err
		}
		return toStringMap(m)
	}

	out := make(map[string]string)
	if strings.Contains(s, ":") && !strings.Contains(s, "=") {
		for _, line := range strings.Split(s, "\n") {
			k, v, found := strings.Cut(line, ":")
			if !found {
				continue
			}
			out[strings.TrimSpace(k)] = strings.TrimSpace(v)
		}
		return out, nil
	}

	q, err := url.ParseQuery(s)
	if err != nil {
		return nil, err
	}
	for k := range q {
		out[k] = q.Get(k)
	}
	return out, nil
}
