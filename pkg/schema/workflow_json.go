package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

type workflowDocument struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Language    string          `json:"language,omitempty"`
	Inputs      map[string]any  `json:"inputs,omitempty"`
	Steps       json.RawMessage `json:"steps,omitempty"`
}

type stepDocument struct {
	Type       string                     `json:"type"`
	Next       json.RawMessage            `json:"next,omitempty"`
	Conditions json.RawMessage            `json:"conditions,omitempty"`
	Command    string                     `json:"command,omitempty"`
	Inputs     map[string]json.RawMessage `json:"inputs,omitempty"`
	Outputs    map[string]string          `json:"outputs,omitempty"`
}

// UnmarshalJSON decodes both the name-keyed ("steps": {...}) and the
// index-addressed ("steps": [...]) document forms. Object key order is
// preserved in Order and in condition clause order.
func (w *Workflow) UnmarshalJSON(data []byte) error {
	var doc workflowDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	*w = Workflow{
		Name:        doc.Name,
		Description: doc.Description,
		Language:    doc.Language,
		Inputs:      doc.Inputs,
		Steps:       make(map[string]Step),
	}

	raw := bytes.TrimSpace(doc.Steps)
	switch {
	case len(raw) == 0 || bytes.Equal(raw, []byte("null")):
		return nil
	case raw[0] == '[':
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			return fmt.Errorf("steps: %w", err)
		}
		w.Indexed = true
		for i, item := range items {
			ref := strconv.Itoa(i)
			step, err := decodeStep(item, strconv.Itoa(i+1))
			if err != nil {
				return fmt.Errorf("steps[%d]: %w", i, err)
			}
			w.Steps[ref] = step
			w.Order = append(w.Order, ref)
		}
		return nil
	case raw[0] == '{':
		keys, values, err := orderedObject(raw)
		if err != nil {
			return fmt.Errorf("steps: %w", err)
		}
		for i, name := range keys {
			if _, dup := w.Steps[name]; dup {
				return fmt.Errorf("steps: duplicate step %q", name)
			}
			step, err := decodeStep(values[i], "")
			if err != nil {
				return fmt.Errorf("steps.%s: %w", name, err)
			}
			w.Steps[name] = step
			w.Order = append(w.Order, name)
		}
		return nil
	default:
		return fmt.Errorf("steps: must be an object or an array")
	}
}

// MarshalJSON encodes the workflow in its document form.
func (w Workflow) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	head, err := json.Marshal(workflowDocument{
		Name:        w.Name,
		Description: w.Description,
		Language:    w.Language,
		Inputs:      w.Inputs,
	})
	if err != nil {
		return nil, err
	}
	// Splice the steps in by hand to keep declaration order.
	buf.Write(head[:len(head)-1])
	buf.WriteString(`,"steps":`)
	opening, closing := byte('{'), byte('}')
	if w.Indexed {
		opening, closing = '[', ']'
	}
	buf.WriteByte(opening)
	for i, ref := range w.StepRefs() {
		if i > 0 {
			buf.WriteByte(',')
		}
		if !w.Indexed {
			k, _ := json.Marshal(ref)
			buf.Write(k)
			buf.WriteByte(':')
		}
		b, err := encodeStep(w.Steps[ref])
		if err != nil {
			return nil, fmt.Errorf("step %s: %w", ref, err)
		}
		buf.Write(b)
	}
	buf.WriteByte(closing)
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func decodeStep(data []byte, defaultNext string) (Step, error) {
	var sd stepDocument
	if err := json.Unmarshal(data, &sd); err != nil {
		return nil, err
	}
	next, err := decodeRef(sd.Next)
	if err != nil {
		return nil, fmt.Errorf("next: %w", err)
	}
	if next == "" {
		next = defaultNext
	}

	switch strings.ToLower(sd.Type) {
	case "start":
		return StartStep{Next: next}, nil
	case "end":
		return EndStep{}, nil
	case "condition":
		clauses, err := decodeClauses(sd.Conditions)
		if err != nil {
			return nil, fmt.Errorf("conditions: %w", err)
		}
		return ConditionStep{Clauses: clauses}, nil
	case "command":
		inputs := make(map[string]string, len(sd.Inputs))
		for k, v := range sd.Inputs {
			inputs[k] = expressionSource(v)
		}
		return CommandStep{Command: sd.Command, Inputs: inputs, Outputs: sd.Outputs, Next: next}, nil
	case "":
		return nil, fmt.Errorf("missing step type")
	default:
		return nil, fmt.Errorf("unknown step type %q", sd.Type)
	}
}

func encodeStep(s Step) ([]byte, error) {
	switch st := s.(type) {
	case StartStep:
		return json.Marshal(map[string]any{"type": StepKindStart, "next": st.Next})
	case EndStep:
		return json.Marshal(map[string]any{"type": StepKindEnd})
	case ConditionStep:
		return json.Marshal(map[string]any{"type": StepKindCondition, "conditions": st.Clauses})
	case CommandStep:
		return json.Marshal(struct {
			Type StepKind `json:"type"`
			CommandStep
		}{StepKindCommand, st})
	default:
		return nil, fmt.Errorf("unsupported step %T", s)
	}
}

// decodeClauses accepts {"expr": "next", ...} (order preserved) and
// [{"expression": "...", "next": "..."}].
func decodeClauses(data json.RawMessage) ([]ConditionClause, error) {
	raw := bytes.TrimSpace(data)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	if raw[0] == '[' {
		var items []struct {
			Expression string          `json:"expression"`
			Exp        string          `json:"exp"`
			Next       json.RawMessage `json:"next"`
		}
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, err
		}
		clauses := make([]ConditionClause, 0, len(items))
		for i, it := range items {
			next, err := decodeRef(it.Next)
			if err != nil {
				return nil, fmt.Errorf("[%d].next: %w", i, err)
			}
			expr := it.Expression
			if expr == "" {
				expr = it.Exp
			}
			clauses = append(clauses, ConditionClause{Expression: expr, Next: next})
		}
		return clauses, nil
	}

	keys, values, err := orderedObject(raw)
	if err != nil {
		return nil, err
	}
	clauses := make([]ConditionClause, 0, len(keys))
	for i, k := range keys {
		next, err := decodeRef(values[i])
		if err != nil {
			return nil, fmt.Errorf("%q: %w", k, err)
		}
		clauses = append(clauses, ConditionClause{Expression: k, Next: next})
	}
	return clauses, nil
}

// decodeRef accepts a step reference given as a string or an integer.
func decodeRef(data json.RawMessage) (string, error) {
	raw := bytes.TrimSpace(data)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", nil
	}
	if raw[0] == '"' {
		var s string
		err := json.Unmarshal(raw, &s)
		return s, err
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", fmt.Errorf("step reference must be a string or integer")
	}
	i, err := n.Int64()
	if err != nil || i < 0 {
		return "", fmt.Errorf("invalid step index %s", n)
	}
	return strconv.FormatInt(i, 10), nil
}

// expressionSource turns a JSON input value into expression text: strings
// are taken verbatim, other scalars as their JSON literal.
func expressionSource(data json.RawMessage) string {
	raw := bytes.TrimSpace(data)
	if len(raw) > 0 && raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s
		}
	}
	return string(raw)
}

// orderedObject returns the keys and raw values of a JSON object in
// document order.
func orderedObject(data []byte) ([]string, []json.RawMessage, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return nil, nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, nil, fmt.Errorf("expected object")
	}
	var (
		keys   []string
		values []json.RawMessage
	)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, nil, fmt.Errorf("expected object key")
		}
		var v json.RawMessage
		if err := dec.Decode(&v); err != nil {
			return nil, nil, fmt.Errorf("%s: %w", key, err)
		}
		keys = append(keys, key)
		values = append(values, v)
	}
	if _, err := dec.Token(); err != nil {
		return nil, nil, err
	}
	return keys, values, nil
}
