// Package loader reads workflow documents from JSON or YAML files.
package loader

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"

	"github.com/rendis/stepwise/pkg/schema"
)

// Format is a workflow document encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// Document is a loaded workflow together with its JSON form, which the
// structural validator consumes.
type Document struct {
	Path     string
	Raw      json.RawMessage
	Workflow *schema.Workflow
}

// FormatOf infers the format from a file extension. Unknown extensions
// are treated as JSON.
func FormatOf(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// Parse decodes a workflow document. YAML mappings keep their key order,
// so step declaration order survives in both formats.
func Parse(data []byte, format Format) (*Document, error) {
	raw := data
	if format == FormatYAML {
		var err error
		raw, err = yamlToJSON(data)
		if err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeLoad, "parse yaml: %s", err.Error()).WithCause(err)
		}
	}

	var wf schema.Workflow
	if err := json.Unmarshal(raw, &wf); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeLoad, "decode workflow: %s", err.Error()).WithCause(err)
	}
	return &Document{Raw: json.RawMessage(raw), Workflow: &wf}, nil
}

// Load reads and parses a single workflow file.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeLoad, "read %s: %s", path, err.Error()).
			WithCause(err).
			WithDetails(map[string]any{"path": path})
	}
	doc, err := Parse(data, FormatOf(path))
	if err != nil {
		if fe, ok := err.(*schema.FlowError); ok {
			fe.Message = path + ": " + fe.Message
			fe.Details = map[string]any{"path": path}
		}
		return nil, err
	}
	doc.Path = path
	return doc, nil
}

// LoadGlob loads every file matching pattern. Patterns support ** for
// recursive matches. Results are sorted by path; the first failing file
// aborts the load.
func LoadGlob(pattern string) ([]*Document, error) {
	if !doublestar.ValidatePathPattern(pattern) {
		return nil, schema.NewErrorf(schema.ErrCodeLoad, "invalid glob pattern %q", pattern)
	}
	matches, err := doublestar.FilepathGlob(pattern, doublestar.WithFilesOnly())
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeLoad, "glob %s: %s", pattern, err.Error()).WithCause(err)
	}
	if len(matches) == 0 {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "no workflow files match %q", pattern)
	}
	sort.Strings(matches)

	docs := make([]*Document, 0, len(matches))
	for _, m := range matches {
		doc, err := Load(m)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// IsGlob reports whether s contains glob metacharacters.
func IsGlob(s string) bool {
	return strings.ContainsAny(s, "*?[{")
}

func yamlToJSON(data []byte) ([]byte, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, err
	}
	if root.Kind == 0 {
		return nil, fmt.Errorf("empty document")
	}
	var buf bytes.Buffer
	if err := writeNode(&buf, &root); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeNode(buf *bytes.Buffer, n *yaml.Node) error {
	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			buf.WriteString("null")
			return nil
		}
		return writeNode(buf, n.Content[0])
	case yaml.AliasNode:
		return writeNode(buf, n.Alias)
	case yaml.MappingNode:
		buf.WriteByte('{')
		for i := 0; i+1 < len(n.Content); i += 2 {
			if i > 0 {
				buf.WriteByte(',')
			}
			key, err := json.Marshal(n.Content[i].Value)
			if err != nil {
				return err
			}
			buf.Write(key)
			buf.WriteByte(':')
			if err := writeNode(buf, n.Content[i+1]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
		return nil
	case yaml.SequenceNode:
		buf.WriteByte('[')
		for i, c := range n.Content {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeNode(buf, c); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
		return nil
	case yaml.ScalarNode:
		var v any
		if err := n.Decode(&v); err != nil {
			return err
		}
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("line %d: %w", n.Line, err)
		}
		buf.Write(b)
		return nil
	default:
		return fmt.Errorf("line %d: unsupported yaml node", n.Line)
	}
}
