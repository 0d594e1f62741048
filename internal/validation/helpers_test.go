package validation

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rendis/stepwise/internal/commands"
	"github.com/rendis/stepwise/pkg/schema"
)

// mockLookup is a CommandLookup with fixed descriptors.
type mockLookup map[string]commands.Descriptor

func (m mockLookup) Descriptor(name string) (commands.Descriptor, bool) {
	d, ok := m[name]
	return d, ok
}

func newMockLookup() mockLookup {
	return mockLookup{
		"Log": {Name: "Log", Required: []string{"message"}, Optional: []string{"level"}, Outputs: []string{"message"}},
	}
}

func parse(t *testing.T, doc string) *schema.Workflow {
	t.Helper()
	var wf schema.Workflow
	require.NoError(t, json.Unmarshal([]byte(doc), &wf))
	return &wf
}

func codes(issues []schema.ValidationIssue) []string {
	out := make([]string, 0, len(issues))
	for _, i := range issues {
		out = append(out, i.Code)
	}
	return out
}
