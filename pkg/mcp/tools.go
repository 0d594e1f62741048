package mcp

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/rendis/stepwise/internal/diagram"
	"github.com/rendis/stepwise/internal/emit"
	"github.com/rendis/stepwise/internal/engine"
	"github.com/rendis/stepwise/internal/loader"
	"github.com/rendis/stepwise/internal/store"
	"github.com/rendis/stepwise/pkg/schema"
)

// runResult is the stepwise.run payload.
type runResult struct {
	RunID      string            `json:"run_id"`
	Workflow   string            `json:"workflow"`
	Status     schema.RunStatus  `json:"status"`
	HaltReason schema.HaltReason `json:"halt_reason,omitempty"`
	HaltStep   string            `json:"halt_step,omitempty"`
	Error      string            `json:"error,omitempty"`
	Sequence   uint64            `json:"sequence"`
	Path       []string          `json:"path"`
	Variables  map[string]any    `json:"variables"`
	Events     []schema.Event    `json:"events"`
}

// handleRun executes a workflow document once.
func (s *Server) handleRun(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	doc, errResult := s.parseWorkflowArg(req)
	if errResult != nil {
		return errResult, nil
	}
	inputs := mcp.ParseStringMap(req, "inputs", nil)

	rec := &emit.Recorder{}
	sinks := emit.Fanout{rec, sessionNotifier{mcpServer: s.mcpServer}}
	if s.deps.Emitter != nil {
		sinks = append(sinks, s.deps.Emitter)
	}
	eng, err := engine.New(engine.Options{
		Registry:  s.deps.Registry,
		Emitter:   sinks,
		Language:  req.GetString("language", ""),
		MaxVisits: s.deps.MaxVisits,
		Logger:    s.logger,
		Hooks:     s.deps.Hooks,
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("engine setup failed: %v", err)), nil
	}

	res, runErr := eng.Run(ctx, doc.Workflow, inputs)
	var halt *engine.HaltError
	if runErr != nil && !errors.As(runErr, &halt) {
		return mcp.NewToolResultError(fmt.Sprintf("workflow run failed: %v", runErr)), nil
	}

	out := runResult{
		RunID:     res.RunID,
		Workflow:  res.Workflow,
		Status:    res.Status,
		Sequence:  res.Sequence,
		Path:      res.Path,
		Variables: res.Variables,
		Events:    rec.Events(),
	}
	if halt != nil {
		out.HaltReason = halt.Reason
		out.HaltStep = halt.Step
		out.Error = halt.Err.Error()
	}
	return marshalResult(out)
}

// handleValidate runs the eager validation pipeline.
func (s *Server) handleValidate(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, err := req.RequireString("workflow")
	if err != nil {
		return mcp.NewToolResultError("workflow is required"), nil
	}
	doc, parseErr := parseDocument(text)
	if parseErr != nil {
		result := &schema.ValidationResult{}
		result.AddError("/", schema.CodeOf(parseErr), parseErr.Error())
		return marshalValidation(result)
	}
	return marshalValidation(s.validator.ValidateDocument(doc.Raw, doc.Workflow))
}

func marshalValidation(result *schema.ValidationResult) (*mcp.CallToolResult, error) {
	return marshalResult(map[string]any{
		"valid":         result.Valid(),
		"invalid_steps": result.InvalidSteps(),
		"errors":        result.Errors,
		"warnings":      result.Warnings,
	})
}

// handleCommands lists command descriptors.
func (s *Server) handleCommands(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if name := req.GetString("name", ""); name != "" {
		d, ok := s.deps.Registry.Descriptor(name)
		if !ok {
			return mcp.NewToolResultError(fmt.Sprintf("unknown command %q", name)), nil
		}
		return marshalResult(d)
	}
	return marshalResult(map[string]any{"commands": s.deps.Registry.List()})
}

// handleDiagram renders a workflow, optionally with a recorded run overlaid.
func (s *Server) handleDiagram(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	format, err := req.RequireString("format")
	if err != nil {
		return mcp.NewToolResultError("format is required"), nil
	}
	if format != "ascii" && format != "mermaid" && format != "image" {
		return mcp.NewToolResultError("format must be ascii, mermaid, or image"), nil
	}
	doc, errResult := s.parseWorkflowArg(req)
	if errResult != nil {
		return errResult, nil
	}

	var steps []*store.StepSummary
	if runID := req.GetString("run_id", ""); runID != "" {
		if s.history == nil {
			return mcp.NewToolResultError("run overlay requires a run store"), nil
		}
		steps, err = s.history.Steps(ctx, runID)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("load run %s: %v", runID, err)), nil
		}
	}

	model, buildErr := diagram.Build(doc.Workflow, steps)
	if buildErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("diagram build failed: %v", buildErr)), nil
	}

	switch format {
	case "ascii":
		return mcp.NewToolResultText(diagram.RenderASCII(model)), nil
	case "mermaid":
		return mcp.NewToolResultText(diagram.RenderMermaid(model)), nil
	default:
		png, imgErr := diagram.RenderImage(ctx, model, diagram.FormatPNG)
		if imgErr != nil {
			return mcp.NewToolResultError(fmt.Sprintf("image render failed: %v", imgErr)), nil
		}
		return mcp.NewToolResultText(base64.StdEncoding.EncodeToString(png)), nil
	}
}

// handleHistory lists recorded runs, the events of a run, or its step summary.
func (s *Server) handleHistory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.history == nil {
		return mcp.NewToolResultError("history requires a run store"), nil
	}
	resource, err := req.RequireString("resource")
	if err != nil {
		return mcp.NewToolResultError("resource is required"), nil
	}

	filter := mcp.ParseStringMap(req, "filter", nil)

	switch resource {
	case "runs":
		return s.queryRuns(ctx, filter)
	case "events":
		return s.queryEvents(ctx, filter)
	case "steps":
		runID, _ := filter["run_id"].(string)
		if runID == "" {
			return mcp.NewToolResultError("steps query requires 'run_id' in filter"), nil
		}
		steps, err := s.history.Steps(ctx, runID)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("query failed: %v", err)), nil
		}
		return marshalResult(map[string]any{"steps": steps})
	default:
		return mcp.NewToolResultError(fmt.Sprintf("unknown resource type: %s", resource)), nil
	}
}

// --- Query helpers ---

func (s *Server) queryRuns(ctx context.Context, filter map[string]any) (*mcp.CallToolResult, error) {
	rf := store.RunFilter{
		Limit:  extractInt(filter, "limit", 50),
		Offset: extractInt(filter, "offset", 0),
	}
	if wf, ok := filter["workflow"].(string); ok {
		rf.Workflow = wf
	}
	if status, ok := filter["status"].(string); ok && status != "" {
		rs := schema.RunStatus(status)
		rf.Status = &rs
	}
	if since, ok := filter["since"].(string); ok && since != "" {
		if t, err := time.Parse(time.RFC3339, since); err == nil {
			rf.Since = &t
		}
	}

	runs, err := s.deps.Store.ListRuns(ctx, rf)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("query failed: %v", err)), nil
	}
	return marshalResult(map[string]any{"runs": runs})
}

func (s *Server) queryEvents(ctx context.Context, filter map[string]any) (*mcp.CallToolResult, error) {
	ef := store.EventFilter{
		Limit: extractInt(filter, "limit", 100),
	}
	if runID, ok := filter["run_id"].(string); ok {
		ef.RunID = runID
	}
	if step, ok := filter["step"].(string); ok {
		ef.Step = step
	}
	if since, ok := filter["since"].(string); ok && since != "" {
		if t, err := time.Parse(time.RFC3339, since); err == nil {
			ef.Since = &t
		}
	}
	eventType, _ := filter["event_type"].(string)

	if eventType != "" {
		events, err := s.deps.Store.GetEventsByType(ctx, eventType, ef)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("query failed: %v", err)), nil
		}
		return marshalResult(map[string]any{"events": events})
	}

	if ef.RunID == "" {
		return mcp.NewToolResultError("event query requires either 'event_type' or 'run_id' in filter"), nil
	}
	events, err := s.history.Replay(ctx, ef.RunID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("query failed: %v", err)), nil
	}
	return marshalResult(map[string]any{"events": events})
}

// --- Internal helpers ---

func (s *Server) parseWorkflowArg(req mcp.CallToolRequest) (*loader.Document, *mcp.CallToolResult) {
	text, err := req.RequireString("workflow")
	if err != nil {
		return nil, mcp.NewToolResultError("workflow is required")
	}
	doc, err := parseDocument(text)
	if err != nil {
		return nil, mcp.NewToolResultError(fmt.Sprintf("invalid workflow: %v", err))
	}
	return doc, nil
}

// parseDocument accepts JSON when the text starts with '{', YAML otherwise.
func parseDocument(text string) (*loader.Document, error) {
	format := loader.FormatYAML
	if trimmed := bytes.TrimSpace([]byte(text)); len(trimmed) > 0 && trimmed[0] == '{' {
		format = loader.FormatJSON
	}
	return loader.Parse([]byte(text), format)
}

// extractInt safely extracts an integer from a filter map.
func extractInt(filter map[string]any, key string, defaultVal int) int {
	if filter == nil {
		return defaultVal
	}
	v, ok := filter[key]
	if !ok {
		return defaultVal
	}
	switch val := v.(type) {
	case float64:
		return int(val)
	case int:
		return val
	case string:
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return defaultVal
}

// marshalResult converts a value to a JSON text tool result.
func marshalResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultJSON(json.RawMessage(data))
}
