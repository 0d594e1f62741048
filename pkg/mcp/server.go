// Package mcp exposes stepwise to agents as an MCP stdio server.
package mcp

import (
	"context"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/rendis/stepwise/internal/commands"
	"github.com/rendis/stepwise/internal/emit"
	"github.com/rendis/stepwise/internal/engine"
	"github.com/rendis/stepwise/internal/store"
	"github.com/rendis/stepwise/internal/validation"
	"github.com/rendis/stepwise/pkg/schema"
)

// ServerDeps holds the dependencies for creating a Server. Registry is
// required; Store enables the history tool and run overlays on diagrams.
type ServerDeps struct {
	Registry  *commands.Registry
	Store     store.Store
	Emitter   emit.Emitter  // extra sink for every run started through the server
	Hooks     *engine.Hooks // shared run transition hooks
	MaxVisits int
	Logger    *slog.Logger
	Version   string
}

// Server wraps an MCP server with stepwise tool handlers.
type Server struct {
	deps      ServerDeps
	validator *validation.WorkflowValidator
	history   *store.EventLog
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

// NewServer creates a Server with all tools registered.
func NewServer(deps ServerDeps) (*Server, error) {
	if deps.Registry == nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "mcp server requires a command registry")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	if deps.Hooks == nil {
		deps.Hooks = engine.NewHooks()
	}
	if deps.Version == "" {
		deps.Version = "dev"
	}

	v, err := validation.NewWorkflowValidator(deps.Registry)
	if err != nil {
		return nil, err
	}

	s := &Server{
		deps:      deps,
		validator: v,
		logger:    logger.With("component", "mcp"),
	}
	if deps.Store != nil {
		s.history = store.NewEventLog(deps.Store)
	}

	mcpSrv := server.NewMCPServer(
		"stepwise",
		deps.Version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions("Stepwise runs state-machine workflows of Start, End, Condition and Command steps. Use stepwise.validate before stepwise.run, stepwise.commands to list the available commands and their inputs, stepwise.diagram to visualize a workflow, and stepwise.history to inspect recorded runs."),
	)

	mcpSrv.AddTools(s.tools()...)
	s.mcpServer = mcpSrv
	return s, nil
}

// Serve starts the stdio transport and blocks until ctx is cancelled or stdin closes.
func (s *Server) Serve(ctx context.Context) error {
	stdio := server.NewStdioServer(s.mcpServer)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// MCPServer returns the underlying MCPServer for testing or custom transports.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

func (s *Server) tools() []server.ServerTool {
	return []server.ServerTool{
		{Tool: runTool(), Handler: s.handleRun},
		{Tool: validateTool(), Handler: s.handleValidate},
		{Tool: commandsTool(), Handler: s.handleCommands},
		{Tool: diagramTool(), Handler: s.handleDiagram},
		{Tool: historyTool(), Handler: s.handleHistory},
	}
}

// --- Tool definitions ---

const workflowArgDescription = "Workflow document as JSON or YAML text"

func runTool() mcp.Tool {
	return mcp.NewTool("stepwise.run",
		mcp.WithDescription("Run a workflow once from its Start step and return the result and emitted events"),
		mcp.WithString("workflow", mcp.Required(), mcp.Description(workflowArgDescription)),
		mcp.WithObject("inputs", mcp.Description("Scalar input bindings applied after the workflow's own inputs")),
		mcp.WithString("language", mcp.Enum("expr", "cel", "jq", "lua"), mcp.Description("Expression language override")),
	)
}

func validateTool() mcp.Tool {
	return mcp.NewTool("stepwise.validate",
		mcp.WithDescription("Validate a workflow without running it"),
		mcp.WithString("workflow", mcp.Required(), mcp.Description(workflowArgDescription)),
	)
}

func commandsTool() mcp.Tool {
	return mcp.NewTool("stepwise.commands",
		mcp.WithDescription("List registered commands with their inputs and outputs"),
		mcp.WithString("name", mcp.Description("Describe a single command")),
	)
}

func diagramTool() mcp.Tool {
	return mcp.NewTool("stepwise.diagram",
		mcp.WithDescription("Generate a diagram of a workflow. Returns ASCII art, Mermaid flowchart syntax, or base64-encoded PNG image"),
		mcp.WithString("workflow", mcp.Required(), mcp.Description(workflowArgDescription)),
		mcp.WithString("format", mcp.Required(),
			mcp.Enum("ascii", "mermaid", "image"),
			mcp.Description("Output format: ascii (text), mermaid (flowchart syntax), or image (base64 PNG)"),
		),
		mcp.WithString("run_id", mcp.Description("Overlay the recorded outcome of this run")),
	)
}

func historyTool() mcp.Tool {
	return mcp.NewTool("stepwise.history",
		mcp.WithDescription("Query recorded runs or the events of a run"),
		mcp.WithString("resource", mcp.Required(),
			mcp.Enum("runs", "events", "steps"),
			mcp.Description("Type of resource to query"),
		),
		mcp.WithObject("filter", mcp.Description("Filter criteria (workflow, status, since, limit, offset, run_id, event_type, step)")),
	)
}
