package mcp

import (
	"context"

	"github.com/mark3labs/mcp-go/server"

	"github.com/rendis/stepwise/pkg/schema"
)

// sessionNotifier forwards run events to the MCP client that started the
// run as logging notifications. Emit is a no-op outside a client session.
type sessionNotifier struct {
	mcpServer *server.MCPServer
}

func (n sessionNotifier) Emit(ctx context.Context, ev schema.Event) error {
	if server.ClientSessionFromContext(ctx) == nil {
		return nil
	}
	return n.mcpServer.SendNotificationToClient(ctx, "notifications/message", map[string]any{
		"level":  notificationLevel(ev.Event),
		"logger": "stepwise",
		"data":   ev,
	})
}

func notificationLevel(t schema.EventType) string {
	switch t {
	case schema.EventError:
		return "error"
	case schema.EventLog:
		return "info"
	default:
		return "debug"
	}
}
