package commands

import (
	"context"
	"log/slog"
	"strings"

	"github.com/rendis/stepwise/pkg/schema"
)

type logCommand struct{}

func (c *logCommand) Name() string { return "Log" }

func (c *logCommand) Describe() Descriptor {
	return Descriptor{
		Name:        c.Name(),
		Description: "Evaluate a message, emit it as a log event and bind it to an output",
		Required:    []string{"message"},
		Optional:    []string{"level"},
		Outputs:     []string{"message"},
	}
}

func (c *logCommand) Execute(ctx context.Context, inv Invocation) (Outputs, error) {
	msg, err := inv.RequireString(ctx, "message")
	if err != nil {
		return nil, err
	}
	level, err := inv.OptionalString(ctx, "level", "info")
	if err != nil {
		return nil, err
	}

	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeInvalidInput, "invalid log level %q", level)
	}

	inv.emit(schema.EventLog, msg)
	inv.logger().Log(ctx, lvl, msg, slog.String("step", inv.Step), slog.Uint64("seq", inv.Sequence))

	return Outputs{"message": msg}, nil
}
