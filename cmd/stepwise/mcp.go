package main

import (
	"github.com/spf13/cobra"

	"github.com/rendis/stepwise/pkg/mcp"
)

func (c *cli) newMCPCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve the stepwise tools over MCP on stdio",
		Long: `Start a Model Context Protocol server on stdin/stdout exposing the
stepwise.run, stepwise.validate, stepwise.commands, stepwise.diagram and
stepwise.history tools. Events are logged to stderr.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			rt, err := c.newRuntime(ctx, eventsToLog)
			if err != nil {
				return err
			}
			defer rt.Close(ctx)

			deps := mcp.ServerDeps{
				Registry:  rt.registry,
				Emitter:   rt.sinks,
				Hooks:     rt.hooks,
				MaxVisits: c.cfg.Engine.MaxVisits,
				Logger:    c.logger,
				Version:   version,
			}
			if rt.store != nil {
				deps.Store = rt.store
			}
			srv, err := mcp.NewServer(deps)
			if err != nil {
				return err
			}
			c.logger.Info("mcp server listening on stdio", "version", version)
			return srv.Serve(ctx)
		},
	}
	f := cmd.Flags()
	f.String("store", "", "Record runs in this libsql database file and enable stepwise.history")
	f.String("redis", "", "Append events to a Redis stream at host:port")
	f.String("metrics-addr", "", "Serve Prometheus metrics on this address")
	return cmd
}
