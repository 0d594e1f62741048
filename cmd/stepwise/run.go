package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/rendis/stepwise/internal/engine"
	"github.com/rendis/stepwise/internal/loader"
)

func (c *cli) newRunCommand() *cobra.Command {
	var sets []string

	cmd := &cobra.Command{
		Use:   "run <workflow>",
		Short: "Execute a workflow once",
		Long: `Execute a workflow document from its Start step to an End step.

Events are written to stdout as JSON lines. The exit status is 0 when the
run completes and 1 when it halts.`,
		Example: `  stepwise run flows/greet.json
  stepwise run flows/greet.yaml --set who=world --set retries=3
  stepwise run flows/greet.json --language cel --store runs.db`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			overrides, err := parseSets(sets)
			if err != nil {
				return err
			}
			return c.run(cmd, args[0], overrides)
		},
	}

	f := cmd.Flags()
	f.StringArrayVar(&sets, "set", nil, "Bind an input before the run (key=value, repeatable)")
	f.String("language", "expr", "Expression language: expr, cel, jq or lua (overrides the workflow's own)")
	f.Int("max-visits", engine.DefaultMaxVisits, "Loop guard: visits allowed per step")
	f.String("store", "", "Record the run in this libsql database file")
	f.String("redis", "", "Append events to a Redis stream at host:port")
	f.String("redis-stream", "stepwise:events", "Redis stream name")
	f.String("metrics-addr", "", "Serve Prometheus metrics on this address while running")
	f.Bool("trace", false, "Export OpenTelemetry spans")
	return cmd
}

func (c *cli) run(cmd *cobra.Command, path string, overrides map[string]any) error {
	ctx := cmd.Context()

	doc, err := loader.Load(path)
	if err != nil {
		return err
	}

	rt, err := c.newRuntime(ctx, eventsToStdout)
	if err != nil {
		return err
	}
	defer rt.Close(ctx)

	language := ""
	if cmd.Flags().Changed("language") {
		language = c.cfg.Engine.Language
	}
	eng, err := rt.engine(language)
	if err != nil {
		return err
	}

	res, err := eng.Run(ctx, doc.Workflow, overrides)
	var halt *engine.HaltError
	switch {
	case errors.As(err, &halt):
		c.logger.Warn("run halted",
			"run_id", res.RunID,
			"reason", halt.Reason,
			"step", halt.Step,
			"error", halt.Err)
		return halted("")
	case err != nil:
		return err
	}

	c.logger.Info("run completed",
		"run_id", res.RunID,
		"workflow", res.Workflow,
		"steps", len(res.Path),
		"duration", res.Duration())
	return nil
}

// parseSets turns key=value pairs into input bindings. Values are read
// as YAML scalars, so numbers and booleans keep their type.
func parseSets(sets []string) (map[string]any, error) {
	if len(sets) == 0 {
		return nil, nil
	}
	out := make(map[string]any, len(sets))
	for _, kv := range sets {
		key, raw, ok := strings.Cut(kv, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --set %q: expected key=value", kv)
		}
		out[key] = scalar(raw)
	}
	return out, nil
}

func scalar(raw string) any {
	var v any
	if err := yaml.Unmarshal([]byte(raw), &v); err != nil {
		return raw
	}
	switch v.(type) {
	case nil:
		if raw == "" {
			return ""
		}
		return nil
	case map[string]any, []any:
		return raw
	}
	return v
}
