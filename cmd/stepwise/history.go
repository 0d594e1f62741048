package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/rendis/stepwise/internal/emit"
	"github.com/rendis/stepwise/internal/store"
	"github.com/rendis/stepwise/pkg/schema"
)

func (c *cli) newHistoryCommand() *cobra.Command {
	var (
		runID    string
		workflow string
		status   string
		limit    int
		asJSON   bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect recorded runs",
		Long: `List the runs recorded in a libsql store, or show the steps and events
of one run with --run. With --redis the events are read from the Redis
stream instead.`,
		Example: `  stepwise history --store runs.db
  stepwise history --store runs.db --status halted --limit 5
  stepwise history --store runs.db --run 6f1c...
  stepwise history --redis localhost:6379 --run 6f1c...`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			if cmd.Flags().Changed("redis") || (c.cfg.Emit.StorePath == "" && c.cfg.Emit.RedisAddr != "") {
				return c.streamHistory(ctx, out, runID, asJSON)
			}
			st, err := c.openStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close()

			if runID != "" {
				return showRun(ctx, out, st, runID, asJSON)
			}
			filter := store.RunFilter{Workflow: workflow, Limit: limit}
			if status != "" {
				rs := schema.RunStatus(status)
				filter.Status = &rs
			}
			return listRuns(ctx, out, st, filter, asJSON)
		},
	}

	f := cmd.Flags()
	f.StringVar(&runID, "run", "", "Show the steps and events of this run")
	f.StringVar(&workflow, "workflow", "", "Only runs of this workflow")
	f.StringVar(&status, "status", "", "Only runs in this status: pending, running, completed, halted")
	f.IntVar(&limit, "limit", 20, "Maximum runs to list")
	f.BoolVar(&asJSON, "json", false, "Print as JSON")
	f.String("store", "", "libsql database holding recorded runs")
	f.String("redis", "", "Read events from the Redis stream at host:port")
	f.String("redis-stream", "stepwise:events", "Redis stream name")
	return cmd
}

// openStore opens the configured run store.
func (c *cli) openStore(ctx context.Context) (*store.LibSQLStore, error) {
	if c.cfg.Emit.StorePath == "" {
		return nil, errors.New("no run store configured (use --store or emit.store_path)")
	}
	return store.Open(ctx, c.cfg.Emit.StorePath)
}

func listRuns(ctx context.Context, out io.Writer, st store.Store, filter store.RunFilter, asJSON bool) error {
	runs, err := st.ListRuns(ctx, filter)
	if err != nil {
		return err
	}
	if asJSON {
		return writeJSON(out, map[string]any{"runs": runs})
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tWORKFLOW\tSTATUS\tSTEPS\tSTARTED\tHALT")
	for _, r := range runs {
		halt := ""
		if r.HaltReason != "" {
			halt = fmt.Sprintf("%s at %s", r.HaltReason, r.HaltStep)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n",
			r.ID, r.Workflow, r.Status, r.Sequence, r.StartedAt.Format(time.RFC3339), halt)
	}
	return tw.Flush()
}

func showRun(ctx context.Context, out io.Writer, st store.Store, runID string, asJSON bool) error {
	run, err := st.GetRun(ctx, runID)
	if err != nil {
		return err
	}
	history := store.NewEventLog(st)
	steps, err := history.Steps(ctx, runID)
	if err != nil {
		return err
	}
	events, err := history.Replay(ctx, runID)
	if err != nil {
		return err
	}
	if asJSON {
		return writeJSON(out, map[string]any{"run": run, "steps": steps, "events": events})
	}

	fmt.Fprintf(out, "run %s (%s): %s after %d step(s)\n", run.ID, run.Workflow, run.Status, run.Sequence)
	if run.Error != "" {
		fmt.Fprintf(out, "halted: %s at %s: %s\n", run.HaltReason, run.HaltStep, run.Error)
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "\nSTEP\tVISITS\tLOGS\tERROR")
	for _, s := range steps {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%s\n", s.Step, s.Visits, len(s.Logs), s.Error)
	}
	fmt.Fprintln(tw, "\nSEQ\tEVENT\tSTEP\tMESSAGE")
	for _, ev := range events {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", ev.ID, ev.Event, ev.Step, ev.Message)
	}
	return tw.Flush()
}

// streamHistory prints the events of the configured Redis stream, limited
// to one run when runID is set.
func (c *cli) streamHistory(ctx context.Context, out io.Writer, runID string, asJSON bool) error {
	client := redis.NewClient(&redis.Options{Addr: c.cfg.Emit.RedisAddr})
	defer client.Close()

	events, err := emit.ReadStream(ctx, client, c.cfg.Emit.RedisStream)
	if err != nil {
		return fmt.Errorf("read redis stream %s: %w", c.cfg.Emit.RedisStream, err)
	}
	if runID != "" {
		kept := events[:0]
		for _, ev := range events {
			if ev.RunID == runID {
				kept = append(kept, ev)
			}
		}
		if len(kept) == 0 {
			return fmt.Errorf("run %s has no events in stream %s", runID, c.cfg.Emit.RedisStream)
		}
		events = kept
	}
	if asJSON {
		return writeJSON(out, map[string]any{"events": events})
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tSEQ\tEVENT\tSTEP\tMESSAGE")
	for _, ev := range events {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\n", ev.RunID, ev.ID, ev.Event, ev.Step, ev.Message)
	}
	return tw.Flush()
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
