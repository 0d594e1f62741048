package main

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"

	"github.com/rendis/stepwise/internal/emit"
	"github.com/rendis/stepwise/internal/loader"
	"github.com/rendis/stepwise/internal/scheduler"
	"github.com/rendis/stepwise/internal/validation"
	"github.com/rendis/stepwise/pkg/schema"
)

func (c *cli) newScheduleCommand() *cobra.Command {
	var (
		cronExpr string
		watch    bool
		sets     []string
	)

	cmd := &cobra.Command{
		Use:   "schedule <workflow>",
		Short: "Run a workflow on a cron schedule",
		Long: `Start a fresh run of the workflow on every cron tick until interrupted.
A tick is skipped while the previous run is still in flight. With --watch
the file is reloaded when it changes; an invalid edit keeps the previous
version scheduled.`,
		Example: `  stepwise schedule flows/poll.json --cron "*/5 * * * *"
  stepwise schedule flows/poll.yaml --cron "@every 30s" --watch --store runs.db`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			overrides, err := parseSets(sets)
			if err != nil {
				return err
			}
			return c.schedule(cmd.Context(), args[0], cronExpr, watch, overrides)
		},
	}

	f := cmd.Flags()
	f.StringVar(&cronExpr, "cron", "", "Cron expression (5 or 6 fields, or a descriptor such as @hourly)")
	f.BoolVar(&watch, "watch", false, "Reload the workflow file when it changes")
	f.StringArrayVar(&sets, "set", nil, "Bind an input before every run (key=value, repeatable)")
	f.String("store", "", "Record runs in this libsql database file")
	f.String("redis", "", "Append events to a Redis stream at host:port")
	f.String("metrics-addr", "", "Serve Prometheus metrics on this address")
	f.Bool("trace", false, "Export OpenTelemetry spans")
	_ = cmd.MarkFlagRequired("cron")
	return cmd
}

// workflowFile holds the current version of a scheduled workflow.
type workflowFile struct {
	path      string
	validator *validation.WorkflowValidator
	current   atomic.Pointer[schema.Workflow]
}

// reload loads and validates the file. The previous version stays in
// place when either step fails.
func (f *workflowFile) reload() error {
	doc, err := loader.Load(f.path)
	if err != nil {
		return err
	}
	if err := f.validator.ValidateDocument(doc.Raw, doc.Workflow).ToError(); err != nil {
		return err
	}
	f.current.Store(doc.Workflow)
	return nil
}

func (f *workflowFile) source() (*schema.Workflow, error) {
	wf := f.current.Load()
	if wf == nil {
		return nil, fmt.Errorf("%s: no valid workflow loaded", f.path)
	}
	return wf, nil
}

func (c *cli) schedule(ctx context.Context, path, cronExpr string, watch bool, overrides map[string]any) error {
	rt, err := c.newRuntime(ctx, eventsToStdout)
	if err != nil {
		return err
	}
	defer rt.Close(context.Background())

	v, err := validation.NewWorkflowValidator(rt.registry)
	if err != nil {
		return err
	}
	file := &workflowFile{path: path, validator: v}
	if err := file.reload(); err != nil {
		return err
	}

	hub := emit.NewMemoryHub()
	eng, err := rt.engine("", hub)
	if err != nil {
		return err
	}
	finished, unsubscribe, err := hub.Subscribe(ctx, emit.Filter{
		Events: []schema.EventType{schema.EventEnd, schema.EventError},
	})
	if err != nil {
		return err
	}
	defer unsubscribe()
	go c.reportRuns(ctx, finished)

	sched := scheduler.New(func(ctx context.Context, wf *schema.Workflow) error {
		_, err := eng.Run(ctx, wf, overrides)
		return err
	}, c.logger)

	if err := sched.Add(path, cronExpr, file.source); err != nil {
		return err
	}
	if watch {
		onChange := func() {
			if err := file.reload(); err != nil {
				c.logger.Warn("workflow reload rejected, keeping previous version", "path", path, "error", err)
				return
			}
			c.logger.Info("workflow reloaded", "path", path)
		}
		watchCtx, stopWatch := context.WithCancel(ctx)
		watching, err := scheduler.Watch(watchCtx, path, scheduler.DefaultDebounce, onChange, c.logger)
		if err != nil {
			stopWatch()
			return err
		}
		defer func() {
			stopWatch()
			<-watching
		}()
	}

	if err := sched.Start(ctx); err != nil {
		return err
	}
	next, _ := sched.NextRun(cronExpr, time.Now())
	c.logger.Info("scheduler started", "workflow", path, "cron", cronExpr, "next", next)

	<-ctx.Done()
	if err := sched.Stop(); err != nil {
		return err
	}
	for _, job := range sched.Jobs() {
		c.logger.Info("job summary",
			"job", job.ID, "runs", job.Runs, "skipped", job.Skipped, "failures", job.Failures)
	}
	return nil
}

// reportRuns logs one line per finished or halted run.
func (c *cli) reportRuns(ctx context.Context, events <-chan schema.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if ev.Event == schema.EventError {
				c.logger.Warn("scheduled run halted", "run_id", ev.RunID, "step", ev.Step, "error", ev.Message)
				continue
			}
			c.logger.Info("scheduled run finished", "run_id", ev.RunID, "steps", ev.ID)
		}
	}
}
