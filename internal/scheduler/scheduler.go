// Package scheduler re-invokes workflows on a cron cadence. Every tick
// starts a fresh run; a tick that arrives while the previous run of the
// same job is still in flight is skipped.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/rendis/stepwise/pkg/schema"
)

// RunFunc runs one workflow to completion or halt.
type RunFunc func(ctx context.Context, wf *schema.Workflow) error

// Source produces the workflow for a tick. It is called once per tick so
// edits to the underlying document are picked up by the next run.
type Source func() (*schema.Workflow, error)

// JobInfo describes a scheduled job.
type JobInfo struct {
	ID       string    `json:"id"`
	Cron     string    `json:"cron"`
	Next     time.Time `json:"next"`
	Prev     time.Time `json:"prev"`
	Runs     int       `json:"runs"`
	Skipped  int       `json:"skipped"`
	Failures int       `json:"failures"`
}

type job struct {
	id       string
	expr     string
	source   Source
	entry    cron.EntryID
	runs     int
	skipped  int
	failures int
}

// Scheduler triggers fresh workflow runs on cron schedules.
type Scheduler struct {
	run    RunFunc
	parser cron.Parser
	cron   *cron.Cron
	logger *slog.Logger

	mu     sync.Mutex
	jobs   map[string]*job
	ctx    context.Context
	cancel context.CancelFunc

	inflightMu sync.Mutex
	inflight   map[string]struct{} // job IDs currently executing (dedup)
}

// New creates a Scheduler that starts runs with run.
func New(run RunFunc, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	parser := cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	return &Scheduler{
		run:      run,
		parser:   parser,
		cron:     cron.New(cron.WithParser(parser)),
		logger:   logger.With("component", "scheduler"),
		jobs:     make(map[string]*job),
		inflight: make(map[string]struct{}),
	}
}

// Add registers a job. Jobs may be added before or after Start.
func (s *Scheduler) Add(id, cronExpr string, source Source) error {
	if id == "" {
		return schema.NewError(schema.ErrCodeValidation, "job id is required")
	}
	if source == nil {
		return schema.NewErrorf(schema.ErrCodeValidation, "job %q has no workflow source", id)
	}
	sched, err := s.parser.Parse(cronExpr)
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeValidation, "parse cron expression %q", cronExpr).WithCause(err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[id]; exists {
		return schema.NewErrorf(schema.ErrCodeConflict, "job %q already scheduled", id)
	}
	j := &job{id: id, expr: cronExpr, source: source}
	j.entry = s.cron.Schedule(sched, cron.FuncJob(func() { s.Trigger(id) }))
	s.jobs[id] = j

	s.logger.Info("job scheduled", slog.String("job_id", id), slog.String("cron", cronExpr))
	return nil
}

// Remove unschedules a job. An in-flight run is not interrupted.
func (s *Scheduler) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return schema.NewErrorf(schema.ErrCodeNotFound, "job %q not found", id)
	}
	s.cron.Remove(j.entry)
	delete(s.jobs, id)
	return nil
}

// Start begins firing jobs. Runs receive a context derived from ctx.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return fmt.Errorf("scheduler already started")
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.cron.Start()
	s.logger.Info("scheduler started", slog.Int("jobs", len(s.jobs)))
	return nil
}

// Stop halts the cron clock, waits for in-flight runs and cancels the
// run context.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	if cancel == nil {
		return nil
	}
	<-s.cron.Stop().Done()
	cancel()

	s.logger.Info("scheduler stopped")
	return nil
}

// Trigger runs a job immediately. It reports false when the job is
// unknown or its previous run is still in flight.
func (s *Scheduler) Trigger(id string) bool {
	s.mu.Lock()
	j, ok := s.jobs[id]
	ctx := s.ctx
	s.mu.Unlock()
	if !ok {
		return false
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if !s.tryAcquire(id) {
		s.mu.Lock()
		j.skipped++
		s.mu.Unlock()
		s.logger.Warn("previous run still in flight, skipping tick", slog.String("job_id", id))
		return false
	}
	defer s.releaseJob(id)

	err := s.runJob(ctx, j)

	s.mu.Lock()
	j.runs++
	if err != nil {
		j.failures++
	}
	s.mu.Unlock()
	return true
}

func (s *Scheduler) runJob(ctx context.Context, j *job) error {
	s.logger.Info("running scheduled job", slog.String("job_id", j.id))

	wf, err := j.source()
	if err != nil {
		s.logger.Error("failed to load workflow for job",
			slog.String("job_id", j.id),
			slog.String("error", err.Error()),
		)
		return err
	}
	if err := s.run(ctx, wf); err != nil {
		s.logger.Error("scheduled run failed",
			slog.String("job_id", j.id),
			slog.String("workflow", wf.Name),
			slog.String("error", err.Error()),
		)
		return err
	}
	return nil
}

// tryAcquire returns true and marks the job as in-flight if it is not already running.
func (s *Scheduler) tryAcquire(jobID string) bool {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	if _, ok := s.inflight[jobID]; ok {
		return false
	}
	s.inflight[jobID] = struct{}{}
	return true
}

// releaseJob removes the job from the in-flight set.
func (s *Scheduler) releaseJob(jobID string) {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	delete(s.inflight, jobID)
}

// Jobs lists scheduled jobs ordered by id.
func (s *Scheduler) Jobs() []JobInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]JobInfo, 0, len(s.jobs))
	for _, j := range s.jobs {
		entry := s.cron.Entry(j.entry)
		out = append(out, JobInfo{
			ID:       j.id,
			Cron:     j.expr,
			Next:     entry.Next,
			Prev:     entry.Prev,
			Runs:     j.runs,
			Skipped:  j.skipped,
			Failures: j.failures,
		})
	}
	sort.Slice(out, func(a, b int) bool { return out[a].ID < out[b].ID })
	return out
}

// NextRun computes the next run time for a cron expression.
func (s *Scheduler) NextRun(cronExpr string, from time.Time) (time.Time, error) {
	schedule, err := s.parser.Parse(cronExpr)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse cron expression %q: %w", cronExpr, err)
	}
	return schedule.Next(from), nil
}
