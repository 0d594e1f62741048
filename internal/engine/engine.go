// Package engine runs workflows: it walks the step graph from the Start
// step, dispatches Command steps to the registry, evaluates Condition
// steps, and reports every transition to an Emitter.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/rendis/stepwise/internal/commands"
	"github.com/rendis/stepwise/internal/emit"
	"github.com/rendis/stepwise/internal/expressions"
	"github.com/rendis/stepwise/internal/logging"
	"github.com/rendis/stepwise/pkg/schema"
)

// DefaultMaxVisits bounds the number of visits per step before a run is
// halted by the loop guard.
const DefaultMaxVisits = 1000

const tracerName = "github.com/rendis/stepwise/internal/engine"

// Event messages.
const (
	msgStepStarted      = "step started"
	msgStepEnded        = "step ended"
	msgWorkflowFinished = "workflow finished"
)

// Options configures an Engine. Registry is required.
type Options struct {
	Registry *commands.Registry
	Emitter  emit.Emitter
	// Evaluators builds the expression backend for a language name.
	// Defaults to expressions.New.
	Evaluators func(language string) (expressions.Evaluator, error)
	// Language overrides the workflow's own language when set.
	Language string
	// DefaultLanguage applies to workflows that name no language.
	DefaultLanguage string
	MaxVisits       int
	Logger          *slog.Logger
	Tracer          trace.Tracer
	Hooks           *Hooks
	Clock           func() time.Time
	NewRunID        func() string
}

// Engine executes workflows. It holds no per-run state and is safe for
// concurrent use by independent runs.
type Engine struct {
	registry   *commands.Registry
	emitter    emit.Emitter
	evaluators func(string) (expressions.Evaluator, error)
	language   string
	fallback   string
	maxVisits  int
	logger     *slog.Logger
	tracer     trace.Tracer
	hooks      *Hooks
	clock      func() time.Time
	newRunID   func() string
}

// New creates an Engine from opts, filling defaults.
func New(opts Options) (*Engine, error) {
	if opts.Registry == nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "engine requires a command registry")
	}
	e := &Engine{
		registry:   opts.Registry,
		emitter:    opts.Emitter,
		evaluators: opts.Evaluators,
		language:   opts.Language,
		fallback:   opts.DefaultLanguage,
		maxVisits:  opts.MaxVisits,
		logger:     opts.Logger,
		tracer:     opts.Tracer,
		hooks:      opts.Hooks,
		clock:      opts.Clock,
		newRunID:   opts.NewRunID,
	}
	if e.emitter == nil {
		e.emitter = emit.Discard
	}
	if e.evaluators == nil {
		e.evaluators = expressions.New
	}
	if e.maxVisits <= 0 {
		e.maxVisits = DefaultMaxVisits
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.tracer == nil {
		e.tracer = otel.Tracer(tracerName)
	}
	if e.hooks == nil {
		e.hooks = NewHooks()
	}
	if e.clock == nil {
		e.clock = time.Now
	}
	if e.newRunID == nil {
		e.newRunID = uuid.NewString
	}
	return e, nil
}

// Hooks returns the transition hook table shared by all runs.
func (e *Engine) Hooks() *Hooks { return e.hooks }

// Registry returns the command registry used for dispatch.
func (e *Engine) Registry() *commands.Registry { return e.registry }

// Result is the outcome of one run.
type Result struct {
	RunID      string            `json:"run_id"`
	Workflow   string            `json:"workflow"`
	Status     schema.RunStatus  `json:"status"`
	Halt       *HaltError        `json:"-"`
	Sequence   uint64            `json:"sequence"`
	Path       []string          `json:"path"`
	Variables  map[string]any    `json:"variables"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt time.Time         `json:"finished_at"`
	Reason     schema.HaltReason `json:"halt_reason,omitempty"`
}

// Completed reports whether the run reached an End step.
func (r *Result) Completed() bool { return r.Status == schema.RunStatusCompleted }

// Duration is the wall time between start and finish.
func (r *Result) Duration() time.Duration { return r.FinishedAt.Sub(r.StartedAt) }

// run is the mutable state of one execution.
type run struct {
	e      *Engine
	wf     *schema.Workflow
	res    *Result
	fsm    *runFSM
	cur    *cursor
	scope  *expressions.Scope
	logger *slog.Logger
	seq    uint64

	overrides map[string]any
}

// Run executes wf once, from its Start step to an End step or a halt.
// overrides are bound after the workflow inputs. A halted run returns the
// Result together with a *HaltError. The returned error is a plain
// *schema.FlowError only when the run could not be set up at all.
func (e *Engine) Run(ctx context.Context, wf *schema.Workflow, overrides map[string]any) (*Result, error) {
	if wf == nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "workflow is nil")
	}

	language := e.language
	if language == "" {
		language = wf.Language
	}
	if language == "" {
		language = e.fallback
	}
	if language == "" {
		language = expressions.DefaultLanguage
	}
	evaluator, err := e.evaluators(language)
	if err != nil {
		return nil, err
	}

	res := &Result{
		RunID:     e.newRunID(),
		Workflow:  wf.Name,
		StartedAt: e.clock(),
	}
	r := &run{
		e:     e,
		wf:    wf,
		res:   res,
		fsm:   newRunFSM(e.hooks, res),
		cur:   newCursor(wf),
		scope: expressions.NewScope(evaluator),

		overrides: overrides,
	}

	ctx = logging.WithWorkflow(logging.WithRunID(ctx, res.RunID), wf.Name)
	r.logger = e.logger.With("component", "engine")

	ctx, span := e.tracer.Start(ctx, "stepwise.run", trace.WithAttributes(
		attribute.String("stepwise.run_id", res.RunID),
		attribute.String("stepwise.workflow", wf.Name),
		attribute.String("stepwise.language", evaluator.Name()),
	))
	defer span.End()

	halt := r.execute(ctx)

	res.FinishedAt = e.clock()
	res.Sequence = r.seq
	res.Variables = r.scope.Variables()
	span.SetAttributes(attribute.Int64("stepwise.sequence", int64(r.seq)))

	if halt != nil {
		res.Halt = halt
		res.Reason = halt.Reason
		span.RecordError(halt)
		span.SetStatus(codes.Error, string(halt.Reason))
		r.logger.WarnContext(ctx, "run halted",
			"reason", halt.Reason, "step", halt.Step, "sequence", halt.Sequence, "error", halt.Err)
		r.transition(ctx, schema.RunStatusHalted)
		return res, halt
	}

	span.SetStatus(codes.Ok, "")
	r.logger.DebugContext(ctx, "run completed", "sequence", r.seq, "duration", res.Duration())
	r.transition(ctx, schema.RunStatusCompleted)
	return res, nil
}

func (r *run) execute(ctx context.Context) *HaltError {
	for _, w := range r.scope.Seed(r.wf.Inputs) {
		r.warn(ctx, "", w)
	}
	for _, w := range r.scope.Seed(r.overrides) {
		r.warn(ctx, "", w)
	}

	ref, err := r.cur.start()
	if err != nil {
		return r.halt(ctx, "", err)
	}
	r.transition(ctx, schema.RunStatusRunning)

	limit := uint64(r.e.maxVisits) * uint64(r.cur.size())
	from := ""
	for {
		step, err := r.cur.resolve(from, ref)
		if err != nil {
			return r.halt(ctx, from, err)
		}
		// The guard fires before ref is entered, so the halt belongs to the
		// last visited step and its sequence id.
		if r.seq >= limit {
			return r.halt(ctx, from, schema.NewErrorf(schema.ErrCodeLoopGuard,
				"visited %d steps, limit is %d (%d per step); not entering %q", r.seq, limit, r.e.maxVisits, ref).
				WithStep(from))
		}

		r.seq++
		r.res.Path = append(r.res.Path, ref)

		next, done, halt := r.visit(ctx, ref, step)
		if halt != nil {
			return halt
		}
		if done {
			return nil
		}
		from, ref = ref, next
	}
}

// visit executes one step. It returns the next reference, or done when
// the step was an End step.
func (r *run) visit(ctx context.Context, ref string, step schema.Step) (next string, done bool, halt *HaltError) {
	ctx = logging.WithStep(ctx, ref)
	ctx, span := r.e.tracer.Start(ctx, "stepwise.step", trace.WithAttributes(
		attribute.String("stepwise.step", ref),
		attribute.String("stepwise.kind", string(step.Kind())),
		attribute.Int64("stepwise.sequence", int64(r.seq)),
	))
	defer span.End()

	r.logger.DebugContext(ctx, "dispatch step", "kind", step.Kind(), "sequence", r.seq)
	r.emit(ctx, schema.EventStart, ref, msgStepStarted)

	switch s := step.(type) {
	case schema.StartStep:
		next = s.Next
	case schema.EndStep:
		r.emit(ctx, schema.EventEnd, ref, msgWorkflowFinished)
		return "", true, nil
	case schema.ConditionStep:
		target, err := r.selectClause(ctx, ref, s)
		if err != nil {
			halt = r.halt(ctx, ref, err)
		}
		next = target
	case schema.CommandStep:
		if err := r.dispatch(ctx, ref, s); err != nil {
			halt = r.halt(ctx, ref, err)
		}
		next = s.Next
	default:
		halt = r.halt(ctx, ref, schema.NewErrorf(schema.ErrCodeValidation,
			"unsupported step kind %q", step.Kind()).WithStep(ref))
	}

	if halt != nil {
		span.RecordError(halt.Err)
		span.SetStatus(codes.Error, string(halt.Reason))
		return "", false, halt
	}
	r.emit(ctx, schema.EventEnd, ref, msgStepEnded)
	return next, false, nil
}

// selectClause evaluates clauses in declaration order. A clause that fails
// to evaluate counts as false.
func (r *run) selectClause(ctx context.Context, ref string, s schema.ConditionStep) (string, error) {
	for i, clause := range s.Clauses {
		if clause.IsElse() {
			return clause.Next, nil
		}
		ok, err := r.scope.EvaluateBool(ctx, clause.Expression)
		if err != nil {
			r.warn(ctx, ref, fmt.Sprintf("condition %d (%s) treated as false: %v", i, clause.Expression, err))
			continue
		}
		if ok {
			return clause.Next, nil
		}
	}
	return "", schema.NewErrorf(schema.ErrCodeNoConditionMatched,
		"none of %d conditions matched", len(s.Clauses)).WithStep(ref)
}

// dispatch runs a command step and folds its outputs into the scope.
func (r *run) dispatch(ctx context.Context, ref string, s schema.CommandStep) error {
	cmd, err := r.e.registry.Get(s.Command)
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeUnknownCommand, "command %q is not registered", s.Command).
			WithStep(ref).
			WithCause(err)
	}

	seq := r.seq
	outputs, err := cmd.Execute(ctx, commands.Invocation{
		Inputs:   s.Inputs,
		Scope:    r.scope,
		Step:     ref,
		Sequence: seq,
		Logger:   logging.LogWith(ctx, r.logger),
		Emit: func(kind schema.EventType, message string) {
			r.emitSeq(ctx, kind, ref, seq, message)
		},
	})
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeCommandFailed, "command %s: %s", s.Command, err.Error()).
			WithStep(ref).
			WithCause(err).
			WithDetails(map[string]any{"command": s.Command, "code": schema.CodeOf(err)})
	}

	names := make([]string, 0, len(outputs))
	for name := range outputs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		r.scope.SetVariable(s.OutputVariable(name), outputs[name])
	}
	return nil
}

// halt emits the error event for err and builds the HaltError.
func (r *run) halt(ctx context.Context, step string, err error) *HaltError {
	seq := r.seq
	if step == "" {
		seq = 0
	}
	r.emitSeq(ctx, schema.EventError, step, seq, err.Error())
	return newHalt(step, seq, err)
}

func (r *run) warn(ctx context.Context, step, message string) {
	r.logger.WarnContext(ctx, message, "sequence", r.seq)
	r.emit(ctx, schema.EventLog, step, message)
}

func (r *run) transition(ctx context.Context, to schema.RunStatus) {
	if err := r.fsm.transition(ctx, to); err != nil {
		r.logger.WarnContext(ctx, "run transition hook failed", "to", to, "error", err)
	}
}

func (r *run) emit(ctx context.Context, kind schema.EventType, step, message string) {
	r.emitSeq(ctx, kind, step, r.seq, message)
}

// emitSeq delivers one event. Emitter errors and panics are logged and
// otherwise ignored.
func (r *run) emitSeq(ctx context.Context, kind schema.EventType, step string, seq uint64, message string) {
	ev := schema.Event{
		ID:        seq,
		Event:     kind,
		Step:      step,
		Message:   message,
		Timestamp: r.e.clock(),
		RunID:     r.res.RunID,
		Workflow:  r.res.Workflow,
	}
	defer func() {
		if p := recover(); p != nil {
			r.logger.WarnContext(ctx, "emitter panicked", "event", kind, "panic", p)
		}
	}()
	if err := r.e.emitter.Emit(ctx, ev); err != nil {
		r.logger.WarnContext(ctx, "emit event failed", "event", kind, "error", err)
	}
}
