package engine

import (
	"context"
	"errors"
	"sync"

	"github.com/rendis/stepwise/pkg/schema"
)

// TransitionHook is called before or after a run status transition.
// Hook errors are reported to the engine logger; they never change the
// outcome of the run.
type TransitionHook func(ctx context.Context, res *Result, from, to schema.RunStatus) error

// AnyStatus matches every status when registering a hook.
const AnyStatus schema.RunStatus = ""

// ValidRunTransitions defines the allowed state transitions for runs.
var ValidRunTransitions = map[schema.RunStatus][]schema.RunStatus{
	schema.RunStatusPending:   {schema.RunStatusRunning, schema.RunStatusHalted},
	schema.RunStatusRunning:   {schema.RunStatusCompleted, schema.RunStatusHalted},
	schema.RunStatusCompleted: {},
	schema.RunStatusHalted:    {},
}

type hookKey struct {
	from, to schema.RunStatus
}

// Hooks holds the transition hooks shared by every run of an Engine.
// Register hooks before starting runs.
type Hooks struct {
	mu     sync.RWMutex
	before map[hookKey][]TransitionHook
	after  map[hookKey][]TransitionHook
}

// NewHooks creates an empty hook table.
func NewHooks() *Hooks {
	return &Hooks{
		before: make(map[hookKey][]TransitionHook),
		after:  make(map[hookKey][]TransitionHook),
	}
}

// OnBefore registers a hook called before a run transition.
// AnyStatus on either side matches every status.
func (h *Hooks) OnBefore(from, to schema.RunStatus, hook TransitionHook) {
	h.mu.Lock()
	defer h.mu.Unlock()
	key := hookKey{from, to}
	h.before[key] = append(h.before[key], hook)
}

// OnAfter registers a hook called after a run transition.
func (h *Hooks) OnAfter(from, to schema.RunStatus, hook TransitionHook) {
	h.mu.Lock()
	defer h.mu.Unlock()
	key := hookKey{from, to}
	h.after[key] = append(h.after[key], hook)
}

func (h *Hooks) lookup(table map[hookKey][]TransitionHook, from, to schema.RunStatus) []TransitionHook {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var out []TransitionHook
	for _, key := range []hookKey{{from, to}, {AnyStatus, to}, {from, AnyStatus}, {AnyStatus, AnyStatus}} {
		out = append(out, table[key]...)
	}
	return out
}

// runFSM tracks the status of a single run.
type runFSM struct {
	hooks *Hooks
	res   *Result
}

func newRunFSM(hooks *Hooks, res *Result) *runFSM {
	res.Status = schema.RunStatusPending
	return &runFSM{hooks: hooks, res: res}
}

// transition moves the run to status to. An invalid transition leaves the
// status unchanged. Hook errors are joined and returned after the
// transition has been applied.
func (f *runFSM) transition(ctx context.Context, to schema.RunStatus) error {
	from := f.res.Status
	if !IsValidRunTransition(from, to) {
		return schema.NewErrorf(schema.ErrCodeInvalidTransition,
			"invalid run transition: %s -> %s", from, to).
			WithDetails(map[string]any{"run_id": f.res.RunID, "from": string(from), "to": string(to)})
	}

	var errs []error
	for _, hook := range f.hooks.lookup(f.hooks.before, from, to) {
		if err := hook(ctx, f.res, from, to); err != nil {
			errs = append(errs, err)
		}
	}

	f.res.Status = to

	for _, hook := range f.hooks.lookup(f.hooks.after, from, to) {
		if err := hook(ctx, f.res, from, to); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// IsValidRunTransition reports whether from -> to is allowed.
func IsValidRunTransition(from, to schema.RunStatus) bool {
	for _, a := range ValidRunTransitions[from] {
		if a == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether a run in status s can no longer change.
func IsTerminal(s schema.RunStatus) bool {
	return s == schema.RunStatusCompleted || s == schema.RunStatusHalted
}
