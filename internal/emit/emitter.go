package emit

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/rendis/stepwise/pkg/schema"
)

// Emitter receives run events. The engine treats emission as fire-and-forget:
// a returned error is logged and never changes control flow.
type Emitter interface {
	Emit(ctx context.Context, ev schema.Event) error
}

// Func adapts a function to Emitter.
type Func func(ctx context.Context, ev schema.Event) error

func (f Func) Emit(ctx context.Context, ev schema.Event) error { return f(ctx, ev) }

// Discard drops every event.
var Discard Emitter = Func(func(context.Context, schema.Event) error { return nil })

// JSONLines writes one JSON object per line.
type JSONLines struct {
	mu sync.Mutex
	w  io.Writer
}

// NewJSONLines creates a JSONLines emitter writing to w.
func NewJSONLines(w io.Writer) *JSONLines {
	return &JSONLines{w: w}
}

func (j *JSONLines) Emit(_ context.Context, ev schema.Event) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	_, err = j.w.Write(append(b, '\n'))
	return err
}

// Slog logs every event at a level derived from its type.
type Slog struct {
	Logger *slog.Logger
}

func (s Slog) Emit(ctx context.Context, ev schema.Event) error {
	level := slog.LevelInfo
	switch ev.Event {
	case schema.EventError:
		level = slog.LevelError
	case schema.EventStart, schema.EventEnd:
		level = slog.LevelDebug
	}
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Log(ctx, level, ev.Message,
		slog.String("event", string(ev.Event)),
		slog.String("step", ev.Step),
		slog.Uint64("seq", ev.ID),
		slog.String("run_id", ev.RunID),
	)
	return nil
}

// Fanout delivers each event to every emitter. A failing emitter does not
// prevent delivery to the others; errors are joined.
type Fanout []Emitter

func (f Fanout) Emit(ctx context.Context, ev schema.Event) error {
	var errs []error
	for _, e := range f {
		if e == nil {
			continue
		}
		if err := e.Emit(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Recorder keeps every event in memory.
type Recorder struct {
	mu     sync.Mutex
	events []schema.Event
}

func (r *Recorder) Emit(_ context.Context, ev schema.Event) error {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
	return nil
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []schema.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]schema.Event(nil), r.events...)
}

// OfType returns the recorded events of the given type.
func (r *Recorder) OfType(t schema.EventType) []schema.Event {
	var out []schema.Event
	for _, ev := range r.Events() {
		if ev.Event == t {
			out = append(out, ev)
		}
	}
	return out
}
