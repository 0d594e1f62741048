package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rendis/stepwise/internal/commands"
	"github.com/rendis/stepwise/internal/emit"
	"github.com/rendis/stepwise/internal/engine"
	"github.com/rendis/stepwise/internal/metrics"
	"github.com/rendis/stepwise/internal/store"
	"github.com/rendis/stepwise/internal/tracing"
)

const tracerName = "github.com/rendis/stepwise"

// eventOutput selects where run events go when stdout emission is on.
type eventOutput int

const (
	// eventsToStdout writes JSON lines to stdout.
	eventsToStdout eventOutput = iota
	// eventsToLog routes events through the logger; stdout belongs to a
	// protocol transport.
	eventsToLog
)

// runtime is the wiring shared by run, schedule and mcp: the command
// registry, the event sinks and the observability stack.
type runtime struct {
	cli      *cli
	registry *commands.Registry
	hooks    *engine.Hooks
	sinks    emit.Fanout
	store    *store.LibSQLStore
	tracing  *tracing.Provider
	closers  []func(context.Context) error
}

func (c *cli) registry() (*commands.Registry, error) {
	fsCfg, httpCfg := c.cfg.Commands()
	return commands.DefaultRegistry(fsCfg, httpCfg)
}

func (c *cli) newRuntime(ctx context.Context, out eventOutput) (rt *runtime, err error) {
	cfg := c.cfg

	reg, err := c.registry()
	if err != nil {
		return nil, err
	}
	rt = &runtime{cli: c, registry: reg, hooks: engine.NewHooks()}
	defer func() {
		if err != nil {
			_ = rt.Close(context.Background())
			rt = nil
		}
	}()

	if cfg.Emit.Stdout && out == eventsToStdout {
		rt.sinks = append(rt.sinks, emit.NewJSONLines(c.stdout))
	} else {
		rt.sinks = append(rt.sinks, emit.Slog{Logger: c.logger.With("component", "events")})
	}

	if cfg.Emit.StorePath != "" {
		st, err := store.Open(ctx, cfg.Emit.StorePath)
		if err != nil {
			return rt, err
		}
		rt.store = st
		rt.onClose(func(context.Context) error { return st.Close() })

		history := store.NewEventLog(st)
		history.Attach(rt.hooks)
		rt.sinks = append(rt.sinks, history)
	}

	if cfg.Emit.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.Emit.RedisAddr})
		rt.onClose(func(context.Context) error { return client.Close() })
		if err := client.Ping(ctx).Err(); err != nil {
			return rt, fmt.Errorf("connect redis %s: %w", cfg.Emit.RedisAddr, err)
		}
		rt.sinks = append(rt.sinks, emit.NewRedisStream(client, cfg.Emit.RedisStream, cfg.Emit.RedisMaxLen))
	}

	if cfg.Metrics.Addr != "" {
		collector := metrics.New(true)
		collector.Attach(rt.hooks)
		rt.sinks = append(rt.sinks, collector)
		rt.serveMetrics(cfg.Metrics.Addr, collector.Handler())
	}

	tp, err := tracing.NewProvider(cfg.TracingConfig(version))
	if err != nil {
		return rt, err
	}
	rt.tracing = tp
	rt.onClose(tp.Shutdown)

	return rt, nil
}

func (rt *runtime) serveMetrics(addr string, h http.Handler) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", h)
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			rt.cli.logger.Error("metrics server failed", "addr", addr, "error", err)
		}
	}()
	rt.cli.logger.Info("serving metrics", "addr", addr)
	rt.onClose(srv.Shutdown)
}

func (rt *runtime) onClose(fn func(context.Context) error) {
	rt.closers = append(rt.closers, fn)
}

// engine builds an Engine over the runtime sinks. language, when set,
// overrides the language named by workflows.
func (rt *runtime) engine(language string, extra ...emit.Emitter) (*engine.Engine, error) {
	cfg := rt.cli.cfg
	sinks := append(emit.Fanout{}, rt.sinks...)
	sinks = append(sinks, extra...)
	return engine.New(engine.Options{
		Registry:        rt.registry,
		Emitter:         sinks,
		Language:        language,
		DefaultLanguage: cfg.Engine.Language,
		MaxVisits:       cfg.Engine.MaxVisits,
		Logger:          rt.cli.logger,
		Tracer:          rt.tracing.Tracer(tracerName),
		Hooks:           rt.hooks,
	})
}

// Close releases resources in reverse order of acquisition.
func (rt *runtime) Close(ctx context.Context) error {
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	rt.closers = nil
	return errors.Join(errs...)
}
