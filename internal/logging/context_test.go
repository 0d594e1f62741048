package logging

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContextKeys(t *testing.T) {
	ctx := context.Background()

	assert.Equal(t, "", RunID(ctx))
	assert.Equal(t, "", Workflow(ctx))
	assert.Equal(t, "", Step(ctx))

	ctx = WithRunID(ctx, "run-123")
	ctx = WithWorkflow(ctx, "greet")
	ctx = WithStep(ctx, "say")

	assert.Equal(t, "run-123", RunID(ctx))
	assert.Equal(t, "greet", Workflow(ctx))
	assert.Equal(t, "say", Step(ctx))
}

func TestLogWith(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	ctx := WithStep(WithWorkflow(WithRunID(context.Background(), "run-abc"), "greet"), "say")
	LogWith(ctx, logger).Info("test message")

	output := buf.String()
	assert.Contains(t, output, "run_id=run-abc")
	assert.Contains(t, output, "workflow=greet")
	assert.Contains(t, output, "step=say")
	assert.Contains(t, output, "test message")
}

func TestLogWithMissingKeys(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	LogWith(WithRunID(context.Background(), "run-only"), logger).Info("partial context")

	output := buf.String()
	assert.Contains(t, output, "run_id=run-only")
	assert.NotContains(t, output, "workflow=")
	assert.NotContains(t, output, "step=")
}

func TestCorrelationHandler(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewCorrelationHandler(slog.NewJSONHandler(&buf, nil)))

	ctx := WithStep(WithRunID(context.Background(), "run-9"), "fetch")
	logger.InfoContext(ctx, "dispatch")

	assert.Contains(t, buf.String(), `"run_id":"run-9"`)
	assert.Contains(t, buf.String(), `"step":"fetch"`)
}

func TestCorrelationHandler_WithAttrsKeepsInjection(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewCorrelationHandler(slog.NewJSONHandler(&buf, nil))).With("component", "engine")

	logger.InfoContext(WithRunID(context.Background(), "run-1"), "hi")

	assert.Contains(t, buf.String(), `"component":"engine"`)
	assert.Contains(t, buf.String(), `"run_id":"run-1"`)
}

func TestNew(t *testing.T) {
	var buf bytes.Buffer
	logger := New("debug", FormatJSON, &buf)
	logger.DebugContext(WithRunID(context.Background(), "r"), "visible")
	assert.Contains(t, buf.String(), `"msg":"visible"`)
	assert.Contains(t, buf.String(), `"run_id":"r"`)

	buf.Reset()
	New("warn", FormatText, &buf).Info("hidden")
	assert.Empty(t, buf.String())
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelError, ParseLevel(" ERROR "))
	assert.Equal(t, slog.LevelInfo, ParseLevel("chatty"))
}
