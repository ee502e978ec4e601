package telemetry

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRunIDFromContext(t *testing.T) {
	require.Empty(t, RunIDFromContext(context.Background()))

	ctx := WithRunID(context.Background(), "run-1")
	require.Equal(t, "run-1", RunIDFromContext(ctx))
}

func TestLogger_AddsRunID(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewTextHandler(&buf, nil))

	Logger(context.Background(), base).Info("plain")
	require.NotContains(t, buf.String(), "run_id")

	buf.Reset()
	Logger(WithRunID(context.Background(), "abc"), base).Info("tagged")
	require.Contains(t, buf.String(), "run_id=abc")
}
