package logging_test

import (
	"bytes"
	"context"
	"github.com/myrjola/casegen/internal/logging"
	"github.com/stretchr/testify/require"
	"log/slog"
	"testing"
)

func TestContextHandler(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewLogger(&buf, slog.LevelDebug, false)

	ctx := logging.WithAttrs(context.Background(), slog.String("run_id", "abc"))
	meta := logging.WithAttrs(ctx, slog.String("phase", "meta"))
	suspects := logging.WithAttrs(ctx, slog.String("phase", "suspects"))

	logger.LogAttrs(meta, slog.LevelInfo, "phase started")
	require.Contains(t, buf.String(), "run_id=abc")
	require.Contains(t, buf.String(), "phase=meta")

	buf.Reset()
	logger.LogAttrs(suspects, slog.LevelInfo, "phase started")
	require.Contains(t, buf.String(), "phase=suspects")
	require.NotContains(t, buf.String(), "phase=meta")
}
