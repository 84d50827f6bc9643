package logging

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warn"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("nonsense"))
}

func TestRequestIDRoundTrip(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req_123")
	assert.Equal(t, "req_123", RequestID(ctx))
	assert.Equal(t, "", RequestID(context.Background()))
}

func TestL_UsesContextLogger(t *testing.T) {
	logger := Nop()
	ctx := WithLogger(context.Background(), logger)
	assert.Equal(t, logger, FromContext(ctx))
	assert.NotNil(t, L(WithRequestID(ctx, "req_abc")))
}
