package security

import (
	"errors"
	"testing"
	"time"

	"github.com/kevin07696/payment-engine/internal/domain/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestZapLoggerAdapter_ConvertsFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := NewZapLoggerAdapter(zap.New(core)).Named("tokens")

	logger.Warn("Remote token sync failed",
		ports.String("gateway_id", "epx"),
		ports.Int64("user_id", 7),
		ports.Bool("cached", false),
		ports.Duration("ttl", time.Minute),
		ports.Err(errors.New("connection reset")),
	)

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "tokens", entry.LoggerName)
	assert.Equal(t, zapcore.WarnLevel, entry.Level)

	fields := entry.ContextMap()
	assert.Equal(t, "epx", fields["gateway_id"])
	assert.Equal(t, int64(7), fields["user_id"])
	assert.Equal(t, false, fields["cached"])
	assert.Equal(t, time.Minute, fields["ttl"])
	assert.Equal(t, "connection reset", fields["error"])
}

func TestNewZapLoggerAdapter_NilLogger(t *testing.T) {
	logger := NewZapLoggerAdapter(nil)
	assert.NotPanics(t, func() { logger.Info("ok") })
}
