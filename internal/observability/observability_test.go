package observability

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zapcore"
)

func TestInitCLILogger(t *testing.T) {
	InitCLILogger("test", false)
	assert.True(t, CLILogger.Core().Enabled(zapcore.InfoLevel))
	assert.False(t, CLILogger.Core().Enabled(zapcore.DebugLevel))

	InitCLILogger("test", true)
	assert.True(t, CLILogger.Core().Enabled(zapcore.DebugLevel))

	InitCLILogger("test", false, "warn")
	assert.False(t, CLILogger.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, CLILogger.Core().Enabled(zapcore.WarnLevel))

	InitCLILogger("test", false, "bogus")
	assert.True(t, CLILogger.Core().Enabled(zapcore.InfoLevel))
}

func TestInitMetricsIsIdempotent(t *testing.T) {
	first := InitMetrics()
	second := InitMetrics()
	assert.Same(t, first, second)
	assert.Same(t, first, MetricsRegistry)
}

func TestInitLoggerJSON(t *testing.T) {
	InitLogger("test", false, "error", "json")
	assert.False(t, CLILogger.Core().Enabled(zapcore.WarnLevel))
	assert.True(t, CLILogger.Core().Enabled(zapcore.ErrorLevel))
	InitCLILogger("test", false)
}
