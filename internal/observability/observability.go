// Package observability holds process-wide logging and metrics state.
package observability

import (
	"os"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// CLILogger is the logger used by commands. It is a no-op logger until
	// InitCLILogger runs.
	CLILogger = zap.NewNop()

	// MetricsRegistry collects driver and process metrics. Nil until
	// InitMetrics runs.
	MetricsRegistry *prometheus.Registry

	mu sync.Mutex
)

// InitCLILogger builds CLILogger writing console-encoded records to stderr.
// verbose lowers the level to debug; otherwise level applies (default info).
func InitCLILogger(name string, verbose bool, level ...string) {
	lvl := ""
	if len(level) > 0 {
		lvl = level[0]
	}
	InitLogger(name, verbose, lvl, "console")
}

// InitLogger is InitCLILogger with an explicit encoding, "console" or
// "json".
func InitLogger(name string, verbose bool, level, format string) {
	lvl := zapcore.InfoLevel
	if strings.TrimSpace(level) != "" {
		if parsed, err := zapcore.ParseLevel(level); err == nil {
			lvl = parsed
		}
	}
	if verbose {
		lvl = zapcore.DebugLevel
	}

	var enc zapcore.Encoder
	if strings.EqualFold(strings.TrimSpace(format), "json") {
		encCfg := zap.NewProductionEncoderConfig()
		encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		enc = zapcore.NewJSONEncoder(encCfg)
	} else {
		encCfg := zap.NewDevelopmentEncoderConfig()
		encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		if !isTerminal(os.Stderr) {
			encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		}
		enc = zapcore.NewConsoleEncoder(encCfg)
	}

	core := zapcore.NewCore(enc, zapcore.Lock(os.Stderr), lvl)

	mu.Lock()
	defer mu.Unlock()
	CLILogger = zap.New(core).Named(name)
}

// InitMetrics creates MetricsRegistry with the Go and process collectors.
// Calling it again returns the existing registry.
func InitMetrics() *prometheus.Registry {
	mu.Lock()
	defer mu.Unlock()
	if MetricsRegistry != nil {
		return MetricsRegistry
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	MetricsRegistry = reg
	return reg
}

// Sync flushes CLILogger.
func Sync() {
	_ = CLILogger.Sync()
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}
