// Package observability holds the process-wide loggers.
//
// CLILogger is meant for human-facing command output (console encoding on
// stderr). ServerLogger is the structured JSON logger used by the relay
// service. Both default to no-op loggers so packages can log before
// initialisation without nil checks.
package observability

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// CLILogger is the logger for command-line output.
	CLILogger = zap.NewNop()

	// ServerLogger is the logger for the relay HTTP service.
	ServerLogger = zap.NewNop()
)

// InitCLILogger configures CLILogger for the given service name.
//
// Verbose enables debug level; otherwise info.
func InitCLILogger(serviceName string, verbose bool) {
	level := zapcore.InfoLevel
	if verbose {
		level = zapcore.DebugLevel
	}

	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.TimeKey = ""
	encCfg.CallerKey = ""
	encCfg.NameKey = ""
	encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder

	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encCfg),
		zapcore.Lock(os.Stderr),
		level,
	)
	CLILogger = zap.New(core).Named(serviceName)
}

// InitServerLogger configures ServerLogger with JSON output at the given level.
//
// Unknown levels fall back to info.
func InitServerLogger(serviceName, level string) {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encCfg),
		zapcore.Lock(os.Stdout),
		ParseLevel(level),
	)
	ServerLogger = zap.New(core, zap.AddCaller()).With(zap.String("service", serviceName))
}

// ParseLevel maps a level name to a zap level. Unknown names map to info.
func ParseLevel(level string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug", "trace":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Sync flushes both loggers. Errors from syncing stderr/stdout are ignored.
func Sync() {
	_ = CLILogger.Sync()
	_ = ServerLogger.Sync()
}
