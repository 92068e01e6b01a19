// Package observability configures process-wide logging.
package observability

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// CLILogger is the logger used by commands. It is a no-op until
// InitCLILogger or InitServerLogger runs.
var CLILogger = zap.NewNop()

// InitCLILogger installs a human-readable stderr logger. verbose lowers
// the level to debug.
func InitCLILogger(name string, verbose bool) {
	level := zapcore.InfoLevel
	if verbose {
		level = zapcore.DebugLevel
	}

	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.TimeKey = ""
	encCfg.CallerKey = ""
	encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	if !isTerminal(os.Stderr) {
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	}

	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.Lock(os.Stderr), level)
	CLILogger = zap.New(core).Named(name)
}

// InitServerLogger installs a JSON logger for long-running processes.
// profile "console" switches to the console encoder.
func InitServerLogger(name, level, profile string) error {
	lvl, err := ParseLevel(level)
	if err != nil {
		return err
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var enc zapcore.Encoder
	if strings.EqualFold(profile, "console") {
		enc = zapcore.NewConsoleEncoder(encCfg)
	} else {
		enc = zapcore.NewJSONEncoder(encCfg)
	}

	core := zapcore.NewCore(enc, zapcore.Lock(os.Stderr), lvl)
	CLILogger = zap.New(core, zap.AddCaller()).Named(name)
	return nil
}

// ParseLevel accepts debug, info, warn, error (case-insensitive). Empty
// means info.
func ParseLevel(s string) (zapcore.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return zapcore.InfoLevel, nil
	case "debug", "trace":
		return zapcore.DebugLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("invalid log level %q", s)
	}
}

// Sync flushes CLILogger, ignoring the errors stderr returns on some
// platforms.
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
