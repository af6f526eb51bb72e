// Package logging builds the diagnostic logger. User-facing output never goes
// through it; it records what ran and why things failed.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// FileName is the log file inside the state directory.
const FileName = "updater.log"

// Options selects the log sinks.
type Options struct {
	// Dir holds FileName. Empty disables the file sink.
	Dir string
	// Debug adds a console sink at debug level.
	Debug bool
	// Console receives the debug sink. Defaults to os.Stderr.
	Console io.Writer
}

// New returns a logger and a close func that flushes and closes the file.
// With no sinks selected it returns a no-op logger.
func New(opts Options) (*zap.Logger, func(), error) {
	var cores []zapcore.Core
	closeFn := func() {}

	if opts.Dir != "" {
		if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("create log directory: %w", err)
		}
		f, err := os.OpenFile(filepath.Join(opts.Dir, FileName), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		enc := zap.NewProductionEncoderConfig()
		enc.EncodeTime = zapcore.ISO8601TimeEncoder
		level := zapcore.InfoLevel
		if opts.Debug {
			level = zapcore.DebugLevel
		}
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(enc), zapcore.AddSync(f), level))
		closeFn = func() { _ = f.Close() }
	}

	if opts.Debug {
		console := opts.Console
		if console == nil {
			console = os.Stderr
		}
		cores = append(cores, zapcore.NewCore(
			zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig()),
			zapcore.AddSync(console),
			zap.DebugLevel,
		))
	}

	if len(cores) == 0 {
		return zap.NewNop(), closeFn, nil
	}
	logger := zap.New(zapcore.NewTee(cores...))
	return logger, func() {
		_ = logger.Sync()
		closeFn()
	}, nil
}
