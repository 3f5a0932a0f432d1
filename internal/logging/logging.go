// Package logging builds the zap logger shared by every wm entry point.
package logging

import (
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewWithWriters returns a console-encoded logger writing to every writer.
// With no writers it returns a no-op logger.
func NewWithWriters(debug bool, writers ...io.Writer) *zap.Logger {
	if len(writers) == 0 {
		return zap.NewNop()
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "time"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder

	level := zap.InfoLevel
	if debug {
		level = zap.DebugLevel
	}

	syncers := make([]zapcore.WriteSyncer, 0, len(writers))
	for _, w := range writers {
		syncers = append(syncers, zapcore.AddSync(w))
	}

	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderConfig),
		zapcore.NewMultiWriteSyncer(syncers...),
		level,
	)
	return zap.New(core)
}

// Open returns a logger appending to logPath, plus stderr when verbose.
// The log file is only opened when its directory already exists, so
// uninitialized projects never get a stray .wm directory. The returned
// close func is always non-nil.
func Open(logPath string, verbose bool) (*zap.Logger, func() error, error) {
	var writers []io.Writer
	closeFn := func() error { return nil }

	if logPath != "" {
		if info, err := os.Stat(filepath.Dir(logPath)); err == nil && info.IsDir() {
			f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
			if err != nil {
				return zap.NewNop(), closeFn, err
			}
			writers = append(writers, f)
			closeFn = f.Close
		}
	}
	if verbose {
		writers = append(writers, os.Stderr)
	}

	return NewWithWriters(verbose, writers...), closeFn, nil
}
