// Package logger builds the zap loggers used across studyflow.
package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options configures a logger.
type Options struct {
	Debug bool

	// JSON selects structured JSON lines instead of the colored console
	// format.
	JSON bool

	// Output defaults to stderr, leaving stdout to command results.
	Output zapcore.WriteSyncer
}

func New(opts Options) *zap.Logger {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "time"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	if opts.JSON {
		encoderConfig.EncodeLevel = zapcore.LowercaseLevelEncoder
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	} else {
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	}

	level := zap.InfoLevel
	if opts.Debug {
		level = zap.DebugLevel
	}

	out := opts.Output
	if out == nil {
		out = zapcore.Lock(os.Stderr)
	}

	return zap.New(zapcore.NewCore(encoder, out, level), zap.AddCaller())
}

// NewLogger is New with console output to stderr.
func NewLogger(debug bool) *zap.Logger {
	return New(Options{Debug: debug})
}
