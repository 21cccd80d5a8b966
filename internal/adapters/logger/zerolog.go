package logger

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Config configures a ZeroLogger.
type Config struct {
	Level  LogLevel
	Format string    // json or console
	Output io.Writer // defaults to os.Stderr
}

// ZeroLogger implements the ports.Logger interface on top of zerolog.
type ZeroLogger struct {
	zl zerolog.Logger
}

// New creates a zerolog-backed logger.
func New(cfg Config) *ZeroLogger {
	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}
	if cfg.Format == "console" {
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: time.RFC3339Nano}
	}

	zl := zerolog.New(output).
		Level(cfg.Level.zerolog()).
		With().
		Timestamp().
		Logger()

	return &ZeroLogger{zl: zl}
}

// With returns a child logger that always carries the given fields.
func (l *ZeroLogger) With(fields map[string]interface{}) *ZeroLogger {
	return &ZeroLogger{zl: l.zl.With().Fields(fields).Logger()}
}

func (l *ZeroLogger) write(ev *zerolog.Event, msg string, fields []map[string]interface{}) {
	for _, f := range fields {
		if f != nil {
			ev = ev.Fields(f)
		}
	}
	ev.Msg(msg)
}

// Debug logs a message at Debug level.
func (l *ZeroLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {
	l.write(l.zl.Debug(), msg, fields)
}

// Info logs a message at Info level.
func (l *ZeroLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{}) {
	l.write(l.zl.Info(), msg, fields)
}

// Warn logs a message at Warning level.
func (l *ZeroLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{}) {
	l.write(l.zl.Warn(), msg, fields)
}

// Error logs an error message at Error level.
func (l *ZeroLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
	l.write(l.zl.Error().Err(err), msg, fields)
}
