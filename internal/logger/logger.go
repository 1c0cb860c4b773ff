// Package logger wraps zerolog behind a small, stable API so the rest of the
// codebase never imports zerolog directly.
package logger

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the structured logger used across datasage.
type Logger struct {
	zlog zerolog.Logger
}

// Config holds logger configuration.
type Config struct {
	Level  string    `yaml:"level"`  // debug, info, warn, error
	Format string    `yaml:"format"` // json, console
	Output io.Writer `yaml:"-"`
}

// DefaultConfig returns production-ready defaults: info-level JSON to stdout.
func DefaultConfig() *Config {
	return &Config{
		Level:  "info",
		Format: "json",
		Output: os.Stdout,
	}
}

// New creates a logger from cfg; nil cfg means DefaultConfig.
func New(cfg *Config) *Logger {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}

	zerolog.TimeFieldFormat = time.RFC3339

	var zlog zerolog.Logger
	if cfg.Format == "console" {
		w := zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
		zlog = zerolog.New(w).With().Timestamp().Logger()
	} else {
		zlog = zerolog.New(out).With().Timestamp().Logger()
	}
	zlog = zlog.Level(parseLevel(cfg.Level))

	return &Logger{zlog: zlog}
}

// WithContext attaches the logger to ctx.
func (l *Logger) WithContext(ctx context.Context) context.Context {
	return l.zlog.WithContext(ctx)
}

// FromContext retrieves the logger from ctx, or a default logger if absent.
func FromContext(ctx context.Context) *Logger {
	zlog := zerolog.Ctx(ctx)
	if zlog.GetLevel() == zerolog.Disabled {
		return New(nil)
	}
	return &Logger{zlog: *zlog}
}

// With starts a child-logger builder for adding bound fields.
func (l *Logger) With() *Context {
	return &Context{ctx: l.zlog.With()}
}

// Context wraps zerolog.Context for field chaining.
type Context struct {
	ctx zerolog.Context
}

func (c *Context) Str(key, val string) *Context {
	c.ctx = c.ctx.Str(key, val)
	return c
}

func (c *Context) Int(key string, val int) *Context {
	c.ctx = c.ctx.Int(key, val)
	return c
}

func (c *Context) Dur(key string, val time.Duration) *Context {
	c.ctx = c.ctx.Dur(key, val)
	return c
}

func (c *Context) Err(err error) *Context {
	c.ctx = c.ctx.Err(err)
	return c
}

func (c *Context) Logger() *Logger {
	return &Logger{zlog: c.ctx.Logger()}
}

// Logging methods.

func (l *Logger) Debug(msg string) { l.zlog.Debug().Msg(msg) }
func (l *Logger) Info(msg string)  { l.zlog.Info().Msg(msg) }
func (l *Logger) Warn(msg string)  { l.zlog.Warn().Msg(msg) }
func (l *Logger) Error(msg string) { l.zlog.Error().Msg(msg) }
func (l *Logger) Fatal(msg string) { l.zlog.Fatal().Msg(msg) }

func (l *Logger) Debugf(format string, args ...any) { l.zlog.Debug().Msgf(format, args...) }
func (l *Logger) Infof(format string, args ...any)  { l.zlog.Info().Msgf(format, args...) }
func (l *Logger) Warnf(format string, args ...any)  { l.zlog.Warn().Msgf(format, args...) }
func (l *Logger) Errorf(format string, args ...any) { l.zlog.Error().Msgf(format, args...) }

// InfoWith logs at info level with ad-hoc structured fields.
func (l *Logger) InfoWith(msg string, fields map[string]any) {
	event := l.zlog.Info()
	for k, v := range fields {
		event = event.Interface(k, v)
	}
	event.Msg(msg)
}

// ErrorWith logs err at error level with ad-hoc structured fields.
func (l *Logger) ErrorWith(msg string, err error, fields map[string]any) {
	event := l.zlog.Error().Err(err)
	for k, v := range fields {
		event = event.Interface(k, v)
	}
	event.Msg(msg)
}

func parseLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
