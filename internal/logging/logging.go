// Package logging provides the Logger interface used across scribecore and
// a concrete implementation backed by charmbracelet/log.
package logging

import (
	"os"

	charmlog "github.com/charmbracelet/log"
)

// Logger decouples call sites from a concrete logging backend, mirroring
// the orchestrator package's own provider-interface style.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// NoOpLogger discards everything. Useful in tests and library embedding.
type NoOpLogger struct{}

func (NoOpLogger) Debug(string, ...any) {}
func (NoOpLogger) Info(string, ...any)  {}
func (NoOpLogger) Warn(string, ...any)  {}
func (NoOpLogger) Error(string, ...any) {}

// charmLogger adapts *charmlog.Logger to the Logger interface.
type charmLogger struct {
	l *charmlog.Logger
}

// Options configures the concrete logger.
type Options struct {
	JSON  bool
	Level string
}

// New builds a Logger writing to stderr, text by default or JSON when
// Options.JSON is set. Level defaults to "info" when empty or unrecognized.
func New(opts Options) Logger {
	l := charmlog.NewWithOptions(os.Stderr, charmlog.Options{
		ReportTimestamp: true,
	})
	if opts.JSON {
		l.SetFormatter(charmlog.JSONFormatter)
	}
	l.SetLevel(parseLevel(opts.Level))
	return &charmLogger{l: l}
}

func parseLevel(level string) charmlog.Level {
	lvl, err := charmlog.ParseLevel(level)
	if err != nil {
		return charmlog.InfoLevel
	}
	return lvl
}

func (c *charmLogger) Debug(msg string, args ...any) { c.l.Debug(msg, args...) }
func (c *charmLogger) Info(msg string, args ...any)  { c.l.Info(msg, args...) }
func (c *charmLogger) Warn(msg string, args ...any)  { c.l.Warn(msg, args...) }
func (c *charmLogger) Error(msg string, args ...any) { c.l.Error(msg, args...) }
