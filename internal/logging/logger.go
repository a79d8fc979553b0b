// Package logging wraps logrus behind a small interface so every component
// logs with a component field instead of ad hoc prefixes.
package logging

import (
	"context"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

// Logger is the logging surface used across the module.
type Logger interface {
	Debug(args ...any)
	Debugf(format string, args ...any)
	Info(args ...any)
	Infof(format string, args ...any)
	Warn(args ...any)
	Warnf(format string, args ...any)
	Error(args ...any)
	Errorf(format string, args ...any)
	WithField(key string, value any) Logger
	WithComponent(name string) Logger
}

type logrusLogger struct {
	entry *logrus.Entry
}

func (l *logrusLogger) Debug(args ...any) {
	l.entry.Debug(args...)
}

func (l *logrusLogger) Debugf(format string, args ...any) {
	l.entry.Debugf(format, args...)
}

func (l *logrusLogger) Info(args ...any) {
	l.entry.Info(args...)
}

func (l *logrusLogger) Infof(format string, args ...any) {
	l.entry.Infof(format, args...)
}

func (l *logrusLogger) Warn(args ...any) {
	l.entry.Warn(args...)
}

func (l *logrusLogger) Warnf(format string, args ...any) {
	l.entry.Warnf(format, args...)
}

func (l *logrusLogger) Error(args ...any) {
	l.entry.Error(args...)
}

func (l *logrusLogger) Errorf(format string, args ...any) {
	l.entry.Errorf(format, args...)
}

func (l *logrusLogger) WithField(key string, value any) Logger {
	return &logrusLogger{entry: l.entry.WithField(key, value)}
}

// WithComponent tags the logger and raises it to debug level when the
// component was listed in Options.DebugComponents.
func (l *logrusLogger) WithComponent(name string) Logger {
	entry := l.entry.WithField("component", name)
	if debugEnabled(name) {
		return &logrusLogger{entry: withLevel(entry, logrus.DebugLevel)}
	}
	return &logrusLogger{entry: entry}
}

// Options configures the process-wide logrus instance.
type Options struct {
	Level           string
	Output          io.Writer
	DebugComponents []string
}

var (
	rootMu          sync.RWMutex
	root            = newRoot(os.Stderr, logrus.InfoLevel)
	debugComponents = map[string]bool{}
	debugRoots      = map[logrus.Level]*logrus.Logger{}
)

func newRoot(out io.Writer, level logrus.Level) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(out)
	l.SetLevel(level)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: "15:04:05.000"})
	return l
}

// Configure replaces the root logger. Unknown levels fall back to info.
func Configure(opts Options) {
	level, err := logrus.ParseLevel(strings.TrimSpace(opts.Level))
	if err != nil {
		level = logrus.InfoLevel
	}
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}

	rootMu.Lock()
	defer rootMu.Unlock()
	root = newRoot(out, level)
	debugComponents = map[string]bool{}
	for _, c := range opts.DebugComponents {
		debugComponents[c] = true
	}
	debugRoots = map[logrus.Level]*logrus.Logger{}
}

func debugEnabled(name string) bool {
	rootMu.RLock()
	defer rootMu.RUnlock()
	return debugComponents[name]
}

// withLevel re-homes an entry onto a sibling logger that shares output and
// formatter but has its own level.
func withLevel(entry *logrus.Entry, level logrus.Level) *logrus.Entry {
	rootMu.Lock()
	defer rootMu.Unlock()
	if entry.Logger.GetLevel() >= level {
		return entry
	}
	l, ok := debugRoots[level]
	if !ok {
		l = logrus.New()
		l.SetOutput(entry.Logger.Out)
		l.SetFormatter(entry.Logger.Formatter)
		l.SetLevel(level)
		debugRoots[level] = l
	}
	return logrus.NewEntry(l).WithFields(entry.Data).WithContext(entry.Context)
}

// NewLogger returns a logger from the current factory.
func NewLogger(ctx context.Context) Logger {
	factory := GetLoggerFactory()
	if factory != nil {
		return factory.CreateLogger(ctx)
	}

	return newLogrusLogger(ctx)
}

func newLogrusLogger(ctx context.Context) Logger {
	rootMu.RLock()
	logger := root
	rootMu.RUnlock()
	if ctx == nil {
		ctx = context.Background()
	}
	return &logrusLogger{entry: logger.WithContext(ctx)}
}
