package log

import (
	"context"
	"io"
	"os"
	"sync"

	"github.com/rs/zerolog"

	"github.com/YuminosukeSato/irisml/pkg/errors"
)

// DefaultName is the logger name rendered in every line of the application log.
const DefaultName = "iris_ml_app"

// Config describes the sinks of a logger.
type Config struct {
	// Name appears between the timestamp and the level of each line.
	Name string
	// Level is one of debug, info, warn, error.
	Level string
	// FilePath enables an append-mode file sink. Empty disables it.
	FilePath string
	// Console is the console sink. nil means os.Stderr.
	Console io.Writer
}

// sinks owns the file handle shared by a logger and every logger derived from it.
type sinks struct {
	once sync.Once
	file *os.File
	err  error
}

func (s *sinks) close() error {
	s.once.Do(func() {
		if s.file != nil {
			s.err = s.file.Close()
		}
	})
	return s.err
}

// ZerologLogger implements Logger on top of zerolog.
type ZerologLogger struct {
	zl    zerolog.Logger
	sinks *sinks
}

var _ Logger = (*ZerologLogger)(nil)

// New opens every sink described by cfg. The caller owns the returned logger
// and must call Close to release the file handle.
func New(cfg Config) (*ZerologLogger, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	name := cfg.Name
	if name == "" {
		name = DefaultName
	}
	console := cfg.Console
	if console == nil {
		console = os.Stderr
	}

	s := &sinks{}
	writers := []io.Writer{newConsoleWriter(console, name)}
	if cfg.FilePath != "" {
		f, err := os.OpenFile(cfg.FilePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, errors.Wrapf(err, "open log file %q", cfg.FilePath)
		}
		s.file = f
		writers = append(writers, newConsoleWriter(f, name))
	}

	zl := zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(toZerologLevel(level)).
		With().Timestamp().Logger()

	return &ZerologLogger{zl: zl, sinks: s}, nil
}

// Nop returns a logger that discards everything.
func Nop() *ZerologLogger {
	return &ZerologLogger{zl: zerolog.Nop(), sinks: &sinks{}}
}

// Close releases the file sink. It is safe to call more than once.
func (l *ZerologLogger) Close() error {
	return l.sinks.close()
}

func (l *ZerologLogger) Debug(msg string, fields ...any) {
	l.write(l.zl.Debug(), msg, fields)
}

func (l *ZerologLogger) Info(msg string, fields ...any) {
	l.write(l.zl.Info(), msg, fields)
}

func (l *ZerologLogger) Warn(msg string, fields ...any) {
	l.write(l.zl.Warn(), msg, fields)
}

func (l *ZerologLogger) Error(msg string, fields ...any) {
	l.write(l.zl.Error(), msg, fields)
}

// With implements Logger.With.
func (l *ZerologLogger) With(fields ...any) Logger {
	kv := make([]any, 0, len(fields)+1)
	for _, f := range normalizeFields(fields) {
		kv = append(kv, f.key, f.value)
	}
	return &ZerologLogger{
		zl:    l.zl.With().Fields(kv).Logger(),
		sinks: l.sinks,
	}
}

// Enabled implements Logger.Enabled.
func (l *ZerologLogger) Enabled(_ context.Context, level Level) bool {
	zl := toZerologLevel(level)
	return l.zl.GetLevel() <= zl && zerolog.GlobalLevel() <= zl
}

func (l *ZerologLogger) write(e *zerolog.Event, msg string, fields []any) {
	if e == nil {
		return
	}
	kv := make([]any, 0, len(fields))
	for _, f := range normalizeFields(fields) {
		if err, ok := f.value.(error); ok && f.key == ErrAttrKey {
			e = e.Stack().Err(err)
			continue
		}
		kv = append(kv, f.key, f.value)
	}
	if len(kv) > 0 {
		e = e.Fields(kv)
	}
	e.Msg(msg)
}

func toZerologLevel(level Level) zerolog.Level {
	switch {
	case level <= LevelDebug:
		return zerolog.DebugLevel
	case level <= LevelInfo:
		return zerolog.InfoLevel
	case level <= LevelWarn:
		return zerolog.WarnLevel
	default:
		return zerolog.ErrorLevel
	}
}

// ===========================================================================
// Package-level default logger
// ===========================================================================

var (
	defaultMu     sync.RWMutex
	defaultLogger Logger = Nop()
)

// SetDefault installs l as the logger returned by GetLogger and routes
// library warnings (ConvergenceWarning, ...) to it. Passing nil restores the
// silent default. The previous logger is returned so callers can restore it.
func SetDefault(l Logger) Logger {
	defaultMu.Lock()
	prev := defaultLogger
	if l == nil {
		defaultLogger = Nop()
		errors.SetZerologWarnFunc(nil)
	} else {
		defaultLogger = l
		errors.SetZerologWarnFunc(func(w error) {
			l.Warn(w.Error(), WarningKey, w)
		})
	}
	defaultMu.Unlock()
	return prev
}

// GetLogger returns the package-level default logger.
func GetLogger() Logger {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultLogger
}

// GetLoggerWithName returns the default logger tagged with a component name.
func GetLoggerWithName(name string) Logger {
	return GetLogger().With(ComponentKey, name)
}
