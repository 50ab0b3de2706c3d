package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger provides leveled logging for graphsync components.
//
// Console output is filtered by the configured Level. When a log directory
// is configured, every message (debug included) is also written to
// <log-dir>/<session-id>-graphsync.log.
type Logger struct {
	sessionID string
	component string
	level     Level
	sugar     *zap.SugaredLogger
	fileOnly  *zap.SugaredLogger
	file      *os.File
	logPath   string
	closeOnce *sync.Once
}

// Options configures a root logger.
type Options struct {
	Level Level

	// Console receives filtered output. Defaults to os.Stderr.
	Console io.Writer

	// Dir, when set, receives the unfiltered session log file.
	Dir string
}

var (
	// Global session ID for the current execution
	sessionID     string
	sessionIDOnce sync.Once
)

// getSessionID returns or creates the session ID for this execution
func getSessionID() string {
	sessionIDOnce.Do(func() {
		sessionID = uuid.New().String()
	})
	return sessionID
}

// GetSessionID returns the current global session ID
func GetSessionID() string {
	return getSessionID()
}

func encoderConfig() zapcore.EncoderConfig {
	cfg := zap.NewDevelopmentEncoderConfig()
	cfg.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05.000")
	cfg.EncodeLevel = zapcore.CapitalLevelEncoder
	cfg.CallerKey = ""
	cfg.StacktraceKey = ""
	return cfg
}

// New creates a root logger for component.
//
// If the log directory cannot be created or the log file cannot be opened,
// it returns a console-only logger along with the error. Callers can check
// the error to detect fallback mode and log a warning.
func New(component string, opts Options) (*Logger, error) {
	console := opts.Console
	if console == nil {
		console = os.Stderr
	}

	enc := encoderConfig()
	consoleCore := zapcore.NewCore(
		zapcore.NewConsoleEncoder(enc),
		zapcore.AddSync(console),
		opts.Level.zapLevel(),
	)

	l := &Logger{
		sessionID: getSessionID(),
		component: component,
		level:     opts.Level,
		closeOnce: &sync.Once{},
	}

	var fileErr error
	fileCore := zapcore.NewNopCore()
	if opts.Dir != "" {
		file, path, err := openLogFile(opts.Dir, l.sessionID)
		if err != nil {
			fileErr = err
		} else {
			l.file = file
			l.logPath = path
			fileCore = zapcore.NewCore(
				zapcore.NewConsoleEncoder(enc),
				zapcore.AddSync(file),
				zapcore.DebugLevel,
			)
		}
	}

	l.sugar = zap.New(zapcore.NewTee(consoleCore, fileCore)).
		Named(component).
		Sugar().
		With("session", l.sessionID)
	l.fileOnly = zap.New(fileCore).
		Named(component).
		Sugar().
		With("session", l.sessionID)

	if fileErr != nil {
		l.sugar.Warnf("Failed to initialize file logging: %v", fileErr)
		l.sugar.Warnf("Falling back to console logging")
	}

	return l, fileErr
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{
		sessionID: getSessionID(),
		component: "nop",
		level:     LevelQuiet,
		sugar:     zap.NewNop().Sugar(),
		fileOnly:  zap.NewNop().Sugar(),
		closeOnce: &sync.Once{},
	}
}

func openLogFile(dir, session string) (*os.File, string, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, "", fmt.Errorf("failed to create log directory: %w", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("%s-graphsync.log", session))
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open log file: %w", err)
	}
	return file, path, nil
}

// Named returns a logger for a sub-component sharing the same outputs.
// Closing the child closes the shared log file.
func (l *Logger) Named(component string) *Logger {
	child := *l
	child.component = l.component + "." + component
	child.sugar = l.sugar.Named(component)
	child.fileOnly = l.fileOnly.Named(component)
	return &child
}

// Debugf logs internal details. They reach the console only at debug
// verbosity but always reach the session log file.
func (l *Logger) Debugf(format string, v ...interface{}) {
	if l.level >= LevelDebug {
		l.sugar.Debugf(format, v...)
		return
	}
	l.fileOnly.Debugf(format, v...)
}

// Verbosef logs detailed progress (verbose and debug verbosity)
func (l *Logger) Verbosef(format string, v ...interface{}) {
	l.sugar.Debugf(format, v...)
}

// Infof logs an info-level message
func (l *Logger) Infof(format string, v ...interface{}) {
	l.sugar.Infof(format, v...)
}

// Warnf logs a warning-level message
func (l *Logger) Warnf(format string, v ...interface{}) {
	l.sugar.Warnf(format, v...)
}

// Errorf logs an error-level message
func (l *Logger) Errorf(format string, v ...interface{}) {
	l.sugar.Errorf(format, v...)
}

// SessionID returns the current session ID
func (l *Logger) SessionID() string {
	return l.sessionID
}

// LogPath returns the path to the log file, or "" when logging to the console only
func (l *Logger) LogPath() string {
	return l.logPath
}

// Level returns the console verbosity
func (l *Logger) Level() Level {
	return l.level
}

// Close flushes buffered output and closes the log file. Safe to call multiple times.
func (l *Logger) Close() error {
	var err error
	l.closeOnce.Do(func() {
		_ = l.sugar.Sync()
		if l.file != nil {
			err = l.file.Close()
		}
	})
	return err
}
