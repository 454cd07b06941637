package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger provides structured debug logging for browsermcp components.
// All components of one process write to a shared, rotating file in
// ~/.browsermcp/logs/. Nothing is ever written to stdout, which carries
// the MCP protocol stream.
//
// All log methods (Debugf, Infof, Warnf, Errorf) write unconditionally.
// There is currently no log level filtering.
type Logger struct {
	sessionID string
	component string
	writer    io.Writer
	logger    *log.Logger
	mu        sync.Mutex
	logPath   string
}

var (
	// Global session ID for the current execution
	sessionID     string
	sessionIDOnce sync.Once

	// logDir is the directory where log files are stored
	logDir string

	// initOnce ensures directory initialization happens once
	initOnce sync.Once

	// initErr stores any error from directory initialization
	initErr error

	// sharedWriter is the rotating file writer shared by every component logger
	sharedWriter   *lumberjack.Logger
	sharedWriterMu sync.Mutex
)

const (
	logMaxSizeMB  = 10
	logMaxBackups = 3
	logMaxAgeDays = 7
)

// getSessionID returns or creates the session ID for this execution
func getSessionID() string {
	sessionIDOnce.Do(func() {
		sessionID = uuid.New().String()
	})
	return sessionID
}

// initLogDirectory ensures the log directory exists
func initLogDirectory() error {
	initOnce.Do(func() {
		if logDir == "" {
			homeDir, err := os.UserHomeDir()
			if err != nil {
				initErr = fmt.Errorf("failed to get home directory: %w", err)
				return
			}
			logDir = filepath.Join(homeDir, ".browsermcp", "logs")
		}

		if err := os.MkdirAll(logDir, 0750); err != nil {
			initErr = fmt.Errorf("failed to create log directory: %w", err)
			return
		}
	})
	return initErr
}

// fileWriter returns the process-wide rotating writer, creating it on first use.
func fileWriter(path string) *lumberjack.Logger {
	sharedWriterMu.Lock()
	defer sharedWriterMu.Unlock()

	if sharedWriter == nil || sharedWriter.Filename != path {
		sharedWriter = &lumberjack.Logger{
			Filename:   path,
			MaxSize:    logMaxSizeMB,
			MaxBackups: logMaxBackups,
			MaxAge:     logMaxAgeDays,
		}
	}
	return sharedWriter
}

// NewLogger creates a new logger for a specific component.
// The logger writes to ~/.browsermcp/logs/<session-id>-browsermcp.log
//
// If the log directory cannot be created, it returns a fallback logger
// that writes to stderr along with the error. Callers can check the error
// to detect fallback mode.
func NewLogger(component string) (*Logger, error) {
	if err := initLogDirectory(); err != nil {
		return newFallbackLogger(component, err), err
	}

	sessID := getSessionID()
	logPath := filepath.Join(logDir, fmt.Sprintf("%s-browsermcp.log", sessID))
	w := fileWriter(logPath)

	return &Logger{
		sessionID: sessID,
		component: component,
		writer:    w,
		logger:    log.New(w, "", 0), // timestamps are formatted per entry
		logPath:   logPath,
	}, nil
}

// MustLogger is NewLogger for callers that are satisfied with the stderr
// fallback when file logging is unavailable.
func MustLogger(component string) *Logger {
	l, _ := NewLogger(component)
	return l
}

// Discard returns a logger that drops every entry.
func Discard() *Logger {
	return &Logger{
		sessionID: getSessionID(),
		component: "discard",
		writer:    io.Discard,
		logger:    log.New(io.Discard, "", 0),
	}
}

// newFallbackLogger creates a logger that writes to stderr when file logging fails
func newFallbackLogger(component string, err error) *Logger {
	logger := log.New(os.Stderr, "", 0)
	fallback := &Logger{
		sessionID: getSessionID(),
		component: component,
		writer:    os.Stderr,
		logger:    logger,
	}
	fallback.Warnf("failed to initialize file logging, using stderr: %v", err)
	return fallback
}

// With returns a logger for a sub-component sharing the same destination.
func (l *Logger) With(component string) *Logger {
	return &Logger{
		sessionID: l.sessionID,
		component: l.component + "/" + component,
		writer:    l.writer,
		logger:    l.logger,
		logPath:   l.logPath,
	}
}

// formatLogEntry creates a structured log entry with timestamp, component, and level
func (l *Logger) formatLogEntry(level, message string) string {
	timestamp := time.Now().Format("2006-01-02 15:04:05.000")
	return fmt.Sprintf("[%s] [%s] [%s] %s", timestamp, l.component, level, message)
}

func (l *Logger) write(level, format string, v ...interface{}) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	l.logger.Println(l.formatLogEntry(level, fmt.Sprintf(format, v...)))
}

// Printf logs a formatted message
func (l *Logger) Printf(format string, v ...interface{}) {
	l.write("INFO", format, v...)
}

// Debugf logs a debug-level message
func (l *Logger) Debugf(format string, v ...interface{}) {
	l.write("DEBUG", format, v...)
}

// Infof logs an info-level message
func (l *Logger) Infof(format string, v ...interface{}) {
	l.write("INFO", format, v...)
}

// Warnf logs a warning-level message
func (l *Logger) Warnf(format string, v ...interface{}) {
	l.write("WARN", format, v...)
}

// Errorf logs an error-level message
func (l *Logger) Errorf(format string, v ...interface{}) {
	l.write("ERROR", format, v...)
}

// Writer returns an io.Writer that writes to this logger's destination
func (l *Logger) Writer() io.Writer {
	return l.writer
}

// SessionID returns the current session ID
func (l *Logger) SessionID() string {
	return l.sessionID
}

// LogPath returns the path to the log file
func (l *Logger) LogPath() string {
	return l.logPath
}

// Close flushes and closes the shared log file. Safe to call multiple times;
// a later NewLogger call reopens the file on first write.
func Close() error {
	sharedWriterMu.Lock()
	defer sharedWriterMu.Unlock()

	if sharedWriter == nil {
		return nil
	}
	return sharedWriter.Close()
}

// GetSessionID returns the current global session ID
func GetSessionID() string {
	return getSessionID()
}

// GetLogDirectory returns the directory where logs are stored
func GetLogDirectory() (string, error) {
	if err := initLogDirectory(); err != nil {
		return "", err
	}
	return logDir, nil
}
