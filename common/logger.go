// Package common provides shared constants, types, and utilities
// used across the tunnel core.
package common

import (
	"compress/gzip"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"
)

// LogLevel represents the severity level of a log message.
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
)

// String returns the string representation of the log level.
func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel converts a level name from the settings file to a LogLevel.
// Unrecognized values yield LevelInfo.
func ParseLevel(s string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// AppLogger is a leveled logger writing to stdout and, optionally, a
// size-rotated log file.
type AppLogger struct {
	mu          sync.Mutex
	level       LogLevel
	logger      *log.Logger
	output      io.Writer
	logFile     *os.File
	filePath    string
	maxFileSize int64
	maxBackups  int
}

// LogConfig holds configuration options for the logger.
type LogConfig struct {
	Level LogLevel
	// FilePath enables file logging when non-empty.
	FilePath    string
	MaxFileSize int64 // in bytes, default 5MB
	MaxBackups  int   // rotated files to keep, default 5
}

var (
	defaultLogger *AppLogger
	loggerOnce    sync.Once
)

const (
	defaultMaxFileSize = 5 * 1024 * 1024
	defaultMaxBackups  = 5
)

// GetLogger returns the process-wide logger.
func GetLogger() *AppLogger {
	loggerOnce.Do(func() {
		defaultLogger = NewAppLogger(os.Stdout, LevelInfo)
	})
	return defaultLogger
}

// NewAppLogger creates a logger writing to w.
func NewAppLogger(w io.Writer, level LogLevel) *AppLogger {
	return &AppLogger{
		level:       level,
		output:      w,
		logger:      log.New(w, "", 0),
		maxFileSize: defaultMaxFileSize,
		maxBackups:  defaultMaxBackups,
	}
}

// InitLogger configures the default logger. Call it early in main.
func InitLogger(config LogConfig) error {
	logger := GetLogger()
	logger.SetLevel(config.Level)

	if config.MaxFileSize > 0 {
		logger.maxFileSize = config.MaxFileSize
	}
	if config.MaxBackups > 0 {
		logger.maxBackups = config.MaxBackups
	}

	if config.FilePath != "" {
		return logger.EnableFileLogging(config.FilePath)
	}
	return nil
}

// SetLevel sets the minimum log level.
func (l *AppLogger) SetLevel(level LogLevel) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

// MuteConsole stops console output while a full-screen view owns the
// terminal. The log file, if any, keeps receiving entries. Call the returned
// function to restore the previous output.
func (l *AppLogger) MuteConsole() (restore func()) {
	l.mu.Lock()
	defer l.mu.Unlock()

	prev := l.output
	var w io.Writer = io.Discard
	if l.logFile != nil {
		w = l.logFile
	}
	l.output = w
	l.logger = log.New(w, "", 0)

	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.output = prev
		l.logger = log.New(prev, "", 0)
	}
}

// EnableFileLogging tees output into logPath, rotating it first if it has
// grown past maxFileSize.
func (l *AppLogger) EnableFileLogging(logPath string) error {
	dir := filepath.Dir(logPath)

	// Refuse symlinked log locations.
	if isSymlink(dir) || isSymlink(logPath) {
		return fmt.Errorf("log path %s is a symlink", logPath)
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}

	l.rotateIfNeeded(logPath)

	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.logFile != nil {
		l.logFile.Close()
	}
	l.logFile = file
	l.filePath = logPath
	l.output = io.MultiWriter(os.Stdout, file)
	l.logger = log.New(l.output, "", 0)
	return nil
}

func isSymlink(path string) bool {
	info, err := os.Lstat(path)
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeSymlink != 0
}

// rotateIfNeeded compresses logPath into logPath.<timestamp>.gz once it
// exceeds maxFileSize and prunes old archives.
func (l *AppLogger) rotateIfNeeded(logPath string) {
	info, err := os.Stat(logPath)
	if err != nil || info.Size() < l.maxFileSize {
		return
	}

	l.mu.Lock()
	if l.logFile != nil {
		l.logFile.Close()
		l.logFile = nil
	}
	l.mu.Unlock()

	archive := fmt.Sprintf("%s.%s.gz", logPath, time.Now().Format("20060102-150405"))
	if err := gzipFile(logPath, archive); err != nil {
		os.Rename(logPath, strings.TrimSuffix(archive, ".gz"))
	} else {
		os.Remove(logPath)
	}

	l.pruneArchives(logPath)
}

func gzipFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	zw := gzip.NewWriter(out)
	if _, err := io.Copy(zw, in); err != nil {
		zw.Close()
		return err
	}
	return zw.Close()
}

// pruneArchives keeps the newest maxBackups archives of logPath.
func (l *AppLogger) pruneArchives(logPath string) {
	matches, err := filepath.Glob(logPath + ".*")
	if err != nil || len(matches) <= l.maxBackups {
		return
	}

	sort.Slice(matches, func(i, j int) bool {
		a, errA := os.Stat(matches[i])
		b, errB := os.Stat(matches[j])
		if errA != nil || errB != nil {
			return false
		}
		return a.ModTime().Before(b.ModTime())
	})

	for _, path := range matches[:len(matches)-l.maxBackups] {
		os.Remove(path)
	}
}

// log writes a formatted log line.
func (l *AppLogger) log(level LogLevel, msg string, args ...interface{}) {
	l.mu.Lock()
	threshold := l.level
	l.mu.Unlock()
	if level < threshold {
		return
	}

	caller := "???"
	if _, file, line, ok := runtime.Caller(2); ok {
		caller = fmt.Sprintf("%s:%d", filepath.Base(file), line)
	}

	text := msg
	if len(args) > 0 {
		text = fmt.Sprintf(msg, args...)
	}

	line := fmt.Sprintf("%s [%s] %s: %s", time.Now().Format("2006/01/02 15:04:05"), level, caller, text)

	l.mu.Lock()
	defer l.mu.Unlock()
	l.logger.Println(line)
}

// Debug logs a debug message.
func (l *AppLogger) Debug(msg string, args ...interface{}) {
	l.log(LevelDebug, msg, args...)
}

// Info logs an informational message.
func (l *AppLogger) Info(msg string, args ...interface{}) {
	l.log(LevelInfo, msg, args...)
}

// Warn logs a warning message.
func (l *AppLogger) Warn(msg string, args ...interface{}) {
	l.log(LevelWarn, msg, args...)
}

// Error logs an error message.
func (l *AppLogger) Error(msg string, args ...interface{}) {
	l.log(LevelError, msg, args...)
}

// LogInfo logs an info message to the default logger.
func LogInfo(msg string, args ...interface{}) {
	GetLogger().Info(msg, args...)
}

// Close closes the log file, if any.
func (l *AppLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.logFile != nil {
		err := l.logFile.Close()
		l.logFile = nil
		return err
	}
	return nil
}

// CloseLogger closes the default logger.
func CloseLogger() error {
	return GetLogger().Close()
}
