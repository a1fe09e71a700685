package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"
)

type ColorfulLogger struct {
	infoLogger  *log.Logger
	warnLogger  *log.Logger
	errorLogger *log.Logger
	debugLogger *log.Logger
	logLevel    int
	file        *os.File
}

const (
	DEBUG = iota
	INFO
	WARN
	ERROR
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorBlue   = "\033[34m"
)

// NewColorfulLogger writes to <logDir>/<logPrefix>.log and mirrors every line to stderr.
func NewColorfulLogger(logPrefix, logLevelStr, logDir string) (*ColorfulLogger, error) {
	if logDir == "" {
		logDir = "logs"
	}
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log dir %s: %w", logDir, err)
	}

	logFileName := fmt.Sprintf("%s.log", strings.ReplaceAll(strings.ToLower(logPrefix), " ", "_"))
	logFile, err := os.OpenFile(
		filepath.Join(logDir, logFileName),
		os.O_CREATE|os.O_WRONLY|os.O_APPEND,
		0666,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file %s: %w", logFileName, err)
	}

	l := NewWriterLogger(io.MultiWriter(logFile, os.Stderr), logLevelStr)
	l.file = logFile
	return l, nil
}

// NewWriterLogger builds a logger on top of an arbitrary writer.
func NewWriterLogger(w io.Writer, logLevelStr string) *ColorfulLogger {
	return &ColorfulLogger{
		infoLogger:  log.New(w, fmt.Sprintf("%s[INFO]%s ", colorGreen, colorReset), log.Ldate|log.Ltime),
		warnLogger:  log.New(w, fmt.Sprintf("%s[WARN]%s ", colorYellow, colorReset), log.Ldate|log.Ltime),
		errorLogger: log.New(w, fmt.Sprintf("%s[ERROR]%s ", colorRed, colorReset), log.Ldate|log.Ltime),
		debugLogger: log.New(w, fmt.Sprintf("%s[DEBUG]%s ", colorBlue, colorReset), log.Ldate|log.Ltime),
		logLevel:    ParseLevel(logLevelStr),
	}
}

// Discard returns a logger that drops everything.
func Discard() *ColorfulLogger {
	return NewWriterLogger(io.Discard, "error")
}

// ParseLevel maps a level name to its constant, defaulting to INFO.
func ParseLevel(logLevelStr string) int {
	switch strings.ToLower(logLevelStr) {
	case "debug":
		return DEBUG
	case "warn":
		return WARN
	case "error":
		return ERROR
	default:
		return INFO
	}
}

// Close releases the log file, if any.
func (l *ColorfulLogger) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}

// Debug логирует отладочные сообщения
func (l *ColorfulLogger) Debug(format string, v ...interface{}) {
	if l.logLevel <= DEBUG {
		l.debugLogger.Printf(format, v...)
	}
}

// Info логирует информационные сообщения
func (l *ColorfulLogger) Info(format string, v ...interface{}) {
	if l.logLevel <= INFO {
		l.infoLogger.Printf(format, v...)
	}
}

// Warn логирует предупреждения
func (l *ColorfulLogger) Warn(format string, v ...interface{}) {
	if l.logLevel <= WARN {
		l.warnLogger.Printf(format, v...)
	}
}

// Error логирует ошибки
func (l *ColorfulLogger) Error(format string, v ...interface{}) {
	if l.logLevel <= ERROR {
		l.errorLogger.Printf(format, v...)
	}
}

// LogRequest логирует информацию о HTTP запросе
func (l *ColorfulLogger) LogRequest(method, path, ip string, status int, duration time.Duration) {
	var statusColor string

	if status >= 200 && status < 300 {
		statusColor = colorGreen
	} else if status >= 300 && status < 400 {
		statusColor = colorBlue
	} else if status >= 400 && status < 500 {
		statusColor = colorYellow
	} else {
		statusColor = colorRed
	}

	logMessage := fmt.Sprintf("%s %s %s%d%s %s %s",
		method,
		path,
		statusColor,
		status,
		colorReset,
		duration.String(),
		ip)

	if status >= 400 {
		l.Warn("%s", logMessage)
	} else {
		l.Info("%s", logMessage)
	}
}
