package common

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogLevel represents the severity of a log message
type LogLevel int

const (
	LogDebug LogLevel = iota
	LogInfo
	LogWarn
	LogError
)

var logLevelNames = map[LogLevel]string{
	LogDebug: "DEBUG",
	LogInfo:  "INFO",
	LogWarn:  "WARN",
	LogError: "ERROR",
}

func (l LogLevel) String() string {
	if name, ok := logLevelNames[l]; ok {
		return name
	}
	return fmt.Sprintf("LEVEL(%d)", int(l))
}

func (l LogLevel) zapLevel() zapcore.Level {
	switch l {
	case LogDebug:
		return zapcore.DebugLevel
	case LogWarn:
		return zapcore.WarnLevel
	case LogError:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// ParseLogLevel converts a level name (debug, info, warn, error) into a LogLevel
func ParseLogLevel(name string) (LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return LogDebug, nil
	case "", "info":
		return LogInfo, nil
	case "warn", "warning":
		return LogWarn, nil
	case "error":
		return LogError, nil
	}
	return LogInfo, fmt.Errorf("unknown log level %q", name)
}

// SafeLogger provides STDIO-safe logging that only writes to stderr.
// Stdout may be carrying protocol traffic, so nothing here ever touches it.
type SafeLogger struct {
	prefix string
	level  zap.AtomicLevel
	logger *zap.Logger
}

// NewSafeLogger creates a new safe logger with the given prefix
func NewSafeLogger(prefix string) *SafeLogger {
	level := LogInfo
	if debugEnabled() {
		level = LogDebug
	}

	encoderConfig := zapcore.EncoderConfig{
		TimeKey:          "ts",
		LevelKey:         "level",
		NameKey:          "logger",
		MessageKey:       "msg",
		EncodeTime:       zapcore.TimeEncoderOfLayout("2006/01/02 15:04:05"),
		EncodeLevel:      encodeBracketLevel,
		EncodeName:       encodePrefix,
		ConsoleSeparator: " ",
	}
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig), zapcore.Lock(os.Stderr), zapcore.DebugLevel)

	l := NewSafeLoggerWithCore(prefix, core)
	l.SetLevel(level)
	return l
}

// NewSafeLoggerWithCore creates a logger writing to the given zap core.
// Tests pass an observer core here to assert on emitted entries.
func NewSafeLoggerWithCore(prefix string, core zapcore.Core) *SafeLogger {
	return &SafeLogger{
		prefix: prefix,
		level:  zap.NewAtomicLevelAt(zapcore.DebugLevel),
		logger: zap.New(core).Named(prefix),
	}
}

func encodeBracketLevel(level zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString("[" + level.CapitalString() + "]")
}

func encodePrefix(name string, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString(name + ":")
}

func debugEnabled() bool {
	v := strings.ToLower(os.Getenv("LSPCLIENT_DEBUG"))
	return v == "1" || v == "true" || v == "yes"
}

// SetLevel sets the minimum log level
func (l *SafeLogger) SetLevel(level LogLevel) {
	l.level.SetLevel(level.zapLevel())
}

// Named returns a child logger sharing this logger's level and output
func (l *SafeLogger) Named(name string) *SafeLogger {
	return &SafeLogger{
		prefix: l.prefix + "." + name,
		level:  l.level,
		logger: l.logger.Named(name),
	}
}

// Prefix returns the logger's prefix
func (l *SafeLogger) Prefix() string {
	return l.prefix
}

func (l *SafeLogger) log(level LogLevel, format string, args ...interface{}) {
	zl := level.zapLevel()
	if !l.level.Enabled(zl) {
		return
	}
	message := fmt.Sprintf(format, args...)
	if ce := l.logger.Check(zl, message); ce != nil {
		ce.Write()
	}
}

// Debug logs a debug message
func (l *SafeLogger) Debug(format string, args ...interface{}) {
	l.log(LogDebug, format, args...)
}

// Info logs an info message
func (l *SafeLogger) Info(format string, args ...interface{}) {
	l.log(LogInfo, format, args...)
}

// Warn logs a warning message
func (l *SafeLogger) Warn(format string, args ...interface{}) {
	l.log(LogWarn, format, args...)
}

// Error logs an error message
func (l *SafeLogger) Error(format string, args ...interface{}) {
	l.log(LogError, format, args...)
}

// Sync flushes buffered entries
func (l *SafeLogger) Sync() error {
	return l.logger.Sync()
}

// Global logger instances for convenience
var (
	LSPLogger    = NewSafeLogger("LSP")
	ClientLogger = NewSafeLogger("Client")
	CLILogger    = NewSafeLogger("CLI")
)

// SetGlobalLevel applies a level to all package-level loggers
func SetGlobalLevel(level LogLevel) {
	LSPLogger.SetLevel(level)
	ClientLogger.SetLevel(level)
	CLILogger.SetLevel(level)
}

const maxLoggedErrorLength = 200

// SanitizeErrorForLogging renders an error or payload for a log line, truncating long values
func SanitizeErrorForLogging(v interface{}) string {
	if v == nil {
		return ""
	}
	var s string
	switch val := v.(type) {
	case error:
		s = val.Error()
	case []byte:
		s = string(val)
	case string:
		s = val
	default:
		s = fmt.Sprintf("%v", val)
	}
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) > maxLoggedErrorLength {
		return s[:maxLoggedErrorLength] + "..."
	}
	return s
}
