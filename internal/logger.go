package internal

import (
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogLevel represents the logging level
type LogLevel int

const (
	LogLevelError LogLevel = iota
	LogLevelWarn
	LogLevelInfo
	LogLevelDebug
)

var (
	logLevel = LogLevelInfo
	logJSON  bool

	logMu  sync.RWMutex
	logger = newZapLogger(LogLevelInfo, false)
)

func (l LogLevel) zapLevel() zapcore.Level {
	switch l {
	case LogLevelError:
		return zapcore.ErrorLevel
	case LogLevelWarn:
		return zapcore.WarnLevel
	case LogLevelDebug:
		return zapcore.DebugLevel
	default:
		return zapcore.InfoLevel
	}
}

// ParseLogLevel maps a config string to a LogLevel. Unknown values fall back to info.
func ParseLogLevel(s string) LogLevel {
	switch s {
	case "error":
		return LogLevelError
	case "warn", "warning":
		return LogLevelWarn
	case "debug":
		return LogLevelDebug
	default:
		return LogLevelInfo
	}
}

func newZapLogger(level LogLevel, json bool) *zap.Logger {
	var cfg zap.Config
	if json {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		cfg.DisableStacktrace = true
	}
	cfg.Level = zap.NewAtomicLevelAt(level.zapLevel())
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}

	l, err := cfg.Build()
	if err != nil {
		// Only reachable with a broken encoder config; keep logging somewhere.
		return zap.New(zapcore.NewCore(
			zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig()),
			zapcore.Lock(os.Stderr),
			level.zapLevel(),
		))
	}
	return l
}

func rebuildLogger() {
	logMu.Lock()
	defer logMu.Unlock()
	_ = logger.Sync()
	logger = newZapLogger(logLevel, logJSON)
}

// SetLogLevel sets the global log level
func SetLogLevel(level LogLevel) {
	logLevel = level
	rebuildLogger()
}

// SetVerbose enables verbose (debug) logging
func SetVerbose(verbose bool) {
	if verbose {
		SetLogLevel(LogLevelDebug)
	} else {
		SetLogLevel(LogLevelInfo)
	}
}

// SetJSON switches between the console encoder and the production JSON encoder.
func SetJSON(enabled bool) {
	logJSON = enabled
	rebuildLogger()
}

// Logger returns the structured logger for callers that attach fields.
func Logger() *zap.Logger {
	logMu.RLock()
	defer logMu.RUnlock()
	return logger
}

// SyncLogger flushes buffered log entries.
func SyncLogger() {
	_ = Logger().Sync()
}

// LogError logs an error message
func LogError(format string, args ...interface{}) {
	Logger().Sugar().Errorf(format, args...)
}

// LogWarn logs a warning message
func LogWarn(format string, args ...interface{}) {
	Logger().Sugar().Warnf(format, args...)
}

// LogInfo logs an info message
func LogInfo(format string, args ...interface{}) {
	Logger().Sugar().Infof(format, args...)
}

// LogDebug logs a debug message
func LogDebug(format string, args ...interface{}) {
	Logger().Sugar().Debugf(format, args...)
}
