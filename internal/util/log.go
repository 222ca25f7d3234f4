package util

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// LogLevel represents the severity of a log message
type LogLevel int

const (
	LevelTrace LogLevel = iota
	LevelDebug
	LevelInfo
	LevelWarn
	LevelError
)

var (
	currentLogLevel = LevelInfo
	useColors       = true
	logOutput       io.Writer = os.Stderr
	logger                    = newLogger()
)

func newLogger() zerolog.Logger {
	w := zerolog.ConsoleWriter{
		Out:        logOutput,
		TimeFormat: "15:04:05",
		NoColor:    !useColors,
	}
	return zerolog.New(w).Level(toZerolog(currentLogLevel)).With().Timestamp().Logger()
}

func toZerolog(level LogLevel) zerolog.Level {
	switch level {
	case LevelTrace:
		return zerolog.TraceLevel
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelWarn:
		return zerolog.WarnLevel
	case LevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Logger returns the shared structured logger
func Logger() *zerolog.Logger {
	return &logger
}

// SetLogLevel sets the minimum log level to display
func SetLogLevel(level LogLevel) {
	currentLogLevel = level
	logger = newLogger()
}

// SetVerbosity maps a -v count to a level. Three or more enables SQL tracing.
func SetVerbosity(count int) {
	switch {
	case count >= 3:
		SetLogLevel(LevelTrace)
	case count >= 1:
		SetLogLevel(LevelDebug)
	default:
		SetLogLevel(LevelInfo)
	}
}

// SetQuiet enables quiet mode (errors only)
func SetQuiet(quiet bool) {
	if quiet {
		SetLogLevel(LevelError)
	}
}

// IsQuiet reports whether only errors are shown
func IsQuiet() bool {
	return currentLogLevel >= LevelError
}

// TraceEnabled reports whether SQL tracing is on
func TraceEnabled() bool {
	return currentLogLevel <= LevelTrace
}

// SetColors enables or disables colored output
func SetColors(enabled bool) {
	useColors = enabled
	logger = newLogger()
}

// SetOutput redirects log output, mostly for tests. nil restores stderr.
func SetOutput(w io.Writer) {
	if w == nil {
		w = os.Stderr
	}
	logOutput = w
	logger = newLogger()
}

// DebugLog logs debug messages
func DebugLog(format string, args ...interface{}) {
	logger.Debug().Msg(fmt.Sprintf(format, args...))
}

// InfoLog logs informational messages
func InfoLog(format string, args ...interface{}) {
	logger.Info().Msg(fmt.Sprintf(format, args...))
}

// WarnLog logs warning messages
func WarnLog(format string, args ...interface{}) {
	logger.Warn().Msg(fmt.Sprintf(format, args...))
}

// ErrorLog logs error messages
func ErrorLog(format string, args ...interface{}) {
	logger.Error().Msg(fmt.Sprintf(format, args...))
}

// SuccessLog logs success messages (always shown unless quiet)
func SuccessLog(format string, args ...interface{}) {
	logger.Info().Bool("ok", true).Msg(fmt.Sprintf(format, args...))
}

// TraceSQL logs a statement with its bindings at trace level
func TraceSQL(query string, args []any, elapsed time.Duration) {
	if !TraceEnabled() {
		return
	}
	logger.Trace().Str("sql", query).Interface("args", args).Dur("elapsed", elapsed).Msg("query")
}
