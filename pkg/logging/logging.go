// pkg/logging/logging.go
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// logWriter stores the current log writer globally.
var logWriter io.Writer

// init keeps early log lines quiet and readable until Configure runs.
func init() {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	logWriter = zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}
}

// Configure sets up the global logger from the given level, format and
// optional file path. It returns a closer for the log sink; the closer
// is a no-op when logging to stdout, and closes the file otherwise,
// which is why teardown runs it after everything else has stopped.
func Configure(levelStr, format, filePath string) (io.Closer, error) {
	level := parseLogLevel(levelStr)
	zerolog.SetGlobalLevel(level)

	var (
		sink   io.Writer = os.Stdout
		closer io.Closer = nopCloser{}
	)
	if filePath != "" {
		f, err := os.OpenFile(filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("opening log file %s: %w", filePath, err)
		}
		sink = f
		closer = f
	}

	if strings.ToLower(format) == "json" {
		logWriter = sink
	} else {
		logWriter = zerolog.ConsoleWriter{
			Out:        sink,
			TimeFormat: time.RFC3339,
		}
	}

	logContext := zerolog.New(logWriter).With().Timestamp()
	if level <= zerolog.DebugLevel {
		logContext = logContext.Caller()
	}

	log.Logger = logContext.Logger().Level(level)
	zerolog.DefaultContextLogger = &log.Logger

	return closer, nil
}

// SetLevel adjusts the global log level at runtime. Unknown names fall
// back to info, so a bad value in a reloaded config file cannot silence
// the process.
func SetLevel(levelStr string) {
	zerolog.SetGlobalLevel(parseLogLevel(levelStr))
}

// NewLogger returns a component-tagged logger writing to the configured
// global sink. Call it after Configure.
func NewLogger(component string, level zerolog.Level) zerolog.Logger {
	return NewLoggerWithWriter(component, level, logWriter)
}

// NewLoggerWithWriter returns a component-tagged logger writing to w.
func NewLoggerWithWriter(component string, level zerolog.Level, w io.Writer) zerolog.Logger {
	return zerolog.New(w).With().
		Timestamp().
		Str("component", component).
		Logger().Level(level)
}

// parseLogLevel converts a string log level to zerolog.Level.
func parseLogLevel(levelString string) zerolog.Level {
	if levelString == "" {
		return zerolog.InfoLevel
	}

	level, err := zerolog.ParseLevel(strings.ToLower(levelString))
	if err != nil {
		log.Error().Err(err).
			Str("logLevel", levelString).
			Msg("Invalid log level provided. Defaulting to info level.")
		return zerolog.InfoLevel
	}
	return level
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
