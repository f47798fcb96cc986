package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoggerWithWriter(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter("test", zerolog.DebugLevel, &buf)

	logger.Debug().Msg("test debug message")
	assert.Contains(t, buf.String(), "test debug message")
	assert.Contains(t, buf.String(), `"component":"test"`)
	assert.Contains(t, buf.String(), `"level":"debug"`)
}

func TestNewLoggerLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter("test", zerolog.InfoLevel, &buf)

	// Debug should not appear (below info level)
	logger.Debug().Msg("debug message")
	assert.NotContains(t, buf.String(), "debug message")

	// Info should appear
	logger.Info().Msg("info message")
	assert.Contains(t, buf.String(), "info message")

	// Warn should appear
	logger.Warn().Msg("warn message")
	assert.Contains(t, buf.String(), "warn message")
}

func TestNewLoggerComponentField(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter("my-component", zerolog.InfoLevel, &buf)

	logger.Info().Msg("test message")
	output := buf.String()

	assert.Contains(t, output, `"component":"my-component"`)
	assert.Contains(t, output, "test message")
}

func TestNewLoggerMultipleInstances(t *testing.T) {
	var buf1, buf2 bytes.Buffer

	logger1 := NewLoggerWithWriter("component-1", zerolog.InfoLevel, &buf1)
	logger2 := NewLoggerWithWriter("component-2", zerolog.WarnLevel, &buf2)

	logger1.Info().Msg("from logger 1")
	logger2.Warn().Msg("from logger 2")

	assert.Contains(t, buf1.String(), `"component":"component-1"`)
	assert.Contains(t, buf1.String(), "from logger 1")

	assert.Contains(t, buf2.String(), `"component":"component-2"`)
	assert.Contains(t, buf2.String(), "from logger 2")
}

func TestConfigure_SetsGlobalLevel(t *testing.T) {
	closer, err := Configure("debug", "json", "")
	require.NoError(t, err)
	defer closer.Close()

	assert.Equal(t, zerolog.DebugLevel, zerolog.GlobalLevel())
}

func TestConfigure_WritesToFile(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "test.log")

	closer, err := Configure("info", "json", logFile)
	require.NoError(t, err)

	logger := NewLogger("configured", zerolog.InfoLevel)
	logger.Info().Msg("written to file")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "written to file")
	assert.Contains(t, string(data), `"component":"configured"`)
}

func TestConfigure_RejectsUnwritableFile(t *testing.T) {
	_, err := Configure("info", "json", filepath.Join(t.TempDir(), "missing", "test.log"))
	require.Error(t, err)
}

func TestSetLevel(t *testing.T) {
	closer, err := Configure("info", "json", "")
	require.NoError(t, err)
	defer closer.Close()

	SetLevel("warn")
	assert.Equal(t, zerolog.WarnLevel, zerolog.GlobalLevel())

	// Unknown names fall back to info rather than silencing output.
	SetLevel("chatty")
	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, zerolog.InfoLevel, parseLogLevel(""))
	assert.Equal(t, zerolog.DebugLevel, parseLogLevel("debug"))
	assert.Equal(t, zerolog.ErrorLevel, parseLogLevel("ERROR"))
	assert.Equal(t, zerolog.InfoLevel, parseLogLevel("not-a-level"))
}
