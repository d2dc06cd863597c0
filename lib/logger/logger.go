package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

var logger = newLogger(os.Stderr)

// debugMode is set via -ldflags at build time
var debugMode = "false"

func newLogger(w io.Writer) zerolog.Logger {
	level := zerolog.InfoLevel
	if debugMode == "true" {
		level = zerolog.DebugLevel
	}
	out := zerolog.ConsoleWriter{Out: w, TimeFormat: time.TimeOnly}
	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}

// SetOutput redirects log output, keeping the current level.
func SetOutput(w io.Writer) {
	level := logger.GetLevel()
	logger = zerolog.New(w).Level(level).With().Timestamp().Logger()
}

// SetLevel accepts any zerolog level name ("debug", "info", "warn", ...).
// An empty name means info.
func SetLevel(name string) error {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		name = zerolog.InfoLevel.String()
	}
	level, err := zerolog.ParseLevel(name)
	if err != nil {
		return err
	}
	logger = logger.Level(level)
	return nil
}

// Debug logs debug messages only when the debug level is enabled
func Debug(format string, v ...interface{}) {
	logger.Debug().Msgf(format, v...)
}

func Info(format string, v ...interface{}) {
	logger.Info().Msgf(format, v...)
}

func Error(format string, v ...interface{}) {
	logger.Error().Msgf(format, v...)
}

func Warn(format string, v ...interface{}) {
	logger.Warn().Msgf(format, v...)
}
