// Package log builds the zerolog loggers shared by every component.
package log

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

const production = "production"

func New(environment string) zerolog.Logger {
	return NewWithWriter(environment, os.Stdout)
}

// NewWithWriter writes JSON lines at info level in production and a
// human-readable console stream at debug level everywhere else.
func NewWithWriter(environment string, out io.Writer) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339
	zerolog.DurationFieldUnit = time.Millisecond

	level := zerolog.DebugLevel
	if environment == production {
		level = zerolog.InfoLevel
	} else {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.Kitchen}
	}

	return zerolog.New(out).
		Level(level).
		With().
		Timestamp().
		Str("env", environment).
		Str("service", "oceanstella-api").
		Logger()
}

// Component tags every event with the subsystem that produced it.
func Component(logger zerolog.Logger, name string) zerolog.Logger {
	return logger.With().Str("component", name).Logger()
}
