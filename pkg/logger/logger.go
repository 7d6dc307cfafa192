// Package logger provides the root zerolog logger for the application.
package logger

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// New creates the root logger. In dev mode it writes human-readable console
// output; otherwise it emits JSON suitable for log shipping.
func New(level string, devMode bool) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		lvl = zerolog.InfoLevel
	}

	var log zerolog.Logger
	if devMode {
		writer := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
		log = zerolog.New(writer)
	} else {
		log = zerolog.New(os.Stderr)
	}

	return log.Level(lvl).With().Timestamp().Logger()
}

// Disabled returns a logger that discards everything. Used in tests.
func Disabled() zerolog.Logger {
	return zerolog.New(nil).Level(zerolog.Disabled)
}
