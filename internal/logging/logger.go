// Package logging builds the process logger and carries request IDs through contexts.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
)

// New creates a zerolog logger writing to w. "console" and "pretty" give human-readable
// output, anything else JSON.
func New(w io.Writer, level, format string) zerolog.Logger {
	if w == nil {
		w = os.Stdout
	}

	var logger zerolog.Logger
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "console", "pretty":
		logger = zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339})
	default:
		logger = zerolog.New(w)
	}
	return logger.With().Timestamp().Logger().Level(parseLevel(level))
}

// Init builds the logger and installs it as the zerolog global.
func Init(level, format string) zerolog.Logger {
	logger := New(os.Stdout, level, format)
	zlog.Logger = logger
	return logger
}

// Nop returns a logger that discards everything.
func Nop() zerolog.Logger {
	return zerolog.Nop()
}

func parseLevel(s string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "trace":
		return zerolog.TraceLevel
	default:
		return zerolog.InfoLevel
	}
}
