// Package logging builds the application logger.
package logging

import (
	"io"
	"strings"

	"github.com/rs/zerolog"

	"github.com/binaryash/gmail-rulemaster/internal/model"
)

// New returns a logger writing to w. Format "json" emits one JSON object
// per line; anything else uses the human-readable console writer.
func New(cfg model.LogConfig, w io.Writer) zerolog.Logger {
	if !strings.EqualFold(cfg.Format, "json") {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05"}
	}
	return zerolog.New(w).Level(ParseLevel(cfg.Level)).With().Timestamp().Logger()
}

// ParseLevel maps a level name to a zerolog level. Unknown names fall
// back to info.
func ParseLevel(s string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
