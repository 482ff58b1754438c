// Package obslog builds the process-wide zerolog.Logger for cmd/toroniagent
// from a small typed config, rather than leaving every call site to
// configure its own logger.
package obslog

import (
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// Config selects the logger's level and output format.
type Config struct {
	Level  string // "debug", "info", "warn", "error"
	Format string // "json" or "console"
}

// New builds a zerolog.Logger writing to stdout, honoring cfg.Level and
// cfg.Format. An unrecognized level defaults to info rather than failing
// startup over a typo'd environment variable.
func New(cfg Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		level = zerolog.InfoLevel
	}

	if strings.EqualFold(cfg.Format, "console") {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "15:04:05"}).
			Level(level).
			With().Timestamp().Logger()
	}

	return zerolog.New(os.Stdout).Level(level).With().Timestamp().Logger()
}
