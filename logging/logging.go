package logging

import (
	"io"
	"os"

	"github.com/rs/zerolog"

	"github.com/AlephTX/aleph-tx/arbmon/config"
)

// NewLogger builds the process logger on stderr. An unknown level falls back
// to info.
func NewLogger(cfg config.LogConfig) zerolog.Logger {
	return New(os.Stderr, cfg)
}

func New(w io.Writer, cfg config.LogConfig) zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs
	if cfg.Pretty {
		w = zerolog.ConsoleWriter{Out: w}
	}
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}
