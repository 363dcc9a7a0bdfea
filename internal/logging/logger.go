package logging

import (
	"io"
	"os"

	"github.com/rs/zerolog"

	"github.com/edvin/wafbackup/internal/config"
)

// NewLogger creates a structured zerolog.Logger tagged with the tenants the
// run talks to. Empty hosts are left out.
func NewLogger(cfg *config.Config) zerolog.Logger {
	return newLogger(os.Stdout, cfg)
}

func newLogger(w io.Writer, cfg *config.Config) zerolog.Logger {
	ctx := zerolog.New(w).With().Timestamp().Str("service", "wafbackup")

	if cfg.Source.Host != "" {
		ctx = ctx.Str("source_host", cfg.Source.Host)
	}
	if cfg.Destination.Host != "" {
		ctx = ctx.Str("destination_host", cfg.Destination.Host)
	}

	logger := ctx.Logger()

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || cfg.LogLevel == "" {
		level = zerolog.InfoLevel
	}

	return logger.Level(level)
}
