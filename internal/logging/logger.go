package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type Config struct {
	Level       string
	JSON        bool
	ServiceName string
	RunMode     string
}

// New builds the process logger and installs it as the zerolog global so
// packages that log through zerolog/log share its settings.
func New(cfg Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339

	var out io.Writer = os.Stdout
	if !cfg.JSON {
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen}
	}

	logger := zerolog.New(out).With().
		Timestamp().
		Str("service", cfg.ServiceName).
		Str("mode", cfg.RunMode).
		Logger()
	log.Logger = logger
	return logger
}
