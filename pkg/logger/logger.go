package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

const serviceName = "reseller-ledger"

// New builds the process logger. pretty switches to console output for local runs.
func New(level string, pretty bool) zerolog.Logger {
	var out io.Writer = os.Stdout
	if pretty {
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen}
	}
	return base(out, level).Caller().Logger()
}

// NewWithWriter builds a logger over w without caller info.
func NewWithWriter(level string, w io.Writer) zerolog.Logger {
	return base(w, level).Logger()
}

// Component tags a child logger with the ledger component that owns it.
func Component(log zerolog.Logger, name string) zerolog.Logger {
	return log.With().Str("component", name).Logger()
}

func base(w io.Writer, level string) zerolog.Context {
	return zerolog.New(w).Level(parseLevel(level)).With().Timestamp().Str("service", serviceName)
}

// parseLevel falls back to info for empty or unknown names.
func parseLevel(level string) zerolog.Level {
	if lvl, err := zerolog.ParseLevel(level); err == nil && lvl != zerolog.NoLevel {
		return lvl
	}
	return zerolog.InfoLevel
}
