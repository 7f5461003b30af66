package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// ServiceName is attached to every log line.
const ServiceName = "nfc-card-ledger"

// New returns the process logger on stdout. Levels: trace, debug, info,
// warn, error; anything else means info. pretty switches to console output
// and adds the caller.
func New(level string, pretty bool) zerolog.Logger {
	if !pretty {
		return NewWithWriter(level, os.Stdout)
	}
	return NewWithWriter(level, zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.TimeOnly}).
		With().Caller().Logger()
}

// NewWithWriter returns a JSON logger on w. Tests use it with a buffer.
func NewWithWriter(level string, w io.Writer) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(w).Level(lvl).With().
		Timestamp().
		Str("service", ServiceName).
		Logger()
}

// Component tags a child logger: store, ledger, http, terminal.
func Component(log zerolog.Logger, name string) zerolog.Logger {
	return log.With().Str("component", name).Logger()
}
