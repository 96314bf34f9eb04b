// Package logging builds the root zerolog logger and adapts it to the
// key/value Logger interface used by the background services.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// New returns the root logger. Console output unless json is set.
func New(level string, json bool) zerolog.Logger {
	return NewWithWriter(os.Stdout, level, json)
}

func NewWithWriter(w io.Writer, level string, json bool) zerolog.Logger {
	out := w
	if !json {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(out).Level(lvl).With().Timestamp().Logger()
}

// Adapter exposes a zerolog logger as Info/Error/Debug(msg, key, value, ...).
type Adapter struct {
	log zerolog.Logger
}

func NewAdapter(logger zerolog.Logger, component string) *Adapter {
	return &Adapter{log: logger.With().Str("component", component).Logger()}
}

func (a *Adapter) Info(msg string, fields ...interface{}) {
	a.log.Info().Fields(fields).Msg(msg)
}

func (a *Adapter) Error(msg string, fields ...interface{}) {
	a.log.Error().Fields(fields).Msg(msg)
}

func (a *Adapter) Debug(msg string, fields ...interface{}) {
	a.log.Debug().Fields(fields).Msg(msg)
}
