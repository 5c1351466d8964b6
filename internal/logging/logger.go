// Package logging builds the zerolog loggers used across splitcat.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

const consoleTimeFormat = "15:04:05"

type Options struct {
	Verbose bool
	// JSON emits raw zerolog JSON lines instead of the console format.
	JSON bool
}

// New returns a timestamped logger at info level, debug when verbose.
// Logs go to w, or stderr when w is nil, so stdout stays free for --json output.
func New(w io.Writer, opts Options) zerolog.Logger {
	if w == nil {
		w = os.Stderr
	}
	out := w
	if !opts.JSON {
		out = zerolog.ConsoleWriter{
			Out:        w,
			TimeFormat: consoleTimeFormat,
		}
	}
	level := zerolog.InfoLevel
	if opts.Verbose {
		level = zerolog.DebugLevel
	}
	return zerolog.New(out).
		Level(level).
		With().
		Timestamp().
		Logger()
}

// Init sets the process-wide zerolog defaults once at startup.
func Init() {
	zerolog.TimeFieldFormat = time.RFC3339
	zerolog.DurationFieldUnit = time.Second
}
