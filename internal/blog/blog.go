// Package blog provides the engine's single logging entry point: a
// logiface.Logger[*izerolog.Event] backed by zerolog, exactly the pairing
// the teacher's logiface-zerolog package exists for. The components that
// take a logger (dispatch, eval) receive a *blog.Logger rather than
// constructing their own, so a host can swap sinks/levels in one place; of
// these, only dispatch writes log lines.
package blog

import (
	"io"
	"os"

	"github.com/joeycumines/izerolog"
	"github.com/joeycumines/logiface"
	"github.com/rs/zerolog"
)

// Logger is the concrete logger type threaded through the engine.
type Logger = logiface.Logger[*izerolog.Event]

// New builds a Logger writing newline-delimited JSON to w at the given
// level (spec SPEC_FULL.md §B "Logging").
func New(w io.Writer, level logiface.Level) *Logger {
	if w == nil {
		w = os.Stderr
	}
	z := zerolog.New(w).With().Timestamp().Logger()
	return logiface.New[*izerolog.Event](
		izerolog.WithZerolog(z),
		logiface.WithLevel[*izerolog.Event](level),
	)
}

// Discard returns a Logger that drops everything, for tests that don't
// want log noise but still need a non-nil *Logger to pass around.
func Discard() *Logger {
	return New(io.Discard, logiface.LevelDisabled)
}
