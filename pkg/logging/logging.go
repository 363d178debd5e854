// Package logging wires structured logging for the gateway data-plane core
// using zerolog, replacing the ambient fmt.Printf calls of a bare-stdlib
// rendition with component-scoped loggers.
package logging

import (
	"io"
	"os"
	"sync"

	"github.com/rs/zerolog"
)

var (
	base     zerolog.Logger
	baseOnce sync.Once
)

// Configure installs the process-wide base logger. Safe to call once at
// startup; subsequent calls are no-ops so test binaries that import several
// packages don't race to reconfigure it.
func Configure(level zerolog.Level, w io.Writer) {
	baseOnce.Do(func() {
		if w == nil {
			w = os.Stderr
		}
		base = zerolog.New(w).Level(level).With().Timestamp().Logger()
	})
}

// Component returns a logger scoped to a named subsystem (e.g. "cdb64",
// "retrieval", "ratelimit"). Configure is called lazily with sane defaults
// if the caller never invoked it.
func Component(name string) zerolog.Logger {
	baseOnce.Do(func() {
		base = zerolog.New(os.Stderr).Level(zerolog.InfoLevel).With().Timestamp().Logger()
	})
	return base.With().Str("component", name).Logger()
}
