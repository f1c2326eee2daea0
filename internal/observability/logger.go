// Package observability holds the run-wide logger and metrics. Both are
// observational only: nothing in the pipeline branches on them.
package observability

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// InitLogger configures the process-wide zerolog logger and returns it.
// Verbose enables debug-level output.
func InitLogger(app string, verbose bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	output := zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.RFC3339,
	}
	logger := zerolog.New(output).Level(level).With().Timestamp().Str("app", app).Logger()
	log.Logger = logger
	return logger
}

// UnitLogger derives a sublogger carrying the unit's subject/session
// fields, so per-unit lines remain attributable under parallel workers.
func UnitLogger(base zerolog.Logger, subject, session string) zerolog.Logger {
	ctx := base.With().Str("subject", subject)
	if session != "" {
		ctx = ctx.Str("session", session)
	}
	return ctx.Logger()
}
