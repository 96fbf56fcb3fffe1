package log

import (
	"github.com/rs/zerolog"

	logAdapter "github.com/nutriai/mealsync/internal/adapters/log"
	"github.com/nutriai/mealsync/internal/ports"
)

// Logger provides structured logging.
type Logger = ports.Logger

// Field is a key-value pair attached to a log line.
type Field = ports.Field

// Field constructors.
var (
	String   = ports.String
	Int      = ports.Int
	Int64    = ports.Int64
	Bool     = ports.Bool
	Duration = ports.Duration
	Err      = ports.Err
	Any      = ports.Any
)

// NewZerolog adapts a zerolog.Logger.
func NewZerolog(logger zerolog.Logger) Logger {
	return logAdapter.NewZerologAdapterWithLogger(logger)
}

// NewNoop returns a logger that discards everything.
func NewNoop() Logger {
	return logAdapter.NewNoopLogger()
}
