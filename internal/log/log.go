// Package log holds the process-wide zerolog logger.
package log

import (
	"os"

	"github.com/rs/zerolog"
)

// Log is the shared logger. It writes human-readable output to stderr
// so machine output on stdout stays clean.
var Log zerolog.Logger

// SetLevelDebug lowers the global level to debug.
func SetLevelDebug() {
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
}

func init() {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	Log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
}
