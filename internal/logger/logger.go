package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

var Log zerolog.Logger

func init() {
	// Configure ZeroLog in text mode with colors
	Log = zerolog.New(zerolog.ConsoleWriter{
		Out:        os.Stderr,
		NoColor:    false,
		TimeFormat: time.RFC3339,
	}).With().Timestamp().Logger()

	// Set default log level to Info
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
}

// SetLevel sets the global log level
func SetLevel(level zerolog.Level) {
	zerolog.SetGlobalLevel(level)
}

// SetOutput redirects the global logger, keeping the console format.
// Hosts that embed the engine in a terminal UI usually point this at a file.
func SetOutput(w io.Writer, noColor bool) {
	Log = zerolog.New(zerolog.ConsoleWriter{
		Out:        w,
		NoColor:    noColor,
		TimeFormat: time.RFC3339,
	}).With().Timestamp().Logger()
}

// ForNetwork returns a child logger tagged with the server it talks to
func ForNetwork(host string, port int) zerolog.Logger {
	return Log.With().Str("network", host).Int("port", port).Logger()
}

// Nop returns a logger that discards everything (used by tests)
func Nop() zerolog.Logger {
	return zerolog.Nop()
}
