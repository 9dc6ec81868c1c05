package logging

import (
	"io"
	"log/slog"
	"os"
)

var stdout io.Writer = os.Stdout

// Setup initializes the global slog logger with JSON output to stdout.
func Setup() {
	slog.SetDefault(slog.New(StdoutHandler()))
}

func StdoutHandler() slog.Handler {
	return slog.NewJSONHandler(stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
}

// WithPostgres makes the default logger also persist ERROR+ records.
func WithPostgres(pg *PGHandler) {
	slog.SetDefault(slog.New(NewMultiHandler(StdoutHandler(), pg)))
}
