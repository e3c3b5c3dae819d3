package app

import (
	"log/slog"
	"os"
)

// NewLogger builds the process logger. Production emits at Info; other
// environments keep Debug so feed pushes and event emission stay visible.
func NewLogger(cfg *Config) *slog.Logger {
	level := slog.LevelDebug
	format := ""
	if cfg != nil {
		format = cfg.LogFormat
		if cfg.IsProduction() {
			level = slog.LevelInfo
		}
	}
	opts := &slog.HandlerOptions{AddSource: true, Level: level}
	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler).With(slog.String("service", "texlink"))
}
