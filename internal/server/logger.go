// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package server

import (
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"

	"github.com/tickfeed/tickfeed/internal/config"
)

var logLevels = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

// setupLogger installs the process-wide slog logger from the log section of
// the configuration. Unknown levels fall back to info.
func setupLogger(cfg config.LogConfig) {
	slog.SetDefault(slog.New(newLogHandler(cfg, os.Stdout)))
}

// newLogHandler builds the handler: tinted text for terminals, JSON for log
// shippers.
func newLogHandler(cfg config.LogConfig, w io.Writer) slog.Handler {
	level, ok := logLevels[cfg.Level]
	if !ok {
		level = slog.LevelInfo
	}

	if cfg.Format == "json" {
		return slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	}
	return tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: time.TimeOnly,
	})
}
