// SPDX-License-Identifier: MIT

package mlog

import (
	"log/slog"

	"gopkg.in/natefinch/lumberjack.v2"
)

// FileSinkConfig configures an optional rotating file sink for a runtime
// deployment that wants persistent logs instead of the package default of
// discarding everything. Left zero-valued, [NewFileSink] applies
// lumberjack's own defaults (no size cap beyond 100MB, no age cap).
type FileSinkConfig struct {
	// Path is the log file path. Required.
	Path string
	// MaxSizeMB is the size in megabytes before rotation. 0 uses lumberjack's default.
	MaxSizeMB int
	// MaxBackups is the number of rotated files to keep. 0 keeps all.
	MaxBackups int
	// MaxAgeDays is the number of days to retain rotated files. 0 keeps forever.
	MaxAgeDays int
	// Compress gzip-compresses rotated files.
	Compress bool
}

// NewFileSink returns a [slog.Handler] writing JSON records to a
// lumberjack-managed rotating file, wrapped in [AlignHandler] so multi-line
// payloads still line up under their direction mark.
func NewFileSink(cfg FileSinkConfig) slog.Handler {
	w := &lumberjack.Logger{
		Filename:   cfg.Path,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	}
	return NewAlignHandler(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: LevelRawData,
	}))
}
