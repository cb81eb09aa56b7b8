package infra

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"
)

// NewLogger creates a JSON slog.Logger. When a log file is configured the
// output also goes to a rotated file.
func NewLogger(cfg *Config) *slog.Logger {
	return slog.New(slog.NewJSONHandler(logWriter(cfg.Logging.File), &slog.HandlerOptions{
		Level: ParseLevel(cfg.Logging.Level),
	}))
}

func logWriter(file string) io.Writer {
	if file == "" {
		return os.Stdout
	}
	if err := os.MkdirAll(filepath.Dir(file), 0755); err != nil {
		// Fallback to stdout if directory creation fails
		return os.Stdout
	}

	fileLogger := &lumberjack.Logger{
		Filename:   file,
		MaxSize:    10, // Megabytes
		MaxBackups: 3,
		MaxAge:     28, // Days
		Compress:   true,
	}
	return io.MultiWriter(os.Stdout, fileLogger)
}

// ParseLevel maps a config level name to a slog level. Unknown names mean info.
func ParseLevel(name string) slog.Level {
	switch name {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
