package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Config controls where log records go and how verbose they are.
type Config struct {
	Level         string // minimum level: debug, info, warn, error
	FilePath      string // log file path; empty disables file logging
	MaxSizeMB     int    // rotation threshold in megabytes
	MaxFiles      int    // rotated files kept before the oldest is dropped
	WriteToStderr bool   // mirror records to stderr
}

// DefaultConfig logs info and above to the default log file and stderr.
func DefaultConfig() Config {
	return Config{
		Level:         "info",
		FilePath:      DefaultLogPath(),
		MaxSizeMB:     10,
		MaxFiles:      5,
		WriteToStderr: true,
	}
}

// DebugConfig is DefaultConfig at debug level.
func DebugConfig() Config {
	cfg := DefaultConfig()
	cfg.Level = "debug"
	return cfg
}

// Setup builds a JSON slog logger per cfg. The returned cleanup flushes and
// closes the log file; callers must invoke it on shutdown.
func Setup(cfg Config) (*slog.Logger, func(), error) {
	sinks := make([]io.Writer, 0, 2)
	cleanup := func() {}

	if cfg.FilePath != "" {
		if err := EnsureLogDir(); err != nil {
			return nil, nil, err
		}
		rw, err := NewRotatingWriter(cfg.FilePath, cfg.MaxSizeMB, cfg.MaxFiles)
		if err != nil {
			return nil, nil, err
		}
		sinks = append(sinks, rw)
		cleanup = func() {
			_ = rw.Sync()
			_ = rw.Close()
		}
	}
	if cfg.WriteToStderr || len(sinks) == 0 {
		sinks = append(sinks, os.Stderr)
	}

	handler := slog.NewJSONHandler(io.MultiWriter(sinks...), &slog.HandlerOptions{
		Level: LevelFromString(cfg.Level),
	})
	return slog.New(handler), cleanup, nil
}

// LevelFromString maps a level name to its slog.Level. Unknown names
// fall back to info rather than failing startup.
func LevelFromString(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
