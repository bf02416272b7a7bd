// Package logger builds the application logger. Records go to a rotating
// file so stdout stays free for command output.
package logger

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configure the log destination.
type Options struct {
	File      string
	Level     string
	MaxSizeMB int
}

// Logger is a slog logger bound to its rotating file.
type Logger struct {
	*slog.Logger
	out *lumberjack.Logger
}

// NewLogger opens the log file, creating its directory if needed.
func NewLogger(opt Options) (*Logger, error) {
	level, err := ParseLevel(opt.Level)
	if err != nil {
		return nil, err
	}
	if opt.File == "" {
		opt.File = "log.txt"
	}
	if dir := filepath.Dir(opt.File); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
	}
	if opt.MaxSizeMB <= 0 {
		opt.MaxSizeMB = 10
	}

	out := &lumberjack.Logger{
		Filename:   opt.File,
		MaxSize:    opt.MaxSizeMB,
		MaxBackups: 3,
		MaxAge:     28,
	}
	h := slog.NewTextHandler(out, &slog.HandlerOptions{Level: level})
	return &Logger{
		Logger: slog.New(h),
		out:    out,
	}, nil
}

// Close flushes and closes the log file.
func (l *Logger) Close() error {
	return l.out.Close()
}

// ParseLevel maps debug, info, warn and error to slog levels. An empty
// string means info.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("unknown log level %q", s)
}
