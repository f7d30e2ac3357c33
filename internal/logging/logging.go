package logging

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

const logFileName = "engine.log"

type FileLogger struct {
	Logger  *slog.Logger
	Close   func() error
	Path    string
	Enabled bool
}

func Nop() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelInfo}))
}

func disabled() FileLogger {
	return FileLogger{Logger: Nop(), Close: func() error { return nil }, Enabled: false}
}

// ParseLevel maps a config level name onto slog. Unknown names mean debug,
// since the file logger only exists when debugging.
func ParseLevel(name string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelDebug
	}
}

// NewFileLogger appends JSON records at level and above to logDir/engine.log
// when debug is set. stdout carries the command protocol, so nothing is ever
// logged there. Several plugin sessions may share the file, so every record
// carries the process id.
func NewFileLogger(logDir string, debug bool, level slog.Level) (FileLogger, error) {
	if !debug {
		return disabled(), nil
	}
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return disabled(), err
	}
	path := filepath.Join(logDir, logFileName)
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return disabled(), err
	}
	handler := slog.NewJSONHandler(file, &slog.HandlerOptions{
		Level:     level,
		AddSource: true,
	})
	return FileLogger{
		Logger:  slog.New(handler).With("pid", os.Getpid()),
		Close:   file.Close,
		Path:    path,
		Enabled: true,
	}, nil
}
