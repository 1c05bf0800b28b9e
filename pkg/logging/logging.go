// Package logging provides the slog backend shared by the server and client
// binaries: subsystem-tagged loggers writing to stdout and, optionally, a
// rotating logfile.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/decred/slog"
	"github.com/jrick/logrotate/rotator"
)

// LogConfig configures a LogBackend.
type LogConfig struct {
	// LogFile is the path of the rotated logfile. Empty disables file
	// logging.
	LogFile string

	// DebugLevel is the level applied to every logger: trace, debug,
	// info, warn, error, critical.
	DebugLevel string

	// MaxLogFiles is the number of rolled files to keep.
	MaxLogFiles int
}

// LogBackend fans log writes out to stdout and the rotator, and hands out
// subsystem loggers.
type LogBackend struct {
	backend *slog.Backend
	rotator *rotator.Rotator
	level   slog.Level
	loggers map[string]slog.Logger
}

// logWriter tees each write to stdout and the rotator.
type logWriter struct {
	r *rotator.Rotator
}

func (w *logWriter) Write(p []byte) (int, error) {
	os.Stdout.Write(p)
	if w.r != nil {
		return w.r.Write(p)
	}
	return len(p), nil
}

// NewLogBackend creates the backend, creating the logfile directory as
// needed.
func NewLogBackend(cfg LogConfig) (*LogBackend, error) {
	level, ok := slog.LevelFromString(cfg.DebugLevel)
	if !ok {
		return nil, fmt.Errorf("invalid debug level %q", cfg.DebugLevel)
	}

	b := &LogBackend{
		level:   level,
		loggers: make(map[string]slog.Logger),
	}
	if cfg.LogFile != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.LogFile), 0700); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		maxRolls := cfg.MaxLogFiles
		if maxRolls == 0 {
			maxRolls = 3
		}
		r, err := rotator.New(cfg.LogFile, 32*1024, false, maxRolls)
		if err != nil {
			return nil, fmt.Errorf("failed to create log rotator: %w", err)
		}
		b.rotator = r
	}
	var w io.Writer = &logWriter{r: b.rotator}
	b.backend = slog.NewBackend(w)
	return b, nil
}

// Logger returns the logger for a subsystem tag, creating it on first use.
func (b *LogBackend) Logger(subsystem string) slog.Logger {
	if log, ok := b.loggers[subsystem]; ok {
		return log
	}
	log := b.backend.Logger(subsystem)
	log.SetLevel(b.level)
	b.loggers[subsystem] = log
	return log
}

// Close flushes and closes the rotator.
func (b *LogBackend) Close() error {
	if b.rotator != nil {
		return b.rotator.Close()
	}
	return nil
}
