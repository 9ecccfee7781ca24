package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Config contains logging configuration, matching the daemon.log_level
// configuration key.
type Config struct {
	// Level is the minimum log level (DEBUG, INFO, WARNING, ERROR).
	Level string
	// FilePath is the path to the log file. Empty means stderr only.
	FilePath string
	// WriteToStderr additionally mirrors output to stderr.
	WriteToStderr bool
}

// DefaultConfig returns the default logging configuration: INFO level,
// stderr only.
func DefaultConfig() Config {
	return Config{
		Level:         "INFO",
		WriteToStderr: true,
	}
}

// Setup builds a slog.Logger from cfg and returns a cleanup function that
// closes the log file, if one was opened.
func Setup(cfg Config) (*slog.Logger, func(), error) {
	var output io.Writer = os.Stderr
	cleanup := func() {}

	if cfg.FilePath != "" {
		f, err := os.OpenFile(cfg.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
		if err != nil {
			return nil, nil, err
		}
		if cfg.WriteToStderr {
			output = io.MultiWriter(f, os.Stderr)
		} else {
			output = f
		}
		cleanup = func() { _ = f.Close() }
	}

	handler := slog.NewJSONHandler(output, &slog.HandlerOptions{
		Level: parseLevel(cfg.Level),
	})

	return slog.New(handler), cleanup, nil
}

// SetupDefault configures logging with DefaultConfig and installs it as the
// process-wide default logger.
func SetupDefault() (func(), error) {
	logger, cleanup, err := Setup(DefaultConfig())
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)
	return cleanup, nil
}

// parseLevel converts a daemon.log_level string to slog.Level.
func parseLevel(level string) slog.Level {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARNING", "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// LevelFromString exposes parseLevel for callers validating a configured
// level string before Setup.
func LevelFromString(level string) slog.Level {
	return parseLevel(level)
}
