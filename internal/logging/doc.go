// Package logging provides structured, slog-based logging for fastsearchd.
//
// Setup writes JSON lines to stderr, or to Config.FilePath when one is set
// (optionally mirrored to stderr). fastsearchd serve sets no file path and
// logs to stderr. Level is one of DEBUG, INFO, WARNING, ERROR.
package logging
