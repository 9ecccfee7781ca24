// Package cmd provides the fastsearchd CLI: a thin composition root that
// wires config, logging, the store, the model manager, the engine, and the
// RPC server, then blocks on signals. It contributes no search or model
// logic of its own.
package cmd

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/fastsearch/fastsearchd/pkg/version"
)

// Exit codes per spec.md §6.
const (
	ExitSuccess     = 0
	ExitFailure     = 1
	ExitInvalidArgs = 2
)

// invalidArgsError marks a RunE failure as an invocation error (exit 2)
// rather than a runtime failure (exit 1).
type invalidArgsError struct{ err error }

func (e *invalidArgsError) Error() string { return e.err.Error() }
func (e *invalidArgsError) Unwrap() error { return e.err }

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "fastsearchd",
		Short:   "Local hybrid text-search daemon",
		Long:    "fastsearchd serves BM25 + vector hybrid search over local document stores via a length-framed JSON-RPC socket.",
		Version: version.Version,
		SilenceUsage: true,
	}
	cmd.SetVersionTemplate("fastsearchd version {{.Version}}\n")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	cmd := newRootCmd()
	err := cmd.Execute()
	if err == nil {
		return ExitSuccess
	}

	var invalid *invalidArgsError
	if errors.As(err, &invalid) {
		return ExitInvalidArgs
	}
	return ExitFailure
}
