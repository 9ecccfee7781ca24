// Package main provides the entry point for the fastsearchd binary.
package main

import (
	"os"

	"github.com/fastsearch/fastsearchd/cmd/fastsearchd/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
